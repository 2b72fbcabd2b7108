package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"fortuna/internal/admin"
	platformredis "fortuna/internal/platform/redis"
	"fortuna/pkg/platform/sentinel"
)

const keyPrefix = "fortuna:admin_session:"

// Store persists admin sessions in redis, using key TTL as the expiry bound.
// Find still returns a session until the key lapses, so the service-level
// expiry check stays authoritative; the TTL only guarantees cleanup.
type Store struct {
	client *platformredis.Client
	now    func() time.Time
}

// New creates a redis admin session store.
func New(client *platformredis.Client) *Store {
	return &Store{client: client, now: time.Now}
}

type record struct {
	Device    string    `json:"device"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Store) Create(ctx context.Context, session *admin.Session) error {
	payload, err := json.Marshal(record{
		Device:    session.Device,
		CreatedAt: session.CreatedAt,
		ExpiresAt: session.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("marshal admin session: %w", err)
	}

	ttl := session.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("admin session already expired: %w", sentinel.ErrExpired)
	}
	if err := s.client.Set(ctx, keyPrefix+session.Token, payload, ttl).Err(); err != nil {
		return fmt.Errorf("store admin session: %w", err)
	}
	return nil
}

func (s *Store) Find(ctx context.Context, token string) (*admin.Session, error) {
	payload, err := s.client.Get(ctx, keyPrefix+token).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, fmt.Errorf("admin session not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("fetch admin session: %w", err)
	}

	var rec record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal admin session: %w", err)
	}
	return &admin.Session{
		Token:     token,
		Device:    rec.Device,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

func (s *Store) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, keyPrefix+token).Err(); err != nil {
		return fmt.Errorf("delete admin session: %w", err)
	}
	return nil
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fortuna/internal/admin"
	"fortuna/pkg/platform/sentinel"
)

// Store persists admin sessions in PostgreSQL. This is the default backend;
// rows outlive restarts, which is the point of a durable admin session.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL admin session store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, session *admin.Session) error {
	query := `
		INSERT INTO admin_sessions (token, device, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.db.ExecContext(ctx, query,
		session.Token,
		session.Device,
		session.CreatedAt,
		session.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert admin session: %w", err)
	}
	return nil
}

func (s *Store) Find(ctx context.Context, token string) (*admin.Session, error) {
	query := `
		SELECT token, device, created_at, expires_at
		FROM admin_sessions
		WHERE token = $1
	`
	var session admin.Session
	err := s.db.QueryRowContext(ctx, query, token).
		Scan(&session.Token, &session.Device, &session.CreatedAt, &session.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("admin session not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan admin session: %w", err)
	}
	return &session, nil
}

func (s *Store) Delete(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM admin_sessions WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("delete admin session: %w", err)
	}
	return nil
}

//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"fortuna/internal/admin"
	adminredis "fortuna/internal/admin/store/redis"
	platformredis "fortuna/internal/platform/redis"
	"fortuna/pkg/platform/sentinel"
	"fortuna/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *adminredis.Store
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	client, err := platformredis.New(context.Background(), s.redis.Addr)
	s.Require().NoError(err)
	s.store = adminredis.New(client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) newSession(ttl time.Duration) *admin.Session {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &admin.Session{
		Token:     uuid.NewString(),
		Device:    "Chrome 120 / Mac OS X",
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func (s *RedisStoreSuite) TestCreateAndFind() {
	ctx := context.Background()
	session := s.newSession(12 * time.Hour)

	s.Require().NoError(s.store.Create(ctx, session))

	got, err := s.store.Find(ctx, session.Token)
	s.Require().NoError(err)
	s.Equal(session.Device, got.Device)
	s.True(got.ExpiresAt.Equal(session.ExpiresAt))
}

func (s *RedisStoreSuite) TestFindUnknown() {
	_, err := s.store.Find(context.Background(), uuid.NewString())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestCreateRejectsLapsedSession() {
	session := s.newSession(-time.Minute)
	err := s.store.Create(context.Background(), session)
	s.ErrorIs(err, sentinel.ErrExpired)
}

func (s *RedisStoreSuite) TestKeyLapsesWithTTL() {
	ctx := context.Background()
	session := s.newSession(time.Second)
	s.Require().NoError(s.store.Create(ctx, session))

	s.Eventually(func() bool {
		_, err := s.store.Find(ctx, session.Token)
		return err != nil
	}, 5*time.Second, 100*time.Millisecond)
}

func (s *RedisStoreSuite) TestDelete() {
	ctx := context.Background()
	session := s.newSession(time.Hour)
	s.Require().NoError(s.store.Create(ctx, session))

	s.Require().NoError(s.store.Delete(ctx, session.Token))
	_, err := s.store.Find(ctx, session.Token)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

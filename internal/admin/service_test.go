package admin

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fortuna/internal/audit"
	"fortuna/internal/platform/metrics"
	domainerrors "fortuna/pkg/domain-errors"
	"fortuna/pkg/platform/sentinel"
)

const testPassword = "vector-secret"

type memoryStore struct {
	sessions map[string]*Session
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sessions: make(map[string]*Session)}
}

func (s *memoryStore) Create(_ context.Context, session *Session) error {
	stored := *session
	s.sessions[session.Token] = &stored
	return nil
}

func (s *memoryStore) Find(_ context.Context, token string) (*Session, error) {
	session, ok := s.sessions[token]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *session
	return &out, nil
}

func (s *memoryStore) Delete(_ context.Context, token string) error {
	delete(s.sessions, token)
	return nil
}

type adminFixture struct {
	service *Service
	store   *memoryStore
	clock   time.Time
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()

	hash, err := HashPassword(testPassword)
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &adminFixture{
		store: newMemoryStore(),
		clock: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.service = NewService(f.store, hash, 12*time.Hour,
		audit.NewRecorder(16, log), metrics.New(prometheus.NewRegistry()), log,
		WithClock(func() time.Time { return f.clock }))
	return f
}

func TestLoginMintsSession(t *testing.T) {
	f := newAdminFixture(t)

	session, err := f.service.Login(context.Background(), testPassword,
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	require.NoError(t, err)

	assert.Len(t, session.Token, 32)
	assert.Equal(t, f.clock, session.CreatedAt)
	assert.Equal(t, f.clock.Add(12*time.Hour), session.ExpiresAt)
	assert.Contains(t, session.Device, "Chrome")

	// The session is durable.
	_, err = f.store.Find(context.Background(), session.Token)
	require.NoError(t, err)
}

func TestLoginWrongPassword(t *testing.T) {
	f := newAdminFixture(t)

	_, err := f.service.Login(context.Background(), "wrong", "")
	require.Error(t, err)
	assert.Equal(t, domainerrors.CodeUnauthorized, domainerrors.CodeOf(err))
	assert.Empty(t, f.store.sessions)
}

func TestAuthenticateRoundTrip(t *testing.T) {
	f := newAdminFixture(t)

	session, err := f.service.Login(context.Background(), testPassword, "")
	require.NoError(t, err)

	got, err := f.service.Authenticate(context.Background(), session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.Token, got.Token)
}

func TestAuthenticateRejects(t *testing.T) {
	f := newAdminFixture(t)

	session, err := f.service.Login(context.Background(), testPassword, "")
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		advance time.Duration
	}{
		{name: "empty token", token: ""},
		{name: "unknown token", token: "deadbeefdeadbeefdeadbeefdeadbeef"},
		{name: "expired session", token: session.Token, advance: 13 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.clock = f.clock.Add(tt.advance)
			_, err := f.service.Authenticate(context.Background(), tt.token)
			require.Error(t, err)
			assert.Equal(t, domainerrors.CodeUnauthorized, domainerrors.CodeOf(err))
		})
	}
}

func TestDeviceSummaryEmptyHeader(t *testing.T) {
	assert.Equal(t, "", deviceSummary(""))
}

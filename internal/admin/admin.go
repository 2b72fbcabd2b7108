// Package admin is the staff-side trust domain. Unlike visitor tokens, admin
// sessions are durable server-side rows looked up on every request, so a
// session is revocable in principle by deleting its row. No endpoint does
// that today: expiry is the only termination path, a known gap carried over
// deliberately rather than papered over with a guessed logout flow.
package admin

import (
	"context"
	"time"
)

// Session is one durable admin login.
type Session struct {
	Token     string
	Device    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Store persists admin sessions.
//
// Error contract: sentinel.ErrNotFound for unknown tokens, wrapped errors for
// infrastructure failures.
type Store interface {
	Create(ctx context.Context, session *Session) error
	Find(ctx context.Context, token string) (*Session, error)
	Delete(ctx context.Context, token string) error
}

package admin

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mssola/useragent"
	"golang.org/x/crypto/bcrypt"

	"fortuna/internal/audit"
	"fortuna/internal/platform/metrics"
	domainerrors "fortuna/pkg/domain-errors"
	"fortuna/pkg/platform/sentinel"
)

// tokenBytes is the random length of an admin session token; hex-encoded it
// yields 32 characters.
const tokenBytes = 16

// Service gates admin access: a shared password mints a durable session, and
// every admin request is authorized by looking that session up again.
type Service struct {
	store        Store
	passwordHash []byte
	ttl          time.Duration
	audit        *audit.Recorder
	metrics      *metrics.Metrics
	log          *slog.Logger
	now          func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock function for testability.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the admin gate. passwordHash is a bcrypt hash.
func NewService(store Store, passwordHash string, ttl time.Duration, rec *audit.Recorder, m *metrics.Metrics, log *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:        store,
		passwordHash: []byte(passwordHash),
		ttl:          ttl,
		audit:        rec,
		metrics:      m,
		log:          log,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HashPassword bcrypt-hashes a plaintext admin password. Used at startup when
// only a plaintext password is configured.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash admin password: %w", err)
	}
	return string(hashed), nil
}

// Login verifies the shared password and mints a session. A failed login
// creates nothing and reports only unauthorized.
func (s *Service) Login(ctx context.Context, password, userAgentHeader string) (*Session, error) {
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil {
		s.metrics.AdminLogins.WithLabelValues("denied").Inc()
		s.log.WarnContext(ctx, "admin login denied")
		return nil, domainerrors.New(domainerrors.CodeUnauthorized, "invalid password")
	}

	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "mint admin token")
	}

	now := s.now()
	session := &Session{
		Token:     hex.EncodeToString(buf),
		Device:    deviceSummary(userAgentHeader),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.Create(ctx, session); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "persist admin session")
	}

	s.metrics.AdminLogins.WithLabelValues("granted").Inc()
	s.audit.Record(nil, audit.EventAdminLogin, map[string]any{"device": session.Device})
	return session, nil
}

// Authenticate authorizes one admin request by durable lookup. Missing,
// unknown, and expired tokens are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, domainerrors.New(domainerrors.CodeUnauthorized, "admin session required")
	}

	session, err := s.store.Find(ctx, token)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domainerrors.New(domainerrors.CodeUnauthorized, "admin session required")
		}
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "lookup admin session")
	}
	if session.Expired(s.now()) {
		return nil, domainerrors.New(domainerrors.CodeUnauthorized, "admin session expired")
	}
	return session, nil
}

// deviceSummary condenses a User-Agent header into "browser / os" for the
// session record. Unparseable agents degrade to the raw header.
func deviceSummary(header string) string {
	if header == "" {
		return ""
	}
	ua := useragent.New(header)
	name, version := ua.Browser()
	if name == "" {
		return header
	}
	if os := ua.OS(); os != "" {
		return fmt.Sprintf("%s %s / %s", name, version, os)
	}
	return fmt.Sprintf("%s %s", name, version)
}

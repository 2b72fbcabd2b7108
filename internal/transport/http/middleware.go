package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"fortuna/internal/admin"
	"fortuna/internal/identity"
	domainerrors "fortuna/pkg/domain-errors"
)

// Cookie names for the two trust domains.
const (
	visitorCookie = "wheel_session"
	adminCookie   = "wheel_admin"
)

type ctxKey int

const (
	identityKey ctxKey = iota
	adminSessionKey
)

func identityFrom(ctx context.Context) *identity.Identity {
	ident, _ := ctx.Value(identityKey).(*identity.Identity)
	return ident
}

func adminSessionFrom(ctx context.Context) *admin.Session {
	session, _ := ctx.Value(adminSessionKey).(*admin.Session)
	return session
}

// requireVisitor verifies the visitor session cookie and loads the identity
// it names. A verified token pointing at no row is treated the same as no
// token at all.
func (s *Server) requireVisitor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(visitorCookie)
		if err != nil {
			writeError(w, r, s.log, domainerrors.New(domainerrors.CodeUnauthorized, "session required"))
			return
		}

		id, err := s.tokens.Verify(cookie.Value)
		if err != nil {
			writeError(w, r, s.log, err)
			return
		}

		ident, err := s.identities.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, s.log, err)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, ident)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin authorizes staff requests by durable session lookup.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var token string
		if cookie, err := r.Cookie(adminCookie); err == nil {
			token = cookie.Value
		}

		session, err := s.admins.Authenticate(r.Context(), token)
		if err != nil {
			writeError(w, r, s.log, err)
			return
		}

		ctx := context.WithValue(r.Context(), adminSessionKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// logRequests emits one structured line per completed request.
func logRequests(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.InfoContext(r.Context(), "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

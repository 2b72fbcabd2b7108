// Package http is the HTTP edge of the service. It owns cookies, request
// decoding, and the error envelope; all decisions live in the services it
// fronts.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fortuna/internal/admin"
	couponservice "fortuna/internal/coupon/service"
	"fortuna/internal/identity"
	"fortuna/internal/token"
	"fortuna/internal/wheel"
)

// HealthFunc reports backend health for the readiness endpoint. Nil means
// always healthy (memory-backed deployments).
type HealthFunc func(ctx context.Context) error

// Server bundles the services behind the HTTP API.
type Server struct {
	identities *identity.Service
	wheel      *wheel.Service
	coupons    *couponservice.Redemption
	admins     *admin.Service
	tokens     *token.Codec
	gatherer   prometheus.Gatherer
	health     HealthFunc
	log        *slog.Logger
	now        func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithClock sets the clock function for testability.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// NewServer wires the HTTP edge.
func NewServer(
	identities *identity.Service,
	wheelSvc *wheel.Service,
	coupons *couponservice.Redemption,
	admins *admin.Service,
	tokens *token.Codec,
	gatherer prometheus.Gatherer,
	health HealthFunc,
	log *slog.Logger,
	opts ...Option,
) *Server {
	s := &Server{
		identities: identities,
		wheel:      wheelSvc,
		coupons:    coupons,
		admins:     admins,
		tokens:     tokens,
		gatherer:   gatherer,
		health:     health,
		log:        log,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(logRequests(s.log))

	r.Route("/api", func(r chi.Router) {
		r.Post("/identify", s.handleIdentify)
		r.Post("/admin/login", s.handleAdminLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireVisitor)
			r.Get("/me", s.handleMe)
			r.Post("/wheel/spin", s.handleSpin)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/coupons", s.handleListCoupons)
			r.Post("/coupons/{id}/use", s.handleUseCoupon)
			r.Get("/coupons/verify", s.handleVerifyCoupon)
		})
	})

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return r
}

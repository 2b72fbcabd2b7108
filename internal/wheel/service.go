package wheel

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"fortuna/internal/audit"
	"fortuna/internal/coupon"
	"fortuna/internal/identity"
	"fortuna/internal/platform/metrics"
	"fortuna/internal/ratelimit"
	"fortuna/pkg/domain"
	domainerrors "fortuna/pkg/domain-errors"
	"fortuna/pkg/platform/sentinel"
)

// maxMintAttempts bounds the code-collision retry loop. The code space makes
// exhaustion effectively unreachable, but the loop must terminate and the
// failure must be observable.
const maxMintAttempts = 5

// Result is what a successful spin returns to the visitor.
type Result struct {
	DiscountPercent int
	Code            string
	IssuedAt        time.Time
	ExpiresAt       time.Time
	NextSpinAt      time.Time
}

// Service authorizes spins. Per request it runs, in order: the process-local
// burst gate, the durable cooldown gate, the weighted draw, and the atomic
// issuance (coupon insert + conditional cooldown advance + spin audit event).
type Service struct {
	coupons  coupon.Store
	limiter  *ratelimit.IntervalLimiter
	selector *Selector
	minter   Minter
	cooldown time.Duration
	lifetime time.Duration
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
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

// NewService wires the spin authorizer.
func NewService(
	coupons coupon.Store,
	limiter *ratelimit.IntervalLimiter,
	selector *Selector,
	minter Minter,
	cooldown, lifetime time.Duration,
	m *metrics.Metrics,
	log *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		coupons:  coupons,
		limiter:  limiter,
		selector: selector,
		minter:   minter,
		cooldown: cooldown,
		lifetime: lifetime,
		metrics:  m,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NextSpinAt reports when the identity may spin again, or nil if it may spin
// now (or has never spun).
func (s *Service) NextSpinAt(ident *identity.Identity) *time.Time {
	if ident.LastSpinAt == nil {
		return nil
	}
	next := ident.LastSpinAt.Add(s.cooldown)
	return &next
}

// Spin runs the full authorization and issuance sequence for one identity.
// The identity snapshot is the caller's read; the store re-checks the
// cooldown timestamp at write time so a stale snapshot cannot double-issue.
func (s *Service) Spin(ctx context.Context, ident *identity.Identity) (*Result, error) {
	if !s.limiter.Allow(ident.ID) {
		s.metrics.SpinsTotal.WithLabelValues(metrics.OutcomeRateLimited).Inc()
		return nil, domainerrors.New(domainerrors.CodeTooManyRequests, "too many spin attempts")
	}

	now := s.now()
	if ident.LastSpinAt != nil {
		nextAllowed := ident.LastSpinAt.Add(s.cooldown)
		if now.Before(nextAllowed) {
			s.metrics.SpinsTotal.WithLabelValues(metrics.OutcomeCooldown).Inc()
			return nil, domainerrors.New(domainerrors.CodeCooldownActive, "spin cooldown active").
				WithField("next_spin_at", nextAllowed)
		}
	}

	discount := s.selector.Pick()
	expiresAt := now.Add(s.lifetime)
	nextSpinAt := now.Add(s.cooldown)

	for attempt := 1; attempt <= maxMintAttempts; attempt++ {
		code, err := s.minter.Generate()
		if err != nil {
			s.metrics.SpinsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
			return nil, domainerrors.Wrap(err, domainerrors.CodeIssuanceFailed, "mint coupon code")
		}

		c := &coupon.Coupon{
			ID:              domain.NewCouponID(),
			OwnerID:         ident.ID,
			DiscountPercent: discount,
			Code:            code,
			IssuedAt:        now,
			ExpiresAt:       expiresAt,
			Status:          coupon.StatusActive,
		}
		event := audit.NewEvent(&ident.ID, audit.EventSpin, now, map[string]any{
			"discount": discount,
			"code":     code,
		})

		err = s.coupons.IssueWithSpin(ctx, c, ident.LastSpinAt, event)
		switch {
		case err == nil:
			spunAt := now
			ident.LastSpinAt = &spunAt
			s.metrics.SpinsTotal.WithLabelValues(metrics.OutcomeIssued).Inc()
			s.metrics.CouponsIssued.Inc()
			s.log.InfoContext(ctx, "coupon issued",
				"identity_id", ident.ID.String(),
				"coupon_id", c.ID.String(),
				"discount", discount,
			)
			return &Result{
				DiscountPercent: discount,
				Code:            code,
				IssuedAt:        now,
				ExpiresAt:       expiresAt,
				NextSpinAt:      nextSpinAt,
			}, nil

		case errors.Is(err, sentinel.ErrConflict):
			// Code collision; regenerate and retry.
			s.log.WarnContext(ctx, "coupon code collision", "attempt", attempt)
			continue

		case errors.Is(err, sentinel.ErrInvalidState):
			// A concurrent spin for this identity won the conditional
			// advance; from this request's perspective the cooldown just
			// started.
			s.metrics.SpinsTotal.WithLabelValues(metrics.OutcomeCooldown).Inc()
			return nil, domainerrors.New(domainerrors.CodeCooldownActive, "spin cooldown active").
				WithField("next_spin_at", nextSpinAt)

		default:
			s.metrics.SpinsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
			return nil, domainerrors.Wrap(err, domainerrors.CodeIssuanceFailed, "persist coupon")
		}
	}

	s.metrics.SpinsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
	return nil, domainerrors.New(domainerrors.CodeCodeExhausted, "could not mint a unique coupon code")
}

// Package service holds the redemption side of the coupon lifecycle: the
// staff-facing verification queries and the single irreversible active→used
// transition.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"fortuna/internal/audit"
	"fortuna/internal/coupon"
	"fortuna/internal/platform/metrics"
	"fortuna/pkg/domain"
	domainerrors "fortuna/pkg/domain-errors"
	"fortuna/pkg/platform/sentinel"
)

// VerifyStatusInvalid is reported for codes that match no coupon.
const VerifyStatusInvalid = "invalid"

// VerifyResult is the answer to a verification query.
type VerifyResult struct {
	Status string
	Coupon *coupon.Coupon
}

// Redemption guards coupon state transitions and answers verification
// queries. Every read path runs the lazy expiry sweep first so callers never
// act on a stale active flag; there is deliberately no background sweep.
type Redemption struct {
	store   coupon.Store
	audit   *audit.Recorder
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
}

// Option configures a Redemption service.
type Option func(*Redemption)

// WithClock sets the clock function for testability.
func WithClock(now func() time.Time) Option {
	return func(r *Redemption) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRedemption wires the redemption service.
func NewRedemption(store coupon.Store, rec *audit.Recorder, m *metrics.Metrics, log *slog.Logger, opts ...Option) *Redemption {
	r := &Redemption{
		store:   store,
		audit:   rec,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MarkUsed transitions one coupon from active to used. Exactly one of two
// concurrent calls succeeds; the loser observes invalid_state.
func (r *Redemption) MarkUsed(ctx context.Context, id domain.CouponID) error {
	now := r.now()
	if err := r.sweep(ctx, now); err != nil {
		return err
	}

	err := r.store.MarkUsed(ctx, id, now)
	switch {
	case err == nil:
		r.metrics.CouponsRedeemed.Inc()
		oid := (*domain.IdentityID)(nil)
		if c, findErr := r.store.FindByID(ctx, id); findErr == nil {
			oid = &c.OwnerID
		}
		r.audit.Record(oid, audit.EventCouponUsed, map[string]any{"coupon_id": id.String()})
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return domainerrors.New(domainerrors.CodeNotFound, "coupon not found")
	case errors.Is(err, sentinel.ErrInvalidState):
		return domainerrors.New(domainerrors.CodeInvalidState, "coupon already closed")
	default:
		return domainerrors.Wrap(err, domainerrors.CodeInternal, "mark coupon used")
	}
}

// Verify looks a coupon up by code and reports its post-sweep status. Unknown
// codes report "invalid" rather than an error; staff type these by hand.
func (r *Redemption) Verify(ctx context.Context, code string) (*VerifyResult, error) {
	if code == "" {
		return nil, domainerrors.New(domainerrors.CodeInvalidInput, "code is required")
	}
	if err := r.sweep(ctx, r.now()); err != nil {
		return nil, err
	}

	c, err := r.store.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return &VerifyResult{Status: VerifyStatusInvalid}, nil
		}
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "lookup coupon")
	}
	return &VerifyResult{Status: string(c.Status), Coupon: c}, nil
}

// ListAll returns every coupon with its owner for the admin view.
func (r *Redemption) ListAll(ctx context.Context) ([]coupon.OwnedCoupon, error) {
	if err := r.sweep(ctx, r.now()); err != nil {
		return nil, err
	}
	out, err := r.store.ListAll(ctx)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "list coupons")
	}
	return out, nil
}

// ListActiveForOwner returns the visitor's active coupons, newest first.
func (r *Redemption) ListActiveForOwner(ctx context.Context, ownerID domain.IdentityID) ([]coupon.Coupon, error) {
	if err := r.sweep(ctx, r.now()); err != nil {
		return nil, err
	}
	out, err := r.store.ListActiveByOwner(ctx, ownerID)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "list coupons")
	}
	return out, nil
}

func (r *Redemption) sweep(ctx context.Context, now time.Time) error {
	flipped, err := r.store.ExpireDue(ctx, now)
	if err != nil {
		return domainerrors.Wrap(err, domainerrors.CodeInternal, "expire due coupons")
	}
	if flipped > 0 {
		r.metrics.CouponsExpired.Add(float64(flipped))
	}
	return nil
}

// Package coupon defines the discount coupon aggregate and its store
// contract. A coupon is a single-use, time-bounded grant owned by exactly one
// identity; its status only ever moves active→used or active→expired and a
// coupon row is never deleted.
package coupon

import (
	"context"
	"time"

	"fortuna/internal/audit"
	"fortuna/pkg/domain"
)

// Status is the coupon lifecycle state.
type Status string

const (
	StatusActive  Status = "active"
	StatusUsed    Status = "used"
	StatusExpired Status = "expired"
)

// Coupon is one issued discount grant.
type Coupon struct {
	ID              domain.CouponID
	OwnerID         domain.IdentityID
	DiscountPercent int
	Code            string
	IssuedAt        time.Time
	ExpiresAt       time.Time
	Status          Status
	UsedAt          *time.Time
}

// Expired reports whether the coupon is past its expiry at the given instant,
// regardless of the persisted status flag. Readers that bypass the lazy sweep
// must use this rather than trusting a stale active status.
func (c *Coupon) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// OwnedCoupon is a coupon joined with its owner's external client id, for the
// admin listing.
type OwnedCoupon struct {
	Coupon
	OwnerExternalID string
}

// Store persists coupons.
//
// Error contract: sentinel.ErrNotFound for missing rows, sentinel.ErrConflict
// when a coupon code is already taken, sentinel.ErrInvalidState for rejected
// status transitions or a lost last-spin race.
type Store interface {
	// IssueWithSpin is the spin commit point: atomically insert the coupon,
	// advance the owner's last_spin_at from prevSpinAt to the coupon's
	// IssuedAt, and append the spin audit event. Either all three land or
	// none do; a crash in between must not grant a coupon without advancing
	// the cooldown, nor advance the cooldown without a coupon.
	IssueWithSpin(ctx context.Context, c *Coupon, prevSpinAt *time.Time, event audit.Event) error

	FindByID(ctx context.Context, id domain.CouponID) (*Coupon, error)
	FindByCode(ctx context.Context, code string) (*Coupon, error)

	// ListActiveByOwner returns the owner's active coupons, newest first.
	ListActiveByOwner(ctx context.Context, ownerID domain.IdentityID) ([]Coupon, error)

	// ListAll returns every coupon joined with its owner, newest first.
	ListAll(ctx context.Context) ([]OwnedCoupon, error)

	// MarkUsed transitions active→used at usedAt. The transition must be a
	// single conditional write so two concurrent redemptions cannot both
	// succeed.
	MarkUsed(ctx context.Context, id domain.CouponID, usedAt time.Time) error

	// ExpireDue flips active coupons whose expires_at has passed to expired
	// and returns how many it flipped. This is the lazy expiry sweep; every
	// read path runs it first so no caller observes a stale active flag.
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}

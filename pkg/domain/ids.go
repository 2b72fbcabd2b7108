// Package domain holds typed identifiers shared across the service. Typed
// wrappers keep identity and coupon ids from being swapped accidentally at
// call sites.
package domain

import "github.com/google/uuid"

// IdentityID identifies one visitor identity.
type IdentityID uuid.UUID

// CouponID identifies one issued coupon.
type CouponID uuid.UUID

// NewIdentityID returns a fresh random identity id.
func NewIdentityID() IdentityID { return IdentityID(uuid.New()) }

// NewCouponID returns a fresh random coupon id.
func NewCouponID() CouponID { return CouponID(uuid.New()) }

// ParseIdentityID constructs an IdentityID from external input.
func ParseIdentityID(s string) (IdentityID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return IdentityID{}, err
	}
	return IdentityID(u), nil
}

// ParseCouponID constructs a CouponID from external input.
func ParseCouponID(s string) (CouponID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return CouponID{}, err
	}
	return CouponID(u), nil
}

func (id IdentityID) String() string { return uuid.UUID(id).String() }
func (id IdentityID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id CouponID) String() string { return uuid.UUID(id).String() }
func (id CouponID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

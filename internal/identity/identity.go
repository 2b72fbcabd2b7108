// Package identity binds anonymous visitors to durable server-side records.
// A visitor presents an opaque client-generated external id; the service pins
// it to one Identity row that owns all coupons issued to that visitor.
package identity

import (
	"context"
	"time"

	"fortuna/pkg/domain"
)

// Identity is one visitor. LastSpinAt is nil until the first successful spin
// and only ever advances; it is the durable cooldown anchor.
type Identity struct {
	ID         domain.IdentityID
	ExternalID string
	CreatedAt  time.Time
	LastSpinAt *time.Time
}

// Store persists identities.
//
// Error contract: sentinel.ErrNotFound for missing rows, sentinel.ErrConflict
// for duplicate external ids, sentinel.ErrInvalidState when AdvanceLastSpin
// loses a race, wrapped errors for infrastructure failures.
type Store interface {
	Create(ctx context.Context, ident *Identity) error
	FindByID(ctx context.Context, id domain.IdentityID) (*Identity, error)
	FindByExternalID(ctx context.Context, externalID string) (*Identity, error)

	// AdvanceLastSpin sets last_spin_at to spunAt only when the stored value
	// still equals prev (nil meaning never spun). The conditional write is
	// what serializes concurrent spins for one identity: of two racing
	// requests that both passed the cooldown read, exactly one advance
	// succeeds and the other observes sentinel.ErrInvalidState.
	AdvanceLastSpin(ctx context.Context, id domain.IdentityID, prev *time.Time, spunAt time.Time) error
}

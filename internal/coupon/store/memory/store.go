package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fortuna/internal/audit"
	"fortuna/internal/coupon"
	identitymemory "fortuna/internal/identity/store/memory"
	"fortuna/pkg/domain"
	"fortuna/pkg/platform/sentinel"
)

// Store keeps coupons in memory for tests and development. It leans on the
// in-memory identity store for the conditional last-spin advance and on the
// audit store for the in-unit spin event, mirroring what the postgres store
// does inside one transaction.
type Store struct {
	mu         sync.Mutex
	byID       map[domain.CouponID]*coupon.Coupon
	byCode     map[string]domain.CouponID
	identities *identitymemory.Store
	audit      audit.Store
}

// New constructs an empty in-memory coupon store.
func New(identities *identitymemory.Store, auditStore audit.Store) *Store {
	return &Store{
		byID:       make(map[domain.CouponID]*coupon.Coupon),
		byCode:     make(map[string]domain.CouponID),
		identities: identities,
		audit:      auditStore,
	}
}

func (s *Store) IssueWithSpin(ctx context.Context, c *coupon.Coupon, prevSpinAt *time.Time, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byCode[c.Code]; taken {
		return fmt.Errorf("coupon code taken: %w", sentinel.ErrConflict)
	}
	if err := s.identities.AdvanceLastSpin(ctx, c.OwnerID, prevSpinAt, c.IssuedAt); err != nil {
		return err
	}

	stored := *c
	s.byID[c.ID] = &stored
	s.byCode[c.Code] = c.ID
	return s.audit.Append(ctx, event)
}

func (s *Store) FindByID(_ context.Context, id domain.CouponID) (*coupon.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("coupon not found: %w", sentinel.ErrNotFound)
	}
	out := *c
	return &out, nil
}

func (s *Store) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byCode[code]
	if !ok {
		return nil, fmt.Errorf("coupon not found: %w", sentinel.ErrNotFound)
	}
	out := *s.byID[id]
	return &out, nil
}

func (s *Store) ListActiveByOwner(_ context.Context, ownerID domain.IdentityID) ([]coupon.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []coupon.Coupon
	for _, c := range s.byID {
		if c.OwnerID == ownerID && c.Status == coupon.StatusActive {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.After(out[j].IssuedAt) })
	return out, nil
}

func (s *Store) ListAll(ctx context.Context) ([]coupon.OwnedCoupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []coupon.OwnedCoupon
	for _, c := range s.byID {
		owner, err := s.identities.FindByID(ctx, c.OwnerID)
		if err != nil {
			return nil, err
		}
		out = append(out, coupon.OwnedCoupon{Coupon: *c, OwnerExternalID: owner.ExternalID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.After(out[j].IssuedAt) })
	return out, nil
}

func (s *Store) MarkUsed(_ context.Context, id domain.CouponID, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("coupon not found: %w", sentinel.ErrNotFound)
	}
	if c.Status != coupon.StatusActive {
		return fmt.Errorf("coupon already closed: %w", sentinel.ErrInvalidState)
	}
	t := usedAt
	c.Status = coupon.StatusUsed
	c.UsedAt = &t
	return nil
}

func (s *Store) ExpireDue(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var flipped int64
	for _, c := range s.byID {
		if c.Status == coupon.StatusActive && c.ExpiresAt.Before(now) {
			c.Status = coupon.StatusExpired
			flipped++
		}
	}
	return flipped, nil
}

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"fortuna/internal/audit"
	auditmemory "fortuna/internal/audit/store/memory"
	"fortuna/internal/coupon"
	"fortuna/internal/identity"
	identitymemory "fortuna/internal/identity/store/memory"
	"fortuna/pkg/domain"
	"fortuna/pkg/platform/sentinel"
)

type StoreSuite struct {
	suite.Suite
	store      *Store
	identities *identitymemory.Store
	audit      *auditmemory.Store
	ctx        context.Context
	now        time.Time
}

func (s *StoreSuite) SetupTest() {
	s.identities = identitymemory.New()
	s.audit = auditmemory.New()
	s.store = New(s.identities, s.audit)
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *StoreSuite) newOwner(externalID string) *identity.Identity {
	ident := &identity.Identity{
		ID:         domain.NewIdentityID(),
		ExternalID: externalID,
		CreatedAt:  s.now,
	}
	s.Require().NoError(s.identities.Create(s.ctx, ident))
	return ident
}

func (s *StoreSuite) newCoupon(owner *identity.Identity, code string) *coupon.Coupon {
	return &coupon.Coupon{
		ID:              domain.NewCouponID(),
		OwnerID:         owner.ID,
		DiscountPercent: 20,
		Code:            code,
		IssuedAt:        s.now,
		ExpiresAt:       s.now.Add(30 * 24 * time.Hour),
		Status:          coupon.StatusActive,
	}
}

func (s *StoreSuite) issue(owner *identity.Identity, c *coupon.Coupon, prev *time.Time) error {
	event := audit.NewEvent(&owner.ID, audit.EventSpin, c.IssuedAt, nil)
	return s.store.IssueWithSpin(s.ctx, c, prev, event)
}

func (s *StoreSuite) TestIssueWithSpin() {
	owner := s.newOwner("client-1")
	c := s.newCoupon(owner, "VC-00000001")

	s.Require().NoError(s.issue(owner, c, nil))

	stored, err := s.store.FindByCode(s.ctx, "VC-00000001")
	s.Require().NoError(err)
	s.Equal(c.ID, stored.ID)

	// The cooldown advanced with the insert.
	ident, err := s.identities.FindByID(s.ctx, owner.ID)
	s.Require().NoError(err)
	s.Require().NotNil(ident.LastSpinAt)
	s.True(ident.LastSpinAt.Equal(c.IssuedAt))

	// And the spin event landed.
	s.Len(s.audit.Events(), 1)
}

func (s *StoreSuite) TestIssueWithSpinDuplicateCode() {
	owner := s.newOwner("client-1")
	s.Require().NoError(s.issue(owner, s.newCoupon(owner, "VC-00000001"), nil))

	other := s.newOwner("client-2")
	err := s.issue(other, s.newCoupon(other, "VC-00000001"), nil)
	s.ErrorIs(err, sentinel.ErrConflict)

	// A rejected issuance must not advance the other owner's cooldown.
	ident, err := s.identities.FindByID(s.ctx, other.ID)
	s.Require().NoError(err)
	s.Nil(ident.LastSpinAt)
}

func (s *StoreSuite) TestIssueWithSpinStaleSnapshot() {
	owner := s.newOwner("client-1")
	s.Require().NoError(s.issue(owner, s.newCoupon(owner, "VC-00000001"), nil))

	// Second issuance from the same nil snapshot loses the cooldown race and
	// leaves no coupon behind.
	err := s.issue(owner, s.newCoupon(owner, "VC-00000002"), nil)
	s.ErrorIs(err, sentinel.ErrInvalidState)

	_, err = s.store.FindByCode(s.ctx, "VC-00000002")
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.Len(s.audit.Events(), 1)
}

func (s *StoreSuite) TestMarkUsed() {
	owner := s.newOwner("client-1")
	c := s.newCoupon(owner, "VC-00000001")
	s.Require().NoError(s.issue(owner, c, nil))

	usedAt := s.now.Add(time.Hour)
	s.Require().NoError(s.store.MarkUsed(s.ctx, c.ID, usedAt))

	stored, err := s.store.FindByID(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(coupon.StatusUsed, stored.Status)
	s.Require().NotNil(stored.UsedAt)
	s.True(stored.UsedAt.Equal(usedAt))

	// Only one of two redemptions can win.
	s.ErrorIs(s.store.MarkUsed(s.ctx, c.ID, usedAt), sentinel.ErrInvalidState)
}

func (s *StoreSuite) TestMarkUsedUnknown() {
	s.ErrorIs(s.store.MarkUsed(s.ctx, domain.NewCouponID(), s.now), sentinel.ErrNotFound)
}

func (s *StoreSuite) TestExpireDue() {
	owner := s.newOwner("client-1")

	due := s.newCoupon(owner, "VC-00000001")
	due.ExpiresAt = s.now.Add(time.Hour)
	s.Require().NoError(s.issue(owner, due, nil))

	prev := due.IssuedAt
	fresh := s.newCoupon(owner, "VC-00000002")
	s.Require().NoError(s.issue(owner, fresh, &prev))

	flipped, err := s.store.ExpireDue(s.ctx, s.now.Add(2*time.Hour))
	s.Require().NoError(err)
	s.Equal(int64(1), flipped)

	stored, err := s.store.FindByID(s.ctx, due.ID)
	s.Require().NoError(err)
	s.Equal(coupon.StatusExpired, stored.Status)

	// Already-flipped coupons are not counted again.
	flipped, err = s.store.ExpireDue(s.ctx, s.now.Add(3*time.Hour))
	s.Require().NoError(err)
	s.Zero(flipped)
}

func (s *StoreSuite) TestListActiveByOwnerOrdering() {
	owner := s.newOwner("client-1")

	first := s.newCoupon(owner, "VC-00000001")
	s.Require().NoError(s.issue(owner, first, nil))

	prev := first.IssuedAt
	second := s.newCoupon(owner, "VC-00000002")
	second.IssuedAt = s.now.Add(time.Hour)
	s.Require().NoError(s.issue(owner, second, &prev))

	coupons, err := s.store.ListActiveByOwner(s.ctx, owner.ID)
	s.Require().NoError(err)
	s.Require().Len(coupons, 2)
	s.Equal(second.ID, coupons[0].ID)
	s.Equal(first.ID, coupons[1].ID)
}

func (s *StoreSuite) TestListAllJoinsOwner() {
	owner := s.newOwner("client-1")
	s.Require().NoError(s.issue(owner, s.newCoupon(owner, "VC-00000001"), nil))

	owned, err := s.store.ListAll(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(owned, 1)
	s.Equal("client-1", owned[0].OwnerExternalID)
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

package wheel

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditmemory "fortuna/internal/audit/store/memory"
	couponmemory "fortuna/internal/coupon/store/memory"
	"fortuna/internal/identity"
	identitymemory "fortuna/internal/identity/store/memory"
	"fortuna/internal/platform/metrics"
	"fortuna/internal/ratelimit"
	"fortuna/pkg/domain"
	domainerrors "fortuna/pkg/domain-errors"
)

const (
	testCooldown = 7 * 24 * time.Hour
	testLifetime = 30 * 24 * time.Hour
)

type fixedMinter struct {
	code string
}

func (m *fixedMinter) Generate() (string, error) { return m.code, nil }

type spinFixture struct {
	service    *Service
	identities *identitymemory.Store
	coupons    *couponmemory.Store
	audit      *auditmemory.Store
	clock      time.Time
}

func newSpinFixture(t *testing.T, interval time.Duration, minter Minter) *spinFixture {
	t.Helper()

	identities := identitymemory.New()
	auditStore := auditmemory.New()
	coupons := couponmemory.New(identities, auditStore)

	selector, err := NewSelector(DefaultDiscounts, rand.NewSource(7))
	require.NoError(t, err)
	if minter == nil {
		minter = NewCodeGenerator()
	}

	f := &spinFixture{
		identities: identities,
		coupons:    coupons,
		audit:      auditStore,
		clock:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	now := func() time.Time { return f.clock }
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter := ratelimit.NewIntervalLimiter(interval, ratelimit.WithClock(now))
	f.service = NewService(coupons, limiter, selector, minter,
		testCooldown, testLifetime,
		metrics.New(prometheus.NewRegistry()), log,
		WithClock(now))
	return f
}

func (f *spinFixture) newIdentity(t *testing.T, externalID string) *identity.Identity {
	t.Helper()
	ident := &identity.Identity{
		ID:         domain.NewIdentityID(),
		ExternalID: externalID,
		CreatedAt:  f.clock,
	}
	require.NoError(t, f.identities.Create(context.Background(), ident))
	return ident
}

func TestSpinIssuesCoupon(t *testing.T) {
	f := newSpinFixture(t, 0, nil)
	ident := f.newIdentity(t, "client-1")

	result, err := f.service.Spin(context.Background(), ident)
	require.NoError(t, err)

	assert.Contains(t, []int{10, 15, 20, 30, 50}, result.DiscountPercent)
	assert.Regexp(t, codePattern, result.Code)
	assert.Equal(t, f.clock, result.IssuedAt)
	assert.Equal(t, f.clock.Add(testLifetime), result.ExpiresAt)
	assert.Equal(t, f.clock.Add(testCooldown), result.NextSpinAt)

	// The caller's snapshot reflects the advance.
	require.NotNil(t, ident.LastSpinAt)
	assert.Equal(t, f.clock, *ident.LastSpinAt)

	// And so does the store.
	stored, err := f.identities.FindByID(context.Background(), ident.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastSpinAt)
	assert.True(t, stored.LastSpinAt.Equal(f.clock))

	coupons, err := f.coupons.ListActiveByOwner(context.Background(), ident.ID)
	require.NoError(t, err)
	require.Len(t, coupons, 1)
	assert.Equal(t, result.Code, coupons[0].Code)

	// The spin event landed with the issuance.
	events := f.audit.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "spin", string(events[0].Type))
}

func TestSpinCooldownBlocks(t *testing.T) {
	f := newSpinFixture(t, 0, nil)
	ident := f.newIdentity(t, "client-1")

	_, err := f.service.Spin(context.Background(), ident)
	require.NoError(t, err)

	f.clock = f.clock.Add(time.Hour)
	_, err = f.service.Spin(context.Background(), ident)
	require.Error(t, err)
	assert.Equal(t, domainerrors.CodeCooldownActive, domainerrors.CodeOf(err))

	// The reported retry time is pinned to the first spin, not this attempt.
	fields := domainerrors.FieldsOf(err)
	require.Contains(t, fields, "next_spin_at")
	next, ok := fields["next_spin_at"].(time.Time)
	require.True(t, ok)
	assert.Equal(t, f.clock.Add(-time.Hour).Add(testCooldown), next)
}

func TestSpinAllowedAfterCooldown(t *testing.T) {
	f := newSpinFixture(t, 0, nil)
	ident := f.newIdentity(t, "client-1")

	_, err := f.service.Spin(context.Background(), ident)
	require.NoError(t, err)

	f.clock = f.clock.Add(testCooldown)
	_, err = f.service.Spin(context.Background(), ident)
	require.NoError(t, err)

	coupons, err := f.coupons.ListActiveByOwner(context.Background(), ident.ID)
	require.NoError(t, err)
	assert.Len(t, coupons, 2)
}

func TestSpinBurstIsRateLimited(t *testing.T) {
	f := newSpinFixture(t, 5*time.Second, nil)
	ident := f.newIdentity(t, "client-1")

	_, err := f.service.Spin(context.Background(), ident)
	require.NoError(t, err)

	// A rapid retry trips the burst gate before the cooldown check runs.
	_, err = f.service.Spin(context.Background(), ident)
	require.Error(t, err)
	assert.Equal(t, domainerrors.CodeTooManyRequests, domainerrors.CodeOf(err))
}

func TestSpinCodeExhaustion(t *testing.T) {
	f := newSpinFixture(t, 0, &fixedMinter{code: "VC-DEADBEEF"})

	first := f.newIdentity(t, "client-1")
	_, err := f.service.Spin(context.Background(), first)
	require.NoError(t, err)

	// Every mint attempt for the second identity collides with the code the
	// first one took.
	second := f.newIdentity(t, "client-2")
	_, err = f.service.Spin(context.Background(), second)
	require.Error(t, err)
	assert.Equal(t, domainerrors.CodeCodeExhausted, domainerrors.CodeOf(err))

	// The losing identity's cooldown did not advance.
	stored, err := f.identities.FindByID(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.LastSpinAt)
}

func TestConcurrentSpinsIssueExactlyOne(t *testing.T) {
	f := newSpinFixture(t, 0, nil)
	ident := f.newIdentity(t, "client-1")

	const workers = 8
	var wg sync.WaitGroup
	results := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Each worker acts on its own stale snapshot of the identity.
			snapshot := *ident
			_, results[i] = f.service.Spin(context.Background(), &snapshot)
		}(i)
	}
	wg.Wait()

	var issued, blocked int
	for _, err := range results {
		switch {
		case err == nil:
			issued++
		case domainerrors.CodeOf(err) == domainerrors.CodeCooldownActive:
			blocked++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, issued)
	assert.Equal(t, workers-1, blocked)

	coupons, err := f.coupons.ListActiveByOwner(context.Background(), ident.ID)
	require.NoError(t, err)
	assert.Len(t, coupons, 1)
}

func TestNextSpinAt(t *testing.T) {
	f := newSpinFixture(t, 0, nil)
	ident := f.newIdentity(t, "client-1")

	assert.Nil(t, f.service.NextSpinAt(ident))

	spun := f.clock
	ident.LastSpinAt = &spun
	next := f.service.NextSpinAt(ident)
	require.NotNil(t, next)
	assert.Equal(t, spun.Add(testCooldown), *next)
}

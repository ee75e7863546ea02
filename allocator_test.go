package voicepool_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineyio/voicepool"
	"github.com/ineyio/voicepool/policy"
)

// Test 1: the smallest credential that fits wins.
func TestAllocate_BestFit(t *testing.T) {
	f := newFixture(t, voicepool.Config{})
	f.add(t, "small", 500)
	f.add(t, "large", 9000)
	mid := f.add(t, "mid", 3000)

	c, err := f.pool.Allocate(context.Background(), 600)
	require.NoError(t, err)
	assert.Equal(t, mid.ID, c.ID)
	assert.Equal(t, int64(0), f.prov.UsageCalls())
}

// Test 2: excluded credentials are skipped even when they fit best.
func TestAllocate_ExclusionRespected(t *testing.T) {
	f := newFixture(t, voicepool.Config{})
	f.add(t, "small", 500)
	large := f.add(t, "large", 9000)
	mid := f.add(t, "mid", 3000)

	c, err := f.pool.Allocate(context.Background(), 600, mid.ID)
	require.NoError(t, err)
	assert.Equal(t, large.ID, c.ID)
}

// Test 3: best fit holds for random pools and exclusions.
func TestAllocate_BestFitProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for iter := 0; iter < 50; iter++ {
		f := newFixture(t, voicepool.Config{})
		n := 1 + rng.Intn(6)
		quotas := rng.Perm(100)[:n]

		var creds []voicepool.Credential
		for i, q := range quotas {
			creds = append(creds, f.add(t, string(rune('a'+i)), int64(q*100+1)))
		}
		required := int64(1 + rng.Intn(10000))

		var exclude []string
		for _, c := range creds {
			if rng.Intn(4) == 0 {
				exclude = append(exclude, c.ID)
			}
		}
		excluded := voicepool.NewExcludeSet(exclude...)

		var want *voicepool.Credential
		for i := range creds {
			c := creds[i]
			if excluded.Has(c.ID) || c.RemainingQuota < required {
				continue
			}
			if want == nil || c.RemainingQuota < want.RemainingQuota {
				want = &c
			}
		}

		got, err := f.pool.Allocate(context.Background(), required, exclude...)
		if want == nil {
			assert.ErrorIs(t, err, voicepool.ErrNoCredentialAvailable, "iter %d", iter)
			continue
		}
		require.NoError(t, err, "iter %d", iter)
		assert.Equal(t, want.ID, got.ID, "iter %d", iter)
		assert.False(t, excluded.Has(got.ID), "iter %d", iter)
	}
}

// Test 4: an inactive credential with enough recorded quota turns the failure
// into an actionable InsufficientQuota.
func TestAllocate_InsufficientQuotaWhenInactiveWouldFit(t *testing.T) {
	f := newFixture(t, voicepool.Config{})
	f.add(t, "empty-1", 0)
	f.add(t, "empty-2", 0)
	f.addInactive(t, "backup", 5000)

	_, err := f.pool.Allocate(context.Background(), 1000)
	require.Error(t, err)
	assert.ErrorIs(t, err, voicepool.ErrInsufficientQuota)
	assert.NotErrorIs(t, err, voicepool.ErrNoCredentialAvailable)

	var allocErr *voicepool.AllocationError
	require.True(t, errors.As(err, &allocErr))
	assert.Equal(t, "backup", allocErr.Label)
	assert.Equal(t, int64(1000), allocErr.Required)
	assert.Equal(t, int64(5000), allocErr.BestAvailable)
	assert.Contains(t, err.Error(), "reactivate")
}

// Test 5: nothing fits anywhere.
func TestAllocate_NoCredentialAvailable(t *testing.T) {
	f := newFixture(t, voicepool.Config{})
	f.add(t, "a", 100)
	f.addInactive(t, "b", 200)

	_, err := f.pool.Allocate(context.Background(), 1000)
	assert.ErrorIs(t, err, voicepool.ErrNoCredentialAvailable)

	var allocErr *voicepool.AllocationError
	require.True(t, errors.As(err, &allocErr))
	assert.Equal(t, int64(100), allocErr.BestAvailable)
}

// Test 6: an inactive credential counts for InsufficientQuota even when excluded.
func TestAllocate_ExcludedInactiveStillReported(t *testing.T) {
	f := newFixture(t, voicepool.Config{})
	f.add(t, "a", 0)
	backup := f.addInactive(t, "backup", 5000)

	_, err := f.pool.Allocate(context.Background(), 1000, backup.ID)
	assert.ErrorIs(t, err, voicepool.ErrInsufficientQuota)

	var allocErr *voicepool.AllocationError
	require.True(t, errors.As(err, &allocErr))
	assert.Equal(t, "backup", allocErr.Label)
}

// Test 7: records past the bulk threshold are refreshed before filtering.
func TestAllocate_BulkSyncBeforeFiltering(t *testing.T) {
	f := newFixture(t, voicepool.Config{})
	drifted := f.addWithProvider(t, "drifted", 700, 100)
	large := f.add(t, "large", 9000)

	f.clock.Advance(2 * time.Hour)

	c, err := f.pool.Allocate(context.Background(), 600)
	require.NoError(t, err)
	assert.Equal(t, large.ID, c.ID)
	assert.Equal(t, int64(2), f.prov.UsageCalls())

	drifted = f.get(t, drifted.ID)
	assert.Equal(t, int64(100), drifted.RemainingQuota)
	assert.Equal(t, f.clock.Now(), drifted.LastSyncedAt)
}

// Test 8: a failed bulk sync keeps the stored record in play.
func TestAllocate_BulkSyncFailureKeepsRecord(t *testing.T) {
	f := newFixture(t, voicepool.Config{Allocation: voicepool.AllocationConfig{LazySyncAfter: 24 * time.Hour}})
	a := f.add(t, "a", 3000)
	f.prov.FailUsage(a.Secret, voicepool.ErrProviderUnavailable)

	f.clock.Advance(2 * time.Hour)

	c, err := f.pool.Allocate(context.Background(), 600)
	require.NoError(t, err)
	assert.Equal(t, a.ID, c.ID)
	assert.Equal(t, testEpoch, f.get(t, a.ID).LastSyncedAt)
}

// Test 9: a lazily synced candidate that no longer fits is passed over.
func TestAllocate_LazySyncMovesOn(t *testing.T) {
	cfg := voicepool.Config{Allocation: voicepool.AllocationConfig{
		BulkSyncAfter: 30 * 24 * time.Hour,
		LazySyncAfter: time.Hour,
	}}
	f := newFixture(t, cfg)
	drifted := f.addWithProvider(t, "drifted", 700, 100)
	mid := f.add(t, "mid", 3000)
	f.add(t, "large", 9000)

	f.clock.Advance(2 * time.Hour)

	c, err := f.pool.Allocate(context.Background(), 600)
	require.NoError(t, err)
	assert.Equal(t, mid.ID, c.ID)
	assert.Equal(t, 1, f.prov.UsageCallsFor(drifted.Secret))
	assert.Equal(t, 1, f.prov.UsageCallsFor(mid.Secret))
	assert.Equal(t, 0, f.prov.UsageCallsFor(secretFor("large")))
}

// Test 10: when nothing fits on record, a fresh sync can rescue the request.
func TestAllocate_RescueSync(t *testing.T) {
	m := &recordingMeter{}
	f := newFixture(t, voicepool.Config{}, voicepool.WithMeter(m))
	small := f.add(t, "small", 50)
	refilled := f.addWithProvider(t, "refilled", 100, 5000)

	c, err := f.pool.Allocate(context.Background(), 600)
	require.NoError(t, err)
	assert.Equal(t, refilled.ID, c.ID)
	assert.Equal(t, int64(5000), c.RemainingQuota)

	// Largest first: the small record is never synced once refilled fits.
	assert.Equal(t, 0, f.prov.UsageCallsFor(small.Secret))
	require.NotEmpty(t, m.allocates)
	assert.True(t, m.allocates[len(m.allocates)-1].Rescued)
}

// Test 11: strict mode holds quota until the lease ends.
func TestAcquire_StrictModeHoldsQuota(t *testing.T) {
	f := newFixture(t, voicepool.Config{Allocation: voicepool.AllocationConfig{Strict: true}})
	a := f.add(t, "a", 1000)
	ctx := context.Background()

	lease, err := f.pool.Acquire(ctx, 600, voicepool.NewExcludeSet())
	require.NoError(t, err)
	assert.Equal(t, a.ID, lease.Credential.ID)

	_, err = f.pool.Acquire(ctx, 600, voicepool.NewExcludeSet())
	assert.ErrorIs(t, err, voicepool.ErrNoCredentialAvailable)

	lease.Rollback()
	second, err := f.pool.Acquire(ctx, 600, voicepool.NewExcludeSet())
	require.NoError(t, err)

	require.NoError(t, second.Commit(ctx))
	assert.Equal(t, int64(400), f.get(t, a.ID).RemainingQuota)

	// Commit after commit is a no-op.
	require.NoError(t, second.Commit(ctx))
	assert.Equal(t, int64(400), f.get(t, a.ID).RemainingQuota)
}

// Test 12: optimistic mode lets concurrent requests share a credential.
func TestAcquire_OptimisticModeOverlaps(t *testing.T) {
	f := newFixture(t, voicepool.Config{})
	a := f.add(t, "a", 1000)
	ctx := context.Background()

	l1, err := f.pool.Acquire(ctx, 600, voicepool.NewExcludeSet())
	require.NoError(t, err)
	l2, err := f.pool.Acquire(ctx, 600, voicepool.NewExcludeSet())
	require.NoError(t, err)
	assert.Equal(t, a.ID, l1.Credential.ID)
	assert.Equal(t, a.ID, l2.Credential.ID)
}

func TestAllocate_RejectsNonPositive(t *testing.T) {
	f := newFixture(t, voicepool.Config{})
	f.add(t, "a", 1000)

	_, err := f.pool.Allocate(context.Background(), 0)
	assert.ErrorIs(t, err, voicepool.ErrInvalidRequest)
}

func TestAllocate_LargestFirstPolicy(t *testing.T) {
	f := newFixture(t, voicepool.Config{}, voicepool.WithPolicy(&policy.LargestFirstPolicy{}))
	f.add(t, "mid", 3000)
	large := f.add(t, "large", 9000)

	c, err := f.pool.Allocate(context.Background(), 600)
	require.NoError(t, err)
	assert.Equal(t, large.ID, c.ID)
}

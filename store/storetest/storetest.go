// Package storetest is a conformance suite for voicepool.CredentialStore
// implementations.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineyio/voicepool"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) voicepool.CredentialStore

// Run exercises every CredentialStore operation against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("CreateRejectsDuplicateSecret", func(t *testing.T) { testDuplicate(t, newStore(t)) })
	t.Run("CreateValidates", func(t *testing.T) { testCreateValidates(t, newStore(t)) })
	t.Run("ListOrderAndActive", func(t *testing.T) { testList(t, newStore(t)) })
	t.Run("SetActive", func(t *testing.T) { testSetActive(t, newStore(t)) })
	t.Run("UpsertQuotaKeepsNegative", func(t *testing.T) { testUpsert(t, newStore(t)) })
	t.Run("DecrementStampsLastUsed", func(t *testing.T) { testDecrement(t, newStore(t)) })
	t.Run("ConcurrentDecrement", func(t *testing.T) { testConcurrentDecrement(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("MissingCredential", func(t *testing.T) { testMissing(t, newStore(t)) })
}

func testCreateAndGet(t *testing.T, s voicepool.CredentialStore) {
	ctx := context.Background()

	c, err := s.Create(ctx, "main", "sk_main_0123456789", 10000)
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "main", c.Label)
	assert.Equal(t, "sk_main_0123456789", c.Secret)
	assert.Equal(t, int64(10000), c.RemainingQuota)
	assert.Equal(t, int64(10000), c.TotalQuota)
	assert.True(t, c.Active)
	assert.Nil(t, c.LastUsedAt)
	assert.False(t, c.CreatedAt.IsZero())
	assert.WithinDuration(t, c.CreatedAt, c.LastSyncedAt, time.Second)

	got, err := s.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, c.Secret, got.Secret)
	assert.Equal(t, c.RemainingQuota, got.RemainingQuota)
}

func testDuplicate(t *testing.T, s voicepool.CredentialStore) {
	ctx := context.Background()

	_, err := s.Create(ctx, "a", "sk_same_secret_value", 100)
	require.NoError(t, err)

	_, err = s.Create(ctx, "b", "sk_same_secret_value", 200)
	assert.ErrorIs(t, err, voicepool.ErrDuplicateCredential)

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testCreateValidates(t *testing.T, s voicepool.CredentialStore) {
	ctx := context.Background()

	_, err := s.Create(ctx, "", "sk_x", 100)
	assert.ErrorIs(t, err, voicepool.ErrInvalidCredential)
	_, err = s.Create(ctx, "x", "", 100)
	assert.ErrorIs(t, err, voicepool.ErrInvalidCredential)
	_, err = s.Create(ctx, "x", "sk_x", 0)
	assert.ErrorIs(t, err, voicepool.ErrInvalidCredential)
}

func testList(t *testing.T, s voicepool.CredentialStore) {
	ctx := context.Background()

	a := mustCreate(t, s, "a", 100)
	b := mustCreate(t, s, "b", 200)
	c := mustCreate(t, s, "c", 300)
	require.NoError(t, s.SetActive(ctx, b.ID, false))

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, ids(all))

	active, err := s.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, c.ID}, ids(active))
}

func testSetActive(t *testing.T, s voicepool.CredentialStore) {
	ctx := context.Background()
	c := mustCreate(t, s, "a", 100)

	require.NoError(t, s.SetActive(ctx, c.ID, false))
	got, err := s.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, int64(100), got.RemainingQuota)

	require.NoError(t, s.SetActive(ctx, c.ID, true))
	got, err = s.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)
}

func testUpsert(t *testing.T, s voicepool.CredentialStore) {
	ctx := context.Background()
	c := mustCreate(t, s, "a", 100)

	syncedAt := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, s.UpsertQuota(ctx, c.ID, voicepool.QuotaUpdate{
		Remaining: -25,
		Total:     5000,
		Active:    false,
		SyncedAt:  syncedAt,
	}))

	got, err := s.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(-25), got.RemainingQuota)
	assert.Equal(t, int64(0), got.Available())
	assert.Equal(t, int64(5000), got.TotalQuota)
	assert.False(t, got.Active)
	assert.WithinDuration(t, syncedAt, got.LastSyncedAt, time.Second)
}

func testDecrement(t *testing.T, s voicepool.CredentialStore) {
	ctx := context.Background()
	c := mustCreate(t, s, "a", 1000)

	usedAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.DecrementQuota(ctx, c.ID, 300, usedAt))

	got, err := s.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(700), got.RemainingQuota)
	assert.Equal(t, int64(1000), got.TotalQuota)
	require.NotNil(t, got.LastUsedAt)
	assert.WithinDuration(t, usedAt, *got.LastUsedAt, time.Second)
}

func testConcurrentDecrement(t *testing.T, s voicepool.CredentialStore) {
	ctx := context.Background()
	c := mustCreate(t, s, "a", 100000)

	const workers, perWorker, amount = 10, 10, 7
	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				errs <- s.DecrementQuota(ctx, c.ID, amount, time.Now())
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100000-workers*perWorker*amount), got.RemainingQuota)
}

func testDelete(t *testing.T, s voicepool.CredentialStore) {
	ctx := context.Background()
	c := mustCreate(t, s, "a", 100)

	require.NoError(t, s.Delete(ctx, c.ID))
	_, err := s.Get(ctx, c.ID)
	assert.ErrorIs(t, err, voicepool.ErrCredentialNotFound)

	// The secret is free again.
	_, err = s.Create(ctx, "again", c.Secret, 100)
	assert.NoError(t, err)
}

func testMissing(t *testing.T, s voicepool.CredentialStore) {
	ctx := context.Background()
	const id = "00000000-0000-0000-0000-000000000000"

	_, err := s.Get(ctx, id)
	assert.ErrorIs(t, err, voicepool.ErrCredentialNotFound)
	assert.ErrorIs(t, s.Delete(ctx, id), voicepool.ErrCredentialNotFound)
	assert.ErrorIs(t, s.SetActive(ctx, id, true), voicepool.ErrCredentialNotFound)
	assert.ErrorIs(t, s.UpsertQuota(ctx, id, voicepool.QuotaUpdate{Total: 1}), voicepool.ErrCredentialNotFound)
	assert.ErrorIs(t, s.DecrementQuota(ctx, id, 1, time.Now()), voicepool.ErrCredentialNotFound)
}

func mustCreate(t *testing.T, s voicepool.CredentialStore, label string, quota int64) voicepool.Credential {
	t.Helper()
	c, err := s.Create(context.Background(), label, "sk_"+label+"_0123456789abcdef", quota)
	require.NoError(t, err)
	return c
}

func ids(cs []voicepool.Credential) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}

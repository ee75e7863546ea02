// Package cachetest is a conformance suite for cache.Cache implementations.
package cachetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineyio/voicepool/cache"
)

// Factory returns an empty cache and a function that moves its clock forward.
// TTLs in the suite are short enough for a real sleep.
type Factory func(t *testing.T) (cache.Cache, func(time.Duration))

// Run exercises every Cache method against caches built by newCache.
func Run(t *testing.T, newCache Factory) {
	ctx := context.Background()

	t.Run("SetGet", func(t *testing.T) {
		c, _ := newCache(t)
		_, err := c.Get(ctx, "k")
		assert.ErrorIs(t, err, cache.ErrNotFound)

		require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
		got, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "v", got)
	})

	t.Run("Expiry", func(t *testing.T) {
		c, advance := newCache(t)
		require.NoError(t, c.Set(ctx, "k", "v", 50*time.Millisecond))
		advance(100 * time.Millisecond)
		_, err := c.Get(ctx, "k")
		assert.ErrorIs(t, err, cache.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		c, _ := newCache(t)
		require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
		require.NoError(t, c.Delete(ctx, "k"))
		require.NoError(t, c.Delete(ctx, "k"))
		_, err := c.Get(ctx, "k")
		assert.ErrorIs(t, err, cache.ErrNotFound)
	})

	t.Run("IncrWindow", func(t *testing.T) {
		c, advance := newCache(t)
		for want := int64(1); want <= 3; want++ {
			n, err := c.Incr(ctx, "hits", 300*time.Millisecond)
			require.NoError(t, err)
			assert.Equal(t, want, n)
		}

		// The ttl is not extended by later increments.
		advance(350 * time.Millisecond)
		n, err := c.Incr(ctx, "hits", 300*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("ConcurrentIncr", func(t *testing.T) {
		c, _ := newCache(t)
		var wg sync.WaitGroup
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 5 {
					_, err := c.Incr(ctx, "n", time.Minute)
					assert.NoError(t, err)
				}
			}()
		}
		wg.Wait()

		n, err := c.Incr(ctx, "n", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(101), n)
	})
}

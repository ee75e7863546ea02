package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineyio/voicepool/cache"
	"github.com/ineyio/voicepool/cache/cachetest"
	rediscache "github.com/ineyio/voicepool/cache/redis"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestConformance(t *testing.T) {
	cachetest.Run(t, func(t *testing.T) (cache.Cache, func(time.Duration)) {
		mr, client := newClient(t)
		return rediscache.New(client), mr.FastForward
	})
}

func TestKeyPrefix(t *testing.T) {
	mr, client := newClient(t)
	c := rediscache.New(client, rediscache.WithKeyPrefix("vp:"))
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "session:abc", "admin", time.Hour))
	got, err := mr.Get("vp:session:abc")
	require.NoError(t, err)
	assert.Equal(t, "admin", got)
	assert.Equal(t, time.Hour, mr.TTL("vp:session:abc"))

	_, err = c.Incr(ctx, "rate:1.2.3.4", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL("vp:rate:1.2.3.4"))
}

// Package redis implements cache.Cache on Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ineyio/voicepool/cache"
)

// Cache stores entries as plain Redis strings with native expiry.
type Cache struct {
	client goredis.Cmdable
	prefix string
}

var _ cache.Cache = (*Cache)(nil)

// Option configures a Cache.
type Option func(*Cache)

// WithKeyPrefix sets the prefix of every key. Defaults to "voicepool:cache:".
func WithKeyPrefix(prefix string) Option {
	return func(c *Cache) { c.prefix = prefix }
}

// New creates a Redis-backed cache.
func New(client goredis.Cmdable, opts ...Option) *Cache {
	c := &Cache{client: client}
	for _, opt := range opts {
		opt(c)
	}
	if c.prefix == "" {
		c.prefix = "voicepool:cache:"
	}
	return c
}

func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	v, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", cache.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("voicepool/cache/redis: get: %w", err)
	}
	return v, nil
}

func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("voicepool/cache/redis: set: %w", err)
	}
	return nil
}

// Incr runs INCR and sets the expiry with PEXPIRE when the counter was just created.
func (c *Cache) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	k := c.prefix + key
	n, err := c.client.Incr(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("voicepool/cache/redis: incr: %w", err)
	}
	if n == 1 && ttl > 0 {
		if err := c.client.PExpire(ctx, k, ttl).Err(); err != nil {
			return 0, fmt.Errorf("voicepool/cache/redis: expire: %w", err)
		}
	}
	return n, nil
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("voicepool/cache/redis: delete: %w", err)
	}
	return nil
}

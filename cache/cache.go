// Package cache provides the expiring key-value store behind admin sessions
// and per-client rate limits.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get for missing or expired keys.
var ErrNotFound = errors.New("voicepool/cache: key not found")

// Cache is a string cache with per-key expiry.
type Cache interface {
	// Get returns the value stored under key or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value under key for ttl. A zero ttl never expires.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Incr adds one to the counter under key and returns the new value.
	// The ttl is applied only when the counter is created.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Delete removes key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
}

package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory is an in-process Cache backed by go-cache. Expired entries are
// hidden on read and dropped by Sweep or the loop started with Start.
type Memory struct {
	items *gocache.Cache
}

var _ Cache = (*Memory)(nil)

// NewMemory creates an empty Memory cache.
func NewMemory() *Memory {
	// No janitor goroutine; Start drives cleanup under a context.
	return &Memory{items: gocache.New(gocache.NoExpiration, 0)}
}

func expiration(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	v, ok := m.items.Get(key)
	if !ok {
		return "", ErrNotFound
	}
	switch v := v.(type) {
	case string:
		return v, nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	default:
		return "", fmt.Errorf("voicepool/cache: unexpected value type %T for %q", v, key)
	}
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.items.Set(key, value, expiration(ttl))
	return nil
}

// Incr creates the counter with ttl on first use. Later increments keep the
// original expiry.
func (m *Memory) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	for {
		if n, err := m.items.IncrementInt64(key, 1); err == nil {
			return n, nil
		}
		if err := m.items.Add(key, int64(1), expiration(ttl)); err == nil {
			return 1, nil
		}
		// Add lost to a live entry. Retry unless it is not a counter.
		if v, ok := m.items.Get(key); ok {
			if _, counter := v.(int64); !counter {
				return 0, fmt.Errorf("voicepool/cache: %q is not a counter", key)
			}
		}
	}
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.items.Delete(key)
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	return m.items.ItemCount()
}

// Sweep drops every expired entry and returns how many were removed.
func (m *Memory) Sweep() int {
	before := m.items.ItemCount()
	m.items.DeleteExpired()
	return before - m.items.ItemCount()
}

// Start sweeps expired entries every interval until ctx is canceled.
func (m *Memory) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

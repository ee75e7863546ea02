package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ineyio/voicepool"
	"github.com/ineyio/voicepool/cache"
	rediscache "github.com/ineyio/voicepool/cache/redis"
	"github.com/ineyio/voicepool/internal/secret"
	"github.com/ineyio/voicepool/meter"
	"github.com/ineyio/voicepool/policy"
	"github.com/ineyio/voicepool/provider/elevenlabs"
	"github.com/ineyio/voicepool/provider/mock"
	"github.com/ineyio/voicepool/store"
	pgstore "github.com/ineyio/voicepool/store/postgres"
	redisstore "github.com/ineyio/voicepool/store/redis"
	sqlitestore "github.com/ineyio/voicepool/store/sqlite"
)

// closers releases resources in reverse order of acquisition.
type closers []func() error

func (c *closers) add(fn func() error) { *c = append(*c, fn) }

func (c closers) Close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// stack is a wired pool and the resources behind it.
type stack struct {
	pool     *voicepool.Pool
	provider voicepool.Provider
	closers  closers
}

func (r *stack) Close() error { return r.closers.Close() }

// openStore builds the credential store selected by cfg.Driver.
func openStore(ctx context.Context, cfg voicepool.StoreConfig, cs *closers) (voicepool.CredentialStore, error) {
	box, err := secret.NewBoxHex(cfg.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("store secret key: %w", err)
	}

	switch cfg.Driver {
	case "memory":
		return store.NewMemoryStore(), nil

	case "sqlite":
		st, db, err := sqlitestore.Open(cfg.DSN, sqlitestore.WithSecretBox(box))
		if err != nil {
			return nil, err
		}
		cs.add(db.Close)
		return st, nil

	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		cs.add(func() error { pool.Close(); return nil })

		opts := []pgstore.Option{pgstore.WithSecretBox(box)}
		if cfg.Prefix != "" {
			opts = append(opts, pgstore.WithTablePrefix(cfg.Prefix))
		}
		st := pgstore.New(pool, opts...)
		if err := st.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return st, nil

	case "redis":
		opt, err := goredis.ParseURL(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := goredis.NewClient(opt)
		cs.add(client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}

		opts := []redisstore.Option{redisstore.WithSecretBox(box)}
		if cfg.Prefix != "" {
			opts = append(opts, redisstore.WithKeyPrefix(cfg.Prefix))
		}
		return redisstore.New(client, opts...), nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// openCache builds the session and rate limit cache.
func openCache(cfg voicepool.CacheConfig, cs *closers) (cache.Cache, *cache.Memory, error) {
	switch cfg.Driver {
	case "memory":
		m := cache.NewMemory()
		return m, m, nil
	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: cfg.Addr})
		cs.add(client.Close)
		return rediscache.New(client), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}

func newProvider(cfg voicepool.ProviderConfig) (voicepool.Provider, error) {
	switch cfg.Name {
	case "elevenlabs":
		opts := []elevenlabs.Option{elevenlabs.WithTimeout(cfg.Timeout)}
		if cfg.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Model != "" {
			opts = append(opts, elevenlabs.WithModel(cfg.Model))
		}
		return elevenlabs.New(opts...), nil
	case "mock":
		return mock.New(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Name)
	}
}

// openPool wires store, provider and policy into a pool and seeds the
// configured credentials. m may be nil.
func (a *app) openPool(ctx context.Context, m voicepool.Meter) (*stack, error) {
	rt := &stack{}

	st, err := openStore(ctx, a.cfg.Store, &rt.closers)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	prov, err := newProvider(a.cfg.Provider)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.provider = prov

	pol, ok := policy.ByName(a.cfg.Allocation.Policy)
	if !ok {
		_ = rt.Close()
		return nil, fmt.Errorf("unknown allocation policy %q", a.cfg.Allocation.Policy)
	}

	if m == nil {
		m = &meter.NoopMeter{}
		if a.cfg.Log.Level == "debug" {
			m = meter.NewLogMeter(a.logger)
		}
	}

	pool, err := voicepool.NewPool(a.cfg, st, prov,
		voicepool.WithPolicy(pol),
		voicepool.WithMeter(m),
		voicepool.WithLogger(a.logger),
	)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	if err := pool.Seed(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.pool = pool
	return rt, nil
}

package voicepool

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// syncTimeout bounds a shared sync once it no longer follows a caller's context.
const syncTimeout = 30 * time.Second

// Synchronizer reconciles stored quota with what the provider reports.
// Concurrent syncs of the same credential share one provider call, which
// outlives any single caller's cancellation.
type Synchronizer struct {
	store    CredentialStore
	provider Provider
	health   *HealthTracker
	meter    Meter
	logger   *slog.Logger
	now      func() time.Time
	group    singleflight.Group
}

// Sync fetches provider usage for c and stores remaining = limit - used.
// Negative remaining is kept as is; Active is remaining > 0.
//
// Failures are logged and reported as ok == false. The stored record is left
// unchanged and LastSyncedAt only moves on success. A caller whose ctx ends
// first gets ok == false while the shared call keeps running for the others.
func (s *Synchronizer) Sync(ctx context.Context, c Credential) (Credential, bool) {
	ch := s.group.DoChan(c.ID, func() (interface{}, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), syncTimeout)
		defer cancel()
		return s.sync(sctx, c)
	})

	select {
	case <-ctx.Done():
		return Credential{}, false
	case r := <-ch:
		if r.Err != nil {
			return Credential{}, false
		}
		return r.Val.(Credential), true
	}
}

func (s *Synchronizer) sync(ctx context.Context, c Credential) (Credential, error) {
	start := time.Now()
	usage, err := s.health.FetchUsage(c.ID, func() (Usage, error) {
		return s.provider.FetchUsage(ctx, c.Secret)
	})
	if err != nil {
		s.failed(c, start, fmt.Errorf("fetch usage: %w", err))
		return Credential{}, err
	}

	remaining := usage.Limit - usage.Used
	u := QuotaUpdate{
		Remaining: remaining,
		Total:     usage.Limit,
		Active:    remaining > 0,
		SyncedAt:  s.now(),
	}
	if err := s.store.UpsertQuota(ctx, c.ID, u); err != nil {
		s.failed(c, start, fmt.Errorf("store quota: %w", err))
		return Credential{}, err
	}

	c.RemainingQuota = u.Remaining
	c.TotalQuota = u.Total
	c.Active = u.Active
	c.LastSyncedAt = u.SyncedAt

	s.logger.Debug("quota synced",
		"credential", c.Label,
		"remaining", u.Remaining,
		"total", u.Total,
		"active", u.Active,
	)
	s.meter.OnSync(SyncEvent{
		CredentialID: c.ID,
		Label:        c.Label,
		Remaining:    u.Remaining,
		Total:        u.Total,
		Active:       u.Active,
		Success:      true,
		Duration:     time.Since(start),
	})
	return c, nil
}

func (s *Synchronizer) failed(c Credential, start time.Time, err error) {
	s.logger.Warn("quota sync failed",
		"credential", c.Label,
		"secret", c.MaskedSecret(),
		"error", err,
	)
	s.meter.OnSync(SyncEvent{
		CredentialID: c.ID,
		Label:        c.Label,
		Remaining:    c.RemainingQuota,
		Total:        c.TotalQuota,
		Active:       c.Active,
		Success:      false,
		Duration:     time.Since(start),
		Error:        err,
	})
}

package voicepool

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// sweepRequest is an on-demand sweep trigger.
type sweepRequest struct {
	done chan SweepResult
}

// SweepResult counts the outcome of one sweep.
type SweepResult struct {
	Synced int
	Failed int
}

// Sweeper refreshes every active credential on a fixed interval, pacing
// provider queries with a rate limiter.
type Sweeper struct {
	pool     *Pool
	interval time.Duration
	limiter  *rate.Limiter
	sweepCh  chan sweepRequest
}

// NewSweeper creates a Sweeper from the pool's sweep config.
func NewSweeper(p *Pool) *Sweeper {
	return &Sweeper{
		pool:     p,
		interval: p.cfg.Sweep.Interval,
		limiter:  rate.NewLimiter(rate.Limit(p.cfg.Sweep.Rate), 1),
		sweepCh:  make(chan sweepRequest),
	}
}

// Start runs a sweep immediately, then on every interval tick, and serves
// SweepNow requests in between. Start blocks until the context is canceled.
// With a zero interval only SweepNow requests are served.
func (s *Sweeper) Start(ctx context.Context) {
	var tick <-chan time.Time
	if s.interval > 0 {
		s.sweep(ctx)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			s.pool.logger.Info("quota sweeper stopped")
			return
		case <-tick:
			s.sweep(ctx)
		case req := <-s.sweepCh:
			req.done <- s.sweep(ctx)
		}
	}
}

// SweepNow asks a running sweeper for an immediate sweep and waits for it.
func (s *Sweeper) SweepNow(ctx context.Context) (SweepResult, error) {
	done := make(chan SweepResult, 1)

	select {
	case s.sweepCh <- sweepRequest{done: done}:
	case <-ctx.Done():
		return SweepResult{}, ctx.Err()
	}

	select {
	case res := <-done:
		return res, nil
	case <-ctx.Done():
		return SweepResult{}, ctx.Err()
	}
}

func (s *Sweeper) sweep(ctx context.Context) SweepResult {
	start := time.Now()
	var res SweepResult

	creds, err := s.pool.store.ListActive(ctx)
	if err != nil {
		s.pool.logger.Error("quota sweep failed", "error", fmt.Errorf("list active: %w", err))
		return res
	}

	for _, c := range creds {
		if err := s.limiter.Wait(ctx); err != nil {
			break
		}
		if _, ok := s.pool.syncer.Sync(ctx, c); ok {
			res.Synced++
		} else {
			res.Failed++
		}
	}

	s.pool.logger.Info("quota sweep complete",
		"synced", res.Synced,
		"failed", res.Failed,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return res
}

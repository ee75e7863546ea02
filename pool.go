package voicepool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Pool allocates credentials to speech requests and keeps their quota in sync.
type Pool struct {
	cfg      Config
	store    CredentialStore
	provider Provider
	policy   Policy
	meter    Meter
	health   *HealthTracker
	logger   *slog.Logger
	now      func() time.Time

	syncer *Synchronizer
	alloc  *Allocator
	ledger *reservationLedger
}

// Option configures a Pool.
type Option func(*Pool)

// WithPolicy sets the allocation policy.
func WithPolicy(p Policy) Option {
	return func(pl *Pool) { pl.policy = p }
}

// WithMeter sets the meter.
func WithMeter(m Meter) Option {
	return func(pl *Pool) { pl.meter = m }
}

// WithHealthTracker sets the health tracker.
func WithHealthTracker(h *HealthTracker) Option {
	return func(pl *Pool) { pl.health = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(pl *Pool) { pl.logger = l }
}

// WithClock sets the time source used for sync and usage timestamps.
func WithClock(now func() time.Time) Option {
	return func(pl *Pool) { pl.now = now }
}

// NewPool creates a Pool over the given store and provider.
// Best fit ordering, a no-op meter and slog.Default() are used unless
// overridden via options.
func NewPool(cfg Config, store CredentialStore, provider Provider, opts ...Option) (*Pool, error) {
	if store == nil {
		return nil, fmt.Errorf("voicepool: a credential store is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("voicepool: a provider is required")
	}

	p := &Pool{
		cfg:      cfg.WithDefaults(),
		store:    store,
		provider: provider,
		health:   NewHealthTracker(),
	}

	for _, opt := range opts {
		opt(p)
	}

	// Apply defaults after options.
	if p.policy == nil {
		p.policy = bestFitPolicy{}
	}
	if p.meter == nil {
		p.meter = noopMeter{}
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.cfg.Allocation.Strict {
		p.ledger = newReservationLedger()
	}

	p.syncer = &Synchronizer{
		store:    p.store,
		provider: p.provider,
		health:   p.health,
		meter:    p.meter,
		logger:   p.logger,
		now:      p.now,
	}
	p.alloc = &Allocator{
		store:         p.store,
		syncer:        p.syncer,
		policy:        p.policy,
		ledger:        p.ledger,
		meter:         p.meter,
		logger:        p.logger,
		now:           p.now,
		bulkSyncAfter: p.cfg.Allocation.BulkSyncAfter,
		lazySyncAfter: p.cfg.Allocation.LazySyncAfter,
	}

	return p, nil
}

// Store returns the credential store behind the pool.
func (p *Pool) Store() CredentialStore { return p.store }

// Health returns the per-credential health tracker.
func (p *Pool) Health() *HealthTracker { return p.health }

// Synchronizer returns the pool's quota synchronizer.
func (p *Pool) Synchronizer() *Synchronizer { return p.syncer }

// Allocator returns the pool's allocator.
func (p *Pool) Allocator() *Allocator { return p.alloc }

// Seed creates the credentials listed in the config. Secrets already stored are skipped.
func (p *Pool) Seed(ctx context.Context) error {
	for _, cc := range p.cfg.Credentials {
		_, err := p.store.Create(ctx, cc.Label, cc.Secret, cc.TotalQuota)
		if errors.Is(err, ErrDuplicateCredential) {
			continue
		}
		if err != nil {
			return fmt.Errorf("voicepool: seed credential %q: %w", cc.Label, err)
		}
		p.logger.Info("credential seeded", "credential", cc.Label)
	}
	return nil
}

// Allocate picks a credential for required chars, skipping excludeIDs.
func (p *Pool) Allocate(ctx context.Context, required int64, excludeIDs ...string) (Credential, error) {
	return p.alloc.Allocate(ctx, required, NewExcludeSet(excludeIDs...))
}

// Acquire allocates a credential and, in strict mode, holds its quota until
// the returned lease is committed or rolled back.
func (p *Pool) Acquire(ctx context.Context, required int64, exclude *ExcludeSet) (*Lease, error) {
	c, res, err := p.alloc.allocate(ctx, required, exclude)
	if err != nil {
		return nil, err
	}
	return &Lease{Credential: c, Required: required, pool: p, reservation: res}, nil
}

// lease holds quota on a known credential without running allocation.
func (p *Pool) lease(c Credential, required int64) (*Lease, bool) {
	res, ok := p.alloc.hold(c, required)
	if !ok {
		return nil, false
	}
	return &Lease{Credential: c, Required: required, pool: p, reservation: res}, true
}

// RecordUsage subtracts chars from the credential's local quota. The provider
// is not queried; drift is corrected by the next sync.
func (p *Pool) RecordUsage(ctx context.Context, credentialID string, chars int64) error {
	if err := p.store.DecrementQuota(ctx, credentialID, chars, p.now()); err != nil {
		return fmt.Errorf("voicepool: record usage: %w", err)
	}
	return nil
}

// SyncOne refreshes one credential from the provider. A failed provider query
// returns ErrSyncFailed and leaves the record unchanged.
func (p *Pool) SyncOne(ctx context.Context, credentialID string) (Credential, error) {
	c, err := p.store.Get(ctx, credentialID)
	if err != nil {
		return Credential{}, fmt.Errorf("voicepool: sync: %w", err)
	}
	fresh, ok := p.syncer.Sync(ctx, c)
	if !ok {
		return Credential{}, fmt.Errorf("%w: credential %q", ErrSyncFailed, c.Label)
	}
	return fresh, nil
}

// SyncAll refreshes every credential, or only the active ones, in parallel.
// It returns the credentials that synced successfully in store order.
func (p *Pool) SyncAll(ctx context.Context, activeOnly bool) ([]Credential, error) {
	var (
		list []Credential
		err  error
	)
	if activeOnly {
		list, err = p.store.ListActive(ctx)
	} else {
		list, err = p.store.ListAll(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("voicepool: sync all: %w", err)
	}

	results := make([]Credential, len(list))
	ok := make([]bool, len(list))

	var g errgroup.Group
	g.SetLimit(p.cfg.Allocation.SyncConcurrency)
	for i, c := range list {
		g.Go(func() error {
			results[i], ok[i] = p.syncer.Sync(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	synced := make([]Credential, 0, len(list))
	for i := range list {
		if ok[i] {
			synced = append(synced, results[i])
		}
	}
	return synced, nil
}

// Split partitions text across the snapshot with the pool's split limits.
func (p *Pool) Split(text string, snapshot []QuotaSnapshot) ([]TextChunk, error) {
	return p.cfg.Split.Split(text, snapshot)
}

// Plan splits text across the active credentials with quota left. With
// refresh, quotas are synced from the provider first.
func (p *Pool) Plan(ctx context.Context, text string, refresh bool) ([]TextChunk, error) {
	if refresh {
		if _, err := p.SyncAll(ctx, true); err != nil {
			return nil, err
		}
	}
	creds, err := p.store.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("voicepool: plan: %w", err)
	}

	snapshot := make([]QuotaSnapshot, 0, len(creds))
	for _, c := range creds {
		if c.Active && c.RemainingQuota > 0 {
			snapshot = append(snapshot, c.Snapshot())
		}
	}
	return p.Split(text, snapshot)
}

// SetActive toggles a credential. Re-enabling it also resets its breaker.
func (p *Pool) SetActive(ctx context.Context, credentialID string, active bool) error {
	if err := p.store.SetActive(ctx, credentialID, active); err != nil {
		return fmt.Errorf("voicepool: set active: %w", err)
	}
	if active {
		p.health.Forget(credentialID)
	}
	return nil
}

// DeleteCredential removes a credential.
func (p *Pool) DeleteCredential(ctx context.Context, credentialID string) error {
	if err := p.store.Delete(ctx, credentialID); err != nil {
		return fmt.Errorf("voicepool: delete credential: %w", err)
	}
	p.health.Forget(credentialID)
	return nil
}

// Synthesize converts req.Text to audio, retrying on other credentials when
// the provider reports exhausted quota.
func (p *Pool) Synthesize(ctx context.Context, req SynthesisRequest) (SynthesisResult, error) {
	stream, err := p.SynthesizeStream(ctx, req)
	if err != nil {
		return SynthesisResult{}, err
	}
	return drain(stream)
}

// SynthesizeStream is Synthesize without buffering. Usage is recorded when the
// stream is closed.
func (p *Pool) SynthesizeStream(ctx context.Context, req SynthesisRequest) (*AudioStream, error) {
	return p.open(ctx, req, NewExcludeSet())
}

// open runs the retry protocol. A quota error triggers a sync of the failing
// credential: if it still has room the call is repeated on it without using
// up an attempt, otherwise it is excluded and another credential is allocated.
// Other provider errors are returned at once.
func (p *Pool) open(ctx context.Context, req SynthesisRequest, exclude *ExcludeSet) (*AudioStream, error) {
	required := CountChars(req.Text)
	if required == 0 {
		return nil, ErrEmptyText
	}

	maxRetries := p.cfg.Allocation.MaxRetries
	var (
		lastErr        error
		inPlaceRetries int
	)

	for attempt := 1; ; attempt++ {
		lease, err := p.Acquire(ctx, required, exclude)
		if err != nil {
			if lastErr != nil {
				return nil, fmt.Errorf("%w (last provider error: %v)", err, lastErr)
			}
			return nil, err
		}

		inPlace := 0
		for {
			c := lease.Credential
			start := time.Now()
			rc, err := p.provider.Synthesize(ctx, c.Secret, req)
			if err == nil {
				return &AudioStream{
					inner:     rc,
					lease:     lease,
					meter:     p.meter,
					provider:  p.provider.Name(),
					startTime: start,
					routing: Routing{
						CredentialID:   c.ID,
						Label:          c.Label,
						Chars:          required,
						Attempts:       attempt,
						InPlaceRetries: inPlaceRetries,
					},
				}, nil
			}

			lease.Rollback()
			p.meter.OnResult(ResultEvent{
				Provider:     p.provider.Name(),
				CredentialID: c.ID,
				Label:        c.Label,
				Chars:        required,
				Attempt:      attempt,
				Success:      false,
				Duration:     time.Since(start),
				Error:        err,
			})

			if !IsQuotaExceeded(err) {
				return nil, &SynthesisError{
					Err:          err,
					CredentialID: c.ID,
					Label:        c.Label,
					Required:     required,
					Available:    c.RemainingQuota,
					Attempts:     attempt,
				}
			}
			lastErr = err

			fresh, ok := p.syncer.Sync(ctx, c)
			if ok && fresh.Usable(required) && inPlace < p.cfg.Allocation.InPlaceRetryLimit() {
				if l, held := p.lease(fresh, required); held {
					p.logger.Info("stale quota, retrying same credential",
						"credential", fresh.Label,
						"remaining", fresh.RemainingQuota,
						"required", required,
					)
					exclude.Remove(fresh.ID)
					inPlace++
					inPlaceRetries++
					lease = l
					continue
				}
			}

			p.logger.Info("credential exhausted, excluding",
				"credential", c.Label,
				"attempt", attempt,
				"max_retries", maxRetries,
			)
			exclude.Add(c.ID)
			break
		}

		if attempt >= maxRetries {
			return nil, &SynthesisError{
				Err:      fmt.Errorf("%w: %w", ErrRetriesExhausted, lastErr),
				Required: required,
				Attempts: attempt,
			}
		}
	}
}

// SynthesizeChunks synthesizes split chunks in parallel, each on its own
// credential. A chunk whose credential turns out to be exhausted falls back to
// Synthesize with that credential excluded. Results keep the chunk order.
func (p *Pool) SynthesizeChunks(ctx context.Context, chunks []TextChunk, req SynthesisRequest) ([]ChunkAudio, error) {
	out := make([]ChunkAudio, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Split.ChunkConcurrency)
	for i, ch := range chunks {
		g.Go(func() error {
			r := req
			r.Text = ch.Text
			res, err := p.synthesizeBound(gctx, ch, r)
			if err != nil {
				return fmt.Errorf("voicepool: chunk %d: %w", ch.Index, err)
			}
			out[i] = ChunkAudio{Chunk: ch, Audio: res.Audio, Routing: res.Routing}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Pool) synthesizeBound(ctx context.Context, ch TextChunk, req SynthesisRequest) (SynthesisResult, error) {
	required := CountChars(req.Text)
	exclude := NewExcludeSet(ch.CredentialID)

	c, err := p.store.Get(ctx, ch.CredentialID)
	if err != nil && !errors.Is(err, ErrCredentialNotFound) {
		return SynthesisResult{}, fmt.Errorf("voicepool: load chunk credential: %w", err)
	}
	if err != nil || !c.Active {
		return p.fallback(ctx, req, exclude)
	}
	lease, ok := p.lease(c, required)
	if !ok {
		return p.fallback(ctx, req, exclude)
	}

	start := time.Now()
	rc, err := p.provider.Synthesize(ctx, c.Secret, req)
	if err != nil {
		lease.Rollback()
		p.meter.OnResult(ResultEvent{
			Provider:     p.provider.Name(),
			CredentialID: c.ID,
			Label:        c.Label,
			Chars:        required,
			Attempt:      1,
			Duration:     time.Since(start),
			Error:        err,
		})
		if IsQuotaExceeded(err) {
			return p.fallback(ctx, req, exclude)
		}
		return SynthesisResult{}, &SynthesisError{
			Err:          err,
			CredentialID: c.ID,
			Label:        c.Label,
			Required:     required,
			Available:    c.RemainingQuota,
			Attempts:     1,
		}
	}

	stream := &AudioStream{
		inner:     rc,
		lease:     lease,
		meter:     p.meter,
		provider:  p.provider.Name(),
		startTime: start,
		routing:   Routing{CredentialID: c.ID, Label: c.Label, Chars: required, Attempts: 1},
	}
	return drain(stream)
}

func (p *Pool) fallback(ctx context.Context, req SynthesisRequest, exclude *ExcludeSet) (SynthesisResult, error) {
	stream, err := p.open(ctx, req, exclude)
	if err != nil {
		return SynthesisResult{}, err
	}
	return drain(stream)
}

// drain reads the whole stream and closes it, committing its usage.
func drain(stream *AudioStream) (SynthesisResult, error) {
	audio, readErr := io.ReadAll(stream)
	if err := stream.Close(); err != nil && readErr == nil {
		readErr = err
	}
	if readErr != nil {
		return SynthesisResult{}, fmt.Errorf("voicepool: read audio: %w", readErr)
	}
	return SynthesisResult{Audio: audio, Routing: stream.Routing()}, nil
}

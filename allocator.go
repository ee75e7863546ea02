package voicepool

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Allocator picks one credential for a request of a given size.
type Allocator struct {
	store  CredentialStore
	syncer *Synchronizer
	policy Policy
	ledger *reservationLedger
	meter  Meter
	logger *slog.Logger
	now    func() time.Time

	bulkSyncAfter time.Duration
	lazySyncAfter time.Duration
}

// Allocate returns the credential the policy ranks first among the active,
// non-excluded credentials with at least required chars left.
//
// Records older than the bulk threshold are synced before filtering. The
// chosen record is synced again if it is older than the lazy threshold, and
// selection moves on if that sync fails or leaves it short. When nothing
// fits, every remaining candidate not yet synced in this call is synced
// largest first and the first that fits is returned.
func (a *Allocator) Allocate(ctx context.Context, required int64, exclude *ExcludeSet) (Credential, error) {
	c, res, err := a.allocate(ctx, required, exclude)
	if res != nil {
		a.ledger.Release(*res)
	}
	return c, err
}

func (a *Allocator) allocate(ctx context.Context, required int64, exclude *ExcludeSet) (Credential, *Reservation, error) {
	if required <= 0 {
		return Credential{}, nil, fmt.Errorf("%w: required chars must be positive, got %d", ErrInvalidRequest, required)
	}

	active, err := a.store.ListActive(ctx)
	if err != nil {
		return Credential{}, nil, fmt.Errorf("voicepool: list active credentials: %w", err)
	}

	now := a.now()
	synced := make(map[string]bool)
	candidates := make([]Credential, 0, len(active))
	for _, c := range active {
		if exclude.Has(c.ID) {
			continue
		}
		if stale(c, a.bulkSyncAfter, now) {
			if fresh, ok := a.syncer.Sync(ctx, c); ok {
				c = fresh
				synced[c.ID] = true
			}
		}
		candidates = append(candidates, c)
	}

	var eligible []Credential
	for _, c := range candidates {
		if c.Usable(required) {
			eligible = append(eligible, c)
		}
	}

	for _, c := range a.policy.Order(eligible, required) {
		if stale(c, a.lazySyncAfter, now) {
			fresh, ok := a.syncer.Sync(ctx, c)
			if !ok {
				continue
			}
			synced[c.ID] = true
			if !fresh.Usable(required) {
				a.logger.Debug("credential no longer fits after sync",
					"credential", fresh.Label,
					"remaining", fresh.RemainingQuota,
					"required", required,
				)
				continue
			}
			c = fresh
		}
		if res, ok := a.hold(c, required); ok {
			a.allocated(c, required, exclude, false)
			return c, res, nil
		}
	}

	for _, c := range largestFirst(candidates) {
		if synced[c.ID] {
			continue
		}
		fresh, ok := a.syncer.Sync(ctx, c)
		if !ok {
			continue
		}
		synced[c.ID] = true
		if !fresh.Usable(required) {
			continue
		}
		if res, ok := a.hold(fresh, required); ok {
			a.allocated(fresh, required, exclude, true)
			return fresh, res, nil
		}
	}

	err = a.unavailable(ctx, required, candidates, exclude)
	a.logger.Warn("allocation failed", "required", required, "excluded", exclude.Len(), "error", err)
	a.meter.OnAllocate(AllocateEvent{Required: required, Excluded: exclude.Len(), Error: err})
	return Credential{}, nil, err
}

// hold reserves quota on c in strict mode. In optimistic mode it always succeeds.
func (a *Allocator) hold(c Credential, required int64) (*Reservation, bool) {
	if a.ledger == nil {
		return nil, true
	}
	res, ok := a.ledger.TryReserve(c, required)
	if !ok {
		return nil, false
	}
	return &res, true
}

func (a *Allocator) allocated(c Credential, required int64, exclude *ExcludeSet, rescued bool) {
	a.logger.Debug("credential allocated",
		"credential", c.Label,
		"remaining", c.RemainingQuota,
		"required", required,
		"rescued", rescued,
	)
	a.meter.OnAllocate(AllocateEvent{
		CredentialID: c.ID,
		Label:        c.Label,
		Required:     required,
		Remaining:    c.RemainingQuota,
		Excluded:     exclude.Len(),
		Rescued:      rescued,
	})
}

// unavailable builds the error for a request nothing could serve. An inactive
// credential whose recorded quota would suffice, excluded or not, turns it into
// ErrInsufficientQuota.
func (a *Allocator) unavailable(ctx context.Context, required int64, candidates []Credential, exclude *ExcludeSet) error {
	var best int64
	for _, c := range candidates {
		if c.Available() > best {
			best = c.Available()
		}
	}

	all, err := a.store.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("voicepool: list credentials: %w", err)
	}
	for _, c := range all {
		if c.Active {
			continue
		}
		if c.Available() >= required {
			return &AllocationError{
				Err:           ErrInsufficientQuota,
				Required:      required,
				BestAvailable: c.Available(),
				Label:         c.Label,
				Excluded:      exclude.Len(),
			}
		}
	}

	return &AllocationError{
		Err:           ErrNoCredentialAvailable,
		Required:      required,
		BestAvailable: best,
		Excluded:      exclude.Len(),
	}
}

func stale(c Credential, after time.Duration, now time.Time) bool {
	return after > 0 && now.Sub(c.LastSyncedAt) > after
}

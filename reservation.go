package voicepool

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// ExcludeSet holds the credentials already tried for one logical request.
// The zero value is an empty set. A nil *ExcludeSet excludes nothing and
// ignores Add.
type ExcludeSet struct {
	ids map[string]struct{}
}

// NewExcludeSet creates a set containing ids.
func NewExcludeSet(ids ...string) *ExcludeSet {
	e := &ExcludeSet{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		e.ids[id] = struct{}{}
	}
	return e
}

func (e *ExcludeSet) Add(id string) {
	if e == nil {
		return
	}
	if e.ids == nil {
		e.ids = make(map[string]struct{})
	}
	e.ids[id] = struct{}{}
}

func (e *ExcludeSet) Remove(id string) {
	if e == nil {
		return
	}
	delete(e.ids, id)
}

func (e *ExcludeSet) Has(id string) bool {
	if e == nil {
		return false
	}
	_, ok := e.ids[id]
	return ok
}

func (e *ExcludeSet) Len() int {
	if e == nil {
		return 0
	}
	return len(e.ids)
}

// Reservation is quota held in process for an in-flight request.
type Reservation struct {
	ID           string
	CredentialID string
	Amount       int64
}

// reservationLedger tracks held quota per credential when the pool runs in
// strict mode. Holds are process local.
type reservationLedger struct {
	mu   sync.Mutex
	held map[string]int64
}

func newReservationLedger() *reservationLedger {
	return &reservationLedger{held: make(map[string]int64)}
}

// TryReserve holds amount against c if what is left after other holds covers it.
func (l *reservationLedger) TryReserve(c Credential, amount int64) (Reservation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if c.Available()-l.held[c.ID] < amount {
		return Reservation{}, false
	}
	l.held[c.ID] += amount
	return Reservation{
		ID:           uuid.New().String(),
		CredentialID: c.ID,
		Amount:       amount,
	}, true
}

func (l *reservationLedger) Release(r Reservation) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.held[r.CredentialID] -= r.Amount
	if l.held[r.CredentialID] <= 0 {
		delete(l.held, r.CredentialID)
	}
}

func (l *reservationLedger) Held(credentialID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[credentialID]
}

// Lease is an allocated credential waiting for its request to finish.
// Exactly one of Commit or Rollback takes effect.
type Lease struct {
	Credential  Credential
	Required    int64
	pool        *Pool
	reservation *Reservation
	done        bool
}

// Commit records the usage against the credential and releases any hold.
func (l *Lease) Commit(ctx context.Context) error {
	if l.done {
		return nil
	}
	l.done = true
	defer l.release()
	return l.pool.RecordUsage(ctx, l.Credential.ID, l.Required)
}

// Rollback releases any hold without recording usage.
func (l *Lease) Rollback() {
	if l.done {
		return
	}
	l.done = true
	l.release()
}

func (l *Lease) release() {
	if l.reservation != nil && l.pool.ledger != nil {
		l.pool.ledger.Release(*l.reservation)
	}
}

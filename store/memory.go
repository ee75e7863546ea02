// Package store provides an in-memory CredentialStore. Persistent stores live
// in the redis, postgres and sqlite sub-packages.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ineyio/voicepool"
)

// MemoryStore is an in-memory CredentialStore.
type MemoryStore struct {
	mu    sync.RWMutex
	creds map[string]*voicepool.Credential
	order []string
	now   func() time.Time
}

var _ voicepool.CredentialStore = (*MemoryStore)(nil)

// MemoryOption configures MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock sets the time source used for creation timestamps.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates a new in-memory credential store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		creds: make(map[string]*voicepool.Credential),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) ListAll(_ context.Context) ([]voicepool.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]voicepool.Credential, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, clone(s.creds[id]))
	}
	return out, nil
}

func (s *MemoryStore) ListActive(_ context.Context) ([]voicepool.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []voicepool.Credential
	for _, id := range s.order {
		if c := s.creds[id]; c.Active {
			out = append(out, clone(c))
		}
	}
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (voicepool.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.creds[id]
	if !ok {
		return voicepool.Credential{}, voicepool.ErrCredentialNotFound
	}
	return clone(c), nil
}

func (s *MemoryStore) Create(_ context.Context, label, secret string, totalQuota int64) (voicepool.Credential, error) {
	if err := voicepool.ValidateNewCredential(label, secret, totalQuota); err != nil {
		return voicepool.Credential{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.creds {
		if c.Secret == secret {
			return voicepool.Credential{}, voicepool.ErrDuplicateCredential
		}
	}

	now := s.now()
	c := &voicepool.Credential{
		ID:             uuid.New().String(),
		Label:          label,
		Secret:         secret,
		RemainingQuota: totalQuota,
		TotalQuota:     totalQuota,
		Active:         true,
		LastSyncedAt:   now,
		CreatedAt:      now,
	}
	s.creds[c.ID] = c
	s.order = append(s.order, c.ID)
	return clone(c), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.creds[id]; !ok {
		return voicepool.ErrCredentialNotFound
	}
	delete(s.creds, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) SetActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.creds[id]
	if !ok {
		return voicepool.ErrCredentialNotFound
	}
	c.Active = active
	return nil
}

func (s *MemoryStore) UpsertQuota(_ context.Context, id string, u voicepool.QuotaUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.creds[id]
	if !ok {
		return voicepool.ErrCredentialNotFound
	}
	c.RemainingQuota = u.Remaining
	c.TotalQuota = u.Total
	c.Active = u.Active
	c.LastSyncedAt = u.SyncedAt
	return nil
}

func (s *MemoryStore) DecrementQuota(_ context.Context, id string, amount int64, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.creds[id]
	if !ok {
		return voicepool.ErrCredentialNotFound
	}
	c.RemainingQuota -= amount
	c.LastUsedAt = &usedAt
	return nil
}

func clone(c *voicepool.Credential) voicepool.Credential {
	out := *c
	if c.LastUsedAt != nil {
		t := *c.LastUsedAt
		out.LastUsedAt = &t
	}
	return out
}

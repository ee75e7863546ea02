package voicepool

import (
	"context"
	"time"
)

// CredentialStore persists credentials and their quota.
//
// DecrementQuota must be an atomic add of a negative amount so concurrent
// decrements of the same credential never lose updates. UpsertQuota overwrites
// the quota fields with provider truth; last write wins.
type CredentialStore interface {
	// ListAll returns every credential in creation order.
	ListAll(ctx context.Context) ([]Credential, error)

	// ListActive returns the active credentials in creation order.
	ListActive(ctx context.Context) ([]Credential, error)

	// Get returns one credential or ErrCredentialNotFound.
	Get(ctx context.Context, id string) (Credential, error)

	// Create adds a credential with RemainingQuota = totalQuota and Active = true.
	// Returns ErrDuplicateCredential if the secret is already stored.
	Create(ctx context.Context, label, secret string, totalQuota int64) (Credential, error)

	// Delete removes a credential.
	Delete(ctx context.Context, id string) error

	// SetActive toggles whether the credential may be allocated.
	SetActive(ctx context.Context, id string, active bool) error

	// UpsertQuota writes the result of a quota sync.
	UpsertQuota(ctx context.Context, id string, u QuotaUpdate) error

	// DecrementQuota subtracts amount from the remaining quota and stamps LastUsedAt.
	DecrementQuota(ctx context.Context, id string, amount int64, usedAt time.Time) error
}

// ValidateNewCredential checks the arguments of CredentialStore.Create.
// Store implementations call it before writing.
func ValidateNewCredential(label, secret string, totalQuota int64) error {
	if label == "" || secret == "" {
		return ErrInvalidCredential
	}
	if totalQuota <= 0 {
		return ErrInvalidCredential
	}
	return nil
}

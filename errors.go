package voicepool

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrDuplicateCredential   = errors.New("voicepool: credential already exists")
	ErrCredentialNotFound    = errors.New("voicepool: credential not found")
	ErrInvalidCredential     = errors.New("voicepool: invalid credential")
	ErrProviderUnavailable   = errors.New("voicepool: provider unavailable")
	ErrProviderError         = errors.New("voicepool: provider error")
	ErrQuotaExceeded         = errors.New("voicepool: quota exceeded")
	ErrUnauthorized          = errors.New("voicepool: unauthorized")
	ErrRateLimited           = errors.New("voicepool: rate limited by provider")
	ErrInvalidRequest        = errors.New("voicepool: invalid request")
	ErrInsufficientQuota     = errors.New("voicepool: no active credential has enough quota")
	ErrNoCredentialAvailable = errors.New("voicepool: no credential available")
	ErrRetriesExhausted      = errors.New("voicepool: retries exhausted")
	ErrSplitShortfall        = errors.New("voicepool: not enough credentials to cover text")
	ErrEmptyText             = errors.New("voicepool: empty text")
	ErrSyncFailed            = errors.New("voicepool: quota sync failed")
)

// AllocationError is returned when no credential can serve a request.
type AllocationError struct {
	Err      error
	Required int64
	// BestAvailable is the largest quota seen among the candidates the
	// error refers to: active ones for ErrNoCredentialAvailable, inactive
	// ones for ErrInsufficientQuota.
	BestAvailable int64
	// Label names the inactive credential that could serve the request.
	Label    string
	Excluded int
}

func (e *AllocationError) Error() string {
	if errors.Is(e.Err, ErrInsufficientQuota) && e.Label != "" {
		return fmt.Sprintf("%v: need %d chars, inactive credential %q has %d; reactivate it",
			e.Err, e.Required, e.Label, e.BestAvailable)
	}
	return fmt.Sprintf("%v: need %d chars, best available %d (excluded %d)",
		e.Err, e.Required, e.BestAvailable, e.Excluded)
}

func (e *AllocationError) Unwrap() error {
	return e.Err
}

// SynthesisError wraps a provider failure with routing context.
type SynthesisError struct {
	Err          error
	CredentialID string
	Label        string
	Required     int64
	Available    int64
	Attempts     int
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("voicepool: credential=%s required=%d available=%d attempts=%d: %v",
		e.Label, e.Required, e.Available, e.Attempts, e.Err)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}

// SplitShortfallError reports how much text was left without a credential.
type SplitShortfallError struct {
	Uncovered int
	Chunks    int
}

func (e *SplitShortfallError) Error() string {
	return fmt.Sprintf("%v: %d chars uncovered after %d chunks", ErrSplitShortfall, e.Uncovered, e.Chunks)
}

func (e *SplitShortfallError) Unwrap() error {
	return ErrSplitShortfall
}

// IsQuotaExceeded reports whether the provider rejected a credential for lack of quota.
// A revoked or exhausted key is reported as unauthorized by some providers, so
// ErrUnauthorized counts too.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrUnauthorized)
}

// IsRetryable returns true if the same provider call may succeed when repeated.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrProviderUnavailable)
}

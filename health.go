package voicepool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

const (
	healthFailureThreshold = 3
	healthFailureWindow    = 5 * time.Minute
	healthUnhealthyPeriod  = 30 * time.Second
)

// HealthState describes the health of a credential's provider account.
type HealthState int

const (
	HealthHealthy HealthState = iota
	HealthUnhealthy
	HealthHalfOpen
)

func (h HealthState) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthUnhealthy:
		return "unhealthy"
	case HealthHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// HealthTracker keeps one circuit breaker per credential around usage queries.
// After healthFailureThreshold consecutive failures the breaker opens and
// queries fail fast for healthUnhealthyPeriod.
type HealthTracker struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewHealthTracker creates a new HealthTracker.
func NewHealthTracker() *HealthTracker {
	return &HealthTracker{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// FetchUsage runs fn through the credential's breaker.
func (h *HealthTracker) FetchUsage(credentialID string, fn func() (Usage, error)) (Usage, error) {
	v, err := h.breaker(credentialID).Execute(func() (interface{}, error) {
		u, err := fn()
		return u, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Usage{}, fmt.Errorf("%w: circuit open for credential %s", ErrProviderUnavailable, credentialID)
		}
		return Usage{}, err
	}
	return v.(Usage), nil
}

// GetHealth returns the current health state for a credential.
func (h *HealthTracker) GetHealth(credentialID string) HealthState {
	h.mu.Lock()
	cb, ok := h.breakers[credentialID]
	h.mu.Unlock()
	if !ok {
		return HealthHealthy
	}

	switch cb.State() {
	case gobreaker.StateOpen:
		return HealthUnhealthy
	case gobreaker.StateHalfOpen:
		return HealthHalfOpen
	default:
		return HealthHealthy
	}
}

// Forget drops the breaker of a deleted or re-enabled credential.
func (h *HealthTracker) Forget(credentialID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.breakers, credentialID)
}

func (h *HealthTracker) breaker(credentialID string) *gobreaker.CircuitBreaker {
	h.mu.Lock()
	defer h.mu.Unlock()

	cb, ok := h.breakers[credentialID]
	if !ok {
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        credentialID,
			MaxRequests: 1,
			Interval:    healthFailureWindow,
			Timeout:     healthUnhealthyPeriod,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= healthFailureThreshold
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
		})
		h.breakers[credentialID] = cb
	}
	return cb
}

package voicepool

import "time"

// Meter observes pool events for monitoring/logging.
type Meter interface {
	// OnAllocate is called after every allocation, successful or not.
	OnAllocate(event AllocateEvent)

	// OnSync is called after every quota sync attempt.
	OnSync(event SyncEvent)

	// OnResult is called when a synthesis call returns.
	OnResult(event ResultEvent)
}

// AllocateEvent describes an allocation decision.
type AllocateEvent struct {
	CredentialID string
	Label        string
	Required     int64
	Remaining    int64
	Excluded     int
	Rescued      bool
	Error        error
}

// SyncEvent describes one quota sync.
type SyncEvent struct {
	CredentialID string
	Label        string
	Remaining    int64
	Total        int64
	Active       bool
	Success      bool
	Duration     time.Duration
	Error        error
}

// ResultEvent describes the outcome of a provider synthesis call.
type ResultEvent struct {
	Provider     string
	CredentialID string
	Label        string
	Chars        int64
	Attempt      int
	Success      bool
	Duration     time.Duration
	Error        error
}

// noopMeter is a meter that does nothing.
type noopMeter struct{}

func (noopMeter) OnAllocate(AllocateEvent) {}
func (noopMeter) OnSync(SyncEvent)         {}
func (noopMeter) OnResult(ResultEvent)     {}

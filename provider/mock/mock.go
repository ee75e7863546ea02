// Package mock is a scriptable speech provider for tests.
package mock

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ineyio/voicepool"
)

// Provider is a mock speech provider. Usage and synthesis outcomes are
// scripted per secret.
type Provider struct {
	name    string
	latency time.Duration

	mu        sync.Mutex
	usage     map[string]voicepool.Usage
	usageErrs map[string]error
	synthErrs map[string][]error
	synthFunc func(secret string, req voicepool.SynthesisRequest) (io.ReadCloser, error)
	usageLog  map[string]int
	synthLog  []Call

	usageCalls atomic.Int64
	synthCalls atomic.Int64
}

// Call records one Synthesize invocation.
type Call struct {
	Secret string
	Text   string
}

var _ voicepool.Provider = (*Provider)(nil)

// Option configures a mock Provider.
type Option func(*Provider)

// New creates a mock provider with the given options.
func New(opts ...Option) *Provider {
	p := &Provider{
		name:      "mock",
		usage:     make(map[string]voicepool.Usage),
		usageErrs: make(map[string]error),
		synthErrs: make(map[string][]error),
		usageLog:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithName sets the provider name.
func WithName(name string) Option {
	return func(p *Provider) { p.name = name }
}

// WithLatency adds simulated latency to each call.
func WithLatency(d time.Duration) Option {
	return func(p *Provider) { p.latency = d }
}

// WithUsage sets the usage reported for secret.
func WithUsage(secret string, used, limit int64) Option {
	return func(p *Provider) { p.usage[secret] = voicepool.Usage{Used: used, Limit: limit} }
}

// WithSynthFunc sets a custom synthesis function, consulted after scripted errors.
func WithSynthFunc(fn func(secret string, req voicepool.SynthesisRequest) (io.ReadCloser, error)) Option {
	return func(p *Provider) { p.synthFunc = fn }
}

func (p *Provider) Name() string { return p.name }

// SetUsage sets the usage reported for secret.
func (p *Provider) SetUsage(secret string, used, limit int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.usage[secret] = voicepool.Usage{Used: used, Limit: limit}
}

// FailUsage makes FetchUsage for secret return err until cleared with a nil err.
func (p *Provider) FailUsage(secret string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.usageErrs, secret)
		return
	}
	p.usageErrs[secret] = err
}

// FailSynthesis queues errors returned by the next Synthesize calls for
// secret, one per call. A nil entry lets that call succeed.
func (p *Provider) FailSynthesis(secret string, errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.synthErrs[secret] = append(p.synthErrs[secret], errs...)
}

func (p *Provider) FetchUsage(ctx context.Context, secret string) (voicepool.Usage, error) {
	if err := p.wait(ctx); err != nil {
		return voicepool.Usage{}, err
	}
	p.usageCalls.Add(1)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.usageLog[secret]++

	if err := p.usageErrs[secret]; err != nil {
		return voicepool.Usage{}, err
	}
	u, ok := p.usage[secret]
	if !ok {
		return voicepool.Usage{}, fmt.Errorf("%w: unknown secret", voicepool.ErrUnauthorized)
	}
	return u, nil
}

// Synthesize returns the text itself as audio bytes and adds its length to
// the secret's usage.
func (p *Provider) Synthesize(ctx context.Context, secret string, req voicepool.SynthesisRequest) (io.ReadCloser, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	p.synthCalls.Add(1)

	p.mu.Lock()
	p.synthLog = append(p.synthLog, Call{Secret: secret, Text: req.Text})
	if queued := p.synthErrs[secret]; len(queued) > 0 {
		err := queued[0]
		p.synthErrs[secret] = queued[1:]
		if err != nil {
			p.mu.Unlock()
			return nil, err
		}
	}
	if u, ok := p.usage[secret]; ok {
		u.Used += voicepool.CountChars(req.Text)
		p.usage[secret] = u
	}
	fn := p.synthFunc
	p.mu.Unlock()

	if fn != nil {
		return fn(secret, req)
	}
	return io.NopCloser(strings.NewReader(req.Text)), nil
}

func (p *Provider) wait(ctx context.Context) error {
	if p.latency <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(p.latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UsageCalls returns the number of FetchUsage calls.
func (p *Provider) UsageCalls() int64 { return p.usageCalls.Load() }

// UsageCallsFor returns the number of FetchUsage calls for secret.
func (p *Provider) UsageCallsFor(secret string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.usageLog[secret]
}

// SynthCalls returns the number of Synthesize calls.
func (p *Provider) SynthCalls() int64 { return p.synthCalls.Load() }

// SynthLog returns every Synthesize call in order.
func (p *Provider) SynthLog() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.synthLog))
	copy(out, p.synthLog)
	return out
}

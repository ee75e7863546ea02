package voicepool_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ineyio/voicepool"
	"github.com/ineyio/voicepool/provider/mock"
	"github.com/ineyio/voicepool/store"
)

const testLimit = 10000

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	pool  *voicepool.Pool
	store *store.MemoryStore
	prov  *mock.Provider
	clock *testClock
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, cfg voicepool.Config, opts ...voicepool.Option) *fixture {
	t.Helper()
	clock := &testClock{now: testEpoch}
	f := &fixture{
		store: store.NewMemoryStore(store.WithClock(clock.Now)),
		prov:  mock.New(),
		clock: clock,
	}
	opts = append([]voicepool.Option{
		voicepool.WithClock(clock.Now),
		voicepool.WithLogger(quietLogger()),
	}, opts...)

	p, err := voicepool.NewPool(cfg, f.store, f.prov, opts...)
	require.NoError(t, err)
	f.pool = p
	return f
}

func secretFor(label string) string {
	return "sk_" + label + "_0123456789abcdef"
}

// add stores an active credential whose recorded and provider-side
// remaining quota are both remaining.
func (f *fixture) add(t *testing.T, label string, remaining int64) voicepool.Credential {
	t.Helper()
	return f.addWithProvider(t, label, remaining, remaining)
}

// addWithProvider stores a credential whose record says recorded while the
// provider reports actual.
func (f *fixture) addWithProvider(t *testing.T, label string, recorded, actual int64) voicepool.Credential {
	t.Helper()
	ctx := context.Background()
	c, err := f.store.Create(ctx, label, secretFor(label), testLimit)
	require.NoError(t, err)
	require.NoError(t, f.store.UpsertQuota(ctx, c.ID, voicepool.QuotaUpdate{
		Remaining: recorded,
		Total:     testLimit,
		Active:    true,
		SyncedAt:  f.clock.Now(),
	}))
	f.prov.SetUsage(c.Secret, testLimit-actual, testLimit)
	return f.get(t, c.ID)
}

func (f *fixture) addInactive(t *testing.T, label string, remaining int64) voicepool.Credential {
	t.Helper()
	c := f.add(t, label, remaining)
	require.NoError(t, f.store.SetActive(context.Background(), c.ID, false))
	return f.get(t, c.ID)
}

func (f *fixture) get(t *testing.T, id string) voicepool.Credential {
	t.Helper()
	c, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return c
}

func text(n int) string {
	return strings.Repeat("a", n)
}

// recordingMeter captures events for assertions.
type recordingMeter struct {
	mu        sync.Mutex
	allocates []voicepool.AllocateEvent
	syncs     []voicepool.SyncEvent
	results   []voicepool.ResultEvent
}

func (m *recordingMeter) OnAllocate(e voicepool.AllocateEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allocates = append(m.allocates, e)
}

func (m *recordingMeter) OnSync(e voicepool.SyncEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncs = append(m.syncs, e)
}

func (m *recordingMeter) OnResult(e voicepool.ResultEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, e)
}

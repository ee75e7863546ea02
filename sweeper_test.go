package voicepool_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineyio/voicepool"
)

func TestSweeper_SweepNow(t *testing.T) {
	f := newFixture(t, voicepool.Config{Sweep: voicepool.SweepConfig{Rate: 1000}})
	a := f.addWithProvider(t, "a", 100, 4000)
	b := f.addWithProvider(t, "b", 100, 5000)
	f.prov.FailUsage(b.Secret, voicepool.ErrProviderUnavailable)
	off := f.addInactive(t, "off", 100)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := voicepool.NewSweeper(f.pool)
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	res, err := s.SweepNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, voicepool.SweepResult{Synced: 1, Failed: 1}, res)
	assert.Equal(t, int64(4000), f.get(t, a.ID).RemainingQuota)
	assert.Equal(t, 0, f.prov.UsageCallsFor(off.Secret))

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSweeper_TicksOnInterval(t *testing.T) {
	f := newFixture(t, voicepool.Config{Sweep: voicepool.SweepConfig{Interval: 20 * time.Millisecond, Rate: 1000}})
	a := f.add(t, "a", 100)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go voicepool.NewSweeper(f.pool).Start(ctx)

	assert.Eventually(t, func() bool {
		return f.prov.UsageCallsFor(a.Secret) >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestSweeper_SweepNowHonorsContext(t *testing.T) {
	f := newFixture(t, voicepool.Config{})
	s := voicepool.NewSweeper(f.pool)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := s.SweepNow(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

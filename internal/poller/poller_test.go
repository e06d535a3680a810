package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rule-console/internal/logger"
	"rule-console/internal/metrics"
)

func TestStartValidation(t *testing.T) {
	p := New(0, func(context.Context) error { return nil }, logger.NewNop(), nil)
	assert.ErrorIs(t, p.Start(context.Background()), ErrInvalidPeriod)

	p = New(time.Hour, func(context.Context) error { return nil }, logger.NewNop(), nil)
	require.NoError(t, p.Start(context.Background()))
	assert.ErrorIs(t, p.Start(context.Background()), ErrAlreadyStarted)

	p.Stop()
	assert.ErrorIs(t, p.Start(context.Background()), ErrStopped)
}

func TestTicksOnInterval(t *testing.T) {
	var count atomic.Int32
	p := New(10*time.Millisecond, func(context.Context) error {
		count.Add(1)
		return nil
	}, logger.NewNop(), nil)

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	assert.Eventually(t, func() bool { return count.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestNoOverlappingTicks(t *testing.T) {
	var (
		running atomic.Int32
		maxSeen atomic.Int32
		calls   atomic.Int32
	)
	release := make(chan struct{})

	p := New(5*time.Millisecond, func(ctx context.Context) error {
		n := running.Add(1)
		defer running.Add(-1)
		if n > maxSeen.Load() {
			maxSeen.Store(n)
		}
		calls.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}, logger.NewNop(), nil)

	require.NoError(t, p.Start(context.Background()))

	// let several intervals pass while the first tick is held open
	assert.Eventually(t, func() bool { return p.Stats().Skipped >= 3 }, time.Second, 5*time.Millisecond)
	assert.False(t, p.Trigger())

	close(release)
	p.Stop()

	assert.Equal(t, int32(1), maxSeen.Load())
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestTrigger(t *testing.T) {
	done := make(chan struct{}, 1)
	p := New(time.Hour, func(context.Context) error {
		done <- struct{}{}
		return nil
	}, logger.NewNop(), nil)

	assert.False(t, p.Trigger(), "trigger before start")

	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.Trigger())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("triggered tick did not run")
	}

	p.Stop()
	assert.False(t, p.Trigger(), "trigger after stop")
}

func TestStopIsIdempotent(t *testing.T) {
	p := New(time.Millisecond, func(context.Context) error { return nil }, logger.NewNop(), nil)

	p.Stop() // before start
	p.Stop()

	p = New(time.Millisecond, func(context.Context) error { return nil }, logger.NewNop(), nil)
	require.NoError(t, p.Start(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Stop()
		}()
	}
	wg.Wait()
}

func TestStopCancelsInFlightTick(t *testing.T) {
	started := make(chan struct{})
	var canceled atomic.Bool

	p := New(time.Hour, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		canceled.Store(true)
		return ctx.Err()
	}, logger.NewNop(), nil)

	require.NoError(t, p.Start(context.Background()))
	require.True(t, p.Trigger())
	<-started

	p.Stop()
	assert.True(t, canceled.Load())
	assert.Equal(t, uint64(1), p.Stats().Errors)
}

func TestNoTicksAfterStop(t *testing.T) {
	var count atomic.Int32
	p := New(2*time.Millisecond, func(context.Context) error {
		count.Add(1)
		return nil
	}, logger.NewNop(), nil)

	require.NoError(t, p.Start(context.Background()))
	assert.Eventually(t, func() bool { return count.Load() > 0 }, time.Second, time.Millisecond)
	p.Stop()

	after := count.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, count.Load())
}

func TestTickMetrics(t *testing.T) {
	m, err := metrics.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	results := make(chan struct{}, 2)
	fail := true
	p := New(time.Hour, func(context.Context) error {
		defer func() { results <- struct{}{} }()
		if fail {
			return errors.New("service down")
		}
		return nil
	}, logger.NewNop(), m)

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	require.True(t, p.Trigger())
	<-results
	fail = false

	// the next trigger is accepted once the failed tick has finished
	require.Eventually(t, p.Trigger, time.Second, time.Millisecond)
	<-results

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.PollTicks("ok")) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PollTicks("error")))
}

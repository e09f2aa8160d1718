package metric_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hitta/metrics/metric"
)

// syncBuffer is a bytes.Buffer safe for the poller goroutine to log into.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestPollerNeverOverlapsRuns(t *testing.T) {
	var active, maxActive, runs atomic.Int32
	p := metric.NewPoller("slow", func(ctx context.Context) error {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		active.Add(-1)
		runs.Add(1)
		return nil
	})

	require.NoError(t, p.Start(time.Millisecond))
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, p.Shutdown(time.Second))

	assert.Equal(t, int32(1), maxActive.Load())
	assert.Equal(t, metric.StateStopped, p.State())
}

func TestPollerKeepsRunningAfterErrorsAndPanics(t *testing.T) {
	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))

	var runs atomic.Int32
	p := metric.NewPoller("flaky", func(ctx context.Context) error {
		switch runs.Add(1) {
		case 1:
			return errors.New("sink unavailable")
		case 2:
			panic("formatter bug")
		}
		return nil
	}, metric.WithLogger(logger))

	require.NoError(t, p.Start(time.Millisecond))
	require.Eventually(t, func() bool { return runs.Load() >= 4 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, p.Shutdown(time.Second))

	out := logs.String()
	assert.Contains(t, out, "report failed")
	assert.Contains(t, out, "reporter=flaky")
	assert.Contains(t, out, "sink unavailable")
	assert.Contains(t, out, "formatter bug")
}

func TestPollerShutdownTimeoutStillReleases(t *testing.T) {
	started := make(chan struct{})
	unblock := make(chan struct{})
	var closed atomic.Bool

	var once sync.Once
	p := metric.NewPoller("stuck", func(ctx context.Context) error {
		once.Do(func() { close(started) })
		<-unblock
		return nil
	}, metric.WithCloser(func() error {
		closed.Store(true)
		return nil
	}))

	require.NoError(t, p.Start(time.Millisecond))
	<-started

	err := p.Shutdown(20 * time.Millisecond)
	require.ErrorIs(t, err, metric.ErrShutdownTimeout)
	assert.False(t, closed.Load())

	close(unblock)
	require.Eventually(t, closed.Load, time.Second, 5*time.Millisecond)
}

func TestPollerShutdownCancelsRunContextOnTimeout(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	var cancelled atomic.Bool
	p := metric.NewPoller("ctx", func(ctx context.Context) error {
		once.Do(func() { close(started) })
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	})
	require.NoError(t, p.Start(time.Millisecond))
	<-started

	require.ErrorIs(t, p.Shutdown(10*time.Millisecond), metric.ErrShutdownTimeout)
	require.Eventually(t, cancelled.Load, time.Second, 5*time.Millisecond)
}

func TestPollerLifecycle(t *testing.T) {
	closeErr := errors.New("close failed")
	var closes atomic.Int32
	p := metric.NewPoller("idle", func(ctx context.Context) error { return nil },
		metric.WithCloser(func() error {
			closes.Add(1)
			return closeErr
		}))

	assert.Equal(t, metric.StateIdle, p.State())
	assert.Error(t, p.Start(0))
	require.NoError(t, p.RunNow(context.Background()))

	require.NoError(t, p.Start(time.Hour))
	assert.ErrorIs(t, p.Start(time.Hour), metric.ErrAlreadyStarted)
	assert.Equal(t, metric.StateScheduled, p.State())

	assert.ErrorIs(t, p.Shutdown(time.Second), closeErr)
	assert.ErrorIs(t, p.Shutdown(time.Second), closeErr)
	assert.Equal(t, int32(1), closes.Load())

	assert.ErrorIs(t, p.Start(time.Hour), metric.ErrStopped)
	assert.ErrorIs(t, p.RunNow(context.Background()), metric.ErrStopped)
}

func TestPollerNeverStartedReleasesOnStop(t *testing.T) {
	var closed atomic.Bool
	p := metric.NewPoller("never", func(ctx context.Context) error { return nil },
		metric.WithCloser(func() error {
			closed.Store(true)
			return nil
		}))
	p.Stop()
	assert.True(t, closed.Load())
}

func TestReportersShutdownJoinsErrors(t *testing.T) {
	a := metric.NewPoller("a", func(ctx context.Context) error { return nil },
		metric.WithCloser(func() error { return errors.New("a broke") }))
	b := metric.NewPoller("b", func(ctx context.Context) error { return errors.New("b run") })

	rs := metric.Reporters{a, b}
	err := rs.RunNow(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b: b run")

	err = rs.Shutdown(time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a: a broke")
}

package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"memcontext-be/internal/metrics"
	"memcontext-be/internal/pkg/logger"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPool(t *testing.T, size, queue int) (*Pool, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	p := NewPool(Config{Size: size, QueueSize: queue}, logger.NewNopLogger(), m)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
	return p, m
}

func TestSubmit_ReturnsResult(t *testing.T) {
	p, _ := newPool(t, 2, 4)

	task, err := Submit(p, func() (int, error) { return 42, nil })
	require.NoError(t, err)

	got, err := task.Await(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestSubmit_PropagatesError(t *testing.T) {
	p, _ := newPool(t, 1, 1)
	boom := errors.New("boom")

	task, err := Submit(p, func() (string, error) { return "", boom })
	require.NoError(t, err)

	_, err = task.Await(context.Background(), time.Second)
	assert.ErrorIs(t, err, boom)
}

func TestAwait_TimeoutLeavesTaskRunning(t *testing.T) {
	p, m := newPool(t, 1, 1)
	release := make(chan struct{})
	var finished atomic.Bool

	task, err := Submit(p, func() (int, error) {
		<-release
		finished.Store(true)
		return 1, nil
	})
	require.NoError(t, err)

	start := time.Now()
	_, err = task.Await(context.Background(), 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.False(t, finished.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DetachedTasks))

	close(release)
	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("task never finished after timeout")
	}
	assert.True(t, finished.Load())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.DetachedTasks))
}

func TestPool_BoundedConcurrency(t *testing.T) {
	const size = 3
	p, _ := newPool(t, size, 32)

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		require.NoError(t, p.Go(func() {
			defer wg.Done()
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
		}))
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(size))
}

func TestPool_QueueFull(t *testing.T) {
	p, m := newPool(t, 1, 1)
	block := make(chan struct{})
	started := make(chan struct{})
	defer close(block)

	require.NoError(t, p.Go(func() { close(started); <-block }))
	<-started
	require.NoError(t, p.Go(func() { <-block }))

	_, err := Submit(p, func() (int, error) { return 0, nil })
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RejectedTasks))
}

func TestPool_RecoversPanics(t *testing.T) {
	p, m := newPool(t, 1, 2)

	task, err := Submit(p, func() (int, error) { panic("kaboom") })
	require.NoError(t, err)
	_, err = task.Await(context.Background(), time.Second)
	assert.ErrorContains(t, err, "kaboom")

	// The worker survived and still serves work.
	task2, err := Submit(p, func() (int, error) { return 7, nil })
	require.NoError(t, err)
	got, err := task2.Await(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 7, got)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PanickedTasks))
}

func TestPool_ShutdownRejectsNewWork(t *testing.T) {
	p := NewPool(Config{Size: 1, QueueSize: 1}, logger.NewNopLogger(), nil)
	require.NoError(t, p.Shutdown(context.Background()))

	assert.ErrorIs(t, p.Go(func() {}), ErrPoolClosed)
	require.NoError(t, p.Shutdown(context.Background()))
}

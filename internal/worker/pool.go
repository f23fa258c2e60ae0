// Package worker runs detached background work on a fixed set of goroutines.
//
// Work is handed in with Go (fire and forget) or Submit (returns a Task whose
// result can be awaited with a deadline). An expired await never cancels the
// work: it keeps its worker until it finishes and its result is dropped.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"memcontext-be/internal/metrics"
	"memcontext-be/internal/pkg/logger"
)

var (
	ErrTimeout    = errors.New("worker: task deadline exceeded")
	ErrQueueFull  = errors.New("worker: queue is full")
	ErrPoolClosed = errors.New("worker: pool is closed")
)

const (
	DefaultSize      = 10
	DefaultQueueSize = 256
)

type Config struct {
	Size      int
	QueueSize int
}

type Pool struct {
	jobs    chan func()
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	logger  logger.ILogger
	metrics *metrics.Metrics
}

func NewPool(cfg Config, log logger.ILogger, m *metrics.Metrics) *Pool {
	if cfg.Size <= 0 {
		cfg.Size = DefaultSize
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	p := &Pool{
		jobs:    make(chan func(), cfg.QueueSize),
		logger:  log,
		metrics: m,
	}
	p.wg.Add(cfg.Size)
	for i := 0; i < cfg.Size; i++ {
		go p.worker(i)
	}

	log.Info("WorkerPool", "Worker pool started", map[string]interface{}{
		"workers": cfg.Size,
		"queue":   cfg.QueueSize,
	})
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.metrics.TaskQueued(-1)
		p.metrics.WorkerBusy(1)
		p.run(id, job)
		p.metrics.WorkerBusy(-1)
	}
}

func (p *Pool) run(id int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			p.metrics.Panicked()
			p.logger.Error("WorkerPool", "Recovered panic in background task", map[string]interface{}{
				"worker": id,
				"panic":  fmt.Sprint(r),
			})
		}
	}()
	job()
}

// Go enqueues fn without blocking. It fails with ErrQueueFull when every worker
// is busy and the queue is at capacity.
func (p *Pool) Go(fn func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.metrics.Rejected()
		return ErrPoolClosed
	}

	p.metrics.TaskQueued(1)
	select {
	case p.jobs <- fn:
		return nil
	default:
		p.metrics.TaskQueued(-1)
		p.metrics.Rejected()
		return ErrQueueFull
	}
}

// Shutdown stops accepting work and waits for queued and running tasks, or ctx.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Task is the handle to one submitted unit of work.
type Task[T any] struct {
	done    chan struct{}
	val     T
	err     error
	metrics *metrics.Metrics

	mu       sync.Mutex
	finished bool
	detached bool
}

// Submit schedules fn on the pool and returns immediately.
func Submit[T any](p *Pool, fn func() (T, error)) (*Task[T], error) {
	t := &Task[T]{done: make(chan struct{}), metrics: p.metrics}

	err := p.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				p.metrics.Panicked()
				t.err = fmt.Errorf("worker: task panicked: %v", r)
			}
			t.complete()
		}()
		t.val, t.err = fn()
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Task[T]) complete() {
	t.mu.Lock()
	t.finished = true
	if t.detached {
		t.metrics.Detached(-1)
	}
	t.mu.Unlock()
	close(t.done)
}

func (t *Task[T]) detach() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.finished && !t.detached {
		t.detached = true
		t.metrics.Detached(1)
	}
}

// Done is closed once the task has finished.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Await waits at most deadline for the result. On expiry (or ctx end) the task
// is left running and ErrTimeout (or ctx.Err()) is returned.
func (t *Task[T]) Await(ctx context.Context, deadline time.Duration) (T, error) {
	timer := time.NewTimer(deadline)
	defer timer.Stop()

	var zero T
	select {
	case <-t.done:
		return t.val, t.err
	case <-timer.C:
		t.detach()
		return zero, ErrTimeout
	case <-ctx.Done():
		t.detach()
		return zero, ctx.Err()
	}
}

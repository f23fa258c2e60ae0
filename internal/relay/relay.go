// Package relay turns a blocking producer that reports progress into an ordered,
// pull-based event sequence with heartbeats.
//
// The producer runs on its own flow of control and pushes (progress, message)
// pairs into an unbounded queue. The consumer polls with a short timeout,
// emitting a heartbeat whenever nothing arrived. After the producer exits, the
// consumer sees exactly one terminal event and then nothing.
package relay

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"memcontext-be/internal/metrics"
	"memcontext-be/internal/pkg/logger"

	"github.com/google/uuid"
)

const DefaultPollInterval = 500 * time.Millisecond

type Kind int

const (
	KindProgress Kind = iota
	KindHeartbeat
	KindTerminal
)

func (k Kind) String() string {
	switch k {
	case KindProgress:
		return "progress"
	case KindHeartbeat:
		return "heartbeat"
	case KindTerminal:
		return "terminal"
	}
	return "unknown"
}

// Event is one element of the relayed sequence. Progress and Message are set for
// KindProgress; Success, Result and Err for KindTerminal.
type Event[T any] struct {
	Kind     Kind
	Progress float64
	Message  string
	Success  bool
	Result   T
	Err      string
}

type State int32

const (
	StateRunning State = iota
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Reporter is handed to the producer. It is safe to call from the producer's goroutine only.
type Reporter func(progress float64, message string)

type Producer[T any] func(report Reporter) (T, error)

// Launcher starts fn on a separate flow of control.
type Launcher interface {
	Go(fn func()) error
}

type LauncherFunc func(fn func()) error

func (f LauncherFunc) Go(fn func()) error { return f(fn) }

// Goroutine launches every producer on a fresh goroutine.
var Goroutine = LauncherFunc(func(fn func()) error {
	go fn()
	return nil
})

type Relay struct {
	poll     time.Duration
	launcher Launcher
	logger   logger.ILogger
	metrics  *metrics.Metrics
}

func New(poll time.Duration, launcher Launcher, log logger.ILogger, m *metrics.Metrics) *Relay {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	if launcher == nil {
		launcher = Goroutine
	}
	return &Relay{poll: poll, launcher: launcher, logger: log, metrics: m}
}

type Job[T any] struct {
	ID string

	relay  *Relay
	q      *queue
	exited chan struct{}
	state  atomic.Int32
	start  time.Time

	// written by the producer side before exited is closed
	result T
	err    error

	// consumer side only
	terminated bool
}

// Start launches producer immediately. If the launcher refuses the work, the job
// fails and its sequence is a single failure terminal event.
func Start[T any](r *Relay, producer Producer[T]) *Job[T] {
	j := &Job[T]{
		ID:     uuid.NewString(),
		relay:  r,
		q:      newQueue(),
		exited: make(chan struct{}),
		start:  time.Now(),
	}

	run := func() {
		defer func() {
			if rec := recover(); rec != nil {
				j.err = fmt.Errorf("producer panicked: %v", rec)
			}
			j.finish()
		}()
		j.result, j.err = producer(j.report)
	}

	if err := r.launcher.Go(run); err != nil {
		j.err = fmt.Errorf("start producer: %w", err)
		j.finish()
	}
	return j
}

func (j *Job[T]) report(progress float64, message string) {
	if math.IsNaN(progress) {
		progress = 0
	}
	progress = math.Max(0, math.Min(1, progress))
	j.q.push(progressItem{progress: math.Round(progress*10000) / 10000, message: message})
}

func (j *Job[T]) finish() {
	if j.err != nil {
		j.state.Store(int32(StateFailed))
		j.relay.logger.Warn("ProgressRelay", "Producer failed", map[string]interface{}{
			"job":      j.ID,
			"error":    j.err.Error(),
			"duration": time.Since(j.start).String(),
		})
	} else {
		j.state.Store(int32(StateDone))
		j.relay.logger.Info("ProgressRelay", "Producer finished", map[string]interface{}{
			"job":      j.ID,
			"duration": time.Since(j.start).String(),
		})
	}
	j.q.push(progressItem{sentinel: true})
	close(j.exited)
}

func (j *Job[T]) State() State {
	return State(j.state.Load())
}

// Next returns the next event, blocking at most one poll interval unless the
// producer has already signalled completion. ok is false once the terminal
// event has been returned.
func (j *Job[T]) Next() (ev Event[T], ok bool) {
	if j.terminated {
		return ev, false
	}

	it, got := j.q.pop(j.relay.poll)
	if !got {
		j.relay.metrics.Heartbeat()
		return Event[T]{Kind: KindHeartbeat}, true
	}
	if !it.sentinel {
		return Event[T]{Kind: KindProgress, Progress: it.progress, Message: it.message}, true
	}

	<-j.exited
	j.terminated = true
	if j.err != nil {
		return Event[T]{Kind: KindTerminal, Err: j.err.Error()}, true
	}
	return Event[T]{Kind: KindTerminal, Success: true, Result: j.result}, true
}

// Drain feeds every event to emit until the terminal event has been emitted or
// emit fails. A failing emit abandons the sequence; the producer keeps running.
func (j *Job[T]) Drain(emit func(Event[T]) error) error {
	for {
		ev, ok := j.Next()
		if !ok {
			return nil
		}
		if err := emit(ev); err != nil {
			return err
		}
		if ev.Kind == KindTerminal {
			return nil
		}
	}
}

// Wait blocks until the producer has exited and returns its outcome.
func (j *Job[T]) Wait() (T, error) {
	<-j.exited
	return j.result, j.err
}

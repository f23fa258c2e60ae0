// Package stream runs one chat turn: it streams the primary reply while a
// background task looks for catalog items, and appends those items to the same
// stream if they arrive within a bounded wait.
package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"memcontext-be/internal/enrichment"
	"memcontext-be/internal/metrics"
	"memcontext-be/internal/pkg/logger"
	"memcontext-be/internal/transport"
	"memcontext-be/internal/worker"
	"memcontext-be/pkg/catalog"
	"memcontext-be/pkg/memcontext"
	"memcontext-be/pkg/profile"
)

const DefaultEnrichmentDeadline = 20 * time.Second

// Recommender computes the enrichment result. It must not fail.
type Recommender interface {
	Recommend(ctx context.Context, req enrichment.Request) []catalog.Item
}

type Turn struct {
	Handle  memcontext.Handle
	UserID  string
	Message string
}

type Config struct {
	EnrichmentDeadline time.Duration
	// Endpoint labels metrics, e.g. "chat" or "ws_chat".
	Endpoint string
}

type Orchestrator struct {
	pool        *worker.Pool
	recommender Recommender
	logger      logger.ILogger
	metrics     *metrics.Metrics
	cfg         Config
}

func NewOrchestrator(pool *worker.Pool, recommender Recommender, log logger.ILogger, m *metrics.Metrics, cfg Config) *Orchestrator {
	if cfg.EnrichmentDeadline <= 0 {
		cfg.EnrichmentDeadline = DefaultEnrichmentDeadline
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "chat"
	}
	return &Orchestrator{pool: pool, recommender: recommender, logger: log, metrics: m, cfg: cfg}
}

// WithEndpoint returns a copy labelling its metrics with endpoint.
func (o *Orchestrator) WithEndpoint(endpoint string) *Orchestrator {
	cp := *o
	cp.cfg.Endpoint = endpoint
	return &cp
}

// ErrClientGone wraps emitter failures.
var ErrClientGone = errors.New("stream: client gone")

// Run writes the whole event sequence for turn to out:
// response fragments, text_done, an optional advertise, then done.
// A generation failure ends the sequence with a single error event instead.
// The returned error is informational; the sequence has already been terminated.
func (o *Orchestrator) Run(ctx context.Context, turn Turn, out transport.Emitter) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	o.metrics.StreamOpened(o.cfg.Endpoint)
	defer func() { o.metrics.StreamClosed(o.cfg.Endpoint, time.Since(start).Seconds()) }()

	emit := func(ev Event) error {
		if err := out.Emit(ev); err != nil {
			return fmt.Errorf("%w: %v", ErrClientGone, err)
		}
		o.metrics.Event(o.cfg.Endpoint, string(ev.Type))
		return nil
	}

	task := o.submitEnrichment(turn)

	chunks, errc := turn.Handle.ResponseStream(ctx, turn.Message)
	for chunk := range chunks {
		if err := emit(Response(chunk)); err != nil {
			o.logger.Info("ChatStream", "Client disconnected during generation", map[string]interface{}{
				"user_id": turn.UserID,
			})
			return err
		}
	}
	if err := <-errc; err != nil {
		o.logger.Error("ChatStream", "Primary generation failed", map[string]interface{}{
			"user_id": turn.UserID,
			"error":   err,
		})
		if emitErr := emit(Error(err.Error())); emitErr != nil {
			return emitErr
		}
		return fmt.Errorf("generation: %w", err)
	}

	if err := emit(TextDone()); err != nil {
		return err
	}

	if items := o.awaitEnrichment(ctx, turn, task); len(items) > 0 {
		if err := emit(Advertise(items)); err != nil {
			return err
		}
	}

	return emit(Done())
}

// submitEnrichment snapshots everything the task needs, so the task never
// touches the handle concurrently with the primary generation.
func (o *Orchestrator) submitEnrichment(turn Turn) *worker.Task[[]catalog.Item] {
	req := enrichment.Request{
		UserID:      turn.UserID,
		Tags:        profile.DeriveTags(turn.Handle.UserProfile()),
		Input:       turn.Message,
		RecentTurns: turn.Handle.RecentTurns(enrichment.DefaultHistoryTurns),
		Client:      turn.Handle.Client(),
		Model:       turn.Handle.Model(),
	}

	task, err := worker.Submit(o.pool, func() ([]catalog.Item, error) {
		// Detached from the request: a disconnect must not cancel enrichment.
		return o.recommender.Recommend(context.Background(), req), nil
	})
	if err != nil {
		o.metrics.Enrichment("rejected")
		o.logger.Warn("ChatStream", "Enrichment not scheduled", map[string]interface{}{
			"user_id": turn.UserID,
			"error":   err.Error(),
		})
		return nil
	}
	return task
}

func (o *Orchestrator) awaitEnrichment(ctx context.Context, turn Turn, task *worker.Task[[]catalog.Item]) []catalog.Item {
	if task == nil {
		return nil
	}

	items, err := task.Await(ctx, o.cfg.EnrichmentDeadline)
	switch {
	case errors.Is(err, worker.ErrTimeout):
		o.metrics.Enrichment("timeout")
		o.logger.Warn("ChatStream", "Enrichment deadline exceeded", map[string]interface{}{
			"user_id":  turn.UserID,
			"deadline": o.cfg.EnrichmentDeadline.String(),
		})
		return nil
	case err != nil:
		o.metrics.Enrichment("error")
		o.logger.Warn("ChatStream", "Enrichment failed", map[string]interface{}{
			"user_id": turn.UserID,
			"error":   err.Error(),
		})
		return nil
	case len(items) == 0:
		o.metrics.Enrichment("empty")
		return nil
	default:
		o.metrics.Enrichment("hit")
		return items
	}
}

// Package metrics holds the Prometheus collectors for streams, the worker pool
// and the progress relay. Every method is safe on a nil *Metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "memcontext"

type Metrics struct {
	Registry *prometheus.Registry

	ActiveStreams    *prometheus.GaugeVec
	StreamEvents     *prometheus.CounterVec
	StreamDuration   *prometheus.HistogramVec
	Heartbeats       prometheus.Counter
	EnrichmentResult *prometheus.CounterVec

	QueuedTasks   prometheus.Gauge
	BusyWorkers   prometheus.Gauge
	DetachedTasks prometheus.Gauge
	RejectedTasks prometheus.Counter
	PanickedTasks prometheus.Counter
}

// New registers every collector on a fresh registry, so tests can build as many as they like.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		ActiveStreams: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Push streams currently open, by endpoint.",
		}, []string{"endpoint"}),
		StreamEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_total",
			Help:      "Events written to clients, by endpoint and event type.",
		}, []string{"endpoint", "type"}),
		StreamDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_seconds",
			Help:      "Wall time from stream open to terminal event.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"endpoint"}),
		Heartbeats: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_heartbeats_total",
			Help:      "Heartbeat events emitted while waiting on a producer.",
		}),
		EnrichmentResult: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_results_total",
			Help:      "Enrichment outcomes: hit, empty, timeout, rejected.",
		}, []string{"outcome"}),
		QueuedTasks: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_queued_tasks",
			Help:      "Tasks waiting for a free worker.",
		}),
		BusyWorkers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_busy",
			Help:      "Workers currently executing a task.",
		}),
		DetachedTasks: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_detached_tasks",
			Help:      "Tasks still running after their awaiting caller gave up.",
		}),
		RejectedTasks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_rejected_tasks_total",
			Help:      "Submissions refused because the queue was full or the pool closed.",
		}),
		PanickedTasks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_panicked_tasks_total",
			Help:      "Tasks that panicked and were recovered.",
		}),
	}
}

func (m *Metrics) StreamOpened(endpoint string) {
	if m == nil {
		return
	}
	m.ActiveStreams.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) StreamClosed(endpoint string, seconds float64) {
	if m == nil {
		return
	}
	m.ActiveStreams.WithLabelValues(endpoint).Dec()
	m.StreamDuration.WithLabelValues(endpoint).Observe(seconds)
}

func (m *Metrics) Event(endpoint, eventType string) {
	if m == nil {
		return
	}
	m.StreamEvents.WithLabelValues(endpoint, eventType).Inc()
}

func (m *Metrics) Heartbeat() {
	if m == nil {
		return
	}
	m.Heartbeats.Inc()
}

func (m *Metrics) Enrichment(outcome string) {
	if m == nil {
		return
	}
	m.EnrichmentResult.WithLabelValues(outcome).Inc()
}

func (m *Metrics) TaskQueued(delta float64) {
	if m == nil {
		return
	}
	m.QueuedTasks.Add(delta)
}

func (m *Metrics) WorkerBusy(delta float64) {
	if m == nil {
		return
	}
	m.BusyWorkers.Add(delta)
}

func (m *Metrics) Detached(delta float64) {
	if m == nil {
		return
	}
	m.DetachedTasks.Add(delta)
}

func (m *Metrics) Rejected() {
	if m == nil {
		return
	}
	m.RejectedTasks.Inc()
}

func (m *Metrics) Panicked() {
	if m == nil {
		return
	}
	m.PanickedTasks.Inc()
}

// Package metrics exposes Prometheus instrumentation for render jobs, the
// edit log and garbage collection. Every Metrics value owns its registry so
// tests and embedded daemons never collide on the global one. Methods on a
// nil *Metrics are no-ops.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cutline"

// Metrics groups the daemon's collectors.
type Metrics struct {
	registry *prometheus.Registry

	jobs           *prometheus.CounterVec
	renderDuration *prometheus.HistogramVec
	attempts       *prometheus.CounterVec
	queueDepth     *prometheus.GaugeVec
	appends        *prometheus.CounterVec
	gcItems        *prometheus.CounterVec
	gcRuns         *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		jobs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_jobs_total",
			Help:      "Render jobs reaching a terminal state",
		}, []string{"kind", "outcome"}),
		renderDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Wall time of successful render attempts",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"kind"}),
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_attempts_total",
			Help:      "Render attempts by result",
		}, []string{"kind", "result"}),
		queueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "render_queue_depth",
			Help:      "Render jobs currently queued or running",
		}, []string{"state"}),
		appends: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edit_appends_total",
			Help:      "Edit log append attempts by result",
		}, []string{"result"}),
		gcItems: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gc_items_total",
			Help:      "Export artifacts processed by GC stage and result",
		}, []string{"stage", "result"}),
		gcRuns: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gc_stage_duration_seconds",
			Help:      "Duration of GC stage runs",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
	}
}

// Registry returns the backing registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// JobFinished records a terminal job outcome.
func (m *Metrics) JobFinished(kind, outcome string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(kind, outcome).Inc()
}

// AttemptFinished records one render attempt. Successful attempts also feed
// the duration histogram.
func (m *Metrics) AttemptFinished(kind, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(kind, result).Inc()
	if result == "ok" {
		m.renderDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	}
}

// SetQueueDepth publishes queued and running job counts.
func (m *Metrics) SetQueueDepth(queued, running int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues("queued").Set(float64(queued))
	m.queueDepth.WithLabelValues("running").Set(float64(running))
}

// Append records an edit log append result such as "ok" or "conflict".
func (m *Metrics) Append(result string) {
	if m == nil {
		return
	}
	m.appends.WithLabelValues(result).Inc()
}

// GCItem records the outcome of one GC item.
func (m *Metrics) GCItem(stage string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.gcItems.WithLabelValues(stage, result).Inc()
}

// GCStage times a GC stage run. Call the returned function when it ends.
func (m *Metrics) GCStage(stage string) func() {
	if m == nil {
		return func() {}
	}
	timer := prometheus.NewTimer(m.gcRuns.WithLabelValues(stage))
	return func() { timer.ObserveDuration() }
}

// Package metrics exposes inputsentry telemetry as Prometheus metrics.
//
// Features:
//   - Counters for ingested and rejected events, passes and verdicts
//   - Delivery outcome counters, including queue drops by reason
//   - Histograms for pass duration and verdict confidence
//   - Buffer occupancy gauge
//   - HTTP handler for scraping
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"inputsentry/internal/event"
	"inputsentry/internal/verdict"
)

const namespace = "inputsentry"

// Metrics holds the engine collectors. It implements engine.Observer.
type Metrics struct {
	registry *prometheus.Registry

	EventsIngested *prometheus.CounterVec
	EventsRejected *prometheus.CounterVec
	Passes         *prometheus.CounterVec
	Verdicts       *prometheus.CounterVec
	Reports        *prometheus.CounterVec
	ReportsDropped *prometheus.CounterVec

	BufferEvents prometheus.Gauge

	PassDuration prometheus.Histogram
	Confidence   prometheus.Histogram
}

// New creates the collectors and registers them, along with the Go runtime
// and process collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry registers the engine collectors on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: reg,

		EventsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_ingested_total",
			Help:      "Records accepted into the event buffer, by kind.",
		}, []string{"kind"}),
		EventsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_rejected_total",
			Help:      "Malformed records rejected before buffering, by reason.",
		}, []string{"reason"}),
		Passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_passes_total",
			Help:      "Completed analysis passes, by whether a verdict was produced.",
		}, []string{"produced"}),
		Verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Verdicts produced, by suspicion and severity.",
		}, []string{"suspicious", "severity"}),
		Reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Verdict delivery attempts, by outcome.",
		}, []string{"outcome"}),
		ReportsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_dropped_total",
			Help:      "Verdicts dropped before delivery, by reason.",
		}, []string{"reason"}),
		BufferEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffer_events",
			Help:      "Records currently held in the event buffer.",
		}),
		PassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Wall time of one analysis pass.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
		}),
		Confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "verdict_confidence",
			Help:      "Raw confidence of produced verdicts.",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.7, 1.0, 1.5},
		}),
	}

	reg.MustRegister(
		m.EventsIngested,
		m.EventsRejected,
		m.Passes,
		m.Verdicts,
		m.Reports,
		m.ReportsDropped,
		m.BufferEvents,
		m.PassDuration,
		m.Confidence,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// EventIngested implements engine.Observer.
func (m *Metrics) EventIngested(kind event.Kind) {
	m.EventsIngested.WithLabelValues(kind.String()).Inc()
}

// EventRejected implements engine.Observer.
func (m *Metrics) EventRejected(reason string) {
	m.EventsRejected.WithLabelValues(reason).Inc()
}

// PassCompleted implements engine.Observer.
func (m *Metrics) PassCompleted(d time.Duration, produced bool) {
	m.PassDuration.Observe(d.Seconds())
	m.Passes.WithLabelValues(boolLabel(produced)).Inc()
}

// VerdictProduced implements engine.Observer.
func (m *Metrics) VerdictProduced(v verdict.Verdict) {
	m.Verdicts.WithLabelValues(boolLabel(v.Suspicious), v.Severity().String()).Inc()
	m.Confidence.Observe(v.Confidence)
}

// ReportDelivered implements engine.Observer.
func (m *Metrics) ReportDelivered() { m.Reports.WithLabelValues("delivered").Inc() }

// ReportFailed implements engine.Observer.
func (m *Metrics) ReportFailed() { m.Reports.WithLabelValues("failed").Inc() }

// ReportDropped implements engine.Observer.
func (m *Metrics) ReportDropped(reason string) {
	m.ReportsDropped.WithLabelValues(reason).Inc()
}

// BufferSize implements engine.Observer.
func (m *Metrics) BufferSize(n int) { m.BufferEvents.Set(float64(n)) }

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

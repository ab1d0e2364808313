// Package metric provides the prometheus instrumentation for the jsonrender
// runtime: stream intake, assembly, rendering, dispatch and validation.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all runtime-level metrics.
type Metrics struct {
	// Stream intake
	ChunksReceived  *prometheus.CounterVec
	BytesReceived   *prometheus.CounterVec
	RecordsDecoded  prometheus.Counter
	RecordsRejected prometheus.Counter

	// Assembly
	RecordsMerged      prometheus.Counter
	TreeElements       prometheus.Gauge
	ElementsIncomplete prometheus.Gauge
	ElementsInvalid    prometheus.Gauge

	// Rendering
	RenderPasses   prometheus.Counter
	RenderDuration prometheus.Histogram

	// Actions
	Dispatches *prometheus.CounterVec

	// Validation
	ValidationFailures *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all runtime metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		ChunksReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jsonrender",
				Subsystem: "stream",
				Name:      "chunks_received_total",
				Help:      "Total number of raw chunks received",
			},
			[]string{"transport"},
		),

		BytesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jsonrender",
				Subsystem: "stream",
				Name:      "bytes_received_total",
				Help:      "Total number of raw bytes received",
			},
			[]string{"transport"},
		),

		RecordsDecoded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "jsonrender",
				Subsystem: "stream",
				Name:      "records_decoded_total",
				Help:      "Total number of complete element records decoded",
			},
		),

		RecordsRejected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "jsonrender",
				Subsystem: "stream",
				Name:      "records_rejected_total",
				Help:      "Total number of records rejected as unparseable",
			},
		),

		RecordsMerged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "jsonrender",
				Subsystem: "assembly",
				Name:      "records_merged_total",
				Help:      "Total number of records merged into the flat map",
			},
		),

		TreeElements: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "jsonrender",
				Subsystem: "assembly",
				Name:      "tree_elements",
				Help:      "Number of elements in the current flat map",
			},
		),

		ElementsIncomplete: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "jsonrender",
				Subsystem: "assembly",
				Name:      "elements_incomplete",
				Help:      "Elements currently excluded from render as incomplete",
			},
		),

		ElementsInvalid: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "jsonrender",
				Subsystem: "assembly",
				Name:      "elements_invalid",
				Help:      "Elements currently excluded from render as catalog-invalid",
			},
		),

		RenderPasses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "jsonrender",
				Subsystem: "render",
				Name:      "passes_total",
				Help:      "Total number of render set computations",
			},
		),

		RenderDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "jsonrender",
				Subsystem: "render",
				Name:      "duration_seconds",
				Help:      "Render set computation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),

		Dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jsonrender",
				Subsystem: "actions",
				Name:      "dispatches_total",
				Help:      "Total number of action dispatches by outcome",
			},
			[]string{"action", "status"},
		),

		ValidationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jsonrender",
				Subsystem: "validation",
				Name:      "failures_total",
				Help:      "Total number of field validation failures",
			},
			[]string{"path"},
		),
	}
}

// Registry bundles the runtime metrics with their prometheus registry.
type Registry struct {
	prometheusRegistry *prometheus.Registry
	Metrics            *Metrics
}

// NewRegistry creates a registry with all runtime metrics plus the Go
// runtime collectors registered.
func NewRegistry() *Registry {
	r := &Registry{
		prometheusRegistry: prometheus.NewRegistry(),
		Metrics:            NewMetrics(),
	}

	r.prometheusRegistry.MustRegister(
		r.Metrics.ChunksReceived,
		r.Metrics.BytesReceived,
		r.Metrics.RecordsDecoded,
		r.Metrics.RecordsRejected,
		r.Metrics.RecordsMerged,
		r.Metrics.TreeElements,
		r.Metrics.ElementsIncomplete,
		r.Metrics.ElementsInvalid,
		r.Metrics.RenderPasses,
		r.Metrics.RenderDuration,
		r.Metrics.Dispatches,
		r.Metrics.ValidationFailures,
	)

	r.prometheusRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// Gatherer exposes the underlying registry for scrape-side consumers.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.prometheusRegistry
}

// Handler returns the HTTP handler serving the registry in prometheus
// exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prometheusRegistry, promhttp.HandlerOpts{})
}

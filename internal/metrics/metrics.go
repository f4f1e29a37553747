// Package metrics exposes Prometheus instrumentation for the creative agent.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "creative_agent"

type Metrics struct {
	Gatherer *prometheus.Registry

	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	operations       *prometheus.CounterVec
	validationErrors *prometheus.CounterVec
	previews         prometheus.Counter
	uploads          *prometheus.CounterVec
	generations      *prometheus.CounterVec
}

// New builds a Metrics backed by its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		Gatherer: registry,
		requests: newCounter(registry, "http_requests_total",
			"Count of HTTP requests by route and status code.",
			[]string{"route", "status"}),
		requestDuration: newHistogramVec(registry, "http_request_duration_seconds",
			"HTTP request latency by route.",
			[]string{"route"}, prometheus.DefBuckets),
		operations: newCounter(registry, "operations_total",
			"Count of agent operations by name and outcome.",
			[]string{"operation", "outcome"}),
		validationErrors: newCounter(registry, "validation_errors_total",
			"Count of manifest validation errors by error type.",
			[]string{"type"}),
		previews: newCounterWithoutLabels(registry, "previews_rendered_total",
			"Count of preview documents rendered."),
		uploads: newCounter(registry, "preview_uploads_total",
			"Count of preview uploads by outcome.",
			[]string{"outcome"}),
		generations: newCounter(registry, "generations_total",
			"Count of model generation calls by outcome.",
			[]string{"outcome"}),
	}
}

func newCounter(registry *prometheus.Registry, name, help string, labels []string) *prometheus.CounterVec {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, labels)
	registry.MustRegister(counter)
	return counter
}

func newCounterWithoutLabels(registry *prometheus.Registry, name, help string) prometheus.Counter {
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	})
	registry.MustRegister(counter)
	return counter
}

func newHistogramVec(registry *prometheus.Registry, name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	histogram := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labels)
	registry.MustRegister(histogram)
	return histogram
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Gatherer, promhttp.HandlerOpts{
		MaxRequestsInFlight: 5,
		Timeout:             10 * time.Second,
	})
}

// All Record methods are nil-safe so callers may run without metrics.

func (m *Metrics) RecordRequest(route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordOperation(operation string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome(err)).Inc()
}

func (m *Metrics) RecordValidationError(errorType string) {
	if m == nil {
		return
	}
	m.validationErrors.WithLabelValues(errorType).Inc()
}

func (m *Metrics) RecordPreviews(n int) {
	if m == nil {
		return
	}
	m.previews.Add(float64(n))
}

func (m *Metrics) RecordUpload(err error) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) RecordGeneration(err error) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

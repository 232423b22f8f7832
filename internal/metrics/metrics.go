// Package metrics exposes Prometheus collectors for the HTTP surface and the
// classification and triage domains.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JaimeStill/triage/pkg/middleware"
	"github.com/JaimeStill/triage/pkg/resilience"
)

const namespace = "triage"

// Metrics owns a private registry. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	predictorCalls    *prometheus.CounterVec
	predictorDuration *prometheus.HistogramVec
	classifications   *prometheus.CounterVec
	triageItems       *prometheus.CounterVec
	approvals         prometheus.Counter
}

// New creates the collectors and registers them, along with the Go runtime
// and process collectors, on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests processed.",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		requestInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "in_flight_requests",
				Help:      "Number of in-flight HTTP requests.",
			},
		),
		predictorCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "predictor",
				Name:      "calls_total",
				Help:      "Predictor invocations by outcome.",
			},
			[]string{"outcome"},
		),
		predictorDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "predictor",
				Name:      "duration_seconds",
				Help:      "Predictor call duration in seconds, including retries.",
				Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"outcome"},
		),
		classifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "classification",
				Name:      "requests_total",
				Help:      "Classification requests by outcome.",
			},
			[]string{"outcome"},
		),
		triageItems: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "triage",
				Name:      "items_total",
				Help:      "Triage batch items by status.",
			},
			[]string{"status"},
		),
		approvals: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "triage",
				Name:      "approvals_total",
				Help:      "Documents newly approved for extraction.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestTotal,
		m.requestDuration,
		m.requestInFlight,
		m.predictorCalls,
		m.predictorDuration,
		m.classifications,
		m.triageItems,
		m.approvals,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts, durations, and in-flight requests.
// Paths are normalized so identifiers do not become label values.
func (m *Metrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := middleware.NewStatusRecorder(w)

			m.requestInFlight.Inc()
			defer m.requestInFlight.Dec()

			next.ServeHTTP(rec, r)

			path := NormalizePath(r.URL.Path)
			m.requestTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.Status)).Inc()
			m.requestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// ObservePredictor records one predictor call.
func (m *Metrics) ObservePredictor(err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	switch {
	case resilience.IsCircuitOpen(err):
		outcome = "circuit_open"
	case err != nil:
		outcome = "error"
	}
	m.predictorCalls.WithLabelValues(outcome).Inc()
	m.predictorDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordClassification counts a classification outcome such as
// "classified", "previously_classified", or "error".
func (m *Metrics) RecordClassification(outcome string) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(outcome).Inc()
}

// RecordTriageItem counts a triage batch item by status.
func (m *Metrics) RecordTriageItem(status string) {
	if m == nil {
		return
	}
	m.triageItems.WithLabelValues(status).Inc()
}

// RecordApproval counts a false to true approval transition.
func (m *Metrics) RecordApproval() {
	if m == nil {
		return
	}
	m.approvals.Inc()
}

// NormalizePath replaces patient and document identifiers with their
// route parameter names.
func NormalizePath(path string) string {
	segments := strings.Split(path, "/")
	for i := 1; i < len(segments); i++ {
		switch segments[i-1] {
		case "patients":
			segments[i] = "{patient_id}"
		case "documents":
			if segments[i] != "classify" && segments[i] != "triage" {
				segments[i] = "{document_id}"
			}
		}
	}
	return strings.Join(segments, "/")
}

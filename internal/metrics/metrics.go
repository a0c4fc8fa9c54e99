// ABOUTME: Prometheus metrics for thread store operations and HTTP traffic
// ABOUTME: Implements the threads.Recorder interface and wraps handlers with request counters

// Package metrics provides Prometheus metrics for the thread service
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/coven-threads/internal/store"
	"github.com/2389/coven-threads/internal/threads"
)

// Operation status label values
const (
	StatusOK       = "ok"
	StatusNotFound = "not_found"
	StatusCorrupt  = "corrupt"
	StatusError    = "error"
)

// Metrics holds all Prometheus metrics for the thread service
type Metrics struct {
	// Store metrics
	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec
	ThreadsTotal           prometheus.Gauge

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates and registers all metrics with reg.
// A nil reg selects a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	m := &Metrics{gatherer: reg}

	m.StoreOperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threads_store_operations_total",
			Help: "Total number of thread store operations",
		},
		[]string{"operation", "status"},
	)

	m.StoreOperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "threads_store_operation_duration_seconds",
			Help:    "Duration of thread store operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	m.ThreadsTotal = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "threads_total",
			Help: "Number of readable threads seen by the most recent list",
		},
	)

	m.HTTPRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threads_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "code"},
	)

	m.HTTPRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "threads_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	m.HTTPRequestsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "threads_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// ObserveOperation records a store operation and its outcome
func (m *Metrics) ObserveOperation(operation string, err error, duration time.Duration) {
	m.StoreOperationsTotal.WithLabelValues(operation, statusOf(err)).Inc()
	m.StoreOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetThreadCount updates the thread gauge
func (m *Metrics) SetThreadCount(n int) {
	m.ThreadsTotal.Set(float64(n))
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return StatusOK
	case threads.IsCorrupt(err):
		return StatusCorrupt
	case errors.Is(err, store.ErrNotFound):
		return StatusNotFound
	default:
		return StatusError
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Instrument wraps next so each request is counted under route.
// route should be the pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) Instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

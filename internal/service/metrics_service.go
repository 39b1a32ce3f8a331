package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	importRows      prometheus.Counter
	importBatches   *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "record_transitions_total",
		Help: "Record lifecycle transitions by kind and outcome",
	}, []string{"kind", "transition"})

	importRows := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "import_rows_total",
		Help: "Total user rows committed by bulk imports",
	})

	importBatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "import_batches_total",
		Help: "Import batches by outcome",
	}, []string{"outcome"})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Notification deliveries by template and outcome",
	}, []string{"template", "outcome"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, transitions, importRows, importBatches, notifications, cacheHits, cacheMisses, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		transitions:     transitions,
		importRows:      importRows,
		importBatches:   importBatches,
		notifications:   notifications,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordTransition counts a lifecycle transition for a record kind.
func (m *MetricsService) RecordTransition(kind, transition string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(kind, transition).Inc()
}

// RecordImport counts one import batch and its committed rows.
func (m *MetricsService) RecordImport(outcome string, rows int) {
	if m == nil {
		return
	}
	m.importBatches.WithLabelValues(outcome).Inc()
	if rows > 0 {
		m.importRows.Add(float64(rows))
	}
}

// RecordNotification counts a notification delivery attempt.
func (m *MetricsService) RecordNotification(template, outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(template, outcome).Inc()
}

// RecordCacheOperation records a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

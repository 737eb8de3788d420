package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP layer and the reconciler.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	reconcileTotal  *prometheus.CounterVec
	reconcileTime   *prometheus.HistogramVec
	storeCalls      *prometheus.CounterVec
	warnings        *prometheus.CounterVec
	dryRunRejected  prometheus.Counter
	importedRows    prometheus.Counter
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

	reconcileTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_reconcile_total",
		Help: "Reconcile runs by chosen operation and final phase",
	}, []string{"operation", "phase"})

	reconcileTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "timetable_reconcile_duration_seconds",
		Help:    "Wall time of a reconcile including refetches",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	storeCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_store_calls_total",
		Help: "Store calls issued by the reconciler",
	}, []string{"call", "outcome"})

	warnings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_warnings_total",
		Help: "Non-fatal warnings returned to editors",
	}, []string{"kind"})

	dryRunRejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timetable_dry_run_rejected_total",
		Help: "Batch commits refused by the dry run",
	})

	importedRows := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timetable_imported_rows_total",
		Help: "Spreadsheet rows committed",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, reconcileTotal, reconcileTime, storeCalls, warnings, dryRunRejected, importedRows, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		reconcileTotal:  reconcileTotal,
		reconcileTime:   reconcileTime,
		storeCalls:      storeCalls,
		warnings:        warnings,
		dryRunRejected:  dryRunRejected,
		importedRows:    importedRows,
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

// Registry returns the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
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

// ObserveReconcile records a finished reconcile.
func (m *MetricsService) ObserveReconcile(operation, phase string, duration time.Duration) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "none"
	}
	m.reconcileTotal.WithLabelValues(operation, phase).Inc()
	m.reconcileTime.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordStoreCall counts one store call and its outcome.
func (m *MetricsService) RecordStoreCall(call string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.storeCalls.WithLabelValues(call, outcome).Inc()
}

// RecordWarning counts a warning by kind.
func (m *MetricsService) RecordWarning(kind string) {
	if m == nil {
		return
	}
	m.warnings.WithLabelValues(kind).Inc()
}

// RecordDryRunRejected counts a refused batch commit.
func (m *MetricsService) RecordDryRunRejected() {
	if m == nil {
		return
	}
	m.dryRunRejected.Inc()
}

// RecordImportedRows adds committed rows.
func (m *MetricsService) RecordImportedRows(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.importedRows.Add(float64(n))
}

package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the weekly planner.
// Every method is safe on a nil receiver.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	weeklyRuns      *prometheus.CounterVec
	weeklyDuration  prometheus.Histogram
	optimizerTotal  *prometheus.CounterVec
	blocksWritten   *prometheus.CounterVec
	changeRequests  *prometheus.CounterVec
	notifications   *prometheus.CounterVec
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

	weeklyRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_weekly_runs_total",
		Help: "Weekly generation runs by outcome",
	}, []string{"status"})

	weeklyDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "planner_weekly_run_duration_seconds",
		Help:    "Duration of weekly generation runs",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	})

	optimizerTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_optimizer_results_total",
		Help: "Slot optimizer outcomes by mode",
	}, []string{"mode", "outcome"})

	blocksWritten := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_blocks_written_total",
		Help: "Schedule blocks written by source",
	}, []string{"source"})

	changeRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_change_requests_total",
		Help: "Group change request transitions by status",
	}, []string{"status"})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_notifications_total",
		Help: "Notifications by delivery outcome",
	}, []string{"outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, weeklyRuns, weeklyDuration, optimizerTotal, blocksWritten, changeRequests, notifications, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		weeklyRuns:      weeklyRuns,
		weeklyDuration:  weeklyDuration,
		optimizerTotal:  optimizerTotal,
		blocksWritten:   blocksWritten,
		changeRequests:  changeRequests,
		notifications:   notifications,
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

// Registry exposes the underlying registry, mainly for tests.
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

// ObserveWeeklyRun records a finished weekly generation run.
func (m *MetricsService) ObserveWeeklyRun(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.weeklyRuns.WithLabelValues(status).Inc()
	m.weeklyDuration.Observe(duration.Seconds())
}

// RecordOptimizerOutcome counts accepted, invalid and failed optimizer answers.
func (m *MetricsService) RecordOptimizerOutcome(mode, outcome string) {
	if m == nil {
		return
	}
	m.optimizerTotal.WithLabelValues(mode, outcome).Inc()
}

// RecordBlocksWritten counts inserted blocks.
func (m *MetricsService) RecordBlocksWritten(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.blocksWritten.WithLabelValues(source).Add(float64(n))
}

// RecordChangeRequest counts change request transitions.
func (m *MetricsService) RecordChangeRequest(status string) {
	if m == nil {
		return
	}
	m.changeRequests.WithLabelValues(status).Inc()
}

// RecordNotification counts notification delivery outcomes.
func (m *MetricsService) RecordNotification(outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(outcome).Inc()
}

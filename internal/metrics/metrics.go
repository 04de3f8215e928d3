// Package metrics exposes Prometheus collectors for the crawl job service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsTotal                  *prometheus.CounterVec
	resultsSavedTotal          prometheus.Counter
	pagesFailedTotal           prometheus.Counter
	lostJobsTotal              prometheus.Counter
	janitorDeletedTotal        prometheus.Counter
	workerBusy                 prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawld_jobs_total",
				Help: "Total number of jobs reaching a final status, labeled by status.",
			},
			[]string{"status"},
		)

		resultsSavedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawld_results_saved_total",
				Help: "Total number of page results appended to job result lists.",
			},
		)

		pagesFailedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawld_pages_failed_total",
				Help: "Total number of pages that exhausted the engine's retry budget.",
			},
		)

		lostJobsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawld_lost_jobs_total",
				Help: "Total number of dequeued job IDs with no backing record.",
			},
		)

		janitorDeletedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawld_janitor_deleted_total",
				Help: "Total number of expired jobs deleted by the janitor sweep.",
			},
		)

		workerBusy = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawld_worker_busy",
				Help: "Whether the worker is currently processing a job.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob increments the job counter for the given final status.
func ObserveJob(status string) {
	jobsTotal.WithLabelValues(status).Inc()
}

// ObserveResultSaved increments the saved-results counter.
func ObserveResultSaved() {
	resultsSavedTotal.Inc()
}

// ObservePageFailed increments the failed-pages counter.
func ObservePageFailed() {
	pagesFailedTotal.Inc()
}

// ObserveLostJob increments the lost-job counter.
func ObserveLostJob() {
	lostJobsTotal.Inc()
}

// ObserveJanitorDeleted adds to the janitor deletion counter.
func ObserveJanitorDeleted(n int) {
	if n > 0 {
		janitorDeletedTotal.Add(float64(n))
	}
}

// SetWorkerBusy flips the worker busy gauge.
func SetWorkerBusy(busy bool) {
	if busy {
		workerBusy.Set(1)
		return
	}
	workerBusy.Set(0)
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method).Observe(duration.Seconds())
}

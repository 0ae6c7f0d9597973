// Package metrics exposes Prometheus collectors for the ingestion service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ingestRunsTotal             *prometheus.CounterVec
	ingestRunDurationSeconds    *prometheus.HistogramVec
	ingestJobsPublishedTotal    prometheus.Counter
	extractionCallsTotal        *prometheus.CounterVec
	classifierOutcomesTotal     *prometheus.CounterVec
	cleanerOutcomesTotal        *prometheus.CounterVec
	snapshotsTotal              *prometheus.CounterVec
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec
	ingestActiveWorkers         prometheus.Gauge
	extractorRateLimitDelaySecs *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		ingestRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_runs_total",
				Help: "Total number of company runs, labeled by mode and status.",
			},
			[]string{"mode", "status"},
		)

		ingestRunDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_run_duration_seconds",
				Help:    "Histogram of company run durations, labeled by mode.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"mode"},
		)

		ingestJobsPublishedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_jobs_published_total",
				Help: "Total number of job rows written to published snapshots.",
			},
		)

		extractionCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_extraction_calls_total",
				Help: "Total number of extraction calls, labeled by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		classifierOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_classifier_outcomes_total",
				Help: "Total number of department classifications, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		cleanerOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_cleaner_outcomes_total",
				Help: "Total number of description cleanings, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		snapshotsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_snapshots_total",
				Help: "Total number of snapshots reaching a terminal status.",
			},
			[]string{"status"},
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
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120},
			},
			[]string{"method", "route"},
		)

		ingestActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ingest_active_workers",
				Help: "Number of workers currently running a task.",
			},
		)

		extractorRateLimitDelaySecs = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_extractor_rate_limit_delay_seconds",
				Help:    "Histogram of extractor rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)
	})
}

// SanitizeHost extracts a lowercase hostname from a URL for use as a label.
// It returns "unknown" if the URL is invalid.
func SanitizeHost(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveRun records a finished company run.
func ObserveRun(mode, status string, duration time.Duration) {
	Init()
	if mode == "" {
		mode = "none"
	}
	ingestRunsTotal.WithLabelValues(mode, status).Inc()
	ingestRunDurationSeconds.WithLabelValues(mode).Observe(duration.Seconds())
}

// ObservePublishedJobs adds n to the published job counter.
func ObservePublishedJobs(n int) {
	Init()
	if n > 0 {
		ingestJobsPublishedTotal.Add(float64(n))
	}
}

// ObserveExtraction records one extraction call.
func ObserveExtraction(kind, outcome string) {
	Init()
	extractionCallsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveClassification records a classifier outcome.
func ObserveClassification(outcome string) {
	Init()
	classifierOutcomesTotal.WithLabelValues(outcome).Inc()
}

// ObserveCleaning records a cleaner outcome.
func ObserveCleaning(outcome string) {
	Init()
	cleanerOutcomesTotal.WithLabelValues(outcome).Inc()
}

// ObserveSnapshot records a snapshot reaching a terminal status.
func ObserveSnapshot(status string) {
	Init()
	snapshotsTotal.WithLabelValues(status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	ingestActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	ingestActiveWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	extractorRateLimitDelaySecs.WithLabelValues(host).Observe(duration.Seconds())
}

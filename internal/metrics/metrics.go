// Package metrics exposes Prometheus collectors for the crawler service.
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
	fetchesTotal               *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	scrollAttempts             prometheus.Histogram
	recordsTotal               *prometheus.CounterVec
	fallbacksTotal             *prometheus.CounterVec
	knowledgeBaseJobs          prometheus.Gauge
	commitsTotal               *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobkb_fetches_total",
				Help: "Total number of category page fetches, labeled by category, mode and status.",
			},
			[]string{"category", "mode", "status"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jobkb_fetch_duration_seconds",
				Help:    "Histogram of category fetch latencies, labeled by mode.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"mode"},
		)

		scrollAttempts = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "jobkb_scroll_attempts",
				Help:    "Number of scroll attempts performed per scroll-mode fetch.",
				Buckets: prometheus.LinearBuckets(0, 1, 11),
			},
		)

		recordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobkb_records_total",
				Help: "Total number of deduplicated records produced, labeled by category.",
			},
			[]string{"category"},
		)

		fallbacksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobkb_sample_fallbacks_total",
				Help: "Total number of sample substitutions, labeled by scope (category or run).",
			},
			[]string{"scope"},
		)

		knowledgeBaseJobs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "jobkb_knowledge_base_jobs",
				Help: "total_jobs of the most recently built knowledge base.",
			},
		)

		commitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobkb_commits_total",
				Help: "Total number of knowledge base commits, labeled by status.",
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jobkb_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one category fetch.
func ObserveFetch(category, mode string, failed bool, duration time.Duration) {
	Init()
	status := "ok"
	if failed {
		status = "error"
	}
	fetchesTotal.WithLabelValues(category, mode, status).Inc()
	fetchDurationSeconds.WithLabelValues(mode).Observe(duration.Seconds())
}

// ObserveScrollAttempts records how many scrolls a scroll-mode fetch needed.
func ObserveScrollAttempts(n int) {
	Init()
	scrollAttempts.Observe(float64(n))
}

// ObserveRecords adds the deduplicated record count of a category.
func ObserveRecords(category string, n int) {
	Init()
	recordsTotal.WithLabelValues(category).Add(float64(n))
}

// ObserveFallback counts a sample substitution for the given scope.
func ObserveFallback(scope string) {
	Init()
	fallbacksTotal.WithLabelValues(scope).Inc()
}

// ObserveCommit records a knowledge base commit outcome.
func ObserveCommit(totalJobs int, err error) {
	Init()
	if err != nil {
		commitsTotal.WithLabelValues("error").Inc()
		return
	}
	commitsTotal.WithLabelValues("ok").Inc()
	knowledgeBaseJobs.Set(float64(totalJobs))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

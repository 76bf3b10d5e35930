// Package telemetry defines Prometheus metrics for the ingestion pipeline.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	apiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_api_requests_total",
			Help: "Total outbound API requests, labeled by host and status code.",
		},
		[]string{"host", "code"},
	)

	apiRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_api_request_duration_seconds",
			Help:    "Histogram of outbound API request latencies, labeled by host.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 15, 60, 180},
		},
		[]string{"host"},
	)

	rateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_rate_limit_delays_seconds",
			Help:    "Histogram of rate limiter wait durations.",
			Buckets: []float64{0.1, 0.35, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"host"},
	)

	batchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_batches_total",
			Help: "Total extraction batches processed, labeled by source and status.",
		},
		[]string{"source", "status"},
	)

	rowsUpsertedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_rows_upserted_total",
			Help: "Total rows written to the store, labeled by table.",
		},
		[]string{"table"},
	)

	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_retries_total",
			Help: "Total HTTP retries, labeled by host.",
		},
		[]string{"host"},
	)

	unmappedCodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_unmapped_codes_total",
			Help: "Codes with no crosswalk entry, labeled by dimension kind.",
		},
		[]string{"kind"},
	)
)

// Handler returns the standard Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAPIRequest records one outbound API request.
func ObserveAPIRequest(host string, code int, duration time.Duration) {
	apiRequestsTotal.WithLabelValues(host, strconv.Itoa(code)).Inc()
	apiRequestDurationSeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveBatch records a terminal batch outcome.
func ObserveBatch(source, status string) {
	batchesTotal.WithLabelValues(source, status).Inc()
}

// ObserveRowsUpserted records rows committed to a table.
func ObserveRowsUpserted(table string, n int) {
	if n > 0 {
		rowsUpsertedTotal.WithLabelValues(table).Add(float64(n))
	}
}

// ObserveRetry records an HTTP retry attempt.
func ObserveRetry(host string) {
	retriesTotal.WithLabelValues(host).Inc()
}

// ObserveUnmappedCode records a reconciler pass-through.
func ObserveUnmappedCode(kind string) {
	unmappedCodesTotal.WithLabelValues(kind).Inc()
}

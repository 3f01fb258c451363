// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/trafficwise/platform/internal/domain"
)

var (
	// HTTP request metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trafficwise_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trafficwise_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Access gate decisions
	GateDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trafficwise_gate_decisions_total",
			Help: "Access gate decisions by gate and outcome",
		},
		[]string{"gate", "outcome"},
	)

	// Submission intake
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trafficwise_submissions_total",
			Help: "Video bundle submissions by outcome code",
		},
		[]string{"outcome"},
	)

	ProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trafficwise_processing_backend_duration_seconds",
			Help:    "Time spent waiting on the processing backend",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	// Review pipeline
	ReviewsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trafficwise_reviews_total",
			Help: "Review transitions by action and outcome code",
		},
		[]string{"action", "outcome"},
	)

	// Outbox relay
	OutboxPublishedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trafficwise_outbox_published_total",
			Help: "Outbox events published to Kafka",
		},
	)
)

// Outcome labels an operation result: "ok", the domain error code, or "error".
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if code := domain.CodeOf(err); code != "" {
		return code
	}
	return "error"
}

// Package observability holds the Prometheus collectors and the OpenTelemetry
// tracer shared by the store and transport layers.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for PostOperations.
const (
	OutcomeOK        = "ok"
	OutcomeNotFound  = "not_found"
	OutcomeForbidden = "forbidden"
	OutcomeInvalid   = "invalid"
	OutcomeError     = "error"
)

var (
	// PostOperations counts store operations by name and outcome.
	PostOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hiss_post_operations_total",
		Help: "Total number of post store operations by outcome",
	}, []string{"operation", "outcome"})

	// LikeToggles counts like toggles by the direction they flipped.
	LikeToggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hiss_like_toggles_total",
		Help: "Total number of like toggles by result",
	}, []string{"result"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hiss_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})
)

// RecordOperation increments PostOperations for operation.
func RecordOperation(operation, outcome string) {
	PostOperations.WithLabelValues(operation, outcome).Inc()
}

// RecordLikeToggle increments LikeToggles with "liked" or "unliked".
func RecordLikeToggle(liked bool) {
	result := "unliked"
	if liked {
		result = "liked"
	}
	LikeToggles.WithLabelValues(result).Inc()
}

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}

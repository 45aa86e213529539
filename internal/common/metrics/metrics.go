// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecommendationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_requests_total",
			Help: "Total number of recommendation requests by outcome",
		},
		[]string{"status"},
	)

	RecommendationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "recommendation_request_duration_seconds",
			Help: "Duration of recommendation request processing in seconds",
		},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits per cache tier",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses per cache tier",
		},
		[]string{"cache"},
	)

	SourceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "candidate_source_errors_total",
			Help: "Total number of candidate source failures",
		},
		[]string{"source"},
	)

	SourceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "candidate_source_duration_seconds",
			Help: "Duration of candidate source calls in seconds",
		},
		[]string{"source"},
	)

	FallbackResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_results_total",
			Help: "Total number of fallback results served by reason",
		},
		[]string{"reason"},
	)

	// BreakerState reports circuit breaker state per breaker name:
	// 0 = closed, 1 = half-open, 2 = open.
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	BreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)
)

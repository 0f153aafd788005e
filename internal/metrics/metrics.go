// Package metrics registers the Prometheus metrics used by the orchestrator.
// Import this package from the server entry point so the collectors are
// registered before the /metrics handler is mounted.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request-level counters and histograms.
var (
	// CompletionsTotal counts GetCompletion calls labelled by orchestration
	// mode ("race", "sequential", "cache") and outcome ("success", "exhausted",
	// "invalid").
	CompletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_completions_total",
			Help: "Total number of completion requests handled by the orchestrator.",
		},
		[]string{"mode", "outcome"},
	)

	// CacheLookups counts cache lookups by result ("hit", "miss", "expired", "error").
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_cache_lookups_total",
			Help: "Prompt cache lookups by result.",
		},
		[]string{"result"},
	)

	// CacheSweeps counts expired-row sweeps by outcome ("ran", "throttled",
	// "busy", "error").
	CacheSweeps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_cache_sweeps_total",
			Help: "Prompt cache sweep attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// Invocations counts backend invocations by model, provider, and outcome
	// ("success", "failure").
	Invocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_model_invocations_total",
			Help: "Model invocations by outcome.",
		},
		[]string{"model", "provider", "outcome"},
	)

	// InvocationDuration observes backend call latency in seconds.
	InvocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_model_invocation_duration_seconds",
			Help:    "Backend invocation latency in seconds.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"model", "provider"},
	)

	// CircuitBreakerState tracks per-model breaker state: 0 = closed, 1 = open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orchestrator_circuit_breaker_state",
			Help: "Circuit breaker state per model (0=closed 1=open).",
		},
		[]string{"model"},
	)

	// DegradedDispatches counts requests dispatched while every model was
	// cooling down.
	DegradedDispatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_degraded_dispatches_total",
			Help: "Requests served from the full registry because every model was in cooldown.",
		},
	)

	// RescuePasses counts full-registry rescue passes after a restricted pool
	// was exhausted.
	RescuePasses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_rescue_passes_total",
			Help: "Full-registry rescue passes started after the eligible pool was exhausted.",
		},
	)

	// RateLimitRejections counts HTTP requests rejected by the rate limiter.
	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_rate_limit_rejections_total",
			Help: "Total requests rejected by rate limiting.",
		},
		[]string{"key_type"},
	)
)

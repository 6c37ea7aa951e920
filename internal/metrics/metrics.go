package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion
	EventsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "byteos_events_received_total",
			Help: "Session events received by profile updates",
		},
	)

	EventsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "byteos_events_skipped_total",
			Help: "Session events dropped during normalization",
		},
		[]string{"reason"},
	)

	// Profile writes
	ProfileUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "byteos_profile_updates_total",
			Help: "Profile update calls by outcome",
		},
		[]string{"outcome"}, // "committed", "noop", "conflict_exhausted", "error"
	)

	ProfileUpdateRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "byteos_profile_update_retries_total",
			Help: "Optimistic concurrency retries after a version conflict",
		},
	)

	ProfileUpdateDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "byteos_profile_update_duration_seconds",
			Help:    "Duration of profile updates including lock wait",
			Buckets: prometheus.DefBuckets,
		},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "byteos_store_errors_total",
			Help: "Store operation failures",
		},
		[]string{"op"},
	)

	// Recommendations
	NextActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "byteos_next_actions_total",
			Help: "Next-best-action decisions by action type",
		},
		[]string{"action"},
	)

	NextActionCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "byteos_next_action_cache_total",
			Help: "Next-best-action cache lookups",
		},
		[]string{"result"}, // "hit", "miss", "bypass", "error", "stale"
	)

	ModalityAdvice = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "byteos_modality_advice_total",
			Help: "Modality recommendations by switch decision",
		},
		[]string{"switch"},
	)

	// LLM providers
	ProviderFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "byteos_llm_provider_failures_total",
			Help: "Failed completion attempts per provider",
		},
		[]string{"provider"},
	)

	ProviderBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "byteos_llm_breaker_state",
			Help: "Circuit breaker state per provider (0=closed, 1=half-open, 2=open)",
		},
		[]string{"provider"},
	)

	// HTTP
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "byteos_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)
)

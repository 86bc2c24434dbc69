package metrics

import "github.com/prometheus/client_golang/prometheus"

// Embedding metrics, labelled by provider and model so a model switch shows
// up as a new series rather than a shift in an old one.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "escomatch",
			Subsystem: "embedding",
			Name:      "requests_total",
			Help:      "Embedding API calls by outcome",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "escomatch",
			Subsystem: "embedding",
			Name:      "request_duration_seconds",
			Help:      "Embedding API call latency",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider", "model"},
	)

	EmbeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "escomatch",
			Subsystem: "embedding",
			Name:      "tokens_total",
			Help:      "Tokens reported by the embedding provider",
		},
		[]string{"provider", "model", "type"}, // "prompt" / "total"
	)

	EmbeddingErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "escomatch",
			Subsystem: "embedding",
			Name:      "errors_total",
			Help:      "Embedding failures by class",
		},
		[]string{"provider", "model", "error_type"},
	)

	// EmbeddingCacheTotal counts Redis cache lookups of the embedding cache.
	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "escomatch",
			Subsystem: "embedding",
			Name:      "cache_lookups_total",
			Help:      "Embedding cache lookups by result",
		},
		[]string{"model", "result"}, // "hit" / "miss"
	)
)

var embMetricsRegistered bool

// RegisterEmbeddingMetrics registers the embedding metrics. Safe to call more than once.
func RegisterEmbeddingMetrics() {
	if embMetricsRegistered {
		return
	}
	prometheus.MustRegister(
		EmbeddingRequestsTotal,
		EmbeddingRequestDuration,
		EmbeddingTokensTotal,
		EmbeddingErrorsTotal,
		EmbeddingCacheTotal,
	)
	embMetricsRegistered = true
}

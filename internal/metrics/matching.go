package metrics

import "github.com/prometheus/client_golang/prometheus"

// Matching Prometheus metrics.
var (
	MatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "escomatch",
			Name:      "matches_total",
			Help:      "Total number of matched postings by method and status",
		},
		[]string{"method", "status"},
	)

	MatchFallbackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "escomatch",
			Name:      "match_fallback_total",
			Help:      "Semantic matches scored without the skills signal",
		},
	)

	MatchSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "escomatch",
			Name:      "match_skipped_total",
			Help:      "Postings skipped for retry after an embedding failure",
		},
	)

	MatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "escomatch",
			Name:      "match_duration_seconds",
			Help:      "Per-posting matching duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method"},
	)

	RuleErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "escomatch",
			Name:      "rule_errors_total",
			Help:      "Rule predicates that failed to evaluate",
		},
		[]string{"rule_id"},
	)

	DictionaryIssues = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "escomatch",
			Name:      "dictionary_integrity_issues",
			Help:      "Dictionary and forced-rule targets that do not resolve in the taxonomy",
		},
	)

	GoldPrecision = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "escomatch",
			Name:      "gold_precision",
			Help:      "Gold set precision of the last evaluation",
		},
		[]string{"matching_version"},
	)

	BatchPostingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "escomatch",
			Name:      "batch_postings_total",
			Help:      "Postings processed by the batch job by outcome",
		},
		[]string{"outcome"},
	)
)

var matchMetricsRegistered bool

// RegisterMatchingMetrics registers matching metrics. Must be called once from main.
func RegisterMatchingMetrics() {
	if matchMetricsRegistered {
		return
	}
	prometheus.MustRegister(MatchesTotal)
	prometheus.MustRegister(MatchFallbackTotal)
	prometheus.MustRegister(MatchSkippedTotal)
	prometheus.MustRegister(MatchDuration)
	prometheus.MustRegister(RuleErrorsTotal)
	prometheus.MustRegister(DictionaryIssues)
	prometheus.MustRegister(GoldPrecision)
	prometheus.MustRegister(BatchPostingsTotal)
	matchMetricsRegistered = true
}

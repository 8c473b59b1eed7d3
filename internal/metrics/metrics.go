// Package metrics holds the Prometheus instrumentation for evaluations,
// embedding calls, and the HTTP surface.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Evaluation and embedding Prometheus metrics.
var (
	EvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rankeval",
			Name:      "evaluations_total",
			Help:      "Total number of evaluation runs",
		},
		[]string{"mode", "status"}, // mode: single_vector / multi_vector / run_only
	)

	ScoringDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rankeval",
			Name:      "scoring_duration_seconds",
			Help:      "Similarity scoring duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		},
		[]string{"mode"},
	)

	ScoredPairsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rankeval",
			Name:      "scored_pairs_total",
			Help:      "Total query-passage pairs scored",
		},
		[]string{"mode"},
	)

	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rankeval",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rankeval",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "model"},
	)

	EmbeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rankeval",
			Name:      "embedding_tokens_total",
			Help:      "Total embedding tokens consumed",
		},
		[]string{"provider", "model", "type"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rankeval",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

var registered bool

// Register registers the evaluation and embedding metrics. Must be called
// once from main (no init()).
func Register() {
	if registered {
		return
	}
	prometheus.MustRegister(EvaluationsTotal)
	prometheus.MustRegister(ScoringDuration)
	prometheus.MustRegister(ScoredPairsTotal)
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(EmbeddingTokensTotal)
	prometheus.MustRegister(EmbeddingCacheTotal)
	registered = true
}

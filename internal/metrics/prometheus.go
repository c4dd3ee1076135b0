package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "factflow_query_duration_seconds",
			Help:    "Query processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"status"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factflow_query_total",
			Help: "Total number of queries processed",
		},
		[]string{"status"},
	)

	TrustScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "factflow_trust_score",
			Help:    "Composite trust scores of generated answers",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	PipelineRetries = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "factflow_pipeline_retries",
			Help:    "Number of refresh-and-retry cycles per query",
			Buckets: []float64{0, 1, 2, 3},
		},
	)

	HallucinationsDetected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "factflow_hallucinations_detected_total",
			Help: "Total answers flagged as hallucinated",
		},
	)

	UnsupportedClaims = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "factflow_unsupported_claims_count",
			Help:    "Number of unsupported claims per flagged answer",
			Buckets: []float64{0, 1, 2, 5, 10, 20},
		},
	)

	RefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factflow_refreshes_total",
			Help: "Total index refreshes by type",
		},
		[]string{"refresh_type"},
	)

	StaleDocuments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factflow_stale_documents_total",
			Help: "Total stale documents detected by reason",
		},
		[]string{"reason"},
	)

	VectorResultsCount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "factflow_vector_results_count",
			Help:    "Number of retrieved chunks per query",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factflow_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	UserSatisfaction = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "factflow_satisfaction_score",
			Help: "User feedback satisfaction score",
		},
		[]string{"helpful"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factflow_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factflow_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	DocumentsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "factflow_documents_processed_total",
			Help: "Total documents processed",
		},
	)
)

func Init() {
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryTotal)
	prometheus.MustRegister(TrustScore)
	prometheus.MustRegister(PipelineRetries)
	prometheus.MustRegister(HallucinationsDetected)
	prometheus.MustRegister(UnsupportedClaims)
	prometheus.MustRegister(RefreshesTotal)
	prometheus.MustRegister(StaleDocuments)
	prometheus.MustRegister(VectorResultsCount)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(UserSatisfaction)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(DocumentsProcessed)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

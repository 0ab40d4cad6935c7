package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	IngestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agentforge_ingest_duration_seconds",
			Help:    "Document ingestion duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	ChunksIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agentforge_chunks_ingested_total",
			Help: "Total chunks written to the vector index",
		},
	)

	DocumentsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentforge_documents_processed_total",
			Help: "Total documents ingested",
		},
		[]string{"status"},
	)

	RetrievalDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agentforge_retrieval_duration_seconds",
			Help:    "Retrieval duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	RetrievalResults = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agentforge_retrieval_results_count",
			Help:    "Number of results returned per retrieval",
			Buckets: []float64{0, 1, 2, 4, 8, 16},
		},
	)

	EmbeddingCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agentforge_embedding_cache_hits_total",
			Help: "Total embedding cache hits",
		},
	)

	EmbeddingCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agentforge_embedding_cache_misses_total",
			Help: "Total embedding cache misses",
		},
	)

	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentforge_webhook_deliveries_total",
			Help: "Webhook deliveries by event type and outcome",
		},
		[]string{"event", "outcome"},
	)

	WebhookAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agentforge_webhook_attempts_total",
			Help: "Total webhook delivery attempts including retries",
		},
	)

	WebhookQueueDrops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agentforge_webhook_queue_drops_total",
			Help: "Dispatches dropped because the delivery queue was full",
		},
	)
)

func Init() {
	prometheus.MustRegister(IngestDuration)
	prometheus.MustRegister(ChunksIngested)
	prometheus.MustRegister(DocumentsProcessed)
	prometheus.MustRegister(RetrievalDuration)
	prometheus.MustRegister(RetrievalResults)
	prometheus.MustRegister(EmbeddingCacheHits)
	prometheus.MustRegister(EmbeddingCacheMisses)
	prometheus.MustRegister(WebhookDeliveries)
	prometheus.MustRegister(WebhookAttempts)
	prometheus.MustRegister(WebhookQueueDrops)
}

func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

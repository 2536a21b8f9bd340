package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Ingestion, crawl and retrieval Prometheus metrics.
var (
	IngestDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kbase",
			Name:      "ingest_documents_total",
			Help:      "Documents processed by ingestion and re-ingestion",
		},
		[]string{"source_type", "status"}, // "embedded" / "not_embedded" / "failed"
	)

	IngestDegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kbase",
			Name:      "ingest_degraded_total",
			Help:      "Documents stored without an embedding",
		},
		[]string{"reason"}, // "timeout" / "provider" / "empty" / "other"
	)

	ExtractionErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kbase",
			Name:      "extraction_errors_total",
			Help:      "Files that could not be turned into text",
		},
		[]string{"format", "kind"},
	)

	CrawlFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kbase",
			Name:      "crawl_fetches_total",
			Help:      "Crawl fetches by outcome",
		},
		[]string{"outcome"}, // "ok" / "tls_error" / "fetch_error" / "unsupported"
	)

	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kbase",
			Name:      "search_requests_total",
			Help:      "Similarity searches by candidate source",
		},
		[]string{"source"}, // "scan" / "index"
	)

	SearchHitsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "kbase",
			Name:      "search_hits_returned",
			Help:      "Hits returned per similarity search",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20, 50},
		},
	)

	IndexErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kbase",
			Name:      "index_errors_total",
			Help:      "Candidate index operations that failed",
		},
		[]string{"op"},
	)

	EventPublishErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kbase",
			Name:      "event_publish_errors_total",
			Help:      "Document events that could not be published",
		},
		[]string{"event"},
	)
)

var ingestOnce sync.Once

// RegisterIngestMetrics registers ingestion, crawl and retrieval metrics. Safe to call more than once.
func RegisterIngestMetrics() {
	ingestOnce.Do(func() {
		prometheus.MustRegister(
			IngestDocumentsTotal,
			IngestDegradedTotal,
			ExtractionErrorsTotal,
			CrawlFetchesTotal,
			SearchRequestsTotal,
			SearchHitsReturned,
			IndexErrorsTotal,
			EventPublishErrorsTotal,
		)
	})
}

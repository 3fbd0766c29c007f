// Package metrics exposes the core's ambient Prometheus collectors. All
// instrumentation lives here rather than scattered at call sites so the
// registered metric set has one place to read.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DocumentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_documents_total",
		Help: "Documents that entered the ingestion pipeline, by terminal outcome.",
	}, []string{"outcome"})

	EmbeddingBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "embedding_batch_size",
		Help:    "Number of chunks embedded per EmbedAndStore call.",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
	})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "queue_depth",
		Help: "Approximate number of undelivered messages per lane.",
	}, []string{"lane"})

	BM25IndexDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bm25_index_duration_seconds",
		Help:    "Wall-clock time to index one document's chunks into BM25.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	StatusWebsocketFanoutTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "status_websocket_fanout_total",
		Help: "WebSocket frames sent (or purged on failure) by the status hub.",
	}, []string{"result"})

	ExtractDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "extract_duration_seconds",
		Help:    "Wall-clock time to extract text or visuals from one document.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind", "outcome"})

	HybridSearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hybrid_search_duration_seconds",
		Help:    "Wall-clock time for one hybrid retrieval call, dense + sparse + fusion.",
		Buckets: prometheus.DefBuckets,
	})

	UpstreamBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_breaker_trips_total",
		Help: "Circuit breaker state transitions to open, by upstream dependency.",
	}, []string{"dependency"})
)

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorsAreRegisteredAndObservable(t *testing.T) {
	DocumentsTotal.WithLabelValues("completed").Inc()
	if got := testutil.ToFloat64(DocumentsTotal.WithLabelValues("completed")); got != 1 {
		t.Fatalf("DocumentsTotal = %v, want 1", got)
	}

	QueueDepth.WithLabelValues("text").Set(3)
	if got := testutil.ToFloat64(QueueDepth.WithLabelValues("text")); got != 3 {
		t.Fatalf("QueueDepth = %v, want 3", got)
	}

	StatusWebsocketFanoutTotal.WithLabelValues("sent").Inc()
	if got := testutil.ToFloat64(StatusWebsocketFanoutTotal.WithLabelValues("sent")); got != 1 {
		t.Fatalf("StatusWebsocketFanoutTotal = %v, want 1", got)
	}

	EmbeddingBatchSize.Observe(10)
	HybridSearchDuration.Observe(0.01)
}

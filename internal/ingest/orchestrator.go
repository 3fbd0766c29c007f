// Package ingest implements C4 Ingestion Orchestrator: the fast intake path
// that turns an upload-notification message into a validated, classified,
// lane-queued work item, following the teacher's lane-worker "one bad
// record never poisons the batch" idiom.
package ingest

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amplify-rag/ingestcore/internal/apperr"
	"github.com/amplify-rag/ingestcore/internal/classify"
	"github.com/amplify-rag/ingestcore/internal/metrics"
	"github.com/amplify-rag/ingestcore/internal/objectstore"
	"github.com/amplify-rag/ingestcore/internal/queue"
	"github.com/amplify-rag/ingestcore/internal/secrets"
	"github.com/amplify-rag/ingestcore/internal/status"
)

// uploadMessage is the queue body the API's upload and reindex handlers
// enqueue. A Reindex message skips validation/classification entirely and
// routes straight to the document's existing lane for a partial re-embed.
type uploadMessage struct {
	DocumentID     string   `json:"document_id"`
	ForceReprocess bool     `json:"force_reprocess"`
	Reindex        bool     `json:"reindex"`
	ChunkIDs       []string `json:"chunk_ids"`
}

// LaneQueues maps a classify.Lane to the queue URL its workers poll.
type LaneQueues map[classify.Lane]string

// Orchestrator wires C2/C3/C11 together to validate, classify, and enqueue
// one document at a time, never letting one document's failure abort the
// batch (spec §4.4: "per-record catch, log, and continue").
type Orchestrator struct {
	db      *pgxpool.Pool
	store   objectstore.Store
	q       *queue.Queue
	status  *status.Tracker
	secrets *secrets.Broker
	lanes   LaneQueues
	logger  *slog.Logger
}

func New(db *pgxpool.Pool, store objectstore.Store, q *queue.Queue, st *status.Tracker, sb *secrets.Broker, lanes LaneQueues, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{db: db, store: store, q: q, status: st, secrets: sb, lanes: lanes, logger: logger}
}

type documentRow struct {
	ID            string
	Owner         string
	StorageBucket string
	StorageKey    string
	Mime          string
	Size          int64
	Lane          string
}

// ProcessBatch pulls up to max messages off queueURL and processes each
// independently, acknowledging (or per-message failing) as it goes. It
// returns only after every pulled message has been resolved one way or
// another, matching spec §4.4's batch-completion contract.
func (o *Orchestrator) ProcessBatch(ctx context.Context, queueURL string, max int) error {
	msgs, err := o.q.Receive(ctx, queueURL, max)
	if err != nil {
		return apperr.Upstream("receive upload batch", err)
	}

	for _, msg := range msgs {
		if err := o.processOne(ctx, msg.Body); err != nil {
			o.logger.Error("ingestion record failed", "error", err, "body", msg.Body)
			// A message that fails validation/classification is still
			// acknowledged: the document has already been transitioned to
			// failed in the status/document tables, so redelivery would
			// just repeat the same terminal outcome.
		}
		if err := o.q.Delete(ctx, queueURL, msg.Receipt); err != nil {
			o.logger.Error("failed to delete processed message", "error", err)
		}
	}
	return nil
}

func (o *Orchestrator) processOne(ctx context.Context, body string) error {
	var msg uploadMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return apperr.Validation("unmarshal upload message", err)
	}
	if msg.DocumentID == "" {
		return apperr.Validation("upload message missing document_id", nil)
	}

	doc, err := o.loadDocument(ctx, msg.DocumentID)
	if err != nil {
		return err
	}

	if msg.Reindex {
		return o.processReindex(ctx, doc, msg.ChunkIDs)
	}

	// 1. validating
	if err := o.status.Update(ctx, doc.StorageBucket, doc.ID, status.StateValidating, 0, nil); err != nil {
		o.logger.Warn("status update failed", "document_id", doc.ID, "error", err)
	}

	// 2. read object metadata; failure -> failed, stage=validation
	meta, err := o.store.Head(ctx, doc.StorageBucket, doc.StorageKey)
	if err != nil {
		o.fail(ctx, doc, "validation", err)
		return apperr.Fatal("head object for validation", err)
	}

	// 3. skip unless RAG-enabled or force_reprocess
	if !shouldProcess(meta.Tags, msg.ForceReprocess) {
		if err := o.status.Update(ctx, doc.StorageBucket, doc.ID, status.StateCancelled, 0, map[string]any{"reason": "not rag-enabled"}); err != nil {
			o.logger.Warn("status update failed", "document_id", doc.ID, "error", err)
		}
		metrics.DocumentsTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	// 4. credential parcel; missing is fatal per-document
	creds, err := o.secrets.Get(ctx, doc.ID)
	if err != nil {
		o.fail(ctx, doc, "credentials", err)
		return apperr.Fatal("retrieve credential parcel", err)
	}

	// 5. classify
	lane := classify.Decide(doc.StorageKey, map[string]string{"mime": doc.Mime}, doc.Size)

	// 6. resolve lane queue
	laneQueueURL, ok := o.lanes[lane]
	if !ok {
		o.fail(ctx, doc, "lane_resolution", apperr.Fatal("no queue configured for lane", nil))
		return apperr.Fatal("no queue configured for lane "+string(lane), nil)
	}

	// 7. enqueue work item for the lane worker
	workItem, err := json.Marshal(map[string]any{
		"document_id":     doc.ID,
		"bucket":          doc.StorageBucket,
		"key":             doc.StorageKey,
		"lane":            string(lane),
		"size":            doc.Size,
		"mime":            doc.Mime,
		"force_reprocess": msg.ForceReprocess,
		"user":            doc.Owner,
		"credentials":     creds,
	})
	if err != nil {
		o.fail(ctx, doc, "enqueue", err)
		return apperr.Fatal("marshal lane work item", err)
	}
	if err := o.q.Send(ctx, laneQueueURL, string(workItem)); err != nil {
		o.fail(ctx, doc, "enqueue", err)
		return apperr.Upstream("send lane work item", err)
	}

	if _, err := o.db.Exec(ctx, `UPDATE documents SET lane = $2, state = $3, updated_at = now() WHERE id = $1`,
		doc.ID, string(lane), string(status.StateQueued)); err != nil {
		o.logger.Warn("document row update failed", "document_id", doc.ID, "error", err)
	}

	// 8. queued at 5%
	if err := o.status.Update(ctx, doc.StorageBucket, doc.ID, status.StateQueued, 5, map[string]any{"lane": string(lane)}); err != nil {
		o.logger.Warn("status update failed", "document_id", doc.ID, "error", err)
	}

	metrics.DocumentsTotal.WithLabelValues("queued").Inc()
	return nil
}

// shouldProcess implements spec §4.4 step 3: a document is only processed
// when the object carries a rag_enabled marker, or the caller explicitly
// asked for reprocessing.
func shouldProcess(tags map[string]string, forceReprocess bool) bool {
	return tags["rag_enabled"] == "true" || forceReprocess
}

func (o *Orchestrator) loadDocument(ctx context.Context, id string) (documentRow, error) {
	var d documentRow
	var lane *string
	err := o.db.QueryRow(ctx, `
		SELECT id, owner, storage_bucket, storage_key, mime, size, lane FROM documents WHERE id = $1
	`, id).Scan(&d.ID, &d.Owner, &d.StorageBucket, &d.StorageKey, &d.Mime, &d.Size, &lane)
	if err != nil {
		return documentRow{}, apperr.NotFound("load document row", err)
	}
	if lane != nil {
		d.Lane = *lane
	}
	return d, nil
}

// processReindex routes a reindex request straight to the document's
// existing lane without re-running validation or classification, per
// spec §4.12's partial re-embedding path: the API has already cleared the
// named chunks' embedding/BM25 rows, this just asks the lane worker to
// refill them.
func (o *Orchestrator) processReindex(ctx context.Context, doc documentRow, chunkIDs []string) error {
	if doc.Lane == "" {
		o.fail(ctx, doc, "reindex", apperr.Fatal("document has no recorded lane to reindex", nil))
		return apperr.Fatal("document has no recorded lane to reindex", nil)
	}
	laneQueueURL, ok := o.lanes[classify.Lane(doc.Lane)]
	if !ok {
		o.fail(ctx, doc, "reindex", apperr.Fatal("no queue configured for lane", nil))
		return apperr.Fatal("no queue configured for lane "+doc.Lane, nil)
	}

	workItem, err := json.Marshal(map[string]any{
		"document_id": doc.ID,
		"bucket":      doc.StorageBucket,
		"lane":        doc.Lane,
		"user":        doc.Owner,
		"reindex":     true,
		"chunk_ids":   chunkIDs,
	})
	if err != nil {
		o.fail(ctx, doc, "reindex", err)
		return apperr.Fatal("marshal reindex work item", err)
	}
	if err := o.q.Send(ctx, laneQueueURL, string(workItem)); err != nil {
		o.fail(ctx, doc, "reindex", err)
		return apperr.Upstream("send reindex work item", err)
	}

	if err := o.status.Update(ctx, doc.StorageBucket, doc.ID, status.StateQueued, 5, map[string]any{"reindex": true, "chunks": len(chunkIDs)}); err != nil {
		o.logger.Warn("status update failed", "document_id", doc.ID, "error", err)
	}
	metrics.DocumentsTotal.WithLabelValues("reindex_queued").Inc()
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, doc documentRow, stage string, cause error) {
	if err := o.status.Update(ctx, doc.StorageBucket, doc.ID, status.StateFailed, 0, map[string]any{
		"stage": stage,
		"error": cause.Error(),
	}); err != nil {
		o.logger.Warn("status update failed during fail path", "document_id", doc.ID, "error", err)
	}
	if _, err := o.db.Exec(ctx, `UPDATE documents SET state = $2, updated_at = now() WHERE id = $1`, doc.ID, string(status.StateFailed)); err != nil {
		o.logger.Warn("document row update failed during fail path", "document_id", doc.ID, "error", err)
	}
	metrics.DocumentsTotal.WithLabelValues("failed").Inc()
}

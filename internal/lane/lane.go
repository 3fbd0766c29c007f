package lane

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amplify-rag/ingestcore/internal/apperr"
	"github.com/amplify-rag/ingestcore/internal/bm25"
	"github.com/amplify-rag/ingestcore/internal/classify"
	"github.com/amplify-rag/ingestcore/internal/embed"
	"github.com/amplify-rag/ingestcore/internal/embedclient"
	"github.com/amplify-rag/ingestcore/internal/extract/text"
	"github.com/amplify-rag/ingestcore/internal/extract/visual"
	"github.com/amplify-rag/ingestcore/internal/jobs"
	"github.com/amplify-rag/ingestcore/internal/metrics"
	"github.com/amplify-rag/ingestcore/internal/objectstore"
	"github.com/amplify-rag/ingestcore/internal/queue"
	"github.com/amplify-rag/ingestcore/internal/status"
)

const defaultMinChunkSize = 512

// rawImageMIME identifies single pre-rasterized image uploads (no PDF
// wrapper, no fitz rendering needed) that route through visual.RenderImage
// instead of visual.RenderDocument.
var rawImageMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// workItem is the queue body internal/ingest enqueues onto a lane's queue.
// A Reindex item carries only DocumentID/Lane/User/ChunkIDs and skips
// straight to re-embedding existing chunk rows.
type workItem struct {
	DocumentID     string            `json:"document_id"`
	Bucket         string            `json:"bucket"`
	Key            string            `json:"key"`
	Lane           classify.Lane     `json:"lane"`
	Size           int64             `json:"size"`
	Mime           string            `json:"mime"`
	ForceReprocess bool              `json:"force_reprocess"`
	User           string            `json:"user"`
	Credentials    map[string]string `json:"credentials"`
	Reindex        bool              `json:"reindex"`
	ChunkIDs       []string          `json:"chunk_ids"`
}

// Deps are the collaborators a Worker drives per work item.
type Deps struct {
	DB       *pgxpool.Pool
	Store    objectstore.Store
	Queue    *queue.Queue
	Status   *status.Tracker
	Jobs     *jobs.Ledger
	Embedder embedclient.Client
	Embed    *embed.Embedder
	BM25     *bm25.Indexer
	Logger   *slog.Logger
}

// Worker pulls work items for a single lane and drives extraction,
// embedding, and indexing, publishing status transitions at each stage per
// spec §4's "updating C2 at each stage" control flow.
type Worker struct {
	*BaseWorker
	deps     Deps
	lane     classify.Lane
	queueURL string
}

func New(deps Deps, lane classify.Lane, queueURL string, config WorkerConfig) *Worker {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if config.Name == "" {
		config.Name = "lane-" + string(lane)
	}
	return &Worker{BaseWorker: NewBaseWorker(config), deps: deps, lane: lane, queueURL: queueURL}
}

// Start launches the worker pool; each goroutine polls the lane queue on
// its own ticker and drains up to config.BatchSize messages per tick.
func (w *Worker) Start(ctx context.Context) error {
	return w.run(ctx, func(ctx context.Context, goroutineID int) {
		if err := w.processBatch(ctx); err != nil {
			w.deps.Logger.Error("lane batch failed", "lane", w.lane, "goroutine", goroutineID, "error", err)
		}
	})
}

// Stop blocks until in-flight goroutines exit or config.ShutdownTimeout
// elapses, whichever comes first.
func (w *Worker) Stop(ctx context.Context) error {
	if !w.IsRunning() {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, w.config.ShutdownTimeout)
	defer cancel()

	poll := time.NewTicker(20 * time.Millisecond)
	defer poll.Stop()
	for w.IsRunning() {
		select {
		case <-shutdownCtx.Done():
			return nil
		case <-poll.C:
		}
	}
	return nil
}

func (w *Worker) processBatch(ctx context.Context) error {
	msgs, err := w.deps.Queue.Receive(ctx, w.queueURL, w.config.BatchSize)
	if err != nil {
		return apperr.Upstream("receive lane batch", err)
	}
	if depth, err := w.deps.Queue.Depth(ctx, w.queueURL); err == nil {
		metrics.QueueDepth.WithLabelValues(string(w.lane)).Set(float64(depth))
	}

	for _, msg := range msgs {
		if err := w.processOne(ctx, msg.Body); err != nil {
			w.deps.Logger.Error("lane work item failed", "lane", w.lane, "error", err, "body", msg.Body)
			w.recordFailure()
		} else {
			w.recordSuccess()
		}
		if err := w.deps.Queue.Delete(ctx, w.queueURL, msg.Receipt); err != nil {
			w.deps.Logger.Error("failed to delete lane message", "error", err)
		}
	}
	return nil
}

func (w *Worker) processOne(ctx context.Context, body string) error {
	var item workItem
	if err := json.Unmarshal([]byte(body), &item); err != nil {
		return apperr.Validation("unmarshal lane work item", err)
	}

	jobID, err := w.deps.Jobs.Init(ctx, item.User, item.DocumentID, jobs.StateRunning)
	if err != nil {
		w.deps.Logger.Warn("job init failed", "document_id", item.DocumentID, "error", err)
	}

	if err := w.deps.Status.Update(ctx, item.Bucket, item.DocumentID, status.StateProcessingStarted, 10, nil); err != nil {
		w.deps.Logger.Warn("status update failed", "document_id", item.DocumentID, "error", err)
	}

	if stopped, _ := w.checkStopped(ctx, item.User, jobID); stopped {
		return w.markStopped(ctx, item, jobID)
	}

	if item.Reindex {
		if err := w.processReindex(ctx, item, jobID); err != nil {
			return w.fail(ctx, item, jobID, "pipeline", err)
		}
	} else {
		data, err := w.deps.Store.Get(ctx, item.Bucket, item.Key)
		if err != nil {
			return w.fail(ctx, item, jobID, "fetch_object", err)
		}

		switch item.Lane {
		case classify.LaneVisual:
			err = w.processVisual(ctx, item, jobID, data)
		default:
			err = w.processText(ctx, item, jobID, data)
		}
		if err != nil {
			return w.fail(ctx, item, jobID, "pipeline", err)
		}
	}

	if err := w.deps.Status.Update(ctx, item.Bucket, item.DocumentID, status.StateCompleted, 100, nil); err != nil {
		w.deps.Logger.Warn("status update failed", "document_id", item.DocumentID, "error", err)
	}
	if jobID != "" {
		if err := w.deps.Jobs.Update(ctx, item.User, jobID, jobs.StateFinished); err != nil {
			w.deps.Logger.Warn("job update failed", "job_id", jobID, "error", err)
		}
	}
	metrics.DocumentsTotal.WithLabelValues("completed").Inc()
	return nil
}

func (w *Worker) processText(ctx context.Context, item workItem, jobID string, data []byte) error {
	if err := w.deps.Status.Update(ctx, item.Bucket, item.DocumentID, status.StateExtractingText, 25, nil); err != nil {
		w.deps.Logger.Warn("status update failed", "document_id", item.DocumentID, "error", err)
	}
	chunks, err := text.Extract(item.Key, data, defaultMinChunkSize)
	if err != nil {
		return apperr.Fatal("extract text", err)
	}
	return w.embedAndIndex(ctx, item, jobID, chunks)
}

func (w *Worker) processVisual(ctx context.Context, item workItem, jobID string, data []byte) error {
	if err := w.deps.Status.Update(ctx, item.Bucket, item.DocumentID, status.StateConvertingPages, 25, nil); err != nil {
		w.deps.Logger.Warn("status update failed", "document_id", item.DocumentID, "error", err)
	}
	var pages []visual.Page
	var err error
	if rawImageMIME[strings.ToLower(item.Mime)] {
		page, rerr := visual.RenderImage(data, 1, "")
		if rerr != nil {
			return apperr.Fatal("render single image", rerr)
		}
		pages = []visual.Page{page}
	} else {
		pages, err = visual.RenderDocument(data, nil)
		if err != nil {
			return apperr.Fatal("render document pages", err)
		}
	}

	if err := w.deps.Status.Update(ctx, item.Bucket, item.DocumentID, status.StateClassifyingVisuals, 40, nil); err != nil {
		w.deps.Logger.Warn("status update failed", "document_id", item.DocumentID, "error", err)
	}

	if err := w.deps.Status.Update(ctx, item.Bucket, item.DocumentID, status.StateEmbeddingPages, 45, nil); err != nil {
		w.deps.Logger.Warn("status update failed", "document_id", item.DocumentID, "error", err)
	}

	// C6's text projection feeds the same C7/C8 pipeline text chunks do; the
	// patch matrix it also produces is the visual-only C10 index, written
	// directly since no chunk row carries a patch-shaped embedding.
	chunks := make([]text.Chunk, 0, len(pages))
	for _, p := range pages {
		content := visual.ChunkContent("image", fmt.Sprintf("%s page %d", item.Key, p.PageNumber), "", visual.FilterAltText(p.AltText))
		chunks = append(chunks, text.Chunk{
			Content:  content,
			Location: text.Location{Page: &p.PageNumber},
		})

		if err := w.embedPagePatches(ctx, item.DocumentID, p, content); err != nil {
			return err
		}
	}

	if err := w.deps.Status.Update(ctx, item.Bucket, item.DocumentID, status.StateProcessingVisuals, 55, nil); err != nil {
		w.deps.Logger.Warn("status update failed", "document_id", item.DocumentID, "error", err)
	}
	return w.embedAndIndex(ctx, item, jobID, chunks)
}

// processReindex refills the embedding/BM25 rows for an already-chunked
// document without re-extracting or re-classifying it (spec §4.12's
// partial re-embedding path). The API has already cleared the named
// chunks' embedding/BM25 rows via jobs.Ledger.ReembedChunks; this reads
// their surviving content and ordinal back and re-runs C7/C8 over them,
// preserving chunk ids so the upsert lands on the same rows.
func (w *Worker) processReindex(ctx context.Context, item workItem, jobID string) error {
	rows, err := w.deps.DB.Query(ctx, `
		SELECT id, ordinal, content, page FROM chunks WHERE document_id = $1
	`, item.DocumentID)
	if err != nil {
		return apperr.Upstream("load chunks for reindex", err)
	}
	defer rows.Close()

	target := make(map[string]bool, len(item.ChunkIDs))
	for _, id := range item.ChunkIDs {
		target[id] = true
	}

	var pending []embed.PendingChunk
	var bm25Chunks []bm25.Chunk
	for rows.Next() {
		var id, content string
		var ordinal int
		var page *int
		if err := rows.Scan(&id, &ordinal, &content, &page); err != nil {
			return apperr.Upstream("scan chunk for reindex", err)
		}
		// IndexDocument's doc_bm25_meta recompute needs the document's full
		// chunk set every call, even though only the targeted subset's dense
		// vectors are being recomputed.
		bm25Chunks = append(bm25Chunks, bm25.Chunk{ID: id, Content: content})
		if len(target) == 0 || target[id] {
			pending = append(pending, embed.PendingChunk{ID: id, DocumentID: item.DocumentID, Ordinal: ordinal, Content: content, Page: page})
		}
	}
	if err := rows.Err(); err != nil {
		return apperr.Upstream("iterate chunks for reindex", err)
	}
	if len(pending) == 0 {
		return apperr.Fatal("no matching chunks found to reindex", nil)
	}

	if err := w.deps.Status.Update(ctx, item.Bucket, item.DocumentID, status.StateEmbedding, 50, nil); err != nil {
		w.deps.Logger.Warn("status update failed", "document_id", item.DocumentID, "error", err)
	}
	if err := w.deps.Embed.EmbedAndStore(ctx, pending); err != nil {
		return err
	}

	if err := w.deps.Status.Update(ctx, item.Bucket, item.DocumentID, status.StateStoring, 90, nil); err != nil {
		w.deps.Logger.Warn("status update failed", "document_id", item.DocumentID, "error", err)
	}
	_, err = w.deps.BM25.IndexDocument(ctx, item.DocumentID, bm25Chunks)
	return err
}

// embedPagePatches stores a page's per-token patch matrix directly into
// page_embeddings (spec §4.3's PageEmbedding, "written by C6, read by C10").
// No dedicated vision-embedding SDK exists in the pack, so the same
// embedding client's per-token method supplies the patch matrix.
func (w *Worker) embedPagePatches(ctx context.Context, documentID string, p visual.Page, content string) error {
	patches, err := w.deps.Embedder.EmbedTokens(ctx, content)
	if err != nil {
		return apperr.Upstream("embed page patches", err)
	}
	vectorsJSON, err := json.Marshal(patches)
	if err != nil {
		return apperr.Fatal("marshal page patch matrix", err)
	}
	if _, err := w.deps.DB.Exec(ctx, `
		INSERT INTO page_embeddings (document_id, page, vectors, tokens_formula_a, tokens_formula_b)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (document_id, page) DO UPDATE SET
			vectors = EXCLUDED.vectors,
			tokens_formula_a = EXCLUDED.tokens_formula_a,
			tokens_formula_b = EXCLUDED.tokens_formula_b
	`, documentID, p.PageNumber, vectorsJSON, p.TokensA, p.TokensB); err != nil {
		return apperr.Upstream("upsert page_embeddings", err)
	}
	return nil
}

func (w *Worker) embedAndIndex(ctx context.Context, item workItem, jobID string, chunks []text.Chunk) error {
	if len(chunks) == 0 {
		return apperr.Fatal("no chunks extracted", nil)
	}

	if err := w.deps.Status.Update(ctx, item.Bucket, item.DocumentID, status.StateChunking, 60, nil); err != nil {
		w.deps.Logger.Warn("status update failed", "document_id", item.DocumentID, "error", err)
	}

	pending := make([]embed.PendingChunk, len(chunks))
	bm25Chunks := make([]bm25.Chunk, len(chunks))
	for i, c := range chunks {
		id := fmt.Sprintf("%s-chunk-%d", item.DocumentID, i)
		pending[i] = embed.PendingChunk{
			ID:         id,
			DocumentID: item.DocumentID,
			Ordinal:    i,
			Content:    c.Content,
			Page:       c.Location.Page,
		}
		bm25Chunks[i] = bm25.Chunk{ID: id, Content: c.Content}
	}

	if err := w.deps.Status.Update(ctx, item.Bucket, item.DocumentID, status.StateEmbedding, 75, nil); err != nil {
		w.deps.Logger.Warn("status update failed", "document_id", item.DocumentID, "error", err)
	}
	if err := w.deps.Embed.EmbedAndStore(ctx, pending); err != nil {
		return err
	}

	if err := w.deps.Status.Update(ctx, item.Bucket, item.DocumentID, status.StateStoring, 90, nil); err != nil {
		w.deps.Logger.Warn("status update failed", "document_id", item.DocumentID, "error", err)
	}
	if _, err := w.deps.BM25.IndexDocument(ctx, item.DocumentID, bm25Chunks); err != nil {
		return err
	}

	if jobID != "" {
		if stopped, _ := w.checkStopped(ctx, item.User, jobID); stopped {
			return w.markStopped(ctx, item, jobID)
		}
	}
	return nil
}

func (w *Worker) checkStopped(ctx context.Context, user, jobID string) (bool, error) {
	if jobID == "" {
		return false, nil
	}
	return w.deps.Jobs.IsStopped(ctx, user, jobID)
}

func (w *Worker) markStopped(ctx context.Context, item workItem, jobID string) error {
	if err := w.deps.Status.Update(ctx, item.Bucket, item.DocumentID, status.StateCancelled, 0, map[string]any{"reason": "job stopped"}); err != nil {
		w.deps.Logger.Warn("status update failed", "document_id", item.DocumentID, "error", err)
	}
	metrics.DocumentsTotal.WithLabelValues("cancelled").Inc()
	return nil
}

func (w *Worker) fail(ctx context.Context, item workItem, jobID, stage string, cause error) error {
	if err := w.deps.Status.Update(ctx, item.Bucket, item.DocumentID, status.StateFailed, 0, map[string]any{
		"stage": stage,
		"error": cause.Error(),
	}); err != nil {
		w.deps.Logger.Warn("status update failed during fail path", "document_id", item.DocumentID, "error", err)
	}
	if jobID != "" {
		if err := w.deps.Jobs.Update(ctx, item.User, jobID, jobs.StateFailed); err != nil {
			w.deps.Logger.Warn("job update failed during fail path", "job_id", jobID, "error", err)
		}
	}
	metrics.DocumentsTotal.WithLabelValues("failed").Inc()
	return apperr.Fatal("lane processing failed at "+stage, cause)
}

// Package embed implements C7 Dense Embedder: batch embedding of chunks
// from C5 (or C6's text projection) with all-or-nothing document failure
// semantics and index-preserving persistence.
package embed

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/amplify-rag/ingestcore/internal/apperr"
	"github.com/amplify-rag/ingestcore/internal/embedclient"
	"github.com/amplify-rag/ingestcore/internal/metrics"
)

// PendingChunk is the input shape handed to Embedder: content produced by
// C5/C6, not yet assigned an embedding.
type PendingChunk struct {
	ID         string
	DocumentID string
	Ordinal    int
	Content    string
	Page       *int
	Metadata   map[string]string
}

// Embedder batches a document's chunks through the embedding client and
// persists them with their vectors in a single logical step.
type Embedder struct {
	db     *pgxpool.Pool
	client embedclient.Client
}

func New(db *pgxpool.Pool, client embedclient.Client) *Embedder {
	return &Embedder{db: db, client: client}
}

// EmbedAndStore embeds every chunk's content in one batched call and
// upserts the results. Per spec §4.7: if the embedding call fails, the
// whole document is marked failed and no partial chunks are written — this
// function either persists all chunks or persists none.
func (e *Embedder) EmbedAndStore(ctx context.Context, chunks []PendingChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	metrics.EmbeddingBatchSize.Observe(float64(len(chunks)))

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := e.client.Embed(ctx, texts)
	if err != nil {
		return apperr.Upstream("embed chunk batch", err)
	}
	if len(vectors) != len(chunks) {
		return apperr.Corruption("embedding response count mismatch", nil)
	}

	tx, err := e.db.Begin(ctx)
	if err != nil {
		return apperr.Upstream("begin embed transaction", err)
	}
	defer tx.Rollback(ctx)

	for i, c := range chunks {
		metaJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return apperr.Fatal("marshal chunk metadata", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO chunks (id, document_id, ordinal, content, page, metadata, embedding, content_tsv, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, to_tsvector('english', $4), now())
			ON CONFLICT (id) DO UPDATE SET
				content = EXCLUDED.content,
				embedding = EXCLUDED.embedding,
				page = EXCLUDED.page,
				ordinal = EXCLUDED.ordinal,
				metadata = EXCLUDED.metadata,
				content_tsv = EXCLUDED.content_tsv,
				updated_at = now()
		`, c.ID, c.DocumentID, c.Ordinal, c.Content, c.Page, metaJSON, pgvector.NewVector(vectors[i]))
		if err != nil {
			return apperr.Upstream("upsert chunk", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Upstream("commit embed transaction", err)
	}
	return nil
}

// Package jobs implements C12 Embedding Job Ledger: job lifecycle,
// cooperative cancellation, and partial re-embedding support.
package jobs

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amplify-rag/ingestcore/internal/apperr"
	"github.com/amplify-rag/ingestcore/internal/objectstore"
)

type State string

const (
	StateQueued   State = "queued"
	StateRunning  State = "running"
	StateFinished State = "finished"
	StateStopped  State = "stopped"
	StateFailed   State = "failed"
)

// Ledger owns the jobs table and the object store used for large results.
type Ledger struct {
	db    *pgxpool.Pool
	store objectstore.Store
}

func New(db *pgxpool.Pool, store objectstore.Store) *Ledger {
	return &Ledger{db: db, store: store}
}

// Init creates a new job row and returns its id.
func (l *Ledger) Init(ctx context.Context, user, documentID string, initial State) (string, error) {
	jobID := uuid.NewString()
	_, err := l.db.Exec(ctx, `
		INSERT INTO jobs ("user", job_id, document_id, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
	`, user, jobID, documentID, initial)
	if err != nil {
		return "", apperr.Upstream("init job", err)
	}
	return jobID, nil
}

// Update transitions a job's state.
func (l *Ledger) Update(ctx context.Context, user, jobID string, state State) error {
	tag, err := l.db.Exec(ctx, `
		UPDATE jobs SET state = $3, updated_at = now() WHERE "user" = $1 AND job_id = $2
	`, user, jobID, state)
	if err != nil {
		return apperr.Upstream("update job state", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("job not found", nil)
	}
	return nil
}

// SetResult writes a job's result, either inline or, if storeBlob is true,
// to the object store under {user}/{jobId}/result.json with the ledger
// keeping a {bucket,key} pointer.
func (l *Ledger) SetResult(ctx context.Context, user, jobID string, result map[string]any, storeBlob bool) error {
	if !storeBlob {
		body, err := json.Marshal(result)
		if err != nil {
			return apperr.Fatal("marshal job result", err)
		}
		tag, err := l.db.Exec(ctx, `
			UPDATE jobs SET result = $3, updated_at = now() WHERE "user" = $1 AND job_id = $2
		`, user, jobID, body)
		if err != nil {
			return apperr.Upstream("set inline job result", err)
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound("job not found", nil)
		}
		return nil
	}

	bucket := "job-results"
	key := user + "/" + jobID + "/result.json"
	body, err := json.Marshal(result)
	if err != nil {
		return apperr.Fatal("marshal job result blob", err)
	}
	if err := l.store.Put(ctx, bucket, key, body, "application/json"); err != nil {
		return apperr.Upstream("store job result blob", err)
	}

	tag, err := l.db.Exec(ctx, `
		UPDATE jobs SET result_bucket = $3, result_key = $4, updated_at = now()
		WHERE "user" = $1 AND job_id = $2
	`, user, jobID, bucket, key)
	if err != nil {
		return apperr.Upstream("set job result pointer", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("job not found", nil)
	}
	return nil
}

// Stop sets a job's state to stopped. The lane worker checks IsStopped once
// before it starts a work item and once after the item's chunks are
// embedded and indexed; it does not check between individual chunks or
// pages, so a stop takes effect only at those two points.
func (l *Ledger) Stop(ctx context.Context, user, jobID string) error {
	return l.Update(ctx, user, jobID, StateStopped)
}

// IsStopped reports whether a job has been marked stopped, for the
// worker's cooperative cancellation checkpoint.
func (l *Ledger) IsStopped(ctx context.Context, user, jobID string) (bool, error) {
	var state State
	err := l.db.QueryRow(ctx, `
		SELECT state FROM jobs WHERE "user" = $1 AND job_id = $2
	`, user, jobID).Scan(&state)
	if err == pgx.ErrNoRows {
		return false, apperr.NotFound("job not found", nil)
	}
	if err != nil {
		return false, apperr.Upstream("read job state", err)
	}
	return state == StateStopped, nil
}

// ReembedChunks deletes the named chunk ids' BM25 rows and clears their
// dense embeddings (the chunk rows themselves stay) so the caller can
// re-run the pipeline over just those ids. It does not recompute term
// stats or meta; the caller re-invokes the BM25 indexer after re-embedding
// (this function only performs the deletion half of spec §4.12's partial
// re-embedding path).
func (l *Ledger) ReembedChunks(ctx context.Context, documentID string, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	tx, err := l.db.Begin(ctx)
	if err != nil {
		return apperr.Upstream("begin reembed transaction", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM chunk_bm25 WHERE chunk_id = ANY($1)
	`, chunkIDs); err != nil {
		return apperr.Upstream("delete chunk_bm25 for reembed", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE chunks SET embedding = NULL, embedding_qa = NULL, updated_at = now()
		WHERE document_id = $1 AND id = ANY($2)
	`, documentID, chunkIDs); err != nil {
		return apperr.Upstream("clear chunk embeddings for reembed", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Upstream("commit reembed transaction", err)
	}
	return nil
}

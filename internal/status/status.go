// Package status implements C2 Status Tracker: the durable per-document
// lifecycle state machine and its WebSocket fan-out, generalizing the
// teacher's SSE-over-channel idiom to a registry of real WebSocket
// connections pushed to via Redis pub/sub.
package status

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/amplify-rag/ingestcore/internal/apperr"
)

// State is one of the ordered lifecycle states from spec §4.2.
type State string

const (
	StateUploaded           State = "uploaded"
	StateValidating         State = "validating"
	StateQueued             State = "queued"
	StateProcessingStarted  State = "processing_started"
	StateConvertingPages    State = "converting_pages"
	StateExtractingText     State = "extracting_text"
	StateProcessingVisuals  State = "processing_visuals"
	StateClassifyingVisuals State = "classifying_visuals"
	StateChunking           State = "chunking"
	StateEmbedding          State = "embedding"
	StateEmbeddingPages     State = "embedding_pages"
	StateStoring            State = "storing"
	StateCompleted          State = "completed"
	StateFailed             State = "failed"
	StateCancelled          State = "cancelled"
)

const (
	recordTTL    = 24 * time.Hour
	pubsubPrefix = "ingestcore:status:"
)

// Record is the durable status row, and also the wire shape pushed to
// subscribed WebSocket connections.
type Record struct {
	StatusID string         `json:"status_id"`
	State    State          `json:"state"`
	Progress int            `json:"progress"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func statusID(bucket, key string) string { return bucket + "/" + key }

// Tracker owns the durable status table and the Redis pub/sub channel used
// to fan progress out to live WebSocket connections.
type Tracker struct {
	db     *pgxpool.Pool
	rdb    *redis.Client
	logger *slog.Logger
}

func New(db *pgxpool.Pool, rdb *redis.Client, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{db: db, rdb: rdb, logger: logger}
}

// Update is idempotent and monotonic: concurrent writers take last-writer-
// wins on state but always preserve the highest observed progress. A
// successful write triggers a best-effort pub/sub publish; publish
// failures are logged and swallowed, never propagated to the caller.
func (t *Tracker) Update(ctx context.Context, bucket, key string, state State, progress int, metadata map[string]any) error {
	id := statusID(bucket, key)
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return apperr.Fatal("marshal status metadata", err)
	}

	_, err = t.db.Exec(ctx, `
		INSERT INTO status (status_id, state, progress, metadata, ttl)
		VALUES ($1, $2, $3, $4, now() + interval '24 hours')
		ON CONFLICT (status_id) DO UPDATE SET
			state = EXCLUDED.state,
			progress = GREATEST(status.progress, EXCLUDED.progress),
			metadata = EXCLUDED.metadata,
			ttl = now() + interval '24 hours'
	`, id, state, progress, metaJSON)
	if err != nil {
		return apperr.Upstream("write status record", err)
	}

	t.publish(ctx, id, state, progress, metadata)
	return nil
}

func (t *Tracker) publish(ctx context.Context, id string, state State, progress int, metadata map[string]any) {
	if t.rdb == nil {
		return
	}
	payload, err := json.Marshal(Record{StatusID: id, State: state, Progress: progress, Metadata: metadata})
	if err != nil {
		t.logger.Warn("marshal status publish payload", "status_id", id, "error", err)
		return
	}
	if err := t.rdb.Publish(ctx, pubsubPrefix+id, payload).Err(); err != nil {
		t.logger.Warn("publish status update", "status_id", id, "error", err)
	}
}

// Get returns the current record, or nil if absent (absence is not an
// error; callers default to processing_started when initializing progress
// computation).
func (t *Tracker) Get(ctx context.Context, bucket, key string) (*Record, error) {
	id := statusID(bucket, key)
	var rec Record
	var metaJSON []byte
	err := t.db.QueryRow(ctx, `
		SELECT status_id, state, progress, metadata FROM status WHERE status_id = $1 AND ttl > now()
	`, id).Scan(&rec.StatusID, &rec.State, &rec.Progress, &metaJSON)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Upstream("read status record", err)
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &rec.Metadata); err != nil {
			return nil, apperr.Corruption("unmarshal status metadata", err)
		}
	}
	return &rec, nil
}

// Channel returns the Redis pub/sub channel name subscribed to for a given
// document's status updates, for the WebSocket handler's Subscribe call.
func Channel(bucket, key string) string {
	return pubsubPrefix + statusID(bucket, key)
}

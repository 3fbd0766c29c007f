package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/amplify-rag/ingestcore/internal/access"
	"github.com/amplify-rag/ingestcore/internal/apperr"
)

// cancelJob marks a job stopped (C12); the lane worker checks IsStopped
// before starting a work item and after indexing it, not between chunks or
// pages.
func (h *handlers) cancelJob(w http.ResponseWriter, r *http.Request) {
	identity := identityFromCtx(r.Context())
	jobID := chi.URLParam(r, "id")

	if err := h.deps.Jobs.Stop(r.Context(), identity.UserID, jobID); err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type reindexRequest struct {
	ChunkIDs []string `json:"chunk_ids"`
}

// reindexDocument clears the named chunks' dense/BM25 rows so the lane
// worker re-embeds just that subset on its next pass (C12's partial
// re-embedding path). An empty chunk_ids list targets the whole document.
func (h *handlers) reindexDocument(w http.ResponseWriter, r *http.Request) {
	identity := identityFromCtx(r.Context())
	docID := chi.URLParam(r, "id")

	allowed, err := h.deps.Access.Check(r.Context(), docID, identity.UserID, access.LevelWrite)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	if !allowed {
		writeAppErr(w, apperr.Forbidden("caller lacks write access to document", nil))
		return
	}

	var req reindexRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeAppErr(w, apperr.Validation("invalid request body", err))
			return
		}
	}

	chunkIDs := req.ChunkIDs
	if len(chunkIDs) == 0 {
		rows, err := h.deps.DB.Query(r.Context(), `SELECT id FROM chunks WHERE document_id = $1`, docID)
		if err != nil {
			writeAppErr(w, apperr.Upstream("list document chunks", err))
			return
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				writeAppErr(w, apperr.Upstream("scan chunk id", err))
				return
			}
			chunkIDs = append(chunkIDs, id)
		}
	}

	if err := h.deps.Jobs.ReembedChunks(r.Context(), docID, chunkIDs); err != nil {
		writeAppErr(w, err)
		return
	}

	// The orchestrator recognizes reindex:true and routes straight to the
	// document's existing lane, skipping validation/classification.
	queueBody, err := json.Marshal(map[string]any{"document_id": docID, "chunk_ids": chunkIDs, "reindex": true})
	if err != nil {
		writeAppErr(w, apperr.Fatal("marshal reindex message", err))
		return
	}
	if err := h.deps.Queue.Send(r.Context(), h.deps.UploadQ, string(queueBody)); err != nil {
		writeAppErr(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]int{"chunks_queued": len(chunkIDs)})
}

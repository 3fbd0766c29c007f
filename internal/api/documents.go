package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/amplify-rag/ingestcore/internal/access"
	"github.com/amplify-rag/ingestcore/internal/apperr"
	"github.com/amplify-rag/ingestcore/internal/classify"
	"github.com/amplify-rag/ingestcore/internal/metrics"
	"github.com/amplify-rag/ingestcore/internal/status"
)

type uploadRequest struct {
	Name          string `json:"name" validate:"required"`
	ContentBase64 string `json:"content_base64" validate:"required"`
	Mime          string `json:"mime" validate:"required"`
}

type uploadResponse struct {
	DocumentID string `json:"document_id"`
	Lane       string `json:"lane"`
}

// uploadDocument stores the object, creates the documents row owned by the
// caller, seeds first-writer-wins access, and enqueues the document for the
// ingestion orchestrator — spec §4.4's entry point.
func (h *handlers) uploadDocument(w http.ResponseWriter, r *http.Request) {
	identity := identityFromCtx(r.Context())

	var req uploadRequest
	if err := decodeAndValidate(r, &req, h.deps.Validator); err != nil {
		writeAppErr(w, err)
		return
	}

	content, err := base64.StdEncoding.DecodeString(req.ContentBase64)
	if err != nil {
		writeAppErr(w, apperr.Validation("content_base64 is not valid base64", err))
		return
	}

	docID := uuid.NewString()
	bucket := "documents"
	storageKey := identity.UserID + "/" + docID + "/" + req.Name

	if err := h.deps.Store.Put(r.Context(), bucket, storageKey, content, req.Mime); err != nil {
		writeAppErr(w, err)
		return
	}

	lane := classify.Decide(req.Name, map[string]string{"mime": req.Mime}, int64(len(content)))

	_, err = h.deps.DB.Exec(r.Context(), `
		INSERT INTO documents (id, owner, storage_bucket, storage_key, lane, mime, size, state, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
	`, docID, identity.UserID, bucket, storageKey, string(lane), req.Mime, int64(len(content)), string(status.StateUploaded))
	if err != nil {
		writeAppErr(w, apperr.Upstream("insert document row", err))
		return
	}

	if err := h.deps.Access.Grant(r.Context(), identity.UserID, docID, "document", identity.UserID, "user", access.LevelOwner, ""); err != nil {
		writeAppErr(w, err)
		return
	}

	if err := h.deps.Status.Update(r.Context(), bucket, docID, status.StateUploaded, 0, nil); err != nil {
		writeAppErr(w, err)
		return
	}

	body, err := json.Marshal(map[string]string{"document_id": docID})
	if err != nil {
		writeAppErr(w, apperr.Fatal("marshal ingestion message", err))
		return
	}
	if err := h.deps.Queue.Send(r.Context(), h.deps.UploadQ, string(body)); err != nil {
		writeAppErr(w, err)
		return
	}

	metrics.DocumentsTotal.WithLabelValues("uploaded").Inc()
	writeJSON(w, http.StatusAccepted, uploadResponse{DocumentID: docID, Lane: string(lane)})
}

func (h *handlers) getStatus(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "id")
	rec, err := h.deps.Status.Get(r.Context(), "documents", docID)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "no status recorded")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handlers) subscribeStatus(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "id")
	if err := h.deps.Hub.ServeWS(w, r, "documents", docID); err != nil {
		h.deps.Logger.Warn("websocket upgrade failed", "document_id", docID, "error", err)
	}
}

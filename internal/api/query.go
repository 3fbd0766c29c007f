package api

import (
	"net/http"

	"github.com/amplify-rag/ingestcore/internal/access"
	"github.com/amplify-rag/ingestcore/internal/apperr"
	"github.com/amplify-rag/ingestcore/internal/retrieve/hybrid"
)

type hybridQueryRequest struct {
	Query        string  `json:"query" validate:"required"`
	DocumentID   string  `json:"document_id" validate:"required"`
	TopK         int     `json:"top_k"`
	WeightDense  float64 `json:"weight_dense"`
	WeightSparse float64 `json:"weight_sparse"`
	UseRRF       bool    `json:"use_rrf"`
}

// hybridQuery runs C9's dense+sparse fused chunk search, scoped to a
// document the caller has at least read access to.
func (h *handlers) hybridQuery(w http.ResponseWriter, r *http.Request) {
	identity := identityFromCtx(r.Context())

	var req hybridQueryRequest
	if err := decodeAndValidate(r, &req, h.deps.Validator); err != nil {
		writeAppErr(w, err)
		return
	}

	allowed, err := h.deps.Access.Check(r.Context(), req.DocumentID, identity.UserID, access.LevelRead)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	if !allowed {
		writeAppErr(w, apperr.Forbidden("caller lacks read access to document", nil))
		return
	}

	results, err := h.deps.Hybrid.Search(r.Context(), hybrid.Params{
		Query:        req.Query,
		DocumentID:   req.DocumentID,
		TopK:         req.TopK,
		WeightDense:  req.WeightDense,
		WeightSparse: req.WeightSparse,
		UseRRF:       req.UseRRF,
	})
	if err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

type pageQueryRequest struct {
	Query      string `json:"query" validate:"required"`
	DocumentID string `json:"document_id"`
	TopK       int    `json:"top_k"`
}

// pageQuery runs C10's MaxSim late-interaction page search, scoped to one
// document when given, or consults C1 to scope the search to the caller's
// visible corpus otherwise (spec §2/§4.10).
func (h *handlers) pageQuery(w http.ResponseWriter, r *http.Request) {
	identity := identityFromCtx(r.Context())

	var req pageQueryRequest
	if err := decodeAndValidate(r, &req, h.deps.Validator); err != nil {
		writeAppErr(w, err)
		return
	}

	if req.DocumentID != "" {
		allowed, err := h.deps.Access.Check(r.Context(), req.DocumentID, identity.UserID, access.LevelRead)
		if err != nil {
			writeAppErr(w, err)
			return
		}
		if !allowed {
			writeAppErr(w, apperr.Forbidden("caller lacks read access to document", nil))
			return
		}
		results, err := h.deps.Maxsim.SearchPages(r.Context(), req.Query, req.DocumentID, nil, req.TopK)
		if err != nil {
			writeAppErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": results})
		return
	}

	visibleDocumentIDs, err := h.deps.Access.VisibleObjectIDs(r.Context(), identity.UserID, access.LevelRead)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	results, err := h.deps.Maxsim.SearchDocuments(r.Context(), req.Query, visibleDocumentIDs, req.TopK)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

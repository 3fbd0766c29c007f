package api

import (
	"net/http"

	"github.com/amplify-rag/ingestcore/internal/access"
	"github.com/amplify-rag/ingestcore/internal/apperr"
)

type grantRequest struct {
	ObjectID      string `json:"object_id" validate:"required"`
	ObjectType    string `json:"object_type" validate:"required"`
	Principal     string `json:"principal" validate:"required"`
	PrincipalType string `json:"principal_type" validate:"required"`
	Level         string `json:"level" validate:"required,oneof=read write owner"`
	Policy        string `json:"policy"`
}

func (h *handlers) grantAccess(w http.ResponseWriter, r *http.Request) {
	identity := identityFromCtx(r.Context())

	var req grantRequest
	if err := decodeAndValidate(r, &req, h.deps.Validator); err != nil {
		writeAppErr(w, err)
		return
	}
	level, ok := access.ParseLevel(req.Level)
	if !ok {
		writeAppErr(w, apperr.Validation("unknown access level", nil))
		return
	}

	if err := h.deps.Access.Grant(r.Context(), identity.UserID, req.ObjectID, req.ObjectType, req.Principal, req.PrincipalType, level, req.Policy); err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (h *handlers) checkAccess(w http.ResponseWriter, r *http.Request) {
	identity := identityFromCtx(r.Context())

	objectID := r.URL.Query().Get("object_id")
	levelStr := r.URL.Query().Get("level")
	if objectID == "" || levelStr == "" {
		writeAppErr(w, apperr.Validation("object_id and level query params are required", nil))
		return
	}
	level, ok := access.ParseLevel(levelStr)
	if !ok {
		writeAppErr(w, apperr.Validation("unknown access level", nil))
		return
	}

	allowed, err := h.deps.Access.Check(r.Context(), objectID, identity.UserID, level)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"allowed": allowed})
}

type simulateRequest struct {
	ObjectIDs []string `json:"object_ids" validate:"required,min=1"`
	Levels    []string `json:"levels" validate:"required,min=1"`
}

func (h *handlers) simulateAccess(w http.ResponseWriter, r *http.Request) {
	identity := identityFromCtx(r.Context())

	var req simulateRequest
	if err := decodeAndValidate(r, &req, h.deps.Validator); err != nil {
		writeAppErr(w, err)
		return
	}

	levels := make([]access.Level, 0, len(req.Levels))
	for _, l := range req.Levels {
		level, ok := access.ParseLevel(l)
		if !ok {
			writeAppErr(w, apperr.Validation("unknown access level: "+l, nil))
			return
		}
		levels = append(levels, level)
	}

	matrix, err := h.deps.Access.Simulate(r.Context(), req.ObjectIDs, identity.UserID, levels)
	if err != nil {
		writeAppErr(w, err)
		return
	}

	out := make(map[string]map[string]bool, len(matrix))
	for obj, row := range matrix {
		converted := make(map[string]bool, len(row))
		for level, allowed := range row {
			converted[level.String()] = allowed
		}
		out[obj] = converted
	}
	writeJSON(w, http.StatusOK, out)
}

package api

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/amplify-rag/ingestcore/internal/apperr"
)

func metricsHandler() http.Handler {
	return promhttp.Handler()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAppErr translates the core's error taxonomy into the spec §7
// propagation policy: AuthError->401, ForbiddenError->403, NotFoundError->404,
// ValidationError->400, everything else->500 with a redacted message.
func writeAppErr(w http.ResponseWriter, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindAuth:
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case apperr.KindForbidden:
		writeError(w, http.StatusForbidden, "forbidden")
	case apperr.KindNotFound:
		writeError(w, http.StatusNotFound, "not found")
	case apperr.KindValidation:
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeAndValidate(r *http.Request, dst any, v interface {
	Struct(any) error
}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Validation("invalid request body", err)
	}
	if err := v.Struct(dst); err != nil {
		return apperr.Validation("request validation failed", err)
	}
	return nil
}

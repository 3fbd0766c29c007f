// Package api is the HTTP + WebSocket surface over C1/C2/C9/C10/C12: chi
// routing and middleware replace the teacher's bare http.ServeMux, the
// JWKS-backed auth middleware replaces its HS256 JWTManager check, and
// go-playground/validator replaces its ad hoc "if body.Name == ''" checks.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amplify-rag/ingestcore/internal/access"
	"github.com/amplify-rag/ingestcore/internal/auth"
	"github.com/amplify-rag/ingestcore/internal/jobs"
	"github.com/amplify-rag/ingestcore/internal/objectstore"
	"github.com/amplify-rag/ingestcore/internal/queue"
	"github.com/amplify-rag/ingestcore/internal/retrieve/hybrid"
	"github.com/amplify-rag/ingestcore/internal/retrieve/maxsim"
	"github.com/amplify-rag/ingestcore/internal/status"
)

type contextKey string

const identityKey contextKey = "identity"

// Deps is every dependency a handler needs. Handlers use each field without
// a nil check, so every field must be set (including Maxsim, which only
// visual-lane queries reach).
type Deps struct {
	DB        *pgxpool.Pool
	Store     objectstore.Store
	Queue     *queue.Queue
	Access    *access.Store
	Status    *status.Tracker
	Hub       *status.Hub
	Jobs      *jobs.Ledger
	Hybrid    *hybrid.Retriever
	Maxsim    *maxsim.Retriever
	Verifier  *auth.JWKSVerifier
	Logger    *slog.Logger
	UploadQ   string // queue URL the ingestion orchestrator consumes
	Validator *validator.Validate
}

func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}

	h := &handlers{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(loggingMiddleware(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Get("/api/v1/health", h.health)
	r.Handle("/metrics", metricsHandler())

	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware)

		r.Post("/api/v1/documents", h.uploadDocument)
		r.Get("/api/v1/documents/{id}/status", h.getStatus)
		r.Get("/api/v1/documents/{id}/status/ws", h.subscribeStatus)

		r.Post("/api/v1/access/grant", h.grantAccess)
		r.Get("/api/v1/access/check", h.checkAccess)
		r.Post("/api/v1/access/simulate", h.simulateAccess)

		r.Post("/api/v1/query", h.hybridQuery)
		r.Post("/api/v1/query/pages", h.pageQuery)

		r.Post("/api/v1/jobs/{id}/cancel", h.cancelJob)
		r.Post("/api/v1/documents/{id}/reindex", h.reindexDocument)
	})

	return r
}

type handlers struct {
	deps Deps
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "time": time.Now().Format(time.RFC3339)})
}

func (h *handlers) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")
		identity, err := h.deps.Verifier.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFromCtx(ctx context.Context) *auth.Identity {
	id, _ := ctx.Value(identityKey).(*auth.Identity)
	return id
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

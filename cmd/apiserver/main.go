// Command apiserver is the C1/C2/C9/C10 front door: the HTTP+WebSocket
// surface that accepts uploads, answers status and query requests, and
// exposes /metrics, wired the way the teacher's cmd/server wires its
// router and graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"github.com/amplify-rag/ingestcore/internal/access"
	"github.com/amplify-rag/ingestcore/internal/api"
	"github.com/amplify-rag/ingestcore/internal/auth"
	"github.com/amplify-rag/ingestcore/internal/bm25"
	"github.com/amplify-rag/ingestcore/internal/config"
	"github.com/amplify-rag/ingestcore/internal/db"
	"github.com/amplify-rag/ingestcore/internal/embedclient"
	"github.com/amplify-rag/ingestcore/internal/jobs"
	"github.com/amplify-rag/ingestcore/internal/objectstore"
	"github.com/amplify-rag/ingestcore/internal/queue"
	"github.com/amplify-rag/ingestcore/internal/retrieve/hybrid"
	"github.com/amplify-rag/ingestcore/internal/retrieve/maxsim"
	"github.com/amplify-rag/ingestcore/internal/status"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := config.Load()
	ctx := context.Background()

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	slog.Info("connected to database")

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("failed to reach redis", "error", err)
		os.Exit(1)
	}

	store := objectstore.NewFS(cfg.ObjectStoreRoot)

	embedder, err := embedclient.New(cfg.EmbedAPIKey, cfg.EmbedModel)
	if err != nil {
		slog.Error("failed to create embedding client", "error", err)
		os.Exit(1)
	}

	verifier, err := auth.NewJWKSVerifier(ctx, cfg.JWKSURL)
	if err != nil {
		slog.Error("failed to init JWKS verifier", "error", err)
		os.Exit(1)
	}

	bm25Idx := bm25.New(pool)
	statusTracker := status.New(pool, rdb, logger)
	router := api.NewRouter(api.Deps{
		DB:        pool,
		Store:     store,
		Queue:     queue.New(rdb),
		Access:    access.NewStore(pool),
		Status:    statusTracker,
		Hub:       status.NewHub(statusTracker, logger),
		Jobs:      jobs.New(pool, store),
		Hybrid:    hybrid.New(pool, embedder, bm25Idx),
		Maxsim:    maxsim.New(pool, embedder),
		Verifier:  verifier,
		Logger:    logger,
		UploadQ:   cfg.UploadQueueURL,
		Validator: validator.New(),
	})

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // long enough for a WebSocket status stream
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("apiserver starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	slog.Info("shutting down apiserver...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}
	slog.Info("apiserver stopped")
}

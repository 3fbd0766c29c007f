// Command ingestord runs C4 Ingestion Orchestrator: it polls the upload
// queue and turns each upload notification into a validated, classified,
// lane-queued work item.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/amplify-rag/ingestcore/internal/classify"
	"github.com/amplify-rag/ingestcore/internal/config"
	"github.com/amplify-rag/ingestcore/internal/db"
	"github.com/amplify-rag/ingestcore/internal/ingest"
	"github.com/amplify-rag/ingestcore/internal/objectstore"
	"github.com/amplify-rag/ingestcore/internal/queue"
	"github.com/amplify-rag/ingestcore/internal/secrets"
	"github.com/amplify-rag/ingestcore/internal/status"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("failed to reach redis", "error", err)
		os.Exit(1)
	}

	store := objectstore.NewFS(cfg.ObjectStoreRoot)
	orchestrator := ingest.New(
		pool,
		store,
		queue.New(rdb),
		status.New(pool, rdb, logger),
		secrets.New(pool, store),
		ingest.LaneQueues{
			classify.LaneText:   cfg.TextQueueURL,
			classify.LaneVisual: cfg.VisualQueueURL,
		},
		logger,
	)

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	slog.Info("ingestord started", "queue", cfg.UploadQueueURL)
	for {
		select {
		case <-ctx.Done():
			slog.Info("ingestord stopped")
			return
		case <-ticker.C:
			if err := orchestrator.ProcessBatch(ctx, cfg.UploadQueueURL, 10); err != nil {
				logger.Error("batch processing failed", "error", err)
			}
		}
	}
}

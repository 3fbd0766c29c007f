// Command laneworker runs one lane's worker pool (C5/C6 followed by C7/C8
// or their visual equivalents). One process per lane: set LANE=text or
// LANE=visual.
package main

import (
	"context"
	"log/slog"
	"os"
	"syscall"
	"time"

	"os/signal"

	"github.com/redis/go-redis/v9"

	"github.com/amplify-rag/ingestcore/internal/bm25"
	"github.com/amplify-rag/ingestcore/internal/classify"
	"github.com/amplify-rag/ingestcore/internal/config"
	"github.com/amplify-rag/ingestcore/internal/db"
	"github.com/amplify-rag/ingestcore/internal/embed"
	"github.com/amplify-rag/ingestcore/internal/embedclient"
	"github.com/amplify-rag/ingestcore/internal/jobs"
	"github.com/amplify-rag/ingestcore/internal/lane"
	"github.com/amplify-rag/ingestcore/internal/objectstore"
	"github.com/amplify-rag/ingestcore/internal/queue"
	"github.com/amplify-rag/ingestcore/internal/status"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := config.Load()
	laneName := classify.Lane(config.GetEnv("LANE", string(classify.LaneText)))
	queueURL := cfg.TextQueueURL
	if laneName == classify.LaneVisual {
		queueURL = cfg.VisualQueueURL
	}

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
	embedder, err := embedclient.New(cfg.EmbedAPIKey, cfg.EmbedModel)
	if err != nil {
		slog.Error("failed to create embedding client", "error", err)
		os.Exit(1)
	}

	worker := lane.New(lane.Deps{
		DB:       pool,
		Store:    store,
		Queue:    queue.New(rdb),
		Status:   status.New(pool, rdb, logger),
		Jobs:     jobs.New(pool, store),
		Embedder: embedder,
		Embed:    embed.New(pool, embedder),
		BM25:     bm25.New(pool),
		Logger:   logger,
	}, laneName, queueURL, lane.WorkerConfig{
		Name:        "lane-" + string(laneName),
		Concurrency: 4,
	})

	if err := worker.Start(ctx); err != nil {
		slog.Error("failed to start lane worker", "error", err)
		os.Exit(1)
	}
	slog.Info("laneworker started", "lane", laneName, "queue", queueURL)

	<-ctx.Done()
	slog.Info("laneworker stopping", "lane", laneName)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := worker.Stop(shutdownCtx); err != nil {
		slog.Error("lane worker stop error", "error", err)
	}
	slog.Info("laneworker stopped", "lane", laneName)
}

// Command opctl is the operator CLI from spec §6: status/cancel/reindex/
// sweep-secrets/migrate, built on spf13/cobra per the storj-storj pack
// repo's command-tree idiom.
//
// Exit codes: 0 success, 2 permission denied, 3 not found, 1 other.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amplify-rag/ingestcore/internal/apperr"
	"github.com/amplify-rag/ingestcore/internal/config"
	"github.com/amplify-rag/ingestcore/internal/db"
	"github.com/amplify-rag/ingestcore/internal/jobs"
	"github.com/amplify-rag/ingestcore/internal/objectstore"
	"github.com/amplify-rag/ingestcore/internal/queue"
	"github.com/amplify-rag/ingestcore/internal/secrets"
	"github.com/amplify-rag/ingestcore/internal/status"
)

func connectCore(ctx context.Context, cfg config.Config) (*pgxpool.Pool, *redis.Client, error) {
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, apperr.Upstream("open database", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		pool.Close()
		return nil, nil, apperr.Upstream("reach redis", err)
	}
	return pool, rdb, nil
}

func exitCode(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindForbidden, apperr.KindAuth:
		return 2
	case apperr.KindNotFound:
		return 3
	default:
		return 1
	}
}

func main() {
	cfg := config.Load()

	root := &cobra.Command{
		Use:   "opctl",
		Short: "operator CLI for the ingestion core",
	}

	root.AddCommand(statusCmd(cfg), cancelCmd(cfg), reindexCmd(cfg), sweepSecretsCmd(cfg), migrateCmd(cfg))

	if err := root.Execute(); err != nil {
		var code int
		if exitErr, ok := err.(interface{ ExitCode() int }); ok {
			code = exitErr.ExitCode()
		} else {
			code = 1
		}
		os.Exit(code)
	}
}

type exitError struct {
	error
	code int
}

func (e *exitError) ExitCode() int { return e.code }

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return &exitError{error: err, code: exitCode(err)}
}

func statusCmd(cfg config.Config) *cobra.Command {
	var bucket string
	cmd := &cobra.Command{
		Use:   "status <document-id>",
		Short: "print a document's lifecycle status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			pool, rdb, err := connectCore(ctx, cfg)
			if err != nil {
				return wrap(err)
			}
			defer pool.Close()

			tracker := status.New(pool, rdb, nil)
			record, err := tracker.Get(ctx, bucket, args[0])
			if err != nil {
				return wrap(err)
			}
			if record == nil {
				return wrap(apperr.NotFound("no status recorded for document", nil))
			}
			fmt.Printf("state=%s progress=%d%% metadata=%v\n", record.State, record.Progress, record.Metadata)
			return nil
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "documents", "storage bucket the document lives in")
	return cmd
}

func cancelCmd(cfg config.Config) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "request cooperative cancellation of a running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			pool, _, err := connectCore(ctx, cfg)
			if err != nil {
				return wrap(err)
			}
			defer pool.Close()

			ledger := jobs.New(pool, objectstore.NewFS(cfg.ObjectStoreRoot))
			if err := ledger.Stop(ctx, user, args[0]); err != nil {
				return wrap(err)
			}
			fmt.Println("cancellation requested")
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "job owner (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func reindexCmd(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reindex <document-id> [chunk-ids...]",
		Short: "delete dense/BM25 rows for the given chunks so they are re-embedded",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			pool, rdb, err := connectCore(ctx, cfg)
			if err != nil {
				return wrap(err)
			}
			defer pool.Close()

			ledger := jobs.New(pool, objectstore.NewFS(cfg.ObjectStoreRoot))
			documentID, chunkIDs := args[0], args[1:]
			if err := ledger.ReembedChunks(ctx, documentID, chunkIDs); err != nil {
				return wrap(err)
			}
			body, err := json.Marshal(map[string]any{"document_id": documentID, "chunk_ids": chunkIDs, "reindex": true})
			if err != nil {
				return wrap(apperr.Fatal("marshal reindex message", err))
			}
			if err := queue.New(rdb).Send(ctx, cfg.UploadQueueURL, string(body)); err != nil {
				return wrap(err)
			}
			fmt.Printf("queued %d chunks for re-embedding\n", len(chunkIDs))
			return nil
		},
	}
	return cmd
}

func sweepSecretsCmd(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep-secrets",
		Short: "delete orphaned credential parcels older than 24h",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			pool, _, err := connectCore(ctx, cfg)
			if err != nil {
				return wrap(err)
			}
			defer pool.Close()

			store := objectstore.NewFS(cfg.ObjectStoreRoot)
			broker := secrets.New(pool, store)
			deleted, err := broker.Sweep(ctx, func(docKey string) bool {
				var exists bool
				_ = pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM status s JOIN documents d ON s.status_id = d.storage_bucket || '/' || d.id WHERE d.id = $1 AND s.ttl > now())`, docKey).Scan(&exists)
				return exists
			})
			if err != nil {
				return wrap(err)
			}
			fmt.Printf("swept %d orphaned secret parcels\n", deleted)
			return nil
		},
	}
	return cmd
}

func migrateCmd(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "apply the schema to the configured database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			pool, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return wrap(apperr.Upstream("open database for migrate", err))
			}
			defer pool.Close()

			if _, err := pool.Exec(ctx, db.Schema); err != nil {
				return wrap(apperr.Upstream("apply schema", err))
			}
			fmt.Println("schema applied")
			return nil
		},
	}
	return cmd
}

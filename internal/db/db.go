// Package db owns the pgxpool handle construction shared by every binary.
//
// No module-scope I/O happens here: callers own the pool and pass it
// explicitly into repositories, replacing the Python source's implicit
// module-level database clients (spec §9).
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Open connects to Postgres, registers the pgvector codec on every pooled
// connection, and verifies connectivity with a Ping.
func Open(ctx context.Context, connURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Schema is the logical table layout from spec §6, applied at startup by
// the operator CLI's "migrate" path (tracked outside this package's
// responsibility; kept here as the single source of truth for column names
// referenced across repositories).
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	storage_bucket TEXT NOT NULL,
	storage_key TEXT NOT NULL,
	lane TEXT NOT NULL,
	mime TEXT NOT NULL,
	size BIGINT NOT NULL,
	state TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	ordinal INT NOT NULL,
	content TEXT NOT NULL,
	page INT,
	metadata JSONB,
	embedding vector(1536),
	embedding_qa vector(1536),
	content_tsv TSVECTOR,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (document_id, ordinal)
);
CREATE INDEX IF NOT EXISTS chunks_content_tsv_idx ON chunks USING GIN (content_tsv);
CREATE INDEX IF NOT EXISTS chunks_embedding_hnsw_idx ON chunks USING hnsw (embedding vector_ip_ops);
CREATE INDEX IF NOT EXISTS chunks_embedding_qa_hnsw_idx ON chunks USING hnsw (embedding_qa vector_ip_ops);

CREATE TABLE IF NOT EXISTS page_embeddings (
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	page INT NOT NULL,
	vectors JSONB NOT NULL,
	tokens_formula_a INT,
	tokens_formula_b INT,
	PRIMARY KEY (document_id, page)
);

CREATE TABLE IF NOT EXISTS chunk_bm25 (
	chunk_id TEXT PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
	term_freqs JSONB NOT NULL,
	doc_length INT NOT NULL
);

CREATE TABLE IF NOT EXISTS doc_term_stats (
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	term TEXT NOT NULL,
	df INT NOT NULL,
	PRIMARY KEY (document_id, term)
);

CREATE TABLE IF NOT EXISTS doc_bm25_meta (
	document_id TEXT PRIMARY KEY REFERENCES documents(id) ON DELETE CASCADE,
	total_chunks INT NOT NULL,
	avg_chunk_length DOUBLE PRECISION NOT NULL,
	total_unique_terms INT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS status (
	status_id TEXT PRIMARY KEY,
	state TEXT NOT NULL,
	progress INT NOT NULL DEFAULT 0,
	metadata JSONB,
	ttl TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS access (
	object_id TEXT NOT NULL,
	principal_id TEXT NOT NULL,
	permission TEXT NOT NULL,
	principal_type TEXT NOT NULL,
	object_type TEXT NOT NULL,
	policy TEXT,
	PRIMARY KEY (object_id, principal_id)
);

CREATE TABLE IF NOT EXISTS secret_parcels (
	doc_key TEXT PRIMARY KEY,
	storage_bucket TEXT NOT NULL,
	storage_key TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS jobs (
	"user" TEXT NOT NULL,
	job_id TEXT NOT NULL,
	document_id TEXT NOT NULL,
	state TEXT NOT NULL,
	result JSONB,
	result_bucket TEXT,
	result_key TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY ("user", job_id)
);
`

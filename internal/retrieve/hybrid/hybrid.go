// Package hybrid implements C9 Hybrid Retriever: dense + BM25 search fused
// by either weighted max-normalization or reciprocal rank fusion.
package hybrid

import (
	"context"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/amplify-rag/ingestcore/internal/apperr"
	"github.com/amplify-rag/ingestcore/internal/bm25"
	"github.com/amplify-rag/ingestcore/internal/embedclient"
	"github.com/amplify-rag/ingestcore/internal/metrics"
)

const rrfK = 60

// Params are the caller-controlled inputs to a hybrid search, spec §4.9.
type Params struct {
	Query        string
	DocumentID   string
	TopK         int
	WeightDense  float64
	WeightSparse float64
	UseRRF       bool
}

// Result is one chunk's final fused ranking entry.
type Result struct {
	ChunkID string
	Score   float64
	Ordinal int
}

// Retriever ties together the dense ANN search and the BM25 sparse index.
type Retriever struct {
	db       *pgxpool.Pool
	embedder embedclient.Client
	sparse   *bm25.Indexer
}

func New(db *pgxpool.Pool, embedder embedclient.Client, sparse *bm25.Indexer) *Retriever {
	return &Retriever{db: db, embedder: embedder, sparse: sparse}
}

type rankedHit struct {
	ChunkID string
	Score   float64
	Ordinal int
	Rank    int // 1-based
}

// Search runs the full C9 algorithm. Empty corpora return a nil slice, not
// an error.
func (r *Retriever) Search(ctx context.Context, p Params) ([]Result, error) {
	start := time.Now()
	defer func() { metrics.HybridSearchDuration.Observe(time.Since(start).Seconds()) }()

	if p.TopK <= 0 {
		p.TopK = 10
	}
	fetchK := p.TopK * 2

	vectors, err := r.embedder.Embed(ctx, []string{p.Query})
	if err != nil {
		return nil, apperr.Upstream("embed query", err)
	}
	if len(vectors) == 0 {
		return nil, apperr.Upstream("empty query embedding", nil)
	}

	dense, err := r.denseSearch(ctx, p.DocumentID, vectors[0], fetchK)
	if err != nil {
		return nil, err
	}

	sparseScores, err := r.sparse.Search(ctx, p.DocumentID, p.Query, fetchK)
	if err != nil {
		return nil, err
	}
	sparse := make([]rankedHit, len(sparseScores))
	for i, s := range sparseScores {
		sparse[i] = rankedHit{ChunkID: s.ChunkID, Score: s.Score, Rank: i + 1}
	}

	if len(dense) == 0 && len(sparse) == 0 {
		return nil, nil
	}

	var fused map[string]float64
	if p.UseRRF {
		fused = fuseRRF(dense, sparse)
	} else {
		fused = fuseWeighted(dense, sparse, p.WeightDense, p.WeightSparse)
	}

	ordinals := make(map[string]int, len(dense)+len(sparse))
	denseScore := make(map[string]float64, len(dense))
	for _, h := range dense {
		ordinals[h.ChunkID] = h.Ordinal
		denseScore[h.ChunkID] = h.Score
	}
	for _, h := range sparse {
		if _, ok := ordinals[h.ChunkID]; !ok {
			ordinals[h.ChunkID] = h.Ordinal
		}
	}

	results := make([]Result, 0, len(fused))
	for chunkID, score := range fused {
		results = append(results, Result{ChunkID: chunkID, Score: score, Ordinal: ordinals[chunkID]})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		di, dj := denseScore[results[i].ChunkID], denseScore[results[j].ChunkID]
		if di != dj {
			return di > dj
		}
		return results[i].Ordinal < results[j].Ordinal
	})

	if len(results) > p.TopK {
		results = results[:p.TopK]
	}
	return results, nil
}

func (r *Retriever) denseSearch(ctx context.Context, documentID string, queryVec []float32, topK int) ([]rankedHit, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, ordinal, 1 - (embedding <#> $2) AS score
		FROM chunks
		WHERE document_id = $1 AND embedding IS NOT NULL
		ORDER BY embedding <#> $2
		LIMIT $3
	`, documentID, pgvector.NewVector(queryVec), topK)
	if err != nil {
		return nil, apperr.Upstream("dense search", err)
	}
	defer rows.Close()

	var hits []rankedHit
	rank := 0
	for rows.Next() {
		rank++
		var chunkID string
		var ordinal int
		var score float64
		if err := rows.Scan(&chunkID, &ordinal, &score); err != nil {
			return nil, apperr.Upstream("scan dense search row", err)
		}
		hits = append(hits, rankedHit{ChunkID: chunkID, Score: score, Ordinal: ordinal, Rank: rank})
	}
	return hits, nil
}

// Package bm25 implements C8 BM25 Indexer: tokenization, term-frequency
// accounting, and the three-table sparse index (chunk_bm25, doc_term_stats,
// doc_bm25_meta), grounded on the original amplify-lambda bm25_indexer's
// persistence shape.
package bm25

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amplify-rag/ingestcore/internal/apperr"
	"github.com/amplify-rag/ingestcore/internal/metrics"
)

// stopWords is the fixed list spec §4.8 calls for.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "has": {}, "he": {}, "in": {}, "is": {},
	"it": {}, "its": {}, "of": {}, "on": {}, "that": {}, "the": {}, "to": {},
	"was": {}, "were": {}, "will": {}, "with": {}, "this": {}, "but": {},
	"they": {}, "have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "or": {}, "not": {}, "no": {}, "if": {},
}

var nonWord = regexp.MustCompile(`[^\w]+`)

// Tokenize lowercases, strips non-word characters, and drops stop words.
func Tokenize(content string) []string {
	lowered := strings.ToLower(content)
	raw := nonWord.Split(lowered, -1)
	tokens := make([]string, 0, len(raw))
	for _, t := range raw {
		if t == "" {
			continue
		}
		if _, stop := stopWords[t]; stop {
			continue
		}
		tokens = append(tokens, t)
	}
	return tokens
}

// TermFrequencies counts occurrences of each token.
func TermFrequencies(tokens []string) map[string]int {
	freqs := make(map[string]int, len(tokens))
	for _, t := range tokens {
		freqs[t]++
	}
	return freqs
}

// Chunk is the indexer input: a chunk's id and text content.
type Chunk struct {
	ID      string
	Content string
}

// Stats summarizes one indexing pass, returned for logging/metrics.
type Stats struct {
	NumChunks   int
	TotalTerms  int
	UniqueTerms int
}

// Indexer owns the pgxpool handle for the BM25 tables.
type Indexer struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Indexer {
	return &Indexer{db: db}
}

// IndexDocument tokenizes every chunk, stores per-chunk term frequencies,
// and incrementally adds to (never replaces) the document's term document-
// frequency stats, then atomically recomputes doc_bm25_meta — matching
// spec §4.8's re-indexing semantics where re-embedding a subset of chunks
// must not zero out the rest of the document's term stats.
func (idx *Indexer) IndexDocument(ctx context.Context, documentID string, chunks []Chunk) (stats Stats, err error) {
	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		metrics.BM25IndexDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	tx, err := idx.db.Begin(ctx)
	if err != nil {
		return Stats{}, apperr.Upstream("begin bm25 index transaction", err)
	}
	defer tx.Rollback(ctx)

	globalTermCounts := make(map[string]int)
	totalTerms := 0

	for _, c := range chunks {
		tokens := Tokenize(c.Content)
		freqs := TermFrequencies(tokens)
		docLength := len(tokens)
		totalTerms += docLength

		for term := range freqs {
			globalTermCounts[term]++
		}

		freqsJSON, err := json.Marshal(freqs)
		if err != nil {
			return Stats{}, apperr.Fatal("marshal term frequencies", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO chunk_bm25 (chunk_id, term_freqs, doc_length)
			VALUES ($1, $2, $3)
			ON CONFLICT (chunk_id) DO UPDATE SET
				term_freqs = EXCLUDED.term_freqs,
				doc_length = EXCLUDED.doc_length
		`, c.ID, freqsJSON, docLength)
		if err != nil {
			return Stats{}, apperr.Upstream("upsert chunk_bm25", err)
		}
	}

	rows, err := tx.Query(ctx, `
		SELECT term, df FROM doc_term_stats WHERE document_id = $1
	`, documentID)
	if err != nil {
		return Stats{}, apperr.Upstream("read existing term stats", err)
	}
	existing := make(map[string]int)
	for rows.Next() {
		var term string
		var df int
		if err := rows.Scan(&term, &df); err != nil {
			rows.Close()
			return Stats{}, apperr.Upstream("scan term stats", err)
		}
		existing[term] = df
	}
	rows.Close()

	for term, docFreq := range globalTermCounts {
		newFreq := existing[term] + docFreq
		_, err := tx.Exec(ctx, `
			INSERT INTO doc_term_stats (document_id, term, df)
			VALUES ($1, $2, $3)
			ON CONFLICT (document_id, term) DO UPDATE SET df = EXCLUDED.df
		`, documentID, term, newFreq)
		if err != nil {
			return Stats{}, apperr.Upstream("upsert doc_term_stats", err)
		}
	}

	avgLength := 0.0
	if len(chunks) > 0 {
		avgLength = float64(totalTerms) / float64(len(chunks))
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO doc_bm25_meta (document_id, total_chunks, avg_chunk_length, total_unique_terms, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (document_id) DO UPDATE SET
			total_chunks = EXCLUDED.total_chunks,
			avg_chunk_length = EXCLUDED.avg_chunk_length,
			total_unique_terms = EXCLUDED.total_unique_terms,
			updated_at = now()
	`, documentID, len(chunks), avgLength, len(globalTermCounts))
	if err != nil {
		return Stats{}, apperr.Upstream("upsert doc_bm25_meta", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Stats{}, apperr.Upstream("commit bm25 index transaction", err)
	}

	return Stats{NumChunks: len(chunks), TotalTerms: totalTerms, UniqueTerms: len(globalTermCounts)}, nil
}

// Scored is one chunk's BM25 score, used by the hybrid retriever (C9).
type Scored struct {
	ChunkID string
	Score   float64
}

const (
	defaultK1 = 1.5
	defaultB  = 0.75
)

// Search runs a document-scoped BM25 query and returns the top-k scored
// chunks. Empty/missing metadata (no chunks ever indexed for this document)
// returns an empty slice, not an error.
func (idx *Indexer) Search(ctx context.Context, documentID, query string, topK int) ([]Scored, error) {
	var totalChunks int
	var avgLength float64
	err := idx.db.QueryRow(ctx, `
		SELECT total_chunks, avg_chunk_length FROM doc_bm25_meta WHERE document_id = $1
	`, documentID).Scan(&totalChunks, &avgLength)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Upstream("read doc_bm25_meta", err)
	}

	queryTerms := Tokenize(query)
	if len(queryTerms) == 0 {
		return nil, nil
	}

	termDF := make(map[string]int, len(queryTerms))
	for _, term := range queryTerms {
		var df int
		err := idx.db.QueryRow(ctx, `
			SELECT df FROM doc_term_stats WHERE document_id = $1 AND term = $2
		`, documentID, term).Scan(&df)
		if err != nil && err != pgx.ErrNoRows {
			return nil, apperr.Upstream("read doc_term_stats", err)
		}
		termDF[term] = df
	}

	rows, err := idx.db.Query(ctx, `
		SELECT cb.chunk_id, cb.term_freqs, cb.doc_length
		FROM chunk_bm25 cb
		JOIN chunks c ON c.id = cb.chunk_id
		WHERE c.document_id = $1
	`, documentID)
	if err != nil {
		return nil, apperr.Upstream("read chunk_bm25", err)
	}
	defer rows.Close()

	var scored []Scored
	for rows.Next() {
		var chunkID string
		var freqsJSON []byte
		var docLength int
		if err := rows.Scan(&chunkID, &freqsJSON, &docLength); err != nil {
			return nil, apperr.Upstream("scan chunk_bm25", err)
		}
		var freqs map[string]int
		if err := json.Unmarshal(freqsJSON, &freqs); err != nil {
			return nil, apperr.Corruption("unmarshal term frequencies", err)
		}

		score := scoreChunk(queryTerms, termDF, freqs, docLength, totalChunks, avgLength)
		scored = append(scored, Scored{ChunkID: chunkID, Score: score})
	}

	sortScoredDesc(scored)
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// DeleteDocument drops all three tables' rows for a document under one
// transaction, per spec §4.8.
func (idx *Indexer) DeleteDocument(ctx context.Context, documentID string) error {
	tx, err := idx.db.Begin(ctx)
	if err != nil {
		return apperr.Upstream("begin bm25 delete transaction", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM chunk_bm25 WHERE chunk_id IN (SELECT id FROM chunks WHERE document_id = $1)
	`, documentID); err != nil {
		return apperr.Upstream("delete chunk_bm25", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM doc_term_stats WHERE document_id = $1`, documentID); err != nil {
		return apperr.Upstream("delete doc_term_stats", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM doc_bm25_meta WHERE document_id = $1`, documentID); err != nil {
		return apperr.Upstream("delete doc_bm25_meta", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Upstream("commit bm25 delete transaction", err)
	}
	return nil
}

// Package maxsim implements C10 MaxSim Retriever: late-interaction scoring
// over visual-lane page patch matrices, and the hybrid VDR+text variant
// that combines it with C9's chunk search.
package maxsim

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amplify-rag/ingestcore/internal/apperr"
	"github.com/amplify-rag/ingestcore/internal/embedclient"
	"github.com/amplify-rag/ingestcore/internal/retrieve/hybrid"
)

// Page is one page's late-interaction patch matrix, shape [patches, dim].
type Page struct {
	DocumentID string
	PageNumber int
	Patches    [][]float32
}

// Score computes sum_i max_j Q_i . D_j^T for a query token matrix Q against
// a page's patch matrix D.
func Score(query, patches [][]float32) float64 {
	var total float64
	for _, q := range query {
		best := dotMax(q, patches)
		total += best
	}
	return total
}

func dotMax(q []float32, patches [][]float32) float64 {
	var best float64
	first := true
	for _, d := range patches {
		dot := dotProduct(q, d)
		if first || dot > best {
			best = dot
			first = false
		}
	}
	return best
}

func dotProduct(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// PageResult is one scored candidate page.
type PageResult struct {
	DocumentID string
	PageNumber int
	Score      float64
}

// Retriever runs MaxSim search over the persisted page_embeddings table.
type Retriever struct {
	db       *pgxpool.Pool
	embedder embedclient.Client
}

func New(db *pgxpool.Pool, embedder embedclient.Client) *Retriever {
	return &Retriever{db: db, embedder: embedder}
}

// SearchPages returns the top-k scored pages for a query, scoped to a
// document if documentID is non-empty, or to visibleDocumentIDs otherwise.
// An empty (or nil) visibleDocumentIDs is read as "no documents visible"
// rather than "no filter" — callers doing a corpus-wide search
// must always supply the caller's visible set.
func (r *Retriever) SearchPages(ctx context.Context, query, documentID string, visibleDocumentIDs []string, topK int) ([]PageResult, error) {
	queryMatrix, err := r.embedder.EmbedTokens(ctx, query)
	if err != nil {
		return nil, apperr.Upstream("embed query tokens", err)
	}
	if len(queryMatrix) == 0 {
		return nil, nil
	}

	var rows pgx.Rows
	switch {
	case documentID != "":
		rows, err = r.db.Query(ctx, `
			SELECT document_id, page, vectors FROM page_embeddings WHERE document_id = $1
		`, documentID)
	case len(visibleDocumentIDs) == 0:
		return nil, nil
	default:
		rows, err = r.db.Query(ctx, `
			SELECT document_id, page, vectors FROM page_embeddings WHERE document_id = ANY($1)
		`, visibleDocumentIDs)
	}
	if err != nil {
		return nil, apperr.Upstream("read page_embeddings", err)
	}
	defer rows.Close()

	var results []PageResult
	for rows.Next() {
		var docID string
		var page int
		var vectorsJSON []byte
		if err := rows.Scan(&docID, &page, &vectorsJSON); err != nil {
			return nil, apperr.Upstream("scan page_embeddings row", err)
		}
		var patches [][]float32
		if err := json.Unmarshal(vectorsJSON, &patches); err != nil {
			return nil, apperr.Corruption("unmarshal page patch matrix", err)
		}
		score := Score(queryMatrix, patches)
		results = append(results, PageResult{DocumentID: docID, PageNumber: page, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// SearchDocuments collapses page scores to document scores via max-over-
// pages, returning the top-k documents among visibleDocumentIDs — the
// caller's C1-visible corpus, per spec §2/§4.10. An empty visibleDocumentIDs
// yields no results rather than falling back to an unfiltered scan.
func (r *Retriever) SearchDocuments(ctx context.Context, query string, visibleDocumentIDs []string, topK int) ([]PageResult, error) {
	pages, err := r.SearchPages(ctx, query, "", visibleDocumentIDs, 0)
	if err != nil {
		return nil, err
	}
	best := make(map[string]PageResult)
	for _, p := range pages {
		if cur, ok := best[p.DocumentID]; !ok || p.Score > cur.Score {
			best[p.DocumentID] = p
		}
	}
	docs := make([]PageResult, 0, len(best))
	for _, p := range best {
		docs = append(docs, p)
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Score > docs[j].Score })
	if topK > 0 && len(docs) > topK {
		docs = docs[:topK]
	}
	return docs, nil
}

// HybridHit is one fused result from the VDR+text combined search, tagged
// by discriminator so callers can rehydrate either a chunk or a page image.
type HybridHit struct {
	Type    string // "chunk" or "page"
	ID      string // chunk id, or the document id for a page hit
	Score   float64
	Page    int // zero for chunk hits
}

// SearchHybrid runs MaxSim page search and C9 chunk search, then combines
// them with per-channel weights into one ranked, discriminated result list.
func (r *Retriever) SearchHybrid(ctx context.Context, chunkRetriever *hybrid.Retriever, params hybrid.Params, weightVisual, weightText float64, topK int) ([]HybridHit, error) {
	pages, err := r.SearchPages(ctx, params.Query, params.DocumentID, nil, topK*2)
	if err != nil {
		return nil, err
	}
	chunks, err := chunkRetriever.Search(ctx, params)
	if err != nil {
		return nil, err
	}

	var hits []HybridHit
	for _, p := range pages {
		hits = append(hits, HybridHit{Type: "page", ID: p.DocumentID, Score: weightVisual * p.Score, Page: p.PageNumber})
	}
	for _, c := range chunks {
		hits = append(hits, HybridHit{Type: "chunk", ID: c.ChunkID, Score: weightText * c.Score})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

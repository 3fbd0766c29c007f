package maxsim

import (
	"context"
	"testing"
)

type fakeTokenEmbedder struct{ matrix [][]float32 }

func (f fakeTokenEmbedder) EmbedTokens(ctx context.Context, text string) ([][]float32, error) {
	return f.matrix, nil
}

func (f fakeTokenEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}

// A corpus-wide search with no visible documents must short-circuit before
// ever touching page_embeddings, rather than falling back to an unscoped
// scan (spec §2/§4.10 visibility filtering).
func TestSearchPagesCorpusWideWithNoVisibleDocumentsReturnsNothing(t *testing.T) {
	r := New(nil, fakeTokenEmbedder{matrix: [][]float32{{1, 0}}})
	results, err := r.SearchPages(context.Background(), "query", "", nil, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results != nil {
		t.Fatalf("expected no results, got %v", results)
	}
}

func TestScoreSumsMaxOverPatches(t *testing.T) {
	query := [][]float32{{1, 0}, {0, 1}}
	patches := [][]float32{{1, 0}, {0, 1}, {0.5, 0.5}}
	got := Score(query, patches)
	if got != 2 {
		t.Fatalf("got %f, want 2", got)
	}
}

func TestDotMaxPicksBestPatch(t *testing.T) {
	got := dotMax([]float32{1, 1}, [][]float32{{0, 0}, {1, 1}, {0.1, 0.1}})
	if got != 2 {
		t.Fatalf("got %f, want 2", got)
	}
}

func TestDotProductHandlesUnequalLengths(t *testing.T) {
	got := dotProduct([]float32{1, 2, 3}, []float32{1, 1})
	if got != 3 {
		t.Fatalf("got %f, want 3", got)
	}
}

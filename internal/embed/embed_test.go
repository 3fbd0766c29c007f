package embed

import (
	"context"
	"testing"

	"github.com/amplify-rag/ingestcore/internal/apperr"
)

type stubClient struct {
	vectors [][]float32
	err     error
}

func (s *stubClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return s.vectors, s.err
}

func (s *stubClient) EmbedTokens(ctx context.Context, text string) ([][]float32, error) {
	return nil, nil
}

func TestEmbedAndStoreNoopOnEmptyChunks(t *testing.T) {
	e := New(nil, &stubClient{})
	if err := e.EmbedAndStore(context.Background(), nil); err != nil {
		t.Fatalf("expected no error for empty chunk list, got %v", err)
	}
}

func TestEmbedAndStoreRejectsVectorCountMismatch(t *testing.T) {
	e := New(nil, &stubClient{vectors: [][]float32{{0.1, 0.2}}})
	chunks := []PendingChunk{
		{ID: "c1", DocumentID: "d1", Ordinal: 0, Content: "one"},
		{ID: "c2", DocumentID: "d1", Ordinal: 1, Content: "two"},
	}
	err := e.EmbedAndStore(context.Background(), chunks)
	if err == nil {
		t.Fatal("expected a mismatch error")
	}
	if apperr.KindOf(err) != apperr.KindCorruption {
		t.Fatalf("expected KindCorruption, got %v", apperr.KindOf(err))
	}
}

func TestEmbedAndStorePropagatesUpstreamFailure(t *testing.T) {
	e := New(nil, &stubClient{err: context.DeadlineExceeded})
	chunks := []PendingChunk{{ID: "c1", DocumentID: "d1", Content: "one"}}
	err := e.EmbedAndStore(context.Background(), chunks)
	if err == nil {
		t.Fatal("expected an upstream error")
	}
	if apperr.KindOf(err) != apperr.KindUpstream {
		t.Fatalf("expected KindUpstream, got %v", apperr.KindOf(err))
	}
}

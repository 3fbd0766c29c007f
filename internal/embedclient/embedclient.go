// Package embedclient is the external Embedding API contract from spec §6,
// backed by langchaingo's OpenAI embeddings client (teacher's
// internal/embedding package, generalized to also expose the visual lane's
// per-token embedding call).
package embedclient

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tmc/langchaingo/embeddings"
	lcopenai "github.com/tmc/langchaingo/llms/openai"

	"github.com/amplify-rag/ingestcore/internal/apperr"
	"github.com/amplify-rag/ingestcore/internal/metrics"
)

// Client is the interface the rest of the core depends on; it never
// imports langchaingo directly outside this package.
type Client interface {
	// Embed embeds a batch of texts with the configured dense model.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedTokens embeds a single string into a per-token matrix, used by
	// the visual lane's late-interaction query path (C10).
	EmbedTokens(ctx context.Context, text string) ([][]float32, error)
}

// langChainClient wraps langchaingo's embedder and trips a circuit breaker
// on repeated upstream failures (spec §7's UpstreamError retry/backoff
// policy), grounded on jordigilh-kubernaut's sony/gobreaker usage.
type langChainClient struct {
	dense   *embeddings.EmbedderImpl
	breaker *gobreaker.CircuitBreaker
}

func New(apiKey, model string) (Client, error) {
	llm, err := lcopenai.New(
		lcopenai.WithToken(apiKey),
		lcopenai.WithEmbeddingModel(model),
	)
	if err != nil {
		return nil, apperr.Fatal("construct embedding client", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, apperr.Fatal("construct embedder", err)
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "embedding-api",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				metrics.UpstreamBreakerTrips.WithLabelValues(name).Inc()
			}
		},
	})

	return &langChainClient{dense: embedder, breaker: cb}, nil
}

func (c *langChainClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.dense.EmbedDocuments(ctx, texts)
	})
	if err != nil {
		return nil, apperr.Upstream("embed documents", err)
	}
	return result.([][]float32), nil
}

// EmbedTokens approximates per-token embeddings by embedding each
// whitespace-delimited token independently through the same dense model.
// A true multi-vector (ColBERT-style) embedding model would return this
// matrix in one call; langchaingo does not expose one, so each token is
// embedded individually and the breaker wraps the whole batch.
func (c *langChainClient) EmbedTokens(ctx context.Context, text string) ([][]float32, error) {
	tokens := splitTokens(text)
	if len(tokens) == 0 {
		return nil, nil
	}
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.dense.EmbedDocuments(ctx, tokens)
	})
	if err != nil {
		return nil, apperr.Upstream("embed tokens", err)
	}
	return result.([][]float32), nil
}

func splitTokens(text string) []string {
	var tokens []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range text {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			flush()
			continue
		}
		cur = append(cur, r)
	}
	flush()
	return tokens
}

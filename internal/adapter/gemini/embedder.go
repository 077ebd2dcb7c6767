package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/generative-ai-go/genai"

	"webchat/internal/apperr"
)

const DefaultEmbeddingModel = "gemini-embedding-001"

var errEmptyEmbedding = errors.New("empty embedding received")

type Embedder struct {
	pool  *ClientPool
	model string
	guard *Guard
}

func NewEmbedder(pool *ClientPool, model string, guard *Guard) *Embedder {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &Embedder{pool: pool, model: model, guard: guard}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	client, release, err := e.pool.Client(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	slog.DebugContext(ctx, "embedding content", "model", e.model, "length", len(text))
	values, err := Do(ctx, e.guard, func() ([]float32, error) {
		res, err := client.EmbeddingModel(e.model).EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return nil, err
		}
		if res.Embedding == nil || len(res.Embedding.Values) == 0 {
			return nil, errEmptyEmbedding
		}
		return res.Embedding.Values, nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "embedding failed", "model", e.model, "error", err)
		if errors.Is(err, apperr.ErrBackendUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("gemini embed: %w: %w", apperr.ErrBackendUnavailable, err)
	}
	return values, nil
}

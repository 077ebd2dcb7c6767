// Package embedding defines the text-to-vector contract shared by ingestion and retrieval.
package embedding

import (
	"context"
	"fmt"

	"webchat/internal/apperr"
)

const (
	ProviderGemini  = "gemini"
	ProviderHashing = "hashing"
)

// ErrModelLoad is returned when the embedding backend cannot be initialized.
var ErrModelLoad = fmt.Errorf("embedding model failed to load: %w", apperr.ErrBackendUnavailable)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config is the single source of embedding settings. Ingestion and retrieval
// must be handed an Embedder built from the same Config.
type Config struct {
	Provider  string
	Model     string
	Dimension int
}

func (c Config) Validate() error {
	switch c.Provider {
	case ProviderGemini:
		if c.Model == "" {
			return fmt.Errorf("%w: missing model name", ErrModelLoad)
		}
	case ProviderHashing:
		if c.Dimension <= 0 {
			return fmt.Errorf("%w: dimension must be positive", ErrModelLoad)
		}
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrModelLoad, c.Provider)
	}
	return nil
}

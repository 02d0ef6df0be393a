// Package provider defines the external collaborators the retrieval engine
// depends on: a data loader, an embedding model, and a chat model.
package provider

import (
	"context"
	"strings"

	"github.com/kotaehq/kotae/internal/models"
)

// Loader fetches named JSON documents from the corpus.
type Loader interface {
	LoadJSON(ctx context.Context, key string, v interface{}) error
}

// Embedder produces embedding vectors for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// GenerateOptions tunes a single generation call.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
}

// GenerateResult carries the model output and token accounting.
type GenerateResult struct {
	Text  string
	Usage models.Usage
}

// Generator runs text generation against a chat model.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (*GenerateResult, error)
	ModelName() string
}

// IsTransient reports whether an error looks like a temporary provider
// failure worth retrying: overload, rate limiting, or service
// unavailability.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"overloaded", "429", "503", "rate limit"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

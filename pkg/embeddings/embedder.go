// Package embeddings defines the text embedding boundary used to index the
// corpus and to embed incoming queries.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmbedding is returned when the embedding service fails or returns
	// an unusable response.
	ErrEmbedding = errors.New("embedding service error")

	// ErrEmptyInput is returned for empty or whitespace-only text.
	ErrEmptyInput = fmt.Errorf("%w: empty input", ErrEmbedding)
)

// Embedder provides text embedding capabilities.
type Embedder interface {
	// Embed converts text into a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Close releases any resources held by the embedder.
	Close() error
}

// CheckInput rejects text the embedding services cannot embed.
func CheckInput(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}
	return nil
}

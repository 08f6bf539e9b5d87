// Package openai implements pkg/embedding's Embedder for OpenAI-compatible
// embedding APIs.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/papercomputeco/parley/pkg/embeddings"
)

const (
	// DefaultEmbeddingModel is the default model used for embeddings.
	DefaultEmbeddingModel = "text-embedding-3-small"

	// DefaultTimeout bounds a single embedding request.
	DefaultTimeout = 60 * time.Second
)

// Embedder wraps the OpenAI embeddings endpoint.
type Embedder struct {
	client *openai.Client
	model  string
	dims   int
}

// EmbedderConfig holds configuration for the OpenAI embedder.
type EmbedderConfig struct {
	// BaseURL points at an OpenAI-compatible API. Empty uses api.openai.com.
	BaseURL string

	APIKey string

	// Model defaults to DefaultEmbeddingModel.
	Model string

	// Dimensions requests shortened embeddings from models that support it.
	// Zero leaves the model's native size.
	Dimensions uint

	// Timeout defaults to DefaultTimeout if zero.
	Timeout time.Duration
}

// NewEmbedder creates an embedder for the OpenAI embeddings API.
func NewEmbedder(cfg EmbedderConfig) (*Embedder, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("openai embedder requires an API key")
	}

	model := cfg.Model
	if model == "" {
		model = DefaultEmbeddingModel
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	return &Embedder{
		client: &client,
		model:  model,
		dims:   int(cfg.Dimensions),
	}, nil
}

// Model returns the configured embedding model.
func (e *Embedder) Model() string {
	return e.model
}

// Embed converts text into a vector embedding.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := embeddings.CheckInput(text); err != nil {
		return nil, err
	}

	params := openai.EmbeddingNewParams{
		Model:          e.model,
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if e.dims > 0 {
		params.Dimensions = openai.Int(int64(e.dims))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", embeddings.ErrEmbedding, err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", embeddings.ErrEmbedding)
	}

	src := resp.Data[0].Embedding
	vec := make([]float32, len(src))
	for i, f := range src {
		vec[i] = float32(f)
	}
	return vec, nil
}

// Close releases resources held by the embedder.
func (e *Embedder) Close() error {
	return nil
}

var _ embeddings.Embedder = (*Embedder)(nil)

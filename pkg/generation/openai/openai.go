// Package openai implements generation.Generator with OpenAI-compatible chat
// completions.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/papercomputeco/parley/pkg/generation"
)

const (
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 2 * time.Minute
)

// Generator sends each prompt as a single user message.
type Generator struct {
	client *openai.Client
	model  string
}

type GeneratorConfig struct {
	// BaseURL points at an OpenAI-compatible API. Empty uses api.openai.com.
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("openai generator requires an API key")
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
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

	return &Generator{client: &client, model: model}, nil
}

func (g *Generator) Model() string {
	return g.model
}

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: g.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", generation.ErrGeneration, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", generation.ErrGeneration)
	}

	return resp.Choices[0].Message.Content, nil
}

func (g *Generator) Close() error {
	return nil
}

var _ generation.Generator = (*Generator)(nil)

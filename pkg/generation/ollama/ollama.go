// Package ollama implements generation.Generator against Ollama's
// /api/generate endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/parley/pkg/generation"
)

const (
	// DefaultModel is the Traditional Chinese medical QA model the corpus
	// was assembled for.
	DefaultModel = "hf.co/chtseng/TAIDE-Medicine-QA-TW-Q6"

	// DefaultBaseURL is the default Ollama API URL.
	DefaultBaseURL = "http://localhost:11434"

	// DefaultTimeout bounds a single generation request.
	DefaultTimeout = 2 * time.Minute
)

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

// Generator wraps Ollama's generate API.
type Generator struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// GeneratorConfig holds configuration for the Ollama generator.
type GeneratorConfig struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	// Model defaults to DefaultModel.
	Model string

	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration
}

func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &Generator{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (g *Generator) Model() string {
	return g.model
}

// Generate sends prompt with streaming disabled and returns the response.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Model:  g.model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshal ollama request: %v", generation.ErrGeneration, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: create ollama request: %v", generation.ErrGeneration, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: send ollama request: %v", generation.ErrGeneration, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: ollama status %d: %s", generation.ErrGeneration, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var response generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("%w: decode ollama response: %v", generation.ErrGeneration, err)
	}
	if response.Error != "" {
		return "", fmt.Errorf("%w: ollama error: %s", generation.ErrGeneration, response.Error)
	}

	return response.Response, nil
}

func (g *Generator) Close() error {
	return nil
}

var _ generation.Generator = (*Generator)(nil)

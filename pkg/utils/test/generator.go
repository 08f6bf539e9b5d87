package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/papercomputeco/parley/pkg/generation"
)

// MockGenerator records prompts and answers with a fixed response.
type MockGenerator struct {
	mu sync.Mutex

	Response  string
	ModelName string

	// Fail causes Generate to return an ErrGeneration.
	Fail bool

	Prompts []string
}

func NewMockGenerator() *MockGenerator {
	return &MockGenerator{
		Response:  "mock answer",
		ModelName: "mock-model",
	}
}

func (m *MockGenerator) Generate(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Prompts = append(m.Prompts, prompt)
	if m.Fail {
		return "", fmt.Errorf("%w: mock generation failure", generation.ErrGeneration)
	}
	return m.Response, nil
}

// LastPrompt returns the most recent prompt, or "" when none was sent.
func (m *MockGenerator) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Prompts) == 0 {
		return ""
	}
	return m.Prompts[len(m.Prompts)-1]
}

func (m *MockGenerator) Model() string {
	return m.ModelName
}

func (m *MockGenerator) Close() error {
	return nil
}

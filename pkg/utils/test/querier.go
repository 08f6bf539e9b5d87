package testutils

import (
	"context"
	"strings"
	"sync"

	"github.com/papercomputeco/parley/pkg/pipeline"
	"github.com/papercomputeco/parley/pkg/vector"
)

// MockQuerier stands in for a pipeline.Context on the read side.
type MockQuerier struct {
	mu sync.Mutex

	Results   []vector.QueryResult
	Text      string
	Err       error
	StatusVal pipeline.Status

	Queries []string
}

func NewMockQuerier() *MockQuerier {
	return &MockQuerier{
		Results:   []vector.QueryResult{},
		Text:      "mock answer",
		StatusVal: pipeline.Status{State: pipeline.StateReady},
	}
}

func (m *MockQuerier) Search(_ context.Context, query string) ([]vector.QueryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Queries = append(m.Queries, query)
	if strings.TrimSpace(query) == "" {
		return nil, pipeline.ErrValidation
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Results, nil
}

func (m *MockQuerier) Ask(ctx context.Context, query string) (*pipeline.Answer, error) {
	results, err := m.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	return &pipeline.Answer{
		Query:     query,
		Text:      m.Text,
		Prompt:    "prompt: " + query,
		Grounded:  len(results) > 0,
		Documents: results,
	}, nil
}

func (m *MockQuerier) Status() pipeline.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.StatusVal
}

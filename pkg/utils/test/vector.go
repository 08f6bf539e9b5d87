package testutils

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/papercomputeco/parley/pkg/vector"
)

// MockVectorDriver is a test vector driver. It does not implement
// vector.Replacer, so callers exercise the list/delete/add sequence, and it
// records the name of every call in Ops.
type MockVectorDriver struct {
	mu        sync.Mutex
	documents []vector.Document

	// Results, when set, is returned by Query instead of the stored
	// documents.
	Results []vector.QueryResult

	// FailAdd and FailQuery make the respective calls return the error.
	FailAdd   error
	FailQuery error

	Ops []string
}

func NewMockVectorDriver() *MockVectorDriver {
	return &MockVectorDriver{
		documents: make([]vector.Document, 0),
	}
}

func (m *MockVectorDriver) record(op string) {
	m.Ops = append(m.Ops, op)
}

func (m *MockVectorDriver) ListIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ListIDs")

	ids := make([]string, len(m.documents))
	for i, doc := range m.documents {
		ids[i] = doc.ID
	}
	return ids, nil
}

func (m *MockVectorDriver) Add(_ context.Context, docs []vector.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Add")

	if m.FailAdd != nil {
		return m.FailAdd
	}
	for _, doc := range docs {
		for _, existing := range m.documents {
			if existing.ID == doc.ID {
				return fmt.Errorf("%w: %s", vector.ErrDuplicateID, doc.ID)
			}
		}
	}
	m.documents = append(m.documents, docs...)
	return nil
}

func (m *MockVectorDriver) Query(_ context.Context, _ []float32, topK int) ([]vector.QueryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Query")

	if m.FailQuery != nil {
		return nil, m.FailQuery
	}

	results := m.Results
	if results == nil {
		results = make([]vector.QueryResult, 0, len(m.documents))
		for _, doc := range m.documents {
			results = append(results, vector.QueryResult{Document: doc, Score: 1})
		}
	}
	if len(results) < topK {
		return results, nil
	}
	return results[:topK], nil
}

func (m *MockVectorDriver) Get(_ context.Context, ids []string) ([]vector.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Get")

	var docs []vector.Document
	for _, doc := range m.documents {
		if slices.Contains(ids, doc.ID) {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (m *MockVectorDriver) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Delete")

	m.documents = slices.DeleteFunc(m.documents, func(doc vector.Document) bool {
		return slices.Contains(ids, doc.ID)
	})
	return nil
}

func (m *MockVectorDriver) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Count")
	return len(m.documents), nil
}

// Documents returns a copy of the stored documents.
func (m *MockVectorDriver) Documents() []vector.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.documents)
}

// Operations returns a copy of the recorded call names.
func (m *MockVectorDriver) Operations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.Ops)
}

func (m *MockVectorDriver) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Close")
	return nil
}

// Package memory provides a process-local vector driver using brute-force
// cosine distance. It backs dry runs and tests.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"sync"

	"github.com/papercomputeco/parley/pkg/vector"
)

// Driver implements vector.Driver and vector.Replacer over an in-memory map.
type Driver struct {
	mu     sync.RWMutex
	fixed  int
	dims   int
	docs   map[string]vector.Document
	order  []string
	logger *slog.Logger
}

// NewDriver creates an empty driver. A dims of 0 lets the first insert fix
// the collection's dimension.
func NewDriver(dims int, logger *slog.Logger) *Driver {
	return &Driver{
		fixed:  dims,
		dims:   dims,
		docs:   make(map[string]vector.Document),
		logger: logger,
	}
}

func (d *Driver) ListIDs(_ context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.order), nil
}

func (d *Driver) Add(_ context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	dims, err := vector.CheckDimensions(docs, d.dims)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(docs))
	for _, doc := range docs {
		if _, ok := d.docs[doc.ID]; ok || seen[doc.ID] {
			return fmt.Errorf("%w: %s", vector.ErrDuplicateID, doc.ID)
		}
		seen[doc.ID] = true
	}

	for _, doc := range docs {
		d.docs[doc.ID] = clone(doc)
		d.order = append(d.order, doc.ID)
	}
	d.dims = dims

	d.logger.Debug("added documents to memory index", "count", len(docs))
	return nil
}

func (d *Driver) Query(_ context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if len(d.docs) == 0 {
		return []vector.QueryResult{}, nil
	}
	if len(embedding) != d.dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection has %d",
			vector.ErrDimensionMismatch, len(embedding), d.dims)
	}

	results := make([]vector.QueryResult, 0, len(d.docs))
	for _, id := range d.order {
		doc := d.docs[id]
		distance := cosineDistance(embedding, doc.Embedding)
		results = append(results, vector.QueryResult{
			Document: clone(doc),
			Distance: distance,
			Score:    vector.Score(distance),
		})
	}

	// stable so equal distances keep insertion order
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})

	if len(results) > topK {
		results = results[:topK]
	}

	d.logger.Debug("queried memory index", "results", len(results))
	return results, nil
}

func (d *Driver) Get(_ context.Context, ids []string) ([]vector.Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	docs := make([]vector.Document, 0, len(ids))
	for _, id := range ids {
		if doc, ok := d.docs[id]; ok {
			docs = append(docs, clone(doc))
		}
	}
	return docs, nil
}

func (d *Driver) Delete(_ context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, id := range ids {
		delete(d.docs, id)
	}
	d.order = slices.DeleteFunc(d.order, func(id string) bool {
		_, ok := d.docs[id]
		return !ok
	})

	d.logger.Debug("deleted documents from memory index", "count", len(ids))
	return nil
}

func (d *Driver) Count(_ context.Context) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.docs), nil
}

// Replace swaps the collection contents under a single write lock.
func (d *Driver) Replace(_ context.Context, docs []vector.Document) error {
	dims, err := vector.CheckDimensions(docs, d.fixed)
	if err != nil {
		return err
	}

	next := make(map[string]vector.Document, len(docs))
	order := make([]string, 0, len(docs))
	for _, doc := range docs {
		if _, ok := next[doc.ID]; ok {
			return fmt.Errorf("%w: %s", vector.ErrDuplicateID, doc.ID)
		}
		next[doc.ID] = clone(doc)
		order = append(order, doc.ID)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.docs = next
	d.order = order
	d.dims = dims

	d.logger.Debug("replaced memory index", "count", len(docs))
	return nil
}

func (d *Driver) Close() error {
	return nil
}

func clone(doc vector.Document) vector.Document {
	doc.Embedding = slices.Clone(doc.Embedding)
	if doc.Metadata != nil {
		m := make(map[string]string, len(doc.Metadata))
		for k, v := range doc.Metadata {
			m[k] = v
		}
		doc.Metadata = m
	}
	return doc
}

// cosineDistance returns 1 - cos(a, b). Zero vectors are maximally distant.
func cosineDistance(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return float32(1 - dot/(math.Sqrt(na)*math.Sqrt(nb)))
}

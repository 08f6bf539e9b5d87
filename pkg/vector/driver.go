// Package vector defines the vector index contract that the ingestion
// pipeline writes to and the retrieval path reads from.
package vector

import (
	"context"
	"fmt"
	"regexp"
)

// DefaultCollection is the collection that holds the dialogue corpus.
const DefaultCollection = "dialogues"

// Document represents a stored record with its embedding and payload.
type Document struct {
	// ID is the unit's sequence index as a decimal string.
	ID string `json:"id"`

	// Embedding is the vector representation of the unit's embed text.
	Embedding []float32 `json:"-"`

	// Content is the text handed back on retrieval: the statement itself,
	// or the answer of a question/answer pair.
	Content string `json:"content"`

	// Metadata carries optional string attributes, e.g. "question" for pairs.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// QueryResult represents a search result with similarity score.
type QueryResult struct {
	Document

	// Distance is the cosine distance reported by the backend, in [0, 2]
	// (lower = closer). Every driver indexes by cosine.
	Distance float32 `json:"distance"`

	// Score is 1/(1+Distance), so higher = more similar on every backend.
	Score float32 `json:"score"`
}

// Driver handles storage and retrieval of vector embeddings for a single
// named collection.
type Driver interface {
	// ListIDs returns the ids of every record in the collection.
	ListIDs(ctx context.Context) ([]string, error)

	// Add inserts documents. A document whose ID already exists fails the
	// call with ErrDuplicateID; an embedding whose length differs from the
	// collection's fails with ErrDimensionMismatch.
	Add(ctx context.Context, docs []Document) error

	// Query returns up to topK records nearest to embedding, nearest first.
	// An empty collection yields an empty result, not an error.
	Query(ctx context.Context, embedding []float32, topK int) ([]QueryResult, error)

	// Get retrieves documents by their IDs. Unknown IDs are skipped.
	Get(ctx context.Context, ids []string) ([]Document, error)

	// Delete removes documents by their IDs. An empty slice is a no-op.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of records in the collection.
	Count(ctx context.Context) (int, error)

	// Close releases any resources held by the driver.
	Close() error
}

// Replacer is implemented by drivers that can swap the full contents of the
// collection in one step. Readers observe either the old or the new set of
// documents, never a mix or an empty collection in between.
type Replacer interface {
	Replace(ctx context.Context, docs []Document) error
}

var identifierRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ValidateIdentifier checks that name is safe to splice into SQL as a table
// name prefix.
func ValidateIdentifier(name string) error {
	if !identifierRE.MatchString(name) {
		return fmt.Errorf("invalid collection name %q: must match %s", name, identifierRE.String())
	}
	return nil
}

// CheckDimensions verifies that every document embedding has length dims.
// A dims of 0 accepts the length of the first document.
func CheckDimensions(docs []Document, dims int) (int, error) {
	for _, doc := range docs {
		if dims == 0 {
			dims = len(doc.Embedding)
		}
		if len(doc.Embedding) != dims {
			return dims, fmt.Errorf("%w: document %s has %d dimensions, expected %d",
				ErrDimensionMismatch, doc.ID, len(doc.Embedding), dims)
		}
	}
	return dims, nil
}

// Score converts a cosine distance into the similarity score carried by
// QueryResult.
func Score(distance float32) float32 {
	return 1.0 / (1.0 + distance)
}

package vector

import "errors"

var (
	// ErrNotFound is returned when a document is not found in the vector store.
	ErrNotFound = errors.New("document not found")

	// ErrDuplicateID is returned when inserting a document whose ID is
	// already present in the collection.
	ErrDuplicateID = errors.New("duplicate document id")

	// ErrDimensionMismatch is returned when an embedding's length differs from
	// the collection's configured dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrConnection is returned when the vector store connection fails.
	ErrConnection = errors.New("vector store connection failed")
)

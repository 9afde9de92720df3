package ai

import "errors"

var (
	// ErrInvalidMaxAttempts indicates maxAttempts must be greater than zero.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrEmbedderRequired indicates a nil embedder was passed to a decorator.
	ErrEmbedderRequired = errors.New("embedder is required")

	// ErrEmptyEmbedding indicates the service returned no vector for a text.
	ErrEmptyEmbedding = errors.New("empty embedding returned")

	// ErrEmbeddingCount indicates the service returned a different number of
	// vectors than texts submitted.
	ErrEmbeddingCount = errors.New("embedding count mismatch")

	// ErrEmbeddingDimensions indicates a vector of unexpected length.
	ErrEmbeddingDimensions = errors.New("embedding dimension mismatch")
)

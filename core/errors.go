package core

import "errors"

// Failure kinds surfaced by the pipelines. Component boundaries wrap their
// failures with one of these so callers can classify them with errors.Is.
var (
	// ErrChunking indicates a document could not be split into chunks.
	ErrChunking = errors.New("chunking failed")

	// ErrEmbeddingService indicates the embedding service failed or timed out.
	ErrEmbeddingService = errors.New("embedding service error")

	// ErrIndexUnavailable indicates the vector index could not be reached or written.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrGeneration indicates the language model failed to produce an answer.
	ErrGeneration = errors.New("generation failed")
)

// Domain validation errors
var (
	// ErrEmptyContent indicates a document has no usable text.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrInvalidEncoding indicates text is not valid UTF-8.
	ErrInvalidEncoding = errors.New("content is not valid UTF-8")

	// ErrBinaryContent indicates text contains NUL bytes.
	ErrBinaryContent = errors.New("content appears to be binary")

	// ErrEmptyDocumentID indicates a document has no identifier.
	ErrEmptyDocumentID = errors.New("document id cannot be empty")

	// ErrInvalidNamespace indicates a namespace name is empty or malformed.
	ErrInvalidNamespace = errors.New("invalid namespace")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrMalformedRecord indicates stored bytes could not be decoded.
	ErrMalformedRecord = errors.New("malformed record")
)

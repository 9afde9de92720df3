package core

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ValidateText checks that text can be chunked.
//
// Validation rules:
//   - Text must contain something other than whitespace
//   - Text must be valid UTF-8
//   - Text must not contain NUL bytes
//
// Failures wrap ErrChunking.
func ValidateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: %w", ErrChunking, ErrEmptyContent)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("%w: %w", ErrChunking, ErrInvalidEncoding)
	}
	if strings.IndexByte(text, 0) >= 0 {
		return fmt.Errorf("%w: %w", ErrChunking, ErrBinaryContent)
	}
	return nil
}

// ValidateDocument validates a Document before ingestion.
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrChunking)
	}
	if strings.TrimSpace(doc.ID) == "" {
		return fmt.Errorf("%w: %w", ErrChunking, ErrEmptyDocumentID)
	}
	return ValidateText(doc.Text)
}

// ValidateNamespace checks a namespace name. Namespaces are embedded in
// storage keys, so the key separator is not allowed.
func ValidateNamespace(ns string) error {
	if ns == "" {
		return fmt.Errorf("%w: namespace is empty", ErrInvalidNamespace)
	}
	if strings.ContainsRune(ns, ':') {
		return fmt.Errorf("%w: %q contains ':'", ErrInvalidNamespace, ns)
	}
	if !utf8.ValidString(ns) {
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidNamespace)
	}
	return nil
}

// ValidateChunk validates a Chunk before it is written to an index.
//
// NOT validated (assigned by the index):
//   - Seq
//   - InsertedAt
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}
	if chunk.DocumentID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyDocumentID)
	}
	if chunk.Ordinal < 0 {
		return fmt.Errorf("%w: negative ordinal %d", ErrInvalidChunk, chunk.Ordinal)
	}
	if chunk.Text == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyContent)
	}
	if len(chunk.Vector) == 0 {
		return fmt.Errorf("%w: missing vector", ErrInvalidChunk)
	}
	return nil
}

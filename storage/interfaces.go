package storage

import (
	"context"

	"github.com/poiesic/carebuddy/core"
)

// VectorIndex is a namespaced nearest-neighbour store of chunks.
//
// Backend failures are reported wrapped in core.ErrIndexUnavailable.
type VectorIndex interface {
	// CreateNamespaceIfAbsent registers a namespace. Calling it for an
	// existing namespace is a no-op.
	CreateNamespaceIfAbsent(ctx context.Context, namespace string) error

	// Upsert writes or overwrites chunks in namespace. The batch is applied
	// all-or-nothing and is idempotent per chunk ID: writing an identical
	// chunk twice leaves the index in the same observable state as once.
	// Chunks without an ID are keyed by core.ChunkID(DocumentID, Ordinal).
	Upsert(ctx context.Context, namespace string, chunks ...*core.Chunk) error

	// Query returns up to k chunks of namespace ordered by descending cosine
	// similarity to vector. Ties are broken by insertion order. A namespace
	// without data yields an empty result, never an error.
	Query(ctx context.Context, namespace string, vector []float32, k int) ([]*core.RetrievalResult, error)

	// DeleteDocument removes every chunk of documentID from namespace and
	// returns how many were removed.
	DeleteDocument(ctx context.Context, namespace, documentID string) (int, error)

	// DeleteNamespace removes every chunk of namespace and returns how many
	// were removed.
	DeleteNamespace(ctx context.Context, namespace string) (int, error)

	// Close releases resources held by the index.
	Close() error
}

// ChunkStore enumerates stored chunks. It is used by batch maintenance
// jobs such as re-embedding.
type ChunkStore interface {
	// Namespaces lists the registered namespaces in lexical order.
	Namespaces(ctx context.Context) ([]string, error)

	// CountChunks returns the number of chunks stored in namespace.
	CountChunks(ctx context.Context, namespace string) (int, error)

	// ForEachChunk calls fn with successive batches of at most batchSize
	// chunks of namespace. Iteration stops at the first error returned by fn.
	ForEachChunk(ctx context.Context, namespace string, batchSize int, fn func([]*core.Chunk) error) error
}

package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/carebuddy/ai"
	"github.com/poiesic/carebuddy/core"
	"github.com/poiesic/carebuddy/storage"
)

// DefaultK is the number of chunks retrieved when none is given.
const DefaultK = 3

// Retriever finds the chunks of a namespace nearest to a query.
type Retriever struct {
	index     storage.VectorIndex
	embedder  ai.Embedder
	namespace string
	logger    *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// WithNamespace sets the namespace queried.
// Default is core.DefaultNamespace.
func WithNamespace(namespace string) Option {
	return func(r *Retriever) error {
		if err := core.ValidateNamespace(namespace); err != nil {
			return err
		}
		r.namespace = namespace
		return nil
	}
}

// NewRetriever creates a new retriever.
func NewRetriever(index storage.VectorIndex, embedder ai.Embedder, opts ...Option) (*Retriever, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	r := &Retriever{
		index:     index,
		embedder:  embedder,
		namespace: core.DefaultNamespace,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "retriever", "namespace", r.namespace)

	return r, nil
}

// Namespace returns the namespace queried.
func (r *Retriever) Namespace() string {
	return r.namespace
}

// Retrieve returns up to k chunks ordered by descending similarity to query.
// A blank query returns no results without calling the embedder.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]*core.RetrievalResult, error) {
	return r.RetrieveWithMonitor(ctx, query, k, nil)
}

// RetrieveWithMonitor is Retrieve with a monitor receiving callbacks at each
// stage.
func (r *Retriever) RetrieveWithMonitor(ctx context.Context, query string, k int, monitor RetrievalMonitor) ([]*core.RetrievalResult, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", storage.ErrInvalidQuery, k)
	}

	monitor.Start(query)
	if strings.TrimSpace(query) == "" {
		results := []*core.RetrievalResult{}
		monitor.Finish(results)
		return results, nil
	}

	embedding, err := r.embedder.EmbedText(ctx, query)
	if err == nil && len(embedding) == 0 {
		err = ai.ErrEmptyEmbedding
	}
	if err != nil {
		r.logger.Error("error generating embedding for query", "err", err)
		if !errors.Is(err, core.ErrEmbeddingService) {
			err = fmt.Errorf("%w: %w", core.ErrEmbeddingService, err)
		}
		return nil, err
	}
	monitor.AfterQueryEmbedding(len(embedding))

	results, err := r.index.Query(ctx, r.namespace, embedding, k)
	if err != nil {
		r.logger.Error("error querying index", "err", err)
		return nil, err
	}
	monitor.AfterIndexQuery(results)

	for _, result := range results {
		monitor.Hit(result, ContainsAllQueryWords(result.Chunk.Text, query))
	}
	r.logger.Debug("retrieved chunks", "query", query, "k", k, "hits", len(results))
	monitor.Finish(results)

	return results, nil
}

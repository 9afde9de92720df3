package reembed

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/carebuddy/ai"
	"github.com/poiesic/carebuddy/core"
	"github.com/poiesic/carebuddy/storage"
)

// Writer writes chunks back to an index.
type Writer interface {
	Upsert(ctx context.Context, namespace string, chunks ...*core.Chunk) error
}

// BatchProcessor handles embedding generation for batches of chunks.
type BatchProcessor struct {
	writer         Writer
	embedder       ai.Embedder
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts for embedding API calls
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(writer Writer, embedder ai.Embedder, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		writer:         writer,
		embedder:       embedder,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process generates embeddings for a batch of chunks and writes them back.
// Vectors are normalized after embedding to ensure compatibility with cosine
// similarity. The index keeps one dimension per namespace, so a model with a
// different dimension is rejected before anything is written.
func (bp *BatchProcessor) Process(ctx context.Context, namespace string, chunks []*core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	var embeddings [][]float32
	err := ai.RetryWithBackoff(ctx, func() error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)

	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxRetries, err)
	}

	if len(embeddings) != len(chunks) {
		return fmt.Errorf("%w: expected %d, got %d", ai.ErrEmbeddingCount, len(chunks), len(embeddings))
	}

	for i, chunk := range chunks {
		if len(embeddings[i]) != len(chunk.Vector) {
			return fmt.Errorf("%w: chunk %s has %d dimensions, model returned %d",
				storage.ErrDimensionMismatch, chunk.Key(), len(chunk.Vector), len(embeddings[i]))
		}
	}

	for i := range chunks {
		chunks[i].Vector = storage.Normalize(embeddings[i])
	}

	if err := bp.writer.Upsert(ctx, namespace, chunks...); err != nil {
		return fmt.Errorf("failed to update chunks: %w", err)
	}

	return nil
}

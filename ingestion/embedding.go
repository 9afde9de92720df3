package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/carebuddy/ai"
	"github.com/poiesic/carebuddy/core"
)

// embeddingStage embeds chunk texts in fixed-size batches spread over a
// worker pool.
type embeddingStage struct {
	embedder  ai.Embedder
	pool      *ants.Pool
	batchSize int
	logger    *slog.Logger
}

func newEmbeddingStage(embedder ai.Embedder, pool *ants.Pool, batchSize int, logger *slog.Logger) *embeddingStage {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &embeddingStage{
		embedder:  embedder,
		pool:      pool,
		batchSize: batchSize,
		logger:    logger.With("processor", "embeddings"),
	}
}

// embed returns one vector per text, in order. The first failing batch
// cancels the others. Every error wraps core.ErrEmbeddingService.
func (s *embeddingStage) embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	vectors := make([][]float32, len(texts))
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
	}

	for start := 0; start < len(texts); start += s.batchSize {
		end := min(start+s.batchSize, len(texts))
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			vecs, err := s.embedder.EmbedTexts(ctx, texts[start:end])
			if err != nil {
				fail(err)
				return
			}
			if len(vecs) != end-start {
				fail(fmt.Errorf("%w: got %d, want %d", ai.ErrEmbeddingCount, len(vecs), end-start))
				return
			}
			copy(vectors[start:end], vecs)
		})
		if err != nil {
			wg.Done()
			fail(err)
			break
		}
	}
	wg.Wait()

	if firstErr == nil {
		firstErr = ctx.Err()
	}
	if firstErr != nil {
		s.logger.Error("error generating embeddings", "chunks", len(texts), "err", firstErr)
		if !errors.Is(firstErr, core.ErrEmbeddingService) {
			firstErr = fmt.Errorf("%w: %w", core.ErrEmbeddingService, firstErr)
		}
		return nil, firstErr
	}

	for n, vec := range vectors {
		if len(vec) == 0 {
			return nil, fmt.Errorf("%w: %w for chunk %d", core.ErrEmbeddingService, ai.ErrEmptyEmbedding, n)
		}
	}
	s.logger.Debug("generated embeddings", "chunks", len(texts))
	return vectors, nil
}

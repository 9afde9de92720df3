// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package reembed

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/poiesic/carebuddy/ai"
	"github.com/poiesic/carebuddy/core"
	"github.com/poiesic/carebuddy/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of chunks to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of chunks)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for embedding calls
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// Namespaces limits the run to these namespaces; empty means all
	Namespaces []string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Store is an index whose chunks can be listed and rewritten.
type Store interface {
	storage.ChunkStore
	Writer
}

// Reembedder orchestrates the reembedding of all chunks in an index.
type Reembedder struct {
	store     Store
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *ChunkIterator
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(store Store, embedder ai.Embedder, config *Config, progress io.Writer) (*Reembedder, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		store:     store,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(store, embedder, config.MaxRetries, config.RetryDelay),
		iterator:  NewChunkIterator(store, config.Namespaces, config.BatchSize),
	}, nil
}

// Run executes the reembedding operation and returns the number of chunks
// rewritten. Progress is reported to the configured writer.
func (r *Reembedder) Run(ctx context.Context) (int, error) {
	total, err := r.iterator.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}

	if total == 0 {
		fmt.Fprintf(r.progress, "No chunks found in index (0 chunks)\n")
		return 0, nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d chunks (batch size: %d)\n",
		total, r.iterator.batchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	processed := 0
	err = r.iterator.ForEach(ctx, func(namespace string, chunks []*core.Chunk) error {
		if err := r.processor.Process(ctx, namespace, chunks); err != nil {
			return fmt.Errorf("failed to process batch in namespace %q: %w", namespace, err)
		}
		processed += len(chunks)
		tracker.Add(namespace, len(chunks))
		return nil
	})
	if err != nil {
		return processed, err
	}

	summary := tracker.Finish()
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d chunks across %d namespaces in %v (%.1f chunks/sec)\n",
		summary.Chunks, len(summary.PerNS), summary.Elapsed.Round(time.Millisecond), summary.PerSecond)

	return processed, nil
}

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

	"github.com/poiesic/carebuddy/core"
	"github.com/poiesic/carebuddy/storage"
)

const (
	// DefaultBatchSize is the default number of chunks to fetch in each batch
	DefaultBatchSize = 100
)

// ChunkIterator iterates over the chunks of one or more namespaces in batches.
type ChunkIterator struct {
	store      storage.ChunkStore
	namespaces []string
	batchSize  int
}

// NewChunkIterator creates a new chunk iterator.
// namespaces: namespaces to visit; empty means every namespace in the store
// batchSize: number of chunks to fetch in each batch (must be > 0)
func NewChunkIterator(store storage.ChunkStore, namespaces []string, batchSize int) *ChunkIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &ChunkIterator{
		store:      store,
		namespaces: namespaces,
		batchSize:  batchSize,
	}
}

// Namespaces resolves the namespaces the iterator visits.
func (it *ChunkIterator) Namespaces(ctx context.Context) ([]string, error) {
	if len(it.namespaces) > 0 {
		return it.namespaces, nil
	}
	return it.store.Namespaces(ctx)
}

// Count returns the number of chunks the iterator will visit.
func (it *ChunkIterator) Count(ctx context.Context) (int, error) {
	namespaces, err := it.Namespaces(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, ns := range namespaces {
		n, err := it.store.CountChunks(ctx, ns)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// ForEach calls fn for each batch of chunks, namespace by namespace.
// Iteration stops on first error from fn or when all chunks are processed.
// Context cancellation is checked between batches.
func (it *ChunkIterator) ForEach(ctx context.Context, fn func(namespace string, chunks []*core.Chunk) error) error {
	namespaces, err := it.Namespaces(ctx)
	if err != nil {
		return err
	}

	for _, ns := range namespaces {
		err := it.store.ForEachChunk(ctx, ns, it.batchSize, func(chunks []*core.Chunk) error {
			if err := fn(ns, chunks); err != nil {
				return err
			}
			return ctx.Err()
		})
		if err != nil {
			return err
		}
	}

	return nil
}

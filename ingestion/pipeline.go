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


package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/carebuddy/ai"
	"github.com/poiesic/carebuddy/chunker"
	"github.com/poiesic/carebuddy/core"
	"github.com/poiesic/carebuddy/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultBatchSize is the number of chunks sent per embedding request.
	DefaultBatchSize = 16

	// DefaultIndexTimeout bounds the single index write of an ingestion.
	DefaultIndexTimeout = 30 * time.Second
)

// Pipeline orchestrates the ingestion of documents into a vector index.
// Chunks of one document are embedded concurrently; documents submitted
// with Submit are ingested on a separate pool.
type Pipeline struct {
	index        storage.VectorIndex
	embedder     ai.Embedder
	splitter     *chunker.Splitter
	namespace    string
	source       string
	batchSize    int
	indexTimeout time.Duration
	embedPool    *ants.Pool
	submitPool   *ants.Pool
	embedding    *embeddingStage
	tracer       trace.Tracer
	logger       *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent processing.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		embedPool, submitPool, err := newPools(size)
		if err != nil {
			return err
		}
		p.releasePools()
		p.embedPool = embedPool
		p.submitPool = submitPool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithSplitter sets the chunker. Default is chunker.New() with no options.
func WithSplitter(splitter *chunker.Splitter) Option {
	return func(p *Pipeline) error {
		if splitter == nil {
			return fmt.Errorf("%w: splitter is nil", chunker.ErrInvalidConfig)
		}
		if err := splitter.Validate(); err != nil {
			return err
		}
		p.splitter = splitter
		return nil
	}
}

// WithNamespace sets the index namespace documents are written to.
// Default is core.DefaultNamespace.
func WithNamespace(namespace string) Option {
	return func(p *Pipeline) error {
		if err := core.ValidateNamespace(namespace); err != nil {
			return err
		}
		p.namespace = namespace
		return nil
	}
}

// WithSource sets the source tag stored on every chunk.
// Default is core.SourceDoctorDocument.
func WithSource(source string) Option {
	return func(p *Pipeline) error {
		p.source = source
		return nil
	}
}

// WithBatchSize sets how many chunks go into one embedding request.
func WithBatchSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		p.batchSize = size
		return nil
	}
}

// WithIndexTimeout bounds the index write. Zero disables the bound.
func WithIndexTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		p.indexTimeout = d
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(index storage.VectorIndex, embedder ai.Embedder, opts ...Option) (*Pipeline, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	splitter, err := chunker.New()
	if err != nil {
		return nil, err
	}

	// Default pool size
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	embedPool, submitPool, err := newPools(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		index:        index,
		embedder:     embedder,
		splitter:     splitter,
		namespace:    core.DefaultNamespace,
		source:       core.SourceDoctorDocument,
		batchSize:    DefaultBatchSize,
		indexTimeout: DefaultIndexTimeout,
		embedPool:    embedPool,
		submitPool:   submitPool,
		tracer:       otel.Tracer("github.com/poiesic/carebuddy/ingestion"),
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	p.logger = p.logger.With("component", "ingestion", "namespace", p.namespace)
	p.embedding = newEmbeddingStage(embedder, p.embedPool, p.batchSize, p.logger)
	return p, nil
}

func newPools(size int) (*ants.Pool, *ants.Pool, error) {
	embedPool, err := ants.NewPool(size)
	if err != nil {
		return nil, nil, err
	}
	submitPool, err := ants.NewPool(size)
	if err != nil {
		embedPool.Release()
		return nil, nil, err
	}
	return embedPool, submitPool, nil
}

// Namespace returns the namespace documents are written to.
func (p *Pipeline) Namespace() string {
	return p.namespace
}

// Ingest chunks, embeds and indexes a document, returning the number of
// chunks written. Nothing is written unless every chunk was embedded.
//
// Re-ingesting a document ID overwrites chunks with the same ordinal.
// Chunks beyond the new document's length are left in place; call
// DeleteDocument first to replace a document with a shorter one.
func (p *Pipeline) Ingest(ctx context.Context, doc *core.Document) (n int, err error) {
	ctx, span := p.tracer.Start(ctx, "ingestion.Ingest")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := core.ValidateDocument(doc); err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.String("carebuddy.document_id", doc.ID))
	logger := p.logger.With("doc_id", doc.ID)

	texts := p.splitter.Split(doc.Text)
	if len(texts) == 0 {
		return 0, fmt.Errorf("%w: %w", core.ErrChunking, ErrNoChunks)
	}
	span.SetAttributes(attribute.Int("carebuddy.chunks", len(texts)))

	vectors, err := p.embedding.embed(ctx, texts)
	if err != nil {
		logger.Error("document not indexed", "stage", "embedding", "err", err)
		return 0, err
	}

	chunks := p.buildChunks(doc, texts, vectors)

	writeCtx := ctx
	if p.indexTimeout > 0 {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(ctx, p.indexTimeout)
		defer cancel()
	}
	if err := p.index.Upsert(writeCtx, p.namespace, chunks...); err != nil {
		if errors.Is(writeCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, core.ErrIndexUnavailable) {
			err = fmt.Errorf("%w: %w", core.ErrIndexUnavailable, err)
		}
		logger.Error("document not indexed", "stage", "index", "err", err)
		return 0, err
	}

	logger.Info("document indexed", "chunks", len(chunks))
	return len(chunks), nil
}

func (p *Pipeline) buildChunks(doc *core.Document, texts []string, vectors [][]float32) []*core.Chunk {
	chunks := make([]*core.Chunk, len(texts))
	for ord, text := range texts {
		meta := map[string]string{
			core.MetaDocumentID: doc.ID,
			core.MetaChunkIndex: strconv.Itoa(ord),
			core.MetaSource:     p.source,
		}
		if doc.BuddyID != "" {
			meta[core.MetaBuddyID] = doc.BuddyID
		}
		chunks[ord] = &core.Chunk{
			Id:         core.ChunkID(doc.ID, ord),
			DocumentID: doc.ID,
			Ordinal:    ord,
			Namespace:  p.namespace,
			Source:     p.source,
			Text:       text,
			Vector:     vectors[ord],
			Metadata:   meta,
		}
	}
	return chunks
}

// IngestDocument ingests raw text under the given document ID and reports
// whether it became searchable. Failures are logged, never returned.
func (p *Pipeline) IngestDocument(ctx context.Context, text, docID string) bool {
	_, err := p.Ingest(ctx, &core.Document{ID: docID, Text: text, UploadedAt: time.Now().UTC()})
	return err == nil
}

// Submit ingests a document in the background. done, if not nil, is called
// with the result once ingestion finishes. An error is returned only when
// the document could not be queued.
func (p *Pipeline) Submit(ctx context.Context, doc *core.Document, done func(n int, err error)) error {
	return p.submitPool.Submit(func() {
		n, err := p.Ingest(ctx, doc)
		if done != nil {
			done(n, err)
		}
	})
}

// DeleteDocument removes every chunk of a document from the index.
func (p *Pipeline) DeleteDocument(ctx context.Context, docID string) (int, error) {
	n, err := p.index.DeleteDocument(ctx, p.namespace, docID)
	if err != nil {
		p.logger.Error("error deleting document", "doc_id", docID, "err", err)
		return 0, err
	}
	p.logger.Info("document deleted", "doc_id", docID, "chunks", n)
	return n, nil
}

// DeleteNamespace removes every chunk in the pipeline's namespace.
func (p *Pipeline) DeleteNamespace(ctx context.Context) (int, error) {
	n, err := p.index.DeleteNamespace(ctx, p.namespace)
	if err != nil {
		p.logger.Error("error purging namespace", "err", err)
		return 0, err
	}
	p.logger.Info("namespace purged", "chunks", n)
	return n, nil
}

// Release releases the worker pools, waiting briefly for queued work.
func (p *Pipeline) Release() {
	if p.submitPool != nil {
		_ = p.submitPool.ReleaseTimeout(5 * time.Second)
	}
	p.releasePools()
}

func (p *Pipeline) releasePools() {
	if p.embedPool != nil {
		p.embedPool.Release()
	}
	if p.submitPool != nil {
		p.submitPool.Release()
	}
}

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


// Package carebuddy wires the document ingestion and question answering
// pipelines into a single explicitly constructed service.
package carebuddy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/carebuddy/ai"
	"github.com/poiesic/carebuddy/ai/openai"
	"github.com/poiesic/carebuddy/answer"
	"github.com/poiesic/carebuddy/core"
	"github.com/poiesic/carebuddy/extract"
	"github.com/poiesic/carebuddy/ingestion"
	"github.com/poiesic/carebuddy/reembed"
	"github.com/poiesic/carebuddy/search"
	"github.com/poiesic/carebuddy/storage"
	"github.com/poiesic/carebuddy/storage/badger"
	"github.com/poiesic/carebuddy/storage/qdrant"
)

// DefaultQueryCacheSize is the number of query embeddings kept in memory.
const DefaultQueryCacheSize = 1024

// ErrReembedUnsupported is returned when the index cannot list its chunks.
var ErrReembedUnsupported = errors.New("index does not support re-embedding")

// Service is the CareBuddy retrieval core: one vector index, one AI
// provider, and the pipelines built on them.
type Service struct {
	index     storage.VectorIndex
	provider  ai.AIProvider
	embedder  ai.Embedder
	pipeline  *ingestion.Pipeline
	retriever *search.Retriever
	answerer  *answer.Answerer
	namespace string
	logger    *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type qdrantOptions struct {
	host       string
	port       int
	collection string
}

type serviceOptions struct {
	aiConfig       *ai.Config
	provider       ai.AIProvider
	qdrant         *qdrantOptions
	inMemory       bool
	namespace      string
	queryCacheSize int
	pipelineOpts   []ingestion.Option
	answerOpts     []answer.Option
	logger         *slog.Logger
}

// WithAIConfig sets the embedding and generation service configuration.
func WithAIConfig(config *ai.Config) ServiceOption {
	return func(o *serviceOptions) {
		if config != nil {
			o.aiConfig = config
		}
	}
}

// WithProvider supplies the AI provider instead of building one from the
// AI config. The service closes it on Close.
func WithProvider(provider ai.AIProvider) ServiceOption {
	return func(o *serviceOptions) {
		o.provider = provider
	}
}

// WithQdrant stores chunks in a Qdrant collection instead of BadgerDB.
// An empty collection keeps the default.
func WithQdrant(host string, port int, collection string) ServiceOption {
	return func(o *serviceOptions) {
		o.qdrant = &qdrantOptions{host: host, port: port, collection: collection}
	}
}

// WithInMemory keeps the BadgerDB index in memory; the path is ignored.
func WithInMemory() ServiceOption {
	return func(o *serviceOptions) {
		o.inMemory = true
	}
}

// WithNamespace sets the index namespace. Default is core.DefaultNamespace.
func WithNamespace(namespace string) ServiceOption {
	return func(o *serviceOptions) {
		o.namespace = namespace
	}
}

// WithQueryCacheSize sets how many query embeddings are cached. Zero
// disables the cache.
func WithQueryCacheSize(size int) ServiceOption {
	return func(o *serviceOptions) {
		o.queryCacheSize = size
	}
}

// WithIngestionOptions passes options through to the ingestion pipeline.
func WithIngestionOptions(opts ...ingestion.Option) ServiceOption {
	return func(o *serviceOptions) {
		o.pipelineOpts = append(o.pipelineOpts, opts...)
	}
}

// WithAnswerOptions passes options through to the answerer.
func WithAnswerOptions(opts ...answer.Option) ServiceOption {
	return func(o *serviceOptions) {
		o.answerOpts = append(o.answerOpts, opts...)
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// NewService opens the index at filePath and builds the pipelines on it.
func NewService(filePath string, opts ...ServiceOption) (*Service, error) {
	options := &serviceOptions{
		aiConfig:       ai.DefaultConfig(),
		namespace:      core.DefaultNamespace,
		queryCacheSize: DefaultQueryCacheSize,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if err := core.ValidateNamespace(options.namespace); err != nil {
		return nil, err
	}

	index, err := openIndex(filePath, options)
	if err != nil {
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		provider, err = openai.NewProvider(options.aiConfig)
		if err != nil {
			index.Close()
			return nil, err
		}
	}

	s := &Service{
		index:     index,
		provider:  provider,
		namespace: options.namespace,
		logger:    options.logger.With("component", "service"),
	}
	if err := s.build(options); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func openIndex(filePath string, options *serviceOptions) (storage.VectorIndex, error) {
	if q := options.qdrant; q != nil {
		qopts := []qdrant.Option{
			qdrant.WithDimensions(options.aiConfig.Dimensions),
			qdrant.WithLogger(options.logger),
		}
		if q.collection != "" {
			qopts = append(qopts, qdrant.WithCollection(q.collection))
		}
		return qdrant.New(q.host, q.port, qopts...)
	}

	backend, err := badger.OpenBackend(filePath, options.inMemory)
	if err != nil {
		return nil, err
	}
	index, err := badger.NewIndex(backend, badger.WithIndexLogger(options.logger), badger.WithOwnedBackend())
	if err != nil {
		backend.Close()
		return nil, err
	}
	return index, nil
}

func (s *Service) build(options *serviceOptions) error {
	resilientOpts := []ai.ResilientOption{
		ai.WithEmbedTimeout(options.aiConfig.RequestTimeout),
		ai.WithEmbedLogger(options.logger),
	}
	if options.provider == nil {
		resilientOpts = append(resilientOpts, ai.WithExpectedDimensions(options.aiConfig.Dimensions))
	}
	embedder, err := ai.NewResilientEmbedder(s.provider.Embedder(), resilientOpts...)
	if err != nil {
		return err
	}
	s.embedder = embedder

	var queryEmbedder ai.Embedder = embedder
	if options.queryCacheSize > 0 {
		queryEmbedder, err = ai.NewCachedEmbedder(embedder, options.aiConfig.EmbeddingModel, options.queryCacheSize)
		if err != nil {
			return err
		}
	}

	pipelineOpts := append([]ingestion.Option{
		ingestion.WithNamespace(s.namespace),
		ingestion.WithLogger(options.logger),
	}, options.pipelineOpts...)
	s.pipeline, err = ingestion.NewPipeline(s.index, embedder, pipelineOpts...)
	if err != nil {
		return err
	}

	s.retriever, err = search.NewRetriever(s.index, queryEmbedder,
		search.WithNamespace(s.namespace), search.WithLogger(options.logger))
	if err != nil {
		return err
	}

	direct, related := options.aiConfig.Thresholds()
	answerOpts := append([]answer.Option{
		answer.WithLogger(options.logger),
		answer.WithThresholds(direct, related),
	}, options.answerOpts...)
	s.answerer, err = answer.NewAnswerer(s.retriever, s.provider.Generator(), answerOpts...)
	return err
}

// Namespace returns the namespace the service reads and writes.
func (s *Service) Namespace() string {
	return s.namespace
}

// Index returns the underlying vector index.
func (s *Service) Index() storage.VectorIndex {
	return s.index
}

// Pipeline returns the ingestion pipeline.
func (s *Service) Pipeline() *ingestion.Pipeline {
	return s.pipeline
}

// IngestDocument ingests text under docID and reports whether it became
// searchable.
func (s *Service) IngestDocument(ctx context.Context, text, docID string) bool {
	return s.pipeline.IngestDocument(ctx, text, docID)
}

// Ingest ingests a document and returns the number of chunks written.
func (s *Service) Ingest(ctx context.Context, doc *core.Document) (int, error) {
	return s.pipeline.Ingest(ctx, doc)
}

// IngestFile extracts the text of a .txt, .md or .pdf file and ingests it.
func (s *Service) IngestFile(ctx context.Context, path string, doc *core.Document) (int, error) {
	if doc == nil {
		doc = &core.Document{ID: extract.DocumentID(path), UploadedAt: time.Now().UTC()}
	}
	text, err := extract.FromFile(path)
	if err != nil {
		return 0, fmt.Errorf("extract %s: %w", path, err)
	}
	doc.Text = text
	return s.pipeline.Ingest(ctx, doc)
}

// Answer returns a safe reply to query. It never returns an empty string.
func (s *Service) Answer(ctx context.Context, query string, history []core.Turn) string {
	return s.answerer.Answer(ctx, query, history)
}

// Respond is Answer with the outcome and sources of the reply.
func (s *Service) Respond(ctx context.Context, query string, history []core.Turn) *answer.Response {
	return s.answerer.Respond(ctx, query, history)
}

// Retrieve returns the k chunks nearest to query.
func (s *Service) Retrieve(ctx context.Context, query string, k int, monitor search.RetrievalMonitor) ([]*core.RetrievalResult, error) {
	return s.retriever.RetrieveWithMonitor(ctx, query, k, monitor)
}

// DeleteDocument removes every chunk of a document.
func (s *Service) DeleteDocument(ctx context.Context, docID string) (int, error) {
	return s.pipeline.DeleteDocument(ctx, docID)
}

// DeleteNamespace removes every chunk of the service's namespace.
func (s *Service) DeleteNamespace(ctx context.Context) (int, error) {
	return s.pipeline.DeleteNamespace(ctx)
}

// Reembed re-embeds every chunk of the service's namespace with the
// service's embedding model.
func (s *Service) Reembed(ctx context.Context, config *reembed.Config, progress io.Writer) (int, error) {
	store, ok := s.index.(reembed.Store)
	if !ok {
		return 0, ErrReembedUnsupported
	}
	if config == nil {
		config = reembed.DefaultConfig()
	}
	if len(config.Namespaces) == 0 {
		config.Namespaces = []string{s.namespace}
	}
	r, err := reembed.NewReembedder(store, s.embedder, config, progress)
	if err != nil {
		return 0, err
	}
	return r.Run(ctx)
}

// Close releases the pipelines, the AI provider and the index.
func (s *Service) Close() error {
	if s.pipeline != nil {
		s.pipeline.Release()
	}

	var errs []error
	if err := s.provider.Close(); err != nil {
		s.logger.Error("error closing AI provider", "err", err)
		errs = append(errs, err)
	}
	if err := s.index.Close(); err != nil {
		s.logger.Error("error closing index", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

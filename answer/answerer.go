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

package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/carebuddy/ai"
	"github.com/poiesic/carebuddy/core"
	"github.com/poiesic/carebuddy/search"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// NotFoundMessage is returned when the documents do not cover a question.
	NotFoundMessage = "I couldn't find any relevant information about that in the documents your care team provided. Please contact your healthcare provider for guidance."

	// ApologyMessage is returned when a reply could not be produced.
	ApologyMessage = "I apologize, but I encountered an error. Please try again or contact your healthcare provider."

	DefaultK                 = search.DefaultK
	DefaultDirectThreshold   = 0.5
	DefaultRelatedThreshold  = 0.3
	DefaultMaxHistoryTurns   = 5
	DefaultTemperature       = 0.1
	DefaultRetrievalTimeout  = 15 * time.Second
	DefaultGenerationTimeout = 60 * time.Second
)

// Retriever finds the chunks nearest to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]*core.RetrievalResult, error)
}

// Answerer answers patient questions from retrieved document chunks.
type Answerer struct {
	retriever         Retriever
	generator         ai.Generator
	k                 int
	directThreshold   float32
	relatedThreshold  float32
	maxHistoryTurns   int
	temperature       float64
	maxTokens         int
	retrievalTimeout  time.Duration
	generationTimeout time.Duration
	notFoundMessage   string
	apologyMessage    string
	tracer            trace.Tracer
	logger            *slog.Logger
}

// Option configures an Answerer.
type Option func(*Answerer) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *Answerer) error {
		if logger == nil {
			logger = slog.Default()
		}
		a.logger = logger
		return nil
	}
}

// WithK sets the number of chunks retrieved per question.
func WithK(k int) Option {
	return func(a *Answerer) error {
		if k < 1 {
			k = 1
		}
		a.k = k
		return nil
	}
}

// WithThresholds sets the similarity scores at or above which retrieved
// content counts as directly addressing or related to a question.
func WithThresholds(direct, related float32) Option {
	return func(a *Answerer) error {
		if related > direct {
			return ErrInvalidThresholds
		}
		a.directThreshold = direct
		a.relatedThreshold = related
		return nil
	}
}

// Thresholds returns the direct and related similarity thresholds.
func (a *Answerer) Thresholds() (direct, related float32) {
	return a.directThreshold, a.relatedThreshold
}

// WithMaxHistoryTurns bounds the prior turns sent to the model.
func WithMaxHistoryTurns(n int) Option {
	return func(a *Answerer) error {
		a.maxHistoryTurns = max(n, 0)
		return nil
	}
}

// WithTemperature sets the generation temperature.
func WithTemperature(t float64) Option {
	return func(a *Answerer) error {
		a.temperature = t
		return nil
	}
}

// WithMaxTokens bounds the reply length. Zero leaves it to the model.
func WithMaxTokens(n int) Option {
	return func(a *Answerer) error {
		a.maxTokens = max(n, 0)
		return nil
	}
}

// WithTimeouts bounds retrieval and generation. Zero disables a bound.
func WithTimeouts(retrieval, generation time.Duration) Option {
	return func(a *Answerer) error {
		a.retrievalTimeout = retrieval
		a.generationTimeout = generation
		return nil
	}
}

// WithMessages replaces the fixed not-found and apology replies. Empty
// strings keep the defaults.
func WithMessages(notFound, apology string) Option {
	return func(a *Answerer) error {
		if strings.TrimSpace(notFound) != "" {
			a.notFoundMessage = notFound
		}
		if strings.TrimSpace(apology) != "" {
			a.apologyMessage = apology
		}
		return nil
	}
}

// NewAnswerer creates a new answerer.
func NewAnswerer(retriever Retriever, generator ai.Generator, opts ...Option) (*Answerer, error) {
	if retriever == nil {
		return nil, ErrRetrieverRequired
	}
	if generator == nil {
		return nil, ErrGeneratorRequired
	}

	a := &Answerer{
		retriever:         retriever,
		generator:         generator,
		k:                 DefaultK,
		directThreshold:   DefaultDirectThreshold,
		relatedThreshold:  DefaultRelatedThreshold,
		maxHistoryTurns:   DefaultMaxHistoryTurns,
		temperature:       DefaultTemperature,
		retrievalTimeout:  DefaultRetrievalTimeout,
		generationTimeout: DefaultGenerationTimeout,
		notFoundMessage:   NotFoundMessage,
		apologyMessage:    ApologyMessage,
		tracer:            otel.Tracer("github.com/poiesic/carebuddy/answer"),
		logger:            slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	a.logger = a.logger.With("component", "answerer")

	return a, nil
}

// Answer returns the reply to query given the prior turns of the
// conversation. The reply is never empty.
func (a *Answerer) Answer(ctx context.Context, query string, history []core.Turn) string {
	return a.Respond(ctx, query, history).Text
}

// Respond is Answer with the outcome and sources of the reply.
func (a *Answerer) Respond(ctx context.Context, query string, history []core.Turn) (resp *Response) {
	ctx, span := a.tracer.Start(ctx, "answer.Respond")
	defer func() {
		if r := recover(); r != nil {
			resp = a.fail(fmt.Errorf("%w: panic: %v", core.ErrGeneration, r))
		}
		span.SetAttributes(
			attribute.String("carebuddy.outcome", resp.Outcome.String()),
			attribute.Int("carebuddy.sources", len(resp.Sources)),
		)
		if resp.Err != nil {
			span.RecordError(resp.Err)
			span.SetStatus(codes.Error, resp.Err.Error())
		}
		span.End()
	}()

	if strings.TrimSpace(query) == "" {
		return &Response{Text: a.notFoundMessage, Outcome: NotFound}
	}

	results, err := a.retrieve(ctx, query)
	if err != nil {
		return a.fail(err)
	}

	outcome, sources := a.classify(query, results)
	a.logger.Debug("classified retrieval", "outcome", outcome, "hits", len(results), "sources", len(sources))
	if outcome == NotFound {
		return &Response{Text: a.notFoundMessage, Outcome: NotFound}
	}

	messages := buildMessages(query, outcome, sources, recentTurns(history, a.maxHistoryTurns), a.notFoundMessage)
	text, err := a.generate(ctx, messages)
	if err != nil {
		return a.fail(err)
	}

	return &Response{Text: text, Outcome: outcome, Sources: sources}
}

func (a *Answerer) retrieve(ctx context.Context, query string) ([]*core.RetrievalResult, error) {
	if a.retrievalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.retrievalTimeout)
		defer cancel()
	}
	results, err := a.retriever.Retrieve(ctx, query, a.k)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) &&
		!errors.Is(err, core.ErrEmbeddingService) && !errors.Is(err, core.ErrIndexUnavailable) {
		err = fmt.Errorf("%w: %w", core.ErrIndexUnavailable, err)
	}
	return results, err
}

func (a *Answerer) generate(ctx context.Context, messages []ai.Message) (string, error) {
	if a.generationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.generationTimeout)
		defer cancel()
	}
	opts := []ai.GenerateOption{ai.WithTemperature(a.temperature)}
	if a.maxTokens > 0 {
		opts = append(opts, ai.WithMaxTokens(a.maxTokens))
	}
	text, err := a.generator.Generate(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrGeneration, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: %w", core.ErrGeneration, ErrEmptyGeneration)
	}
	return text, nil
}

// classify decides the outcome from retrieval scores alone and returns the
// results that clear the related threshold.
func (a *Answerer) classify(query string, results []*core.RetrievalResult) (Outcome, []*core.RetrievalResult) {
	sources := make([]*core.RetrievalResult, 0, len(results))
	var best float32
	verbatim := false
	for _, result := range results {
		if result == nil || result.Chunk == nil || result.Score < a.relatedThreshold {
			continue
		}
		sources = append(sources, result)
		best = max(best, result.Score)
		if search.ContainsAllQueryWords(result.Chunk.Text, query) {
			verbatim = true
		}
	}

	switch {
	case len(sources) == 0:
		return NotFound, nil
	case best >= a.directThreshold || verbatim:
		return Direct, sources
	default:
		return Partial, sources
	}
}

func (a *Answerer) fail(err error) *Response {
	a.logger.Error("returning apology", "err", err)
	return &Response{Text: a.apologyMessage, Outcome: Failed, Err: err}
}

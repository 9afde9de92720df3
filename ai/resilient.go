package ai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/carebuddy/core"
	"golang.org/x/time/rate"
)

const (
	DefaultEmbedTimeout     = 30 * time.Second
	DefaultEmbedMaxAttempts = 3
	DefaultEmbedRetryDelay  = 500 * time.Millisecond
)

// ResilientEmbedder decorates an Embedder with a per-attempt timeout,
// bounded retry with exponential backoff and optional rate limiting.
// Every error it returns wraps core.ErrEmbeddingService.
type ResilientEmbedder struct {
	inner       Embedder
	timeout     time.Duration
	maxAttempts int
	retryDelay  time.Duration
	dimensions  int
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// ResilientOption configures a ResilientEmbedder.
type ResilientOption func(*ResilientEmbedder)

// WithEmbedTimeout bounds each attempt. Zero disables the timeout.
func WithEmbedTimeout(d time.Duration) ResilientOption {
	return func(r *ResilientEmbedder) {
		r.timeout = d
	}
}

// WithRetry sets the attempt budget and the initial backoff delay.
func WithRetry(maxAttempts int, baseDelay time.Duration) ResilientOption {
	return func(r *ResilientEmbedder) {
		r.maxAttempts = maxAttempts
		r.retryDelay = baseDelay
	}
}

// WithExpectedDimensions rejects vectors of any other length.
func WithExpectedDimensions(dims int) ResilientOption {
	return func(r *ResilientEmbedder) {
		r.dimensions = dims
	}
}

// WithRateLimit allows at most rps requests per second with the given burst.
func WithRateLimit(rps float64, burst int) ResilientOption {
	return func(r *ResilientEmbedder) {
		if rps > 0 {
			r.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
		}
	}
}

// WithEmbedLogger sets the logger. Nil selects the default logger.
func WithEmbedLogger(logger *slog.Logger) ResilientOption {
	return func(r *ResilientEmbedder) {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger.With("component", "resilient-embedder")
	}
}

// NewResilientEmbedder wraps inner.
func NewResilientEmbedder(inner Embedder, opts ...ResilientOption) (*ResilientEmbedder, error) {
	if inner == nil {
		return nil, ErrEmbedderRequired
	}
	r := &ResilientEmbedder{
		inner:       inner,
		timeout:     DefaultEmbedTimeout,
		maxAttempts: DefaultEmbedMaxAttempts,
		retryDelay:  DefaultEmbedRetryDelay,
		logger:      slog.Default().With("component", "resilient-embedder"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.maxAttempts <= 0 {
		return nil, ErrInvalidMaxAttempts
	}
	return r, nil
}

// EmbedText embeds a single text.
func (r *ResilientEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := r.do(ctx, func(ctx context.Context) error {
		v, err := r.inner.EmbedText(ctx, text)
		if err != nil {
			return err
		}
		if err := r.check(v); err != nil {
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}

// EmbedTexts embeds texts in a single upstream call.
func (r *ResilientEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	var vecs [][]float32
	err := r.do(ctx, func(ctx context.Context) error {
		vs, err := r.inner.EmbedTexts(ctx, texts)
		if err != nil {
			return err
		}
		if len(vs) != len(texts) {
			return fmt.Errorf("%w: got %d, want %d", ErrEmbeddingCount, len(vs), len(texts))
		}
		for _, v := range vs {
			if err := r.check(v); err != nil {
				return err
			}
		}
		vecs = vs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vecs, nil
}

func (r *ResilientEmbedder) check(v []float32) error {
	if len(v) == 0 {
		return ErrEmptyEmbedding
	}
	if r.dimensions > 0 && len(v) != r.dimensions {
		return Permanent(fmt.Errorf("%w: got %d, want %d", ErrEmbeddingDimensions, len(v), r.dimensions))
	}
	return nil
}

func (r *ResilientEmbedder) do(ctx context.Context, call func(context.Context) error) error {
	attempt := func() error {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return Permanent(err)
			}
		}
		callCtx := ctx
		if r.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}
		return call(callCtx)
	}

	err := RetryWithBackoff(ctx, attempt, r.maxAttempts, r.retryDelay)
	if err != nil {
		r.logger.Warn("embedding failed", "attempts", r.maxAttempts, "err", err)
		return fmt.Errorf("%w: %w", core.ErrEmbeddingService, err)
	}
	return nil
}

package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/carebuddy/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// maxInputsPerRequest bounds how many texts go into one embeddings call.
const maxInputsPerRequest = 256

// Embedder implements ai.Embedder on an OpenAI-compatible embeddings API.
// Every returned vector is checked against the configured dimension.
type Embedder struct {
	embedder embeddings.Embedder
	model    string
	dims     int
	logger   *slog.Logger
}

// token returns the configured API key. Local OpenAI-compatible services
// don't require authentication but langchaingo insists on a token.
func token(config *ai.Config) string {
	if config.APIKey == "" {
		return "none"
	}
	return config.APIKey
}

func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken(token(config)),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(maxInputsPerRequest),
	)
	if err != nil {
		return nil, err
	}

	return &Embedder{
		embedder: embedder,
		model:    config.EmbeddingModel,
		dims:     config.Dimensions,
		logger:   slog.Default().With("component", "openai-embedder", "model", config.EmbeddingModel),
	}, nil
}

// NewEmbedder creates an embedder for the embedding host and model in config.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

// EmbedText embeds a single text.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedTexts embeds texts, returning one vector per text in input order.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	e.logger.Debug("requesting embeddings", "count", len(texts))

	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("embedding request failed", "count", len(texts), "err", err)
		return nil, err
	}
	if err := checkVectors(vecs, len(texts), e.dims); err != nil {
		e.logger.Warn("malformed embedding response", "err", err)
		return nil, err
	}
	return vecs, nil
}

// checkVectors verifies a response holds want non-empty vectors, each of
// length dims when dims is positive. A dimension mismatch is permanent: the
// model answers with the same width on every retry.
func checkVectors(vecs [][]float32, want, dims int) error {
	if len(vecs) != want {
		return fmt.Errorf("%w: got %d, want %d", ai.ErrEmbeddingCount, len(vecs), want)
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return fmt.Errorf("%w: text %d", ai.ErrEmptyEmbedding, i)
		}
		if dims > 0 && len(v) != dims {
			return ai.Permanent(fmt.Errorf("%w: text %d has %d dimensions, want %d", ai.ErrEmbeddingDimensions, i, len(v), dims))
		}
	}
	return nil
}

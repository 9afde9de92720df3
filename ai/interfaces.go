package ai

import "context"

// Embedder converts text into vectors.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple texts in one call.
	// The returned slice contains embeddings in the same order as the input texts.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat message sent to a Generator.
type Message struct {
	Role    Role
	Content string
}

// GenerateOptions tunes a single generation call.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
}

// GenerateOption configures a generation call.
type GenerateOption func(*GenerateOptions)

// WithTemperature overrides the provider's default temperature.
func WithTemperature(t float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = t
	}
}

// WithMaxTokens caps the length of the generated answer.
func WithMaxTokens(n int) GenerateOption {
	return func(o *GenerateOptions) {
		o.MaxTokens = n
	}
}

// Generator produces chat completions.
type Generator interface {
	// Generate returns the model's reply to messages. An empty reply is
	// returned as-is; callers decide whether that is an error.
	Generate(ctx context.Context, messages []Message, opts ...GenerateOption) (string, error)
}

// AIProvider aggregates the AI services used by the pipelines.
type AIProvider interface {
	// Embedder returns the text embedding service.
	// The returned Embedder is safe for concurrent use.
	Embedder() Embedder

	// Generator returns the chat completion service.
	// The returned Generator is safe for concurrent use.
	Generator() Generator

	// Close releases resources held by the provider and its services.
	Close() error
}

// Package mock provides test doubles for the ai package interfaces.
//
// The mocks are safe for concurrent use and let tests inject behaviour via
// function fields:
//
//	embedder := mock.NewMockEmbedder()
//	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
//	    return nil, errors.New("quota exceeded")
//	}
//
//	// Check call counts
//	count := embedder.CallCount()
//
// # Default Behavior
//
//   - MockEmbedder: hashed bag-of-words vectors, so texts sharing words are
//     similar under cosine similarity and identical texts score 1
//   - MockGenerator: echoes the first numbered source excerpt found in the
//     prompt, or a fixed reply when there is none
//   - MockProvider: aggregates a mock embedder and generator
package mock

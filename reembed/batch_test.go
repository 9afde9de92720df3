package reembed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/carebuddy/core"
	"github.com/poiesic/carebuddy/storage"
	"github.com/poiesic/carebuddy/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockEmbedder for testing
type mockEmbedder struct {
	embedTextFunc  func(ctx context.Context, text string) ([]float32, error)
	embedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)
}

func (m *mockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if m.embedTextFunc != nil {
		return m.embedTextFunc(ctx, text)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *mockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if m.embedTextsFunc != nil {
		return m.embedTextsFunc(ctx, texts)
	}
	// Default: return unnormalized vectors for each text
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = []float32{1.0, 2.0, 2.0} // magnitude = 3.0
	}
	return result, nil
}

func setupTestIndex(t *testing.T) *badger.Index {
	t.Helper()
	index, err := badger.NewMemoryIndex()
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })
	return index
}

// seedChunks writes count chunks of a single document to namespace.
func seedChunks(t *testing.T, index *badger.Index, namespace string, count int) []*core.Chunk {
	t.Helper()
	chunks := make([]*core.Chunk, count)
	for i := range chunks {
		chunks[i] = &core.Chunk{
			Id:         core.ChunkID(namespace+"-doc", i),
			DocumentID: namespace + "-doc",
			Ordinal:    i,
			Namespace:  namespace,
			Text:       "chunk text",
			Vector:     []float32{1, 0, 0},
		}
	}
	require.NoError(t, index.Upsert(context.Background(), namespace, chunks...))
	return chunks
}

func allChunks(t *testing.T, index *badger.Index, namespace string) []*core.Chunk {
	t.Helper()
	var out []*core.Chunk
	require.NoError(t, index.ForEachChunk(context.Background(), namespace, 100, func(batch []*core.Chunk) error {
		out = append(out, batch...)
		return nil
	}))
	return out
}

func TestBatchProcessor_Process(t *testing.T) {
	index := setupTestIndex(t)
	ctx := context.Background()

	seeded := seedChunks(t, index, "medical", 2)
	before := allChunks(t, index, "medical")

	processor := NewBatchProcessor(index, &mockEmbedder{}, 3, 10*time.Millisecond)
	require.NoError(t, processor.Process(ctx, "medical", before))

	after := allChunks(t, index, "medical")
	require.Len(t, after, len(seeded))
	for i, chunk := range after {
		assert.InDeltaSlice(t, []float32{1.0 / 3, 2.0 / 3, 2.0 / 3}, chunk.Vector, 1e-6)
		assert.Equal(t, before[i].Seq, chunk.Seq, "insertion order kept")
		assert.Equal(t, before[i].InsertedAt, chunk.InsertedAt)
	}
}

func TestBatchProcessor_EmptyBatch(t *testing.T) {
	processor := NewBatchProcessor(setupTestIndex(t), &mockEmbedder{}, 3, 10*time.Millisecond)
	assert.NoError(t, processor.Process(context.Background(), "medical", nil))
}

func TestBatchProcessor_RetryOnError(t *testing.T) {
	index := setupTestIndex(t)
	ctx := context.Background()
	seedChunks(t, index, "medical", 1)
	chunks := allChunks(t, index, "medical")

	attempts := 0
	embedder := &mockEmbedder{
		embedTextsFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			attempts++
			if attempts < 3 {
				return nil, errors.New("temporary error")
			}
			return [][]float32{{0, 3, 4}}, nil
		},
	}

	processor := NewBatchProcessor(index, embedder, 3, time.Millisecond)
	require.NoError(t, processor.Process(ctx, "medical", chunks))
	assert.Equal(t, 3, attempts)
	assert.InDeltaSlice(t, []float32{0, 0.6, 0.8}, allChunks(t, index, "medical")[0].Vector, 1e-6)
}

func TestBatchProcessor_Failures(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		embed   func(ctx context.Context, texts []string) ([][]float32, error)
		wantErr error
	}{
		{
			name: "embedding keeps failing",
			embed: func(ctx context.Context, texts []string) ([][]float32, error) {
				return nil, errors.New("permanent error")
			},
		},
		{
			name: "count mismatch",
			embed: func(ctx context.Context, texts []string) ([][]float32, error) {
				return [][]float32{{1, 0, 0}}, nil
			},
		},
		{
			name: "dimension change",
			embed: func(ctx context.Context, texts []string) ([][]float32, error) {
				out := make([][]float32, len(texts))
				for i := range out {
					out[i] = []float32{1, 0}
				}
				return out, nil
			},
			wantErr: storage.ErrDimensionMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index := setupTestIndex(t)
			seedChunks(t, index, "medical", 2)
			chunks := allChunks(t, index, "medical")

			processor := NewBatchProcessor(index, &mockEmbedder{embedTextsFunc: tt.embed}, 2, time.Millisecond)
			err := processor.Process(ctx, "medical", chunks)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}

			for _, chunk := range allChunks(t, index, "medical") {
				assert.Equal(t, []float32{1, 0, 0}, chunk.Vector, "stored vectors untouched")
			}
		})
	}
}

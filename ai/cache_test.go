package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedEmbedder(t *testing.T) {
	inner := constEmbedder([]float32{0.5, 0.5})
	c, err := NewCachedEmbedder(inner, "model-a", 8)
	require.NoError(t, err)

	ctx := context.Background()
	v1, err := c.EmbedText(ctx, "what dose?")
	require.NoError(t, err)
	v2, err := c.EmbedText(ctx, "what dose?")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, int32(1), inner.calls.Load(), "second lookup should hit the cache")
	assert.Equal(t, 1, c.Len())

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestCachedEmbedder_Batch(t *testing.T) {
	var seen [][]string
	inner := constEmbedder(nil)
	inner.texts = func(_ context.Context, texts []string) ([][]float32, error) {
		seen = append(seen, texts)
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = []float32{float32(len(text))}
		}
		return out, nil
	}
	c, err := NewCachedEmbedder(inner, "m", 0)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = c.EmbedTexts(ctx, []string{"a", "bb"})
	require.NoError(t, err)

	vecs, err := c.EmbedTexts(ctx, []string{"bb", "ccc", "a"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{2}, {3}, {1}}, vecs)
	require.Len(t, seen, 2)
	assert.Equal(t, []string{"ccc"}, seen[1], "only misses go upstream")
}

func TestCachedEmbedder_Errors(t *testing.T) {
	_, err := NewCachedEmbedder(nil, "m", 1)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	boom := errors.New("boom")
	inner := constEmbedder(nil)
	inner.text = func(context.Context, string) ([]float32, error) { return nil, boom }
	c, err := NewCachedEmbedder(inner, "m", 1)
	require.NoError(t, err)

	_, err = c.EmbedText(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len(), "failures are not cached")
}

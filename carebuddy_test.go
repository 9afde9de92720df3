package carebuddy

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/carebuddy/ai"
	"github.com/poiesic/carebuddy/ai/mock"
	"github.com/poiesic/carebuddy/answer"
	"github.com/poiesic/carebuddy/core"
	"github.com/poiesic/carebuddy/extract"
	"github.com/poiesic/carebuddy/reembed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *mock.MockProvider) {
	t.Helper()
	provider := mock.NewMockProvider()
	opts = append([]ServiceOption{WithInMemory(), WithProvider(provider)}, opts...)
	svc, err := NewService("", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc, provider
}

func TestNewService(t *testing.T) {
	t.Run("in memory with mock provider", func(t *testing.T) {
		svc, _ := newTestService(t)
		assert.Equal(t, core.DefaultNamespace, svc.Namespace())
		assert.NotNil(t, svc.Index())
		assert.NotNil(t, svc.Pipeline())
	})

	t.Run("default openai provider does not dial", func(t *testing.T) {
		svc, err := NewService(filepath.Join(t.TempDir(), "db"),
			WithAIConfig(ai.NewConfig(ai.WithHost("http://localhost:1"))))
		require.NoError(t, err)
		require.NoError(t, svc.Close())
	})

	t.Run("invalid namespace", func(t *testing.T) {
		_, err := NewService("", WithInMemory(), WithProvider(mock.NewMockProvider()), WithNamespace("a:b"))
		assert.ErrorIs(t, err, core.ErrInvalidNamespace)
	})

	t.Run("error with invalid path", func(t *testing.T) {
		tmpFile := filepath.Join(t.TempDir(), "not_a_dir")
		require.NoError(t, os.WriteFile(tmpFile, []byte("test"), 0o644))

		svc, err := NewService(tmpFile, WithProvider(mock.NewMockProvider()))
		assert.Error(t, err)
		assert.Nil(t, svc)
	})

	t.Run("qdrant index", func(t *testing.T) {
		svc, err := NewService("", WithProvider(mock.NewMockProvider()), WithQdrant("localhost", 6334, "test-docs"))
		require.NoError(t, err)
		defer svc.Close()

		_, err = svc.Reembed(context.Background(), nil, nil)
		assert.ErrorIs(t, err, ErrReembedUnsupported)
	})
}

func TestService_EndToEnd(t *testing.T) {
	ctx := context.Background()
	svc, provider := newTestService(t)

	require.True(t, svc.IngestDocument(ctx, "Patients with condition X should take medication Y twice daily.", "doc-1"))

	text := svc.Answer(ctx, "What should patients with condition X take?", nil)
	assert.Contains(t, text, "medication Y")
	assert.NotEqual(t, answer.ApologyMessage, text)

	resp := svc.Respond(ctx, "What should patients with condition X take?", []core.Turn{{User: "hi", Assistant: "hello"}})
	assert.Equal(t, answer.Direct, resp.Outcome)
	assert.Equal(t, 2, provider.GetMockGenerator().CallCount())

	results, err := svc.Retrieve(ctx, "medication Y", 3, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "doc-1", results[0].Chunk.DocumentID)
}

func TestService_EmptyNamespace(t *testing.T) {
	svc, provider := newTestService(t)
	assert.Equal(t, answer.NotFoundMessage, svc.Answer(context.Background(), "What should I take?", nil))
	assert.Zero(t, provider.GetMockGenerator().CallCount())
}

func TestService_EmbeddingFailure(t *testing.T) {
	ctx := context.Background()
	svc, provider := newTestService(t,
		WithQueryCacheSize(0),
		WithIngestionOptions(),
		WithAnswerOptions(answer.WithK(2)))

	require.True(t, svc.IngestDocument(ctx, "Drink water.", "doc-1"))
	provider.GetMockEmbedder().EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("quota exceeded")
	}
	assert.Equal(t, answer.ApologyMessage, svc.Answer(ctx, "Drink water?", nil))
}

func TestService_IngestFile(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	path := filepath.Join(t.TempDir(), "guidance.md")
	require.NoError(t, os.WriteFile(path, []byte("# Diet\n\nEat less salt."), 0o600))

	n, err := svc.IngestFile(ctx, path, &core.Document{ID: "guidance", BuddyID: "buddy-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = svc.IngestFile(ctx, filepath.Join(t.TempDir(), "scan.png"), &core.Document{ID: "scan"})
	assert.Error(t, err)

	t.Run("nil document uses path as id", func(t *testing.T) {
		n, err := svc.IngestFile(ctx, path, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		deleted, err := svc.DeleteDocument(ctx, extract.DocumentID(path))
		require.NoError(t, err)
		assert.Equal(t, 1, deleted)
	})
}

func TestService_Thresholds(t *testing.T) {
	t.Run("follow the embedding model", func(t *testing.T) {
		svc, _ := newTestService(t, WithAIConfig(ai.NewConfig(ai.WithEmbeddingModel("text-embedding-ada-002"))))
		direct, related := svc.answerer.Thresholds()
		assert.Equal(t, ai.CalibrationFor("text-embedding-ada-002"), ai.Calibration{Direct: direct, Related: related})
	})

	t.Run("default model", func(t *testing.T) {
		svc, _ := newTestService(t)
		direct, related := svc.answerer.Thresholds()
		assert.Equal(t, ai.CalibrationFor(ai.DefaultConfig().EmbeddingModel), ai.Calibration{Direct: direct, Related: related})
	})

	t.Run("answer options override", func(t *testing.T) {
		svc, _ := newTestService(t, WithAnswerOptions(answer.WithThresholds(0.7, 0.6)))
		direct, related := svc.answerer.Thresholds()
		assert.InDelta(t, 0.7, direct, 1e-6)
		assert.InDelta(t, 0.6, related, 1e-6)
	})
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Ingest(ctx, &core.Document{ID: "a", Text: "First."})
	require.NoError(t, err)
	_, err = svc.Ingest(ctx, &core.Document{ID: "b", Text: "Second."})
	require.NoError(t, err)

	n, err := svc.DeleteDocument(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = svc.DeleteNamespace(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestService_Reembed(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Ingest(ctx, &core.Document{ID: "a", Text: "Take medication Y."})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := svc.Reembed(ctx, &reembed.Config{BatchSize: 10, ReportInterval: 10, MaxRetries: 1}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, buf.String(), "Reembedding complete")
}

func TestService_Persistence(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "db")

	svc, err := NewService(dir, WithProvider(mock.NewMockProvider()))
	require.NoError(t, err)
	require.True(t, svc.IngestDocument(ctx, "Patients with condition X should take medication Y twice daily.", "doc-1"))
	require.NoError(t, svc.Close())

	svc, err = NewService(dir, WithProvider(mock.NewMockProvider()))
	require.NoError(t, err)
	defer svc.Close()
	assert.Contains(t, svc.Answer(ctx, "What should patients with condition X take?", nil), "medication Y")
}

func TestService_Close(t *testing.T) {
	provider := mock.NewMockProvider()
	svc, err := NewService("", WithInMemory(), WithProvider(provider))
	require.NoError(t, err)

	require.NoError(t, svc.Close())
	assert.True(t, provider.Closed())
}

package badger

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/poiesic/carebuddy/core"
	"github.com/poiesic/carebuddy/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	index, err := NewMemoryIndex()
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })
	return index
}

func chunk(doc string, ordinal int, text string, vec ...float32) *core.Chunk {
	return &core.Chunk{
		DocumentID: doc,
		Ordinal:    ordinal,
		Source:     core.SourceDoctorDocument,
		Text:       text,
		Vector:     vec,
		Metadata: map[string]string{
			core.MetaDocumentID: doc,
			core.MetaChunkIndex: fmt.Sprint(ordinal),
		},
	}
}

func TestIndex_UpsertAndQuery(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	err := index.Upsert(ctx, "medical",
		chunk("doc-1", 0, "rest", 1, 0, 0),
		chunk("doc-1", 1, "fluids", 0, 1, 0),
		chunk("doc-2", 0, "ice", 0.9, 0.1, 0),
	)
	require.NoError(t, err)

	results, err := index.Query(ctx, "medical", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "rest", results[0].Chunk.Text)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, "ice", results[1].Chunk.Text)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
	assert.Equal(t, "medical", results[0].Chunk.Namespace)
	assert.Equal(t, "0", results[0].Chunk.Metadata[core.MetaChunkIndex])
}

func TestIndex_UpsertAssignsIdentity(t *testing.T) {
	index := newTestIndex(t)
	c := chunk("doc-1", 4, "text", 1, 1)

	require.NoError(t, index.Upsert(context.Background(), "medical", c))
	assert.Equal(t, core.ChunkID("doc-1", 4), c.Id)
	assert.NotZero(t, c.Seq)
	assert.False(t, c.InsertedAt.IsZero())
	assert.Equal(t, "medical", c.Namespace)
}

func TestIndex_UpsertIdempotent(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	first := chunk("doc-1", 0, "same", 1, 2, 3)
	require.NoError(t, index.Upsert(ctx, "medical", first))
	before, err := index.Query(ctx, "medical", []float32{1, 2, 3}, 5)
	require.NoError(t, err)

	again := chunk("doc-1", 0, "same", 1, 2, 3)
	require.NoError(t, index.Upsert(ctx, "medical", again))
	after, err := index.Query(ctx, "medical", []float32{1, 2, 3}, 5)
	require.NoError(t, err)

	assert.Equal(t, before, after)
	assert.Equal(t, first.Seq, again.Seq)
	count, err := index.CountChunks(ctx, "medical")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIndex_TiesBrokenByInsertionOrder(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	for n := range 5 {
		require.NoError(t, index.Upsert(ctx, "medical", chunk(fmt.Sprintf("doc-%d", n), 0, fmt.Sprint(n), 1, 0)))
	}

	results, err := index.Query(ctx, "medical", []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 5)
	for n, r := range results {
		assert.Equal(t, fmt.Sprint(n), r.Chunk.Text)
	}
}

func TestIndex_NamespaceIsolation(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, index.Upsert(ctx, "medical", chunk("doc-1", 0, "secret", 1, 0)))

	results, err := index.Query(ctx, "other", []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = index.Query(ctx, "medica", []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIndex_QueryValidation(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	_, err := index.Query(ctx, "medical", []float32{1}, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)

	_, err = index.Query(ctx, "medical", nil, 3)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)

	_, err = index.Query(ctx, "bad:ns", []float32{1}, 3)
	assert.ErrorIs(t, err, core.ErrInvalidNamespace)

	results, err := index.Query(ctx, "empty", []float32{1}, 3)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestIndex_UpsertIsAllOrNothing(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	good := chunk("doc-1", 0, "ok", 1, 0)
	bad := chunk("doc-1", 1, "", 1, 0)
	err := index.Upsert(ctx, "medical", good, bad)
	assert.ErrorIs(t, err, core.ErrInvalidChunk)

	mixed := chunk("doc-1", 1, "three dims", 1, 0, 0)
	err = index.Upsert(ctx, "medical", good, mixed)
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)

	count, err := index.CountChunks(ctx, "medical")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestIndex_NamespaceDimensions(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, index.Upsert(ctx, "medical", chunk("doc-1", 0, "a", 1, 0)))
	err := index.Upsert(ctx, "medical", chunk("doc-2", 0, "b", 1, 0, 0))
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
	assert.NotErrorIs(t, err, core.ErrIndexUnavailable)

	require.NoError(t, index.Upsert(ctx, "other", chunk("doc-2", 0, "b", 1, 0, 0)))

	t.Run("query width must match namespace", func(t *testing.T) {
		_, err := index.Query(ctx, "medical", []float32{1, 0, 0}, 3)
		assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
		assert.NotErrorIs(t, err, core.ErrIndexUnavailable)

		results, err := index.Query(ctx, "medical", []float32{1, 0}, 3)
		require.NoError(t, err)
		assert.Len(t, results, 1)
	})
}

func TestIndex_CreateNamespaceIfAbsent(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, index.CreateNamespaceIfAbsent(ctx, "medical"))
	require.NoError(t, index.CreateNamespaceIfAbsent(ctx, "medical"))
	require.NoError(t, index.Upsert(ctx, "lazy", chunk("d", 0, "t", 1)))

	names, err := index.Namespaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"lazy", "medical"}, names)

	assert.ErrorIs(t, index.CreateNamespaceIfAbsent(ctx, ""), core.ErrInvalidNamespace)
}

func TestIndex_DeleteDocument(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, index.Upsert(ctx, "medical",
		chunk("doc-1", 0, "a", 1, 0),
		chunk("doc-1", 1, "b", 1, 0),
		chunk("doc-2", 0, "c", 1, 0),
	))
	require.NoError(t, index.Upsert(ctx, "other", chunk("doc-1", 0, "d", 1, 0)))

	n, err := index.DeleteDocument(ctx, "medical", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	results, err := index.Query(ctx, "medical", []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-2", results[0].Chunk.DocumentID)

	count, err := index.CountChunks(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "other namespaces are untouched")

	n, err = index.DeleteDocument(ctx, "medical", "doc-1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIndex_DeleteNamespace(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, index.Upsert(ctx, "medical", chunk("doc-1", 0, "a", 1), chunk("doc-1", 1, "b", 1)))
	require.NoError(t, index.Upsert(ctx, "keep", chunk("doc-1", 0, "c", 1)))

	n, err := index.DeleteNamespace(ctx, "medical")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := index.CountChunks(ctx, "medical")
	require.NoError(t, err)
	assert.Zero(t, count)
	count, err = index.CountChunks(ctx, "keep")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	names, err := index.Namespaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, names)
}

func TestIndex_ForEachChunk(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	for n := range 7 {
		require.NoError(t, index.Upsert(ctx, "medical", chunk("doc", n, fmt.Sprint(n), 1)))
	}

	var sizes []int
	seen := map[string]bool{}
	err := index.ForEachChunk(ctx, "medical", 3, func(batch []*core.Chunk) error {
		sizes = append(sizes, len(batch))
		for _, c := range batch {
			seen[c.Text] = true
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3, 1}, sizes)
	assert.Len(t, seen, 7)

	stop := fmt.Errorf("stop")
	err = index.ForEachChunk(ctx, "medical", 2, func([]*core.Chunk) error { return stop })
	assert.ErrorIs(t, err, stop)

	err = index.ForEachChunk(ctx, "medical", 0, func([]*core.Chunk) error { return nil })
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestIndex_Closed(t *testing.T) {
	index, err := NewMemoryIndex()
	require.NoError(t, err)
	require.NoError(t, index.Close())

	err = index.Upsert(context.Background(), "medical", chunk("d", 0, "t", 1))
	assert.ErrorIs(t, err, core.ErrIndexUnavailable)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)

	_, err = index.Query(context.Background(), "medical", []float32{1}, 1)
	assert.ErrorIs(t, err, core.ErrIndexUnavailable)
}

func TestIndex_CanceledContext(t *testing.T) {
	index := newTestIndex(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := index.Upsert(ctx, "medical", chunk("d", 0, "t", 1))
	assert.ErrorIs(t, err, core.ErrIndexUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIndex_ConcurrentUpserts(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for n := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doc := fmt.Sprintf("doc-%d", n)
			assert.NoError(t, index.Upsert(ctx, "medical", chunk(doc, 0, doc, 1, 0), chunk(doc, 1, doc, 0, 1)))
		}()
	}
	wg.Wait()

	count, err := index.CountChunks(ctx, "medical")
	require.NoError(t, err)
	assert.Equal(t, 20, count)
}

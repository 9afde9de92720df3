package badger

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/carebuddy/core"
	"github.com/poiesic/carebuddy/storage"
)

// maxConflictRetries bounds how often a write transaction is replayed after
// losing an optimistic-concurrency conflict.
const maxConflictRetries = 3

// Index implements storage.VectorIndex and storage.ChunkStore on BadgerDB.
//
// Similarity search is exhaustive over the namespace, which is adequate for
// the per-practice document volumes CareBuddy handles.
type Index struct {
	backend     *Backend
	seq         *badger.Sequence
	ownsBackend bool
	logger      *slog.Logger
}

var (
	_ storage.VectorIndex = (*Index)(nil)
	_ storage.ChunkStore  = (*Index)(nil)
)

// IndexOption configures an Index.
type IndexOption func(*Index)

// WithIndexLogger sets the logger. Nil selects the default logger.
func WithIndexLogger(logger *slog.Logger) IndexOption {
	return func(i *Index) {
		if logger == nil {
			logger = slog.Default()
		}
		i.logger = logger.With("component", "badger-index")
	}
}

// WithOwnedBackend makes Close also close the backend.
func WithOwnedBackend() IndexOption {
	return func(i *Index) {
		i.ownsBackend = true
	}
}

// NewIndex creates an index on backend.
func NewIndex(backend *Backend, opts ...IndexOption) (*Index, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	seq, err := backend.GetSequence(chunkSeq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrIndexUnavailable, err)
	}
	i := &Index{
		backend: backend,
		seq:     seq,
		logger:  slog.Default().With("component", "badger-index"),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Close releases the ID sequence, and the backend when the index owns it.
func (i *Index) Close() error {
	var errs []error
	if !i.backend.IsClosed() {
		errs = append(errs, i.seq.Release())
	}
	if i.ownsBackend && !i.backend.IsClosed() {
		errs = append(errs, i.backend.Close())
	}
	return errors.Join(errs...)
}

func (i *Index) ready(ctx context.Context, namespace string) error {
	if err := core.ValidateNamespace(namespace); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", core.ErrIndexUnavailable, err)
	}
	if i.backend.IsClosed() {
		return fmt.Errorf("%w: %w", core.ErrIndexUnavailable, storage.ErrStorageClosed)
	}
	return nil
}

func (i *Index) unavailable(op string, err error) error {
	i.logger.Error("index operation failed", "op", op, "err", err)
	return fmt.Errorf("%w: %s: %w", core.ErrIndexUnavailable, op, err)
}

// nextSeq returns the next insertion sequence number, skipping zero.
func (i *Index) nextSeq() (uint64, error) {
	n, err := i.seq.Next()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return i.seq.Next()
	}
	return n, nil
}

// update runs fn in a write transaction, replaying it on conflicts.
func (i *Index) update(fn func(tx *badger.Txn) error) error {
	var err error
	for range maxConflictRetries {
		err = i.backend.WithTx(func(tx *badger.Txn) error {
			if err := fn(tx); err != nil {
				return err
			}
			return tx.Commit()
		}, true)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// namespaceDims reads the vector length recorded for a namespace. ok is
// false when the namespace does not exist.
func namespaceDims(tx *badger.Txn, namespace string) (dims int, ok bool, err error) {
	item, err := tx.Get(makeNamespaceKey(namespace))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("%w: namespace record", core.ErrMalformedRecord)
		}
		dims = int(binary.BigEndian.Uint64(val))
		return nil
	})
	return dims, true, err
}

func setNamespaceDims(tx *badger.Txn, namespace string, dims int) error {
	return tx.Set(makeNamespaceKey(namespace), binary.BigEndian.AppendUint64(nil, uint64(dims)))
}

// CreateNamespaceIfAbsent registers namespace if it is not registered yet.
func (i *Index) CreateNamespaceIfAbsent(ctx context.Context, namespace string) error {
	if err := i.ready(ctx, namespace); err != nil {
		return err
	}
	err := i.update(func(tx *badger.Txn) error {
		_, ok, err := namespaceDims(tx, namespace)
		if err != nil || ok {
			return err
		}
		return setNamespaceDims(tx, namespace, 0)
	})
	if err != nil {
		return i.unavailable("create namespace", err)
	}
	return nil
}

// collectKeys returns copies of all keys starting with prefix.
func collectKeys(tx *badger.Txn, prefix []byte) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var keys [][]byte
	for iter.Rewind(); iter.Valid(); iter.Next() {
		keys = append(keys, iter.Item().KeyCopy(nil))
	}
	return keys
}

func readChunk(tx *badger.Txn, key []byte) (*core.Chunk, error) {
	item, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var chunk *core.Chunk
	err = item.Value(func(val []byte) error {
		chunk, err = storage.UnmarshalChunk(val)
		return err
	})
	return chunk, err
}

// Upsert writes chunks to namespace in a single transaction. Overwriting a
// chunk keeps its original insertion sequence and timestamp. Very large
// batches may exceed Badger's transaction limits and fail as a whole.
func (i *Index) Upsert(ctx context.Context, namespace string, chunks ...*core.Chunk) error {
	if err := i.ready(ctx, namespace); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	dims := len(chunks[0].Vector)
	for _, chunk := range chunks {
		if err := core.ValidateChunk(chunk); err != nil {
			return err
		}
		if len(chunk.Vector) != dims {
			return fmt.Errorf("%w: batch mixes %d and %d dimensions", storage.ErrDimensionMismatch, dims, len(chunk.Vector))
		}
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	var staged []core.Chunk
	errDims := errors.New("dimension mismatch")
	err := i.update(func(tx *badger.Txn) error {
		staged = staged[:0]
		nsDims, ok, err := namespaceDims(tx, namespace)
		if err != nil {
			return err
		}
		if ok && nsDims != 0 && nsDims != dims {
			return fmt.Errorf("%w: namespace has %d, got %d", errDims, nsDims, dims)
		}
		if !ok || nsDims == 0 {
			if err := setNamespaceDims(tx, namespace, dims); err != nil {
				return err
			}
		}

		for _, chunk := range chunks {
			c := *chunk
			if c.Id == 0 {
				c.Id = core.ChunkID(c.DocumentID, c.Ordinal)
			}
			c.Namespace = namespace

			key := makeChunkKey(namespace, c.Id)
			old, err := readChunk(tx, key)
			if err != nil {
				return err
			}
			if old != nil {
				c.Seq = old.Seq
				c.InsertedAt = old.InsertedAt
				if old.DocumentID != c.DocumentID {
					if err := tx.Delete(makeChunkDocKey(namespace, old.DocumentID, c.Id)); err != nil {
						return err
					}
				}
			} else {
				if c.Seq, err = i.nextSeq(); err != nil {
					return err
				}
				c.InsertedAt = now
			}

			if err := tx.Set(key, storage.MarshalChunk(&c)); err != nil {
				return err
			}
			if err := tx.Set(makeChunkDocKey(namespace, c.DocumentID, c.Id), nil); err != nil {
				return err
			}
			staged = append(staged, c)
		}
		return nil
	})
	if errors.Is(err, errDims) {
		return fmt.Errorf("%w: %w", storage.ErrDimensionMismatch, err)
	}
	if err != nil {
		return i.unavailable("upsert", err)
	}

	for n, chunk := range chunks {
		*chunk = staged[n]
	}
	i.logger.Debug("upserted chunks", "namespace", namespace, "count", len(chunks))
	return nil
}

// Query scans namespace and returns the k chunks most similar to vector.
func (i *Index) Query(ctx context.Context, namespace string, vector []float32, k int) ([]*core.RetrievalResult, error) {
	if err := i.ready(ctx, namespace); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", storage.ErrInvalidQuery, k)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", storage.ErrInvalidQuery)
	}

	errDims := errors.New("dimension mismatch")
	results := []*core.RetrievalResult{}
	err := i.backend.WithTx(func(tx *badger.Txn) error {
		dims, ok, err := namespaceDims(tx, namespace)
		if err != nil {
			return err
		}
		if ok && dims != 0 && dims != len(vector) {
			return fmt.Errorf("%w: namespace has %d, query has %d", errDims, dims, len(vector))
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeChunkPrefix(namespace)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var chunk *core.Chunk
			err := iter.Item().Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalChunk(val)
				return err
			})
			if err != nil {
				return err
			}
			if len(chunk.Vector) != len(vector) {
				return fmt.Errorf("%w: chunk %d has %d dimensions, namespace has %d",
					core.ErrMalformedRecord, chunk.Id, len(chunk.Vector), len(vector))
			}
			results = append(results, &core.RetrievalResult{
				Chunk: chunk,
				Score: storage.CosineSimilarity(vector, chunk.Vector),
			})
		}
		return nil
	}, false)
	if errors.Is(err, errDims) {
		return nil, fmt.Errorf("%w: %w", storage.ErrDimensionMismatch, err)
	}
	if err != nil {
		return nil, i.unavailable("query", err)
	}

	slices.SortFunc(results, storage.CompareResults)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// DeleteDocument removes every chunk of documentID in one transaction.
func (i *Index) DeleteDocument(ctx context.Context, namespace, documentID string) (int, error) {
	if err := i.ready(ctx, namespace); err != nil {
		return 0, err
	}

	var deleted int
	err := i.update(func(tx *badger.Txn) error {
		deleted = 0
		keys := collectKeys(tx, makeDocPrefix(namespace, &documentID))
		for _, docKey := range keys {
			id, ok := chunkIDFromDocKey(docKey)
			if !ok {
				continue
			}
			chunkKey := makeChunkKey(namespace, id)
			chunk, err := readChunk(tx, chunkKey)
			if err != nil {
				return err
			}
			// The index is keyed by a hash of the document ID, so confirm
			// the chunk really belongs to this document.
			if chunk != nil && chunk.DocumentID != documentID {
				continue
			}
			if chunk != nil {
				if err := tx.Delete(chunkKey); err != nil {
					return err
				}
				deleted++
			}
			if err := tx.Delete(docKey); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, i.unavailable("delete document", err)
	}
	i.logger.Debug("deleted document chunks", "namespace", namespace, "document", documentID, "count", deleted)
	return deleted, nil
}

// DeleteNamespace drops every chunk and index entry of namespace and
// unregisters it.
func (i *Index) DeleteNamespace(ctx context.Context, namespace string) (int, error) {
	if err := i.ready(ctx, namespace); err != nil {
		return 0, err
	}
	count, err := i.CountChunks(ctx, namespace)
	if err != nil {
		return 0, err
	}
	err = i.backend.DropPrefix(
		makeChunkPrefix(namespace),
		makeDocPrefix(namespace, nil),
		makeNamespaceKey(namespace),
	)
	if err != nil {
		return 0, i.unavailable("delete namespace", err)
	}
	i.logger.Info("deleted namespace", "namespace", namespace, "count", count)
	return count, nil
}

// Namespaces lists registered namespaces.
func (i *Index) Namespaces(ctx context.Context) ([]string, error) {
	if i.backend.IsClosed() {
		return nil, fmt.Errorf("%w: %w", core.ErrIndexUnavailable, storage.ErrStorageClosed)
	}
	var names []string
	err := i.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(namespacePrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			names = append(names, string(bytes.TrimPrefix(iter.Item().Key(), opts.Prefix)))
		}
		return nil
	}, false)
	if err != nil {
		return nil, i.unavailable("list namespaces", err)
	}
	return names, nil
}

// CountChunks counts the chunks of namespace without decoding them.
func (i *Index) CountChunks(ctx context.Context, namespace string) (int, error) {
	if err := i.ready(ctx, namespace); err != nil {
		return 0, err
	}
	count := 0
	err := i.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = makeChunkPrefix(namespace)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	if err != nil {
		return 0, i.unavailable("count", err)
	}
	return count, nil
}

// ForEachChunk pages through namespace in key order, one read transaction
// per batch, so fn may write to the index.
func (i *Index) ForEachChunk(ctx context.Context, namespace string, batchSize int, fn func([]*core.Chunk) error) error {
	if err := i.ready(ctx, namespace); err != nil {
		return err
	}
	if batchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive, got %d", storage.ErrInvalidQuery, batchSize)
	}

	prefix := makeChunkPrefix(namespace)
	var after []byte
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch := make([]*core.Chunk, 0, batchSize)
		err := i.backend.WithTx(func(tx *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			iter := tx.NewIterator(opts)
			defer iter.Close()

			start := prefix
			if after != nil {
				start = after
			}
			for iter.Seek(start); iter.Valid() && len(batch) < batchSize; iter.Next() {
				item := iter.Item()
				if after != nil && bytes.Equal(item.Key(), after) {
					continue
				}
				var chunk *core.Chunk
				err := item.Value(func(val []byte) error {
					var err error
					chunk, err = storage.UnmarshalChunk(val)
					return err
				})
				if err != nil {
					return err
				}
				batch = append(batch, chunk)
				after = item.KeyCopy(nil)
			}
			return nil
		}, false)
		if err != nil {
			return i.unavailable("iterate", err)
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < batchSize {
			return nil
		}
	}
}

// Package qdrant implements storage.VectorIndex on a Qdrant server.
//
// All namespaces share one collection. Each point carries its namespace as
// a keyword payload field that every query and delete filters on, so
// namespaces stay isolated without per-namespace collections.
package qdrant

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"

	"github.com/poiesic/carebuddy/core"
	"github.com/poiesic/carebuddy/storage"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	DefaultPort       = 6334
	DefaultCollection = "carebuddy-docs"
	DefaultDimensions = 1536

	fieldNamespace = "namespace"
)

// Index implements storage.VectorIndex using Qdrant's gRPC API.
type Index struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	dimensions  int
	logger      *slog.Logger

	mu    sync.Mutex
	ready bool
}

var _ storage.VectorIndex = (*Index)(nil)

// Option configures an Index.
type Option func(*Index)

// WithCollection sets the collection name.
func WithCollection(name string) Option {
	return func(i *Index) {
		i.collection = name
	}
}

// WithDimensions sets the vector size used when the collection is created
// before any vector has been seen.
func WithDimensions(dims int) Option {
	return func(i *Index) {
		i.dimensions = dims
	}
}

// WithLogger sets the logger. Nil selects the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Index) {
		if logger == nil {
			logger = slog.Default()
		}
		i.logger = logger.With("component", "qdrant-index")
	}
}

// New connects to the Qdrant gRPC endpoint at host:port. The collection is
// created lazily on first use.
func New(host string, port int, opts ...Option) (*Index, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant connect: %w", core.ErrIndexUnavailable, err)
	}
	i := &Index{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  DefaultCollection,
		dimensions:  DefaultDimensions,
		logger:      slog.Default().With("component", "qdrant-index"),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Close closes the gRPC connection.
func (i *Index) Close() error {
	return i.conn.Close()
}

func (i *Index) unavailable(op string, err error) error {
	i.logger.Error("qdrant operation failed", "op", op, "collection", i.collection, "err", err)
	return fmt.Errorf("%w: %s: %w", core.ErrIndexUnavailable, op, err)
}

// ensureCollection creates the collection and the namespace payload index
// if they do not exist yet.
func (i *Index) ensureCollection(ctx context.Context, dims int) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.ready {
		return nil
	}

	exists, err := i.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: i.collection})
	if err != nil {
		return err
	}
	if !exists.GetResult().GetExists() {
		if dims <= 0 {
			dims = i.dimensions
		}
		_, err = i.collections.Create(ctx, &pb.CreateCollection{
			CollectionName: i.collection,
			VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{Params: &pb.VectorParams{
				Size:     uint64(dims),
				Distance: pb.Distance_Cosine,
			}}},
		})
		if err != nil {
			return err
		}
		i.logger.Info("created collection", "collection", i.collection, "dimensions", dims)
	}

	wait := true
	_, err = i.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
		CollectionName: i.collection,
		FieldName:      fieldNamespace,
		FieldType:      pb.FieldType_FieldTypeKeyword.Enum(),
		Wait:           &wait,
	})
	if err != nil {
		return err
	}
	i.ready = true
	return nil
}

// CreateNamespaceIfAbsent makes sure the shared collection exists.
// Namespaces themselves need no server-side state.
func (i *Index) CreateNamespaceIfAbsent(ctx context.Context, namespace string) error {
	if err := core.ValidateNamespace(namespace); err != nil {
		return err
	}
	if err := i.ensureCollection(ctx, 0); err != nil {
		return i.unavailable("create namespace", err)
	}
	return nil
}

// Upsert writes chunks in one request. The points the batch replaces are
// read first; if the write fails, new points are deleted and replaced ones
// restored, so a failed upsert leaves the previous version searchable.
func (i *Index) Upsert(ctx context.Context, namespace string, chunks ...*core.Chunk) error {
	if err := core.ValidateNamespace(namespace); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	for _, chunk := range chunks {
		if err := core.ValidateChunk(chunk); err != nil {
			return err
		}
		if len(chunk.Vector) != len(chunks[0].Vector) {
			return fmt.Errorf("%w: batch mixes dimensions", storage.ErrDimensionMismatch)
		}
	}
	if err := i.ensureCollection(ctx, len(chunks[0].Vector)); err != nil {
		return i.unavailable("upsert", err)
	}

	points := make([]*pb.PointStruct, len(chunks))
	ids := make([]*pb.PointId, len(chunks))
	for n, chunk := range chunks {
		points[n] = toPoint(namespace, chunk)
		ids[n] = points[n].Id
	}

	previous, err := i.getPoints(ctx, ids)
	if err != nil {
		return i.unavailable("upsert", err)
	}

	wait := true
	_, err = i.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: i.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		if rerr := i.rollback(context.WithoutCancel(ctx), ids, previous); rerr != nil {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rerr))
		}
		return i.unavailable("upsert", err)
	}

	for _, chunk := range chunks {
		chunk.Id = pointID(namespace, chunk)
		chunk.Namespace = namespace
	}
	i.logger.Debug("upserted chunks", "namespace", namespace, "count", len(chunks), "replaced", len(previous))
	return nil
}

// getPoints returns the stored points among ids, with payload and vector.
func (i *Index) getPoints(ctx context.Context, ids []*pb.PointId) ([]*pb.PointStruct, error) {
	resp, err := i.points.Get(ctx, &pb.GetPoints{
		CollectionName: i.collection,
		Ids:            ids,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, err
	}
	found := make([]*pb.PointStruct, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		found = append(found, &pb.PointStruct{
			Id:      pt.GetId(),
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vectorData(pt.GetVectors())}}},
			Payload: pt.GetPayload(),
		})
	}
	return found, nil
}

// rollback deletes the points of a failed batch that did not exist before
// it and rewrites the ones it replaced.
func (i *Index) rollback(ctx context.Context, ids []*pb.PointId, previous []*pb.PointStruct) error {
	existed := make(map[uint64]bool, len(previous))
	for _, pt := range previous {
		existed[pt.GetId().GetNum()] = true
	}
	fresh := make([]*pb.PointId, 0, len(ids))
	for _, id := range ids {
		if !existed[id.GetNum()] {
			fresh = append(fresh, id)
		}
	}

	var errs []error
	if len(fresh) > 0 {
		if err := i.deleteIDs(ctx, fresh); err != nil {
			errs = append(errs, err)
		}
	}
	if len(previous) > 0 {
		wait := true
		if _, err := i.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: i.collection,
			Wait:           &wait,
			Points:         previous,
		}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (i *Index) deleteIDs(ctx context.Context, ids []*pb.PointId) error {
	wait := true
	_, err := i.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: i.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{PointsSelectorOneOf: &pb.PointsSelector_Points{
			Points: &pb.PointsIdsList{Ids: ids},
		}},
	})
	return err
}

// vectorData returns the dense vector of a point, whichever field the
// server filled.
func vectorData(v *pb.VectorsOutput) []float32 {
	out := v.GetVector()
	if dense := out.GetDense(); dense != nil {
		return dense.GetData()
	}
	return out.GetData()
}

// Query searches namespace for the k nearest chunks.
func (i *Index) Query(ctx context.Context, namespace string, vector []float32, k int) ([]*core.RetrievalResult, error) {
	if err := core.ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", storage.ErrInvalidQuery, k)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", storage.ErrInvalidQuery)
	}
	if err := i.ensureCollection(ctx, len(vector)); err != nil {
		return nil, i.unavailable("query", err)
	}

	resp, err := i.points.Search(ctx, &pb.SearchPoints{
		CollectionName: i.collection,
		Vector:         vector,
		Limit:          uint64(k),
		Filter:         namespaceFilter(namespace),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, i.unavailable("query", err)
	}

	results := make([]*core.RetrievalResult, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		results = append(results, fromScoredPoint(pt))
	}
	slices.SortStableFunc(results, compareResults)
	return results, nil
}

// DeleteDocument deletes every chunk of documentID in namespace.
func (i *Index) DeleteDocument(ctx context.Context, namespace, documentID string) (int, error) {
	if err := core.ValidateNamespace(namespace); err != nil {
		return 0, err
	}
	filter := namespaceFilter(namespace)
	filter.Must = append(filter.Must, keywordCondition(core.MetaDocumentID, documentID))
	return i.deleteByFilter(ctx, "delete document", filter)
}

// DeleteNamespace deletes every chunk of namespace.
func (i *Index) DeleteNamespace(ctx context.Context, namespace string) (int, error) {
	if err := core.ValidateNamespace(namespace); err != nil {
		return 0, err
	}
	return i.deleteByFilter(ctx, "delete namespace", namespaceFilter(namespace))
}

func (i *Index) deleteByFilter(ctx context.Context, op string, filter *pb.Filter) (int, error) {
	if err := i.ensureCollection(ctx, 0); err != nil {
		return 0, i.unavailable(op, err)
	}
	exact := true
	count, err := i.points.Count(ctx, &pb.CountPoints{
		CollectionName: i.collection,
		Filter:         filter,
		Exact:          &exact,
	})
	if err != nil {
		return 0, i.unavailable(op, err)
	}
	n := int(count.GetResult().GetCount())
	if n == 0 {
		return 0, nil
	}

	wait := true
	_, err = i.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: i.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{PointsSelectorOneOf: &pb.PointsSelector_Filter{
			Filter: filter,
		}},
	})
	if err != nil {
		return 0, i.unavailable(op, err)
	}
	return n, nil
}

// pointID derives the point ID from the namespace and the chunk key, since
// all namespaces share one collection.
func pointID(namespace string, chunk *core.Chunk) core.ID {
	return core.IDFromContent(namespace + ":" + chunk.Key())
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func intValue(n int64) *pb.Value {
	return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: n}}
}

// toPoint converts a chunk to a point. The payload is a pure function of
// the chunk so rewriting an unchanged chunk is a no-op.
func toPoint(namespace string, chunk *core.Chunk) *pb.PointStruct {
	payload := make(map[string]*pb.Value, len(chunk.Metadata)+5)
	for k, v := range chunk.Metadata {
		payload[k] = stringValue(v)
	}
	payload[core.MetaText] = stringValue(chunk.Text)
	payload[core.MetaDocumentID] = stringValue(chunk.DocumentID)
	payload[core.MetaChunkIndex] = intValue(int64(chunk.Ordinal))
	payload[core.MetaSource] = stringValue(chunk.Source)
	payload[fieldNamespace] = stringValue(namespace)

	return &pb.PointStruct{
		Id:      &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: uint64(pointID(namespace, chunk))}},
		Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: chunk.Vector}}},
		Payload: payload,
	}
}

func fromScoredPoint(pt *pb.ScoredPoint) *core.RetrievalResult {
	chunk := &core.Chunk{
		Id:       core.ID(pt.GetId().GetNum()),
		Metadata: map[string]string{},
	}
	for k, v := range pt.GetPayload() {
		switch k {
		case core.MetaText:
			chunk.Text = v.GetStringValue()
		case core.MetaDocumentID:
			chunk.DocumentID = v.GetStringValue()
		case core.MetaChunkIndex:
			chunk.Ordinal = int(v.GetIntegerValue())
		case core.MetaSource:
			chunk.Source = v.GetStringValue()
		case fieldNamespace:
			chunk.Namespace = v.GetStringValue()
		default:
			chunk.Metadata[k] = v.GetStringValue()
		}
	}
	chunk.Metadata[core.MetaDocumentID] = chunk.DocumentID
	chunk.Metadata[core.MetaChunkIndex] = strconv.Itoa(chunk.Ordinal)
	if vec := vectorData(pt.GetVectors()); len(vec) > 0 {
		chunk.Vector = vec
	}
	return &core.RetrievalResult{Chunk: chunk, Score: pt.GetScore()}
}

// compareResults orders by descending score, then by document position.
// Qdrant keeps no insertion order, so equal scores fall back to document ID
// and chunk ordinal.
func compareResults(a, b *core.RetrievalResult) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Chunk.DocumentID, b.Chunk.DocumentID); c != 0 {
		return c
	}
	return cmp.Compare(a.Chunk.Ordinal, b.Chunk.Ordinal)
}

func keywordCondition(key, value string) *pb.Condition {
	return &pb.Condition{ConditionOneOf: &pb.Condition_Field{Field: &pb.FieldCondition{
		Key:   key,
		Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
	}}}
}

func namespaceFilter(namespace string) *pb.Filter {
	return &pb.Filter{Must: []*pb.Condition{keywordCondition(fieldNamespace, namespace)}}
}

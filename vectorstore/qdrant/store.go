// Package qdrant implements storage.VectorIndex on a Qdrant collection.
//
// Each document becomes one point whose numeric ID equals the document ID.
// The point payload records the embedding model and content fingerprint so
// the collection can be audited against the knowledge store.
package qdrant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/poiesic/mimir/core"
	"github.com/poiesic/mimir/storage"
)

// Payload keys written with every point.
const (
	payloadModelID      = "model_id"
	payloadModelVersion = "model_version"
	payloadFingerprint  = "fingerprint"
	payloadComputedAt   = "computed_at"
)

// pointsClient is the subset of pb.PointsClient used by Store.
type pointsClient interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

// collectionsClient is the subset of pb.CollectionsClient used by Store.
type collectionsClient interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Store is a Qdrant-backed vector index.
type Store struct {
	conn        *grpc.ClientConn
	points      pointsClient
	collections collectionsClient
	collection  string
	dimension   int
	logger      *slog.Logger
}

var _ storage.VectorIndex = (*Store)(nil)

// New creates a Store connected to Qdrant at the given gRPC address.
// dimension is the vector length of the collection.
func New(addr, collection string, dimension int) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant: dial %s: %w", addr, err)
	}
	s := NewWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), collection, dimension)
	s.conn = conn
	return s, nil
}

// NewWithClients creates a Store over existing clients. Used in tests.
func NewWithClients(points pointsClient, collections collectionsClient, collection string, dimension int) *Store {
	return &Store{
		points:      points,
		collections: collections,
		collection:  collection,
		dimension:   dimension,
		logger:      slog.Default().With("component", "qdrant", "collection", collection),
	}
}

// Dimension returns the declared vector length of the collection.
func (s *Store) Dimension() int {
	return s.dimension
}

// Close closes the underlying gRPC connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// EnsureCollection creates the collection with cosine distance if it doesn't exist.
func (s *Store) EnsureCollection(ctx context.Context) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("qdrant: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == s.collection {
			return nil
		}
	}

	if s.dimension <= 0 {
		return fmt.Errorf("qdrant: create collection %s: dimension must be declared", s.collection)
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(s.dimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: create collection %s: %w", s.collection, err)
	}
	s.logger.Info("created collection", "dimension", s.dimension)
	return nil
}

// Upsert stores or replaces the vector of one document.
func (s *Store) Upsert(ctx context.Context, id core.ID, vector []float32, meta core.EmbeddingMeta) error {
	if s.dimension > 0 && len(vector) != s.dimension {
		return fmt.Errorf("qdrant: upsert %d: %w: got %d, want %d", id, core.ErrDimensionMismatch, len(vector), s.dimension)
	}

	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: []*pb.PointStruct{{
			Id: pointID(id),
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: vector},
				},
			},
			Payload: map[string]*pb.Value{
				payloadModelID:      stringValue(meta.ModelID),
				payloadModelVersion: stringValue(meta.ModelVersion),
				payloadFingerprint:  stringValue(meta.Fingerprint),
				payloadComputedAt:   stringValue(meta.ComputedAt.UTC().Format(time.RFC3339Nano)),
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert %d: %w", id, err)
	}
	return nil
}

// Delete removes the points of the given documents.
func (s *Store) Delete(ctx context.Context, ids ...core.ID) error {
	if len(ids) == 0 {
		return nil
	}

	wait := true
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: pointIDs(ids)},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete %d points: %w", len(ids), err)
	}
	return nil
}

// FindSimilar runs a k-NN search. A non-nil candidates slice restricts the
// search to those document IDs.
func (s *Store) FindSimilar(ctx context.Context, vector []float32, candidates []core.ID, limit int) ([]core.ScoredID, error) {
	if limit <= 0 || (candidates != nil && len(candidates) == 0) {
		return nil, nil
	}

	req := &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: false}},
	}
	if candidates != nil {
		req.Filter = &pb.Filter{
			Must: []*pb.Condition{{
				ConditionOneOf: &pb.Condition_HasId{
					HasId: &pb.HasIdCondition{HasId: pointIDs(candidates)},
				},
			}},
		}
	}

	resp, err := s.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant: search: %w", err)
	}

	results := make([]core.ScoredID, 0, len(resp.GetResult()))
	for _, point := range resp.GetResult() {
		results = append(results, core.ScoredID{
			Id:    core.ID(point.GetId().GetNum()),
			Score: point.GetScore(),
		})
	}
	return results, nil
}

func pointID(id core.ID) *pb.PointId {
	return &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: uint64(id)}}
}

func pointIDs(ids []core.ID) []*pb.PointId {
	out := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		out[i] = pointID(id)
	}
	return out
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

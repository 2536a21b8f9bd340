// Package qdrant is the optional approximate nearest-neighbour candidate
// index. It narrows a project scan to a set of ids; scoring stays in the
// similarity package.
package qdrant

import (
	"context"
	"crypto/tls"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/kailas-cloud/kbase/internal/domain"
)

const payloadProject = "project_id"

// pointsAPI is the consumer interface over the qdrant points service (ISP).
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Index keeps one point per embedded document: id = document id,
// payload = project id.
type Index struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
}

// New dials qdrant's gRPC endpoint. plaintext skips TLS.
func New(addr, collection string, plaintext bool) (*Index, error) {
	creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	if plaintext {
		creds = insecure.NewCredentials()
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("dial qdrant %s: %w", addr, err)
	}
	return &Index{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// NewWithClients builds an Index over existing clients.
func NewWithClients(points pointsAPI, collections collectionsAPI, collection string) *Index {
	return &Index{points: points, collections: collections, collection: collection}
}

// Close closes the gRPC connection.
func (x *Index) Close() error {
	if x.conn == nil {
		return nil
	}
	return x.conn.Close()
}

// EnsureCollection creates the cosine collection when missing.
func (x *Index) EnsureCollection(ctx context.Context, dims int) error {
	list, err := x.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == x.collection {
			return nil
		}
	}

	_, err = x.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: x.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", x.collection, err)
	}
	return nil
}

// Upsert stores or replaces the point of one document.
func (x *Index) Upsert(ctx context.Context, projectID string, id int64, vec []float32) error {
	wait := true
	_, err := x.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: x.collection,
		Wait:           &wait,
		Points: []*pb.PointStruct{{
			Id: pointID(id),
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vec}},
			},
			Payload: map[string]*pb.Value{
				payloadProject: {Kind: &pb.Value_StringValue{StringValue: projectID}},
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("upsert point %d: %w", id, err)
	}
	return nil
}

// Delete removes the point of one document. Deleting a missing point is not an error.
func (x *Index) Delete(ctx context.Context, id int64) error {
	wait := true
	_, err := x.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: x.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: []*pb.PointId{pointID(id)}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("delete point %d: %w", id, err)
	}
	return nil
}

// Candidates returns up to limit document ids of the project nearest to vec.
func (x *Index) Candidates(ctx context.Context, projectID string, vec []float32, limit int) ([]int64, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("candidate limit %d: %w", limit, domain.ErrInvalidInput)
	}
	resp, err := x.points.Search(ctx, &pb.SearchPoints{
		CollectionName: x.collection,
		Vector:         vec,
		Limit:          uint64(limit),
		Filter: &pb.Filter{
			Must: []*pb.Condition{projectMatch(projectID)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("search points: %w", err)
	}

	ids := make([]int64, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		ids = append(ids, int64(p.GetId().GetNum()))
	}
	return ids, nil
}

// HealthCheck lists collections to check liveness.
func (x *Index) HealthCheck(ctx context.Context) error {
	if _, err := x.collections.List(ctx, &pb.ListCollectionsRequest{}); err != nil {
		return fmt.Errorf("qdrant: %w", err)
	}
	return nil
}

func pointID(id int64) *pb.PointId {
	return &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: uint64(id)}}
}

func projectMatch(projectID string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   payloadProject,
				Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: projectID}},
			},
		},
	}
}

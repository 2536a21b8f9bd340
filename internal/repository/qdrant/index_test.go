package qdrant

import (
	"context"
	"errors"
	"slices"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
)

type mockPoints struct {
	upserted *pb.UpsertPoints
	deleted  *pb.DeletePoints
	searched *pb.SearchPoints

	searchResp *pb.SearchResponse
	err        error
}

func (m *mockPoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.upserted = in
	return &pb.PointsOperationResponse{}, m.err
}

func (m *mockPoints) Delete(_ context.Context, in *pb.DeletePoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.deleted = in
	return &pb.PointsOperationResponse{}, m.err
}

func (m *mockPoints) Search(_ context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	m.searched = in
	return m.searchResp, m.err
}

type mockCollections struct {
	listResp *pb.ListCollectionsResponse
	listErr  error
	created  *pb.CreateCollection
}

func (m *mockCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	return m.listResp, m.listErr
}

func (m *mockCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.created = in
	return &pb.CollectionOperationResponse{Result: true}, nil
}

func TestEnsureCollection_Exists(t *testing.T) {
	cols := &mockCollections{listResp: &pb.ListCollectionsResponse{
		Collections: []*pb.CollectionDescription{{Name: "kbase"}},
	}}
	x := NewWithClients(&mockPoints{}, cols, "kbase")

	if err := x.EnsureCollection(context.Background(), 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cols.created != nil {
		t.Fatal("collection must not be recreated")
	}
}

func TestEnsureCollection_Creates(t *testing.T) {
	cols := &mockCollections{listResp: &pb.ListCollectionsResponse{}}
	x := NewWithClients(&mockPoints{}, cols, "kbase")

	if err := x.EnsureCollection(context.Background(), 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cols.created == nil || cols.created.GetVectorsConfig().GetParams().GetSize() != 3 {
		t.Fatalf("unexpected create request: %v", cols.created)
	}
}

func TestUpsert_PointShape(t *testing.T) {
	pts := &mockPoints{}
	x := NewWithClients(pts, &mockCollections{}, "kbase")

	if err := x.Upsert(context.Background(), "notes", 42, []float32{1, 0}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := pts.upserted.GetPoints()[0]
	if p.GetId().GetNum() != 42 {
		t.Errorf("point id = %v", p.GetId())
	}
	if p.GetPayload()[payloadProject].GetStringValue() != "notes" {
		t.Errorf("payload = %v", p.GetPayload())
	}
}

func TestDelete_ByID(t *testing.T) {
	pts := &mockPoints{}
	x := NewWithClients(pts, &mockCollections{}, "kbase")

	if err := x.Delete(context.Background(), 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ids := pts.deleted.GetPoints().GetPoints().GetIds()
	if len(ids) != 1 || ids[0].GetNum() != 7 {
		t.Errorf("deleted ids = %v", ids)
	}
}

func TestCandidates_FiltersByProject(t *testing.T) {
	pts := &mockPoints{searchResp: &pb.SearchResponse{Result: []*pb.ScoredPoint{
		{Id: pointID(3), Score: 0.9},
		{Id: pointID(1), Score: 0.5},
	}}}
	x := NewWithClients(pts, &mockCollections{}, "kbase")

	ids, err := x.Candidates(context.Background(), "notes", []float32{1}, 12)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(ids, []int64{3, 1}) {
		t.Errorf("ids = %v", ids)
	}
	if pts.searched.GetLimit() != 12 {
		t.Errorf("limit = %d", pts.searched.GetLimit())
	}
	cond := pts.searched.GetFilter().GetMust()[0].GetField()
	if cond.GetKey() != payloadProject || cond.GetMatch().GetKeyword() != "notes" {
		t.Errorf("filter = %v", cond)
	}
}

func TestCandidates_Error(t *testing.T) {
	x := NewWithClients(&mockPoints{err: errors.New("unavailable")}, &mockCollections{}, "kbase")
	if _, err := x.Candidates(context.Background(), "notes", []float32{1}, 5); err == nil {
		t.Fatal("expected error")
	}
	if _, err := x.Candidates(context.Background(), "notes", []float32{1}, 0); err == nil {
		t.Fatal("expected error for zero limit")
	}
}

func TestHealthCheck(t *testing.T) {
	x := NewWithClients(&mockPoints{}, &mockCollections{listErr: errors.New("down")}, "kbase")
	if err := x.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

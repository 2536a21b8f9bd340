package retrieval

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/kbase/internal/domain"
	domdoc "github.com/kailas-cloud/kbase/internal/domain/document"
	"github.com/kailas-cloud/kbase/internal/domain/search/hit"
	"github.com/kailas-cloud/kbase/internal/domain/search/query"
	"github.com/kailas-cloud/kbase/internal/metrics"
	"github.com/kailas-cloud/kbase/internal/repository/memory"
)

func TestMain(m *testing.M) {
	metrics.RegisterIngestMetrics()
	os.Exit(m.Run())
}

// --- Mocks ---

type mockEmbedder struct {
	vec []float32
	err error
}

func (m *mockEmbedder) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embedding: m.vec}, m.err
}

type mockIndex struct {
	candidatesFn func(ctx context.Context, projectID string, vec []float32, limit int) ([]int64, error)
}

func (m *mockIndex) Candidates(ctx context.Context, projectID string, vec []float32, limit int) ([]int64, error) {
	return m.candidatesFn(ctx, projectID, vec, limit)
}

type spyStore struct {
	*memory.Store
	scans int
}

func (s *spyStore) Scan(ctx context.Context, projectID string) ([]domdoc.Document, error) {
	s.scans++
	return s.Store.Scan(ctx, projectID)
}

// --- Helpers ---

func seed(t *testing.T, store *memory.Store, project, name string, vec []float32) int64 {
	t.Helper()
	doc, err := domdoc.New(project, name, domdoc.SourceManual, "text of "+name, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if vec != nil {
		doc = doc.WithEmbedding(vec)
	} else {
		doc = doc.WithoutEmbedding("provider down")
	}
	id, err := store.Insert(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func seedIndexed(t *testing.T, store *memory.Store, project, name string, vec []float32) int64 {
	t.Helper()
	doc, err := domdoc.New(project, name, domdoc.SourceManual, "text of "+name, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	doc = doc.WithEmbedding(vec)
	id, err := store.Insert(context.Background(), doc.WithIndexed(true))
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func mustQuery(t *testing.T, project, text string, topK int) query.Query {
	t.Helper()
	q, err := query.New(project, text, topK, nil)
	if err != nil {
		t.Fatal(err)
	}
	return q
}

func ids(hits []hit.Hit) []int64 {
	out := make([]int64, len(hits))
	for i, h := range hits {
		out[i] = h.DocumentID()
	}
	return out
}

// --- Tests ---

func TestSearch_RanksAndFilters(t *testing.T) {
	store := memory.New()
	best := seed(t, store, "p", "best", []float32{1, 0})
	second := seed(t, store, "p", "second", []float32{1, 1})
	seed(t, store, "p", "orthogonal", []float32{0, 1})
	seed(t, store, "p", "degraded", nil)
	seed(t, store, "other", "foreign", []float32{1, 0})

	svc := New(store, &mockEmbedder{vec: []float32{1, 0}}, zap.NewNop())
	hits, err := svc.Search(context.Background(), mustQuery(t, "p", "q", 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := ids(hits)
	if len(got) != 2 || got[0] != best || got[1] != second {
		t.Fatalf("unexpected hits: %v", got)
	}
	if hits[0].Text() != "text of best" || hits[0].Filename() != "best" {
		t.Errorf("unexpected hit payload: %q %q", hits[0].Filename(), hits[0].Text())
	}
}

func TestSearch_EmptyProject(t *testing.T) {
	svc := New(memory.New(), &mockEmbedder{vec: []float32{1}}, zap.NewNop())
	hits, err := svc.Search(context.Background(), mustQuery(t, "empty", "q", 3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits, got %d", len(hits))
	}
}

func TestSearch_EmbedError(t *testing.T) {
	svc := New(memory.New(), &mockEmbedder{err: domain.ErrProviderTimeout}, zap.NewNop())
	_, err := svc.Search(context.Background(), mustQuery(t, "p", "q", 3))
	if !errors.Is(err, domain.ErrProviderTimeout) {
		t.Fatalf("expected ErrProviderTimeout, got %v", err)
	}
}

func TestSearch_UsesIndexCandidates(t *testing.T) {
	mem := memory.New()
	a := seedIndexed(t, mem, "p", "a", []float32{1, 0})
	seedIndexed(t, mem, "p", "b", []float32{1, 0})
	store := &spyStore{Store: mem}

	var gotLimit int
	idx := &mockIndex{candidatesFn: func(_ context.Context, projectID string, _ []float32, limit int) ([]int64, error) {
		gotLimit = limit
		return []int64{a, 9999}, nil
	}}

	svc := New(store, &mockEmbedder{vec: []float32{1, 0}}, zap.NewNop(), WithIndex(idx), WithOversample(5))
	hits, err := svc.Search(context.Background(), mustQuery(t, "p", "q", 2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotLimit != 10 {
		t.Errorf("limit = %d, want 10", gotLimit)
	}
	if got := ids(hits); len(got) != 1 || got[0] != a {
		t.Fatalf("unexpected hits: %v", got)
	}
	if store.scans != 0 {
		t.Error("project scanned despite index candidates")
	}
}

func TestSearch_IndexFailureFallsBackToScan(t *testing.T) {
	mem := memory.New()
	seed(t, mem, "p", "a", []float32{1, 0})
	seed(t, mem, "p", "b", []float32{1, 0})
	store := &spyStore{Store: mem}

	idx := &mockIndex{candidatesFn: func(context.Context, string, []float32, int) ([]int64, error) {
		return nil, errors.New("unavailable")
	}}

	svc := New(store, &mockEmbedder{vec: []float32{1, 0}}, zap.NewNop(), WithIndex(idx))
	hits, err := svc.Search(context.Background(), mustQuery(t, "p", "q", 3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 2 || store.scans != 1 {
		t.Fatalf("hits=%d scans=%d", len(hits), store.scans)
	}
}

func TestSearch_EmptyIndexFallsBackToScan(t *testing.T) {
	mem := memory.New()
	seed(t, mem, "p", "a", []float32{1, 0})
	store := &spyStore{Store: mem}

	idx := &mockIndex{candidatesFn: func(context.Context, string, []float32, int) ([]int64, error) {
		return nil, nil
	}}

	svc := New(store, &mockEmbedder{vec: []float32{1, 0}}, zap.NewNop(), WithIndex(idx))
	hits, err := svc.Search(context.Background(), mustQuery(t, "p", "q", 3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 || store.scans != 1 {
		t.Fatalf("hits=%d scans=%d", len(hits), store.scans)
	}
}

func TestBuildContext(t *testing.T) {
	tests := []struct {
		name string
		hits []hit.Hit
		want string
	}{
		{"empty", nil, ""},
		{"one", []hit.Hit{hit.New(1, "a", "alpha", 0.9)}, "[1] alpha"},
		{
			"two",
			[]hit.Hit{hit.New(4, "a", "alpha", 0.9), hit.New(2, "b", "beta", 0.5)},
			"[1] alpha\n\n[2] beta",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildContext(tt.hits); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSearch_IndexCandidatesIncludeUnindexed(t *testing.T) {
	mem := memory.New()
	alpha := seedIndexed(t, mem, "p", "alpha", []float32{0, 1})
	beta := seed(t, mem, "p", "beta", []float32{1, 0})
	seed(t, mem, "p", "degraded", nil)
	seed(t, mem, "other", "foreign", []float32{1, 0})
	store := &spyStore{Store: mem}

	idx := &mockIndex{candidatesFn: func(context.Context, string, []float32, int) ([]int64, error) {
		return []int64{alpha}, nil
	}}

	svc := New(store, &mockEmbedder{vec: []float32{1, 0}}, zap.NewNop(), WithIndex(idx))
	hits, err := svc.Search(context.Background(), mustQuery(t, "p", "beta", 3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := ids(hits)
	if len(got) != 1 || got[0] != beta {
		t.Fatalf("unexpected hits: %v", got)
	}
	if store.scans != 0 {
		t.Error("project scanned despite index candidates")
	}
}

func TestMergeCandidates_Dedup(t *testing.T) {
	mem := memory.New()
	a := seed(t, mem, "p", "a", []float32{1})
	b := seed(t, mem, "p", "b", []float32{1})
	docs, _ := mem.GetMany(context.Background(), "p", []int64{a})
	pending, _ := mem.GetMany(context.Background(), "p", []int64{a, b})

	merged := mergeCandidates(docs, pending)
	if len(merged) != 2 || merged[0].ID() != a || merged[1].ID() != b {
		t.Fatalf("merged = %d docs", len(merged))
	}
}

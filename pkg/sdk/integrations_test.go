package kbase

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/kailas-cloud/kbase/internal/repository/memory"
)

// fakeIndex keeps upserted ids per project and fails upserts for listed ids.
type fakeIndex struct {
	mu       sync.Mutex
	ids      map[string][]int64
	failFor  func(id int64) bool
	checkErr error
}

func (f *fakeIndex) Upsert(_ context.Context, projectID string, id int64, _ []float32) error {
	if f.failFor != nil && f.failFor(id) {
		return errors.New("qdrant unavailable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ids == nil {
		f.ids = map[string][]int64{}
	}
	f.ids[projectID] = append(f.ids[projectID], id)
	return nil
}

func (f *fakeIndex) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for p, ids := range f.ids {
		f.ids[p] = slices.DeleteFunc(ids, func(v int64) bool { return v == id })
	}
	return nil
}

func (f *fakeIndex) Candidates(_ context.Context, projectID string, _ []float32, _ int) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.ids[projectID]), nil
}

func (f *fakeIndex) HealthCheck(context.Context) error { return f.checkErr }

func TestClient_IndexedSearchFindsUnindexedDocument(t *testing.T) {
	ctx := context.Background()
	idx := &fakeIndex{}
	ext := &integrations{}
	ext.withIndex(idx)

	obs, err := newObserver(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	store := memory.New()
	cfg := &clientConfig{embedder: keywordEmbedder()}
	c, err := wireClient(store, store, cfg, obs, ext)
	if err != nil {
		t.Fatalf("wireClient: %v", err)
	}

	docs := c.Documents("support")
	pw, err := docs.AddText(ctx, "reset.txt", "To reset your password open settings.")
	if err != nil {
		t.Fatalf("AddText: %v", err)
	}
	idx.failFor = func(int64) bool { return true }
	inv, err := docs.AddText(ctx, "billing.txt", "Every invoice is sent monthly.")
	if err != nil || !inv.Embedded {
		t.Fatalf("AddText: %+v, %v", inv, err)
	}

	res, err := c.Search("support").Query(ctx, "invoice copy")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.Hits) != 1 || res.Hits[0].DocumentID != inv.Document.ID {
		t.Fatalf("hits = %+v, want the document the index missed", res.Hits)
	}

	res, err = c.Search("support").Query(ctx, "password")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.Hits) != 1 || res.Hits[0].DocumentID != pw.Document.ID {
		t.Fatalf("hits = %+v, want the indexed document", res.Hits)
	}

	idx.checkErr = errors.New("down")
	h := c.Health(ctx)
	if v, ok := h.Checks["index"]; !ok || v == "ok" {
		t.Errorf("index check not wired: %+v", h)
	}
}

func TestNew_QdrantRequiresCollection(t *testing.T) {
	_, err := New(context.Background(), WithMemory(), WithQdrant("localhost:6334", "", 0, true))
	if err == nil {
		t.Fatal("expected error for a qdrant index without collection")
	}
}

func TestNew_NATSUnreachable(t *testing.T) {
	_, err := New(context.Background(), WithMemory(), WithNATS("nats://127.0.0.1:1", "kbase"))
	if err == nil {
		t.Fatal("expected error for an unreachable NATS server")
	}
}

func TestOpenIntegrations_NoneConfigured(t *testing.T) {
	ext, err := openIntegrations(context.Background(), &clientConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ext.ingestOpts)+len(ext.retrievalOpts)+len(ext.healthOpts)+len(ext.closers) != 0 {
		t.Errorf("unexpected integrations: %+v", ext)
	}
	ext.close()
}

func TestIntegrationOptions(t *testing.T) {
	cfg := &clientConfig{}
	WithQdrant("qdrant:6334", "docs", 1536, true).apply(cfg)
	WithNATS("nats://nats:4222", "kbase").apply(cfg)
	if cfg.qdrantAddr != "qdrant:6334" || cfg.qdrantCollection != "docs" ||
		cfg.qdrantDims != 1536 || !cfg.qdrantPlaintext {
		t.Errorf("qdrant option: %+v", cfg)
	}
	if cfg.natsURL != "nats://nats:4222" || cfg.natsPrefix != "kbase" {
		t.Errorf("nats option: %+v", cfg)
	}
}

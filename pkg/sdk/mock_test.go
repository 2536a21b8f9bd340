package kbase

import (
	"context"

	"github.com/kailas-cloud/kbase/internal/domain/batch"
	domdoc "github.com/kailas-cloud/kbase/internal/domain/document"
	"github.com/kailas-cloud/kbase/internal/domain/ingest"
	"github.com/kailas-cloud/kbase/internal/domain/search/hit"
	"github.com/kailas-cloud/kbase/internal/domain/search/query"
	ingestuc "github.com/kailas-cloud/kbase/internal/usecase/ingest"
)

// --- ingestUseCase mock ---

type mockIngestUC struct {
	ingestFn   func(ctx context.Context, projectID string, src ingestuc.Source) (ingest.Outcome, error)
	reingestFn func(ctx context.Context, projectID string, id int64, src ingestuc.Source) (ingest.Outcome, error)
	deleteFn   func(ctx context.Context, projectID string, id int64) error
	getFn      func(ctx context.Context, projectID string, id int64) (domdoc.Document, error)
	listFn     func(ctx context.Context, projectID string, f ingestuc.ListFilter) ([]domdoc.Document, error)
	reembedFn  func(ctx context.Context, projectID string) ([]batch.Result, error)
}

func (m *mockIngestUC) Ingest(ctx context.Context, projectID string, src ingestuc.Source) (ingest.Outcome, error) {
	return m.ingestFn(ctx, projectID, src)
}

func (m *mockIngestUC) Reingest(
	ctx context.Context, projectID string, id int64, src ingestuc.Source,
) (ingest.Outcome, error) {
	return m.reingestFn(ctx, projectID, id, src)
}

func (m *mockIngestUC) Delete(ctx context.Context, projectID string, id int64) error {
	return m.deleteFn(ctx, projectID, id)
}

func (m *mockIngestUC) Get(ctx context.Context, projectID string, id int64) (domdoc.Document, error) {
	return m.getFn(ctx, projectID, id)
}

func (m *mockIngestUC) List(ctx context.Context, projectID string, f ingestuc.ListFilter) ([]domdoc.Document, error) {
	return m.listFn(ctx, projectID, f)
}

func (m *mockIngestUC) ReembedDegraded(ctx context.Context, projectID string) ([]batch.Result, error) {
	return m.reembedFn(ctx, projectID)
}

// --- retrievalUseCase mock ---

type mockRetrievalUC struct {
	searchFn func(ctx context.Context, q query.Query) ([]hit.Hit, error)
}

func (m *mockRetrievalUC) Search(ctx context.Context, q query.Query) ([]hit.Hit, error) {
	return m.searchFn(ctx, q)
}

// --- Embedder mock ---

type mockEmbedder struct {
	fn func(ctx context.Context, text string) (EmbeddingResult, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	return m.fn(ctx, text)
}

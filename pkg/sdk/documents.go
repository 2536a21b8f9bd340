package kbase

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/kbase/internal/domain/batch"
	domdoc "github.com/kailas-cloud/kbase/internal/domain/document"
	"github.com/kailas-cloud/kbase/internal/domain/ingest"
	ingestuc "github.com/kailas-cloud/kbase/internal/usecase/ingest"
)

// DocumentService manages the documents of a single project.
type DocumentService struct {
	projectID string
	svc       ingestUseCase
	obs       *observer
}

// Upload extracts text from a file and stores it.
func (s *DocumentService) Upload(ctx context.Context, filename string, data []byte) (IngestResult, error) {
	return s.ingest(ctx, "document.upload", ingestuc.Upload(filename, data))
}

// AddText stores typed-in text. An empty filename gets a timestamped default.
func (s *DocumentService) AddText(ctx context.Context, filename, text string) (IngestResult, error) {
	return s.ingest(ctx, "document.manual", ingestuc.Manual(filename, text))
}

// Crawl fetches a web page and stores its visible text.
func (s *DocumentService) Crawl(ctx context.Context, url string) (IngestResult, error) {
	return s.ingest(ctx, "document.crawl", ingestuc.Crawl(url))
}

func (s *DocumentService) ingest(ctx context.Context, op string, src ingestuc.Source) (_ IngestResult, err error) {
	start := time.Now()
	defer func() { s.obs.observe(op, start, err) }()

	out, err := s.svc.Ingest(ctx, s.projectID, src)
	if err != nil {
		return IngestResult{}, fmt.Errorf("ingest: %w", err)
	}
	return fromOutcome(out), nil
}

// ReplaceText re-ingests a document from new text, keeping its id.
// An empty filename keeps the current one.
func (s *DocumentService) ReplaceText(ctx context.Context, id int64, filename, text string) (IngestResult, error) {
	return s.reingest(ctx, id, ingestuc.Manual(filename, text))
}

// ReplaceFile re-ingests a document from a new file, keeping its id.
func (s *DocumentService) ReplaceFile(ctx context.Context, id int64, filename string, data []byte) (IngestResult, error) {
	return s.reingest(ctx, id, ingestuc.Upload(filename, data))
}

func (s *DocumentService) reingest(ctx context.Context, id int64, src ingestuc.Source) (_ IngestResult, err error) {
	start := time.Now()
	defer func() { s.obs.observe("document.reingest", start, err) }()

	out, err := s.svc.Reingest(ctx, s.projectID, id, src)
	if err != nil {
		return IngestResult{}, fmt.Errorf("reingest: %w", err)
	}
	return fromOutcome(out), nil
}

// Get retrieves a document by id.
func (s *DocumentService) Get(ctx context.Context, id int64) (_ Document, err error) {
	start := time.Now()
	defer func() { s.obs.observe("document.get", start, err) }()

	d, err := s.svc.Get(ctx, s.projectID, id)
	if err != nil {
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	return fromDocument(&d), nil
}

// List returns the project's documents in creation order.
// degradedOnly keeps documents that have no embedding.
func (s *DocumentService) List(ctx context.Context, degradedOnly bool) (_ []Document, err error) {
	start := time.Now()
	defer func() { s.obs.observe("document.list", start, err) }()

	docs, err := s.svc.List(ctx, s.projectID, ingestuc.ListFilter{DegradedOnly: degradedOnly})
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	out := make([]Document, len(docs))
	for i := range docs {
		out[i] = fromDocument(&docs[i])
	}
	return out, nil
}

// Delete removes a document by id.
func (s *DocumentService) Delete(ctx context.Context, id int64) (err error) {
	start := time.Now()
	defer func() { s.obs.observe("document.delete", start, err) }()

	if err = s.svc.Delete(ctx, s.projectID, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// Reembed retries the embedding of every document stored without one.
func (s *DocumentService) Reembed(ctx context.Context) (_ []ReembedResult, err error) {
	start := time.Now()
	defer func() { s.obs.observe("document.reembed", start, err) }()

	results, err := s.svc.ReembedDegraded(ctx, s.projectID)
	if err != nil {
		return nil, fmt.Errorf("reembed: %w", err)
	}
	out := make([]ReembedResult, len(results))
	for i, r := range results {
		out[i] = ReembedResult{
			DocumentID: r.DocumentID(),
			OK:         r.Status() == batch.StatusEmbedded,
			Err:        r.Err(),
		}
	}
	return out, nil
}

func fromDocument(d *domdoc.Document) Document {
	return Document{
		ID:         d.ID(),
		ProjectID:  d.ProjectID(),
		Filename:   d.Filename(),
		SourceType: SourceType(d.SourceType()),
		Content:    d.Content(),
		Embedded:   d.HasEmbedding(),
		EmbedError: d.EmbedError(),
		CreatedAt:  d.CreatedAt(),
		UpdatedAt:  d.UpdatedAt(),
	}
}

func fromOutcome(out ingest.Outcome) IngestResult {
	doc := out.Document()
	return IngestResult{
		Document:       fromDocument(&doc),
		Embedded:       out.Status() == ingest.StatusEmbedded,
		EmbeddingError: out.EmbedErr(),
	}
}

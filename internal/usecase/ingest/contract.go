package ingest

import (
	"context"

	"github.com/kailas-cloud/kbase/internal/crawl"
	"github.com/kailas-cloud/kbase/internal/domain"
	domdoc "github.com/kailas-cloud/kbase/internal/domain/document"
	"github.com/kailas-cloud/kbase/internal/events"
)

// Store defines the storage contract for documents.
type Store interface {
	Insert(ctx context.Context, doc domdoc.Document) (int64, error)
	Update(ctx context.Context, doc domdoc.Document) error
	Delete(ctx context.Context, projectID string, id int64) error
	Get(ctx context.Context, projectID string, id int64) (domdoc.Document, error)
	Scan(ctx context.Context, projectID string) ([]domdoc.Document, error)
}

// Extractor turns uploaded bytes into normalized text.
type Extractor interface {
	Extract(data []byte, filename string) (string, error)
}

// Crawler fetches a URL and renders it to text.
type Crawler interface {
	Crawl(ctx context.Context, url string) (crawl.Page, error)
}

// Embedder vectorizes document text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Index mirrors embedded documents into the optional candidate index.
type Index interface {
	Upsert(ctx context.Context, projectID string, id int64, vec []float32) error
	Delete(ctx context.Context, id int64) error
}

// Publisher emits document lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, subject string, ev events.DocumentEvent) error
}

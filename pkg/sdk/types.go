package kbase

import "time"

// SourceType tells how a document entered the knowledge base.
type SourceType string

// Source type constants.
const (
	SourceUpload SourceType = "upload"
	SourceManual SourceType = "manual"
	SourceCrawl  SourceType = "crawl"
)

// Document is a stored document.
type Document struct {
	ID         int64
	ProjectID  string
	Filename   string
	SourceType SourceType
	Content    string
	Embedded   bool
	EmbedError string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IngestResult is the outcome of storing one document.
// A document stored without an embedding is not an error: Embedded is false
// and EmbeddingError holds the provider failure.
type IngestResult struct {
	Document       Document
	Embedded       bool
	EmbeddingError error
}

// Hit is one ranked passage.
type Hit struct {
	DocumentID int64
	Filename   string
	Text       string
	Score      float64
}

// SearchResult holds ranked hits and the numbered context block built from them.
type SearchResult struct {
	Hits    []Hit
	Context string
}

// ReembedResult is the outcome for one previously unembedded document.
type ReembedResult struct {
	DocumentID int64
	OK         bool
	Err        error
}

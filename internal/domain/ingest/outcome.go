// Package ingest describes what happened to a document that was stored.
// A document that could not be stored is reported as an error instead.
package ingest

import "github.com/kailas-cloud/kbase/internal/domain/document"

// Status distinguishes stored documents by retrieval eligibility.
type Status string

// Outcome status values.
const (
	StatusEmbedded    Status = "embedded"
	StatusNotEmbedded Status = "not_embedded"
)

// Outcome is the result of a successful Ingest or Reingest.
type Outcome struct {
	document document.Document
	embedErr error
}

// Embedded creates the outcome for a document that can be searched.
func Embedded(doc document.Document) Outcome {
	return Outcome{document: doc}
}

// NotEmbedded creates the outcome for a stored document whose embedding failed.
func NotEmbedded(doc document.Document, embedErr error) Outcome {
	return Outcome{document: doc, embedErr: embedErr}
}

// Document returns the stored document.
func (o Outcome) Document() document.Document { return o.document }

// DocumentID returns the stored document id.
func (o Outcome) DocumentID() int64 { return o.document.ID() }

// Status reports whether the stored document has an embedding.
func (o Outcome) Status() Status {
	if o.embedErr != nil {
		return StatusNotEmbedded
	}
	return StatusEmbedded
}

// EmbedErr returns why the embedding is absent, nil when embedded.
func (o Outcome) EmbedErr() error { return o.embedErr }

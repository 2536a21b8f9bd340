package chi

import (
	"time"

	"github.com/kailas-cloud/kbase/internal/domain/batch"
	domdoc "github.com/kailas-cloud/kbase/internal/domain/document"
	"github.com/kailas-cloud/kbase/internal/domain/ingest"
	"github.com/kailas-cloud/kbase/internal/domain/search/hit"
)

// DocumentResponse is a stored document. Content is omitted from listings.
type DocumentResponse struct {
	ID            int64     `json:"id"`
	ProjectID     string    `json:"project_id"`
	Filename      string    `json:"filename"`
	SourceType    string    `json:"source_type"`
	Embedded      bool      `json:"embedded"`
	EmbedError    string    `json:"embed_error,omitempty"`
	ContentLength int       `json:"content_length"`
	Content       *string   `json:"content,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IngestResponse reports an ingestion. A stored document without an
// embedding is still a success.
type IngestResponse struct {
	Document       DocumentResponse `json:"document"`
	Embedded       bool             `json:"embedded"`
	EmbeddingError string           `json:"embedding_error,omitempty"`
}

// DocumentListResponse lists a project's documents in creation order.
type DocumentListResponse struct {
	Items []DocumentResponse `json:"items"`
	Count int                `json:"count"`
}

// ManualDocumentRequest is the body of POST /documents/manual and PUT /documents/{id}.
type ManualDocumentRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// CrawlRequest is the body of POST /documents/crawl.
type CrawlRequest struct {
	URL string `json:"url"`
}

// ReembedItem is the outcome for one degraded document.
type ReembedItem struct {
	DocumentID int64  `json:"document_id"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// ReembedResponse summarizes POST /documents/reembed.
type ReembedResponse struct {
	Items    []ReembedItem `json:"items"`
	Embedded int           `json:"embedded"`
	Failed   int           `json:"failed"`
}

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Query    string   `json:"query"`
	TopK     *int     `json:"top_k,omitempty"`
	MinScore *float64 `json:"min_score,omitempty"`
}

// HitResponse is one ranked passage.
type HitResponse struct {
	DocumentID int64   `json:"document_id"`
	Filename   string  `json:"filename"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// SearchResponse carries the hits and the numbered context string built from them.
type SearchResponse struct {
	Hits    []HitResponse `json:"hits"`
	Context string        `json:"context"`
}

// AskRequest is the body of POST /ask.
type AskRequest struct {
	Question   string `json:"question"`
	RolePrompt string `json:"role_prompt,omitempty"`
}

// AskResponse is a generated answer with its sources.
type AskResponse struct {
	Answer  string        `json:"answer"`
	Sources []HitResponse `json:"sources"`
}

// ImageRequest is the body of POST /images.
type ImageRequest struct {
	Prompt string `json:"prompt"`
}

// ImageResponse carries a generated image as base64.
type ImageResponse struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func documentToResponse(doc *domdoc.Document, withContent bool) DocumentResponse {
	resp := DocumentResponse{
		ID:            doc.ID(),
		ProjectID:     doc.ProjectID(),
		Filename:      doc.Filename(),
		SourceType:    string(doc.SourceType()),
		Embedded:      doc.HasEmbedding(),
		EmbedError:    doc.EmbedError(),
		ContentLength: len(doc.Content()),
		CreatedAt:     doc.CreatedAt(),
		UpdatedAt:     doc.UpdatedAt(),
	}
	if withContent {
		c := doc.Content()
		resp.Content = &c
	}
	return resp
}

func outcomeToResponse(out ingest.Outcome) IngestResponse {
	doc := out.Document()
	resp := IngestResponse{
		Document: documentToResponse(&doc, false),
		Embedded: out.Status() == ingest.StatusEmbedded,
	}
	if err := out.EmbedErr(); err != nil {
		resp.EmbeddingError = err.Error()
	}
	return resp
}

func hitsToResponse(hits []hit.Hit) []HitResponse {
	out := make([]HitResponse, len(hits))
	for i, h := range hits {
		out[i] = HitResponse{
			DocumentID: h.DocumentID(),
			Filename:   h.Filename(),
			Text:       h.Text(),
			Score:      h.Score(),
		}
	}
	return out
}

func reembedToResponse(results []batch.Result) ReembedResponse {
	items := make([]ReembedItem, len(results))
	for i, r := range results {
		items[i] = ReembedItem{DocumentID: r.DocumentID(), Status: string(r.Status())}
		if err := r.Err(); err != nil {
			items[i].Error = err.Error()
		}
	}
	embedded, failed := batch.Count(results)
	return ReembedResponse{Items: items, Embedded: embedded, Failed: failed}
}

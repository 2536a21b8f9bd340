package retrieval

import (
	"context"

	"github.com/kailas-cloud/kbase/internal/domain"
	domdoc "github.com/kailas-cloud/kbase/internal/domain/document"
)

// Store is the consumer interface for reading candidate documents (ISP).
type Store interface {
	Scan(ctx context.Context, projectID string) ([]domdoc.Document, error)
	GetMany(ctx context.Context, projectID string, ids []int64) ([]domdoc.Document, error)
	Unindexed(ctx context.Context, projectID string) ([]domdoc.Document, error)
}

// Embedder vectorizes query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// CandidateIndex narrows a search to the ids nearest to the query vector.
type CandidateIndex interface {
	Candidates(ctx context.Context, projectID string, vec []float32, limit int) ([]int64, error)
}

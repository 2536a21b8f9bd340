package kbase

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/kbase/internal/domain"
	"github.com/kailas-cloud/kbase/internal/domain/search/query"
	"github.com/kailas-cloud/kbase/internal/usecase/retrieval"
)

// SearchService ranks passages within a single project.
type SearchService struct {
	projectID string
	svc       retrievalUseCase
	obs       *observer
}

// SearchOption tunes one query.
type SearchOption func(*searchParams)

type searchParams struct {
	topK     int
	minScore *float64
}

// WithTopK caps the number of hits (1..100, default 3).
func WithTopK(k int) SearchOption {
	return func(p *searchParams) { p.topK = k }
}

// WithMinScore drops hits scoring below s (-1..1, default 0.2).
func WithMinScore(s float64) SearchOption {
	return func(p *searchParams) { p.minScore = &s }
}

// Query embeds text and returns the best matching documents.
func (s *SearchService) Query(ctx context.Context, text string, opts ...SearchOption) (_ SearchResult, err error) {
	start := time.Now()
	defer func() { s.obs.observe("search.query", start, err) }()

	var p searchParams
	for _, o := range opts {
		o(&p)
	}

	q, err := query.New(s.projectID, text, p.topK, p.minScore)
	if err != nil {
		return SearchResult{}, fmt.Errorf("search: %w: %w", domain.ErrInvalidInput, err)
	}

	hits, err := s.svc.Search(ctx, q)
	if err != nil {
		return SearchResult{}, fmt.Errorf("search: %w", err)
	}
	out := make([]Hit, len(hits))
	for i, h := range hits {
		out[i] = Hit{DocumentID: h.DocumentID(), Filename: h.Filename(), Text: h.Text(), Score: h.Score()}
	}
	return SearchResult{Hits: out, Context: retrieval.BuildContext(hits)}, nil
}

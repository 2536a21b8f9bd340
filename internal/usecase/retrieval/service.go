package retrieval

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	domdoc "github.com/kailas-cloud/kbase/internal/domain/document"
	"github.com/kailas-cloud/kbase/internal/domain/search/hit"
	"github.com/kailas-cloud/kbase/internal/domain/search/query"
	"github.com/kailas-cloud/kbase/internal/domain/similarity"
	"github.com/kailas-cloud/kbase/internal/metrics"
	"github.com/kailas-cloud/kbase/internal/observability"
)

// DefaultOversample multiplies top_k when asking the index for candidates.
const DefaultOversample = 4

// Service ranks stored passages of a project against a query.
type Service struct {
	store      Store
	embed      Embedder
	index      CandidateIndex
	oversample int
	logger     *zap.Logger
}

// Option configures optional collaborators.
type Option func(*Service)

// WithIndex narrows the scan to candidates returned by idx.
func WithIndex(idx CandidateIndex) Option {
	return func(s *Service) { s.index = idx }
}

// WithOversample overrides DefaultOversample.
func WithOversample(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.oversample = n
		}
	}
}

// New creates a retrieval service.
func New(store Store, embed Embedder, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{store: store, embed: embed, oversample: DefaultOversample, logger: logger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Search embeds the query text and returns at most q.TopK() hits scoring
// at least q.MinScore(), best first.
func (s *Service) Search(ctx context.Context, q query.Query) ([]hit.Hit, error) {
	ctx, span := observability.StartSpan(ctx, "retrieval.Search",
		attribute.String("project", q.ProjectID()),
		attribute.Int("top_k", q.TopK()),
	)
	defer span.End()

	hits, err := s.search(ctx, q)
	observability.RecordError(span, err)
	span.SetAttributes(attribute.Int("hits", len(hits)))
	return hits, err
}

func (s *Service) search(ctx context.Context, q query.Query) ([]hit.Hit, error) {
	res, err := s.embed.Embed(ctx, q.Text())
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}

	candidates, source, err := s.candidates(ctx, q, res.Embedding)
	if err != nil {
		return nil, err
	}

	hits := similarity.Search(res.Embedding, candidates, q.TopK(), q.MinScore())
	metrics.SearchRequestsTotal.WithLabelValues(source).Inc()
	metrics.SearchHitsReturned.Observe(float64(len(hits)))
	return hits, nil
}

func (s *Service) candidates(ctx context.Context, q query.Query, vec []float32) ([]domdoc.Document, string, error) {
	if s.index != nil {
		ids, err := s.index.Candidates(ctx, q.ProjectID(), vec, q.TopK()*s.oversample)
		switch {
		case err != nil:
			metrics.IndexErrorsTotal.WithLabelValues("candidates").Inc()
			s.logger.Warn("Index lookup failed, scanning project",
				zap.String("project", q.ProjectID()), zap.Error(err))
		case len(ids) > 0:
			docs, err := s.store.GetMany(ctx, q.ProjectID(), ids)
			if err != nil {
				return nil, "", fmt.Errorf("load candidates: %w", err)
			}
			pending, err := s.store.Unindexed(ctx, q.ProjectID())
			if err != nil {
				return nil, "", fmt.Errorf("load unindexed: %w", err)
			}
			return mergeCandidates(docs, pending), "index", nil
		}
	}

	docs, err := s.store.Scan(ctx, q.ProjectID())
	if err != nil {
		return nil, "", fmt.Errorf("scan project: %w", err)
	}
	return docs, "scan", nil
}

// mergeCandidates appends the documents the index has not caught up with,
// skipping ids it already returned.
func mergeCandidates(docs, pending []domdoc.Document) []domdoc.Document {
	if len(pending) == 0 {
		return docs
	}
	seen := make(map[int64]struct{}, len(docs))
	for i := range docs {
		seen[docs[i].ID()] = struct{}{}
	}
	for i := range pending {
		if _, ok := seen[pending[i].ID()]; !ok {
			docs = append(docs, pending[i])
		}
	}
	return docs
}

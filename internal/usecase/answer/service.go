package answer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/kbase/internal/domain"
	"github.com/kailas-cloud/kbase/internal/domain/search/hit"
	"github.com/kailas-cloud/kbase/internal/domain/search/query"
	"github.com/kailas-cloud/kbase/internal/usecase/retrieval"
)

// DefaultRolePrompt is the system message when the caller gives none.
const DefaultRolePrompt = "You answer questions using only the numbered passages in the context. " +
	"Cite passages as [n]. If the context does not contain the answer, say so."

// noContext stands in for the context when retrieval finds nothing.
const noContext = "(none)"

// Answer is generated text with the passages it was grounded on.
type Answer struct {
	Text    string
	Sources []hit.Hit
}

// Service answers questions over a project's documents.
type Service struct {
	search   Searcher
	generate Generator
	logger   *zap.Logger
}

// New creates an answer service.
func New(search Searcher, generate Generator, logger *zap.Logger) *Service {
	return &Service{search: search, generate: generate, logger: logger}
}

// Ask retrieves passages with default parameters and asks the generator to
// answer question from them.
func (s *Service) Ask(ctx context.Context, projectID, question, rolePrompt string) (Answer, error) {
	q, err := query.New(projectID, question, 0, nil)
	if err != nil {
		return Answer{}, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}

	hits, err := s.search.Search(ctx, q)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieve: %w", err)
	}

	system := strings.TrimSpace(rolePrompt)
	if system == "" {
		system = DefaultRolePrompt
	}

	start := time.Now()
	text, err := s.generate.Generate(ctx, system, userMessage(hits, question))
	if err != nil {
		return Answer{}, fmt.Errorf("generate: %w", err)
	}

	s.logger.Debug("Answered question",
		zap.String("project", projectID),
		zap.Int("sources", len(hits)),
		zap.Duration("duration", time.Since(start)),
	)
	return Answer{Text: text, Sources: hits}, nil
}

func userMessage(hits []hit.Hit, question string) string {
	ctxText := retrieval.BuildContext(hits)
	if ctxText == "" {
		ctxText = noContext
	}
	return "Context:\n" + ctxText + "\n\nQuestion: " + strings.TrimSpace(question)
}

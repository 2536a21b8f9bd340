package answer

import (
	"context"

	"github.com/kailas-cloud/kbase/internal/domain/search/hit"
	"github.com/kailas-cloud/kbase/internal/domain/search/query"
)

// Searcher retrieves ranked passages for a query.
type Searcher interface {
	Search(ctx context.Context, q query.Query) ([]hit.Hit, error)
}

// Generator produces text from a system and a user message.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

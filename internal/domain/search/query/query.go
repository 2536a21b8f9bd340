package query

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/kbase/internal/domain/document"
)

// Retrieval parameter limits and defaults.
const (
	// MaxTextLength is the maximum allowed query text length in bytes.
	MaxTextLength   = 8192
	DefaultTopK     = 3
	DefaultMinScore = 0.2
	MaxTopK         = 100
)

// Query is a validated, transient similarity query.
type Query struct {
	projectID string
	text      string
	topK      int
	minScore  float64
}

// New validates retrieval parameters.
// topK <= 0 selects DefaultTopK; a nil minScore selects DefaultMinScore.
func New(projectID, text string, topK int, minScore *float64) (Query, error) {
	if err := document.ValidateProjectID(projectID); err != nil {
		return Query{}, err
	}
	if strings.TrimSpace(text) == "" {
		return Query{}, fmt.Errorf("query text is required")
	}
	if len(text) > MaxTextLength {
		return Query{}, fmt.Errorf("query too long (max %d bytes)", MaxTextLength)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		return Query{}, fmt.Errorf("top_k must be between 1 and %d", MaxTopK)
	}
	score := DefaultMinScore
	if minScore != nil {
		score = *minScore
	}
	if score < -1 || score > 1 {
		return Query{}, fmt.Errorf("min_score must be between -1 and 1")
	}
	return Query{projectID: projectID, text: text, topK: topK, minScore: score}, nil
}

// ProjectID returns the project partition to search.
func (q Query) ProjectID() string { return q.projectID }

// Text returns the raw query text.
func (q Query) Text() string { return q.text }

// TopK returns the maximum number of hits.
func (q Query) TopK() int { return q.topK }

// MinScore returns the inclusive score floor.
func (q Query) MinScore() float64 { return q.minScore }

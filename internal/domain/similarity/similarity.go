// Package similarity ranks stored documents against a query vector.
// Everything here is a pure function: safe to call concurrently with ingestion.
package similarity

import (
	"cmp"
	"math"
	"slices"

	"github.com/kailas-cloud/kbase/internal/domain/document"
	"github.com/kailas-cloud/kbase/internal/domain/search/hit"
)

// Cosine returns dot(a, b) / (|a| * |b|).
// Vectors of different length and zero-norm vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

type scored struct {
	doc   *document.Document
	score float64
}

// Search returns at most topK hits scoring >= minScore, best first,
// equal scores ordered by ascending document id.
// Candidates without an embedding, or with one whose length differs from
// the query vector, are not candidates.
func Search(queryVector []float32, candidates []document.Document, topK int, minScore float64) []hit.Hit {
	if topK <= 0 || len(queryVector) == 0 {
		return []hit.Hit{}
	}

	ranked := make([]scored, 0, len(candidates))
	for i := range candidates {
		d := &candidates[i]
		if !d.HasEmbedding() || len(d.Embedding()) != len(queryVector) {
			continue
		}
		s := Cosine(queryVector, d.Embedding())
		if math.IsNaN(s) || math.IsInf(s, 0) || s < minScore {
			continue
		}
		ranked = append(ranked, scored{doc: d, score: s})
	}

	slices.SortFunc(ranked, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.doc.ID(), b.doc.ID())
	})

	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	hits := make([]hit.Hit, len(ranked))
	for i, r := range ranked {
		hits[i] = hit.New(r.doc.ID(), r.doc.Filename(), r.doc.Content(), r.score)
	}
	return hits
}

package similarity

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/kailas-cloud/kbase/internal/domain/document"
)

const eps = 1e-9

func doc(id int64, vec []float32) document.Document {
	return document.Reconstruct(id, "p", "f.txt", document.SourceManual, "text", vec, "", time.Time{}, time.Time{})
}

func randVec(r *rand.Rand, n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = float32(r.NormFloat64())
	}
	return v
}

func TestCosine_Known(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"scaled", []float32{1, 1}, []float32{5, 5}, 1},
		{"zero a", []float32{0, 0}, []float32{1, 2}, 0},
		{"zero b", []float32{3, 4}, []float32{0, 0}, 0},
		{"length mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cosine(tt.a, tt.b); math.Abs(got-tt.want) > eps {
				t.Errorf("Cosine() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestCosine_Symmetry(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 200; i++ {
		a, b := randVec(r, 16), randVec(r, 16)
		if ab, ba := Cosine(a, b), Cosine(b, a); math.Abs(ab-ba) > eps {
			t.Fatalf("asymmetric: %f vs %f", ab, ba)
		}
	}
}

func TestCosine_ZeroNormSafety(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	zero := make([]float32, 8)
	for i := 0; i < 50; i++ {
		if got := Cosine(randVec(r, 8), zero); got != 0 {
			t.Fatalf("Cosine(a, 0) = %f", got)
		}
	}
}

func TestSearch_RankingScenario(t *testing.T) {
	q := []float32{1, 0}
	// cos = x / |v| for v = (x, y); pick vectors with exact target scores
	at := func(score float64) []float32 {
		return []float32{float32(score), float32(math.Sqrt(1 - score*score))}
	}
	a, b, c, d := doc(10, at(0.9)), doc(3, at(0.5)), doc(7, at(0.5)), doc(1, at(0.1))

	hits := Search(q, []document.Document{d, c, a, b}, 2, 0.2)
	if len(hits) != 2 {
		t.Fatalf("len = %d, want 2", len(hits))
	}
	if hits[0].DocumentID() != 10 || hits[1].DocumentID() != 3 {
		t.Errorf("got [%d %d], want [10 3]", hits[0].DocumentID(), hits[1].DocumentID())
	}

	// swap ids: now C has the lower id and wins the tie
	b2, c2 := doc(8, at(0.5)), doc(2, at(0.5))
	hits = Search(q, []document.Document{a, b2, c2, d}, 2, 0.2)
	if hits[1].DocumentID() != 2 {
		t.Errorf("tie broken to %d, want 2", hits[1].DocumentID())
	}
}

func TestSearch_ExcludesAbsentAndMismatched(t *testing.T) {
	q := []float32{1, 0, 0}
	cands := []document.Document{
		doc(1, nil),
		doc(2, []float32{}),
		doc(3, []float32{1, 0}),       // length mismatch, raw similarity would be 1
		doc(4, []float32{1, 0, 0, 0}), // length mismatch
		doc(5, []float32{1, 0.1, 0}),
	}
	hits := Search(q, cands, 10, -1)
	if len(hits) != 1 || hits[0].DocumentID() != 5 {
		t.Fatalf("hits = %+v, want only doc 5", hits)
	}
}

func TestSearch_TopKBound(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 6))
	q := randVec(r, 8)
	cands := make([]document.Document, 40)
	for i := range cands {
		cands[i] = doc(int64(i+1), randVec(r, 8))
	}
	qualifying := len(Search(q, cands, len(cands), 0))
	for k := 1; k <= 45; k++ {
		got := len(Search(q, cands, k, 0))
		if want := min(k, qualifying); got != want {
			t.Fatalf("top_k=%d: len = %d, want %d", k, got, want)
		}
	}
	if got := Search(q, cands, 0, 0); len(got) != 0 {
		t.Errorf("top_k=0 returned %d hits", len(got))
	}
}

func TestSearch_ThresholdMonotonicity(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 8))
	q := randVec(r, 8)
	cands := make([]document.Document, 50)
	for i := range cands {
		cands[i] = doc(int64(i+1), randVec(r, 8))
	}
	prev := math.MaxInt
	for s := -1.0; s <= 1.0; s += 0.05 {
		n := len(Search(q, cands, 1000, s))
		if n > prev {
			t.Fatalf("min_score %f returned %d hits, more than %d at a lower floor", s, n, prev)
		}
		prev = n
	}
}

func TestSearch_OrderedAndInclusiveFloor(t *testing.T) {
	q := []float32{1, 0}
	cands := []document.Document{doc(1, []float32{1, 1}), doc(2, []float32{1, 0}), doc(3, []float32{0, 1})}

	hits := Search(q, cands, 10, 0)
	if len(hits) != 3 {
		t.Fatalf("len = %d, want 3 (score 0 is not below floor 0)", len(hits))
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score() > hits[i-1].Score() {
			t.Fatalf("not sorted: %+v", hits)
		}
	}
	if hits[0].DocumentID() != 2 || hits[0].Text() != "text" {
		t.Errorf("first hit = %+v", hits[0])
	}
}

func TestSearch_ZeroQuery(t *testing.T) {
	cands := []document.Document{doc(1, []float32{1, 0})}
	if hits := Search([]float32{0, 0}, cands, 3, 0.2); len(hits) != 0 {
		t.Errorf("zero query vector must score 0 and fall below 0.2, got %+v", hits)
	}
	if hits := Search([]float32{0, 0}, cands, 3, 0); len(hits) != 1 || hits[0].Score() != 0 {
		t.Errorf("zero query vector with floor 0 = %+v", hits)
	}
}

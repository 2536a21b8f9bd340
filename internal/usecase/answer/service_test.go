package answer

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/kbase/internal/domain"
	"github.com/kailas-cloud/kbase/internal/domain/search/hit"
	"github.com/kailas-cloud/kbase/internal/domain/search/query"
)

// --- Mocks ---

type mockSearcher struct {
	searchFn func(ctx context.Context, q query.Query) ([]hit.Hit, error)
}

func (m *mockSearcher) Search(ctx context.Context, q query.Query) ([]hit.Hit, error) {
	return m.searchFn(ctx, q)
}

type mockGenerator struct {
	system, user string
	reply        string
	err          error
}

func (m *mockGenerator) Generate(_ context.Context, system, user string) (string, error) {
	m.system, m.user = system, user
	return m.reply, m.err
}

// --- Tests ---

func TestAsk_BuildsPrompt(t *testing.T) {
	var gotQuery query.Query
	search := &mockSearcher{searchFn: func(_ context.Context, q query.Query) ([]hit.Hit, error) {
		gotQuery = q
		return []hit.Hit{hit.New(1, "a.txt", "Paris is the capital.", 0.9)}, nil
	}}
	gen := &mockGenerator{reply: "Paris [1]"}

	ans, err := New(search, gen, zap.NewNop()).Ask(context.Background(), "geo", "Capital of France?", "Be brief.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ans.Text != "Paris [1]" || len(ans.Sources) != 1 {
		t.Fatalf("unexpected answer: %+v", ans)
	}
	if gotQuery.TopK() != query.DefaultTopK || gotQuery.MinScore() != query.DefaultMinScore {
		t.Errorf("non-default retrieval: top_k=%d min_score=%v", gotQuery.TopK(), gotQuery.MinScore())
	}
	if gen.system != "Be brief." {
		t.Errorf("system = %q", gen.system)
	}
	want := "Context:\n[1] Paris is the capital.\n\nQuestion: Capital of France?"
	if gen.user != want {
		t.Errorf("user = %q, want %q", gen.user, want)
	}
}

func TestAsk_NoHits(t *testing.T) {
	search := &mockSearcher{searchFn: func(context.Context, query.Query) ([]hit.Hit, error) {
		return nil, nil
	}}
	gen := &mockGenerator{reply: "I don't know."}

	if _, err := New(search, gen, zap.NewNop()).Ask(context.Background(), "geo", "Why?", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gen.system != DefaultRolePrompt {
		t.Errorf("system = %q", gen.system)
	}
	if gen.user != "Context:\n(none)\n\nQuestion: Why?" {
		t.Errorf("user = %q", gen.user)
	}
}

func TestAsk_Errors(t *testing.T) {
	okSearch := &mockSearcher{searchFn: func(context.Context, query.Query) ([]hit.Hit, error) { return nil, nil }}
	failSearch := &mockSearcher{searchFn: func(context.Context, query.Query) ([]hit.Hit, error) {
		return nil, domain.ErrStore
	}}

	tests := []struct {
		name     string
		search   Searcher
		gen      *mockGenerator
		question string
		want     error
	}{
		{"blank question", okSearch, &mockGenerator{}, "  ", domain.ErrInvalidInput},
		{"store down", failSearch, &mockGenerator{}, "q", domain.ErrStore},
		{"provider timeout", okSearch, &mockGenerator{err: domain.ErrProviderTimeout}, "q", domain.ErrProviderTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.search, tt.gen, zap.NewNop()).Ask(context.Background(), "geo", tt.question, "")
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

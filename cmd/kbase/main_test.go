package main

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/kbase/internal/config"
	"github.com/kailas-cloud/kbase/internal/domain"
)

// blockingEmbedder holds every call until release is closed and records the
// peak number of calls in flight.
type blockingEmbedder struct {
	release  chan struct{}
	entered  chan string
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (b *blockingEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	n := b.inFlight.Add(1)
	defer b.inFlight.Add(-1)
	for {
		p := b.peak.Load()
		if n <= p || b.peak.CompareAndSwap(p, n) {
			break
		}
	}
	b.entered <- text
	<-b.release
	return domain.EmbeddingResult{Embedding: []float32{1}}, nil
}

func TestEmbedderChains_ShareConcurrencyCap(t *testing.T) {
	cfg := config.Config{}
	cfg.Embedding.MaxConcurrent = 1
	cfg.Embedding.DocumentInstruction = "doc: "
	cfg.Embedding.QueryInstruction = "query: "

	base := &blockingEmbedder{release: make(chan struct{}), entered: make(chan string, 2)}
	docEmb, queryEmb := embedderChains(&cfg, base, nil, zap.NewNop())

	var wg sync.WaitGroup
	for _, e := range []domain.Embedder{docEmb, queryEmb} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Embed(context.Background(), "text"); err != nil {
				t.Errorf("Embed: %v", err)
			}
		}()
	}

	first := <-base.entered
	select {
	case second := <-base.entered:
		t.Fatalf("both chains reached the provider at once: %q and %q", first, second)
	case <-time.After(50 * time.Millisecond):
	}
	close(base.release)
	second := <-base.entered
	wg.Wait()

	if got := base.peak.Load(); got != 1 {
		t.Errorf("peak in-flight calls = %d, want 1", got)
	}
	got := []string{first, second}
	if !(strings.HasPrefix(got[0], "doc: ") || strings.HasPrefix(got[1], "doc: ")) ||
		!(strings.HasPrefix(got[0], "query: ") || strings.HasPrefix(got[1], "query: ")) {
		t.Errorf("instruction prefixes missing: %q", got)
	}
}

func TestWithInstruction_EmptyKeepsInner(t *testing.T) {
	inner := &blockingEmbedder{}
	if got := withInstruction(inner, ""); got != domain.Embedder(inner) {
		t.Errorf("withInstruction(\"\") = %T, want the inner embedder", got)
	}
}

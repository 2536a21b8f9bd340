package embcache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/kbase/internal/db"
	"github.com/kailas-cloud/kbase/internal/domain"
)

func TestEmbed_CacheMiss(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding:   []float32{0.1, 0.2, 0.3},
		TotalTokens: 10,
	}}
	ce, ms := newTestCachedEmbedder(t, inner)
	ctx := context.Background()

	var setKey string
	var setTTL time.Duration
	ms.setFn = func(_ context.Context, key string, _ []byte, ttl time.Duration) error {
		setKey, setTTL = key, ttl
		return nil
	}

	result, err := ce.Embed(ctx, "test text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 || result.Embedding[0] != 0.1 {
		t.Fatalf("unexpected vector: %v", result.Embedding)
	}
	if result.TotalTokens != 10 {
		t.Fatalf("expected TotalTokens=10, got %d", result.TotalTokens)
	}
	if !strings.HasPrefix(setKey, "kbase:emb_cache:text-embedding-3-small:") {
		t.Fatalf("unexpected cache key: %s", setKey)
	}
	if setTTL != DefaultTTL {
		t.Fatalf("expected default ttl, got %v", setTTL)
	}
}

func TestEmbed_CacheHit(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.1}}}
	ce, ms := newTestCachedEmbedder(t, inner)

	cached := vectorToCacheBytes([]float32{0.4, 0.5, 0.6})
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) { return cached, nil }

	result, err := ce.Embed(context.Background(), "test text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 || result.Embedding[0] != 0.4 {
		t.Fatalf("expected cached vector, got: %v", result.Embedding)
	}
	if result.TotalTokens != 0 {
		t.Fatalf("expected TotalTokens=0 on cache hit, got %d", result.TotalTokens)
	}
	if inner.calls != 0 {
		t.Fatalf("inner embedder called %d times on hit", inner.calls)
	}
}

func TestEmbed_InnerErrorNotCached(t *testing.T) {
	inner := &mockEmbedder{err: domain.ErrProviderTimeout}
	ce, ms := newTestCachedEmbedder(t, inner)
	ms.setFn = func(context.Context, string, []byte, time.Duration) error {
		t.Fatal("errors must not be cached")
		return nil
	}

	_, err := ce.Embed(context.Background(), "test text")
	if !errors.Is(err, domain.ErrProviderTimeout) {
		t.Fatalf("expected ErrProviderTimeout, got %v", err)
	}
}

func TestEmbed_StoreErrorFallsThrough(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	ce, ms := newTestCachedEmbedder(t, inner)
	ms.getFn = func(context.Context, string) ([]byte, error) { return nil, errors.New("conn refused") }
	ms.setFn = func(context.Context, string, []byte, time.Duration) error { return errors.New("conn refused") }

	result, err := ce.Embed(context.Background(), "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 1 || inner.calls != 1 {
		t.Fatalf("expected inner result, got %v (calls=%d)", result.Embedding, inner.calls)
	}
}

func TestEmbed_CorruptEntryIsMiss(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	ce, ms := newTestCachedEmbedder(t, inner)
	ms.getFn = func(context.Context, string) ([]byte, error) { return []byte{1, 2, 3}, nil }

	if _, err := ce.Embed(context.Background(), "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected inner call on corrupt entry, got %d", inner.calls)
	}
}

func TestCacheKey_DependsOnModel(t *testing.T) {
	a := New(&mockEmbedder{}, &mockKVStore{}, "kbase:", "m1", nil)
	b := New(&mockEmbedder{}, &mockKVStore{}, "kbase:", "m2", nil)
	if a.cacheKey("same") == b.cacheKey("same") {
		t.Fatal("keys of different models collide")
	}
	if a.cacheKey("one") == a.cacheKey("two") {
		t.Fatal("keys of different texts collide")
	}
}

func TestEmbed_CountsHitsAndMisses(t *testing.T) {
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_cache_total"}, []string{"result"})
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	ce, ms := newTestCachedEmbedder(t, inner, WithCacheCounter(cv), WithTTL(time.Hour))

	stored := map[string][]byte{}
	ms.getFn = func(_ context.Context, key string) ([]byte, error) {
		if v, ok := stored[key]; ok {
			return v, nil
		}
		return nil, db.ErrKeyNotFound
	}
	ms.setFn = func(_ context.Context, key string, v []byte, ttl time.Duration) error {
		if ttl != time.Hour {
			t.Errorf("ttl = %v", ttl)
		}
		stored[key] = v
		return nil
	}

	ctx := context.Background()
	_, _ = ce.Embed(ctx, "a")
	_, _ = ce.Embed(ctx, "a")

	if got := testutil.ToFloat64(cv.WithLabelValues("miss")); got != 1 {
		t.Errorf("misses = %v", got)
	}
	if got := testutil.ToFloat64(cv.WithLabelValues("hit")); got != 1 {
		t.Errorf("hits = %v", got)
	}
}

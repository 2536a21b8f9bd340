package document

import (
	"context"
	"testing"
	"time"

	"github.com/kailas-cloud/kbase/internal/db"
	domdoc "github.com/kailas-cloud/kbase/internal/domain/document"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	hsetFn         func(ctx context.Context, key string, fields map[string]string) error
	hgetFn         func(ctx context.Context, key, field string) (string, error)
	hgetAllFn      func(ctx context.Context, key string) (map[string]string, error)
	hgetAllMultiFn func(ctx context.Context, keys []string) ([]map[string]string, error)
	delFn          func(ctx context.Context, key string) error
	incrFn         func(ctx context.Context, key string) (int64, error)
	zaddFn         func(ctx context.Context, key string, score int64, member string) error
	zremFn         func(ctx context.Context, key, member string) (bool, error)
	zrangeFn       func(ctx context.Context, key string) ([]string, error)
}

func (m *mockStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if m.hsetFn != nil {
		return m.hsetFn(ctx, key, fields)
	}
	return nil
}

func (m *mockStore) HGet(ctx context.Context, key, field string) (string, error) {
	if m.hgetFn != nil {
		return m.hgetFn(ctx, key, field)
	}
	return "", db.ErrKeyNotFound
}

func (m *mockStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if m.hgetAllFn != nil {
		return m.hgetAllFn(ctx, key)
	}
	return map[string]string{}, nil
}

func (m *mockStore) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	if m.hgetAllMultiFn != nil {
		return m.hgetAllMultiFn(ctx, keys)
	}
	return make([]map[string]string, len(keys)), nil
}

func (m *mockStore) Del(ctx context.Context, key string) error {
	if m.delFn != nil {
		return m.delFn(ctx, key)
	}
	return nil
}

func (m *mockStore) Incr(ctx context.Context, key string) (int64, error) {
	if m.incrFn != nil {
		return m.incrFn(ctx, key)
	}
	return 1, nil
}

func (m *mockStore) ZAdd(ctx context.Context, key string, score int64, member string) error {
	if m.zaddFn != nil {
		return m.zaddFn(ctx, key, score, member)
	}
	return nil
}

func (m *mockStore) ZRem(ctx context.Context, key, member string) (bool, error) {
	if m.zremFn != nil {
		return m.zremFn(ctx, key, member)
	}
	return false, nil
}

func (m *mockStore) ZRangeAll(ctx context.Context, key string) ([]string, error) {
	if m.zrangeFn != nil {
		return m.zrangeFn(ctx, key)
	}
	return nil, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return New(ms, ""), ms
}

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testDocument(t *testing.T) domdoc.Document {
	t.Helper()
	doc, err := domdoc.New("notes", "a.txt", domdoc.SourceUpload, "hello world", testNow)
	if err != nil {
		t.Fatalf("new document: %v", err)
	}
	return doc.WithEmbedding([]float32{0.5, -1, 2})
}

// hashOf renders the stored form of doc, for HGetAll fakes.
func hashOf(doc domdoc.Document) map[string]string {
	return buildHashFields(&doc)
}

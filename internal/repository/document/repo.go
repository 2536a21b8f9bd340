package document

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/kailas-cloud/kbase/internal/db"
	"github.com/kailas-cloud/kbase/internal/domain"
	domdoc "github.com/kailas-cloud/kbase/internal/domain/document"
)

// DefaultKeyPrefix namespaces every key the repository writes.
const DefaultKeyPrefix = "kbase:"

// store is the consumer interface for documents (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, key string) error
	Incr(ctx context.Context, key string) (int64, error)
	ZAdd(ctx context.Context, key string, score int64, member string) error
	ZRem(ctx context.Context, key, member string) (bool, error)
	ZRangeAll(ctx context.Context, key string) ([]string, error)
}

// Repo keeps each document in one hash and each project's creation order in
// a sorted set scored by id. The hash is written before the id joins the set
// and the id leaves the set before the hash is deleted, so a scan never sees
// a partial record.
type Repo struct {
	store  store
	prefix string
}

// New creates a Redis-backed document repository.
func New(s store, keyPrefix string) *Repo {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &Repo{store: s, prefix: keyPrefix}
}

// Insert assigns a new id and stores the document.
func (r *Repo) Insert(ctx context.Context, doc domdoc.Document) (int64, error) {
	id, err := r.store.Incr(ctx, r.seqKey())
	if err != nil {
		return 0, fmt.Errorf("allocate id: %w: %w", domain.ErrStore, err)
	}
	stored := doc.WithID(id)
	key := r.docKey(id)
	if err := r.store.HSet(ctx, key, buildHashFields(&stored)); err != nil {
		return 0, fmt.Errorf("hset %s: %w: %w", key, domain.ErrStore, err)
	}
	if pendingIndex(&stored) {
		if err := r.store.ZAdd(ctx, r.unindexedKey(doc.ProjectID()), id, formatID(id)); err != nil {
			_ = r.store.Del(ctx, key)
			return 0, fmt.Errorf("zadd unindexed %s: %w: %w", doc.ProjectID(), domain.ErrStore, err)
		}
	}
	if err := r.store.ZAdd(ctx, r.projectKey(doc.ProjectID()), id, formatID(id)); err != nil {
		_ = r.store.Del(ctx, key)
		return 0, fmt.Errorf("zadd %s: %w: %w", doc.ProjectID(), domain.ErrStore, err)
	}
	return id, nil
}

// Update replaces an existing document of the same project in one HSET.
// The unindexed set gains the id before the hash changes and loses it after,
// so it always covers every embedded document missing from the index.
func (r *Repo) Update(ctx context.Context, doc domdoc.Document) error {
	if err := r.checkOwner(ctx, doc.ProjectID(), doc.ID()); err != nil {
		return err
	}
	pending := pendingIndex(&doc)
	if pending {
		if err := r.store.ZAdd(ctx, r.unindexedKey(doc.ProjectID()), doc.ID(), formatID(doc.ID())); err != nil {
			return fmt.Errorf("zadd unindexed %s/%d: %w: %w", doc.ProjectID(), doc.ID(), domain.ErrStore, err)
		}
	}
	key := r.docKey(doc.ID())
	if err := r.store.HSet(ctx, key, buildHashFields(&doc)); err != nil {
		return fmt.Errorf("hset %s: %w: %w", key, domain.ErrStore, err)
	}
	if !pending {
		if _, err := r.store.ZRem(ctx, r.unindexedKey(doc.ProjectID()), formatID(doc.ID())); err != nil {
			return fmt.Errorf("zrem unindexed %s/%d: %w: %w", doc.ProjectID(), doc.ID(), domain.ErrStore, err)
		}
	}
	return nil
}

// Delete removes a document; deleting an absent one is ErrDocumentNotFound.
func (r *Repo) Delete(ctx context.Context, projectID string, id int64) error {
	removed, err := r.store.ZRem(ctx, r.projectKey(projectID), formatID(id))
	if err != nil {
		return fmt.Errorf("zrem %s/%d: %w: %w", projectID, id, domain.ErrStore, err)
	}
	if !removed {
		return fmt.Errorf("document %d in project %s: %w", id, projectID, domain.ErrDocumentNotFound)
	}
	key := r.docKey(id)
	if err := r.store.Del(ctx, key); err != nil {
		return fmt.Errorf("del %s: %w: %w", key, domain.ErrStore, err)
	}
	if _, err := r.store.ZRem(ctx, r.unindexedKey(projectID), formatID(id)); err != nil {
		return fmt.Errorf("zrem unindexed %s/%d: %w: %w", projectID, id, domain.ErrStore, err)
	}
	return nil
}

// Get returns one document of the project.
func (r *Repo) Get(ctx context.Context, projectID string, id int64) (domdoc.Document, error) {
	key := r.docKey(id)
	m, err := r.store.HGetAll(ctx, key)
	if err != nil {
		return domdoc.Document{}, fmt.Errorf("hgetall %s: %w: %w", key, domain.ErrStore, err)
	}
	doc, ok := parseHashFields(id, m)
	if !ok || doc.ProjectID() != projectID {
		return domdoc.Document{}, fmt.Errorf("document %d in project %s: %w", id, projectID, domain.ErrDocumentNotFound)
	}
	return doc, nil
}

// Scan returns every document of the project in creation order.
func (r *Repo) Scan(ctx context.Context, projectID string) ([]domdoc.Document, error) {
	ids, err := r.members(ctx, r.projectKey(projectID))
	if err != nil {
		return nil, fmt.Errorf("zrange %s: %w: %w", projectID, domain.ErrStore, err)
	}
	return r.GetMany(ctx, projectID, ids)
}

// Unindexed returns the project's embedded documents that the candidate
// index does not hold yet, in creation order.
func (r *Repo) Unindexed(ctx context.Context, projectID string) ([]domdoc.Document, error) {
	ids, err := r.members(ctx, r.unindexedKey(projectID))
	if err != nil {
		return nil, fmt.Errorf("zrange unindexed %s: %w: %w", projectID, domain.ErrStore, err)
	}
	docs, err := r.GetMany(ctx, projectID, ids)
	if err != nil {
		return nil, err
	}
	out := docs[:0]
	for i := range docs {
		if pendingIndex(&docs[i]) {
			out = append(out, docs[i])
		}
	}
	return out, nil
}

func (r *Repo) members(ctx context.Context, key string) ([]int64, error) {
	members, err := r.store.ZRangeAll(ctx, key)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// GetMany loads documents by id, keeping the given order and silently
// dropping ids that are missing or owned by another project.
func (r *Repo) GetMany(ctx context.Context, projectID string, ids []int64) ([]domdoc.Document, error) {
	if len(ids) == 0 {
		return []domdoc.Document{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.docKey(id)
	}
	maps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w: %w", projectID, domain.ErrStore, err)
	}
	docs := make([]domdoc.Document, 0, len(maps))
	for i, m := range maps {
		doc, ok := parseHashFields(ids[i], m)
		if !ok || doc.ProjectID() != projectID {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (r *Repo) checkOwner(ctx context.Context, projectID string, id int64) error {
	key := r.docKey(id)
	owner, err := r.store.HGet(ctx, key, fieldProject)
	if errors.Is(err, db.ErrKeyNotFound) || (err == nil && owner != projectID) {
		return fmt.Errorf("document %d in project %s: %w", id, projectID, domain.ErrDocumentNotFound)
	}
	if err != nil {
		return fmt.Errorf("hget %s: %w: %w", key, domain.ErrStore, err)
	}
	return nil
}

func (r *Repo) seqKey() string { return r.prefix + "doc_seq" }

func (r *Repo) docKey(id int64) string { return r.prefix + "doc:" + formatID(id) }

func (r *Repo) projectKey(projectID string) string {
	return r.prefix + "project:" + projectID + ":docs"
}

func (r *Repo) unindexedKey(projectID string) string {
	return r.prefix + "project:" + projectID + ":unindexed"
}

func pendingIndex(doc *domdoc.Document) bool {
	return doc.HasEmbedding() && !doc.Indexed()
}

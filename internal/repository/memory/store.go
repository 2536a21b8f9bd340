// Package memory is an in-process document store for tests, the CLI and
// single-node setups without Redis or Postgres.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/kailas-cloud/kbase/internal/domain"
	domdoc "github.com/kailas-cloud/kbase/internal/domain/document"
)

// Store keeps documents in a map and each project's ids in creation order.
type Store struct {
	mu       sync.RWMutex
	nextID   int64
	docs     map[int64]domdoc.Document
	projects map[string][]int64
}

// New creates an empty store.
func New() *Store {
	return &Store{
		docs:     make(map[int64]domdoc.Document),
		projects: make(map[string][]int64),
	}
}

// Insert assigns the next id and stores a copy of doc.
func (s *Store) Insert(_ context.Context, doc domdoc.Document) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.docs[id] = clone(doc.WithID(id))
	s.projects[doc.ProjectID()] = append(s.projects[doc.ProjectID()], id)
	return id, nil
}

// Update replaces the document with the same id and project.
func (s *Store) Update(_ context.Context, doc domdoc.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.docs[doc.ID()]
	if !ok || cur.ProjectID() != doc.ProjectID() {
		return notFound(doc.ProjectID(), doc.ID())
	}
	s.docs[doc.ID()] = clone(doc)
	return nil
}

// Delete removes a document of the project.
func (s *Store) Delete(_ context.Context, projectID string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.docs[id]
	if !ok || cur.ProjectID() != projectID {
		return notFound(projectID, id)
	}
	delete(s.docs, id)
	ids := s.projects[projectID]
	if i := slices.Index(ids, id); i >= 0 {
		s.projects[projectID] = slices.Delete(ids, i, i+1)
	}
	return nil
}

// Get returns a copy of one document.
func (s *Store) Get(_ context.Context, projectID string, id int64) (domdoc.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cur, ok := s.docs[id]
	if !ok || cur.ProjectID() != projectID {
		return domdoc.Document{}, notFound(projectID, id)
	}
	return clone(cur), nil
}

// Scan returns copies of every project document in creation order.
func (s *Store) Scan(_ context.Context, projectID string) ([]domdoc.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.projects[projectID]
	out := make([]domdoc.Document, 0, len(ids))
	for _, id := range ids {
		out = append(out, clone(s.docs[id]))
	}
	return out, nil
}

// GetMany returns copies of the requested documents, skipping unknown ids.
func (s *Store) GetMany(_ context.Context, projectID string, ids []int64) ([]domdoc.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domdoc.Document, 0, len(ids))
	for _, id := range ids {
		cur, ok := s.docs[id]
		if !ok || cur.ProjectID() != projectID {
			continue
		}
		out = append(out, clone(cur))
	}
	return out, nil
}

// Unindexed returns copies of the project's embedded documents that are not
// mirrored in the candidate index, in creation order.
func (s *Store) Unindexed(_ context.Context, projectID string) ([]domdoc.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domdoc.Document
	for _, id := range s.projects[projectID] {
		cur := s.docs[id]
		if cur.HasEmbedding() && !cur.Indexed() {
			out = append(out, clone(cur))
		}
	}
	return out, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// clone detaches the embedding slice from the caller's copy.
func clone(doc domdoc.Document) domdoc.Document {
	if !doc.HasEmbedding() {
		return doc
	}
	c := doc.WithEmbedding(doc.Embedding())
	return c.WithIndexed(doc.Indexed())
}

func notFound(projectID string, id int64) error {
	return fmt.Errorf("document %d in project %s: %w", id, projectID, domain.ErrDocumentNotFound)
}

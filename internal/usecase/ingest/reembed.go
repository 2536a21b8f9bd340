package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/kbase/internal/domain/batch"
	domdoc "github.com/kailas-cloud/kbase/internal/domain/document"
	"github.com/kailas-cloud/kbase/internal/events"
)

// ReembedDegraded retries the embedding of every degraded document of the
// project. Results follow creation order. A document edited while its
// embedding was computed is left to the newer write.
func (s *Service) ReembedDegraded(ctx context.Context, projectID string) ([]batch.Result, error) {
	docs, err := s.List(ctx, projectID, ListFilter{DegradedOnly: true})
	if err != nil {
		return nil, err
	}

	results := make([]batch.Result, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.reembedWorkers)
	for i := range docs {
		doc := docs[i]
		g.Go(func() error {
			results[i] = s.reembedOne(gctx, doc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("reembed project %s: %w", projectID, err)
	}

	embedded, failed := batch.Count(results)
	s.logger.Info("Re-embedded degraded documents",
		zap.String("project", projectID),
		zap.Int("embedded", embedded),
		zap.Int("failed", failed),
	)
	return results, nil
}

func (s *Service) reembedOne(ctx context.Context, doc domdoc.Document) batch.Result {
	embedded, embedErr := s.embed(ctx, doc)
	if embedErr != nil {
		return batch.NewFailed(doc.ID(), embedErr)
	}

	unlock := s.locks.lock(doc.ProjectID())
	current, err := s.store.Get(ctx, doc.ProjectID(), doc.ID())
	if err == nil && current.Content() != doc.Content() {
		err = fmt.Errorf("document %d changed during re-embedding", doc.ID())
	}
	if err == nil {
		err = s.store.Update(ctx, embedded)
	}
	unlock()
	if err != nil {
		return batch.NewFailed(doc.ID(), err)
	}

	s.addToIndex(ctx, embedded)
	s.publish(ctx, events.SubjectIngested, events.DocumentEvent{
		ProjectID:  embedded.ProjectID(),
		DocumentID: embedded.ID(),
		Filename:   embedded.Filename(),
		SourceType: string(embedded.SourceType()),
		At:         s.now().UTC(),
	})
	return batch.NewEmbedded(doc.ID())
}

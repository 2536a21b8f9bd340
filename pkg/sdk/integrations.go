package kbase

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/kailas-cloud/kbase/internal/events"
	"github.com/kailas-cloud/kbase/internal/repository/qdrant"
	healthuc "github.com/kailas-cloud/kbase/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/kbase/internal/usecase/ingest"
	retrievaluc "github.com/kailas-cloud/kbase/internal/usecase/retrieval"
)

// integrations holds the optional candidate index and event publisher as
// service options. Nothing is appended for a disabled integration.
type integrations struct {
	ingestOpts    []ingestuc.Option
	retrievalOpts []retrievaluc.Option
	healthOpts    []healthuc.Option
	closers       []func()
}

func (x *integrations) close() {
	for _, c := range slices.Backward(x.closers) {
		c()
	}
}

// candidateIndex is what the services and health checks use from an index.
type candidateIndex interface {
	ingestuc.Index
	retrievaluc.CandidateIndex
	healthuc.Checker
}

func (x *integrations) withIndex(idx candidateIndex) {
	x.ingestOpts = append(x.ingestOpts, ingestuc.WithIndex(idx))
	x.retrievalOpts = append(x.retrievalOpts, retrievaluc.WithIndex(idx))
	x.healthOpts = append(x.healthOpts, healthuc.WithCheck("index", idx))
}

func openIntegrations(ctx context.Context, cfg *clientConfig) (*integrations, error) {
	ext := &integrations{}

	if cfg.qdrantAddr != "" {
		if cfg.qdrantCollection == "" || cfg.qdrantDims <= 0 {
			return nil, errors.New("kbase: qdrant collection and dimensions required")
		}
		idx, err := qdrant.New(cfg.qdrantAddr, cfg.qdrantCollection, cfg.qdrantPlaintext)
		if err != nil {
			return nil, fmt.Errorf("kbase: create qdrant index: %w", err)
		}
		if err := idx.EnsureCollection(ctx, cfg.qdrantDims); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("kbase: ensure qdrant collection: %w", err)
		}
		ext.withIndex(idx)
		ext.closers = append(ext.closers, func() { _ = idx.Close() })
	}

	if cfg.natsURL != "" {
		nc, err := events.Connect(cfg.natsURL, "kbase-sdk")
		if err != nil {
			ext.close()
			return nil, fmt.Errorf("kbase: %w", err)
		}
		pub := events.NewPublisher(nc, cfg.natsPrefix)
		ext.ingestOpts = append(ext.ingestOpts, ingestuc.WithPublisher(pub))
		ext.healthOpts = append(ext.healthOpts, healthuc.WithCheck("events", pub))
		ext.closers = append(ext.closers, func() { _ = nc.Drain() })
	}

	return ext, nil
}

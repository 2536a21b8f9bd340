package kbase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/kbase/internal/crawl"
	dbRedis "github.com/kailas-cloud/kbase/internal/db/redis"
	"github.com/kailas-cloud/kbase/internal/domain"
	"github.com/kailas-cloud/kbase/internal/domain/batch"
	domdoc "github.com/kailas-cloud/kbase/internal/domain/document"
	"github.com/kailas-cloud/kbase/internal/domain/ingest"
	"github.com/kailas-cloud/kbase/internal/domain/search/hit"
	"github.com/kailas-cloud/kbase/internal/domain/search/query"
	"github.com/kailas-cloud/kbase/internal/extract"
	documentrepo "github.com/kailas-cloud/kbase/internal/repository/document"
	"github.com/kailas-cloud/kbase/internal/repository/memory"
	"github.com/kailas-cloud/kbase/internal/repository/postgres"
	healthuc "github.com/kailas-cloud/kbase/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/kbase/internal/usecase/ingest"
	retrievaluc "github.com/kailas-cloud/kbase/internal/usecase/retrieval"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	defaultKeyPrefix        = "kbase:"
)

// Internal interfaces, swapped for fakes in tests.
type ingestUseCase interface {
	Ingest(ctx context.Context, projectID string, src ingestuc.Source) (ingest.Outcome, error)
	Reingest(ctx context.Context, projectID string, id int64, src ingestuc.Source) (ingest.Outcome, error)
	Delete(ctx context.Context, projectID string, id int64) error
	Get(ctx context.Context, projectID string, id int64) (domdoc.Document, error)
	List(ctx context.Context, projectID string, f ingestuc.ListFilter) ([]domdoc.Document, error)
	ReembedDegraded(ctx context.Context, projectID string) ([]batch.Result, error)
}

type retrievalUseCase interface {
	Search(ctx context.Context, q query.Query) ([]hit.Hit, error)
}

type documentStore interface {
	ingestuc.Store
	GetMany(ctx context.Context, projectID string, ids []int64) ([]domdoc.Document, error)
	Unindexed(ctx context.Context, projectID string) ([]domdoc.Document, error)
}

// Client is the kbase SDK entry point.
type Client struct {
	closeFn      func()
	pinger       healthuc.Pinger
	ingestSvc    ingestUseCase
	retrievalSvc retrievalUseCase
	healthSvc    healthUseCase
	obs          *observer
}

// New creates a kbase Client and connects to the selected storage.
// The provided context is used for the initial readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{keyPrefix: defaultKeyPrefix}
	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.driver == "" {
		return nil, errors.New("kbase: storage required (use WithMemory, WithRedis or WithPostgres)")
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	docs, pinger, closeFn, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	ext, err := openIntegrations(ctx, cfg)
	if err != nil {
		closeFn()
		return nil, err
	}

	c, err := wireClient(docs, pinger, cfg, obs, ext)
	if err != nil {
		ext.close()
		closeFn()
		return nil, err
	}
	c.closeFn = func() {
		ext.close()
		closeFn()
	}
	return c, nil
}

func openStore(ctx context.Context, cfg *clientConfig) (documentStore, healthuc.Pinger, func(), error) {
	switch cfg.driver {
	case driverMemory:
		s := memory.New()
		return s, s, func() {}, nil
	case driverRedis:
		if len(cfg.addrs) == 0 || cfg.addrs[0] == "" {
			return nil, nil, nil, errors.New("kbase: redis address required")
		}
		s, err := dbRedis.NewStore(dbRedis.Config{Addrs: cfg.addrs, Password: cfg.password})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("kbase: create redis store: %w", err)
		}
		if err := s.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			s.Close()
			return nil, nil, nil, fmt.Errorf("kbase: database not ready: %w", err)
		}
		return documentrepo.New(s, cfg.keyPrefix), s, s.Close, nil
	case driverPostgres:
		s, err := postgres.Open(ctx, cfg.dsn)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("kbase: open postgres: %w", err)
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, nil, nil, fmt.Errorf("kbase: migrate postgres: %w", err)
		}
		return s, s, func() { _ = s.Close() }, nil
	default:
		return nil, nil, nil, fmt.Errorf("kbase: unknown driver %q", cfg.driver)
	}
}

func wireClient(docs documentStore, pinger healthuc.Pinger, cfg *clientConfig, obs *observer, ext *integrations) (*Client, error) {
	formats := make([]extract.Format, 0, len(cfg.disabledFormats))
	for _, name := range cfg.disabledFormats {
		f, err := extract.ParseFormat(name)
		if err != nil {
			return nil, fmt.Errorf("kbase: %w", err)
		}
		formats = append(formats, f)
	}

	// Embedder: noop if not set (documents are stored unembedded)
	var emb domain.Embedder = noopEmbedder{}
	if cfg.embedder != nil {
		emb = &embedderAdapter{inner: cfg.embedder}
	}
	var docEmb, queryEmb = emb, emb
	if cfg.documentInstruction != "" {
		docEmb = domain.NewInstructionEmbedder(emb, cfg.documentInstruction)
	}
	if cfg.queryInstruction != "" {
		queryEmb = domain.NewInstructionEmbedder(emb, cfg.queryInstruction)
	}

	logger := zap.NewNop()
	ingestOpts := append([]ingestuc.Option{ingestuc.WithReembedWorkers(cfg.reembedWorkers)}, ext.ingestOpts...)
	ingestSvc := ingestuc.New(docs,
		extract.New(extract.WithDisabledFormats(formats...)),
		crawl.New(crawl.Config{}, logger),
		docEmb, logger,
		ingestOpts...,
	)

	return &Client{
		pinger:       pinger,
		ingestSvc:    ingestSvc,
		retrievalSvc: retrievaluc.New(docs, queryEmb, logger, ext.retrievalOpts...),
		healthSvc:    healthuc.New(pinger, ext.healthOpts...),
		obs:          obs,
	}, nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.closeFn != nil {
		c.closeFn()
	}
}

// Ping checks storage connectivity.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if err = c.pinger.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Documents returns the document service for a project.
func (c *Client) Documents(projectID string) *DocumentService {
	return &DocumentService{projectID: projectID, svc: c.ingestSvc, obs: c.obs}
}

// Search returns the search service for a project.
func (c *Client) Search(projectID string) *SearchService {
	return &SearchService{projectID: projectID, svc: c.retrievalSvc, obs: c.obs}
}

// embedderAdapter wraps public Embedder to satisfy internal domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("%w: %w", domain.ErrProvider, err)
	}
	return domain.EmbeddingResult{Embedding: r.Embedding, TotalTokens: r.TotalTokens}, nil
}

// noopEmbedder fails every call (used when no embedder is configured).
type noopEmbedder struct{}

func (noopEmbedder) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{}, fmt.Errorf("%w: embedder (use WithEmbedder)", domain.ErrNotConfigured)
}

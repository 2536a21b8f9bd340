package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/kbase/internal/config"
	"github.com/kailas-cloud/kbase/internal/crawl"
	dbRedis "github.com/kailas-cloud/kbase/internal/db/redis"
	"github.com/kailas-cloud/kbase/internal/domain"
	domdoc "github.com/kailas-cloud/kbase/internal/domain/document"
	"github.com/kailas-cloud/kbase/internal/events"
	"github.com/kailas-cloud/kbase/internal/extract"
	logpkg "github.com/kailas-cloud/kbase/internal/logger"
	"github.com/kailas-cloud/kbase/internal/metrics"
	"github.com/kailas-cloud/kbase/internal/observability"
	documentrepo "github.com/kailas-cloud/kbase/internal/repository/document"
	"github.com/kailas-cloud/kbase/internal/repository/embcache"
	"github.com/kailas-cloud/kbase/internal/repository/memory"
	"github.com/kailas-cloud/kbase/internal/repository/postgres"
	"github.com/kailas-cloud/kbase/internal/repository/qdrant"
	chiTransport "github.com/kailas-cloud/kbase/internal/transport/chi"
	"github.com/kailas-cloud/kbase/internal/transport/imagen"
	openaiTransport "github.com/kailas-cloud/kbase/internal/transport/openai"
	answeruc "github.com/kailas-cloud/kbase/internal/usecase/answer"
	embeddinguc "github.com/kailas-cloud/kbase/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/kbase/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/kbase/internal/usecase/ingest"
	retrievaluc "github.com/kailas-cloud/kbase/internal/usecase/retrieval"
	"github.com/kailas-cloud/kbase/internal/version"
)

// documentStore is what the ingest and retrieval services need from storage.
type documentStore interface {
	Insert(ctx context.Context, doc domdoc.Document) (int64, error)
	Update(ctx context.Context, doc domdoc.Document) error
	Delete(ctx context.Context, projectID string, id int64) error
	Get(ctx context.Context, projectID string, id int64) (domdoc.Document, error)
	Scan(ctx context.Context, projectID string) ([]domdoc.Document, error)
	GetMany(ctx context.Context, projectID string, ids []int64) ([]domdoc.Document, error)
	Unindexed(ctx context.Context, projectID string) ([]domdoc.Document, error)
}

// storage bundles the selected backend with its health check and cleanup.
type storage struct {
	docs    documentStore
	pinger  healthuc.Pinger
	redis   *dbRedis.Store // set for the redis driver; backs the embedding cache
	closeFn func()
}

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting kbase API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.String("index_driver", cfg.Index.Driver),
	)

	ctx := context.Background()

	tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version.Version,
		Environment:    env,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		Insecure:       cfg.Tracing.Insecure,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		logger.Fatal("Failed to init tracing", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Tracer shutdown failed", zap.Error(err))
		}
	}()

	store, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.Error(err))
	}
	defer store.closeFn()
	logger.Info("Connected to storage", zap.String("driver", cfg.Storage.Driver))

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterIngestMetrics()

	base := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Provider:   cfg.Embedding.Provider,
		Dimensions: cfg.Embedding.Dimensions,
	}, logger)
	docEmbedder, queryEmbedder := embedderChains(&cfg, base, store.redis, logger)
	logger.Info("Embedders created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Bool("cache", store.redis != nil && cfg.Embedding.Cache.Enabled),
	)

	healthOpts := []healthuc.Option{healthuc.WithCheck("embedding", base)}
	ingestOpts := []ingestuc.Option{ingestuc.WithReembedWorkers(cfg.Ingest.ReembedWorkers)}
	retrievalOpts := []retrievaluc.Option{retrievaluc.WithOversample(cfg.Retrieval.Oversample)}

	// Optional candidate index. Appended only when configured so the services
	// never see a typed nil.
	if cfg.Index.Driver == config.IndexDriverQdrant {
		idx, err := qdrant.New(cfg.Index.Addr, cfg.Index.Collection, cfg.Index.Insecure)
		if err != nil {
			logger.Fatal("Failed to create qdrant index", zap.Error(err))
		}
		defer func() { _ = idx.Close() }()
		if err := idx.EnsureCollection(ctx, cfg.Embedding.Dimensions); err != nil {
			logger.Fatal("Failed to ensure qdrant collection", zap.Error(err))
		}
		ingestOpts = append(ingestOpts, ingestuc.WithIndex(idx))
		retrievalOpts = append(retrievalOpts, retrievaluc.WithIndex(idx))
		healthOpts = append(healthOpts, healthuc.WithCheck("index", idx))
		logger.Info("Candidate index enabled", zap.String("collection", cfg.Index.Collection))
	}

	if cfg.Events.NATSURL != "" {
		nc, err := events.Connect(cfg.Events.NATSURL, "kbase")
		if err != nil {
			logger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer func() { _ = nc.Drain() }()
		pub := events.NewPublisher(nc, cfg.Events.SubjectPrefix)
		ingestOpts = append(ingestOpts, ingestuc.WithPublisher(pub))
		healthOpts = append(healthOpts, healthuc.WithCheck("events", pub))
		logger.Info("Lifecycle events enabled", zap.String("prefix", cfg.Events.SubjectPrefix))
	}

	extractor, err := buildExtractor(cfg.Extract)
	if err != nil {
		logger.Fatal("Invalid extract config", zap.Error(err))
	}
	crawler := crawl.New(crawl.Config{
		Timeout:           config.Seconds(cfg.Crawler.TimeoutSec),
		UserAgent:         cfg.Crawler.UserAgent,
		MaxBodyBytes:      cfg.Crawler.MaxBodyBytes,
		MaxRetries:        cfg.Crawler.MaxRetries,
		RequestsPerSecond: cfg.Crawler.RequestsPerSecond,
		Burst:             cfg.Crawler.Burst,
	}, logger)

	ingestSvc := ingestuc.New(store.docs, extractor, crawler, docEmbedder, logger, ingestOpts...)
	retrievalSvc := retrievaluc.New(store.docs, queryEmbedder, logger, retrievalOpts...)
	healthSvc := healthuc.New(store.pinger, healthOpts...)

	serverOpts := []chiTransport.Option{chiTransport.WithMaxUploadBytes(cfg.Extract.MaxUploadBytes)}
	if cfg.Generation.Model != "" {
		gen := openaiTransport.NewGenerator(&openaiTransport.Config{
			APIKey:   cfg.Generation.APIKey,
			BaseURL:  cfg.Generation.BaseURL,
			Model:    cfg.Generation.Model,
			Provider: cfg.Embedding.Provider,
			Timeout:  config.Seconds(cfg.Generation.TimeoutSec),
		}, logger)
		serverOpts = append(serverOpts, chiTransport.WithAsker(answeruc.New(retrievalSvc, gen, logger)))
		logger.Info("Answer generation enabled", zap.String("model", cfg.Generation.Model))
	}
	if cfg.Imagen.APIKey != "" {
		serverOpts = append(serverOpts, chiTransport.WithImages(imagen.New(imagen.Config{
			APIKey:      cfg.Imagen.APIKey,
			BaseURL:     cfg.Imagen.BaseURL,
			Model:       cfg.Imagen.Model,
			AspectRatio: cfg.Imagen.AspectRatio,
			Timeout:     config.Seconds(cfg.Imagen.TimeoutSec),
		}, logger)))
		logger.Info("Image generation enabled", zap.String("model", cfg.Imagen.Model))
	}

	server := chiTransport.NewServer(ingestSvc, retrievalSvc, healthSvc, logger, serverOpts...)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Handler(cfg.Auth.APIKeys),
		ReadTimeout:  config.Seconds(cfg.HTTP.ReadTimeoutSec),
		WriteTimeout: config.Seconds(cfg.HTTP.WriteTimeoutSec),
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Seconds(cfg.HTTP.ShutdownSec))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// openStorage builds the document store selected by storage.driver.
func openStorage(ctx context.Context, cfg config.StorageConfig) (*storage, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		s := memory.New()
		return &storage{docs: s, pinger: s, closeFn: func() {}}, nil
	case config.DriverRedis:
		rs, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Redis.Addrs,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		if err := rs.WaitForReady(ctx, config.Seconds(cfg.Redis.ReadinessTimeout)); err != nil {
			rs.Close()
			return nil, err
		}
		return &storage{
			docs:    documentrepo.New(rs, cfg.KeyPrefix),
			pinger:  rs,
			redis:   rs,
			closeFn: rs.Close,
		}, nil
	case config.DriverPostgres:
		pg, err := postgres.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, err
		}
		return &storage{docs: pg, pinger: pg, closeFn: func() { _ = pg.Close() }}, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// buildExtractor applies extract.disabled_formats.
func buildExtractor(cfg config.ExtractConfig) (*extract.Extractor, error) {
	formats := make([]extract.Format, 0, len(cfg.DisabledFormats))
	for _, name := range cfg.DisabledFormats {
		f, err := extract.ParseFormat(name)
		if err != nil {
			return nil, err
		}
		formats = append(formats, f)
	}
	return extract.New(extract.WithDisabledFormats(formats...)), nil
}

// embedderChains assembles provider -> cached -> instrumented once and puts the
// document and query instruction prefixes on top, so both sides share one
// concurrency cap and rate limit.
func embedderChains(
	cfg *config.Config,
	base domain.Embedder,
	cache *dbRedis.Store,
	logger *zap.Logger,
) (doc, query domain.Embedder) {
	shared := buildEmbedder(cfg, base, cache, logger)
	return withInstruction(shared, cfg.Embedding.DocumentInstruction),
		withInstruction(shared, cfg.Embedding.QueryInstruction)
}

// buildEmbedder assembles the decorator chain: provider -> cached -> instrumented
func buildEmbedder(
	cfg *config.Config,
	base domain.Embedder,
	cache *dbRedis.Store,
	logger *zap.Logger,
) domain.Embedder {
	embedder := base
	if cache != nil && cfg.Embedding.Cache.Enabled {
		embedder = embcache.New(base, cache, cfg.Storage.KeyPrefix, cfg.Embedding.Model, logger,
			embcache.WithTTL(time.Duration(cfg.Embedding.Cache.TTLHours)*time.Hour),
			embcache.WithCacheCounter(metrics.EmbeddingCacheTotal),
		)
	}

	return embeddinguc.NewInstrumentedEmbedder(embedder, cfg.Embedding.Provider, cfg.Embedding.Model,
		embeddinguc.Options{
			Timeout:           config.Seconds(cfg.Embedding.TimeoutSec),
			MaxRetries:        cfg.Embedding.MaxRetries,
			MaxConcurrent:     cfg.Embedding.MaxConcurrent,
			RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
			Burst:             cfg.Embedding.Burst,
		}, logger)
}

// withInstruction prefixes texts with instruction before they reach the
// shared chain, so cache keys include the prefix.
func withInstruction(inner domain.Embedder, instruction string) domain.Embedder {
	if instruction == "" {
		return inner
	}
	return domain.NewInstructionEmbedder(inner, instruction)
}

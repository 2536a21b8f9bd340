package chi

import (
	"context"
	"net/http"

	gochi "github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/kbase/internal/domain/batch"
	domdoc "github.com/kailas-cloud/kbase/internal/domain/document"
	"github.com/kailas-cloud/kbase/internal/domain/ingest"
	"github.com/kailas-cloud/kbase/internal/domain/search/hit"
	"github.com/kailas-cloud/kbase/internal/domain/search/query"
	"github.com/kailas-cloud/kbase/internal/metrics"
	"github.com/kailas-cloud/kbase/internal/transport/imagen"
	"github.com/kailas-cloud/kbase/internal/usecase/answer"
	healthuc "github.com/kailas-cloud/kbase/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/kbase/internal/usecase/ingest"
)

// DefaultMaxUploadBytes caps multipart uploads.
const DefaultMaxUploadBytes = 32 << 20

// Ingestor is the document lifecycle the API exposes.
type Ingestor interface {
	Ingest(ctx context.Context, projectID string, src ingestuc.Source) (ingest.Outcome, error)
	Reingest(ctx context.Context, projectID string, id int64, src ingestuc.Source) (ingest.Outcome, error)
	Delete(ctx context.Context, projectID string, id int64) error
	Get(ctx context.Context, projectID string, id int64) (domdoc.Document, error)
	List(ctx context.Context, projectID string, f ingestuc.ListFilter) ([]domdoc.Document, error)
	ReembedDegraded(ctx context.Context, projectID string) ([]batch.Result, error)
}

// Retriever ranks passages for a query.
type Retriever interface {
	Search(ctx context.Context, q query.Query) ([]hit.Hit, error)
}

// Asker answers questions from retrieved passages.
type Asker interface {
	Ask(ctx context.Context, projectID, question, rolePrompt string) (answer.Answer, error)
}

// ImageGenerator renders a prompt into an image.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (imagen.Image, error)
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// Server serves the HTTP API.
type Server struct {
	ingest         Ingestor
	retrieval      Retriever
	health         HealthChecker
	asker          Asker
	images         ImageGenerator
	maxUploadBytes int64
	logger         *zap.Logger
	errorHandlers  []errorHandler
}

// Option configures optional endpoints.
type Option func(*Server)

// WithAsker enables POST /ask.
func WithAsker(a Asker) Option {
	return func(s *Server) { s.asker = a }
}

// WithImages enables POST /images.
func WithImages(g ImageGenerator) Option {
	return func(s *Server) { s.images = g }
}

// WithMaxUploadBytes overrides DefaultMaxUploadBytes.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// NewServer creates an HTTP API server.
func NewServer(ingest Ingestor, retrieval Retriever, health HealthChecker, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		ingest:         ingest,
		retrieval:      retrieval,
		health:         health,
		maxUploadBytes: DefaultMaxUploadBytes,
		logger:         logger,
		errorHandlers:  defaultErrorHandlers,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler builds the router with the middleware chain.
func (s *Server) Handler(apiKeys []string) http.Handler {
	r := gochi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(BearerAuthMiddleware(apiKeys))
	r.Use(metrics.Middleware())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeBadRequest, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})

	r.Get("/health", s.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/projects/{project}", func(r gochi.Router) {
		r.Use(projectScope)
		r.Post("/documents/upload", s.UploadDocument)
		r.Post("/documents/manual", s.CreateManualDocument)
		r.Post("/documents/crawl", s.CrawlDocument)
		r.Post("/documents/reembed", s.ReembedDocuments)
		r.Get("/documents", s.ListDocuments)
		r.Get("/documents/{id}", s.GetDocument)
		r.Put("/documents/{id}", s.ReingestDocument)
		r.Delete("/documents/{id}", s.DeleteDocument)
		r.Post("/search", s.Search)
		r.Post("/ask", s.Ask)
		r.Post("/images", s.GenerateImage)
	})

	return otelhttp.NewHandler(r, "kbase.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	status := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, HealthResponse{Status: string(report.Status), Checks: checks})
}

func projectParam(r *http.Request) string {
	return gochi.URLParam(r, "project")
}

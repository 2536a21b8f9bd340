package ingest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/kailas-cloud/kbase/internal/domain"
	domdoc "github.com/kailas-cloud/kbase/internal/domain/document"
	"github.com/kailas-cloud/kbase/internal/domain/ingest"
	"github.com/kailas-cloud/kbase/internal/events"
	"github.com/kailas-cloud/kbase/internal/extract"
	"github.com/kailas-cloud/kbase/internal/metrics"
	"github.com/kailas-cloud/kbase/internal/observability"
)

// DefaultReembedWorkers bounds concurrent provider calls of ReembedDegraded.
const DefaultReembedWorkers = 4

// Service turns sources into stored documents: extract or crawl, embed, store.
// Embedding failures never abort ingestion; the document is stored degraded.
type Service struct {
	store          Store
	extractor      Extractor
	crawler        Crawler
	embedder       Embedder
	index          Index
	events         Publisher
	locks          *projectLocks
	reembedWorkers int
	now            func() time.Time
	logger         *zap.Logger
}

// Option configures optional collaborators.
type Option func(*Service)

// WithIndex mirrors embedded documents into a candidate index.
func WithIndex(idx Index) Option {
	return func(s *Service) { s.index = idx }
}

// WithPublisher emits lifecycle events.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.events = p }
}

// WithReembedWorkers overrides DefaultReembedWorkers.
func WithReembedWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.reembedWorkers = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates an ingestion service.
func New(store Store, extractor Extractor, crawler Crawler, embedder Embedder, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:          store,
		extractor:      extractor,
		crawler:        crawler,
		embedder:       embedder,
		locks:          newProjectLocks(),
		reembedWorkers: DefaultReembedWorkers,
		now:            time.Now,
		logger:         logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Ingest stores a new document built from src. A returned error means
// nothing was stored; an embedding failure is reported in the Outcome.
func (s *Service) Ingest(ctx context.Context, projectID string, src Source) (ingest.Outcome, error) {
	ctx, span := observability.StartSpan(ctx, "ingest.Ingest",
		attribute.String("project", projectID),
		attribute.String("source_type", string(src.Kind)),
	)
	defer span.End()

	out, err := s.ingest(ctx, projectID, src)
	observability.RecordError(span, err)
	if err == nil {
		span.SetAttributes(
			attribute.Int64("document_id", out.DocumentID()),
			attribute.String("status", string(out.Status())),
		)
	}
	return out, err
}

func (s *Service) ingest(ctx context.Context, projectID string, src Source) (ingest.Outcome, error) {
	if err := domdoc.ValidateProjectID(projectID); err != nil {
		return ingest.Outcome{}, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}

	filename, text, err := s.normalize(ctx, src, true)
	if err != nil {
		s.countFailed(src.Kind)
		return ingest.Outcome{}, err
	}

	doc, err := domdoc.New(projectID, filename, src.Kind, text, s.now())
	if err != nil {
		s.countFailed(src.Kind)
		return ingest.Outcome{}, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}

	doc, embedErr := s.embed(ctx, doc)

	unlock := s.locks.lock(projectID)
	id, err := s.store.Insert(ctx, doc)
	unlock()
	if err != nil {
		s.countFailed(src.Kind)
		return ingest.Outcome{}, fmt.Errorf("store document: %w", err)
	}
	doc = doc.WithID(id)

	return s.finish(ctx, doc, embedErr), nil
}

// Reingest replaces the content and embedding of an existing document.
// Id, project, source type and creation time are kept; the filename changes
// only when src names one.
func (s *Service) Reingest(ctx context.Context, projectID string, id int64, src Source) (ingest.Outcome, error) {
	current, err := s.store.Get(ctx, projectID, id)
	if err != nil {
		return ingest.Outcome{}, fmt.Errorf("get document: %w", err)
	}

	filename, text, err := s.normalize(ctx, src, false)
	if err != nil {
		s.countFailed(current.SourceType())
		return ingest.Outcome{}, err
	}

	doc, err := current.WithContent(filename, text, s.now())
	if err != nil {
		return ingest.Outcome{}, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}

	doc, embedErr := s.embed(ctx, doc)

	unlock := s.locks.lock(projectID)
	err = s.store.Update(ctx, doc)
	unlock()
	if err != nil {
		s.countFailed(doc.SourceType())
		return ingest.Outcome{}, fmt.Errorf("update document: %w", err)
	}

	return s.finish(ctx, doc, embedErr), nil
}

// Delete removes a document. Deleting an absent document is ErrDocumentNotFound.
func (s *Service) Delete(ctx context.Context, projectID string, id int64) error {
	unlock := s.locks.lock(projectID)
	err := s.store.Delete(ctx, projectID, id)
	unlock()
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	s.dropFromIndex(ctx, id)
	s.publish(ctx, events.SubjectDeleted, events.DocumentEvent{
		ProjectID:  projectID,
		DocumentID: id,
		At:         s.now().UTC(),
	})
	return nil
}

// Get returns one document.
func (s *Service) Get(ctx context.Context, projectID string, id int64) (domdoc.Document, error) {
	doc, err := s.store.Get(ctx, projectID, id)
	if err != nil {
		return domdoc.Document{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// List returns the project's documents in creation order.
func (s *Service) List(ctx context.Context, projectID string, f ListFilter) ([]domdoc.Document, error) {
	if err := domdoc.ValidateProjectID(projectID); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	docs, err := s.store.Scan(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("scan project: %w", err)
	}
	if !f.DegradedOnly {
		return docs, nil
	}
	out := make([]domdoc.Document, 0, len(docs))
	for i := range docs {
		if !docs[i].HasEmbedding() {
			out = append(out, docs[i])
		}
	}
	return out, nil
}

// normalize produces the filename and text of src. withDefaultName generates
// a manual filename when none is given.
func (s *Service) normalize(ctx context.Context, src Source, withDefaultName bool) (string, string, error) {
	switch src.Kind {
	case domdoc.SourceUpload:
		if src.Filename == "" {
			return "", "", fmt.Errorf("upload filename is required: %w", domain.ErrInvalidInput)
		}
		text, err := s.extractor.Extract(src.Data, src.Filename)
		if err != nil {
			s.countExtractionError(src.Filename, err)
			return "", "", fmt.Errorf("extract: %w", err)
		}
		return src.Filename, text, nil

	case domdoc.SourceManual:
		text := strings.TrimSpace(string(src.Data))
		if text == "" {
			return "", "", fmt.Errorf("manual content is empty: %w", domain.ErrInvalidInput)
		}
		filename := strings.TrimSpace(src.Filename)
		if filename == "" && withDefaultName {
			filename = "manual_" + s.now().UTC().Format("20060102_150405") + ".txt"
		}
		return filename, text, nil

	case domdoc.SourceCrawl:
		if s.crawler == nil {
			return "", "", fmt.Errorf("crawler: %w", domain.ErrNotConfigured)
		}
		page, err := s.crawler.Crawl(ctx, src.URL)
		if err != nil {
			return "", "", fmt.Errorf("crawl: %w", err)
		}
		return page.Filename, page.Text, nil

	default:
		return "", "", fmt.Errorf("source type %q: %w", src.Kind, domain.ErrInvalidInput)
	}
}

// embed returns doc with its embedding, or degraded with the reason.
// Blank text is never sent to the provider.
func (s *Service) embed(ctx context.Context, doc domdoc.Document) (domdoc.Document, error) {
	if strings.TrimSpace(doc.Content()) == "" {
		return doc.WithoutEmbedding(domain.ErrNothingToEmbed.Error()), domain.ErrNothingToEmbed
	}
	result, err := s.embedder.Embed(ctx, doc.Content())
	if err == nil && len(result.Embedding) == 0 {
		err = fmt.Errorf("empty vector: %w", domain.ErrProvider)
	}
	if err != nil {
		return doc.WithoutEmbedding(err.Error()), err
	}
	return doc.WithEmbedding(result.Embedding), nil
}

// finish runs the post-store side effects and builds the outcome.
func (s *Service) finish(ctx context.Context, doc domdoc.Document, embedErr error) ingest.Outcome {
	ev := events.DocumentEvent{
		ProjectID:  doc.ProjectID(),
		DocumentID: doc.ID(),
		Filename:   doc.Filename(),
		SourceType: string(doc.SourceType()),
		At:         doc.UpdatedAt(),
	}

	if embedErr != nil {
		reason := degradedReason(embedErr)
		metrics.IngestDocumentsTotal.WithLabelValues(string(doc.SourceType()), string(ingest.StatusNotEmbedded)).Inc()
		metrics.IngestDegradedTotal.WithLabelValues(reason).Inc()
		s.logger.Warn("Document stored without embedding",
			zap.String("project", doc.ProjectID()),
			zap.Int64("document_id", doc.ID()),
			zap.String("filename", doc.Filename()),
			zap.String("reason", reason),
			zap.Error(embedErr),
		)
		s.dropFromIndex(ctx, doc.ID())
		ev.Reason = embedErr.Error()
		s.publish(ctx, events.SubjectDegraded, ev)
		return ingest.NotEmbedded(doc, embedErr)
	}

	metrics.IngestDocumentsTotal.WithLabelValues(string(doc.SourceType()), string(ingest.StatusEmbedded)).Inc()
	s.addToIndex(ctx, doc)
	s.publish(ctx, events.SubjectIngested, ev)
	return ingest.Embedded(doc)
}

func (s *Service) addToIndex(ctx context.Context, doc domdoc.Document) {
	if s.index == nil {
		return
	}
	if err := s.index.Upsert(ctx, doc.ProjectID(), doc.ID(), doc.Embedding()); err != nil {
		metrics.IndexErrorsTotal.WithLabelValues("upsert").Inc()
		s.logger.Warn("Index upsert failed", zap.Int64("document_id", doc.ID()), zap.Error(err))
		return
	}
	s.markIndexed(ctx, doc)
}

// markIndexed records that the index holds doc's vector. A record whose
// embedding changed since the upsert keeps its flag cleared.
func (s *Service) markIndexed(ctx context.Context, doc domdoc.Document) {
	unlock := s.locks.lock(doc.ProjectID())
	defer unlock()

	current, err := s.store.Get(ctx, doc.ProjectID(), doc.ID())
	if err != nil {
		if !errors.Is(err, domain.ErrDocumentNotFound) {
			metrics.IndexErrorsTotal.WithLabelValues("mark").Inc()
			s.logger.Warn("Index flag lookup failed", zap.Int64("document_id", doc.ID()), zap.Error(err))
		}
		return
	}
	if current.Indexed() || !slices.Equal(current.Embedding(), doc.Embedding()) {
		return
	}
	if err := s.store.Update(ctx, current.WithIndexed(true)); err != nil {
		metrics.IndexErrorsTotal.WithLabelValues("mark").Inc()
		s.logger.Warn("Index flag update failed", zap.Int64("document_id", doc.ID()), zap.Error(err))
	}
}

func (s *Service) dropFromIndex(ctx context.Context, id int64) {
	if s.index == nil {
		return
	}
	if err := s.index.Delete(ctx, id); err != nil {
		metrics.IndexErrorsTotal.WithLabelValues("delete").Inc()
		s.logger.Warn("Index delete failed", zap.Int64("document_id", id), zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, subject string, ev events.DocumentEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, subject, ev); err != nil {
		metrics.EventPublishErrorsTotal.WithLabelValues(subject).Inc()
		s.logger.Warn("Event publish failed", zap.String("subject", subject), zap.Error(err))
	}
}

func (s *Service) countFailed(kind domdoc.SourceType) {
	metrics.IngestDocumentsTotal.WithLabelValues(string(kind), "failed").Inc()
}

func (s *Service) countExtractionError(filename string, err error) {
	kind := "other"
	switch {
	case errors.Is(err, domain.ErrParse):
		kind = "parse"
	case errors.Is(err, domain.ErrMissingDependency):
		kind = "missing_dependency"
	case errors.Is(err, domain.ErrUnsupportedFormat):
		kind = "unsupported"
	}
	metrics.ExtractionErrorsTotal.WithLabelValues(string(extract.FormatOf(filename)), kind).Inc()
}

func degradedReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrNothingToEmbed):
		return "empty"
	case errors.Is(err, domain.ErrProviderTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrProvider):
		return "provider"
	default:
		return "other"
	}
}

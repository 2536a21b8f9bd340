package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	gochi "github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"github.com/kailas-cloud/kbase/internal/domain"
	ingestuc "github.com/kailas-cloud/kbase/internal/usecase/ingest"
)

// UploadDocument handles POST /documents/upload (multipart field "file").
func (s *Server) UploadDocument(w http.ResponseWriter, r *http.Request) {
	src, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	out, err := s.ingest.Ingest(r.Context(), projectParam(r), src)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, outcomeToResponse(out))
}

// CreateManualDocument handles POST /documents/manual.
func (s *Server) CreateManualDocument(w http.ResponseWriter, r *http.Request) {
	var req ManualDocumentRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	out, err := s.ingest.Ingest(r.Context(), projectParam(r), ingestuc.Manual(req.Filename, req.Content))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, outcomeToResponse(out))
}

// CrawlDocument handles POST /documents/crawl.
func (s *Server) CrawlDocument(w http.ResponseWriter, r *http.Request) {
	var req CrawlRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	out, err := s.ingest.Ingest(r.Context(), projectParam(r), ingestuc.Crawl(req.URL))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, outcomeToResponse(out))
}

// ListDocuments handles GET /documents?degraded=bool.
func (s *Server) ListDocuments(w http.ResponseWriter, r *http.Request) {
	var degraded *bool
	if err := runtime.BindQueryParameter("form", true, false, "degraded", r.URL.Query(), &degraded); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidInput, "Invalid format for parameter degraded: "+err.Error())
		return
	}

	filter := ingestuc.ListFilter{DegradedOnly: degraded != nil && *degraded}
	docs, err := s.ingest.List(r.Context(), projectParam(r), filter)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]DocumentResponse, len(docs))
	for i := range docs {
		items[i] = documentToResponse(&docs[i], false)
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{Items: items, Count: len(items)})
}

// GetDocument handles GET /documents/{id}.
func (s *Server) GetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}
	doc, err := s.ingest.Get(r.Context(), projectParam(r), id)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, documentToResponse(&doc, true))
}

// ReingestDocument handles PUT /documents/{id}: JSON text or a multipart file.
func (s *Server) ReingestDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}

	var src ingestuc.Source
	if isMultipart(r) {
		if src, ok = s.readUpload(w, r); !ok {
			return
		}
	} else {
		var req ManualDocumentRequest
		if !s.decodeJSON(w, r, &req) {
			return
		}
		src = ingestuc.Manual(req.Filename, req.Content)
	}

	out, err := s.ingest.Reingest(r.Context(), projectParam(r), id, src)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcomeToResponse(out))
}

// DeleteDocument handles DELETE /documents/{id}.
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}
	if err := s.ingest.Delete(r.Context(), projectParam(r), id); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReembedDocuments handles POST /documents/reembed.
func (s *Server) ReembedDocuments(w http.ResponseWriter, r *http.Request) {
	results, err := s.ingest.ReembedDegraded(r.Context(), projectParam(r))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reembedToResponse(results))
}

// readUpload reads the multipart "file" field within the upload cap.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (ingestuc.Source, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeBodyError(w, err, "Invalid multipart body")
		return ingestuc.Source{}, false
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidInput, "multipart field \"file\" is required")
		return ingestuc.Source{}, false
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		writeBodyError(w, err, "Failed to read upload")
		return ingestuc.Source{}, false
	}
	return ingestuc.Upload(header.Filename, data), true
}

func documentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	var id int64
	err := runtime.BindStyledParameterWithOptions("simple", "id", gochi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, CodeInvalidInput, fmt.Sprintf("Invalid document id %q", gochi.URLParam(r, "id")))
		return 0, false
	}
	return id, true
}

// decodeJSON reads a JSON body capped at the upload limit.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		writeBodyError(w, err, "Invalid request body")
		return false
	}
	return true
}

func writeBodyError(w http.ResponseWriter, err error, prefix string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge,
			fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		return
	}
	writeError(w, http.StatusBadRequest, CodeBadRequest, prefix+": "+err.Error())
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

// errNotConfigured is returned by endpoints whose collaborator is absent.
var errNotConfigured = fmt.Errorf("endpoint disabled: %w", domain.ErrNotConfigured)

package chi

import (
	"fmt"
	"net/http"

	"github.com/kailas-cloud/kbase/internal/domain"
	"github.com/kailas-cloud/kbase/internal/domain/search/query"
	"github.com/kailas-cloud/kbase/internal/usecase/retrieval"
)

// Search handles POST /search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.TopK != nil && (*req.TopK < 1 || *req.TopK > query.MaxTopK) {
		writeError(w, http.StatusBadRequest, CodeInvalidInput,
			fmt.Sprintf("top_k must be between 1 and %d", query.MaxTopK))
		return
	}
	topK := 0
	if req.TopK != nil {
		topK = *req.TopK
	}

	q, err := query.New(projectParam(r), req.Query, topK, req.MinScore)
	if err != nil {
		s.handleDomainError(w, r, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err))
		return
	}

	hits, err := s.retrieval.Search(r.Context(), q)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{
		Hits:    hitsToResponse(hits),
		Context: retrieval.BuildContext(hits),
	})
}

// Ask handles POST /ask.
func (s *Server) Ask(w http.ResponseWriter, r *http.Request) {
	if s.asker == nil {
		s.handleDomainError(w, r, errNotConfigured)
		return
	}
	var req AskRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	ans, err := s.asker.Ask(r.Context(), projectParam(r), req.Question, req.RolePrompt)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AskResponse{Answer: ans.Text, Sources: hitsToResponse(ans.Sources)})
}

// GenerateImage handles POST /images.
func (s *Server) GenerateImage(w http.ResponseWriter, r *http.Request) {
	if s.images == nil {
		s.handleDomainError(w, r, errNotConfigured)
		return
	}
	var req ImageRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	img, err := s.images.Generate(r.Context(), req.Prompt)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ImageResponse{MIMEType: img.MIMEType, Data: img.Data})
}

package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/kbase/internal/domain"
	"github.com/kailas-cloud/kbase/internal/logger"
)

// ErrorCode is the machine-readable error kind of an ErrorResponse.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest        ErrorCode = "bad_request"
	CodeUnauthorized      ErrorCode = "unauthorized"
	CodeInvalidInput      ErrorCode = "invalid_input"
	CodePayloadTooLarge   ErrorCode = "payload_too_large"
	CodeUnsupportedFormat ErrorCode = "unsupported_format"
	CodeParseError        ErrorCode = "parse_error"
	CodeMissingDependency ErrorCode = "missing_dependency"
	CodeNotConfigured     ErrorCode = "not_configured"
	CodeDocumentNotFound  ErrorCode = "document_not_found"
	CodeTLSError          ErrorCode = "tls_error"
	CodeFetchError        ErrorCode = "fetch_error"
	CodeProviderError     ErrorCode = "provider_error"
	CodeProviderTimeout   ErrorCode = "provider_timeout"
	CodeStoreUnavailable  ErrorCode = "store_unavailable"
	CodeInternalError     ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// defaultErrorHandlers is ordered: more specific sentinels first.
var defaultErrorHandlers = []errorHandler{
	sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest, CodeInvalidInput),
	sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, CodeDocumentNotFound),
	sentinelHandler(domain.ErrUnsupportedFormat, http.StatusUnsupportedMediaType, CodeUnsupportedFormat),
	sentinelHandler(domain.ErrParse, http.StatusUnprocessableEntity, CodeParseError),
	sentinelHandler(domain.ErrMissingDependency, http.StatusNotImplemented, CodeMissingDependency),
	sentinelHandler(domain.ErrNotConfigured, http.StatusNotImplemented, CodeNotConfigured),
	sentinelHandler(domain.ErrTLS, http.StatusBadGateway, CodeTLSError),
	sentinelHandler(domain.ErrFetch, http.StatusBadGateway, CodeFetchError),
	sentinelHandler(domain.ErrProviderTimeout, http.StatusGatewayTimeout, CodeProviderTimeout),
	sentinelHandler(domain.ErrProvider, http.StatusBadGateway, CodeProviderError),
	sentinelHandler(domain.ErrStore, http.StatusServiceUnavailable, CodeStoreUnavailable),
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
// Client errors carry the full message; server errors only the sentinel text.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		msg := sentinel.Error()
		if status < http.StatusInternalServerError {
			msg = err.Error()
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	for _, h := range s.errorHandlers {
		if h(w, err) {
			log.Warn("Request failed", zap.Error(err))
			return
		}
	}
	log.Error("Internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

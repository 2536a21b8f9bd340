package kbase

import "github.com/kailas-cloud/kbase/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidInput      = domain.ErrInvalidInput
	ErrDocumentNotFound  = domain.ErrDocumentNotFound
	ErrUnsupportedFormat = domain.ErrUnsupportedFormat
	ErrMissingDependency = domain.ErrMissingDependency
	ErrParse             = domain.ErrParse
	ErrFetch             = domain.ErrFetch
	ErrTLS               = domain.ErrTLS
	ErrProvider          = domain.ErrProvider
	ErrProviderTimeout   = domain.ErrProviderTimeout
	ErrStore             = domain.ErrStore
	ErrNotConfigured     = domain.ErrNotConfigured
)

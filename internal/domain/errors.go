package domain

import (
	"errors"
	"fmt"
)

// Extraction stage.
var (
	// ErrUnsupportedFormat signals content the pipeline cannot turn into text.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrMissingDependency signals a known format whose decoder is not available.
	ErrMissingDependency = errors.New("missing format decoder")
	// ErrParse signals bytes that are not valid for the claimed format.
	ErrParse = errors.New("parse error")
)

// Embedding and generation providers.
var (
	// ErrProvider signals an auth, quota or malformed-response failure of a provider.
	ErrProvider = errors.New("provider error")
	// ErrProviderTimeout signals that a provider did not answer within its deadline.
	ErrProviderTimeout = errors.New("provider timeout")
	// ErrNothingToEmbed signals blank text; the provider is not called.
	ErrNothingToEmbed = errors.New("nothing to embed")
)

// Crawl stage.
var (
	// ErrFetch signals a network failure or a non-2xx response.
	ErrFetch = errors.New("fetch error")
	// ErrTLS signals a TLS handshake or certificate verification failure.
	ErrTLS = errors.New("tls error")
)

// Persistence and validation.
var (
	// ErrStore signals a storage backend failure.
	ErrStore = errors.New("store error")
	// ErrDocumentNotFound signals a missing document or one owned by another project.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrInvalidInput signals a request that fails validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotConfigured signals an optional collaborator that was not set up.
	ErrNotConfigured = errors.New("not configured")
)

// FetchStatusError is a non-2xx crawl response.
type FetchStatusError struct {
	URL        string
	StatusCode int
}

func (e *FetchStatusError) Error() string {
	return fmt.Sprintf("%s: %s returned status %d", ErrFetch.Error(), e.URL, e.StatusCode)
}

func (e *FetchStatusError) Unwrap() error { return ErrFetch }

// NewFetchStatus creates a fetch error carrying the response status.
func NewFetchStatus(url string, status int) error {
	return &FetchStatusError{URL: url, StatusCode: status}
}

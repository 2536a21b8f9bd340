package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kailas-cloud/kbase/internal/domain"
)

// classify maps a client error onto domain.ErrProviderTimeout or domain.ErrProvider.
// Cancellation by the caller is passed through unwrapped.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if isTimeout(err) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrProviderTimeout, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("%s: API error %d: %s: %w", op, reqErr.HTTPStatusCode, detail, domain.ErrProvider)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: API error %d: %s: %w", op, apiErr.HTTPStatusCode, apiErr.Message, domain.ErrProvider)
	}

	return fmt.Errorf("%s: %w: %w", op, domain.ErrProvider, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && isTimeoutStatus(reqErr.HTTPStatusCode) {
		return true
	}
	var apiErr *openai.APIError
	return errors.As(err, &apiErr) && isTimeoutStatus(apiErr.HTTPStatusCode)
}

func isTimeoutStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout
}

// extractDetail extracts the "detail" field from a JSON error body (Nebius error format).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}

package openai

import (
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Config holds the provider connection settings shared by Embedder and Generator.
type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	Provider string

	// Dimensions is forwarded to embedding requests when > 0.
	Dimensions int
	User       string
	// Timeout bounds one HTTP exchange; zero leaves it to the caller's context.
	Timeout time.Duration
}

func newClient(cfg *Config) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   cfg.Timeout,
	}
	return openai.NewClientWithConfig(clientCfg)
}

// Package imagen generates images through the Generative Language REST
// predict endpoint.
package imagen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/kbase/internal/domain"
	"github.com/kailas-cloud/kbase/internal/domain/treescan"
)

// Defaults.
const (
	DefaultBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel       = "imagen-3.0-generate-002"
	DefaultMIMEType    = "image/png"
	DefaultAspectRatio = "9:16"
	DefaultTimeout     = 120 * time.Second

	// scanDepth bounds the search for image bytes in the response tree.
	scanDepth = 32
	// maxResponseBytes caps the response body read into memory.
	maxResponseBytes = 64 << 20
)

// Image is one generated picture.
type Image struct {
	Data     []byte
	MIMEType string
}

// Config holds the client settings.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	AspectRatio string
	Timeout     time.Duration
}

// Client calls the predict endpoint.
type Client struct {
	http        *http.Client
	apiKey      string
	baseURL     string
	model       string
	aspectRatio string
	logger      *zap.Logger
}

// New creates a client; empty config fields take the package defaults.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.AspectRatio == "" {
		cfg.AspectRatio = DefaultAspectRatio
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   cfg.Timeout,
		},
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		aspectRatio: cfg.AspectRatio,
		logger:      logger,
	}
}

type predictRequest struct {
	Instances  []instance `json:"instances"`
	Parameters parameters `json:"parameters"`
}

type instance struct {
	Prompt string `json:"prompt"`
}

type parameters struct {
	SampleCount    int    `json:"sampleCount"`
	NumberOfImages int    `json:"numberOfImages"`
	AspectRatio    string `json:"aspectRatio"`
}

// Generate renders one image for prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (Image, error) {
	if strings.TrimSpace(prompt) == "" {
		return Image{}, fmt.Errorf("empty prompt: %w", domain.ErrInvalidInput)
	}
	if c.apiKey == "" {
		return Image{}, fmt.Errorf("imagen api key: %w", domain.ErrNotConfigured)
	}

	body, err := json.Marshal(predictRequest{
		Instances: []instance{{Prompt: prompt}},
		Parameters: parameters{
			SampleCount:    1,
			NumberOfImages: 1,
			AspectRatio:    c.aspectRatio,
		},
	})
	if err != nil {
		return Image{}, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:predict", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Image{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return Image{}, classify(err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Image{}, classify(err)
	}
	c.logger.Debug("Imagen predict",
		zap.String("model", c.model),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout {
		return Image{}, fmt.Errorf("imagen status %d: %w", resp.StatusCode, domain.ErrProviderTimeout)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Image{}, fmt.Errorf("imagen status %d: %s: %w", resp.StatusCode, truncate(data, 512), domain.ErrProvider)
	}

	return ExtractImage(data)
}

// ExtractImage finds the first base64 image in a predict response and decodes it.
func ExtractImage(data []byte) (Image, error) {
	root, err := treescan.Parse(data)
	if err != nil {
		return Image{}, fmt.Errorf("parse response: %w: %w", domain.ErrProvider, err)
	}

	b64, mime, ok := findImage(root)
	if !ok {
		return Image{}, fmt.Errorf("no image in response: %s: %w", truncate(data, 512), domain.ErrProvider)
	}

	raw, err := base64.StdEncoding.DecodeString(stripSpace(b64))
	if err != nil {
		return Image{}, fmt.Errorf("decode image: %w: %w", domain.ErrProvider, err)
	}
	if mime == "" {
		mime = DefaultMIMEType
	}
	return Image{Data: raw, MIMEType: mime}, nil
}

// findImage returns the first object holding image bytes, or the first
// string that looks like base64, in depth-first order.
func findImage(root *treescan.Node) (b64, mime string, ok bool) {
	node, found := treescan.Find(root, scanDepth, func(n *treescan.Node) bool {
		switch n.Kind {
		case treescan.Object:
			return imageField(n) != ""
		case treescan.String:
			return treescan.LooksBase64(strings.TrimSpace(n.Scalar))
		default:
			return false
		}
	})
	if !found {
		return "", "", false
	}
	if node.Kind == treescan.String {
		return node.Scalar, "", true
	}
	mime, _ = node.Get("mimeType").StringValue()
	return imageField(node), mime, true
}

func imageField(n *treescan.Node) string {
	for _, key := range []string{"imageBytes", "bytesBase64Encoded"} {
		if s, ok := n.Get(key).StringValue(); ok && s != "" {
			return s
		}
	}
	return ""
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
}

func classify(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("imagen request: %w: %w", domain.ErrProviderTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("imagen request: %w", err)
	}
	return fmt.Errorf("imagen request: %w: %w", domain.ErrProvider, err)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

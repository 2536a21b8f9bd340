// Package crawl fetches web pages and reduces them to Markdown-like text.
package crawl

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/kbase/internal/domain"
	"github.com/kailas-cloud/kbase/internal/metrics"
	"github.com/kailas-cloud/kbase/internal/version"
)

// Defaults applied to zero Config fields.
const (
	DefaultTimeout      = 20 * time.Second
	DefaultMaxBodyBytes = 10 << 20
)

// Config tunes the crawler.
type Config struct {
	Timeout           time.Duration
	UserAgent         string
	MaxBodyBytes      int64
	MaxRetries        int     // extra attempts after a timeout
	RequestsPerSecond float64 // <= 0 disables rate limiting
	Burst             int
}

// Page is the text extracted from one URL.
type Page struct {
	URL      string
	Filename string
	Text     string
}

// Crawler fetches pages with certificate verification always on.
type Crawler struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithHTTPClient replaces the HTTP client. Its Timeout is overwritten by Config.Timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(cr *Crawler) { cr.client = c }
}

// New creates a Crawler.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Crawler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = version.UserAgent()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := max(cfg.Burst, 1)

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}

	c := &Crawler{
		cfg:     cfg,
		client:  &http.Client{Transport: otelhttp.NewTransport(transport)},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
	for _, o := range opts {
		o(c)
	}
	c.client.Timeout = cfg.Timeout
	return c
}

// Crawl fetches rawURL and returns its normalized text.
func (c *Crawler) Crawl(ctx context.Context, rawURL string) (Page, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Page{}, fmt.Errorf("crawl url %q: must be an absolute http(s) URL: %w", rawURL, domain.ErrInvalidInput)
	}
	target := u.String()

	body, contentType, err := c.fetchWithRetry(ctx, target)
	if err != nil {
		metrics.CrawlFetchesTotal.WithLabelValues(outcomeLabel(err)).Inc()
		return Page{}, err
	}

	doc, err := html.Parse(mustCharsetReader(body, contentType))
	if err != nil {
		metrics.CrawlFetchesTotal.WithLabelValues("fetch_error").Inc()
		return Page{}, fmt.Errorf("parse html from %s: %w: %w", target, domain.ErrParse, err)
	}
	metrics.CrawlFetchesTotal.WithLabelValues("ok").Inc()

	return Page{URL: target, Filename: Filename(target), Text: Render(doc)}, nil
}

func (c *Crawler) fetchWithRetry(ctx context.Context, target string) ([]byte, string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying crawl after timeout",
				zap.String("url", target), zap.Int("attempt", attempt), zap.Error(lastErr))
		}
		body, ct, err := c.fetch(ctx, target)
		if err == nil {
			return body, ct, nil
		}
		lastErr = err
		if !isTimeout(err) || ctx.Err() != nil {
			break
		}
	}
	return nil, "", lastErr
}

func (c *Crawler) fetch(ctx context.Context, target string) ([]byte, string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w: %w", target, domain.ErrFetch, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w: %w", target, domain.ErrFetch, err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,text/plain;q=0.8,*/*;q=0.5")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", classify(target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", domain.NewFetchStatus(target, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !isTextual(contentType) {
		return nil, "", fmt.Errorf("fetch %s: content type %q: %w", target, contentType, domain.ErrUnsupportedFormat)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, "", classify(target, err)
	}
	if int64(len(body)) > c.cfg.MaxBodyBytes {
		return nil, "", fmt.Errorf("fetch %s: body exceeds %d bytes: %w", target, c.cfg.MaxBodyBytes, domain.ErrFetch)
	}

	c.logger.Debug("page fetched",
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("duration", time.Since(start)),
	)
	return body, contentType, nil
}

// mustCharsetReader decodes the body to UTF-8 from the declared or sniffed charset.
func mustCharsetReader(body []byte, contentType string) io.Reader {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return bytes.NewReader(body)
	}
	return r
}

func isTextual(contentType string) bool {
	if contentType == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mt, "text/") || mt == "application/xhtml+xml" || mt == "application/xml"
}

// classify separates TLS failures from every other transport failure.
func classify(target string, err error) error {
	if isTLS(err) {
		return fmt.Errorf("fetch %s: %w: %w", target, domain.ErrTLS, err)
	}
	return fmt.Errorf("fetch %s: %w: %w", target, domain.ErrFetch, err)
}

func isTLS(err error) bool {
	var (
		unknownAuthority x509.UnknownAuthorityError
		invalidCert      x509.CertificateInvalidError
		hostname         x509.HostnameError
		verification     *tls.CertificateVerificationError
		recordHeader     tls.RecordHeaderError
		alert            tls.AlertError
	)
	return errors.As(err, &unknownAuthority) ||
		errors.As(err, &invalidCert) ||
		errors.As(err, &hostname) ||
		errors.As(err, &verification) ||
		errors.As(err, &recordHeader) ||
		errors.As(err, &alert)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrTLS):
		return "tls_error"
	case errors.Is(err, domain.ErrUnsupportedFormat):
		return "unsupported"
	default:
		return "fetch_error"
	}
}

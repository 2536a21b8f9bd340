package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/kbase/internal/domain"
	"github.com/kailas-cloud/kbase/internal/metrics"
)

// Defaults for Options zero values.
const (
	DefaultTimeout       = 30 * time.Second
	DefaultMaxRetries    = 2
	DefaultRetryDelay    = 500 * time.Millisecond
	DefaultMaxDelay      = 5 * time.Second
	DefaultMaxConcurrent = 8
)

// Options tunes the provider call policy.
type Options struct {
	// Timeout bounds a single attempt.
	Timeout time.Duration
	// MaxRetries is the number of extra attempts after a timeout. Negative disables retries.
	MaxRetries int
	RetryDelay time.Duration
	MaxDelay   time.Duration
	// MaxConcurrent caps in-flight provider calls across all callers.
	MaxConcurrent int
	// RequestsPerSecond enables a token-bucket limiter when > 0.
	RequestsPerSecond float64
	Burst             int
}

func (o *Options) applyDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = DefaultMaxConcurrent
	}
	if o.Burst <= 0 {
		o.Burst = 1
	}
}

// InstrumentedEmbedder wraps an Embedder with a per-attempt timeout, retry of
// timeouts with exponential backoff, a concurrency cap, optional rate limiting,
// metrics and logs. Provider errors other than timeouts are returned at once.
type InstrumentedEmbedder struct {
	inner    domain.Embedder
	provider string
	model    string
	opts     Options
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewInstrumentedEmbedder wraps an embedder with the call policy and observability.
func NewInstrumentedEmbedder(
	inner domain.Embedder, provider, model string,
	opts Options, logger *zap.Logger,
) *InstrumentedEmbedder {
	opts.applyDefaults()
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst)
	}
	return &InstrumentedEmbedder{
		inner:    inner,
		provider: provider,
		model:    model,
		opts:     opts,
		sem:      semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		limiter:  limiter,
		logger:   logger,
	}
}

// Embed delegates to the inner embedder under the call policy.
func (p *InstrumentedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embedding slot: %w", err)
	}
	defer p.sem.Release(1)

	start := time.Now()
	result, attempts, err := p.embedWithRetry(ctx, text)
	duration := time.Since(start)

	if errors.Is(err, domain.ErrNothingToEmbed) {
		return domain.EmbeddingResult{}, err
	}

	metrics.EmbeddingRequestDuration.WithLabelValues(p.provider, p.model).Observe(duration.Seconds())
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(p.provider, p.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(p.provider, p.model, errorType(err)).Inc()
		p.logger.Warn("Embedding request failed",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.Int("attempts", attempts),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, err
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(p.provider, p.model, "success").Inc()
	p.logger.Debug("Embedding request completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Int("attempts", attempts),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("total_tokens", result.TotalTokens),
	)
	return result, nil
}

func (p *InstrumentedEmbedder) embedWithRetry(
	ctx context.Context, text string,
) (domain.EmbeddingResult, int, error) {
	var lastErr error
	for attempt := 0; attempt <= p.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			metrics.EmbeddingRetriesTotal.WithLabelValues(p.provider, p.model).Inc()
			select {
			case <-ctx.Done():
				return domain.EmbeddingResult{}, attempt, fmt.Errorf("%w: %w", lastErr, ctx.Err())
			case <-time.After(p.backoff(attempt)):
			}
		}
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return domain.EmbeddingResult{}, attempt, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		result, err := p.attempt(ctx, text)
		if err == nil {
			return result, attempt + 1, nil
		}
		lastErr = err
		if !errors.Is(err, domain.ErrProviderTimeout) || ctx.Err() != nil {
			return domain.EmbeddingResult{}, attempt + 1, err
		}
	}
	return domain.EmbeddingResult{}, p.opts.MaxRetries + 1,
		fmt.Errorf("embedding gave up after %d attempts: %w", p.opts.MaxRetries+1, lastErr)
}

// attempt runs one call under its own deadline. A deadline hit by the
// attempt, not the caller, is reported as a provider timeout.
func (p *InstrumentedEmbedder) attempt(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	result, err := p.inner.Embed(attemptCtx, text)
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, domain.ErrProviderTimeout) &&
		errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return domain.EmbeddingResult{}, fmt.Errorf("%w: %w", domain.ErrProviderTimeout, err)
	}
	return domain.EmbeddingResult{}, err
}

// backoff returns RetryDelay * 2^(attempt-1), capped at MaxDelay.
func (p *InstrumentedEmbedder) backoff(attempt int) time.Duration {
	delay := p.opts.RetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > p.opts.MaxDelay {
			return p.opts.MaxDelay
		}
	}
	return delay
}

func errorType(err error) string {
	switch {
	case errors.Is(err, domain.ErrProviderTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrProvider):
		return "provider"
	default:
		return "other"
	}
}

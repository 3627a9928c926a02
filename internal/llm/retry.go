package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"

	"github.com/Turnstyle/ria-hunter-sub007/internal/domain"
	"github.com/Turnstyle/ria-hunter-sub007/internal/observability"
)

// RetryConfig holds retry configuration.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     2,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     8 * time.Second,
	}
}

// RetryProvider retries transient provider failures with exponential backoff.
// Streams are retried only while no fragment has been delivered.
type RetryProvider struct {
	inner  Provider
	cfg    RetryConfig
	logger *observability.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// WithRetry wraps p. A nil p stays nil so "not configured" survives wrapping.
func WithRetry(p Provider, cfg RetryConfig, logger *observability.Logger) Provider {
	if p == nil {
		return nil
	}
	return &RetryProvider{inner: p, cfg: cfg, logger: logger, sleep: sleepCtx}
}

func (r *RetryProvider) Name() string { return r.inner.Name() }

func (r *RetryProvider) GenerateText(ctx context.Context, req Request) (string, error) {
	var out string
	err := r.do(ctx, "generate", func() (bool, error) {
		var err error
		out, err = r.inner.GenerateText(ctx, req)
		return true, err
	})
	return out, err
}

func (r *RetryProvider) StreamText(ctx context.Context, req Request, onFragment func(string) error) error {
	return r.do(ctx, "stream", func() (bool, error) {
		delivered := false
		err := r.inner.StreamText(ctx, req, func(s string) error {
			delivered = true
			return onFragment(s)
		})
		return !delivered, err
	})
}

// do runs call until it succeeds, fails permanently, or retries run out.
// call reports whether a failure may be retried at all.
func (r *RetryProvider) do(ctx context.Context, op string, call func() (bool, error)) error {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		retryable, err := call()
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable || !shouldRetry(err) || attempt == r.cfg.MaxRetries {
			break
		}

		backoff := calculateBackoff(attempt, r.cfg)
		r.logger.Warn().
			Str("provider", r.inner.Name()).
			Str("op", op).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(err).
			Msg("Generation request failed, retrying")

		if err := r.sleep(ctx, backoff); err != nil {
			return err
		}
	}
	if domain.TypeOf(lastErr) != "" {
		return lastErr
	}
	return domain.UpstreamError(fmt.Sprintf("%s failed", op), lastErr)
}

// shouldRetry retries rate limits, server errors and transport errors without a status.
func shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	status := statusCode(err)
	switch status {
	case 0:
		return true
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return status >= 500 && status != http.StatusNotImplemented
	}
}

func statusCode(err error) int {
	var oaAPI *openai.APIError
	if errors.As(err, &oaAPI) {
		return oaAPI.HTTPStatusCode
	}
	var oaReq *openai.RequestError
	if errors.As(err, &oaReq) {
		return oaReq.HTTPStatusCode
	}
	var antErr *anthropic.Error
	if errors.As(err, &antErr) {
		return antErr.StatusCode
	}
	var statusErr interface{ HTTPStatus() int }
	if errors.As(err, &statusErr) {
		return statusErr.HTTPStatus()
	}
	return 0
}

func calculateBackoff(attempt int, cfg RetryConfig) time.Duration {
	backoff := float64(cfg.InitialBackoff) * math.Pow(2, float64(attempt))
	if backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}
	return time.Duration(backoff)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

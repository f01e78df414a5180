package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// Default retry envelope for transient provider failures. Waits grow
// exponentially from baseWait and are capped at maxWait.
const (
	DefaultMaxAttempts = 3
	defaultBaseWait    = 1 * time.Second
	defaultMaxWait     = 10 * time.Second

	// Outbound call budget shared across the process. Generous for a
	// support pipeline; exists so a retry storm cannot hammer the provider.
	defaultRateLimit = rate.Limit(10)
	defaultRateBurst = 20
)

// Client wraps a Provider with a process-wide rate limiter and bounded
// retry with exponential backoff. Non-retryable provider errors (bad
// credentials, invalid request) fail immediately.
type Client struct {
	provider     Provider
	limiter      *rate.Limiter
	maxAttempts  int
	baseWait     time.Duration
	maxWait      time.Duration
	defaultModel string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithMaxAttempts sets the bounded attempt count (minimum 1).
func WithMaxAttempts(n int) ClientOption {
	return func(c *Client) {
		if n >= 1 {
			c.maxAttempts = n
		}
	}
}

// WithBackoff overrides the retry wait bounds. Used by tests to keep
// retries fast.
func WithBackoff(base, max time.Duration) ClientOption {
	return func(c *Client) {
		c.baseWait = base
		c.maxWait = max
	}
}

// WithDefaultModel sets the model used when a request doesn't name one.
func WithDefaultModel(model string) ClientOption {
	return func(c *Client) {
		c.defaultModel = model
	}
}

// WithRateLimit overrides the outbound request rate limiter.
func WithRateLimit(limit rate.Limit, burst int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

// NewClient creates a retrying client around the given provider.
func NewClient(provider Provider, opts ...ClientOption) *Client {
	c := &Client{
		provider:    provider,
		limiter:     rate.NewLimiter(defaultRateLimit, defaultRateBurst),
		maxAttempts: DefaultMaxAttempts,
		baseWait:    defaultBaseWait,
		maxWait:     defaultMaxWait,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provider returns the wrapped provider's name.
func (c *Client) Provider() string {
	return c.provider.Name()
}

// Complete sends the request, retrying transient failures up to the
// configured attempt bound.
func (c *Client) Complete(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "llm.complete",
		trace.WithAttributes(attribute.String("llm.provider", c.provider.Name())))
	defer span.End()

	if req.Model == "" {
		req.Model = c.defaultModel
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		resp, err := c.provider.Generate(ctx, req)
		if err == nil {
			span.SetAttributes(attribute.Int("llm.attempts", attempt))
			return resp, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			span.RecordError(err)
			return nil, err
		}
		if attempt == c.maxAttempts {
			break
		}

		wait := c.backoff(attempt)
		log.Warn().
			Err(err).
			Str("provider", c.provider.Name()).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("transient provider failure, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	span.RecordError(lastErr)
	return nil, fmt.Errorf("llm call failed after %d attempts: %w", c.maxAttempts, lastErr)
}

// backoff returns the wait before the next attempt: baseWait doubled per
// attempt, capped at maxWait.
func (c *Client) backoff(attempt int) time.Duration {
	wait := c.baseWait << (attempt - 1)
	if wait > c.maxWait {
		wait = c.maxWait
	}
	return wait
}

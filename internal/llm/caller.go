package llm

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Caller wraps a Provider with the shared rate gate and bounded
// retry-with-exponential-backoff. Both the normalizer and the summary
// generator go through a Caller, so the retry policy is applied exactly
// once per completion call.
type Caller struct {
	provider    Provider
	gate        *Gate
	maxAttempts int
	baseDelay   time.Duration
	logger      *zap.Logger
}

// NewCaller creates a caller around provider. A nil provider means the
// capability is disabled; every call reports ErrUnavailable.
func NewCaller(provider Provider, gate *Gate, maxAttempts int, baseDelay time.Duration, logger *zap.Logger) *Caller {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return &Caller{
		provider:    provider,
		gate:        gate,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		logger:      logger.Named("llm"),
	}
}

// Enabled reports whether a provider is configured
func (c *Caller) Enabled() bool {
	return c.provider != nil
}

// ProviderName returns the configured provider name, or "" when disabled
func (c *Caller) ProviderName() string {
	if c.provider == nil {
		return ""
	}
	return c.provider.Name()
}

// Complete runs one completion with retry on retryable failures.
// Retryable: rate limit, overload, 5xx. Non-retryable errors fail fast.
// A disabled provider, an availability-class error, or an exhausted retry
// budget all surface as ErrUnavailable so callers take the fallback path.
func (c *Caller) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if c.provider == nil {
		return nil, Unavailable(nil)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.baseDelay << (attempt - 2) // 1x, 2x, 4x...
			c.logger.Info("retrying completion",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", c.maxAttempts),
				zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return nil, Unavailable(ctx.Err())
			case <-time.After(delay):
			}
		}

		if c.gate != nil {
			if err := c.gate.Wait(ctx); err != nil {
				return nil, Unavailable(err)
			}
		}

		resp, err := c.provider.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			if IsUnavailable(err) {
				return nil, Unavailable(err)
			}
			return nil, err
		}
		c.logger.Warn("completion attempt failed", zap.Int("attempt", attempt), zap.Error(err))
	}

	// Retry budget exhausted on a retryable condition
	return nil, Unavailable(lastErr)
}

package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// Gate throttles calls to the shared completion capability. The capability
// is the only shared resource between concurrent pipeline runs, so one
// process-wide gate covers both the normalizer and the summary generator.
type Gate struct {
	limiter *rate.Limiter
}

// NewGate creates a new rate gate
func NewGate(requestsPerSecond float64, burst int) *Gate {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 2
	}
	if burst <= 0 {
		burst = 1
	}
	return &Gate{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Wait blocks until the next call is allowed or the context is done
func (g *Gate) Wait(ctx context.Context) error {
	return g.limiter.Wait(ctx)
}

// Allow checks if a call is allowed without waiting
func (g *Gate) Allow() bool {
	return g.limiter.Allow()
}

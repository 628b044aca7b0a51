package storage

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedGateway throttles gateway calls so large chunked fetches do not
// hammer the bucket. It blocks the caller until a token is available or the
// context is cancelled.
type RateLimitedGateway struct {
	inner   Gateway
	limiter *rate.Limiter
}

// NewRateLimitedGateway wraps inner with an rps/burst token bucket.
func NewRateLimitedGateway(inner Gateway, rps float64, burst int) *RateLimitedGateway {
	return &RateLimitedGateway{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Read implements Gateway.
func (g *RateLimitedGateway) Read(ctx context.Context, path string) ([]byte, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return g.inner.Read(ctx, path)
}

// List implements Gateway.
func (g *RateLimitedGateway) List(ctx context.Context, prefix string) ([]string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return g.inner.List(ctx, prefix)
}

package storage

import (
	"context"
	"log/slog"
	"time"

	"quantdl/internal/errors"
)

// RetryOptions bounds the retry loop around a gateway.
type RetryOptions struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultRetryOptions matches the bucket's transient-failure profile:
// 4 attempts, 250ms initial backoff, doubling up to 5s.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxAttempts:    4,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
	}
}

// RetryGateway wraps a Gateway with bounded exponential backoff. NotFound is
// never retried; once attempts are exhausted the last error is surfaced as a
// TRANSIENT_ERROR so callers can distinguish infrastructure failures from
// absence.
type RetryGateway struct {
	inner  Gateway
	opts   RetryOptions
	logger *slog.Logger
}

// NewRetryGateway wraps inner with retry behaviour.
func NewRetryGateway(inner Gateway, opts RetryOptions, logger *slog.Logger) *RetryGateway {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.BackoffFactor < 1 {
		opts.BackoffFactor = 2.0
	}
	return &RetryGateway{inner: inner, opts: opts, logger: logger}
}

// Read implements Gateway.
func (g *RetryGateway) Read(ctx context.Context, path string) ([]byte, error) {
	var data []byte
	err := g.withRetries(ctx, "read", path, func() error {
		var err error
		data, err = g.inner.Read(ctx, path)
		return err
	})
	return data, err
}

// List implements Gateway.
func (g *RetryGateway) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := g.withRetries(ctx, "list", prefix, func() error {
		var err error
		keys, err = g.inner.List(ctx, prefix)
		return err
	})
	return keys, err
}

func (g *RetryGateway) withRetries(ctx context.Context, op, path string, call func() error) error {
	backoff := g.opts.InitialBackoff
	var lastErr error
	for attempt := 1; attempt <= g.opts.MaxAttempts; attempt++ {
		lastErr = call()
		if lastErr == nil {
			return nil
		}
		if errors.IsNotFound(lastErr) || ctx.Err() != nil {
			return lastErr
		}
		if attempt == g.opts.MaxAttempts {
			break
		}
		g.logger.WarnContext(ctx, "storage call failed, retrying",
			"op", op,
			"path", path,
			"attempt", attempt,
			"backoff", backoff.String(),
			"error", lastErr,
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff = time.Duration(float64(backoff) * g.opts.BackoffFactor)
		if backoff > g.opts.MaxBackoff {
			backoff = g.opts.MaxBackoff
		}
	}
	return errors.Transient(op, path, lastErr)
}

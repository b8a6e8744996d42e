package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/switchback/switchback-go/switchback"
)

// RetryConfig configures per-attempt retry behavior for a wrapped executor.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	// Default: 3
	MaxAttempts int

	// InitialBackoff is the first backoff duration.
	// Default: 100ms
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff growth.
	// Default: 10s
	MaxBackoff time.Duration

	// BackoffMultiplier grows the backoff between attempts.
	// Default: 2.0
	BackoffMultiplier float64

	// ShouldRetry decides whether an error is retryable. Nil retries all.
	ShouldRetry func(error) bool
}

// DefaultRetryConfig returns a retry config with sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RetryExecutor retries the wrapped executor with exponential backoff
// before the orchestrator gives up on a route. A result with Success=false
// is not retried; only errors are, since an unsuccessful result is the
// target's considered answer.
type RetryExecutor struct {
	next   switchback.RouteExecutor
	config RetryConfig
	clock  switchback.Clock
}

// Verify that RetryExecutor implements RouteExecutor.
var _ switchback.RouteExecutor = (*RetryExecutor)(nil)

// NewRetryExecutor wraps an executor with retry logic.
func NewRetryExecutor(next switchback.RouteExecutor, config RetryConfig, clock switchback.Clock) *RetryExecutor {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = 100 * time.Millisecond
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 10 * time.Second
	}
	if config.BackoffMultiplier <= 0 {
		config.BackoffMultiplier = 2.0
	}
	if clock == nil {
		clock = switchback.SystemClock{}
	}
	return &RetryExecutor{next: next, config: config, clock: clock}
}

// Execute implements switchback.RouteExecutor.
func (r *RetryExecutor) Execute(ctx context.Context, route *switchback.FallbackRoute, fctx *switchback.FallbackContext) (*switchback.ExecutionResult, error) {
	var lastErr error
	backoff := r.config.InitialBackoff

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		result, err := r.next.Execute(ctx, route, fctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if r.config.ShouldRetry != nil && !r.config.ShouldRetry(err) {
			return nil, fmt.Errorf("non-retryable error on attempt %d/%d: %w", attempt, r.config.MaxAttempts, err)
		}
		if attempt == r.config.MaxAttempts {
			break
		}

		if err := r.clock.Sleep(ctx, backoff); err != nil {
			return nil, fmt.Errorf("retry cancelled after %d attempts: %w", attempt, err)
		}
		backoff = time.Duration(float64(backoff) * r.config.BackoffMultiplier)
		if backoff > r.config.MaxBackoff {
			backoff = r.config.MaxBackoff
		}
	}

	return nil, fmt.Errorf("max retry attempts (%d) exceeded: %w", r.config.MaxAttempts, lastErr)
}

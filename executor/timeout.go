package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/switchback/switchback-go/switchback"
)

// TimeoutError is returned when an attempt exceeds its deadline.
type TimeoutError struct {
	Target  string
	Timeout time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("attempt against %q timed out after %v", e.Target, e.Timeout)
}

// TimeoutExecutor enforces a per-attempt deadline on the wrapped executor.
// The context's Timeout hint takes precedence over the configured default.
//
// The wrapped call runs in a goroutine so the deadline holds even for
// executors that ignore context cancellation.
type TimeoutExecutor struct {
	next switchback.RouteExecutor

	// Default applies when the FallbackContext carries no Timeout hint.
	// Default: 30s
	Default time.Duration
}

// Verify that TimeoutExecutor implements RouteExecutor.
var _ switchback.RouteExecutor = (*TimeoutExecutor)(nil)

// NewTimeoutExecutor wraps an executor with deadline enforcement.
func NewTimeoutExecutor(next switchback.RouteExecutor, defaultTimeout time.Duration) *TimeoutExecutor {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	return &TimeoutExecutor{next: next, Default: defaultTimeout}
}

// Execute implements switchback.RouteExecutor.
func (t *TimeoutExecutor) Execute(ctx context.Context, route *switchback.FallbackRoute, fctx *switchback.FallbackContext) (*switchback.ExecutionResult, error) {
	timeout := t.Default
	if fctx.Timeout > 0 {
		timeout = fctx.Timeout
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result *switchback.ExecutionResult
		err    error
	}

	// Buffered so a late executor return does not leak the goroutine.
	done := make(chan outcome, 1)
	go func() {
		result, err := t.next.Execute(attemptCtx, route, fctx)
		done <- outcome{result, err}
	}()

	select {
	case out := <-done:
		if out.err != nil && attemptCtx.Err() == context.DeadlineExceeded {
			return nil, &TimeoutError{Target: route.Target, Timeout: timeout}
		}
		return out.result, out.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TimeoutError{Target: route.Target, Timeout: timeout}
	}
}

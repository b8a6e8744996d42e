package switchback

import (
	"context"
	"fmt"
	"time"
)

// RouteExecutor performs the actual attempt for one route type. Production
// wiring dispatches to real provider/agent/model calls; the engine itself
// never performs network I/O.
type RouteExecutor interface {
	// Execute tries the alternative identified by route for the failed
	// request described by fctx. A nil error with Success=false is an
	// ordinary business failure; a non-nil error is treated the same way
	// by the orchestrator but preserved as the underlying cause.
	Execute(ctx context.Context, route *FallbackRoute, fctx *FallbackContext) (*ExecutionResult, error)
}

// ExecutorFunc adapts a function to the RouteExecutor interface.
type ExecutorFunc func(ctx context.Context, route *FallbackRoute, fctx *FallbackContext) (*ExecutionResult, error)

// Execute implements RouteExecutor.
func (f ExecutorFunc) Execute(ctx context.Context, route *FallbackRoute, fctx *FallbackContext) (*ExecutionResult, error) {
	return f(ctx, route, fctx)
}

// ProbeResult is the outcome of a single provider health probe.
type ProbeResult struct {
	IsHealthy    bool          `json:"is_healthy"`
	ResponseTime time.Duration `json:"response_time"`
}

// HealthProbe checks whether an upstream provider is currently reachable.
type HealthProbe interface {
	Probe(ctx context.Context, providerID string) (*ProbeResult, error)
}

// ProbeFunc adapts a function to the HealthProbe interface.
type ProbeFunc func(ctx context.Context, providerID string) (*ProbeResult, error)

// Probe implements HealthProbe.
func (f ProbeFunc) Probe(ctx context.Context, providerID string) (*ProbeResult, error) {
	return f(ctx, providerID)
}

// NoExecutorError is returned when a route type has no registered executor.
// It surfaces from the registration API, never from the hot path.
type NoExecutorError struct {
	Type RouteType
}

// Error implements the error interface.
func (e *NoExecutorError) Error() string {
	return fmt.Sprintf("no executor registered for route type %q", e.Type)
}

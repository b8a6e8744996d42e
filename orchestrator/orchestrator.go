// Package orchestrator is the top-level fallback control loop. Given a
// failure context it asks the route registry for candidates, consults the
// circuit breakers, dispatches eligible routes to their executors, feeds
// outcomes back into breaker and metrics state, and returns a structured
// result. It is the only component the request pipeline calls directly.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/switchback/switchback-go/breaker"
	"github.com/switchback/switchback-go/executor"
	"github.com/switchback/switchback-go/health"
	"github.com/switchback/switchback-go/metrics"
	"github.com/switchback/switchback-go/observability"
	"github.com/switchback/switchback-go/routing"
	"github.com/switchback/switchback-go/switchback"
)

// ErrNoRouteAvailable is carried in a failed result when no applicable
// route was even attempted and the context brought no underlying error.
var ErrNoRouteAvailable = errors.New("no applicable fallback route")

// Options carries the collaborators injected into the orchestrator. Zero
// values get working defaults: system clock, no-op sink, default logger,
// uninstrumented aggregator.
type Options struct {
	// Probe checks upstream provider availability for the health monitor.
	// Nil disables the monitor.
	Probe switchback.HealthProbe

	// Clock supplies time and the inter-attempt delay primitive.
	Clock switchback.Clock

	// Sink receives the engine's fire-and-forget events.
	Sink switchback.EventSink

	// Logger receives structured engine logs.
	Logger *slog.Logger

	// Aggregator overrides the default metrics aggregator, e.g. an
	// instrumented one from metrics.NewInstrumentedAggregator.
	Aggregator *metrics.Aggregator
}

// Orchestrator coordinates the route registry, breaker manager, health
// monitor, and metrics aggregator. It holds no per-request state of its
// own; the enable/emergency toggles are the only mutable configuration.
type Orchestrator struct {
	cfg    switchback.Config
	clock  switchback.Clock
	sink   switchback.EventSink
	logger *slog.Logger
	tracer trace.Tracer

	routes    *routing.Registry
	breakers  *breaker.Manager
	monitor   *health.Monitor
	stats     *metrics.Aggregator
	executors *executor.Registry

	stateMu   sync.RWMutex
	enabled   bool
	emergency bool
}

// New creates an orchestrator from config and collaborators.
func New(cfg switchback.Config, opts Options) *Orchestrator {
	cfg.Normalize()

	clock := opts.Clock
	if clock == nil {
		clock = switchback.SystemClock{}
	}
	sink := opts.Sink
	if sink == nil {
		sink = switchback.NopSink{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	stats := opts.Aggregator
	if stats == nil {
		stats = metrics.NewAggregator()
	}

	o := &Orchestrator{
		cfg:       cfg,
		clock:     clock,
		sink:      sink,
		logger:    logger,
		tracer:    observability.GetTracer("switchback.orchestrator"),
		routes:    routing.NewRegistry(logger),
		stats:     stats,
		executors: executor.NewRegistry(),
		enabled:   cfg.EnableFallbacks,
		emergency: cfg.EmergencyMode,
	}

	o.breakers = breaker.NewManager(breaker.ManagerConfig{
		FailureThreshold: cfg.ProviderFailureThreshold,
		Cooldown:         cfg.BreakerCooldown,
	}, clock, sink, logger)

	if opts.Probe != nil {
		o.monitor = health.NewMonitor(health.MonitorConfig{
			Providers: cfg.Providers,
			Interval:  cfg.HealthCheckInterval,
		}, opts.Probe, clock, sink, logger)
	}

	return o
}

// ExecuteFallback runs the fallback chain for a failed call. It never
// returns an error for business failures; the outcome, the last underlying
// error, and the routes actually attempted are all in the result.
func (o *Orchestrator) ExecuteFallback(ctx context.Context, fctx *switchback.FallbackContext) *switchback.FallbackResult {
	ctx, span := o.tracer.Start(ctx, "switchback.execute_fallback",
		trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	span.SetAttributes(
		attribute.String("request.id", fctx.RequestID),
		attribute.String("original.provider", fctx.OriginalProvider),
		attribute.String("original.agent", fctx.OriginalAgent),
	)

	start := o.clock.Now()

	if !o.FallbacksEnabled() {
		span.SetAttributes(attribute.Bool("fallback.disabled", true))
		return &switchback.FallbackResult{
			Success:            false,
			Err:                fctx.Err,
			FallbacksAttempted: []string{},
			TotalDuration:      o.clock.Now().Sub(start),
			Metadata:           map[string]interface{}{"fallbackDisabled": true},
		}
	}

	o.stats.RecordFallbackStart()

	maxAttempts := fctx.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = o.cfg.MaxFallbackAttempts
	}

	candidates := o.routes.FindApplicable(fctx)
	attempted := make([]string, 0, len(candidates))
	lastErr := fctx.Err
	tried := 0

	for _, route := range candidates {
		if fctx.Attempt >= maxAttempts || tried >= o.cfg.MaxFallbackAttempts {
			break
		}

		if o.breakers.IsOpen(route.Target) {
			o.logger.Debug("fallback route skipped, breaker open",
				"request_id", fctx.RequestID,
				"route_id", route.ID,
				"target", route.Target,
			)
			continue
		}

		exec, err := o.executors.Get(route.Type)
		if err != nil {
			// Registration should have caught this; skip rather than fail
			// the whole chain.
			o.logger.Error("fallback route has no executor",
				"route_id", route.ID, "type", route.Type.String())
			continue
		}

		attempted = append(attempted, route.ID)
		fctx.Attempt++
		tried++

		if o.cfg.FallbackDelay > 0 {
			if err := o.clock.Sleep(ctx, o.cfg.FallbackDelay); err != nil {
				lastErr = err
				break
			}
		}

		o.stats.RecordRouteAttempt(route.ID)
		result, execErr := exec.Execute(ctx, route, fctx)

		switch {
		case execErr != nil:
			lastErr = execErr
		case result == nil || !result.Success:
			lastErr = fmt.Errorf("route %s: executor reported failure", route.ID)
		case o.belowQuality(result, route):
			lastErr = fmt.Errorf("route %s: quality %.2f below threshold %.2f",
				route.ID, result.QualityScore, o.cfg.QualityThreshold)
		default:
			return o.finishSuccess(fctx, route, result, attempted, start, span)
		}

		o.routes.RecordOutcome(route.ID, false, o.clock.Now())
		o.breakers.RecordFailureWithThreshold(route.Target, o.thresholdFor(route.Type))
		o.logger.Warn("fallback route failed",
			"request_id", fctx.RequestID,
			"route_id", route.ID,
			"target", route.Target,
			"error", lastErr,
		)
	}

	if lastErr == nil && len(attempted) == 0 {
		lastErr = ErrNoRouteAvailable
	}

	o.stats.RecordFailure()
	result := &switchback.FallbackResult{
		Success:            false,
		Err:                lastErr,
		FallbacksAttempted: attempted,
		TotalDuration:      o.clock.Now().Sub(start),
		Metadata:           make(map[string]interface{}),
	}
	o.sink.Publish(switchback.FallbackFailedEvent{
		Context:         fctx,
		Result:          result,
		RoutesAttempted: attempted,
	})
	if lastErr != nil {
		span.SetStatus(codes.Error, lastErr.Error())
	} else {
		span.SetStatus(codes.Error, "fallback exhausted")
	}
	o.logger.Warn("fallback exhausted",
		"request_id", fctx.RequestID,
		"routes_attempted", attempted,
		"error", lastErr,
	)
	return result
}

// finishSuccess applies the success bookkeeping and builds the result.
func (o *Orchestrator) finishSuccess(fctx *switchback.FallbackContext, route *switchback.FallbackRoute, execResult *switchback.ExecutionResult, attempted []string, start time.Time, span trace.Span) *switchback.FallbackResult {
	now := o.clock.Now()

	snapshot := o.routes.RecordOutcome(route.ID, true, now)
	if snapshot == nil {
		// Route was removed mid-flight; report the candidate we dispatched.
		snapshot = route
	}
	o.breakers.RecordSuccess(route.Target)

	duration := now.Sub(start)
	o.stats.RecordSuccess(route.Type, duration)
	if route.Target == switchback.EmergencyTarget {
		o.stats.RecordEmergencyActivation()
	}

	result := &switchback.FallbackResult{
		Success:            true,
		Data:               execResult.Data,
		RouteUsed:          snapshot,
		FallbacksAttempted: attempted,
		TotalDuration:      duration,
		QualityScore:       execResult.QualityScore,
		Metadata:           make(map[string]interface{}),
	}

	o.sink.Publish(switchback.FallbackSucceededEvent{
		Context: fctx,
		Result:  result,
		Route:   snapshot,
	})
	span.SetAttributes(
		attribute.String("route.id", route.ID),
		attribute.String("route.target", route.Target),
	)
	span.SetStatus(codes.Ok, "")
	o.logger.Info("fallback succeeded",
		"request_id", fctx.RequestID,
		"route_id", route.ID,
		"target", route.Target,
		"attempts", len(attempted),
	)
	return result
}

// belowQuality reports whether a nominally successful result should be
// treated as a soft failure. Ungraded results (score 0) pass; the
// emergency payload is exempt so the last line of defense cannot gate
// itself out.
func (o *Orchestrator) belowQuality(result *switchback.ExecutionResult, route *switchback.FallbackRoute) bool {
	if route.Target == switchback.EmergencyTarget {
		return false
	}
	if o.cfg.QualityThreshold <= 0 || result.QualityScore <= 0 {
		return false
	}
	threshold := o.cfg.QualityThreshold
	if fq := route.Metadata["required_quality"]; fq != nil {
		if f, ok := fq.(float64); ok && f > 0 {
			threshold = f
		}
	}
	return result.QualityScore < threshold
}

// thresholdFor selects the breaker threshold for a route type. Provider,
// endpoint, and model targets share the provider threshold; agent targets
// use their own.
func (o *Orchestrator) thresholdFor(t switchback.RouteType) int {
	if t == switchback.RouteTypeAgent {
		return o.cfg.AgentFailureThreshold
	}
	return o.cfg.ProviderFailureThreshold
}

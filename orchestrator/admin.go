package orchestrator

import (
	"context"
	"errors"

	"github.com/switchback/switchback-go/breaker"
	"github.com/switchback/switchback-go/health"
	"github.com/switchback/switchback-go/metrics"
	"github.com/switchback/switchback-go/routing"
	"github.com/switchback/switchback-go/switchback"
)

// RegisterExecutor binds an executor to a route type. Routes of a type can
// only be added after its executor is registered.
func (o *Orchestrator) RegisterExecutor(t switchback.RouteType, exec switchback.RouteExecutor) error {
	return o.executors.Register(t, exec)
}

// AddFallbackRoute registers a route. A route whose type has no executor is
// a configuration error and is rejected here rather than failing silently
// during orchestration.
func (o *Orchestrator) AddFallbackRoute(route *switchback.FallbackRoute) error {
	if err := route.Validate(); err != nil {
		return err
	}
	if !o.executors.Has(route.Type) {
		return &switchback.NoExecutorError{Type: route.Type}
	}
	return o.routes.Add(route)
}

// RemoveFallbackRoute deletes a route by ID and reports whether it existed.
func (o *Orchestrator) RemoveFallbackRoute(id string) bool {
	return o.routes.Remove(id)
}

// GetFallbackRoutes returns a snapshot of the route table keyed by ID.
func (o *Orchestrator) GetFallbackRoutes() map[string]*switchback.FallbackRoute {
	return o.routes.Snapshot()
}

// SeedDefaultRoutes installs the built-in route table, including the
// emergency route gated on this orchestrator's emergency mode. Executors
// for all four route types must be registered first.
func (o *Orchestrator) SeedDefaultRoutes() error {
	for _, t := range []switchback.RouteType{
		switchback.RouteTypeProvider,
		switchback.RouteTypeAgent,
		switchback.RouteTypeEndpoint,
		switchback.RouteTypeModel,
	} {
		if !o.executors.Has(t) {
			return &switchback.NoExecutorError{Type: t}
		}
	}
	return routing.SeedDefaults(o.routes, o.EmergencyMode)
}

// SetFallbackEnabled toggles the whole fallback path.
func (o *Orchestrator) SetFallbackEnabled(enabled bool) {
	o.stateMu.Lock()
	o.enabled = enabled
	o.stateMu.Unlock()

	o.logger.Info("fallbacks toggled", "enabled", enabled)
}

// FallbacksEnabled reports whether the fallback path is active.
func (o *Orchestrator) FallbacksEnabled() bool {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.enabled
}

// SetEmergencyMode toggles the last-resort degraded route. Transition
// events are published only when the value actually changes.
func (o *Orchestrator) SetEmergencyMode(on bool) {
	o.stateMu.Lock()
	changed := o.emergency != on
	o.emergency = on
	o.stateMu.Unlock()

	if !changed {
		return
	}
	if on {
		o.logger.Warn("emergency mode activated")
		o.sink.Publish(switchback.EmergencyModeActivatedEvent{})
	} else {
		o.logger.Info("emergency mode deactivated")
		o.sink.Publish(switchback.EmergencyModeDeactivatedEvent{})
	}
}

// EmergencyMode reports whether emergency mode is on.
func (o *Orchestrator) EmergencyMode() bool {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.emergency
}

// GetMetrics returns a defensive copy of the aggregated counters.
func (o *Orchestrator) GetMetrics() metrics.Snapshot {
	return o.stats.GetMetrics()
}

// ResetMetrics zeroes the aggregated counters.
func (o *Orchestrator) ResetMetrics() {
	o.stats.ResetMetrics()
}

// GetCircuitBreakerStatus returns a snapshot of every tracked breaker.
func (o *Orchestrator) GetCircuitBreakerStatus() map[string]breaker.Status {
	return o.breakers.Status()
}

// GetProviderHealth returns a snapshot of the monitored provider health.
// Without a configured probe the map is empty.
func (o *Orchestrator) GetProviderHealth() map[string]health.ProviderHealth {
	if o.monitor == nil {
		return map[string]health.ProviderHealth{}
	}
	return o.monitor.Snapshot()
}

// StartHealthMonitor launches the background health loop.
func (o *Orchestrator) StartHealthMonitor(ctx context.Context) error {
	if o.monitor == nil {
		return errors.New("no health probe configured")
	}
	return o.monitor.Start(ctx)
}

// StopHealthMonitor halts the background health loop.
func (o *Orchestrator) StopHealthMonitor() {
	if o.monitor != nil {
		o.monitor.Stop()
	}
}

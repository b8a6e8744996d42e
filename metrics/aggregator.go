// Package metrics aggregates fallback counters and per-route usage. The
// aggregator is the in-process source of truth; counters are optionally
// mirrored into OpenTelemetry instruments for Prometheus export.
package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/switchback/switchback-go/switchback"
)

// Snapshot is a defensive copy of the aggregator's state. Mutating a
// returned snapshot never alters the internal counters.
type Snapshot struct {
	TotalFallbacks       int64            `json:"total_fallbacks"`
	SuccessfulFallbacks  int64            `json:"successful_fallbacks"`
	FailedFallbacks      int64            `json:"failed_fallbacks"`
	ProviderSwitches     int64            `json:"provider_switches"`
	AgentSwitches        int64            `json:"agent_switches"`
	EmergencyActivations int64            `json:"emergency_activations"`
	RoutesUsed           map[string]int64 `json:"routes_used"`
	AverageFallbackTime  time.Duration    `json:"average_fallback_time"`
}

// Aggregator owns the counters. All mutation goes through its lock.
type Aggregator struct {
	mu sync.Mutex

	totalFallbacks       int64
	successfulFallbacks  int64
	failedFallbacks      int64
	providerSwitches     int64
	agentSwitches        int64
	emergencyActivations int64
	routesUsed           map[string]int64

	// Running mean of TotalDuration over successful fallbacks.
	successDurationSum time.Duration

	// Optional otel mirrors; nil when not instrumented.
	fallbackCounter  metric.Int64Counter
	outcomeCounter   metric.Int64Counter
	routeCounter     metric.Int64Counter
	durationHist     metric.Float64Histogram
	emergencyCounter metric.Int64Counter
}

// NewAggregator creates a plain, uninstrumented aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{routesUsed: make(map[string]int64)}
}

// NewInstrumentedAggregator creates an aggregator that also records into
// OpenTelemetry instruments on the global meter provider.
func NewInstrumentedAggregator() (*Aggregator, error) {
	a := NewAggregator()
	meter := otel.Meter("switchback.metrics")

	var err error
	if a.fallbackCounter, err = meter.Int64Counter(
		"switchback.fallbacks",
		metric.WithDescription("Total fallback orchestrations"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("failed to create fallback counter: %w", err)
	}
	if a.outcomeCounter, err = meter.Int64Counter(
		"switchback.fallback.outcomes",
		metric.WithDescription("Fallback orchestration outcomes by status"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("failed to create outcome counter: %w", err)
	}
	if a.routeCounter, err = meter.Int64Counter(
		"switchback.route.attempts",
		metric.WithDescription("Route executor invocations by route"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("failed to create route counter: %w", err)
	}
	if a.durationHist, err = meter.Float64Histogram(
		"switchback.fallback.duration",
		metric.WithDescription("Successful fallback orchestration duration"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}
	if a.emergencyCounter, err = meter.Int64Counter(
		"switchback.emergency.activations",
		metric.WithDescription("Emergency route activations"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("failed to create emergency counter: %w", err)
	}
	return a, nil
}

// RecordFallbackStart counts one orchestration entering the fallback path.
func (a *Aggregator) RecordFallbackStart() {
	a.mu.Lock()
	a.totalFallbacks++
	a.mu.Unlock()

	if a.fallbackCounter != nil {
		a.fallbackCounter.Add(context.Background(), 1)
	}
}

// RecordRouteAttempt counts one executor invocation for a route, whatever
// the outcome.
func (a *Aggregator) RecordRouteAttempt(routeID string) {
	a.mu.Lock()
	a.routesUsed[routeID]++
	a.mu.Unlock()

	if a.routeCounter != nil {
		a.routeCounter.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("route.id", routeID)))
	}
}

// RecordSuccess counts a successful orchestration, attributes the switch to
// its route type, and folds the duration into the running mean.
func (a *Aggregator) RecordSuccess(routeType switchback.RouteType, duration time.Duration) {
	a.mu.Lock()
	a.successfulFallbacks++
	a.successDurationSum += duration
	switch routeType {
	case switchback.RouteTypeProvider:
		a.providerSwitches++
	case switchback.RouteTypeAgent:
		a.agentSwitches++
	}
	a.mu.Unlock()

	if a.outcomeCounter != nil {
		a.outcomeCounter.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("status", "success"),
			attribute.String("route.type", routeType.String()),
		))
	}
	if a.durationHist != nil {
		a.durationHist.Record(context.Background(),
			float64(duration.Microseconds())/1000.0)
	}
}

// RecordFailure counts an orchestration that exhausted its candidates.
func (a *Aggregator) RecordFailure() {
	a.mu.Lock()
	a.failedFallbacks++
	a.mu.Unlock()

	if a.outcomeCounter != nil {
		a.outcomeCounter.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("status", "failure")))
	}
}

// RecordEmergencyActivation counts one emergency route activation.
func (a *Aggregator) RecordEmergencyActivation() {
	a.mu.Lock()
	a.emergencyActivations++
	a.mu.Unlock()

	if a.emergencyCounter != nil {
		a.emergencyCounter.Add(context.Background(), 1)
	}
}

// GetMetrics returns a defensive copy of all counters.
func (a *Aggregator) GetMetrics() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	routes := make(map[string]int64, len(a.routesUsed))
	for id, n := range a.routesUsed {
		routes[id] = n
	}

	var avg time.Duration
	if a.successfulFallbacks > 0 {
		avg = a.successDurationSum / time.Duration(a.successfulFallbacks)
	}

	return Snapshot{
		TotalFallbacks:       a.totalFallbacks,
		SuccessfulFallbacks:  a.successfulFallbacks,
		FailedFallbacks:      a.failedFallbacks,
		ProviderSwitches:     a.providerSwitches,
		AgentSwitches:        a.agentSwitches,
		EmergencyActivations: a.emergencyActivations,
		RoutesUsed:           routes,
		AverageFallbackTime:  avg,
	}
}

// ResetMetrics zeroes every counter and clears the route usage map. The
// otel mirrors are monotone by contract and are not reset.
func (a *Aggregator) ResetMetrics() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalFallbacks = 0
	a.successfulFallbacks = 0
	a.failedFallbacks = 0
	a.providerSwitches = 0
	a.agentSwitches = 0
	a.emergencyActivations = 0
	a.successDurationSum = 0
	a.routesUsed = make(map[string]int64)
}

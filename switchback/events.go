package switchback

// Event is a named, fire-and-forget notification published by the engine.
// Subscribers observe; they cannot acknowledge or apply backpressure.
type Event interface {
	// EventName returns the stable name of the event.
	EventName() string
}

// FallbackSucceededEvent is published when a route serves the request.
type FallbackSucceededEvent struct {
	Context *FallbackContext
	Result  *FallbackResult
	Route   *FallbackRoute
}

// EventName implements Event.
func (FallbackSucceededEvent) EventName() string { return "fallback.succeeded" }

// FallbackFailedEvent is published when the orchestration exhausts its
// candidates or attempt budget.
type FallbackFailedEvent struct {
	Context         *FallbackContext
	Result          *FallbackResult
	RoutesAttempted []string
}

// EventName implements Event.
func (FallbackFailedEvent) EventName() string { return "fallback.failed" }

// CircuitBreakerOpenedEvent is published when a target's failure count
// reaches its threshold.
type CircuitBreakerOpenedEvent struct {
	Target   string
	Failures int
}

// EventName implements Event.
func (CircuitBreakerOpenedEvent) EventName() string { return "circuit_breaker.opened" }

// CircuitBreakerResetEvent is published when a success closes a breaker.
type CircuitBreakerResetEvent struct {
	Target string
}

// EventName implements Event.
func (CircuitBreakerResetEvent) EventName() string { return "circuit_breaker.reset" }

// HealthStatusChangedEvent is published by the health monitor on every tick
// for every probed provider.
type HealthStatusChangedEvent struct {
	ProviderID          string
	IsHealthy           bool
	ConsecutiveFailures int
}

// EventName implements Event.
func (HealthStatusChangedEvent) EventName() string { return "health.status_changed" }

// EmergencyModeActivatedEvent is published when emergency mode turns on.
type EmergencyModeActivatedEvent struct{}

// EventName implements Event.
func (EmergencyModeActivatedEvent) EventName() string { return "emergency_mode.activated" }

// EmergencyModeDeactivatedEvent is published when emergency mode turns off.
type EmergencyModeDeactivatedEvent struct{}

// EventName implements Event.
func (EmergencyModeDeactivatedEvent) EventName() string { return "emergency_mode.deactivated" }

// EventSink receives engine events.
type EventSink interface {
	Publish(event Event)
}

// SinkFunc adapts a function to the EventSink interface.
type SinkFunc func(event Event)

// Publish implements EventSink.
func (f SinkFunc) Publish(event Event) { f(event) }

// NopSink discards all events.
type NopSink struct{}

// Publish implements EventSink.
func (NopSink) Publish(Event) {}

// MultiSink fans events out to every sink in order. Delivery is synchronous
// and unacknowledged; a slow subscriber delays the publisher.
type MultiSink []EventSink

// Publish implements EventSink.
func (m MultiSink) Publish(event Event) {
	for _, s := range m {
		if s != nil {
			s.Publish(event)
		}
	}
}

// Package breaker tracks per-target failure state and decides whether a
// target is currently eligible for a fallback attempt.
package breaker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/switchback/switchback-go/switchback"
)

// State represents the state of one target's circuit breaker.
type State int

const (
	// StateClosed means the target is eligible and failures are counted.
	StateClosed State = iota
	// StateOpen means the target is ineligible until the cooldown elapses.
	StateOpen
	// StateHalfOpen means a trial attempt is being allowed through.
	StateHalfOpen
)

// String returns the string representation of the breaker state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Status is a point-in-time snapshot of one target's breaker, safe to
// serialize for operator visibility.
type Status struct {
	State           string     `json:"state"`
	Failures        int        `json:"failures"`
	LastFailureTime *time.Time `json:"last_failure_time,omitempty"`
	NextAttemptTime *time.Time `json:"next_attempt_time,omitempty"`
}

// ManagerConfig configures breaker behavior.
type ManagerConfig struct {
	// FailureThreshold is the default failure count that opens a breaker.
	// Default: 5
	FailureThreshold int

	// Cooldown is how long an open breaker waits before permitting a
	// half-open trial.
	// Default: 60s
	Cooldown time.Duration
}

// DefaultManagerConfig returns a manager config with the engine defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		FailureThreshold: 5,
		Cooldown:         60 * time.Second,
	}
}

type entry struct {
	state       State
	failures    int
	lastFailure time.Time
	nextAttempt time.Time
}

// Manager owns breaker state for every target. Entries are created lazily
// on the first recorded failure; an absent entry is equivalent to closed
// with zero failures. The machine cycles closed -> open -> half-open for
// the life of the process; there is no terminal state.
type Manager struct {
	config ManagerConfig
	clock  switchback.Clock
	sink   switchback.EventSink
	logger *slog.Logger

	mu      sync.Mutex
	targets map[string]*entry
}

// NewManager creates a breaker manager.
func NewManager(config ManagerConfig, clock switchback.Clock, sink switchback.EventSink, logger *slog.Logger) *Manager {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 60 * time.Second
	}
	if clock == nil {
		clock = switchback.SystemClock{}
	}
	if sink == nil {
		sink = switchback.NopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		config:  config,
		clock:   clock,
		sink:    sink,
		logger:  logger,
		targets: make(map[string]*entry),
	}
}

// IsOpen reports whether the target is currently ineligible. An open
// breaker whose cooldown has elapsed transitions to half-open and the call
// returns false, permitting a trial. Half-open always permits the trial;
// concurrent trials are not additionally restricted.
func (m *Manager) IsOpen(target string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.targets[target]
	if !ok || e.state == StateClosed {
		return false
	}

	if e.state == StateOpen {
		if m.clock.Now().Sub(e.lastFailure) > m.config.Cooldown {
			e.state = StateHalfOpen
			m.logger.Debug("circuit breaker half-open", "target", target)
			return false
		}
		return true
	}

	// Half-open: allow the trial.
	return false
}

// RecordFailure counts a failure against the target using the default
// threshold.
func (m *Manager) RecordFailure(target string) {
	m.RecordFailureWithThreshold(target, m.config.FailureThreshold)
}

// RecordFailureWithThreshold counts a failure against the target, opening
// the breaker once failures reach threshold. Route types with their own
// thresholds (provider vs agent) pass them through here.
func (m *Manager) RecordFailureWithThreshold(target string, threshold int) {
	if threshold <= 0 {
		threshold = m.config.FailureThreshold
	}

	m.mu.Lock()
	e, ok := m.targets[target]
	if !ok {
		e = &entry{state: StateClosed}
		m.targets[target] = e
	}

	e.failures++
	e.lastFailure = m.clock.Now()

	opened := false
	if e.failures >= threshold && e.state != StateOpen {
		e.state = StateOpen
		e.nextAttempt = e.lastFailure.Add(m.config.Cooldown)
		opened = true
	}
	failures := e.failures
	m.mu.Unlock()

	if opened {
		m.logger.Warn("circuit breaker opened", "target", target, "failures", failures)
		m.sink.Publish(switchback.CircuitBreakerOpenedEvent{Target: target, Failures: failures})
	}
}

// RecordSuccess resets the target's breaker to closed with zero failures.
// Targets that never failed have no entry and nothing to reset.
func (m *Manager) RecordSuccess(target string) {
	m.mu.Lock()
	e, ok := m.targets[target]
	if !ok {
		m.mu.Unlock()
		return
	}
	e.failures = 0
	e.state = StateClosed
	e.nextAttempt = time.Time{}
	m.mu.Unlock()

	m.logger.Debug("circuit breaker reset", "target", target)
	m.sink.Publish(switchback.CircuitBreakerResetEvent{Target: target})
}

// StateOf returns the target's current state without side effects.
func (m *Manager) StateOf(target string) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.targets[target]
	if !ok {
		return StateClosed
	}
	return e.state
}

// Status returns a snapshot of every tracked target.
func (m *Manager) Status() map[string]Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]Status, len(m.targets))
	for target, e := range m.targets {
		s := Status{
			State:    e.state.String(),
			Failures: e.failures,
		}
		if !e.lastFailure.IsZero() {
			t := e.lastFailure
			s.LastFailureTime = &t
		}
		if !e.nextAttempt.IsZero() {
			t := e.nextAttempt
			s.NextAttemptTime = &t
		}
		out[target] = s
	}
	return out
}

package breaker

import (
	"sync"
	"testing"
	"time"

	"github.com/switchback/switchback-go/switchback"
)

// captureSink records published events for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []switchback.Event
}

func (c *captureSink) Publish(e switchback.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureSink) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.EventName()
	}
	return out
}

func newTestManager(threshold int, cooldown time.Duration) (*Manager, *switchback.ManualClock, *captureSink) {
	clock := switchback.NewManualClock(time.Unix(1700000000, 0))
	sink := &captureSink{}
	m := NewManager(ManagerConfig{
		FailureThreshold: threshold,
		Cooldown:         cooldown,
	}, clock, sink, nil)
	return m, clock, sink
}

func TestUnknownTargetIsClosed(t *testing.T) {
	m, _, _ := newTestManager(3, time.Minute)

	if m.IsOpen("never-seen") {
		t.Error("Expected unknown target to be eligible")
	}
	if m.StateOf("never-seen") != StateClosed {
		t.Error("Expected unknown target to report closed")
	}
	if len(m.Status()) != 0 {
		t.Error("Expected no entries before any failure")
	}
}

func TestOpensAtThreshold(t *testing.T) {
	m, _, sink := newTestManager(3, time.Minute)

	m.RecordFailure("openai")
	m.RecordFailure("openai")
	if m.IsOpen("openai") {
		t.Fatal("Breaker opened before threshold")
	}

	m.RecordFailure("openai")
	if !m.IsOpen("openai") {
		t.Fatal("Breaker did not open at threshold")
	}
	if m.StateOf("openai") != StateOpen {
		t.Errorf("Expected open state, got %s", m.StateOf("openai"))
	}

	names := sink.names()
	if len(names) != 1 || names[0] != "circuit_breaker.opened" {
		t.Errorf("Expected one opened event, got %v", names)
	}
	opened := sink.events[0].(switchback.CircuitBreakerOpenedEvent)
	if opened.Target != "openai" || opened.Failures != 3 {
		t.Errorf("Unexpected event payload: %+v", opened)
	}
}

func TestHalfOpenAfterCooldownThenReset(t *testing.T) {
	m, clock, sink := newTestManager(2, time.Minute)

	m.RecordFailure("anthropic")
	m.RecordFailure("anthropic")
	if !m.IsOpen("anthropic") {
		t.Fatal("Expected open breaker")
	}

	// Still open just before the cooldown boundary.
	clock.Advance(time.Minute)
	if !m.IsOpen("anthropic") {
		t.Fatal("Breaker allowed a trial before the cooldown elapsed")
	}

	// Past the cooldown: the next check flips to half-open and allows one trial.
	clock.Advance(time.Millisecond)
	if m.IsOpen("anthropic") {
		t.Fatal("Expected half-open trial after cooldown")
	}
	if m.StateOf("anthropic") != StateHalfOpen {
		t.Errorf("Expected half-open, got %s", m.StateOf("anthropic"))
	}

	// Half-open keeps allowing the trial.
	if m.IsOpen("anthropic") {
		t.Error("Half-open breaker blocked a trial")
	}

	m.RecordSuccess("anthropic")
	if m.StateOf("anthropic") != StateClosed {
		t.Errorf("Expected closed after success, got %s", m.StateOf("anthropic"))
	}
	status := m.Status()["anthropic"]
	if status.Failures != 0 {
		t.Errorf("Expected failures reset to 0, got %d", status.Failures)
	}

	names := sink.names()
	if names[len(names)-1] != "circuit_breaker.reset" {
		t.Errorf("Expected reset event last, got %v", names)
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	m, clock, _ := newTestManager(2, time.Minute)

	m.RecordFailure("ollama")
	m.RecordFailure("ollama")
	clock.Advance(2 * time.Minute)
	if m.IsOpen("ollama") {
		t.Fatal("Expected half-open trial")
	}

	// The trial fails: failures is already at threshold, so it reopens.
	m.RecordFailure("ollama")
	if m.StateOf("ollama") != StateOpen {
		t.Errorf("Expected reopened breaker, got %s", m.StateOf("ollama"))
	}
	if !m.IsOpen("ollama") {
		t.Error("Expected reopened breaker to block")
	}
}

func TestSuccessWithoutEntryIsNoop(t *testing.T) {
	m, _, sink := newTestManager(2, time.Minute)

	m.RecordSuccess("quiet")
	if len(m.Status()) != 0 {
		t.Error("Expected no entry for a target that never failed")
	}
	if len(sink.names()) != 0 {
		t.Error("Expected no events for a no-op success")
	}
}

func TestPerCallThreshold(t *testing.T) {
	m, _, _ := newTestManager(5, time.Minute)

	// Agent targets pass a lower threshold through.
	m.RecordFailureWithThreshold("agent-x", 2)
	if m.IsOpen("agent-x") {
		t.Fatal("Opened early")
	}
	m.RecordFailureWithThreshold("agent-x", 2)
	if !m.IsOpen("agent-x") {
		t.Fatal("Expected agent breaker open at its own threshold")
	}

	// Providers still use the default.
	for i := 0; i < 4; i++ {
		m.RecordFailure("provider-y")
	}
	if m.IsOpen("provider-y") {
		t.Error("Provider breaker opened below default threshold")
	}
}

func TestStatusSnapshot(t *testing.T) {
	m, clock, _ := newTestManager(2, time.Minute)

	m.RecordFailure("openai")
	m.RecordFailure("openai")

	status := m.Status()
	s, ok := status["openai"]
	if !ok {
		t.Fatal("Expected status entry")
	}
	if s.State != "open" || s.Failures != 2 {
		t.Errorf("Unexpected status: %+v", s)
	}
	if s.LastFailureTime == nil || !s.LastFailureTime.Equal(clock.Now()) {
		t.Errorf("Unexpected last failure time: %v", s.LastFailureTime)
	}
	if s.NextAttemptTime == nil || !s.NextAttemptTime.Equal(clock.Now().Add(time.Minute)) {
		t.Errorf("Unexpected next attempt time: %v", s.NextAttemptTime)
	}
}

package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/switchback/switchback-go/switchback"
)

// scriptedProbe returns canned results per provider and counts probes.
type scriptedProbe struct {
	mu      sync.Mutex
	results map[string]*switchback.ProbeResult
	errs    map[string]error
	calls   map[string]int
}

func newScriptedProbe() *scriptedProbe {
	return &scriptedProbe{
		results: make(map[string]*switchback.ProbeResult),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

func (p *scriptedProbe) set(providerID string, healthy bool, rt time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results[providerID] = &switchback.ProbeResult{IsHealthy: healthy, ResponseTime: rt}
	delete(p.errs, providerID)
}

func (p *scriptedProbe) fail(providerID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[providerID] = err
}

func (p *scriptedProbe) Probe(_ context.Context, providerID string) (*switchback.ProbeResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[providerID]++
	if err, ok := p.errs[providerID]; ok {
		return nil, err
	}
	return p.results[providerID], nil
}

type recordSink struct {
	mu     sync.Mutex
	events []switchback.Event
}

func (s *recordSink) Publish(e switchback.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordSink) all() []switchback.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]switchback.Event, len(s.events))
	copy(out, s.events)
	return out
}

func TestCheckNowTracksHealthyProvider(t *testing.T) {
	probe := newScriptedProbe()
	probe.set("openai", true, 120*time.Millisecond)
	clock := switchback.NewManualClock(time.Unix(1700000000, 0))
	sink := &recordSink{}

	m := NewMonitor(MonitorConfig{Providers: []string{"openai"}}, probe, clock, sink, nil)
	m.CheckNow(context.Background())

	h := m.Snapshot()["openai"]
	if !h.IsHealthy {
		t.Error("Expected healthy provider")
	}
	if h.SuccessRate != 1.0 || h.ErrorRate != 0.0 {
		t.Errorf("Unexpected rates: success=%v error=%v", h.SuccessRate, h.ErrorRate)
	}
	if h.AverageResponseTime != 120*time.Millisecond {
		t.Errorf("Expected first sample taken directly, got %v", h.AverageResponseTime)
	}
	if !h.LastHealthCheck.Equal(clock.Now()) {
		t.Errorf("Unexpected check time: %v", h.LastHealthCheck)
	}
}

func TestResponseTimeSmoothing(t *testing.T) {
	probe := newScriptedProbe()
	probe.set("openai", true, 100*time.Millisecond)
	m := NewMonitor(MonitorConfig{Providers: []string{"openai"}}, probe,
		switchback.NewManualClock(time.Unix(1700000000, 0)), nil, nil)

	m.CheckNow(context.Background())
	probe.set("openai", true, 200*time.Millisecond)
	m.CheckNow(context.Background())

	// 0.8*100ms + 0.2*200ms = 120ms
	got := m.Snapshot()["openai"].AverageResponseTime
	if got != 120*time.Millisecond {
		t.Errorf("AverageResponseTime = %v, want 120ms", got)
	}
}

func TestConsecutiveFailuresAndRecovery(t *testing.T) {
	probe := newScriptedProbe()
	probe.fail("ollama", errors.New("connection refused"))
	m := NewMonitor(MonitorConfig{Providers: []string{"ollama"}}, probe,
		switchback.NewManualClock(time.Unix(1700000000, 0)), nil, nil)

	ctx := context.Background()
	m.CheckNow(ctx)
	m.CheckNow(ctx)
	m.CheckNow(ctx)

	h := m.Snapshot()["ollama"]
	if h.IsHealthy {
		t.Error("Expected unhealthy provider")
	}
	if h.ConsecutiveFailures != 3 {
		t.Errorf("ConsecutiveFailures = %d, want 3", h.ConsecutiveFailures)
	}
	if h.LastError != "connection refused" {
		t.Errorf("LastError = %q", h.LastError)
	}

	// Recovery zeroes the failure streak and clears the error.
	probe.set("ollama", true, 50*time.Millisecond)
	m.CheckNow(ctx)
	h = m.Snapshot()["ollama"]
	if !h.IsHealthy || h.ConsecutiveFailures != 0 || h.LastError != "" {
		t.Errorf("Expected clean recovery, got %+v", h)
	}
}

func TestSuccessRateSmoothing(t *testing.T) {
	probe := newScriptedProbe()
	probe.set("openai", true, 0)
	m := NewMonitor(MonitorConfig{Providers: []string{"openai"}}, probe,
		switchback.NewManualClock(time.Unix(1700000000, 0)), nil, nil)

	ctx := context.Background()
	m.CheckNow(ctx)
	probe.fail("openai", errors.New("503"))
	m.CheckNow(ctx)

	// 0.2*0 + 0.8*1.0 = 0.8
	h := m.Snapshot()["openai"]
	if diff := h.SuccessRate - 0.8; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("SuccessRate = %v, want 0.8", h.SuccessRate)
	}
	if diff := h.ErrorRate - 0.2; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("ErrorRate = %v, want 0.2", h.ErrorRate)
	}
}

func TestEventPublishedEveryCheck(t *testing.T) {
	probe := newScriptedProbe()
	probe.set("openai", true, 0)
	sink := &recordSink{}
	m := NewMonitor(MonitorConfig{Providers: []string{"openai"}}, probe,
		switchback.NewManualClock(time.Unix(1700000000, 0)), sink, nil)

	ctx := context.Background()
	m.CheckNow(ctx)
	m.CheckNow(ctx)

	events := sink.all()
	if len(events) != 2 {
		t.Fatalf("Expected an event per check, got %d", len(events))
	}
	ev, ok := events[0].(switchback.HealthStatusChangedEvent)
	if !ok {
		t.Fatalf("Unexpected event type %T", events[0])
	}
	if ev.ProviderID != "openai" || !ev.IsHealthy {
		t.Errorf("Unexpected event payload: %+v", ev)
	}
}

func TestStartStop(t *testing.T) {
	probe := newScriptedProbe()
	probe.set("openai", true, 0)
	m := NewMonitor(MonitorConfig{
		Providers: []string{"openai"},
		Interval:  time.Hour,
	}, probe, switchback.SystemClock{}, nil, nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := m.Start(context.Background()); err != ErrAlreadyRunning {
		t.Errorf("Expected ErrAlreadyRunning on double start, got %v", err)
	}

	m.Stop()
	// Stop waits for the loop, so the immediate first check has landed.
	if m.Snapshot()["openai"].LastHealthCheck.IsZero() {
		t.Error("Expected the initial check to have run before Stop returned")
	}

	// A stopped monitor restarts cleanly.
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	m.Stop()
}

func TestStartWithoutProbe(t *testing.T) {
	m := NewMonitor(MonitorConfig{Providers: []string{"x"}}, nil,
		switchback.NewManualClock(time.Unix(1700000000, 0)), nil, nil)
	if err := m.Start(context.Background()); err == nil {
		t.Error("Expected error starting without a probe")
	}
}

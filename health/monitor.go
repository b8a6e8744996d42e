// Package health runs the background provider health monitor. Its signals
// are observational; they do not gate which routes are attempted.
package health

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/switchback/switchback-go/switchback"
)

// responseTimeAlpha weights the newest response-time sample (previous 0.8,
// new 0.2). The same weight smooths the probe success rate.
const responseTimeAlpha = 0.2

// ErrAlreadyRunning is returned by Start when the monitor loop is active.
var ErrAlreadyRunning = errors.New("health monitor already running")

// ProviderHealth is the tracked health state of one provider.
type ProviderHealth struct {
	IsHealthy           bool          `json:"is_healthy"`
	SuccessRate         float64       `json:"success_rate"`
	AverageResponseTime time.Duration `json:"average_response_time"`
	ErrorRate           float64       `json:"error_rate"`
	LastHealthCheck     time.Time     `json:"last_health_check"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastError           string        `json:"last_error,omitempty"`
}

// MonitorConfig configures the health monitor.
type MonitorConfig struct {
	// Providers is the roster of provider IDs to probe.
	Providers []string

	// Interval is the tick period.
	// Default: 30s
	Interval time.Duration
}

// Monitor periodically probes every configured provider and publishes
// HealthStatusChangedEvent on each tick, whether or not the status flipped.
// Emitting only on transitions was considered; every-tick emission keeps a
// liveness signal flowing to subscribers.
type Monitor struct {
	config MonitorConfig
	probe  switchback.HealthProbe
	clock  switchback.Clock
	sink   switchback.EventSink
	logger *slog.Logger

	mu      sync.Mutex
	state   map[string]*ProviderHealth
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewMonitor creates a health monitor. It does not start probing until
// Start is called.
func NewMonitor(config MonitorConfig, probe switchback.HealthProbe, clock switchback.Clock, sink switchback.EventSink, logger *slog.Logger) *Monitor {
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
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
	return &Monitor{
		config: config,
		probe:  probe,
		clock:  clock,
		sink:   sink,
		logger: logger,
		state:  make(map[string]*ProviderHealth),
	}
}

// Start launches the monitor loop. The loop probes once immediately, then
// on every interval until Stop is called or ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	if m.probe == nil {
		m.mu.Unlock()
		return errors.New("health monitor requires a probe")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true
	m.mu.Unlock()

	go m.loop(loopCtx)
	return nil
}

// Stop halts the monitor loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()
	<-done

	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	m.CheckNow(ctx)
	for {
		if err := m.clock.Sleep(ctx, m.config.Interval); err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		m.CheckNow(ctx)
	}
}

// CheckNow probes every configured provider once, synchronously. The loop
// calls it each tick; tests call it directly for determinism.
func (m *Monitor) CheckNow(ctx context.Context) {
	for _, providerID := range m.config.Providers {
		if ctx.Err() != nil {
			return
		}
		m.checkProvider(ctx, providerID)
	}
}

func (m *Monitor) checkProvider(ctx context.Context, providerID string) {
	result, err := m.probe.Probe(ctx, providerID)

	m.mu.Lock()
	h, ok := m.state[providerID]
	if !ok {
		h = &ProviderHealth{IsHealthy: true, SuccessRate: 1.0}
		m.state[providerID] = h
	}

	healthy := err == nil && result != nil && result.IsHealthy
	sample := 0.0
	if healthy {
		sample = 1.0
	}

	if ok {
		h.SuccessRate = responseTimeAlpha*sample + (1-responseTimeAlpha)*h.SuccessRate
	} else {
		h.SuccessRate = sample
	}
	h.ErrorRate = 1 - h.SuccessRate

	if result != nil && result.ResponseTime > 0 {
		if h.AverageResponseTime == 0 {
			h.AverageResponseTime = result.ResponseTime
		} else {
			h.AverageResponseTime = time.Duration(
				(1-responseTimeAlpha)*float64(h.AverageResponseTime) +
					responseTimeAlpha*float64(result.ResponseTime))
		}
	}

	h.IsHealthy = healthy
	h.LastHealthCheck = m.clock.Now()
	if healthy {
		h.ConsecutiveFailures = 0
		h.LastError = ""
	} else {
		h.ConsecutiveFailures++
		if err != nil {
			h.LastError = err.Error()
		} else {
			h.LastError = "probe reported unhealthy"
		}
	}
	snapshot := *h
	m.mu.Unlock()

	if !healthy {
		m.logger.Warn("provider unhealthy",
			"provider", providerID,
			"consecutive_failures", snapshot.ConsecutiveFailures,
			"last_error", snapshot.LastError,
		)
	}

	m.sink.Publish(switchback.HealthStatusChangedEvent{
		ProviderID:          providerID,
		IsHealthy:           snapshot.IsHealthy,
		ConsecutiveFailures: snapshot.ConsecutiveFailures,
	})
}

// Snapshot returns a copy of every provider's health state.
func (m *Monitor) Snapshot() map[string]ProviderHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]ProviderHealth, len(m.state))
	for id, h := range m.state {
		out[id] = *h
	}
	return out
}

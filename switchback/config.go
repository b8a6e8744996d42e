package switchback

import "time"

// Config holds the tunables recognized by the failover engine.
type Config struct {
	// EnableFallbacks globally enables the fallback path.
	// Default: true
	EnableFallbacks bool

	// MaxFallbackAttempts bounds how many route executors a single
	// orchestration may invoke.
	// Default: 3
	MaxFallbackAttempts int

	// FallbackDelay is the suspension before each route attempt. Values
	// <= 0 skip the delay.
	// Default: 1s
	FallbackDelay time.Duration

	// ProviderFailureThreshold is the breaker threshold for provider and
	// untyped targets.
	// Default: 5
	ProviderFailureThreshold int

	// AgentFailureThreshold is the breaker threshold for agent targets.
	// Default: 3
	AgentFailureThreshold int

	// BreakerCooldown is how long an open breaker waits before permitting
	// a half-open trial.
	// Default: 60s
	BreakerCooldown time.Duration

	// HealthCheckInterval is the provider health monitor tick period.
	// Default: 30s
	HealthCheckInterval time.Duration

	// EmergencyMode activates the last-resort degraded route.
	// Default: false
	EmergencyMode bool

	// QualityThreshold is the minimum quality score for an executor result
	// to count as a success. Results scoring below it are treated as soft
	// failures and the chain continues. Emergency payloads are exempt.
	// Default: 0.7
	QualityThreshold float64

	// Providers is the roster probed by the health monitor.
	Providers []string
}

// DefaultConfig returns a config with the engine defaults.
func DefaultConfig() Config {
	return Config{
		EnableFallbacks:          true,
		MaxFallbackAttempts:      3,
		FallbackDelay:            time.Second,
		ProviderFailureThreshold: 5,
		AgentFailureThreshold:    3,
		BreakerCooldown:          60 * time.Second,
		HealthCheckInterval:      30 * time.Second,
		EmergencyMode:            false,
		QualityThreshold:         0.7,
	}
}

// Normalize fills zero values with defaults. EnableFallbacks and
// EmergencyMode are left as set; FallbackDelay keeps negative or zero
// values, which disable the delay.
func (c *Config) Normalize() {
	if c.MaxFallbackAttempts <= 0 {
		c.MaxFallbackAttempts = 3
	}
	if c.ProviderFailureThreshold <= 0 {
		c.ProviderFailureThreshold = 5
	}
	if c.AgentFailureThreshold <= 0 {
		c.AgentFailureThreshold = 3
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 60 * time.Second
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = 30 * time.Second
	}
	if c.QualityThreshold <= 0 {
		c.QualityThreshold = 0.7
	}
}

// Package config loads engine configuration from YAML with environment
// overrides. Engine state is memory-only by design, so this loader is the
// initializer that re-seeds configuration on every startup.
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/switchback/switchback-go/switchback"
)

// envPrefix maps SWITCHBACK_FALLBACK_DELAY_MS -> fallback_delay_ms.
const envPrefix = "SWITCHBACK_"

// fileConfig is the wire shape: durations are plain millisecond integers.
type fileConfig struct {
	EnableFallbacks          bool     `koanf:"enable_fallbacks"`
	MaxFallbackAttempts      int      `koanf:"max_fallback_attempts"`
	FallbackDelayMs          int      `koanf:"fallback_delay_ms"`
	ProviderFailureThreshold int      `koanf:"provider_failure_threshold"`
	AgentFailureThreshold    int      `koanf:"agent_failure_threshold"`
	BreakerCooldownMs        int      `koanf:"breaker_cooldown_ms"`
	HealthCheckIntervalMs    int      `koanf:"health_check_interval_ms"`
	EmergencyMode            bool     `koanf:"emergency_mode"`
	QualityThreshold         float64  `koanf:"quality_threshold"`
	Providers                []string `koanf:"providers"`
}

// Load reads configuration in three layers: engine defaults, then the YAML
// file at path (skipped when path is empty), then SWITCHBACK_* environment
// variables.
func Load(path string) (*switchback.Config, error) {
	k := koanf.New(".")

	// Defaults
	k.Set("enable_fallbacks", true)
	k.Set("max_fallback_attempts", 3)
	k.Set("fallback_delay_ms", 1000)
	k.Set("provider_failure_threshold", 5)
	k.Set("agent_failure_threshold", 3)
	k.Set("breaker_cooldown_ms", 60000)
	k.Set("health_check_interval_ms", 30000)
	k.Set("emergency_mode", false)
	k.Set("quality_threshold", 0.7)

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// 2. Load from ENV (SWITCHBACK_EMERGENCY_MODE -> emergency_mode)
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, err
	}

	var fc fileConfig
	if err := k.Unmarshal("", &fc); err != nil {
		return nil, err
	}

	cfg := switchback.Config{
		EnableFallbacks:          fc.EnableFallbacks,
		MaxFallbackAttempts:      fc.MaxFallbackAttempts,
		FallbackDelay:            time.Duration(fc.FallbackDelayMs) * time.Millisecond,
		ProviderFailureThreshold: fc.ProviderFailureThreshold,
		AgentFailureThreshold:    fc.AgentFailureThreshold,
		BreakerCooldown:          time.Duration(fc.BreakerCooldownMs) * time.Millisecond,
		HealthCheckInterval:      time.Duration(fc.HealthCheckIntervalMs) * time.Millisecond,
		EmergencyMode:            fc.EmergencyMode,
		QualityThreshold:         fc.QualityThreshold,
		Providers:                fc.Providers,
	}
	cfg.Normalize()
	return &cfg, nil
}

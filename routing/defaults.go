package routing

import "github.com/switchback/switchback-go/switchback"

// SeedDefaults registers the built-in route table: cross-provider failover,
// a model downgrade path, a generalist agent fallback, and the emergency
// route. Route state lives only in memory, so initializers call this on
// every startup before layering operator-defined routes on top.
//
// emergency reports whether emergency mode is currently on; it gates the
// emergency route's applicability.
func SeedDefaults(r *Registry, emergency func() bool) error {
	defaults := []*switchback.FallbackRoute{
		{
			ID:       "provider-openai-to-anthropic",
			Type:     switchback.RouteTypeProvider,
			Priority: 1,
			Source:   "openai",
			Target:   "anthropic",
			Enabled:  true,
		},
		{
			ID:       "provider-anthropic-to-openai",
			Type:     switchback.RouteTypeProvider,
			Priority: 1,
			Source:   "anthropic",
			Target:   "openai",
			Enabled:  true,
		},
		{
			ID:       "model-downgrade",
			Type:     switchback.RouteTypeModel,
			Priority: 2,
			Source:   switchback.WildcardSource,
			Target:   "baseline-model",
			Enabled:  true,
			Condition: func(fctx *switchback.FallbackContext) bool {
				// Only worth trying when quality requirements allow a
				// smaller model.
				return fctx.RequiredQuality == 0 || fctx.RequiredQuality <= 0.5
			},
		},
		{
			ID:       "agent-generalist",
			Type:     switchback.RouteTypeAgent,
			Priority: 3,
			Source:   switchback.WildcardSource,
			Target:   "generalist",
			Enabled:  true,
			Condition: func(fctx *switchback.FallbackContext) bool {
				return fctx.OriginalAgent != ""
			},
		},
		{
			ID:       "emergency-fallback",
			Type:     switchback.RouteTypeEndpoint,
			Priority: 10,
			Source:   switchback.WildcardSource,
			Target:   switchback.EmergencyTarget,
			Enabled:  true,
			Condition: func(*switchback.FallbackContext) bool {
				return emergency != nil && emergency()
			},
		},
	}

	for _, route := range defaults {
		if err := r.Add(route); err != nil {
			return err
		}
	}
	return nil
}

// Package switchback provides core types and interfaces for the switchback
// failover engine: fallback routes, failure contexts, execution results, and
// the collaborator capabilities the engine is polymorphic over.
package switchback

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RouteType identifies what kind of alternative a fallback route points at.
type RouteType int

const (
	// RouteTypeProvider reroutes to an alternative AI provider.
	RouteTypeProvider RouteType = iota
	// RouteTypeAgent reroutes to an alternative agent.
	RouteTypeAgent
	// RouteTypeEndpoint reroutes to an alternative endpoint.
	RouteTypeEndpoint
	// RouteTypeModel reroutes to an alternative model variant.
	RouteTypeModel
)

// String returns the string representation of the route type.
func (t RouteType) String() string {
	switch t {
	case RouteTypeProvider:
		return "provider"
	case RouteTypeAgent:
		return "agent"
	case RouteTypeEndpoint:
		return "endpoint"
	case RouteTypeModel:
		return "model"
	default:
		return "unknown"
	}
}

// Valid reports whether t is one of the known route types.
func (t RouteType) Valid() bool {
	switch t {
	case RouteTypeProvider, RouteTypeAgent, RouteTypeEndpoint, RouteTypeModel:
		return true
	default:
		return false
	}
}

// ParseRouteType converts a string into a RouteType.
func ParseRouteType(s string) (RouteType, error) {
	switch s {
	case "provider":
		return RouteTypeProvider, nil
	case "agent":
		return RouteTypeAgent, nil
	case "endpoint":
		return RouteTypeEndpoint, nil
	case "model":
		return RouteTypeModel, nil
	default:
		return 0, fmt.Errorf("unknown route type: %q", s)
	}
}

// WildcardSource matches any originating provider, agent, or endpoint.
const WildcardSource = "*"

// EmergencyTarget is the reserved target name for the last-resort degraded route.
const EmergencyTarget = "emergency"

// Condition is a pure predicate deciding whether a route applies to a
// failure context. Conditions must not mutate the context. A nil Condition
// is treated as always true.
type Condition func(*FallbackContext) bool

// FallbackRoute is a configured rule mapping a failing source to an
// alternative target. Routes are unique by ID; among applicable routes,
// ascending Priority is the sole ordering, with insertion order breaking
// ties.
type FallbackRoute struct {
	// ID uniquely identifies the route.
	ID string `json:"id"`

	// Type selects which RouteExecutor handles this route.
	Type RouteType `json:"type"`

	// Priority orders candidate routes; smaller values are tried earlier.
	Priority int `json:"priority"`

	// Source is the originating provider/agent/endpoint this route applies
	// to, or WildcardSource to apply to any.
	Source string `json:"source"`

	// Target identifies the alternative to try.
	Target string `json:"target"`

	// Condition further restricts applicability. Nil means always applicable.
	Condition Condition `json:"-"`

	// Enabled gates the route without removing it.
	Enabled bool `json:"enabled"`

	// SuccessRate is an exponential moving average of attempt outcomes
	// (alpha 0.1), maintained by the route registry.
	SuccessRate float64 `json:"success_rate"`

	// LastUsed is the time of the most recent attempt through this route.
	LastUsed time.Time `json:"last_used"`

	// Metadata carries open key/value annotations.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Clone returns a copy of the route with its own metadata map. The
// Condition func is shared; conditions are required to be pure.
func (r *FallbackRoute) Clone() *FallbackRoute {
	if r == nil {
		return nil
	}
	c := *r
	if r.Metadata != nil {
		c.Metadata = make(map[string]interface{}, len(r.Metadata))
		for k, v := range r.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Validate checks the route fields that the registry depends on.
func (r *FallbackRoute) Validate() error {
	if r == nil {
		return fmt.Errorf("route cannot be nil")
	}
	if r.ID == "" {
		return fmt.Errorf("route id cannot be empty")
	}
	if !r.Type.Valid() {
		return fmt.Errorf("route %s: invalid route type %d", r.ID, int(r.Type))
	}
	if r.Target == "" {
		return fmt.Errorf("route %s: target cannot be empty", r.ID)
	}
	if r.Source == "" {
		return fmt.Errorf("route %s: source cannot be empty (use %q for any)", r.ID, WildcardSource)
	}
	return nil
}

// FallbackContext describes why a primary call failed and how much fallback
// budget remains. The orchestrator mutates Attempt in place as routes are
// tried.
type FallbackContext struct {
	// RequestID correlates the fallback with the originating request.
	RequestID string `json:"request_id"`

	// OriginalProvider is the provider whose call failed, if any.
	OriginalProvider string `json:"original_provider,omitempty"`

	// OriginalAgent is the agent whose call failed, if any.
	OriginalAgent string `json:"original_agent,omitempty"`

	// OriginalEndpoint is the endpoint whose call failed, if any.
	OriginalEndpoint string `json:"original_endpoint,omitempty"`

	// Err is the failure that triggered the fallback.
	Err error `json:"-"`

	// Attempt counts fallback attempts already consumed, including prior
	// orchestrations for the same request.
	Attempt int `json:"attempt"`

	// MaxAttempts bounds Attempt. Zero means use the engine's configured
	// maximum.
	MaxAttempts int `json:"max_attempts"`

	// RequiredQuality is an optional minimum quality hint.
	RequiredQuality float64 `json:"required_quality,omitempty"`

	// Timeout is an optional per-attempt deadline hint, enforced when the
	// executor chain includes a TimeoutExecutor.
	Timeout time.Duration `json:"timeout,omitempty"`

	// UserID identifies the end user, if known.
	UserID string `json:"user_id,omitempty"`

	// Metadata carries open key/value annotations.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// NewFallbackContext creates a context for a failed call. A RequestID is
// generated when the caller has none.
func NewFallbackContext(requestID string, err error) *FallbackContext {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return &FallbackContext{
		RequestID: requestID,
		Err:       err,
		Metadata:  make(map[string]interface{}),
	}
}

// ExecutionResult is what a RouteExecutor returns for a single attempt.
type ExecutionResult struct {
	// Success reports whether the alternative served the request.
	Success bool `json:"success"`

	// Data is the opaque response payload on success.
	Data interface{} `json:"data,omitempty"`

	// QualityScore optionally grades the response, 0..1.
	QualityScore float64 `json:"quality_score,omitempty"`
}

// FallbackResult is the structured outcome of one orchestration. Business
// failures are reported here, never as returned errors.
type FallbackResult struct {
	// Success reports whether any route served the request.
	Success bool `json:"success"`

	// Data is the opaque payload from the winning route.
	Data interface{} `json:"data,omitempty"`

	// Err is the most recent underlying failure when Success is false.
	Err error `json:"-"`

	// RouteUsed is a snapshot of the route that succeeded.
	RouteUsed *FallbackRoute `json:"route_used,omitempty"`

	// FallbacksAttempted lists route IDs actually invoked, in order. Routes
	// skipped because their breaker was open are not included.
	FallbacksAttempted []string `json:"fallbacks_attempted"`

	// TotalDuration is the wall time of the whole orchestration.
	TotalDuration time.Duration `json:"total_duration"`

	// QualityScore is the winning route's quality grade, if any.
	QualityScore float64 `json:"quality_score,omitempty"`

	// Metadata carries outcome annotations such as fallbackDisabled.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

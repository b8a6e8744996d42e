package executor

import (
	"context"

	"github.com/switchback/switchback-go/switchback"
)

// emergencyQualityScore grades the canned degraded payload.
const emergencyQualityScore = 0.3

// DefaultEmergencyMessage is served when no custom message is configured.
const DefaultEmergencyMessage = "The service is operating in degraded mode. Your request was handled by a fallback responder."

// EmergencyExecutor is the last line of defense: an endpoint executor that
// serves a canned degraded payload for the reserved emergency target and
// always succeeds. Non-emergency endpoint routes are delegated to the
// wrapped executor, if any.
type EmergencyExecutor struct {
	// Message overrides DefaultEmergencyMessage when non-empty.
	Message string

	// Next handles endpoint routes whose target is not the emergency
	// target. Nil means such routes fail.
	Next switchback.RouteExecutor
}

// NewEmergencyExecutor creates an emergency executor with the default
// canned message and no delegate.
func NewEmergencyExecutor() *EmergencyExecutor {
	return &EmergencyExecutor{}
}

// Execute implements switchback.RouteExecutor.
func (e *EmergencyExecutor) Execute(ctx context.Context, route *switchback.FallbackRoute, fctx *switchback.FallbackContext) (*switchback.ExecutionResult, error) {
	if route.Target != switchback.EmergencyTarget {
		if e.Next != nil {
			return e.Next.Execute(ctx, route, fctx)
		}
		return &switchback.ExecutionResult{Success: false}, nil
	}

	message := e.Message
	if message == "" {
		message = DefaultEmergencyMessage
	}

	return &switchback.ExecutionResult{
		Success:      true,
		QualityScore: emergencyQualityScore,
		Data: map[string]interface{}{
			"emergency":  true,
			"message":    message,
			"request_id": fctx.RequestID,
		},
	}, nil
}

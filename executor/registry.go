// Package executor dispatches route attempts to the capability registered
// for each route type, and provides the emergency executor plus reliability
// decorators for production executors.
package executor

import (
	"sync"

	"github.com/switchback/switchback-go/switchback"
)

// Registry maps each route type to its executor. Route types are a closed
// set, so a missing registration is a configuration error surfaced when a
// route is added, never during orchestration.
type Registry struct {
	mu        sync.RWMutex
	executors map[switchback.RouteType]switchback.RouteExecutor
}

// NewRegistry creates an empty executor registry.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[switchback.RouteType]switchback.RouteExecutor),
	}
}

// Register binds an executor to a route type, replacing any previous one.
func (r *Registry) Register(t switchback.RouteType, exec switchback.RouteExecutor) error {
	if !t.Valid() {
		return &switchback.NoExecutorError{Type: t}
	}
	if exec == nil {
		return &switchback.NoExecutorError{Type: t}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[t] = exec
	return nil
}

// Get returns the executor for a route type.
func (r *Registry) Get(t switchback.RouteType) (switchback.RouteExecutor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exec, ok := r.executors[t]
	if !ok {
		return nil, &switchback.NoExecutorError{Type: t}
	}
	return exec, nil
}

// Has reports whether a route type has a registered executor.
func (r *Registry) Has(t switchback.RouteType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.executors[t]
	return ok
}

// Types returns the route types with registered executors.
func (r *Registry) Types() []switchback.RouteType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]switchback.RouteType, 0, len(r.executors))
	for t := range r.executors {
		out = append(out, t)
	}
	return out
}

// Package routing stores fallback rules and resolves which apply to a
// failure context.
package routing

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/switchback/switchback-go/switchback"
)

// successRateAlpha is the EMA weight of the newest attempt outcome.
const successRateAlpha = 0.1

// Registry owns the route map. All access is serialized through its lock;
// callers only ever see clones.
type Registry struct {
	mu     sync.RWMutex
	routes map[string]*switchback.FallbackRoute
	order  map[string]int // insertion sequence, breaks priority ties
	seq    int
	logger *slog.Logger
}

// NewRegistry creates an empty route registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		routes: make(map[string]*switchback.FallbackRoute),
		order:  make(map[string]int),
		logger: logger,
	}
}

// Add inserts or overwrites a route by ID. Overwriting keeps the original
// insertion position so tie-breaks stay stable across reconfiguration.
func (r *Registry) Add(route *switchback.FallbackRoute) error {
	if err := route.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.order[route.ID]; !exists {
		r.order[route.ID] = r.seq
		r.seq++
	}
	r.routes[route.ID] = route.Clone()

	r.logger.Debug("fallback route registered",
		"route_id", route.ID,
		"type", route.Type.String(),
		"source", route.Source,
		"target", route.Target,
		"priority", route.Priority,
	)
	return nil
}

// Remove deletes a route by ID and reports whether it existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.routes[id]; !ok {
		return false
	}
	delete(r.routes, id)
	delete(r.order, id)
	r.logger.Debug("fallback route removed", "route_id", id)
	return true
}

// Get returns a clone of the route with the given ID.
func (r *Registry) Get(id string) (*switchback.FallbackRoute, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	route, ok := r.routes[id]
	if !ok {
		return nil, false
	}
	return route.Clone(), true
}

// FindApplicable returns clones of the enabled routes whose source matches
// the context and whose condition holds, sorted ascending by priority.
// Equal priorities keep insertion order.
func (r *Registry) FindApplicable(fctx *switchback.FallbackContext) []*switchback.FallbackRoute {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*switchback.FallbackRoute
	for _, route := range r.routes {
		if !route.Enabled {
			continue
		}
		if !sourceMatches(route.Source, fctx) {
			continue
		}
		if route.Condition != nil && !route.Condition(fctx) {
			continue
		}
		matched = append(matched, route)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority < matched[j].Priority
		}
		return r.order[matched[i].ID] < r.order[matched[j].ID]
	})

	out := make([]*switchback.FallbackRoute, len(matched))
	for i, route := range matched {
		out[i] = route.Clone()
	}
	return out
}

// All returns a snapshot of every registered route.
func (r *Registry) All() []*switchback.FallbackRoute {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*switchback.FallbackRoute, 0, len(r.routes))
	for _, route := range r.routes {
		out = append(out, route.Clone())
	}
	return out
}

// Snapshot returns a copy of the route map keyed by ID.
func (r *Registry) Snapshot() map[string]*switchback.FallbackRoute {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*switchback.FallbackRoute, len(r.routes))
	for id, route := range r.routes {
		out[id] = route.Clone()
	}
	return out
}

// RecordOutcome folds one attempt outcome into the route's success-rate EMA
// and stamps LastUsed. It returns a post-update snapshot, or nil if the
// route was removed concurrently.
func (r *Registry) RecordOutcome(id string, success bool, now time.Time) *switchback.FallbackRoute {
	r.mu.Lock()
	defer r.mu.Unlock()

	route, ok := r.routes[id]
	if !ok {
		return nil
	}

	sample := 0.0
	if success {
		sample = 1.0
	}
	route.SuccessRate = successRateAlpha*sample + (1-successRateAlpha)*route.SuccessRate
	route.LastUsed = now
	return route.Clone()
}

// Len returns the number of registered routes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}

// sourceMatches reports whether the route source applies to the context's
// originating provider, agent, or endpoint.
func sourceMatches(source string, fctx *switchback.FallbackContext) bool {
	if source == switchback.WildcardSource {
		return true
	}
	if fctx == nil {
		return false
	}
	return (fctx.OriginalProvider != "" && source == fctx.OriginalProvider) ||
		(fctx.OriginalAgent != "" && source == fctx.OriginalAgent) ||
		(fctx.OriginalEndpoint != "" && source == fctx.OriginalEndpoint)
}

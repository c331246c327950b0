// Portcullis - API Request Gateway and Pipeline Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portcullis

package gateway

import (
	"sort"
	"strings"
	"sync"
)

// Registry holds endpoint definitions and resolves incoming requests to
// them. Exact paths are matched first; pattern paths are then scanned in
// registration order, so the first registered matching pattern wins.
// Safe for concurrent use; registration is expected at startup but
// endpoints may be added at runtime.
type Registry struct {
	mu sync.RWMutex

	// exact maps "METHOD:path" for parameter-free routes.
	exact map[string]*EndpointDefinition

	// patterns preserves registration order for deterministic matches.
	patterns []*EndpointDefinition
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{exact: make(map[string]*EndpointDefinition)}
}

// Register adds or replaces an endpoint. Re-registering the same
// method+path replaces the previous definition in place, keeping its
// match priority.
func (r *Registry) Register(def *EndpointDefinition) error {
	if err := def.normalize(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !def.isPattern() {
		r.exact[def.Key()] = def
		return nil
	}

	for i, existing := range r.patterns {
		if existing.Method == def.Method && existing.Path == def.Path {
			r.patterns[i] = def
			return nil
		}
	}
	r.patterns = append(r.patterns, def)
	return nil
}

// Resolve matches a method and path to an endpoint, binding path
// parameters. Returns nil when nothing matches.
func (r *Registry) Resolve(method, path string) (*EndpointDefinition, map[string]string) {
	method = strings.ToUpper(method)
	path = normalizePath(path)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if def, ok := r.exact[method+":"+path]; ok {
		return def, map[string]string{}
	}

	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for _, def := range r.patterns {
		if def.Method != method {
			continue
		}
		if params, ok := matchPattern(def.Path, segments); ok {
			return def, params
		}
	}
	return nil, nil
}

// matchPattern matches request segments against a pattern path. Segment
// counts must be equal; ':' segments bind parameters, others must match
// exactly.
func matchPattern(pattern string, segments []string) (map[string]string, bool) {
	patSegments := strings.Split(strings.TrimPrefix(pattern, "/"), "/")
	if len(patSegments) != len(segments) {
		return nil, false
	}

	params := map[string]string{}
	for i, pat := range patSegments {
		if strings.HasPrefix(pat, ":") {
			if segments[i] == "" {
				return nil, false
			}
			params[pat[1:]] = segments[i]
			continue
		}
		if pat != segments[i] {
			return nil, false
		}
	}
	return params, true
}

// normalizePath strips a trailing slash so "/api/users/" and
// "/api/users" resolve identically. The root path stays "/".
func normalizePath(path string) string {
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		return strings.TrimRight(path, "/")
	}
	if path == "" {
		return "/"
	}
	return path
}

// Deregister removes an endpoint by method and path. Returns whether an
// endpoint was removed.
func (r *Registry) Deregister(method, path string) bool {
	method = strings.ToUpper(method)

	r.mu.Lock()
	defer r.mu.Unlock()

	key := method + ":" + path
	if _, ok := r.exact[key]; ok {
		delete(r.exact, key)
		return true
	}
	for i, def := range r.patterns {
		if def.Method == method && def.Path == path {
			r.patterns = append(r.patterns[:i], r.patterns[i+1:]...)
			return true
		}
	}
	return false
}

// List returns all registered endpoints sorted by key.
func (r *Registry) List() []*EndpointDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*EndpointDefinition, 0, len(r.exact)+len(r.patterns))
	for _, def := range r.exact {
		out = append(out, def)
	}
	out = append(out, r.patterns...)
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Len returns the number of registered endpoints.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.exact) + len(r.patterns)
}

// Clear removes all endpoints. Intended for tests.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exact = make(map[string]*EndpointDefinition)
	r.patterns = nil
}

package assessor

import (
	"fmt"
	"sync"
)

// Registry holds the configured set of assessors for assessment profiles.
// It is an instance, not package state, so concurrent profiles can carry
// different assessor sets without interference.
type Registry struct {
	mu        sync.RWMutex
	assessors map[string]Assessor
}

// NewRegistry creates a registry pre-loaded with the builtin assessors.
// Externally registered assessors replace builtins of the same name.
func NewRegistry() *Registry {
	r := &Registry{assessors: make(map[string]Assessor)}
	for _, a := range builtinAssessors() {
		r.assessors[a.Name()] = a
	}
	return r
}

// Register adds or replaces an assessor by its dimension name
func (r *Registry) Register(a Assessor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assessors[a.Name()] = a
}

// Get returns an assessor by dimension name
func (r *Registry) Get(name string) (Assessor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assessors[name]
	return a, ok
}

// Names returns all registered dimension names
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.assessors))
	for name := range r.assessors {
		names = append(names, name)
	}
	return names
}

// Resolve returns the assessors for the named dimensions, in the given
// order. Every dimension in a profile must have a registered assessor.
func (r *Registry) Resolve(dimensions []string) ([]Assessor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Assessor, 0, len(dimensions))
	for _, name := range dimensions {
		a, ok := r.assessors[name]
		if !ok {
			return nil, fmt.Errorf("no assessor registered for dimension %s", name)
		}
		out = append(out, a)
	}
	return out, nil
}

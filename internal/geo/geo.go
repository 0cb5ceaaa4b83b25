// Package geo supplies the geolocation validity flag consulted before an
// investigation is finalized. Validation itself happens elsewhere; this
// package only records and reports the outcome.
package geo

import (
	"context"
	"sync"
)

// Provider reports whether the visit location of an application was validated
type Provider interface {
	IsValid(ctx context.Context, applicationID string) (bool, error)
}

// Registry is an in-memory Provider fed by the field agent client
type Registry struct {
	mu    sync.RWMutex
	flags map[string]bool
}

// NewRegistry creates an empty registry. Unknown applications are invalid.
func NewRegistry() *Registry {
	return &Registry{flags: make(map[string]bool)}
}

// Set records the validity flag for an application
func (r *Registry) Set(applicationID string, valid bool) {
	r.mu.Lock()
	r.flags[applicationID] = valid
	r.mu.Unlock()
}

// IsValid implements Provider
func (r *Registry) IsValid(_ context.Context, applicationID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.flags[applicationID], nil
}

// Static is a Provider that answers the same for every application
type Static bool

// IsValid implements Provider
func (s Static) IsValid(context.Context, string) (bool, error) {
	return bool(s), nil
}

package authz

import (
	"fmt"
	"sort"

	"github.com/meridian-crm/meridian-authz/internal/shared"
)

// Registry is the closed catalog of (resource, action) pairs the platform
// understands. Storage keeps plain strings for compatibility, but every
// role or grant mutation is validated here, so a misspelled resource fails
// loudly at write time instead of silently denying at check time.
type Registry struct {
	resources map[string]map[string]struct{}
}

// NewRegistry builds a registry from a resource → actions map.
func NewRegistry(entries map[string][]string) *Registry {
	resources := make(map[string]map[string]struct{}, len(entries))
	for resource, actions := range entries {
		set := make(map[string]struct{}, len(actions))
		for _, action := range actions {
			set[action] = struct{}{}
		}
		resources[resource] = set
	}
	return &Registry{resources: resources}
}

// DefaultRegistry covers the CRM surface gated by this service.
func DefaultRegistry() *Registry {
	return NewRegistry(map[string][]string{
		"contacts":    {"create", "read", "update", "delete", "export"},
		"tasks":       {"create", "read", "update", "delete"},
		"campaigns":   {"create", "read", "update", "delete", "launch"},
		"meetings":    {"create", "read", "update", "delete", "schedule"},
		"emails":      {"create", "read", "update", "delete", "send"},
		"calendar":    {"read", "sync"},
		"reports":     {"read", "export"},
		"users":       {"read", "update", "assign"},
		"roles":       {"create", "read", "update", "delete"},
		"permissions": {"read", "assign", "revoke"},
	})
}

// Validate reports whether the (resource, action) pair is registered.
// Comparison is exact and case-sensitive, matching the resolver.
func (r *Registry) Validate(resource, action string) error {
	actions, ok := r.resources[resource]
	if !ok {
		return fmt.Errorf("%w: unknown resource %q", shared.ErrValidation, resource)
	}
	if _, ok := actions[action]; !ok {
		return fmt.Errorf("%w: unknown action %q for resource %q", shared.ErrValidation, action, resource)
	}
	return nil
}

// KnownResource reports whether the resource is registered.
func (r *Registry) KnownResource(resource string) bool {
	_, ok := r.resources[resource]
	return ok
}

// Resources returns the registered resource names, sorted.
func (r *Registry) Resources() []string {
	names := make([]string, 0, len(r.resources))
	for name := range r.resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Actions returns the registered actions for a resource, sorted. Nil for an
// unknown resource.
func (r *Registry) Actions(resource string) []string {
	set, ok := r.resources[resource]
	if !ok {
		return nil
	}
	actions := make([]string, 0, len(set))
	for action := range set {
		actions = append(actions, action)
	}
	sort.Strings(actions)
	return actions
}

package roles

import (
	"time"

	"github.com/google/uuid"
)

// Permission grants a set of actions on a single resource. Resource and
// action strings are compared by exact, case-sensitive equality everywhere;
// the registry catches unknown spellings at mutation time.
type Permission struct {
	Resource string   `json:"resource"`
	Actions  []string `json:"actions"`
}

// Allows reports whether the permission grants the action.
func (p Permission) Allows(action string) bool {
	for _, a := range p.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// Role is a named, reusable bundle of permissions assignable to principals.
// System roles are immutable and non-deletable.
type Role struct {
	ID          uuid.UUID
	Name        string
	Description string
	Permissions []Permission
	IsSystem    bool
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AllowsAction reports whether the role grants action on resource.
// An inactive role grants nothing.
func (r Role) AllowsAction(resource, action string) bool {
	if !r.IsActive {
		return false
	}
	for _, p := range r.Permissions {
		if p.Resource == resource && p.Allows(action) {
			return true
		}
	}
	return false
}

// HasResource reports whether the role grants any action on resource.
func (r Role) HasResource(resource string) bool {
	if !r.IsActive {
		return false
	}
	for _, p := range r.Permissions {
		if p.Resource == resource && len(p.Actions) > 0 {
			return true
		}
	}
	return false
}

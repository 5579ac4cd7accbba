package grants

import (
	"time"

	"github.com/google/uuid"
)

// Grant is a per-principal, per-resource permission override, optionally
// time-bound. At most one grant exists per (principal, resource) pair;
// assigning over an existing key replaces actions, expiry, and granted-by
// wholesale rather than merging.
//
// "Expired" is never stored: it is derived from ExpiresAt at evaluation
// time, so a grant can sit active in storage yet behave as denied.
type Grant struct {
	ID          uuid.UUID
	PrincipalID uuid.UUID
	Resource    string
	Actions     []string
	ExpiresAt   *time.Time
	GrantedBy   string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EffectiveAt reports whether the grant contributes permissions at the
// given instant. A grant expiring exactly at t is already inert.
func (g Grant) EffectiveAt(t time.Time) bool {
	if !g.IsActive {
		return false
	}
	if g.ExpiresAt != nil && !g.ExpiresAt.After(t) {
		return false
	}
	return true
}

// AllowsAction reports whether the grant carries the action.
func (g Grant) AllowsAction(action string) bool {
	for _, a := range g.Actions {
		if a == action {
			return true
		}
	}
	return false
}

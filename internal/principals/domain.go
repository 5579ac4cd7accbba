package principals

import (
	"time"

	"github.com/google/uuid"

	"github.com/meridian-crm/meridian-authz/internal/roles"
)

// Principal is the authenticated actor as consumed by the resolver. The
// principals collection is owned by the CRM's user-management service; this
// module only ever reads it.
type Principal struct {
	ID           uuid.UUID
	Email        string
	IsSuperAdmin bool
	Role         *roles.Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

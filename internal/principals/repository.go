package principals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-crm/meridian-authz/internal/roles"
	"github.com/meridian-crm/meridian-authz/internal/shared"
)

// Repository provides read-only access to the externally-owned principals
// collection, joined with the role catalog so a principal lookup is a single
// round-trip.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get fetches a principal with its role resolved. Returns shared.ErrNotFound
// when the principal does not exist.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Principal, error) {
	const query = `
		SELECT p.id, p.email, p.is_super_admin, p.created_at, p.updated_at,
		       r.id, r.name, r.description, r.permissions, r.is_system, r.is_active, r.created_at, r.updated_at
		FROM principals p
		LEFT JOIN roles r ON r.id = p.role_id
		WHERE p.id = $1`

	var (
		principal Principal
		role      roles.Role
		roleID    *uuid.UUID
		roleName  *string
		roleDesc  *string
		rolePerms []byte
		roleSys   *bool
		roleAct   *bool
		roleCre   *time.Time
		roleUpd   *time.Time
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&principal.ID, &principal.Email, &principal.IsSuperAdmin, &principal.CreatedAt, &principal.UpdatedAt,
		&roleID, &roleName, &roleDesc, &rolePerms, &roleSys, &roleAct, &roleCre, &roleUpd,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, shared.ErrNotFound
		}
		return Principal{}, fmt.Errorf("principals: get %s: %w", id, err)
	}

	if roleID != nil {
		role.ID = *roleID
		role.Name = *roleName
		role.Description = *roleDesc
		role.IsSystem = *roleSys
		role.IsActive = *roleAct
		if roleCre != nil {
			role.CreatedAt = *roleCre
		}
		if roleUpd != nil {
			role.UpdatedAt = *roleUpd
		}
		if len(rolePerms) > 0 {
			if err := json.Unmarshal(rolePerms, &role.Permissions); err != nil {
				return Principal{}, fmt.Errorf("principals: decode role permissions: %w", err)
			}
		}
		principal.Role = &role
	}
	return principal, nil
}

// Exists reports whether the principal id is known.
func (r *Repository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM principals WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("principals: exists %s: %w", id, err)
	}
	return exists, nil
}

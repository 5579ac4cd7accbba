package roles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-crm/meridian-authz/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the role catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleColumns = `id, name, description, permissions, is_system, is_active, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var (
		role  Role
		perms []byte
	)
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &perms, &role.IsSystem, &role.IsActive, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return Role{}, err
	}
	if len(perms) > 0 {
		if err := json.Unmarshal(perms, &role.Permissions); err != nil {
			return Role{}, fmt.Errorf("roles: decode permissions: %w", err)
		}
	}
	return role, nil
}

// List returns all roles ordered by name.
func (r *Repository) List(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM roles ORDER BY name`, roleColumns))
	if err != nil {
		return nil, fmt.Errorf("roles: list: %w", err)
	}
	defer rows.Close()

	var result []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("roles: scan: %w", err)
		}
		result = append(result, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roles: rows: %w", err)
	}
	return result, nil
}

// GetByID fetches a role. Returns shared.ErrNotFound when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM roles WHERE id = $1`, roleColumns), id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, fmt.Errorf("roles: get %s: %w", id, err)
	}
	return role, nil
}

// Create inserts a new role. A duplicate name maps to shared.ErrConflict via
// the unique constraint rather than a pre-check, so concurrent creates
// cannot both succeed.
func (r *Repository) Create(ctx context.Context, name, description string, permissions []Permission) (Role, error) {
	perms, err := json.Marshal(permissions)
	if err != nil {
		return Role{}, fmt.Errorf("roles: encode permissions: %w", err)
	}
	query := fmt.Sprintf(`
		INSERT INTO roles (id, name, description, permissions, is_system, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, FALSE, TRUE, NOW(), NOW())
		RETURNING %s`, roleColumns)
	role, err := scanRole(r.pool.QueryRow(ctx, query, uuid.New(), name, description, perms))
	if err != nil {
		if isUniqueViolation(err) {
			return Role{}, fmt.Errorf("%w: role name %q already exists", shared.ErrConflict, name)
		}
		return Role{}, fmt.Errorf("roles: create: %w", err)
	}
	return role, nil
}

// Update replaces the mutable fields of a non-system role. The is_system
// guard lives in the statement itself so a system role can never be touched,
// whatever the caller checked beforehand.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, name, description string, permissions []Permission, isActive bool) (Role, error) {
	perms, err := json.Marshal(permissions)
	if err != nil {
		return Role{}, fmt.Errorf("roles: encode permissions: %w", err)
	}
	query := fmt.Sprintf(`
		UPDATE roles
		SET name = $2, description = $3, permissions = $4, is_active = $5, updated_at = NOW()
		WHERE id = $1 AND is_system = FALSE
		RETURNING %s`, roleColumns)
	role, err := scanRole(r.pool.QueryRow(ctx, query, id, name, description, perms, isActive))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		if isUniqueViolation(err) {
			return Role{}, fmt.Errorf("%w: role name %q already exists", shared.ErrConflict, name)
		}
		return Role{}, fmt.Errorf("roles: update %s: %w", id, err)
	}
	return role, nil
}

// Delete removes a role in a single conditional statement: the row goes away
// only if it is not a system role and no principal references it. Doing the
// reference check inside the DELETE closes the window where a principal is
// assigned the role between a check and a separate delete.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM roles
		WHERE id = $1
		  AND is_system = FALSE
		  AND NOT EXISTS (SELECT 1 FROM principals WHERE role_id = $1)`, id)
	if err != nil {
		return fmt.Errorf("roles: delete %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ReferenceCount returns how many principals currently hold the role.
func (r *Repository) ReferenceCount(ctx context.Context, id uuid.UUID) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM principals WHERE role_id = $1`, id).Scan(&count); err != nil {
		return 0, fmt.Errorf("roles: reference count %s: %w", id, err)
	}
	return count, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

package grants

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-crm/meridian-authz/internal/shared"
)

// Repository provides PostgreSQL backed persistence for custom grants.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const grantColumns = `id, principal_id, resource, actions, expires_at, granted_by, is_active, created_at, updated_at`

func scanGrant(row pgx.Row) (Grant, error) {
	var g Grant
	err := row.Scan(&g.ID, &g.PrincipalID, &g.Resource, &g.Actions, &g.ExpiresAt, &g.GrantedBy, &g.IsActive, &g.CreatedAt, &g.UpdatedAt)
	return g, err
}

// Upsert atomically creates or wholesale-replaces the grant for the
// (principal, resource) key. The ON CONFLICT clause is what guarantees the
// one-grant-per-key invariant under concurrent assigns: the last writer
// wins, with no merge.
func (r *Repository) Upsert(ctx context.Context, principalID uuid.UUID, resource string, actions []string, expiresAt *time.Time, grantedBy string) (Grant, error) {
	query := fmt.Sprintf(`
		INSERT INTO custom_grants (id, principal_id, resource, actions, expires_at, granted_by, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, NOW(), NOW())
		ON CONFLICT (principal_id, resource) DO UPDATE SET
			actions = EXCLUDED.actions,
			expires_at = EXCLUDED.expires_at,
			granted_by = EXCLUDED.granted_by,
			is_active = TRUE,
			updated_at = NOW()
		RETURNING %s`, grantColumns)

	grant, err := scanGrant(r.pool.QueryRow(ctx, query, uuid.New(), principalID, resource, actions, expiresAt, grantedBy))
	if err != nil {
		return Grant{}, fmt.Errorf("grants: upsert %s/%s: %w", principalID, resource, err)
	}
	return grant, nil
}

// GetByKey fetches the grant for the (principal, resource) key regardless of
// activity or expiry. Returns shared.ErrNotFound when absent.
func (r *Repository) GetByKey(ctx context.Context, principalID uuid.UUID, resource string) (Grant, error) {
	query := fmt.Sprintf(`SELECT %s FROM custom_grants WHERE principal_id = $1 AND resource = $2`, grantColumns)
	grant, err := scanGrant(r.pool.QueryRow(ctx, query, principalID, resource))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Grant{}, shared.ErrNotFound
		}
		return Grant{}, fmt.Errorf("grants: get %s/%s: %w", principalID, resource, err)
	}
	return grant, nil
}

// ListForPrincipal returns every grant for the principal, inert ones
// included, ordered by resource.
func (r *Repository) ListForPrincipal(ctx context.Context, principalID uuid.UUID) ([]Grant, error) {
	query := fmt.Sprintf(`SELECT %s FROM custom_grants WHERE principal_id = $1 ORDER BY resource`, grantColumns)
	rows, err := r.pool.Query(ctx, query, principalID)
	if err != nil {
		return nil, fmt.Errorf("grants: list for %s: %w", principalID, err)
	}
	defer rows.Close()

	var grants []Grant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("grants: scan: %w", err)
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("grants: rows: %w", err)
	}
	return grants, nil
}

// Deactivate soft-revokes the grant, keeping the row for audit. Returns
// shared.ErrNotFound when no grant exists for the key.
func (r *Repository) Deactivate(ctx context.Context, principalID uuid.UUID, resource string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE custom_grants SET is_active = FALSE, updated_at = NOW() WHERE principal_id = $1 AND resource = $2`, principalID, resource)
	if err != nil {
		return fmt.Errorf("grants: deactivate %s/%s: %w", principalID, resource, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete hard-removes the grant for the key. Returns shared.ErrNotFound when
// no grant exists.
func (r *Repository) Delete(ctx context.Context, principalID uuid.UUID, resource string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM custom_grants WHERE principal_id = $1 AND resource = $2`, principalID, resource)
	if err != nil {
		return fmt.Errorf("grants: delete %s/%s: %w", principalID, resource, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// PurgeInert deletes grants that stopped contributing permissions before the
// cutoff: rows soft-revoked or expired and untouched since. Purging never
// changes decisions because expiry is derived at evaluation time; it only
// bounds table growth.
func (r *Repository) PurgeInert(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM custom_grants
		WHERE (is_active = FALSE AND updated_at < $1)
		   OR (expires_at IS NOT NULL AND expires_at < $1)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("grants: purge inert: %w", err)
	}
	return tag.RowsAffected(), nil
}

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads audit_logs rows.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a new Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns entries matching the filters, newest first. The caller
// controls limit and offset; filter paging fields are ignored here.
func (r *Repository) List(ctx context.Context, filters TimelineFilters, limit, offset int) ([]Entry, error) {
	var (
		conditions []string
		args       []any
	)
	addCondition := func(clause string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}
	if !filters.From.IsZero() {
		addCondition("occurred_at >= $%d", filters.From)
	}
	if !filters.To.IsZero() {
		addCondition("occurred_at <= $%d", filters.To)
	}
	if actor := strings.TrimSpace(filters.Actor); actor != "" {
		addCondition("actor_id = $%d", actor)
	}
	if entity := strings.TrimSpace(filters.Entity); entity != "" {
		addCondition("entity = $%d", entity)
	}
	if action := strings.TrimSpace(filters.Action); action != "" {
		addCondition("action = $%d", action)
	}

	query := `SELECT id, actor_id, action, entity, entity_id, meta, occurred_at FROM audit_logs`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY occurred_at DESC, id DESC LIMIT $%d", len(args))
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry    Entry
			metaJSON []byte
			at       time.Time
		)
		if err := rows.Scan(&entry.ID, &entry.ActorID, &entry.Action, &entry.Entity, &entry.EntityID, &metaJSON, &at); err != nil {
			return nil, err
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &entry.Meta); err != nil {
				return nil, fmt.Errorf("decode audit meta for entry %d: %w", entry.ID, err)
			}
		}
		entry.At = at
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

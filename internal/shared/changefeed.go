package shared

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ChangeEvent announces an authorization-relevant mutation so permission
// management UIs can refresh. Consumers must not treat the feed as a source
// of truth: decisions are always resolved against the store, and a missed
// event only delays a UI refresh, never a revocation.
type ChangeEvent struct {
	Kind        string    `json:"kind"`
	RoleID      string    `json:"role_id,omitempty"`
	PrincipalID string    `json:"principal_id,omitempty"`
	Resource    string    `json:"resource,omitempty"`
	At          time.Time `json:"at"`
}

// Change feed event kinds.
const (
	EventRoleCreated   = "role.created"
	EventRoleUpdated   = "role.updated"
	EventRoleDeleted   = "role.deleted"
	EventGrantAssigned = "grant.assigned"
	EventGrantRevoked  = "grant.revoked"
	EventGrantRemoved  = "grant.removed"
)

// ChangeFeed publishes ChangeEvents on a Redis channel. Publishing is
// best-effort: failures are logged and swallowed so a Redis outage never
// blocks an administrative mutation.
type ChangeFeed struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewChangeFeed constructs a ChangeFeed for the given channel.
func NewChangeFeed(client *redis.Client, channel string, logger *slog.Logger) *ChangeFeed {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChangeFeed{client: client, channel: channel, logger: logger}
}

// Publish sends the event. A nil receiver or nil client is a no-op.
func (f *ChangeFeed) Publish(ctx context.Context, event ChangeEvent) {
	if f == nil || f.client == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		f.logger.Error("marshal change event", slog.Any("error", err))
		return
	}
	if err := f.client.Publish(ctx, f.channel, payload).Err(); err != nil {
		f.logger.Warn("publish change event", slog.String("kind", event.Kind), slog.Any("error", err))
	}
}

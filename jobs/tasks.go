package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskGrantPurge removes inert custom grants past the retention window.
	TaskGrantPurge = "grants:purge"
)

// GrantPurgePayload parameterises a purge run.
type GrantPurgePayload struct {
	Retention time.Duration `json:"retention"`
}

// NewGrantPurgeTask constructs an Asynq task.
func NewGrantPurgeTask(payload GrantPurgePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGrantPurge, data), nil
}

// GrantPurger deletes inert grants older than the cutoff.
type GrantPurger interface {
	PurgeInert(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewGrantPurgeHandler returns the asynq handler for TaskGrantPurge.
// Purging only removes rows that already contribute nothing to decisions
// (revoked, or expired before the cutoff), so a run can never change an
// authorization outcome.
func NewGrantPurgeHandler(purger GrantPurger, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload GrantPurgePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.Retention <= 0 {
			payload.Retention = 30 * 24 * time.Hour
		}
		cutoff := time.Now().Add(-payload.Retention)
		removed, err := purger.PurgeInert(ctx, cutoff)
		if err != nil {
			if logger != nil {
				logger.Error("grant purge failed", slog.Any("error", err))
			}
			return err
		}
		if logger != nil {
			logger.Info("grant purge complete", slog.Int64("removed", removed), slog.Time("cutoff", cutoff))
		}
		return nil
	}
}

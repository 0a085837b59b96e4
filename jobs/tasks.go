package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/shepherd-cms/shepherd/internal/audit"
	"github.com/shepherd-cms/shepherd/internal/auth"
	jobmetrics "github.com/shepherd-cms/shepherd/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditPrune removes role audit rows past the retention window.
	TaskAuditPrune = "audit:prune"
	// TaskSessionPrune removes expired login session records.
	TaskSessionPrune = "sessions:prune"
)

// AuditPrunePayload carries the retention window for an audit prune run.
type AuditPrunePayload struct {
	Retention time.Duration `json:"retention"`
}

// NewAuditPruneTask constructs an audit prune task.
func NewAuditPruneTask(payload AuditPrunePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditPrune, data), nil
}

// NewSessionPruneTask constructs a session prune task.
func NewSessionPruneTask() *asynq.Task {
	return asynq.NewTask(TaskSessionPrune, nil)
}

// NewAuditPruneHandler returns the handler for TaskAuditPrune.
func NewAuditPruneHandler(service *audit.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskAuditPrune)
		var payload AuditPrunePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return tracker.End(asynq.SkipRetry)
		}
		if payload.Retention <= 0 {
			return tracker.End(asynq.SkipRetry)
		}
		removed, err := service.Prune(ctx, payload.Retention)
		if err != nil {
			return tracker.End(err)
		}
		if logger != nil {
			logger.Info("audit prune complete", slog.Int64("removed", removed))
		}
		return tracker.End(nil)
	}
}

// NewSessionPruneHandler returns the handler for TaskSessionPrune.
func NewSessionPruneHandler(sessions auth.SessionRepository, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskSessionPrune)
		removed, err := sessions.DeleteExpiredSessions(ctx, time.Now().UTC())
		if err != nil {
			return tracker.End(err)
		}
		if logger != nil {
			logger.Info("session prune complete", slog.Int64("removed", removed))
		}
		return tracker.End(nil)
	}
}

package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/vantage-dg/vantage/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCatalogRefresh is emitted after every role-catalog mutation so
	// downstream caches and engines converge on the new catalog.
	TaskCatalogRefresh = "access:catalog_refresh"
)

// CatalogRefreshPayload describes a catalog change event.
type CatalogRefreshPayload struct {
	RoleID     string    `json:"role_id,omitempty"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

// CatalogRefresher re-reads the role catalog on whatever holds a snapshot
// of it (the per-actor engine manager in the API process, warm caches in
// the worker).
type CatalogRefresher interface {
	RefreshCatalogs(ctx context.Context)
}

// NewCatalogRefreshTask constructs an Asynq task.
func NewCatalogRefreshTask(payload CatalogRefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCatalogRefresh, data), nil
}

// CatalogRefreshHandler returns the handler for TaskCatalogRefresh tasks.
func CatalogRefreshHandler(refresher CatalogRefresher, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskCatalogRefresh)
		var payload CatalogRefreshPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			_ = tracker.End(err)
			return asynq.SkipRetry
		}
		if refresher != nil {
			refresher.RefreshCatalogs(ctx)
		}
		if logger != nil {
			logger.Info("catalog refresh processed",
				slog.String("reason", payload.Reason),
				slog.String("role_id", payload.RoleID))
		}
		return tracker.End(nil)
	}
}

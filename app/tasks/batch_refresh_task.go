package tasks

import (
	"context"
	"log/slog"

	"github.com/lysyi3m/feedforge/app/refresh"
)

type BatchRefreshTask struct {
	Task
	refresher BatchRefresher
	opts      refresh.BatchOptions
}

// NewBatchRefreshTask walks every source once. The walk itself has no
// deadline; opts.SourceTimeout bounds each source.
func NewBatchRefreshTask(refresher BatchRefresher, opts refresh.BatchOptions) *BatchRefreshTask {
	task := NewTask(TaskTypeBatchRefresh, "all")
	task.MaxRetries = 0
	task.Timeout = NoTimeout

	return &BatchRefreshTask{
		Task:      task,
		refresher: refresher,
		opts:      opts,
	}
}

func (t *BatchRefreshTask) Execute(ctx context.Context) error {
	outcomes, err := t.refresher.RefreshAll(ctx, t.opts)
	if err != nil {
		return err
	}

	failed := 0
	added := 0
	for _, o := range outcomes {
		if o.Error != "" {
			failed++
		}
		added += o.ItemsAdded
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"duration", t.GetDuration(),
		"sources", len(outcomes),
		"failed", failed,
		"items_added", added)

	return nil
}

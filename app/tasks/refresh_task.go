package tasks

import (
	"context"
	"log/slog"

	"github.com/lysyi3m/feedforge/app/pipeline"
)

type RefreshSourceTask struct {
	Task
	refresher SourceRefresher
}

func NewRefreshSourceTask(sourceID string, refresher SourceRefresher) *RefreshSourceTask {
	return &RefreshSourceTask{
		Task:      NewTask(TaskTypeRefreshSource, sourceID),
		refresher: refresher,
	}
}

func (t *RefreshSourceTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	result, err := t.refresher.Refresh(ctx, t.Target)
	if err != nil {
		return err
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"source", t.Target,
		"duration", t.GetDuration(),
		"items_added", result.ItemsAdded,
		"not_modified", result.NotModified)

	return nil
}

// ShouldRetry retries transport failures only. A busy source or a logical
// failure will not improve by trying again.
func (t *RefreshSourceTask) ShouldRetry(err error) bool {
	if pipeline.CodeOf(err) == pipeline.CodeUpstreamNetwork {
		return true
	}
	return pipeline.CodeOf(err) == "" && pipeline.IsNetworkFailure(err)
}

package tasks

import (
	"context"

	"github.com/lysyi3m/feedforge/app/refresh"
)

// TaskSchedulerInterface is the worker pool surface used by the intake
// runner, the API and main.
//
//	scheduler := NewScheduler(Config{...}, engine)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewRefreshSourceTask(sourceID, engine))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}

// IntakeProcessor runs one claimed intake job to a terminal state.
type IntakeProcessor interface {
	Process(ctx context.Context, jobID string) error
}

type SourceRefresher interface {
	Refresh(ctx context.Context, sourceID string) (*refresh.Result, error)
}

type BatchRefresher interface {
	RefreshAll(ctx context.Context, opts refresh.BatchOptions) ([]refresh.Outcome, error)
}

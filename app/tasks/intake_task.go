package tasks

import (
	"context"
	"log/slog"
)

type IntakeTask struct {
	Task
	processor IntakeProcessor
}

// NewIntakeTask wraps one intake job. Jobs are claimed atomically, so a
// retry of a task whose job already started would be a no-op; none are
// scheduled.
func NewIntakeTask(jobID string, processor IntakeProcessor) *IntakeTask {
	task := NewTask(TaskTypeIntake, jobID)
	task.MaxRetries = 0

	return &IntakeTask{
		Task:      task,
		processor: processor,
	}
}

func (t *IntakeTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := t.processor.Process(ctx, t.Target); err != nil {
		return err
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"job", t.Target,
		"duration", t.GetDuration())

	return nil
}

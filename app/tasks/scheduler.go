package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/feedforge/app/metrics"
	"github.com/lysyi3m/feedforge/app/pipeline"
	"github.com/lysyi3m/feedforge/app/refresh"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

const (
	DefaultQueueSize   = 300
	DefaultTaskTimeout = 5 * time.Minute
	maxRetryDelay      = 30 * time.Second
)

type Config struct {
	WorkerCount int
	// Interval between periodic batch refreshes. Zero disables the ticker.
	Interval    time.Duration
	TaskTimeout time.Duration
	QueueSize   int
	Batch       refresh.BatchOptions
}

type Scheduler struct {
	batch       BatchRefresher
	batchOpts   refresh.BatchOptions
	interval    time.Duration
	workerCount int
	taskTimeout time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	taskQueue   chan TaskInterface
}

func NewScheduler(config Config, batch BatchRefresher) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	workerCount := config.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
	}
	queueSize := config.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	taskTimeout := config.TaskTimeout
	if taskTimeout <= 0 {
		taskTimeout = DefaultTaskTimeout
	}
	batchOpts := config.Batch
	if batchOpts.SourceTimeout <= 0 {
		batchOpts.SourceTimeout = taskTimeout
	}

	return &Scheduler{
		batch:       batch,
		batchOpts:   batchOpts,
		interval:    config.Interval,
		workerCount: workerCount,
		taskTimeout: taskTimeout,
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, queueSize),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	if s.interval <= 0 || s.batch == nil {
		slog.Debug("Periodic refresh disabled")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueBatchRefresh()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueBatchRefresh()
			}
		}
	}()
}

// Stop cancels in-flight tasks and waits for workers to return. Tasks
// still queued are dropped.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}

	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) enqueueBatchRefresh() {
	task := NewBatchRefreshTask(s.batch, s.batchOpts)
	if err := s.EnqueueTask(task); err != nil {
		slog.Warn("Failed to enqueue BatchRefreshTask", "error", err)
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := s.taskContext(task)
	defer cancel()

	err := task.Execute(taskCtx)

	metrics.TaskDuration.WithLabelValues(string(task.GetType())).Observe(task.GetDuration().Seconds())
	metrics.TasksTotal.WithLabelValues(string(task.GetType()), taskResult(err)).Inc()

	if err == nil {
		return
	}

	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "target", task.GetTarget(), "retry_count", task.GetRetryCount(), "error", err)

	if s.ctx.Err() != nil {
		return
	}

	if !task.CanRetry() || !task.ShouldRetry(err) {
		if task.GetMaxRetries() > 0 {
			slog.Error("Task failed without further retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		}
		return
	}

	task.IncrementRetryCount()
	retryDelay := RetryDelay(task.GetRetryCount())

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "target", task.GetTarget(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(retryDelay)
		defer timer.Stop()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
			return
		case <-timer.C:
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
			}
		}
	}()
}

func (s *Scheduler) taskContext(task TaskInterface) (context.Context, context.CancelFunc) {
	timeout := task.GetTimeout()
	switch {
	case timeout < 0:
		return context.WithCancel(s.ctx)
	case timeout == 0:
		timeout = s.taskTimeout
	}
	return context.WithTimeout(s.ctx, timeout)
}

// RetryDelay doubles from one second per attempt, capped at 30s.
func RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		return maxRetryDelay
	}
	delay := time.Duration(1<<uint(attempt-1)) * time.Second
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

func taskResult(err error) string {
	if err == nil {
		return "ok"
	}
	if code := pipeline.CodeOf(err); code != "" {
		return string(code)
	}
	return "error"
}

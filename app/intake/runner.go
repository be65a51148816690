package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lysyi3m/feedforge/app/advisor"
	"github.com/lysyi3m/feedforge/app/database"
	"github.com/lysyi3m/feedforge/app/extract"
	"github.com/lysyi3m/feedforge/app/feed"
	"github.com/lysyi3m/feedforge/app/metrics"
	"github.com/lysyi3m/feedforge/app/pipeline"
	"github.com/lysyi3m/feedforge/app/tasks"
)

const (
	DefaultConversionTimeout = 20 * time.Second

	WarningSourceExists = "source already exists, returning existing record"

	progressCreatingRSS = 65
	progressConverting  = 35
	progressValidating  = 55
	progressCreatingWeb = 75

	maxResultWarnings = 2
)

var _ tasks.IntakeProcessor = (*Runner)(nil)

type Discoverer interface {
	Discover(ctx context.Context, pageURL string) (*feed.Discovery, error)
}

// RuleAdvisor is satisfied by advisor.Advisor. A nil rule means no advice.
type RuleAdvisor interface {
	InferRule(ctx context.Context, input advisor.RuleInput) *pipeline.ExtractionRule
}

type Repositories struct {
	Jobs      database.JobRepository
	Sources   database.SourceRepository
	Items     database.ItemRepository
	Snapshots database.SnapshotRepository
}

type Settings struct {
	ConversionTimeout time.Duration
}

// Submission is what a caller gets back before any processing happens.
type Submission struct {
	JobID  string
	Status database.JobStatus
}

// Runner drives intake jobs from pending to done or failed. Jobs are
// processed on the scheduler; the initial refresh of a discovered feed is
// queued there as well.
type Runner struct {
	repos      Repositories
	discoverer Discoverer
	renderer   extract.PageRenderer
	extractor  *extract.Extractor
	advisor    RuleAdvisor
	scheduler  tasks.TaskSchedulerInterface
	refresher  tasks.SourceRefresher
	settings   Settings
}

func NewRunner(repos Repositories, discoverer Discoverer, renderer extract.PageRenderer, extractor *extract.Extractor,
	ruleAdvisor RuleAdvisor, scheduler tasks.TaskSchedulerInterface, refresher tasks.SourceRefresher, settings Settings) *Runner {
	if settings.ConversionTimeout <= 0 {
		settings.ConversionTimeout = DefaultConversionTimeout
	}

	return &Runner{
		repos:      repos,
		discoverer: discoverer,
		renderer:   renderer,
		extractor:  extractor,
		advisor:    ruleAdvisor,
		scheduler:  scheduler,
		refresher:  refresher,
		settings:   settings,
	}
}

// Submit stores a pending job and queues it. It never waits for
// processing.
func (r *Runner) Submit(ctx context.Context, owner, rawURL, titleHint string) (*Submission, error) {
	pageURL, err := feed.ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}

	job, err := r.repos.Jobs.CreateJob(ctx, owner, pageURL, strings.TrimSpace(titleHint))
	if err != nil {
		return nil, err
	}

	if err := r.scheduler.EnqueueTask(tasks.NewIntakeTask(job.ID, r)); err != nil {
		slog.Error("Failed to enqueue intake job", "job", job.ID, "error", err)
		if failErr := r.repos.Jobs.FailJob(context.WithoutCancel(ctx), job.ID, string(pipeline.CodeConversionFailed), "failed to queue job: "+err.Error()); failErr != nil {
			slog.Error("Failed to record intake job failure", "job", job.ID, "error", failErr)
		}
		return nil, fmt.Errorf("failed to queue intake job: %w", err)
	}

	slog.Info("Intake job submitted", "job", job.ID, "url", pageURL)

	return &Submission{JobID: job.ID, Status: job.Status}, nil
}

// Get returns the job as seen by owner, or INTAKE_JOB_NOT_FOUND.
func (r *Runner) Get(ctx context.Context, owner, jobID string) (*database.IntakeJob, error) {
	job, err := r.repos.Jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil || job.Owner != owner {
		return nil, pipeline.Errorf(pipeline.CodeJobNotFound, "intake job %s not found", jobID)
	}
	return job, nil
}

// Process runs one job. A job that is already claimed or terminal is left
// alone, so duplicate tasks for the same id are harmless.
func (r *Runner) Process(ctx context.Context, jobID string) error {
	claimed, err := r.repos.Jobs.ClaimJob(ctx, jobID)
	if err != nil {
		return err
	}
	if !claimed {
		slog.Debug("Intake job already claimed, skipping", "job", jobID)
		return nil
	}

	job, err := r.repos.Jobs.GetJob(ctx, jobID)
	if err != nil {
		return r.fail(ctx, jobID, err)
	}
	if job == nil {
		return fmt.Errorf("intake job %s vanished after claim", jobID)
	}

	result, err := r.run(ctx, job)
	if err != nil {
		return r.fail(ctx, jobID, err)
	}

	if err := r.repos.Jobs.CompleteJob(ctx, jobID, *result); err != nil {
		return fmt.Errorf("failed to complete intake job: %w", err)
	}
	metrics.IntakeJobsTotal.WithLabelValues(metrics.Result("")).Inc()

	slog.Info("Intake job completed",
		"job", jobID,
		"source", result.SourceID,
		"source_type", string(result.SourceType),
		"warning", result.Warning)

	return nil
}

func (r *Runner) run(ctx context.Context, job *database.IntakeJob) (*database.JobResult, error) {
	discovery, err := r.discoverer.Discover(ctx, job.URL)
	if err == nil {
		return r.createRSSSource(ctx, job, discovery)
	}
	if pipeline.CodeOf(err) != pipeline.CodeDiscoveryFailed {
		return nil, err
	}

	slog.Debug("Feed discovery failed, converting page", "job", job.ID, "url", job.URL, "error", err)

	convCtx, cancel := context.WithTimeout(ctx, r.settings.ConversionTimeout)
	defer cancel()

	result, err := r.convert(convCtx, job)
	if err != nil && errors.Is(convCtx.Err(), context.DeadlineExceeded) {
		return nil, pipeline.Wrap(pipeline.CodeConversionTimeout, err,
			fmt.Sprintf("conversion exceeded %s", r.settings.ConversionTimeout))
	}
	return result, err
}

func (r *Runner) createRSSSource(ctx context.Context, job *database.IntakeJob, discovery *feed.Discovery) (*database.JobResult, error) {
	if err := r.repos.Jobs.UpdateJobStage(ctx, job.ID, database.JobStageCreating, progressCreatingRSS); err != nil {
		return nil, err
	}

	src, created, err := r.repos.Sources.CreateSource(ctx, database.NewSource{
		URL:            discovery.FeedURL,
		FeedURL:        discovery.FeedURL,
		SiteURL:        discovery.SiteURL,
		Title:          firstNonEmpty(job.TitleHint, discovery.Title),
		SourceType:     pipeline.SourceTypeRSS,
		Status:         database.SourceStatusIdle,
		ExtractionMode: pipeline.ModePartialPreferred,
		Owner:          job.Owner,
	})
	if err != nil {
		return nil, err
	}

	result := &database.JobResult{SourceID: src.ID, SourceType: src.SourceType}
	if !created {
		result.Warning = WarningSourceExists
	}

	if r.refresher != nil {
		if err := r.scheduler.EnqueueTask(tasks.NewRefreshSourceTask(src.ID, r.refresher)); err != nil {
			slog.Warn("Failed to enqueue initial refresh", "source", src.ID, "error", err)
		}
	}

	return result, nil
}

func (r *Runner) fail(ctx context.Context, jobID string, err error) error {
	code := pipeline.CodeOf(err)
	if code == "" {
		if pipeline.IsNetworkFailure(err) {
			code = pipeline.CodeUpstreamNetwork
		} else {
			code = pipeline.CodeConversionFailed
		}
	}

	message := err.Error()
	var perr *pipeline.Error
	if errors.As(err, &perr) && perr.Message != "" {
		message = perr.Message
	}

	slog.Error("Intake job failed", "job", jobID, "code", string(code), "error", err)
	metrics.IntakeJobsTotal.WithLabelValues(metrics.Result(string(code))).Inc()

	if failErr := r.repos.Jobs.FailJob(context.WithoutCancel(ctx), jobID, string(code), message); failErr != nil {
		return fmt.Errorf("failed to record intake failure (%s): %w", code, failErr)
	}
	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

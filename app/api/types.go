package api

import (
	"context"
	"time"

	"github.com/lysyi3m/feedforge/app/database"
	"github.com/lysyi3m/feedforge/app/feed"
	"github.com/lysyi3m/feedforge/app/intake"
	"github.com/lysyi3m/feedforge/app/refresh"
)

const (
	OwnerHeader  = "X-Owner-ID"
	DefaultOwner = "default"

	defaultFeedItems = 50
	maxListLimit     = 500
)

type GeneratorInterface interface {
	Run(source database.Source, items []database.Item) (string, error)
}

var _ GeneratorInterface = (*feed.Generator)(nil)

// IntakeService is satisfied by intake.Runner.
type IntakeService interface {
	Submit(ctx context.Context, owner, rawURL, titleHint string) (*intake.Submission, error)
	Get(ctx context.Context, owner, jobID string) (*database.IntakeJob, error)
}

// Refresher is satisfied by refresh.Engine.
type Refresher interface {
	Refresh(ctx context.Context, sourceID string) (*refresh.Result, error)
	RefreshAll(ctx context.Context, opts refresh.BatchOptions) ([]refresh.Outcome, error)
}

type Handler struct {
	sourceRepo database.SourceRepository
	itemRepo   database.ItemRepository
	runRepo    database.FetchRunRepository
	generator  GeneratorInterface
	intake     IntakeService
	refresher  Refresher
	batchOpts  refresh.BatchOptions
	version    string
}

type intakeRequest struct {
	URL   string `json:"url" binding:"required"`
	Title string `json:"title"`
}

type refreshRequest struct {
	Limit int `json:"limit"`
}

type submissionResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

type jobResult struct {
	SourceID   string `json:"sourceId"`
	SourceType string `json:"sourceType"`
	Warning    string `json:"warning,omitempty"`
}

type jobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type jobResponse struct {
	ID        string     `json:"id"`
	URL       string     `json:"url"`
	Title     string     `json:"title,omitempty"`
	Status    string     `json:"status"`
	Stage     string     `json:"stage,omitempty"`
	Progress  int        `json:"progress"`
	Result    *jobResult `json:"result"`
	Error     *jobError  `json:"error"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

type sourceResponse struct {
	ID             string     `json:"id"`
	URL            string     `json:"url"`
	FeedURL        string     `json:"feedUrl,omitempty"`
	SiteURL        string     `json:"siteUrl,omitempty"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	SourceType     string     `json:"sourceType"`
	Status         string     `json:"status"`
	LastSuccessAt  *time.Time `json:"lastSuccessAt,omitempty"`
	LastErrorAt    *time.Time `json:"lastErrorAt,omitempty"`
	LastError      string     `json:"lastError,omitempty"`
	ExtractionMode string     `json:"extractionMode,omitempty"`
	ItemCount      *int       `json:"itemCount,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

type runResponse struct {
	ID           string     `json:"id"`
	Status       string     `json:"status"`
	StartedAt    time.Time  `json:"startedAt"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
	ItemsAdded   int        `json:"itemsAdded"`
	ErrorCode    string     `json:"errorCode,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
}

type refreshResponse struct {
	SourceID    string   `json:"sourceId"`
	SourceType  string   `json:"sourceType"`
	ItemsAdded  int      `json:"itemsAdded"`
	NotModified bool     `json:"notModified"`
	Warnings    []string `json:"warnings,omitempty"`
}

func newJobResponse(job *database.IntakeJob) jobResponse {
	resp := jobResponse{
		ID:        job.ID,
		URL:       job.URL,
		Title:     job.TitleHint,
		Status:    string(job.Status),
		Stage:     string(job.Stage),
		Progress:  job.Progress,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}

	switch job.Status {
	case database.JobStatusDone:
		resp.Result = &jobResult{
			SourceID:   job.ResultSourceID,
			SourceType: string(job.ResultSourceType),
			Warning:    job.ResultWarning,
		}
	case database.JobStatusFailed:
		resp.Error = &jobError{Code: job.ErrorCode, Message: job.ErrorMessage}
	}

	return resp
}

func newSourceResponse(src database.Source) sourceResponse {
	return sourceResponse{
		ID:             src.ID,
		URL:            src.URL,
		FeedURL:        src.FeedURL,
		SiteURL:        src.SiteURL,
		Title:          src.Title,
		Description:    src.Description,
		SourceType:     string(src.SourceType),
		Status:         string(src.Status),
		LastSuccessAt:  src.LastSuccessAt,
		LastErrorAt:    src.LastErrorAt,
		LastError:      src.LastError,
		ExtractionMode: string(src.ExtractionMode),
		CreatedAt:      src.CreatedAt,
		UpdatedAt:      src.UpdatedAt,
	}
}

func newRunResponse(run database.FetchRun) runResponse {
	return runResponse{
		ID:           run.ID,
		Status:       string(run.Status),
		StartedAt:    run.StartedAt,
		FinishedAt:   run.FinishedAt,
		ItemsAdded:   run.ItemsAdded,
		ErrorCode:    run.ErrorCode,
		ErrorMessage: run.ErrorMessage,
	}
}

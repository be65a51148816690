package database

import (
	"time"

	"github.com/lysyi3m/feedforge/app/pipeline"
)

type SourceStatus string

const (
	SourceStatusIdle     SourceStatus = "idle"
	SourceStatusFetching SourceStatus = "fetching"
	SourceStatusOK       SourceStatus = "ok"
	SourceStatusError    SourceStatus = "error"
)

type Source struct {
	ID             string
	URL            string // Unique subscription URL (feed URL for rss, page URL for web_monitor)
	FeedURL        string
	SiteURL        string
	Title          string
	Description    string
	SourceType     pipeline.SourceType
	Status         SourceStatus
	LastSuccessAt  *time.Time
	LastErrorAt    *time.Time
	LastError      string
	ETag           string
	LastModified   string
	ExtractionMode pipeline.ExtractionMode
	ExtractionRule *pipeline.ExtractionRule
	Owner          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type NewSource struct {
	URL            string
	FeedURL        string
	SiteURL        string
	Title          string
	Description    string
	SourceType     pipeline.SourceType
	Status         SourceStatus
	ExtractionMode pipeline.ExtractionMode
	ExtractionRule *pipeline.ExtractionRule
	Owner          string
}

// SourceUpdate carries metadata refreshed on a successful fetch. Empty
// fields keep the stored value.
type SourceUpdate struct {
	Title        string
	SiteURL      string
	Description  string
	ETag         string
	LastModified string
}

type Item struct {
	ID          string
	SourceID    string
	GUID        string
	Title       string
	Link        string
	Author      string
	ContentHTML string
	ContentText string
	PublishedAt *time.Time
	FetchedAt   time.Time
	CreatedAt   time.Time
}

type Snapshot struct {
	ID              int64
	SourceID        string
	CandidateKey    string
	ContentHash     string
	SemanticSummary string
	Decision        pipeline.Decision
	CreatedAt       time.Time
}

type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

type JobStage string

const (
	JobStageDetecting  JobStage = "detecting"
	JobStageConverting JobStage = "converting"
	JobStageValidating JobStage = "validating"
	JobStageCreating   JobStage = "creating"
	JobStageDone       JobStage = "done"
	JobStageFailed     JobStage = "failed"
)

type IntakeJob struct {
	ID               string
	Owner            string
	URL              string
	TitleHint        string
	Status           JobStatus
	Stage            JobStage
	Progress         int
	ResultSourceID   string
	ResultSourceType pipeline.SourceType
	ResultWarning    string
	ErrorCode        string
	ErrorMessage     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (j *IntakeJob) Terminal() bool {
	return j.Status == JobStatusDone || j.Status == JobStatusFailed
}

type JobResult struct {
	SourceID   string
	SourceType pipeline.SourceType
	Warning    string
}

type FetchRunStatus string

const (
	FetchRunRunning FetchRunStatus = "running"
	FetchRunOK      FetchRunStatus = "ok"
	FetchRunError   FetchRunStatus = "error"
)

type FetchRun struct {
	ID           string
	SourceID     string
	Status       FetchRunStatus
	StartedAt    time.Time
	FinishedAt   *time.Time
	ItemsAdded   int
	ErrorCode    string
	ErrorMessage string
}

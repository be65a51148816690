package database

import (
	"context"
	"errors"
)

// ErrJobNotActive is returned when a job update targets a job that is no
// longer pending or running.
var ErrJobNotActive = errors.New("intake job is not active")

type SourceRepository interface {
	CreateSource(ctx context.Context, src NewSource) (*Source, bool, error)
	GetSource(ctx context.Context, id string) (*Source, error)
	GetSourceByURL(ctx context.Context, url string) (*Source, error)
	ListSources(ctx context.Context, offset, limit int) ([]Source, error)
	GetSourceCount(ctx context.Context) (int, error)

	MarkFetching(ctx context.Context, id string) error
	MarkSuccess(ctx context.Context, id string, update SourceUpdate) error
	MarkError(ctx context.Context, id string, message string) error
}

type ItemRepository interface {
	InsertItems(ctx context.Context, items []Item) (int, error)
	GetExistingGUIDs(ctx context.Context, sourceID string, guids []string) (map[string]bool, error)
	GetItemsByGUIDs(ctx context.Context, sourceID string, guids []string) ([]Item, error)
	UpdateItemContent(ctx context.Context, sourceID, guid, contentHTML, contentText string) error
	GetRecentItems(ctx context.Context, sourceID string, limit int) ([]Item, error)
	GetItemCount(ctx context.Context, sourceID string) (int, error)
}

type SnapshotRepository interface {
	InsertSnapshots(ctx context.Context, snapshots []Snapshot) (int, error)
	SnapshotExists(ctx context.Context, sourceID, candidateKey, contentHash string) (bool, error)
	GetRecentSummaries(ctx context.Context, sourceID, candidateKey, excludeHash string, limit int) ([]string, error)
	GetSnapshots(ctx context.Context, sourceID string, limit int) ([]Snapshot, error)
}

type JobRepository interface {
	CreateJob(ctx context.Context, owner, url, titleHint string) (*IntakeJob, error)
	GetJob(ctx context.Context, id string) (*IntakeJob, error)

	ClaimJob(ctx context.Context, id string) (bool, error)
	UpdateJobStage(ctx context.Context, id string, stage JobStage, progress int) error
	CompleteJob(ctx context.Context, id string, result JobResult) error
	FailJob(ctx context.Context, id string, code, message string) error
}

type FetchRunRepository interface {
	StartRun(ctx context.Context, sourceID string) (string, error)
	FinishRun(ctx context.Context, id string, itemsAdded int) error
	FailRun(ctx context.Context, id string, code, message string) error
	GetRuns(ctx context.Context, sourceID string, limit int) ([]FetchRun, error)
}

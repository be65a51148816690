package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lysyi3m/feedforge/app/pipeline"
)

var _ JobRepository = (*JobRepo)(nil)

// JobRepo stores intake jobs. Every mutation is guarded on the job still
// being active, so done and failed rows never change again.
type JobRepo struct {
	db *DB
}

func NewJobRepository(db *DB) *JobRepo {
	return &JobRepo{db: db}
}

func (r *JobRepo) CreateJob(ctx context.Context, owner, url, titleHint string) (*IntakeJob, error) {
	ts := now()
	job := &IntakeJob{
		ID:        uuid.NewString(),
		Owner:     owner,
		URL:       url,
		TitleHint: titleHint,
		Status:    JobStatusPending,
		Progress:  0,
		CreatedAt: ts,
		UpdatedAt: ts,
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO intake_jobs (id, owner, url, title_hint, status, stage, progress, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, '', 0, ?, ?)
	`, job.ID, owner, url, titleHint, string(JobStatusPending), ts, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to create intake job: %w", err)
	}

	return job, nil
}

func (r *JobRepo) GetJob(ctx context.Context, id string) (*IntakeJob, error) {
	var (
		job                         IntakeJob
		status, stage, resultSource string
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT id, owner, url, title_hint, status, stage, progress,
		       result_source_id, result_source_type, result_warning, error_code, error_message,
		       created_at, updated_at
		FROM intake_jobs
		WHERE id = ?
	`, id).Scan(&job.ID, &job.Owner, &job.URL, &job.TitleHint, &status, &stage, &job.Progress,
		&job.ResultSourceID, &resultSource, &job.ResultWarning, &job.ErrorCode, &job.ErrorMessage,
		&job.CreatedAt, &job.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get intake job: %w", err)
	}

	job.Status = JobStatus(status)
	job.Stage = JobStage(stage)
	job.ResultSourceType = pipeline.SourceType(resultSource)

	return &job, nil
}

// ClaimJob moves a pending job to running/detecting. It reports false when
// another attempt already claimed the job or it is terminal.
func (r *JobRepo) ClaimJob(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE intake_jobs
		SET status = 'running', stage = 'detecting', progress = 10, updated_at = ?
		WHERE id = ? AND status = 'pending'
	`, now(), id)
	if err != nil {
		return false, fmt.Errorf("failed to claim intake job: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return n == 1, nil
}

func (r *JobRepo) UpdateJobStage(ctx context.Context, id string, stage JobStage, progress int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE intake_jobs SET stage = ?, progress = ?, updated_at = ?
		WHERE id = ? AND status = 'running'
	`, string(stage), progress, now(), id)
	if err != nil {
		return fmt.Errorf("failed to update intake job stage: %w", err)
	}
	return requireActive(res)
}

func (r *JobRepo) CompleteJob(ctx context.Context, id string, result JobResult) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE intake_jobs
		SET status = 'done', stage = 'done', progress = 100,
		    result_source_id = ?, result_source_type = ?, result_warning = ?, updated_at = ?
		WHERE id = ? AND status = 'running'
	`, result.SourceID, string(result.SourceType), result.Warning, now(), id)
	if err != nil {
		return fmt.Errorf("failed to complete intake job: %w", err)
	}
	return requireActive(res)
}

func (r *JobRepo) FailJob(ctx context.Context, id string, code, message string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE intake_jobs
		SET status = 'failed', stage = 'failed', progress = 100,
		    error_code = ?, error_message = ?, updated_at = ?
		WHERE id = ? AND status IN ('pending', 'running')
	`, code, message, now(), id)
	if err != nil {
		return fmt.Errorf("failed to fail intake job: %w", err)
	}
	return requireActive(res)
}

func requireActive(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrJobNotActive
	}
	return nil
}

package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

var _ FetchRunRepository = (*FetchRunRepo)(nil)

// FetchRunRepo records one audit row per refresh attempt
type FetchRunRepo struct {
	db *DB
}

func NewFetchRunRepository(db *DB) *FetchRunRepo {
	return &FetchRunRepo{db: db}
}

func (r *FetchRunRepo) StartRun(ctx context.Context, sourceID string) (string, error) {
	id := uuid.NewString()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO fetch_runs (id, source_id, status, started_at) VALUES (?, ?, 'running', ?)
	`, id, sourceID, now())
	if err != nil {
		return "", fmt.Errorf("failed to start fetch run: %w", err)
	}
	return id, nil
}

func (r *FetchRunRepo) FinishRun(ctx context.Context, id string, itemsAdded int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE fetch_runs SET status = 'ok', finished_at = ?, items_added = ? WHERE id = ?
	`, now(), itemsAdded, id)
	if err != nil {
		return fmt.Errorf("failed to finish fetch run: %w", err)
	}
	return nil
}

func (r *FetchRunRepo) FailRun(ctx context.Context, id string, code, message string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE fetch_runs SET status = 'error', finished_at = ?, error_code = ?, error_message = ? WHERE id = ?
	`, now(), code, message, id)
	if err != nil {
		return fmt.Errorf("failed to fail fetch run: %w", err)
	}
	return nil
}

func (r *FetchRunRepo) GetRuns(ctx context.Context, sourceID string, limit int) ([]FetchRun, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source_id, status, started_at, finished_at, items_added, error_code, error_message
		FROM fetch_runs
		WHERE source_id = ?
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get fetch runs: %w", err)
	}
	defer rows.Close()

	var runs []FetchRun
	for rows.Next() {
		var (
			run      FetchRun
			status   string
			finished sql.NullTime
		)
		if err := rows.Scan(&run.ID, &run.SourceID, &status, &run.StartedAt, &finished,
			&run.ItemsAdded, &run.ErrorCode, &run.ErrorMessage); err != nil {
			return nil, fmt.Errorf("failed to scan fetch run row: %w", err)
		}
		run.Status = FetchRunStatus(status)
		if finished.Valid {
			run.FinishedAt = &finished.Time
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fetch run rows: %w", err)
	}

	return runs, nil
}

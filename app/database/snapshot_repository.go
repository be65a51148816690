package database

import (
	"context"
	"fmt"

	"github.com/lysyi3m/feedforge/app/pipeline"
)

var _ SnapshotRepository = (*SnapshotRepo)(nil)

// SnapshotRepo is the append-only ledger of observed candidate variants.
type SnapshotRepo struct {
	db *DB
}

func NewSnapshotRepository(db *DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

// InsertSnapshots appends snapshots, ignoring (source, key, hash) duplicates.
func (r *SnapshotRepo) InsertSnapshots(ctx context.Context, snapshots []Snapshot) (int, error) {
	if len(snapshots) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO snapshots (source_id, candidate_key, content_hash, semantic_summary, decision, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	ts := now()
	inserted := 0
	for _, snap := range snapshots {
		res, err := stmt.ExecContext(ctx, snap.SourceID, snap.CandidateKey, snap.ContentHash,
			snap.SemanticSummary, string(snap.Decision), ts)
		if err != nil {
			return 0, fmt.Errorf("failed to insert snapshot: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit snapshots: %w", err)
	}

	return inserted, nil
}

func (r *SnapshotRepo) SnapshotExists(ctx context.Context, sourceID, candidateKey, contentHash string) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM snapshots WHERE source_id = ? AND candidate_key = ? AND content_hash = ?
		)
	`, sourceID, candidateKey, contentHash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check snapshot: %w", err)
	}
	return exists == 1, nil
}

// GetRecentSummaries returns the newest summaries recorded for a candidate
// key, skipping the given hash. Hashes are unique per key, so every row is a
// distinct variant.
func (r *SnapshotRepo) GetRecentSummaries(ctx context.Context, sourceID, candidateKey, excludeHash string, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT semantic_summary FROM snapshots
		WHERE source_id = ? AND candidate_key = ? AND content_hash <> ? AND semantic_summary <> ''
		ORDER BY id DESC
		LIMIT ?
	`, sourceID, candidateKey, excludeHash, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent summaries: %w", err)
	}
	defer rows.Close()

	var summaries []string
	for rows.Next() {
		var summary string
		if err := rows.Scan(&summary); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		summaries = append(summaries, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating summary rows: %w", err)
	}

	return summaries, nil
}

func (r *SnapshotRepo) GetSnapshots(ctx context.Context, sourceID string, limit int) ([]Snapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source_id, candidate_key, content_hash, semantic_summary, decision, created_at
		FROM snapshots
		WHERE source_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		var (
			snap     Snapshot
			decision string
		)
		if err := rows.Scan(&snap.ID, &snap.SourceID, &snap.CandidateKey, &snap.ContentHash,
			&snap.SemanticSummary, &decision, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		snap.Decision = pipeline.Decision(decision)
		snapshots = append(snapshots, snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot rows: %w", err)
	}

	return snapshots, nil
}

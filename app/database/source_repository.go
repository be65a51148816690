package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lysyi3m/feedforge/app/pipeline"
)

var _ SourceRepository = (*SourceRepo)(nil)

// SourceRepo handles database operations for sources
type SourceRepo struct {
	db *DB
}

// NewSourceRepository creates a new source repository
func NewSourceRepository(db *DB) *SourceRepo {
	return &SourceRepo{db: db}
}

const sourceColumns = `id, url, feed_url, site_url, title, description, source_type, status,
	last_success_at, last_error_at, last_error, etag, last_modified,
	extraction_mode, extraction_rule, owner, created_at, updated_at`

// CreateSource inserts a source unless one with the same URL exists. The
// boolean reports whether a new row was written; on conflict the stored
// source is returned instead.
func (r *SourceRepo) CreateSource(ctx context.Context, src NewSource) (*Source, bool, error) {
	rule, err := encodeRule(src.ExtractionRule)
	if err != nil {
		return nil, false, err
	}

	status := src.Status
	if status == "" {
		status = SourceStatusIdle
	}

	ts := now()
	var lastSuccess any
	if status == SourceStatusOK {
		lastSuccess = ts
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO sources (id, url, feed_url, site_url, title, description, source_type, status,
			last_success_at, extraction_mode, extraction_rule, owner, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (url) DO NOTHING
	`, uuid.NewString(), src.URL, src.FeedURL, src.SiteURL, src.Title, src.Description,
		string(src.SourceType), string(status), lastSuccess, string(src.ExtractionMode), rule,
		src.Owner, ts, ts)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert source: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	stored, err := r.GetSourceByURL(ctx, src.URL)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, fmt.Errorf("source %s vanished after insert", src.URL)
	}

	return stored, affected > 0, nil
}

// GetSource retrieves a source by id
func (r *SourceRepo) GetSource(ctx context.Context, id string) (*Source, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)
	src, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return src, nil
}

// GetSourceByURL retrieves a source by its subscription URL
func (r *SourceRepo) GetSourceByURL(ctx context.Context, url string) (*Source, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE url = ?`, url)
	src, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source by URL: %w", err)
	}
	return src, nil
}

// ListSources pages through sources in creation order
func (r *SourceRepo) ListSources(ctx context.Context, offset, limit int) ([]Source, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sourceColumns+`
		FROM sources
		ORDER BY rowid
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, *src)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating source rows: %w", err)
	}

	return sources, nil
}

// GetSourceCount returns the total number of sources
func (r *SourceRepo) GetSourceCount(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sources").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get source count: %w", err)
	}
	return count, nil
}

func (r *SourceRepo) MarkFetching(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sources SET status = 'fetching', updated_at = ? WHERE id = ?
	`, now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark source fetching: %w", err)
	}
	return nil
}

func (r *SourceRepo) MarkSuccess(ctx context.Context, id string, update SourceUpdate) error {
	ts := now()
	_, err := r.db.ExecContext(ctx, `
		UPDATE sources
		SET status = 'ok',
		    title = CASE WHEN ? <> '' THEN ? ELSE title END,
		    site_url = CASE WHEN ? <> '' THEN ? ELSE site_url END,
		    description = CASE WHEN ? <> '' THEN ? ELSE description END,
		    etag = CASE WHEN ? <> '' THEN ? ELSE etag END,
		    last_modified = CASE WHEN ? <> '' THEN ? ELSE last_modified END,
		    last_success_at = ?,
		    last_error = '',
		    updated_at = ?
		WHERE id = ?
	`, update.Title, update.Title, update.SiteURL, update.SiteURL,
		update.Description, update.Description, update.ETag, update.ETag,
		update.LastModified, update.LastModified, ts, ts, id)
	if err != nil {
		return fmt.Errorf("failed to mark source ok: %w", err)
	}
	return nil
}

func (r *SourceRepo) MarkError(ctx context.Context, id string, message string) error {
	ts := now()
	_, err := r.db.ExecContext(ctx, `
		UPDATE sources SET status = 'error', last_error = ?, last_error_at = ?, updated_at = ? WHERE id = ?
	`, message, ts, ts, id)
	if err != nil {
		return fmt.Errorf("failed to mark source error: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSource(row scanner) (*Source, error) {
	var (
		src                      Source
		sourceType, status, mode string
		rule                     string
		lastSuccess, lastError   sql.NullTime
	)

	err := row.Scan(&src.ID, &src.URL, &src.FeedURL, &src.SiteURL, &src.Title, &src.Description,
		&sourceType, &status, &lastSuccess, &lastError, &src.LastError, &src.ETag, &src.LastModified,
		&mode, &rule, &src.Owner, &src.CreatedAt, &src.UpdatedAt)
	if err != nil {
		return nil, err
	}

	src.SourceType = pipeline.SourceType(sourceType)
	src.Status = SourceStatus(status)
	src.ExtractionMode = pipeline.ExtractionMode(mode)
	if lastSuccess.Valid {
		src.LastSuccessAt = &lastSuccess.Time
	}
	if lastError.Valid {
		src.LastErrorAt = &lastError.Time
	}

	if rule != "" {
		var decoded pipeline.ExtractionRule
		if err := json.Unmarshal([]byte(rule), &decoded); err != nil {
			return nil, fmt.Errorf("failed to decode extraction rule: %w", err)
		}
		src.ExtractionRule = &decoded
	}

	return &src, nil
}

func encodeRule(rule *pipeline.ExtractionRule) (string, error) {
	if rule == nil {
		return "", nil
	}
	data, err := json.Marshal(rule)
	if err != nil {
		return "", fmt.Errorf("failed to encode extraction rule: %w", err)
	}
	return string(data), nil
}

package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

var _ ItemRepository = (*ItemRepo)(nil)

const guidChunkSize = 500

// ItemRepo handles database operations for source items
type ItemRepo struct {
	db *DB
}

// NewItemRepository creates a new item repository
func NewItemRepository(db *DB) *ItemRepo {
	return &ItemRepo{db: db}
}

// InsertItems stores items, ignoring (source_id, guid) duplicates, and
// returns how many rows were actually written.
func (r *ItemRepo) InsertItems(ctx context.Context, items []Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO items (
			id, source_id, guid, title, link, author, content_html, content_text,
			published_at, fetched_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare item insert: %w", err)
	}
	defer stmt.Close()

	ts := now()
	inserted := 0
	for _, item := range items {
		id := item.ID
		if id == "" {
			id = uuid.NewString()
		}
		fetchedAt := item.FetchedAt
		if fetchedAt.IsZero() {
			fetchedAt = ts
		}

		var publishedAt any
		if item.PublishedAt != nil {
			publishedAt = item.PublishedAt.UTC()
		}

		res, err := stmt.ExecContext(ctx, id, item.SourceID, item.GUID, item.Title, item.Link, item.Author,
			item.ContentHTML, item.ContentText, publishedAt, fetchedAt.UTC(), ts)
		if err != nil {
			return 0, fmt.Errorf("failed to insert item %s: %w", item.GUID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit items: %w", err)
	}

	return inserted, nil
}

// GetExistingGUIDs returns the subset of guids already stored for a source
func (r *ItemRepo) GetExistingGUIDs(ctx context.Context, sourceID string, guids []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(guids))

	for start := 0; start < len(guids); start += guidChunkSize {
		end := min(start+guidChunkSize, len(guids))
		chunk := guids[start:end]

		args := make([]any, 0, len(chunk)+1)
		args = append(args, sourceID)
		for _, guid := range chunk {
			args = append(args, guid)
		}

		rows, err := r.db.QueryContext(ctx,
			`SELECT guid FROM items WHERE source_id = ? AND guid IN (`+placeholders(len(chunk))+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query existing guids: %w", err)
		}

		for rows.Next() {
			var guid string
			if err := rows.Scan(&guid); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan guid: %w", err)
			}
			existing[guid] = true
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("error iterating guid rows: %w", err)
		}
	}

	return existing, nil
}

// GetItemsByGUIDs loads stored items for the given guids
func (r *ItemRepo) GetItemsByGUIDs(ctx context.Context, sourceID string, guids []string) ([]Item, error) {
	var items []Item

	for start := 0; start < len(guids); start += guidChunkSize {
		end := min(start+guidChunkSize, len(guids))
		chunk := guids[start:end]

		args := make([]any, 0, len(chunk)+1)
		args = append(args, sourceID)
		for _, guid := range chunk {
			args = append(args, guid)
		}

		rows, err := r.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items
			WHERE source_id = ? AND guid IN (`+placeholders(len(chunk))+`)
			ORDER BY rowid`, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query items by guid: %w", err)
		}

		batch, err := scanItems(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, batch...)
	}

	return items, nil
}

// UpdateItemContent backfills the body of a stored item
func (r *ItemRepo) UpdateItemContent(ctx context.Context, sourceID, guid, contentHTML, contentText string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE items SET content_html = ?, content_text = ?, fetched_at = ?
		WHERE source_id = ? AND guid = ?
	`, contentHTML, contentText, now(), sourceID, guid)
	if err != nil {
		return fmt.Errorf("failed to update item content: %w", err)
	}
	return nil
}

// GetRecentItems returns the newest items of a source
func (r *ItemRepo) GetRecentItems(ctx context.Context, sourceID string, limit int) ([]Item, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items
		WHERE source_id = ?
		ORDER BY COALESCE(published_at, created_at) DESC, rowid DESC
		LIMIT ?`, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent items: %w", err)
	}
	return scanItems(rows)
}

// GetItemCount returns the number of items stored for a source
func (r *ItemRepo) GetItemCount(ctx context.Context, sourceID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items WHERE source_id = ?", sourceID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get item count: %w", err)
	}
	return count, nil
}

const itemColumns = `id, source_id, guid, title, link, author, content_html, content_text,
	published_at, fetched_at, created_at`

func scanItems(rows *sql.Rows) ([]Item, error) {
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			item        Item
			publishedAt sql.NullTime
		)
		err := rows.Scan(&item.ID, &item.SourceID, &item.GUID, &item.Title, &item.Link, &item.Author,
			&item.ContentHTML, &item.ContentText, &publishedAt, &item.FetchedAt, &item.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		if publishedAt.Valid {
			item.PublishedAt = &publishedAt.Time
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item rows: %w", err)
	}

	return items, nil
}

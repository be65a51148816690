package refresh

import (
	"cmp"
	"context"
	"log/slog"

	"github.com/lysyi3m/feedforge/app/database"
	"github.com/lysyi3m/feedforge/app/feed"
	"github.com/lysyi3m/feedforge/app/pipeline"
)

func (e *Engine) refreshRSS(ctx context.Context, src *database.Source) (*Result, database.SourceUpdate, error) {
	result := &Result{SourceID: src.ID, SourceType: pipeline.SourceTypeRSS}
	feedURL := cmp.Or(src.FeedURL, src.URL)

	fetched, err := e.fetcher.Fetch(ctx, feedURL, src.ETag, src.LastModified)
	if err != nil {
		return nil, database.SourceUpdate{}, err
	}

	if fetched.NotModified() {
		result.NotModified = true
		return result, database.SourceUpdate{}, nil
	}

	metadata, parsed, err := e.parser.Run(fetched.Body)
	if err != nil {
		return nil, database.SourceUpdate{}, pipeline.Wrap(pipeline.CodeRefreshFailed, err, "")
	}

	items := make([]database.Item, 0, len(parsed))
	seen := make(map[string]bool, len(parsed))
	guids := make([]string, 0, len(parsed))
	for _, p := range parsed {
		if seen[p.GUID] {
			continue
		}
		seen[p.GUID] = true
		guids = append(guids, p.GUID)
		items = append(items, toItem(src.ID, p))
	}

	existing, err := e.repos.Items.GetExistingGUIDs(ctx, src.ID, guids)
	if err != nil {
		return nil, database.SourceUpdate{}, err
	}

	var fresh []database.Item
	var storedGUIDs []string
	for _, item := range items {
		if existing[item.GUID] {
			storedGUIDs = append(storedGUIDs, item.GUID)
		} else {
			fresh = append(fresh, item)
		}
	}

	e.enrichItems(ctx, fresh)
	if err := e.backfill(ctx, src.ID, storedGUIDs); err != nil {
		slog.Warn("Item backfill failed", "source", src.ID, "error", err)
	}

	result.ItemsAdded, err = e.repos.Items.InsertItems(ctx, fresh)
	if err != nil {
		return nil, database.SourceUpdate{}, err
	}

	update := database.SourceUpdate{
		Title:        metadata.Title,
		SiteURL:      metadata.Link,
		Description:  metadata.Description,
		ETag:         fetched.ETag,
		LastModified: fetched.LastModified,
	}
	return result, update, nil
}

func toItem(sourceID string, p feed.Item) database.Item {
	return database.Item{
		SourceID:    sourceID,
		GUID:        p.GUID,
		Title:       p.Title,
		Link:        p.Link,
		Author:      p.Author,
		ContentHTML: p.ContentHTML,
		ContentText: p.ContentText,
		PublishedAt: p.PublishedAt,
	}
}

func (e *Engine) isThin(item database.Item) bool {
	return feed.BodyLength(item.ContentText, item.ContentHTML) < e.settings.RSSMinChars
}

// enrichItems replaces thin item bodies with the readable content of their
// linked page, spending at most RSSEnrichMaxItems fetches. Items are
// updated in place; the returned slice marks the ones that changed.
func (e *Engine) enrichItems(ctx context.Context, items []database.Item) []bool {
	changed := make([]bool, len(items))
	if e.extractor == nil || e.settings.RSSEnrichMaxItems <= 0 {
		return changed
	}

	used := 0
	for i := range items {
		if used >= e.settings.RSSEnrichMaxItems || ctx.Err() != nil {
			break
		}
		item := &items[i]
		if item.Link == "" || !e.isThin(*item) {
			continue
		}
		used++

		detail, err := e.extractDetail(ctx, item.Link)
		if err != nil {
			slog.Debug("Item enrichment failed", "link", item.Link, "error", err)
			continue
		}
		if detail == nil {
			continue
		}

		text := pipeline.NormalizeSpace(cmp.Or(detail.ContentMarkdown, detail.ContentText))
		if pipeline.RuneLen(text) < e.settings.RSSMinChars {
			continue
		}

		item.ContentHTML = cmp.Or(detail.ContentHTML, item.ContentHTML)
		item.ContentText = text
		item.Title = cmp.Or(item.Title, detail.Title)
		changed[i] = true
	}
	return changed
}

func (e *Engine) extractDetail(ctx context.Context, link string) (*pipeline.Candidate, error) {
	if e.settings.DetailTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.settings.DetailTimeout)
		defer cancel()
	}
	return e.extractor.ExtractBest(ctx, link)
}

// backfill revisits items already stored with a thin body.
func (e *Engine) backfill(ctx context.Context, sourceID string, guids []string) error {
	if len(guids) == 0 || e.settings.RSSEnrichMaxItems <= 0 {
		return nil
	}

	stored, err := e.repos.Items.GetItemsByGUIDs(ctx, sourceID, guids)
	if err != nil {
		return err
	}

	var weak []database.Item
	for _, item := range stored {
		if e.isThin(item) {
			weak = append(weak, item)
			if len(weak) == e.settings.RSSEnrichMaxItems {
				break
			}
		}
	}

	changed := e.enrichItems(ctx, weak)
	for i, item := range weak {
		if !changed[i] {
			continue
		}
		if err := e.repos.Items.UpdateItemContent(ctx, sourceID, item.GUID, item.ContentHTML, item.ContentText); err != nil {
			return err
		}
	}
	return nil
}

package feed

import (
	"cmp"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/feeds"

	"github.com/lysyi3m/feedforge/app/database"
)

type Generator struct {
	baseURL string
	version string
}

func NewGenerator(baseURL, version string) *Generator {
	return &Generator{
		baseURL: strings.TrimRight(baseURL, "/"),
		version: version,
	}
}

// Run renders a source and its stored items (newest first) as RSS 2.0.
func (g *Generator) Run(source database.Source, items []database.Item) (string, error) {
	title := cmp.Or(source.Title, source.URL)
	description := cmp.Or(source.Description, fmt.Sprintf("Processed feed from %s", source.URL))

	updated := source.UpdatedAt
	if len(items) > 0 {
		updated = itemTime(items[0])
	}

	feed := &feeds.Feed{
		Title:       title,
		Link:        &feeds.Link{Href: cmp.Or(source.SiteURL, source.URL)},
		Description: description,
		Id:          g.selfLink(source.ID),
		Created:     source.CreatedAt,
		Updated:     updated,
	}

	for _, item := range items {
		entry := &feeds.Item{
			Id:          item.GUID,
			Title:       cmp.Or(item.Title, "Untitled"),
			Description: cmp.Or(summary(item.ContentText), "No description available"),
			Link:        &feeds.Link{Href: cmp.Or(item.Link, source.URL)},
			Created:     itemTime(item),
		}
		if item.ContentHTML != "" {
			entry.Content = item.ContentHTML
		}
		if item.Author != "" {
			entry.Author = &feeds.Author{Name: item.Author}
		}
		feed.Items = append(feed.Items, entry)
	}

	rss, err := feed.ToRss()
	if err != nil {
		return "", fmt.Errorf("failed to generate RSS: %w", err)
	}

	slog.Debug("RSS feed generated", "source", source.ID, "items", len(items), "size", len(rss))
	return rss, nil
}

func (g *Generator) selfLink(sourceID string) string {
	return fmt.Sprintf("%s/feeds/%s", g.baseURL, sourceID)
}

func itemTime(item database.Item) time.Time {
	if item.PublishedAt != nil {
		return *item.PublishedAt
	}
	return cmp.Or(item.FetchedAt, item.CreatedAt)
}

func summary(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= 500 {
		return string(runes)
	}
	return string(runes[:500]) + "..."
}

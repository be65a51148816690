package feed

import (
	"strings"
	"testing"
	"time"

	"github.com/lysyi3m/feedforge/app/database"
)

func TestGenerateRSS(t *testing.T) {
	published := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	source := database.Source{
		ID:          "src-1",
		URL:         "https://example.com/news",
		SiteURL:     "https://example.com",
		Title:       "Example & News",
		Description: "Latest updates",
		CreatedAt:   published.Add(-24 * time.Hour),
	}
	items := []database.Item{
		{
			GUID:        "web:key:abc",
			Title:       "First <post>",
			Link:        "https://example.com/posts/1",
			Author:      "Jane",
			ContentHTML: "<p>Hello</p>",
			ContentText: "Hello",
			PublishedAt: &published,
		},
		{
			GUID:      "item-2",
			FetchedAt: published.Add(-time.Hour),
		},
	}

	rss, err := NewGenerator("https://feeds.example.org/", "1.0.0").Run(source, items)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	expected := []string{
		`<rss version="2.0"`,
		"<title>Example &amp; News</title>",
		"<link>https://example.com</link>",
		"<description>Latest updates</description>",
		"<title>First &lt;post&gt;</title>",
		"<guid>web:key:abc</guid>",
		"<link>https://example.com/posts/1</link>",
		"Hello",
		"<title>Untitled</title>",
		"No description available",
	}
	for _, want := range expected {
		if !strings.Contains(rss, want) {
			t.Errorf("Expected RSS to contain %q\n%s", want, rss)
		}
	}
}

func TestGenerateWithEmptyItems(t *testing.T) {
	source := database.Source{ID: "src", URL: "https://example.com/page", UpdatedAt: time.Now()}

	rss, err := NewGenerator("", "dev").Run(source, nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(rss, "<title>https://example.com/page</title>") {
		t.Errorf("Expected URL as title fallback, got:\n%s", rss)
	}
	if !strings.Contains(rss, "Processed feed from https://example.com/page") {
		t.Errorf("Expected default description, got:\n%s", rss)
	}
	if strings.Contains(rss, "<item>") {
		t.Error("Expected no items")
	}
}

func TestSummaryClipsLongText(t *testing.T) {
	long := strings.Repeat("x", 600)
	got := summary(long)
	if len([]rune(got)) != 503 || !strings.HasSuffix(got, "...") {
		t.Errorf("Expected clipped summary, got %d runes", len([]rune(got)))
	}
}

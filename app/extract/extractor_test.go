package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/lysyi3m/feedforge/app/pipeline"
)

const pageURL = "https://example.com/news"

type MockRenderer struct {
	pages map[string]*pipeline.RenderedPage
	errs  map[string]error
	calls []string
}

func (m *MockRenderer) Render(ctx context.Context, url string) (*pipeline.RenderedPage, error) {
	m.calls = append(m.calls, url)
	if err, ok := m.errs[url]; ok {
		return nil, err
	}
	if page, ok := m.pages[url]; ok {
		return page, nil
	}
	return nil, errors.New("not found")
}

func sentence(n int) string {
	words := []string{"release", "notes", "describe", "the", "latest", "changes", "to", "our", "platform", "today"}
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(words[i%len(words)])
	}
	return b.String()
}

func listingHTML(items int, bodyWords int) string {
	var b strings.Builder
	b.WriteString("<html><head><title>News</title></head><body><main>")
	for i := 0; i < items; i++ {
		fmt.Fprintf(&b, `<article><h2>Post %d</h2><a href="/posts/%d">read</a><time datetime="2024-05-0%dT10:00:00Z">May</time><p>%s</p></article>`,
			i, i, i+1, sentence(bodyWords))
	}
	b.WriteString("</main></body></html>")
	return b.String()
}

func articleHTML(title string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>%s</title></head><body><article><h1>%s</h1>", title, title)
	for i := 0; i < 8; i++ {
		fmt.Fprintf(&b, "<p>%s, paragraph %d of the detailed write-up with plenty of words.</p>", sentence(40), i)
	}
	b.WriteString("</article></body></html>")
	return b.String()
}

func newTestExtractor(renderer PageRenderer) *Extractor {
	return NewExtractor(renderer, Settings{EnrichMinChars: 140, EnrichMaxLinks: 3, EnrichTimeout: time.Second})
}

func TestExtractReadabilityArticle(t *testing.T) {
	e := newTestExtractor(nil)
	page := &pipeline.RenderedPage{FinalURL: "https://example.com/post", Title: "Launch", HTML: articleHTML("Launch")}

	result := e.Extract(page, pipeline.ModePartialPreferred, nil)

	if result.Strategy != pipeline.StrategyReadability {
		t.Fatalf("Expected readability strategy, got '%s'", result.Strategy)
	}
	if len(result.Candidates) != 1 {
		t.Fatalf("Expected 1 candidate, got %d", len(result.Candidates))
	}
	c := result.Candidates[0]
	if !strings.Contains(c.ContentText, "detailed write-up") {
		t.Errorf("Expected article text, got '%s'", c.ContentText)
	}
	if c.ContentMarkdown == "" {
		t.Error("Expected markdown to be produced")
	}
	if c.Key == "" {
		t.Error("Expected candidate key")
	}
	if result.Mode != pipeline.ModePartialPreferred {
		t.Errorf("Expected mode partial_preferred, got '%s'", result.Mode)
	}
}

func TestExtractSelectorItems(t *testing.T) {
	e := newTestExtractor(nil)
	page := &pipeline.RenderedPage{FinalURL: pageURL, Title: "News", HTML: listingHTML(3, 20)}
	rule := &pipeline.ExtractionRule{Strategy: pipeline.StrategySelector, ContainerSelector: "main", ItemSelector: "article"}

	result := e.Extract(page, pipeline.ModePartialPreferred, rule)

	if result.Strategy != pipeline.StrategySelector {
		t.Fatalf("Expected selector strategy, got '%s'", result.Strategy)
	}
	if len(result.Candidates) != 3 {
		t.Fatalf("Expected 3 candidates, got %d", len(result.Candidates))
	}

	first := result.Candidates[0]
	if first.Title != "Post 0" {
		t.Errorf("Expected title 'Post 0', got '%s'", first.Title)
	}
	if first.Link != "https://example.com/posts/0" {
		t.Errorf("Expected absolute link, got '%s'", first.Link)
	}
	if first.PublishedHint != "2024-05-01T10:00:00Z" {
		t.Errorf("Expected datetime hint, got '%s'", first.PublishedHint)
	}

	keys := map[string]bool{}
	for _, c := range result.Candidates {
		keys[c.Key] = true
	}
	if len(keys) != 3 {
		t.Errorf("Expected 3 distinct keys, got %d", len(keys))
	}
}

func TestExtractSelectorSkipsShortItemsAndCapsCount(t *testing.T) {
	e := newTestExtractor(nil)
	rule := &pipeline.ExtractionRule{Strategy: pipeline.StrategySelector, ContainerSelector: "main", ItemSelector: "article"}

	page := &pipeline.RenderedPage{FinalURL: pageURL, HTML: listingHTML(12, 20)}
	result := e.Extract(page, pipeline.ModePartialPreferred, rule)
	if len(result.Candidates) != maxItemsPerContainer {
		t.Errorf("Expected %d candidates, got %d", maxItemsPerContainer, len(result.Candidates))
	}

	short := &pipeline.RenderedPage{FinalURL: pageURL, HTML: listingHTML(3, 2)}
	result = e.Extract(short, pipeline.ModePartialPreferred, rule)
	if len(result.Candidates) != 1 {
		t.Fatalf("Expected container fallback candidate, got %d", len(result.Candidates))
	}
	if result.Candidates[0].Key != pipeline.HashParts(pageURL, "selector-root") {
		t.Errorf("Expected container fallback key, got '%s'", result.Candidates[0].Key)
	}
}

func TestSelectorKeysSurviveBodyEdits(t *testing.T) {
	e := newTestExtractor(nil)
	rule := &pipeline.ExtractionRule{Strategy: pipeline.StrategySelector, ContainerSelector: "main", ItemSelector: "article"}

	before := e.Extract(&pipeline.RenderedPage{FinalURL: pageURL, HTML: listingHTML(1, 20)}, pipeline.ModePartialPreferred, rule)
	after := e.Extract(&pipeline.RenderedPage{FinalURL: pageURL, HTML: listingHTML(1, 25)}, pipeline.ModePartialPreferred, rule)

	if len(before.Candidates) != 1 || len(after.Candidates) != 1 {
		t.Fatalf("Expected one candidate each, got %d and %d", len(before.Candidates), len(after.Candidates))
	}
	if before.Candidates[0].Key != after.Candidates[0].Key {
		t.Error("Expected key to stay stable when only the body changes")
	}
	if before.Candidates[0].ContentText == after.Candidates[0].ContentText {
		t.Error("Expected body text to differ")
	}
}

func TestExtractFallsBackToFullPage(t *testing.T) {
	e := newTestExtractor(nil)
	page := &pipeline.RenderedPage{FinalURL: pageURL, Title: "Tiny", HTML: "<html><body><div>Just a short note.</div></body></html>"}
	rule := &pipeline.ExtractionRule{Strategy: pipeline.StrategySelector, ContainerSelector: ".missing"}

	result := e.Extract(page, pipeline.ModePartialPreferred, rule)

	if len(result.Candidates) != 1 {
		t.Fatalf("Expected 1 candidate, got %d", len(result.Candidates))
	}
	if result.Mode != pipeline.ModeFullPage {
		t.Errorf("Expected mode full_page, got '%s'", result.Mode)
	}
	if len(result.Warnings) != 1 || result.Warnings[0] != WarningFullPageFallback {
		t.Errorf("Expected fallback warning, got %v", result.Warnings)
	}
	if result.Candidates[0].ContentText != "Just a short note." {
		t.Errorf("Unexpected text: '%s'", result.Candidates[0].ContentText)
	}
}

func TestExtractFullPageMode(t *testing.T) {
	e := newTestExtractor(nil)
	page := &pipeline.RenderedPage{FinalURL: pageURL, HTML: listingHTML(2, 20)}

	result := e.Extract(page, pipeline.ModeFullPage, nil)

	if len(result.Candidates) != 1 {
		t.Fatalf("Expected 1 candidate, got %d", len(result.Candidates))
	}
	if result.Candidates[0].Key != pipeline.HashParts(pageURL, "full_page") {
		t.Errorf("Unexpected key '%s'", result.Candidates[0].Key)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("Expected no warnings in explicit full page mode, got %v", result.Warnings)
	}
}

func TestExtractEmptyPage(t *testing.T) {
	e := newTestExtractor(nil)
	page := &pipeline.RenderedPage{FinalURL: pageURL, HTML: "<html><body><script>window.app = {};</script></body></html>"}

	result := e.Extract(page, pipeline.ModePartialPreferred, nil)

	if len(result.Candidates) != 0 {
		t.Errorf("Expected no candidates, got %d", len(result.Candidates))
	}
}

func TestResolveLink(t *testing.T) {
	tests := []struct {
		href string
		want string
	}{
		{"/a/b", "https://example.com/a/b"},
		{"c", "https://example.com/c"},
		{"https://other.org/x#frag", "https://other.org/x"},
		{"mailto:me@example.com", ""},
		{"javascript:void(0)", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := ResolveLink(pageURL, tt.href); got != tt.want {
			t.Errorf("ResolveLink(%q): expected %q, got %q", tt.href, tt.want, got)
		}
	}
}

func TestEnrichReplacesThinCandidates(t *testing.T) {
	detailURL := "https://example.com/posts/0"
	renderer := &MockRenderer{pages: map[string]*pipeline.RenderedPage{
		detailURL: {FinalURL: detailURL, Title: "Post 0", HTML: articleHTML("Post 0")},
	}}
	e := newTestExtractor(renderer)

	thin := pipeline.Candidate{Key: "k", Title: "Post 0", Link: detailURL, ContentText: sentence(15)}
	enriched, warnings := e.Enrich(context.Background(), pageURL, []pipeline.Candidate{thin})

	if len(warnings) != 0 {
		t.Errorf("Expected no warnings, got %v", warnings)
	}
	if BodyLength(enriched[0]) <= BodyLength(thin) {
		t.Error("Expected candidate body to grow")
	}
	if enriched[0].Key != "k" {
		t.Errorf("Expected key to be preserved, got '%s'", enriched[0].Key)
	}
	if thin.ContentText != sentence(15) {
		t.Error("Expected input slice to stay untouched")
	}
}

func TestEnrichCapsAttemptsAndRecordsFailures(t *testing.T) {
	renderer := &MockRenderer{errs: map[string]error{}}
	var candidates []pipeline.Candidate
	for i := 0; i < 5; i++ {
		link := fmt.Sprintf("https://example.com/posts/%d", i)
		renderer.errs[link] = errors.New("timeout")
		candidates = append(candidates, pipeline.Candidate{Key: link, Link: link, ContentText: "short"})
	}

	e := NewExtractor(renderer, Settings{EnrichMinChars: 140, EnrichMaxLinks: 2, EnrichTimeout: time.Second})
	_, warnings := e.Enrich(context.Background(), pageURL, candidates)

	if len(renderer.calls) != 2 {
		t.Errorf("Expected 2 render attempts, got %d", len(renderer.calls))
	}
	if len(warnings) != 2 || !strings.HasPrefix(warnings[0], "detail_enrich_failed:") {
		t.Errorf("Expected 2 failure warnings, got %v", warnings)
	}
}

func TestEnrichSkipsLongOrSelfLinkedCandidates(t *testing.T) {
	renderer := &MockRenderer{}
	e := newTestExtractor(renderer)

	candidates := []pipeline.Candidate{
		{Key: "self", Link: pageURL, ContentText: "short"},
		{Key: "long", Link: "https://example.com/long", ContentText: sentence(60)},
		{Key: "nolink", ContentText: "short"},
	}
	_, warnings := e.Enrich(context.Background(), pageURL, candidates)

	if len(renderer.calls) != 0 {
		t.Errorf("Expected no render calls, got %v", renderer.calls)
	}
	if len(warnings) != 0 {
		t.Errorf("Expected no warnings, got %v", warnings)
	}
}

func TestEnrichRecordsEmptyDetail(t *testing.T) {
	detailURL := "https://example.com/empty"
	renderer := &MockRenderer{pages: map[string]*pipeline.RenderedPage{
		detailURL: {FinalURL: detailURL, HTML: "<html><body></body></html>"},
	}}
	e := newTestExtractor(renderer)

	_, warnings := e.Enrich(context.Background(), pageURL, []pipeline.Candidate{{Key: "k", Link: detailURL, ContentText: "short"}})

	if len(warnings) != 1 || warnings[0] != "detail_enrich_empty:"+detailURL {
		t.Errorf("Expected empty detail warning, got %v", warnings)
	}
}

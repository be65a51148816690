package extract

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/lysyi3m/feedforge/app/pipeline"
)

const (
	DefaultContainerSelector = "main, article, body"
	DefaultItemSelector      = "article, .post, .entry, li"
	DefaultTitleSelector     = "h1, h2, h3"
	DefaultLinkSelector      = "a[href]"
	DefaultTimeSelector      = "time"

	maxItemsPerContainer = 8

	WarningFullPageFallback = "partial_extract_empty_fallback_full_page"
)

// PageRenderer is satisfied by render.Renderer.
type PageRenderer interface {
	Render(ctx context.Context, url string) (*pipeline.RenderedPage, error)
}

type Settings struct {
	EnrichMinChars int
	EnrichMaxLinks int
	EnrichTimeout  time.Duration
}

type Extractor struct {
	renderer PageRenderer
	settings Settings
}

// Extraction is the outcome of one extraction pass. Mode reports
// full_page when the partial strategies produced nothing.
type Extraction struct {
	Candidates []pipeline.Candidate
	Mode       pipeline.ExtractionMode
	Strategy   pipeline.Strategy
	Warnings   []string
}

func NewExtractor(renderer PageRenderer, settings Settings) *Extractor {
	return &Extractor{
		renderer: renderer,
		settings: settings,
	}
}

// Extract turns a rendered page into candidates. For partial_preferred the
// order is readability then selector (selector first when the rule says
// so), with a full page candidate only as the last resort.
func (e *Extractor) Extract(page *pipeline.RenderedPage, mode pipeline.ExtractionMode, rule *pipeline.ExtractionRule) Extraction {
	result := Extraction{Mode: mode}
	if page == nil {
		return result
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		result.Warnings = append(result.Warnings, "html_parse_failed: "+err.Error())
		return result
	}
	doc.Find("script, style, noscript, template, svg").Remove()

	conv := newConverter(page.FinalURL)

	if mode == pipeline.ModeFullPage || (rule != nil && rule.Strategy == pipeline.StrategyFullPage) {
		result.Mode = pipeline.ModeFullPage
		result.Strategy = pipeline.StrategyFullPage
		result.Candidates = fullPageCandidates(page, doc, conv)
		return result
	}

	order := []pipeline.Strategy{pipeline.StrategyReadability, pipeline.StrategySelector}
	if rule != nil && rule.Strategy == pipeline.StrategySelector {
		order = []pipeline.Strategy{pipeline.StrategySelector, pipeline.StrategyReadability}
	}

	for _, strategy := range order {
		var candidates []pipeline.Candidate
		switch strategy {
		case pipeline.StrategyReadability:
			candidates = readabilityCandidates(page, conv)
		case pipeline.StrategySelector:
			candidates = selectorCandidates(page, doc, rule, conv)
		}
		if len(candidates) > 0 {
			result.Strategy = strategy
			result.Candidates = candidates
			return result
		}
	}

	full := fullPageCandidates(page, doc, conv)
	if len(full) == 0 {
		return result
	}

	slog.Debug("Partial extraction empty, using full page", "url", page.FinalURL)
	result.Mode = pipeline.ModeFullPage
	result.Strategy = pipeline.StrategyFullPage
	result.Candidates = full
	result.Warnings = append(result.Warnings, WarningFullPageFallback)
	return result
}

// ExtractBest renders url and returns its first partial candidate, or nil
// when nothing could be extracted.
func (e *Extractor) ExtractBest(ctx context.Context, url string) (*pipeline.Candidate, error) {
	page, err := e.renderer.Render(ctx, url)
	if err != nil {
		return nil, err
	}

	extraction := e.Extract(page, pipeline.ModePartialPreferred, nil)
	if len(extraction.Candidates) == 0 {
		return nil, nil
	}

	best := extraction.Candidates[0]
	return &best, nil
}

func readabilityCandidates(page *pipeline.RenderedPage, conv *md.Converter) []pipeline.Candidate {
	pageURL, err := url.Parse(page.FinalURL)
	if err != nil || pageURL.Host == "" {
		return nil
	}

	article, err := readability.FromReader(strings.NewReader(page.HTML), pageURL)
	if err != nil {
		slog.Debug("Readability parse failed", "url", page.FinalURL, "error", err)
		return nil
	}

	text := pipeline.SanitizeText(article.TextContent)
	if pipeline.RuneLen(text) < pipeline.MinMeaningfulTextChars {
		return nil
	}

	title := pipeline.NormalizeSpace(article.Title)
	if title == "" {
		title = page.Title
	}

	slog.Debug("Content extracted successfully",
		"title", title,
		"content_length", len(article.Content))

	return []pipeline.Candidate{{
		Key:             pipeline.HashParts(page.FinalURL, string(pipeline.StrategyReadability), title),
		Title:           title,
		Link:            page.FinalURL,
		ContentText:     text,
		ContentMarkdown: toMarkdown(conv, article.Content),
		ContentHTML:     article.Content,
	}}
}

func selectorCandidates(page *pipeline.RenderedPage, doc *goquery.Document, rule *pipeline.ExtractionRule, conv *md.Converter) []pipeline.Candidate {
	containerSel := DefaultContainerSelector
	itemSel := DefaultItemSelector
	titleSel := DefaultTitleSelector
	linkSel := DefaultLinkSelector
	timeSel := DefaultTimeSelector
	if rule != nil {
		containerSel = orDefault(rule.ContainerSelector, containerSel)
		itemSel = orDefault(rule.ItemSelector, itemSel)
		titleSel = orDefault(rule.TitleSelector, titleSel)
		linkSel = orDefault(rule.LinkSelector, linkSel)
		timeSel = orDefault(rule.TimeSelector, timeSel)
	}

	containers := doc.Find(containerSel)
	if containers.Length() == 0 {
		return nil
	}

	var candidates []pipeline.Candidate
	seen := make(map[*html.Node]bool)
	keys := make(map[string]bool)
	position := 0

	containers.Each(func(_ int, container *goquery.Selection) {
		taken := 0
		container.Find(itemSel).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			if taken >= maxItemsPerContainer {
				return false
			}
			node := el.Get(0)
			if seen[node] {
				return true
			}
			seen[node] = true

			text := pipeline.SanitizeText(el.Text())
			if pipeline.RuneLen(text) < pipeline.MinMeaningfulTextChars {
				return true
			}

			title := pipeline.NormalizeSpace(el.Find(titleSel).First().Text())
			link := elementLink(el, linkSel, page.FinalURL)
			published := elementTime(el, timeSel)
			fragment, _ := goquery.OuterHtml(el)

			key := selectorKey(page.FinalURL, link, title, position)
			position++
			if keys[key] {
				return true
			}
			keys[key] = true
			taken++

			candidates = append(candidates, pipeline.Candidate{
				Key:             key,
				Title:           title,
				Link:            link,
				PublishedHint:   published,
				ContentText:     text,
				ContentMarkdown: toMarkdown(conv, fragment),
				ContentHTML:     fragment,
			})
			return true
		})
	})

	if len(candidates) > 0 {
		return candidates
	}

	root := containers.First()
	text := pipeline.SanitizeText(root.Text())
	if text == "" {
		return nil
	}
	fragment, _ := root.Html()

	return []pipeline.Candidate{{
		Key:             pipeline.HashParts(page.FinalURL, "selector-root"),
		Title:           page.Title,
		Link:            page.FinalURL,
		ContentText:     text,
		ContentMarkdown: toMarkdown(conv, fragment),
		ContentHTML:     fragment,
	}}
}

func fullPageCandidates(page *pipeline.RenderedPage, doc *goquery.Document, conv *md.Converter) []pipeline.Candidate {
	body := doc.Find("body").First()
	if body.Length() == 0 {
		body = doc.Selection
	}

	text := pipeline.SanitizeText(body.Text())
	if text == "" {
		return nil
	}
	fragment, _ := body.Html()

	return []pipeline.Candidate{{
		Key:             pipeline.HashParts(page.FinalURL, string(pipeline.StrategyFullPage)),
		Title:           page.Title,
		Link:            page.FinalURL,
		ContentText:     text,
		ContentMarkdown: toMarkdown(conv, fragment),
		ContentHTML:     fragment,
	}}
}

// selectorKey identifies an item by its own link when it has one, so edits
// to the item body keep the same key.
func selectorKey(pageURL, link, title string, position int) string {
	if link != "" && !sameURL(link, pageURL) {
		return pipeline.HashParts(pageURL, string(pipeline.StrategySelector), link)
	}
	return pipeline.HashParts(pageURL, string(pipeline.StrategySelector), title, strconv.Itoa(position))
}

func elementLink(el *goquery.Selection, linkSel, base string) string {
	href := ""
	if el.Is(linkSel) {
		href, _ = el.Attr("href")
	}
	if href == "" {
		href, _ = el.Find(linkSel).First().Attr("href")
	}
	return ResolveLink(base, href)
}

func elementTime(el *goquery.Selection, timeSel string) string {
	node := el.Find(timeSel).First()
	if node.Length() == 0 {
		return ""
	}
	if datetime, ok := node.Attr("datetime"); ok && strings.TrimSpace(datetime) != "" {
		return strings.TrimSpace(datetime)
	}
	return pipeline.NormalizeSpace(node.Text())
}

// ResolveLink makes href absolute against base and drops fragments.
// Non-http(s) links resolve to "".
func ResolveLink(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}

	if baseURL, err := url.Parse(base); err == nil {
		ref = baseURL.ResolveReference(ref)
	}

	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}

	ref.Fragment = ""
	return ref.String()
}

func sameURL(a, b string) bool {
	return strings.TrimSuffix(a, "/") == strings.TrimSuffix(b, "/")
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func newConverter(pageURL string) *md.Converter {
	domain := ""
	if u, err := url.Parse(pageURL); err == nil {
		domain = u.Host
	}
	return md.NewConverter(domain, true, nil)
}

func toMarkdown(conv *md.Converter, fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	markdown, err := conv.ConvertString(fragment)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(markdown)
}

// BodyLength is the longest of the candidate's text, markdown and the
// text of its HTML, in runes.
func BodyLength(c pipeline.Candidate) int {
	length := max(
		pipeline.RuneLen(pipeline.SanitizeText(c.ContentText)),
		pipeline.RuneLen(pipeline.SanitizeText(c.ContentMarkdown)),
	)
	if c.ContentHTML != "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(c.ContentHTML)); err == nil {
			length = max(length, pipeline.RuneLen(pipeline.SanitizeText(doc.Text())))
		}
	}
	return length
}

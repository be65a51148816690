package feed

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/lysyi3m/feedforge/app/pipeline"
)

var commonFeedPaths = []string{"/feed", "/rss", "/rss.xml", "/atom.xml", "/feed.xml", "/index.xml"}

type Discoverer struct {
	fetcher *Fetcher
}

func NewDiscoverer(fetcher *Fetcher) *Discoverer {
	return &Discoverer{fetcher: fetcher}
}

// Discover resolves a native feed for pageURL by sniffing the page itself,
// then its declared alternate links, then common feed paths on the same
// origin. An unreachable page fails with INTAKE_SOURCE_UNAVAILABLE; every
// other miss is INTAKE_DISCOVERY_FAILED.
func (d *Discoverer) Discover(ctx context.Context, pageURL string) (*Discovery, error) {
	page, err := d.fetcher.Fetch(ctx, pageURL, "", "")
	if err != nil {
		if pipeline.IsNetworkFailure(err) {
			return nil, pipeline.Wrap(pipeline.CodeSourceUnavailable, err, "")
		}
		return nil, pipeline.Wrap(pipeline.CodeDiscoveryFailed, err, "")
	}

	base, err := url.Parse(page.FinalURL)
	if err != nil {
		return nil, pipeline.Wrap(pipeline.CodeDiscoveryFailed, err, "invalid final URL")
	}
	siteURL := base.Scheme + "://" + base.Host

	if looksLikeFeed(page.ContentType, page.Body) {
		return &Discovery{FeedURL: page.FinalURL, SiteURL: siteURL, Title: feedTitle(page.Body)}, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, pipeline.Wrap(pipeline.CodeDiscoveryFailed, err, "failed to parse page")
	}

	title := pipeline.NormalizeSpace(doc.Find("title").First().Text())

	if alternate := alternateLink(doc, base); alternate != "" {
		slog.Debug("Feed discovered via alternate link", "url", pageURL, "feed", alternate)
		return &Discovery{FeedURL: alternate, SiteURL: siteURL, Title: title}, nil
	}

	for _, path := range commonFeedPaths {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		probe := base.ResolveReference(&url.URL{Path: path}).String()
		result, err := d.fetcher.Fetch(ctx, probe, "", "")
		if err != nil {
			slog.Debug("Feed path probe failed", "url", probe, "error", err)
			continue
		}
		if gofeed.DetectFeedType(bytes.NewReader(result.Body)) != gofeed.FeedTypeUnknown {
			slog.Debug("Feed discovered via common path", "url", pageURL, "feed", result.FinalURL)
			return &Discovery{FeedURL: result.FinalURL, SiteURL: siteURL, Title: title}, nil
		}
	}

	return nil, pipeline.Errorf(pipeline.CodeDiscoveryFailed, "no RSS or Atom feed found for %s", pageURL)
}

func looksLikeFeed(contentType string, body []byte) bool {
	lowered := strings.ToLower(contentType)
	if strings.Contains(lowered, "html") {
		return false
	}
	if strings.Contains(lowered, "rss") || strings.Contains(lowered, "atom") || strings.Contains(lowered, "xml") || lowered == "" || strings.HasPrefix(lowered, "text/plain") {
		return gofeed.DetectFeedType(bytes.NewReader(body)) != gofeed.FeedTypeUnknown
	}
	return false
}

func alternateLink(doc *goquery.Document, base *url.URL) string {
	var found string
	doc.Find("link[rel='alternate']").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		linkType := strings.ToLower(el.AttrOr("type", ""))
		href := strings.TrimSpace(el.AttrOr("href", ""))
		if href == "" {
			return true
		}
		if !strings.Contains(linkType, "rss") && !strings.Contains(linkType, "atom") && !strings.Contains(linkType, "xml") {
			return true
		}
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		found = base.ResolveReference(ref).String()
		return false
	})
	return found
}

func feedTitle(body []byte) string {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(parsed.Title)
}

// ValidateURL accepts absolute http(s) URLs only.
func ValidateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid URL: %q", raw)
	}
	return u.String(), nil
}

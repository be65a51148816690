package render

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/lysyi3m/feedforge/app/pipeline"
)

const maxBodyBytes = 5 * 1024 * 1024

// Browser renders a page with script execution.
type Browser interface {
	Render(ctx context.Context, url string) (*pipeline.RenderedPage, error)
}

type Renderer struct {
	browser    Browser
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration
}

// NewRenderer builds a renderer. A nil browser skips straight to the static
// fetch.
func NewRenderer(browser Browser, httpClient *http.Client, userAgent string, timeout time.Duration) *Renderer {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Renderer{
		browser:    browser,
		httpClient: httpClient,
		userAgent:  userAgent,
		timeout:    timeout,
	}
}

// Render tries the headless browser first and falls back to a plain fetch.
// Both attempts share one timeout budget; the fallback only gets what the
// browser left over.
func (r *Renderer) Render(ctx context.Context, url string) (*pipeline.RenderedPage, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var warnings []string

	if r.browser != nil {
		page, err := r.renderWithBrowser(ctx, url)
		if err == nil {
			return page, nil
		}
		if ctx.Err() != nil {
			return nil, pipeline.Wrap(pipeline.CodeRenderFailed, ctx.Err(), "")
		}
		slog.Warn("Browser render failed, falling back to static fetch", "url", url, "error", err)
		warnings = append(warnings, "browser_failed: "+err.Error())
	}

	page, err := r.fetchStatic(ctx, url)
	if err != nil {
		return nil, pipeline.Wrap(pipeline.CodeRenderFailed, err, fmt.Sprintf("render failed for %s: %v", url, err))
	}

	page.Warnings = append(warnings, page.Warnings...)
	return page, nil
}

func (r *Renderer) renderWithBrowser(ctx context.Context, url string) (*pipeline.RenderedPage, error) {
	page, err := r.browser.Render(ctx, url)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(page.HTML) == "" {
		return nil, fmt.Errorf("browser returned an empty document")
	}
	return page, nil
}

func (r *Renderer) fetchStatic(ctx context.Context, url string) (*pipeline.RenderedPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	finalURL := url
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &pipeline.RenderedPage{
		FinalURL: finalURL,
		Title:    documentTitle(body),
		HTML:     string(body),
	}, nil
}

func documentTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return pipeline.NormalizeSpace(doc.Find("title").First().Text())
}

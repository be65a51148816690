package render

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/lysyi3m/feedforge/app/pipeline"
)

var _ Browser = (*ChromeBrowser)(nil)

// ChromeBrowser drives a headless Chrome through the DevTools protocol.
// Each render gets its own browser process, torn down when the call returns.
type ChromeBrowser struct {
	userAgent string
	settle    time.Duration
}

func NewChromeBrowser(userAgent string) *ChromeBrowser {
	return &ChromeBrowser{
		userAgent: userAgent,
		settle:    500 * time.Millisecond,
	}
}

func (b *ChromeBrowser) Render(ctx context.Context, url string) (*pipeline.RenderedPage, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(b.userAgent),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	resp, err := chromedp.RunResponse(taskCtx, chromedp.Navigate(url))
	if err != nil {
		return nil, fmt.Errorf("navigation failed: %w", err)
	}

	var html, title, location string
	err = chromedp.Run(taskCtx,
		chromedp.Sleep(b.settle),
		chromedp.Title(&title),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read rendered document: %w", err)
	}

	if resp != nil && resp.Status >= 400 && !pipeline.HasMeaningfulText(html) {
		return nil, fmt.Errorf("HTTP error: %d", resp.Status)
	}

	page := &pipeline.RenderedPage{
		FinalURL: location,
		Title:    pipeline.NormalizeSpace(title),
		HTML:     html,
	}
	if page.FinalURL == "" {
		page.FinalURL = url
	}
	if resp != nil && resp.Status >= 400 {
		page.Warnings = append(page.Warnings, fmt.Sprintf("browser_status: %d", resp.Status))
	}

	return page, nil
}

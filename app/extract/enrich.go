package extract

import (
	"context"
	"log/slog"

	"github.com/lysyi3m/feedforge/app/pipeline"
)

const enrichMargin = 24

// Enrich follows the links of thin candidates and replaces their body with
// the detail page when it is materially longer. Attempts are capped per
// call; the link cache lives only for this call.
func (e *Extractor) Enrich(ctx context.Context, pageURL string, candidates []pipeline.Candidate) ([]pipeline.Candidate, []string) {
	out := make([]pipeline.Candidate, len(candidates))
	copy(out, candidates)

	if e.settings.EnrichMaxLinks <= 0 || e.renderer == nil {
		return out, nil
	}

	var warnings []string
	cache := make(map[string]*pipeline.Candidate)
	attempts := 0

	for i := range out {
		if ctx.Err() != nil {
			break
		}

		c := &out[i]
		if !e.shouldEnrich(*c, pageURL) {
			continue
		}

		detail, cached := cache[c.Link]
		if !cached {
			if attempts >= e.settings.EnrichMaxLinks {
				break
			}
			attempts++

			var err error
			detail, err = e.fetchDetail(ctx, c.Link)
			cache[c.Link] = detail
			if err != nil {
				slog.Debug("Detail enrichment failed", "link", c.Link, "error", err)
				warnings = append(warnings, "detail_enrich_failed:"+c.Link)
				continue
			}
			if detail == nil {
				warnings = append(warnings, "detail_enrich_empty:"+c.Link)
				continue
			}
		}
		if detail == nil {
			continue
		}

		detailLen := BodyLength(*detail)
		if detailLen < e.settings.EnrichMinChars || detailLen <= BodyLength(*c)+enrichMargin {
			continue
		}

		c.ContentText = detail.ContentText
		c.ContentMarkdown = detail.ContentMarkdown
		c.ContentHTML = detail.ContentHTML
		if c.Title == "" {
			c.Title = detail.Title
		}
	}

	return out, warnings
}

func (e *Extractor) shouldEnrich(c pipeline.Candidate, pageURL string) bool {
	if c.Link == "" || sameURL(c.Link, pageURL) {
		return false
	}
	return BodyLength(c) < e.settings.EnrichMinChars
}

func (e *Extractor) fetchDetail(ctx context.Context, link string) (*pipeline.Candidate, error) {
	detailCtx := ctx
	if e.settings.EnrichTimeout > 0 {
		var cancel context.CancelFunc
		detailCtx, cancel = context.WithTimeout(ctx, e.settings.EnrichTimeout)
		defer cancel()
	}
	return e.ExtractBest(detailCtx, link)
}

package refresh

import (
	"context"
	"net/url"

	"github.com/lysyi3m/feedforge/app/database"
	"github.com/lysyi3m/feedforge/app/metrics"
	"github.com/lysyi3m/feedforge/app/novelty"
	"github.com/lysyi3m/feedforge/app/pipeline"
)

func (e *Engine) refreshWebMonitor(ctx context.Context, src *database.Source) (*Result, database.SourceUpdate, error) {
	result := &Result{SourceID: src.ID, SourceType: pipeline.SourceTypeWebMonitor}

	page, err := e.renderer.Render(ctx, src.URL)
	if err != nil {
		return nil, database.SourceUpdate{}, err
	}
	result.Warnings = append(result.Warnings, page.Warnings...)

	mode := src.ExtractionMode
	if mode == "" {
		mode = pipeline.ModePartialPreferred
	}

	extraction := e.extractor.Extract(page, mode, src.ExtractionRule)
	if len(extraction.Candidates) == 0 {
		return nil, database.SourceUpdate{}, pipeline.Errorf(pipeline.CodeExtractionEmpty, "no extractable candidates on %s", page.FinalURL)
	}
	result.Warnings = append(result.Warnings, extraction.Warnings...)

	candidates, enrichWarnings := e.extractor.Enrich(ctx, page.FinalURL, extraction.Candidates)
	result.Warnings = append(result.Warnings, enrichWarnings...)

	outcome, err := e.classifier.Classify(ctx, src.ID, candidates, novelty.NewBudget(e.settings.SemanticBudget))
	if err != nil {
		return nil, database.SourceUpdate{}, err
	}
	result.Warnings = append(result.Warnings, outcome.Warnings...)

	if _, err := e.repos.Snapshots.InsertSnapshots(ctx, outcome.Snapshots); err != nil {
		return nil, database.SourceUpdate{}, err
	}
	for _, snap := range outcome.Snapshots {
		metrics.SemanticDecisionsTotal.WithLabelValues(string(snap.Decision)).Inc()
	}

	result.ItemsAdded, err = e.repos.Items.InsertItems(ctx, outcome.Items)
	if err != nil {
		return nil, database.SourceUpdate{}, err
	}

	var update database.SourceUpdate
	if src.Title == "" {
		update.Title = page.Title
	}
	if src.SiteURL == "" {
		update.SiteURL = Origin(page.FinalURL)
	}
	return result, update, nil
}

// Origin returns scheme://host of raw, or "" when it does not parse.
func Origin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

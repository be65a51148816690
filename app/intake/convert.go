package intake

import (
	"context"
	"strings"

	"github.com/lysyi3m/feedforge/app/advisor"
	"github.com/lysyi3m/feedforge/app/database"
	"github.com/lysyi3m/feedforge/app/metrics"
	"github.com/lysyi3m/feedforge/app/novelty"
	"github.com/lysyi3m/feedforge/app/pipeline"
	"github.com/lysyi3m/feedforge/app/refresh"
)

const convertedDescription = "Converted from non-RSS page"

type conversion struct {
	page       *pipeline.RenderedPage
	mode       pipeline.ExtractionMode
	rule       *pipeline.ExtractionRule
	candidates []pipeline.Candidate
	warnings   []string
}

// convert turns a page without a feed into a web monitor source seeded
// with its current candidates.
func (r *Runner) convert(ctx context.Context, job *database.IntakeJob) (*database.JobResult, error) {
	if err := r.repos.Jobs.UpdateJobStage(ctx, job.ID, database.JobStageConverting, progressConverting); err != nil {
		return nil, err
	}

	conv, err := r.extractPage(ctx, job.URL)
	if err != nil {
		return nil, err
	}

	if err := r.repos.Jobs.UpdateJobStage(ctx, job.ID, database.JobStageValidating, progressValidating); err != nil {
		return nil, err
	}

	if conv.rule == nil {
		conv.rule = r.inferRule(ctx, conv)
	}
	if len(conv.candidates) == 0 {
		return nil, pipeline.Errorf(pipeline.CodeValidationFailed, "no extractable content on %s", conv.page.FinalURL)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := r.repos.Jobs.UpdateJobStage(ctx, job.ID, database.JobStageCreating, progressCreatingWeb); err != nil {
		return nil, err
	}

	// Once started, the source and its baseline are written together even
	// if the conversion deadline passes in between.
	return r.createWebMonitor(context.WithoutCancel(ctx), job, conv)
}

func (r *Runner) extractPage(ctx context.Context, pageURL string) (*conversion, error) {
	page, err := r.renderer.Render(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	extraction := r.extractor.Extract(page, pipeline.ModePartialPreferred, nil)

	conv := &conversion{
		page:     page,
		mode:     extraction.Mode,
		warnings: append(append([]string{}, page.Warnings...), extraction.Warnings...),
	}
	if conv.mode == "" {
		conv.mode = pipeline.ModePartialPreferred
	}

	if extraction.Mode == pipeline.ModeFullPage {
		conv.candidates = extraction.Candidates
		conv.rule = &pipeline.ExtractionRule{Strategy: pipeline.StrategyFullPage, Notes: "full-page-fallback"}
		return conv, nil
	}

	candidates, warnings := r.extractor.Enrich(ctx, page.FinalURL, extraction.Candidates)
	conv.candidates = candidates
	conv.warnings = append(conv.warnings, warnings...)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return conv, nil
}

func (r *Runner) inferRule(ctx context.Context, conv *conversion) *pipeline.ExtractionRule {
	if r.advisor != nil && len(conv.candidates) > 0 {
		rule := r.advisor.InferRule(ctx, advisor.RuleInput{
			URL:        conv.page.FinalURL,
			Title:      conv.page.Title,
			HTML:       conv.page.HTML,
			Candidates: conv.candidates,
		})
		if rule != nil {
			return rule
		}
	}
	return advisor.HeuristicRule()
}

func (r *Runner) createWebMonitor(ctx context.Context, job *database.IntakeJob, conv *conversion) (*database.JobResult, error) {
	src, created, err := r.repos.Sources.CreateSource(ctx, database.NewSource{
		URL:            job.URL,
		SiteURL:        refresh.Origin(conv.page.FinalURL),
		Title:          firstNonEmpty(job.TitleHint, conv.page.Title),
		Description:    convertedDescription,
		SourceType:     pipeline.SourceTypeWebMonitor,
		Status:         database.SourceStatusOK,
		ExtractionMode: conv.mode,
		ExtractionRule: conv.rule,
		Owner:          job.Owner,
	})
	if err != nil {
		return nil, err
	}

	result := &database.JobResult{SourceID: src.ID, SourceType: src.SourceType}
	if !created {
		result.Warning = WarningSourceExists
		return result, nil
	}

	baseline := novelty.Baseline(src.ID, conv.candidates)
	if _, err := r.repos.Snapshots.InsertSnapshots(ctx, baseline.Snapshots); err != nil {
		return nil, err
	}
	added, err := r.repos.Items.InsertItems(ctx, baseline.Items)
	if err != nil {
		return nil, err
	}
	metrics.ItemsAddedTotal.WithLabelValues(string(pipeline.SourceTypeWebMonitor)).Add(float64(added))

	if len(conv.warnings) > 0 {
		result.Warning = strings.Join(conv.warnings[:min(len(conv.warnings), maxResultWarnings)], "; ")
	}

	return result, nil
}

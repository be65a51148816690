package advisor

import (
	"context"
	"log/slog"

	"github.com/lysyi3m/feedforge/app/pipeline"
)

// Advisor wraps an optional Adapter. Adapter failures are logged and turned
// into nil results so callers can always fall back to local heuristics.
type Advisor struct {
	adapter Adapter
}

func New(adapter Adapter) *Advisor {
	return &Advisor{adapter: adapter}
}

func (a *Advisor) Enabled() bool {
	return a != nil && a.adapter != nil
}

func (a *Advisor) InferRule(ctx context.Context, input RuleInput) *pipeline.ExtractionRule {
	if !a.Enabled() {
		return nil
	}

	rule, err := a.adapter.InferRule(ctx, clipRuleInput(input))
	if err != nil {
		slog.Warn("Rule inference failed", "url", input.URL, "error", err)
		return nil
	}
	return rule
}

func (a *Advisor) SemanticDecide(ctx context.Context, candidate pipeline.Candidate, recent []string) *pipeline.SemanticVerdict {
	if !a.Enabled() {
		return nil
	}

	verdict, err := a.adapter.SemanticDecide(ctx, clipSemanticInput(SemanticInput{Candidate: candidate, RecentSummaries: recent}))
	if err != nil {
		slog.Warn("Semantic decision failed", "key", candidate.Key, "error", err)
		return nil
	}
	return verdict
}

func HeuristicRule() *pipeline.ExtractionRule {
	return &pipeline.ExtractionRule{
		Strategy: pipeline.StrategyReadability,
		Notes:    "heuristic-default",
	}
}

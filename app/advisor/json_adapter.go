package advisor

import (
	"context"
	"fmt"

	"github.com/lysyi3m/feedforge/app/pipeline"
)

// completer sends one prompt to a provider and returns the raw reply text.
type completer interface {
	complete(ctx context.Context, prompt string) (string, error)
}

var _ Adapter = (*jsonAdapter)(nil)

// jsonAdapter implements Adapter over any completer using the shared JSON
// prompt format.
type jsonAdapter struct {
	name string
	llm  completer
}

func (a *jsonAdapter) InferRule(ctx context.Context, input RuleInput) (*pipeline.ExtractionRule, error) {
	prompt, err := buildRulePrompt(input)
	if err != nil {
		return nil, err
	}

	reply, err := a.llm.complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.name, err)
	}

	return parseRule(reply)
}

func (a *jsonAdapter) SemanticDecide(ctx context.Context, input SemanticInput) (*pipeline.SemanticVerdict, error) {
	prompt, err := buildSemanticPrompt(input)
	if err != nil {
		return nil, err
	}

	reply, err := a.llm.complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.name, err)
	}

	return parseVerdict(reply)
}

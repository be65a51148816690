package advisor

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lysyi3m/feedforge/app/pipeline"
)

const (
	KindNone      = "none"
	KindAnthropic = "anthropic"
	KindOpenAI    = "openai"
	KindGemini    = "gemini"

	defaultTimeout = 15 * time.Second
)

type RuleInput struct {
	URL        string
	Title      string
	HTML       string
	Candidates []pipeline.Candidate
}

type SemanticInput struct {
	Candidate       pipeline.Candidate
	RecentSummaries []string
}

// Adapter is a language model backend able to propose an extraction rule
// and judge whether a candidate is new relative to recent summaries.
type Adapter interface {
	InferRule(ctx context.Context, input RuleInput) (*pipeline.ExtractionRule, error)
	SemanticDecide(ctx context.Context, input SemanticInput) (*pipeline.SemanticVerdict, error)
}

type Options struct {
	Kind       string
	APIKey     string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewAdapter builds the adapter named by opts.Kind. An empty kind or "none"
// yields a nil adapter and no error.
func NewAdapter(opts Options) (Adapter, error) {
	kind := strings.ToLower(strings.TrimSpace(opts.Kind))
	if kind == "" || kind == KindNone {
		return nil, nil
	}

	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("adapter %q requires an API key", kind)
	}

	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")

	switch kind {
	case KindAnthropic:
		return newAnthropicAdapter(client, opts.APIKey, opts.Model, base), nil
	case KindOpenAI:
		return newOpenAIAdapter(client, opts.APIKey, opts.Model, base), nil
	case KindGemini:
		return newGeminiAdapter(client, opts.APIKey, opts.Model, base), nil
	default:
		return nil, fmt.Errorf("unknown adapter: %s", opts.Kind)
	}
}

package pipeline

type SourceType string

const (
	SourceTypeRSS        SourceType = "rss"
	SourceTypeWebMonitor SourceType = "web_monitor"
)

type ExtractionMode string

const (
	ModePartialPreferred ExtractionMode = "partial_preferred"
	ModeFullPage         ExtractionMode = "full_page"
)

type Strategy string

const (
	StrategyReadability Strategy = "readability"
	StrategySelector    Strategy = "selector"
	StrategyFullPage    Strategy = "full_page"
)

func (s Strategy) Valid() bool {
	switch s {
	case StrategyReadability, StrategySelector, StrategyFullPage:
		return true
	}
	return false
}

type Decision string

const (
	DecisionNew         Decision = "new"
	DecisionMinorUpdate Decision = "minor_update"
	DecisionNoise       Decision = "noise"
)

func (d Decision) Valid() bool {
	switch d {
	case DecisionNew, DecisionMinorUpdate, DecisionNoise:
		return true
	}
	return false
}

// ExtractionRule is the structural recipe attached to a web monitor source.
// Empty selectors fall back to the extractor defaults.
type ExtractionRule struct {
	Strategy          Strategy `json:"strategy"`
	ContainerSelector string   `json:"containerSelector,omitempty"`
	ItemSelector      string   `json:"itemSelector,omitempty"`
	TitleSelector     string   `json:"titleSelector,omitempty"`
	LinkSelector      string   `json:"linkSelector,omitempty"`
	TimeSelector      string   `json:"timeSelector,omitempty"`
	Notes             string   `json:"notes,omitempty"`
}

// Candidate is one content unit pulled out of a single render pass.
type Candidate struct {
	Key             string
	Title           string
	Link            string
	PublishedHint   string
	ContentText     string
	ContentMarkdown string
	ContentHTML     string
}

type RenderedPage struct {
	FinalURL string
	Title    string
	HTML     string
	Warnings []string
}

type SemanticVerdict struct {
	Decision Decision
	Summary  string
}

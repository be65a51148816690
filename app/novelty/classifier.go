package novelty

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lysyi3m/feedforge/app/database"
	"github.com/lysyi3m/feedforge/app/pipeline"
)

const (
	NoiseThreshold       = 0.92
	MinorUpdateThreshold = 0.78

	recentSummaryLimit = 3
	verdictSummaryMax  = 1200
)

// SemanticDecider is the optional model-backed tie breaker, satisfied by
// advisor.Advisor.
type SemanticDecider interface {
	Enabled() bool
	SemanticDecide(ctx context.Context, candidate pipeline.Candidate, recent []string) *pipeline.SemanticVerdict
}

// Ledger is the read side of the snapshot store the classifier consults.
type Ledger interface {
	SnapshotExists(ctx context.Context, sourceID, candidateKey, contentHash string) (bool, error)
	GetRecentSummaries(ctx context.Context, sourceID, candidateKey, excludeHash string, limit int) ([]string, error)
}

// Budget caps adapter calls within one refresh. It is not safe for
// concurrent use.
type Budget struct {
	Used int
	Max  int
}

func NewBudget(max int) *Budget {
	return &Budget{Max: max}
}

func (b *Budget) take() bool {
	if b == nil || b.Used >= b.Max {
		return false
	}
	b.Used++
	return true
}

type Verdict struct {
	Decision       pipeline.Decision
	Summary        string
	BudgetExceeded bool
}

// Outcome holds the rows one classification pass wants written. Snapshots
// must be persisted before Items.
type Outcome struct {
	Snapshots []database.Snapshot
	Items     []database.Item
	Warnings  []string
}

type Classifier struct {
	decider SemanticDecider
	ledger  Ledger
}

func NewClassifier(decider SemanticDecider, ledger Ledger) *Classifier {
	return &Classifier{
		decider: decider,
		ledger:  ledger,
	}
}

// Decide compares the candidate summary against recent summaries of the
// same key. Close matches are settled lexically; the rest go to the
// adapter while the budget lasts.
func (c *Classifier) Decide(ctx context.Context, candidate pipeline.Candidate, recent []string, budget *Budget) Verdict {
	summary := Summarize(candidate)

	var baseline []string
	for _, s := range recent {
		if strings.TrimSpace(s) == "" {
			continue
		}
		baseline = append(baseline, s)
		if len(baseline) == recentSummaryLimit {
			break
		}
	}
	if len(baseline) == 0 {
		return Verdict{Decision: pipeline.DecisionNew, Summary: summary}
	}

	top := 0.0
	for _, s := range baseline {
		top = max(top, LexicalSimilarity(summary, s))
	}

	switch {
	case top >= NoiseThreshold:
		return Verdict{Decision: pipeline.DecisionNoise, Summary: summary}
	case top >= MinorUpdateThreshold:
		return Verdict{Decision: pipeline.DecisionMinorUpdate, Summary: summary}
	}

	if c.decider == nil || !c.decider.Enabled() {
		return Verdict{Decision: pipeline.DecisionNew, Summary: summary}
	}

	if !budget.take() {
		return Verdict{Decision: pipeline.DecisionNoise, Summary: summary, BudgetExceeded: true}
	}

	verdict := c.decider.SemanticDecide(ctx, candidate, baseline)
	if verdict == nil {
		return Verdict{Decision: pipeline.DecisionNew, Summary: summary}
	}

	decision := verdict.Decision
	if !decision.Valid() {
		decision = pipeline.DecisionNew
	}
	next := strings.TrimSpace(verdict.Summary)
	if next == "" {
		next = summary
	}

	return Verdict{Decision: decision, Summary: pipeline.Clip(next, verdictSummaryMax)}
}

// Classify decides every candidate not yet in the ledger. Variants already
// recorded, and repeats within the batch, produce no rows at all.
func (c *Classifier) Classify(ctx context.Context, sourceID string, candidates []pipeline.Candidate, budget *Budget) (*Outcome, error) {
	outcome := &Outcome{}
	seen := make(map[string]bool)
	budgetWarned := false

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		hash := ContentHash(candidate)
		identity := candidate.Key + ":" + hash
		if seen[identity] {
			continue
		}
		seen[identity] = true

		exists, err := c.ledger.SnapshotExists(ctx, sourceID, candidate.Key, hash)
		if err != nil {
			return nil, fmt.Errorf("failed to check snapshot ledger: %w", err)
		}
		if exists {
			continue
		}

		recent, err := c.ledger.GetRecentSummaries(ctx, sourceID, candidate.Key, hash, recentSummaryLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to load recent summaries: %w", err)
		}

		verdict := c.Decide(ctx, candidate, recent, budget)
		if verdict.BudgetExceeded && !budgetWarned {
			outcome.Warnings = append(outcome.Warnings, pipeline.WarningLLMBudgetExceeded)
			budgetWarned = true
		}

		slog.Debug("Candidate classified",
			"source", sourceID,
			"key", candidate.Key,
			"decision", verdict.Decision)

		outcome.Snapshots = append(outcome.Snapshots, database.Snapshot{
			SourceID:        sourceID,
			CandidateKey:    candidate.Key,
			ContentHash:     hash,
			SemanticSummary: verdict.Summary,
			Decision:        verdict.Decision,
		})

		if verdict.Decision == pipeline.DecisionNew {
			outcome.Items = append(outcome.Items, NewItem(sourceID, candidate, hash))
		}
	}

	return outcome, nil
}

// NewItem builds the feed item published for a new candidate variant.
func NewItem(sourceID string, candidate pipeline.Candidate, hash string) database.Item {
	text := candidate.ContentMarkdown
	if text == "" {
		text = candidate.ContentText
	}

	return database.Item{
		SourceID:    sourceID,
		GUID:        fmt.Sprintf("web:%s:%s", candidate.Key, hash[:16]),
		Title:       candidate.Title,
		Link:        candidate.Link,
		ContentHTML: candidate.ContentHTML,
		ContentText: text,
		PublishedAt: ParsePublished(candidate.PublishedHint),
		FetchedAt:   time.Now().UTC(),
	}
}

var publishedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
}

// ParsePublished reads a page supplied date hint, returning nil when none
// of the common layouts match.
func ParsePublished(hint string) *time.Time {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return nil
	}
	for _, layout := range publishedLayouts {
		if t, err := time.Parse(layout, hint); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// Baseline records the first observation of a page: every distinct
// candidate is new. The stored summary is the same local summary Classify
// compares against later, so an unchanged page reads as a repeat.
func Baseline(sourceID string, candidates []pipeline.Candidate) *Outcome {
	outcome := &Outcome{}
	seen := make(map[string]bool)

	for _, candidate := range candidates {
		hash := ContentHash(candidate)
		identity := candidate.Key + ":" + hash
		if seen[identity] {
			continue
		}
		seen[identity] = true

		outcome.Snapshots = append(outcome.Snapshots, database.Snapshot{
			SourceID:        sourceID,
			CandidateKey:    candidate.Key,
			ContentHash:     hash,
			SemanticSummary: Summarize(candidate),
			Decision:        pipeline.DecisionNew,
		})
		outcome.Items = append(outcome.Items, NewItem(sourceID, candidate, hash))
	}

	return outcome
}

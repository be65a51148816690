package refresh

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/lysyi3m/feedforge/app/pipeline"
)

const (
	DefaultBatchSize     = 100
	DefaultSourceTimeout = 5 * time.Minute
)

type BatchOptions struct {
	BatchSize     int
	MaxSources    int // 0 means no limit
	// SourceTimeout bounds each source's refresh on its own.
	SourceTimeout time.Duration
}

// Outcome is the per-source line of a batch refresh.
type Outcome struct {
	SourceID   string              `json:"sourceId"`
	SourceType pipeline.SourceType `json:"sourceType"`
	ItemsAdded int                 `json:"itemsAdded"`
	Warning    string              `json:"warning,omitempty"`
	Error      string              `json:"error,omitempty"`
	Code       pipeline.Code       `json:"code,omitempty"`
}

// RefreshAll walks every source in creation order and refreshes each one
// independently. A failing source is recorded in its outcome and never
// stops the batch. Each source gets its own deadline, so a slow source
// cannot eat into the budget of the ones after it.
func (e *Engine) RefreshAll(ctx context.Context, opts BatchOptions) ([]Outcome, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	sourceTimeout := opts.SourceTimeout
	if sourceTimeout <= 0 {
		sourceTimeout = DefaultSourceTimeout
	}

	var outcomes []Outcome
	offset := 0

	for {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}

		limit := batchSize
		if opts.MaxSources > 0 {
			remaining := opts.MaxSources - len(outcomes)
			if remaining <= 0 {
				break
			}
			limit = min(limit, remaining)
		}

		sources, err := e.repos.Sources.ListSources(ctx, offset, limit)
		if err != nil {
			return outcomes, err
		}

		for _, src := range sources {
			if err := ctx.Err(); err != nil {
				return outcomes, err
			}

			outcome := Outcome{SourceID: src.ID, SourceType: src.SourceType}
			result, err := e.refreshWithin(ctx, src.ID, sourceTimeout)
			if err != nil {
				outcome.Error = err.Error()
				outcome.Code = pipeline.CodeOf(err)
			} else {
				outcome.ItemsAdded = result.ItemsAdded
				outcome.Warning = JoinWarnings(result.Warnings, 2)
			}
			outcomes = append(outcomes, outcome)
		}

		if len(sources) < limit {
			break
		}
		offset += len(sources)
	}

	slog.Info("Batch refresh completed", "sources", len(outcomes))
	return outcomes, nil
}

func (e *Engine) refreshWithin(ctx context.Context, id string, timeout time.Duration) (*Result, error) {
	sourceCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return e.Refresh(sourceCtx, id)
}

// JoinWarnings joins the first n warnings with "; ".
func JoinWarnings(warnings []string, n int) string {
	if len(warnings) > n {
		warnings = warnings[:n]
	}
	return strings.Join(warnings, "; ")
}

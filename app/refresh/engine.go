package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/feedforge/app/database"
	"github.com/lysyi3m/feedforge/app/extract"
	"github.com/lysyi3m/feedforge/app/feed"
	"github.com/lysyi3m/feedforge/app/metrics"
	"github.com/lysyi3m/feedforge/app/novelty"
	"github.com/lysyi3m/feedforge/app/pipeline"
)

type Settings struct {
	RSSMinChars       int
	RSSEnrichMaxItems int
	DetailTimeout     time.Duration
	SemanticBudget    int
}

type Repositories struct {
	Sources   database.SourceRepository
	Items     database.ItemRepository
	Snapshots database.SnapshotRepository
	Runs      database.FetchRunRepository
}

type Result struct {
	SourceID    string
	SourceType  pipeline.SourceType
	ItemsAdded  int
	NotModified bool
	Warnings    []string
}

type Engine struct {
	repos      Repositories
	fetcher    *feed.Fetcher
	parser     *feed.Parser
	renderer   extract.PageRenderer
	extractor  *extract.Extractor
	classifier *novelty.Classifier
	locks      *SourceLocks
	settings   Settings
}

func NewEngine(repos Repositories, fetcher *feed.Fetcher, parser *feed.Parser, renderer extract.PageRenderer,
	extractor *extract.Extractor, classifier *novelty.Classifier, locks *SourceLocks, settings Settings) *Engine {
	return &Engine{
		repos:      repos,
		fetcher:    fetcher,
		parser:     parser,
		renderer:   renderer,
		extractor:  extractor,
		classifier: classifier,
		locks:      locks,
		settings:   settings,
	}
}

// Refresh fetches one source and stores what is new. Every run that gets
// past the lock leaves a fetch_runs record and a terminal source status,
// even when ctx is cancelled midway.
func (e *Engine) Refresh(ctx context.Context, sourceID string) (*Result, error) {
	src, err := e.repos.Sources.GetSource(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load source: %w", err)
	}
	if src == nil {
		return nil, pipeline.Errorf(pipeline.CodeSourceNotFound, "source %s not found", sourceID)
	}

	if !e.locks.TryLock(src.ID) {
		return nil, pipeline.Errorf(pipeline.CodeRefreshInProgress, "source %s is already refreshing", src.ID)
	}
	defer e.locks.Unlock(src.ID)

	start := time.Now()

	if err := e.repos.Sources.MarkFetching(ctx, src.ID); err != nil {
		return nil, err
	}
	runID, err := e.repos.Runs.StartRun(ctx, src.ID)
	if err != nil {
		e.fail(ctx, src, "", err)
		return nil, err
	}

	var (
		result *Result
		update database.SourceUpdate
	)
	switch src.SourceType {
	case pipeline.SourceTypeWebMonitor:
		result, update, err = e.refreshWebMonitor(ctx, src)
	default:
		result, update, err = e.refreshRSS(ctx, src)
	}

	if err != nil {
		return nil, e.fail(ctx, src, runID, err)
	}

	if err := e.repos.Sources.MarkSuccess(ctx, src.ID, update); err != nil {
		return nil, e.fail(ctx, src, runID, err)
	}
	if err := e.repos.Runs.FinishRun(ctx, runID, result.ItemsAdded); err != nil {
		slog.Warn("Failed to finish fetch run", "source", src.ID, "run", runID, "error", err)
	}

	metrics.RefreshTotal.WithLabelValues(string(src.SourceType), metrics.Result("")).Inc()
	metrics.ItemsAddedTotal.WithLabelValues(string(src.SourceType)).Add(float64(result.ItemsAdded))

	slog.Info("Source refreshed",
		"source", src.ID,
		"type", src.SourceType,
		"duration", time.Since(start),
		"items_added", result.ItemsAdded,
		"not_modified", result.NotModified,
		"warnings", len(result.Warnings))

	return result, nil
}

// fail records err on the source and the run, and returns it with a stable
// code attached.
func (e *Engine) fail(ctx context.Context, src *database.Source, runID string, err error) error {
	code := pipeline.CodeOf(err)
	if code == "" {
		if pipeline.IsNetworkFailure(err) {
			code = pipeline.CodeUpstreamNetwork
		} else {
			code = pipeline.CodeRefreshFailed
		}
		err = pipeline.Wrap(code, err, "")
	}

	auditCtx := context.WithoutCancel(ctx)
	message := err.Error()

	if markErr := e.repos.Sources.MarkError(auditCtx, src.ID, message); markErr != nil {
		slog.Error("Failed to record source error", "source", src.ID, "error", markErr)
	}
	if runID != "" {
		if runErr := e.repos.Runs.FailRun(auditCtx, runID, string(code), message); runErr != nil {
			slog.Error("Failed to record fetch run error", "source", src.ID, "run", runID, "error", runErr)
		}
	}

	metrics.RefreshTotal.WithLabelValues(string(src.SourceType), metrics.Result(string(code))).Inc()
	slog.Warn("Source refresh failed", "source", src.ID, "type", src.SourceType, "code", code, "error", err)

	return err
}

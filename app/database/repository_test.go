package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/feedforge/app/pipeline"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewConnection(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, dirty, err := RunMigrations(db)
	require.NoError(t, err)
	require.False(t, dirty)

	return db
}

func createSource(t *testing.T, repo *SourceRepo, url string) *Source {
	t.Helper()

	src, created, err := repo.CreateSource(context.Background(), NewSource{
		URL:        url,
		Title:      "Example",
		SourceType: pipeline.SourceTypeRSS,
	})
	require.NoError(t, err)
	require.True(t, created)
	return src
}

func TestSourceRepository_CreateIsIdempotentOnURL(t *testing.T) {
	ctx := context.Background()
	repo := NewSourceRepository(newTestDB(t))

	rule := &pipeline.ExtractionRule{Strategy: pipeline.StrategySelector, ItemSelector: ".post", Notes: "test"}
	first, created, err := repo.CreateSource(ctx, NewSource{
		URL:            "https://example.com/news",
		SourceType:     pipeline.SourceTypeWebMonitor,
		Status:         SourceStatusOK,
		ExtractionMode: pipeline.ModePartialPreferred,
		ExtractionRule: rule,
	})
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, SourceStatusOK, first.Status)
	assert.NotNil(t, first.LastSuccessAt)
	require.NotNil(t, first.ExtractionRule)
	assert.Equal(t, *rule, *first.ExtractionRule)

	second, created, err := repo.CreateSource(ctx, NewSource{
		URL:        "https://example.com/news",
		SourceType: pipeline.SourceTypeRSS,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, pipeline.SourceTypeWebMonitor, second.SourceType)

	count, err := repo.GetSourceCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSourceRepository_StatusTransitions(t *testing.T) {
	ctx := context.Background()
	repo := NewSourceRepository(newTestDB(t))
	src := createSource(t, repo, "https://example.com/feed.xml")
	assert.Equal(t, SourceStatusIdle, src.Status)

	require.NoError(t, repo.MarkFetching(ctx, src.ID))
	got, err := repo.GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, SourceStatusFetching, got.Status)

	require.NoError(t, repo.MarkError(ctx, src.ID, "HTTP 500"))
	got, err = repo.GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, SourceStatusError, got.Status)
	assert.Equal(t, "HTTP 500", got.LastError)
	assert.NotNil(t, got.LastErrorAt)

	require.NoError(t, repo.MarkSuccess(ctx, src.ID, SourceUpdate{ETag: `"v1"`, Description: "Updated"}))
	got, err = repo.GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, SourceStatusOK, got.Status)
	assert.Equal(t, "", got.LastError)
	assert.Equal(t, `"v1"`, got.ETag)
	assert.Equal(t, "Updated", got.Description)
	assert.Equal(t, "Example", got.Title, "empty update fields keep stored values")
}

func TestSourceRepository_ListSourcesInCreationOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewSourceRepository(newTestDB(t))

	urls := []string{"https://a.example/feed", "https://b.example/feed", "https://c.example/feed"}
	for _, u := range urls {
		createSource(t, repo, u)
	}

	page, err := repo.ListSources(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, urls[0], page[0].URL)
	assert.Equal(t, urls[1], page[1].URL)

	page, err = repo.ListSources(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, urls[2], page[0].URL)

	missing, err := repo.GetSource(ctx, "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestItemRepository_InsertIgnoresDuplicates(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	src := createSource(t, NewSourceRepository(db), "https://example.com/feed.xml")
	repo := NewItemRepository(db)

	published := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	items := []Item{
		{SourceID: src.ID, GUID: "a", Title: "A", PublishedAt: &published},
		{SourceID: src.ID, GUID: "b", Title: "B"},
	}

	inserted, err := repo.InsertItems(ctx, items)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	inserted, err = repo.InsertItems(ctx, []Item{{SourceID: src.ID, GUID: "a", Title: "A again"}})
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)

	count, err := repo.GetItemCount(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	existing, err := repo.GetExistingGUIDs(ctx, src.ID, []string{"a", "c"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a": true}, existing)

	stored, err := repo.GetItemsByGUIDs(ctx, src.ID, []string{"a"})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "A", stored[0].Title)
	require.NotNil(t, stored[0].PublishedAt)
	assert.True(t, published.Equal(*stored[0].PublishedAt))
}

func TestItemRepository_UpdateItemContent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	src := createSource(t, NewSourceRepository(db), "https://example.com/feed.xml")
	repo := NewItemRepository(db)

	_, err := repo.InsertItems(ctx, []Item{{SourceID: src.ID, GUID: "a", ContentText: "thin"}})
	require.NoError(t, err)

	require.NoError(t, repo.UpdateItemContent(ctx, src.ID, "a", "<p>full</p>", "full body"))

	items, err := repo.GetRecentItems(ctx, src.ID, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "full body", items[0].ContentText)
	assert.Equal(t, "<p>full</p>", items[0].ContentHTML)
}

func TestSnapshotRepository_LedgerSemantics(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	src := createSource(t, NewSourceRepository(db), "https://example.com/page")
	repo := NewSnapshotRepository(db)

	snaps := []Snapshot{
		{SourceID: src.ID, CandidateKey: "k1", ContentHash: "h1", SemanticSummary: "first", Decision: pipeline.DecisionNew},
		{SourceID: src.ID, CandidateKey: "k1", ContentHash: "h2", SemanticSummary: "second", Decision: pipeline.DecisionNoise},
		{SourceID: src.ID, CandidateKey: "k1", ContentHash: "h3", SemanticSummary: "third", Decision: pipeline.DecisionMinorUpdate},
		{SourceID: src.ID, CandidateKey: "k2", ContentHash: "h1", SemanticSummary: "other", Decision: pipeline.DecisionNew},
	}
	inserted, err := repo.InsertSnapshots(ctx, snaps)
	require.NoError(t, err)
	assert.Equal(t, 4, inserted)

	inserted, err = repo.InsertSnapshots(ctx, snaps[:1])
	require.NoError(t, err)
	assert.Equal(t, 0, inserted, "same (source, key, hash) is ignored")

	exists, err := repo.SnapshotExists(ctx, src.ID, "k1", "h2")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.SnapshotExists(ctx, src.ID, "k2", "h2")
	require.NoError(t, err)
	assert.False(t, exists)

	summaries, err := repo.GetRecentSummaries(ctx, src.ID, "k1", "h3", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"second", "first"}, summaries)

	all, err := repo.GetSnapshots(ctx, src.ID, 10)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestJobRepository_LifecycleIsWriteOnceThenFrozen(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(newTestDB(t))

	job, err := repo.CreateJob(ctx, "owner-1", "https://example.com", "Example")
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, job.Status)

	claimed, err := repo.ClaimJob(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repo.ClaimJob(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, claimed, "second claim must not succeed")

	require.NoError(t, repo.UpdateJobStage(ctx, job.ID, JobStageConverting, 35))

	require.NoError(t, repo.CompleteJob(ctx, job.ID, JobResult{
		SourceID:   "src-1",
		SourceType: pipeline.SourceTypeWebMonitor,
		Warning:    "note",
	}))

	assert.ErrorIs(t, repo.UpdateJobStage(ctx, job.ID, JobStageCreating, 75), ErrJobNotActive)
	assert.ErrorIs(t, repo.FailJob(ctx, job.ID, "X", "late failure"), ErrJobNotActive)

	stored, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusDone, stored.Status)
	assert.Equal(t, JobStageDone, stored.Stage)
	assert.Equal(t, 100, stored.Progress)
	assert.Equal(t, "src-1", stored.ResultSourceID)
	assert.Equal(t, pipeline.SourceTypeWebMonitor, stored.ResultSourceType)
	assert.Empty(t, stored.ErrorCode)
	assert.True(t, stored.Terminal())

	missing, err := repo.GetJob(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFetchRunRepository_RecordsOutcome(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	src := createSource(t, NewSourceRepository(db), "https://example.com/feed.xml")
	repo := NewFetchRunRepository(db)

	okRun, err := repo.StartRun(ctx, src.ID)
	require.NoError(t, err)
	require.NoError(t, repo.FinishRun(ctx, okRun, 4))

	errRun, err := repo.StartRun(ctx, src.ID)
	require.NoError(t, err)
	require.NoError(t, repo.FailRun(ctx, errRun, "REFRESH_FAILED", "HTTP 500"))

	runs, err := repo.GetRuns(ctx, src.ID, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	byID := map[string]FetchRun{}
	for _, run := range runs {
		byID[run.ID] = run
	}
	assert.Equal(t, FetchRunOK, byID[okRun].Status)
	assert.Equal(t, 4, byID[okRun].ItemsAdded)
	assert.NotNil(t, byID[okRun].FinishedAt)
	assert.Equal(t, FetchRunError, byID[errRun].Status)
	assert.Equal(t, "HTTP 500", byID[errRun].ErrorMessage)
}

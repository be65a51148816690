package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/feedforge/app/database"
	"github.com/lysyi3m/feedforge/app/feed"
	"github.com/lysyi3m/feedforge/app/intake"
	"github.com/lysyi3m/feedforge/app/pipeline"
	"github.com/lysyi3m/feedforge/app/refresh"
)

const testKey = "secret"

type MockIntake struct {
	owner string
	url   string
	title string
	jobs  map[string]*database.IntakeJob
}

func (m *MockIntake) Submit(ctx context.Context, owner, rawURL, titleHint string) (*intake.Submission, error) {
	m.owner, m.url, m.title = owner, rawURL, titleHint
	return &intake.Submission{JobID: "job-1", Status: database.JobStatusPending}, nil
}

func (m *MockIntake) Get(ctx context.Context, owner, jobID string) (*database.IntakeJob, error) {
	job, ok := m.jobs[jobID]
	if !ok || job.Owner != owner {
		return nil, pipeline.Errorf(pipeline.CodeJobNotFound, "intake job %s not found", jobID)
	}
	return job, nil
}

type MockRefresher struct {
	err      error
	lastOpts refresh.BatchOptions
}

func (m *MockRefresher) Refresh(ctx context.Context, sourceID string) (*refresh.Result, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &refresh.Result{SourceID: sourceID, SourceType: pipeline.SourceTypeRSS, ItemsAdded: 2}, nil
}

func (m *MockRefresher) RefreshAll(ctx context.Context, opts refresh.BatchOptions) ([]refresh.Outcome, error) {
	m.lastOpts = opts
	return []refresh.Outcome{
		{SourceID: "a", SourceType: pipeline.SourceTypeRSS, ItemsAdded: 1},
		{SourceID: "b", SourceType: pipeline.SourceTypeWebMonitor, Error: "HTTP error: 500", Code: pipeline.CodeRefreshFailed},
	}, nil
}

type testServer struct {
	router    http.Handler
	sources   *database.SourceRepo
	items     *database.ItemRepo
	intake    *MockIntake
	refresher *MockRefresher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, _, err = database.RunMigrations(db)
	require.NoError(t, err)

	ts := &testServer{
		sources:   database.NewSourceRepository(db),
		items:     database.NewItemRepository(db),
		intake:    &MockIntake{jobs: map[string]*database.IntakeJob{}},
		refresher: &MockRefresher{},
	}

	handler := NewHandler(Dependencies{
		Sources:   ts.sources,
		Items:     ts.items,
		Runs:      database.NewFetchRunRepository(db),
		Generator: feed.NewGenerator("http://localhost:8080", "test"),
		Intake:    ts.intake,
		Refresher: ts.refresher,
		Batch:     refresh.BatchOptions{BatchSize: 100},
		Version:   "test",
	})
	ts.router = NewServer(handler, testKey)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func authed(extra ...string) map[string]string {
	headers := map[string]string{"X-API-Key": testKey}
	for i := 0; i+1 < len(extra); i += 2 {
		headers[extra[i]] = extra[i+1]
	}
	return headers
}

func TestAPIRequiresKey(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/sources", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodGet, "/api/sources", "", map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodGet, "/api/sources", "", map[string]string{"Authorization": "Bearer " + testKey})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSubmitIntake(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/intake", `{"url":"https://example.com/news","title":"News"}`, authed(OwnerHeader, "alice"))
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp submissionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "job-1", resp.JobID)
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, "alice", ts.intake.owner)
	assert.Equal(t, "News", ts.intake.title)
}

func TestSubmitIntakeRejectsBadInput(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/intake", `{"title":"x"}`, authed())
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/api/intake", `{"url":"javascript:alert(1)"}`, authed())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetIntakeProjection(t *testing.T) {
	ts := newTestServer(t)
	ts.intake.jobs["done"] = &database.IntakeJob{
		ID: "done", Owner: DefaultOwner, URL: "https://example.com",
		Status: database.JobStatusDone, Stage: database.JobStageDone, Progress: 100,
		ResultSourceID: "src-1", ResultSourceType: pipeline.SourceTypeRSS, ResultWarning: intake.WarningSourceExists,
	}
	ts.intake.jobs["failed"] = &database.IntakeJob{
		ID: "failed", Owner: DefaultOwner, URL: "https://example.com",
		Status: database.JobStatusFailed, Stage: database.JobStageFailed, Progress: 100,
		ErrorCode: string(pipeline.CodeValidationFailed), ErrorMessage: "no extractable content",
	}

	w := ts.do(t, http.MethodGet, "/api/intake/done", "", authed())
	require.Equal(t, http.StatusOK, w.Code)
	var done jobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &done))
	require.NotNil(t, done.Result)
	assert.Nil(t, done.Error)
	assert.Equal(t, "src-1", done.Result.SourceID)
	assert.Equal(t, intake.WarningSourceExists, done.Result.Warning)

	w = ts.do(t, http.MethodGet, "/api/intake/failed", "", authed())
	require.Equal(t, http.StatusOK, w.Code)
	var failed jobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &failed))
	require.NotNil(t, failed.Error)
	assert.Equal(t, string(pipeline.CodeValidationFailed), failed.Error.Code)

	w = ts.do(t, http.MethodGet, "/api/intake/done", "", authed(OwnerHeader, "mallory"))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), string(pipeline.CodeJobNotFound))
}

func TestListAndGetSources(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	src, _, err := ts.sources.CreateSource(ctx, database.NewSource{
		URL: "https://example.com/feed.xml", Title: "Example", SourceType: pipeline.SourceTypeRSS,
	})
	require.NoError(t, err)

	w := ts.do(t, http.MethodGet, "/api/sources", "", authed())
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Sources []sourceResponse `json:"sources"`
		Total   int              `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)
	require.Len(t, list.Sources, 1)
	assert.Equal(t, "Example", list.Sources[0].Title)

	w = ts.do(t, http.MethodGet, "/api/sources/"+src.ID, "", authed())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"itemCount":0`)

	w = ts.do(t, http.MethodGet, "/api/sources/missing", "", authed())
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRefreshSourceMapsErrors(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/sources/src-1/refresh", "", authed())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"itemsAdded":2`)

	ts.refresher.err = pipeline.Errorf(pipeline.CodeRefreshInProgress, "source src-1 is already refreshing")
	w = ts.do(t, http.MethodPost, "/api/sources/src-1/refresh", "", authed())
	assert.Equal(t, http.StatusConflict, w.Code)

	ts.refresher.err = pipeline.Errorf(pipeline.CodeSourceNotFound, "source src-1 not found")
	w = ts.do(t, http.MethodPost, "/api/sources/src-1/refresh", "", authed())
	assert.Equal(t, http.StatusNotFound, w.Code)

	ts.refresher.err = pipeline.Errorf(pipeline.CodeRefreshFailed, "HTTP error: 500")
	w = ts.do(t, http.MethodPost, "/api/sources/src-1/refresh", "", authed())
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestRefreshAllPassesLimit(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/refresh", `{"limit":5}`, authed())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, ts.refresher.lastOpts.MaxSources)
	assert.Equal(t, 100, ts.refresher.lastOpts.BatchSize)
	assert.Contains(t, w.Body.String(), `"failed":1`)

	w = ts.do(t, http.MethodPost, "/api/refresh", "", authed())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, ts.refresher.lastOpts.MaxSources)

	w = ts.do(t, http.MethodPost, "/api/refresh", `{"limit":-1}`, authed())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetFeedRendersStoredItems(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	src, _, err := ts.sources.CreateSource(ctx, database.NewSource{
		URL: "https://example.com/feed.xml", Title: "Example", SourceType: pipeline.SourceTypeRSS,
	})
	require.NoError(t, err)

	published := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	_, err = ts.items.InsertItems(ctx, []database.Item{{
		SourceID: src.ID, GUID: "g1", Title: "First post", Link: "https://example.com/1",
		ContentText: "Body", PublishedAt: &published, FetchedAt: published,
	}})
	require.NoError(t, err)

	w := ts.do(t, http.MethodGet, "/feeds/"+src.ID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-Feed-Items"))
	assert.Contains(t, w.Body.String(), "<rss")
	assert.Contains(t, w.Body.String(), "First post")

	w = ts.do(t, http.MethodGet, "/feeds/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"sources":0`)

	w = ts.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

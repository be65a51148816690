package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/feedforge/app/database"
	"github.com/lysyi3m/feedforge/app/feed"
	"github.com/lysyi3m/feedforge/app/pipeline"
	"github.com/lysyi3m/feedforge/app/refresh"
)

type Dependencies struct {
	Sources   database.SourceRepository
	Items     database.ItemRepository
	Runs      database.FetchRunRepository
	Generator GeneratorInterface
	Intake    IntakeService
	Refresher Refresher
	Batch     refresh.BatchOptions
	Version   string
}

func NewHandler(deps Dependencies) *Handler {
	return &Handler{
		sourceRepo: deps.Sources,
		itemRepo:   deps.Items,
		runRepo:    deps.Runs,
		generator:  deps.Generator,
		intake:     deps.Intake,
		refresher:  deps.Refresher,
		batchOpts:  deps.Batch,
		version:    deps.Version,
	}
}

func (h *Handler) GetFeed(c *gin.Context) {
	id := c.Param("id")

	source, err := h.sourceRepo.GetSource(c.Request.Context(), id)
	if err != nil {
		slog.Error("Database error", "operation", "get_source", "source", id, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	if source == nil {
		c.Status(http.StatusNotFound)
		return
	}

	items, err := h.itemRepo.GetRecentItems(c.Request.Context(), id, defaultFeedItems)
	if err != nil {
		slog.Error("Database error", "operation", "get_items", "source", id, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	rss, err := h.generator.Run(*source, items)
	if err != nil {
		slog.Error("RSS generation error", "source", id, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(items)))
	c.Header("X-Last-Updated", source.UpdatedAt.Format(time.RFC3339))

	c.String(http.StatusOK, rss)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   h.version,
	}

	if count, err := h.sourceRepo.GetSourceCount(c.Request.Context()); err == nil {
		health["sources"] = count
	} else {
		slog.Warn("Health check could not count sources", "error", err)
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) SubmitIntake(c *gin.Context) {
	var req intakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if _, err := feed.ValidateURL(req.URL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	submission, err := h.intake.Submit(c.Request.Context(), owner(c), req.URL, req.Title)
	if err != nil {
		slog.Error("Intake submission failed", "url", req.URL, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to submit intake job"})
		return
	}

	c.JSON(http.StatusAccepted, submissionResponse{
		JobID:  submission.JobID,
		Status: string(submission.Status),
	})
}

func (h *Handler) GetIntake(c *gin.Context) {
	job, err := h.intake.Get(c.Request.Context(), owner(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, newJobResponse(job))
}

func (h *Handler) ListSources(c *gin.Context) {
	ctx := c.Request.Context()

	offset := queryInt(c, "offset", 0)
	limit := queryInt(c, "limit", 100)
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	sources, err := h.sourceRepo.ListSources(ctx, offset, limit)
	if err != nil {
		slog.Error("Database error", "operation", "list_sources", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	total, err := h.sourceRepo.GetSourceCount(ctx)
	if err != nil {
		slog.Error("Database error", "operation", "count_sources", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	resp := make([]sourceResponse, 0, len(sources))
	for _, src := range sources {
		resp = append(resp, newSourceResponse(src))
	}

	c.JSON(http.StatusOK, gin.H{
		"sources": resp,
		"total":   total,
	})
}

func (h *Handler) GetSourceDetails(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	source, err := h.sourceRepo.GetSource(ctx, id)
	if err != nil {
		slog.Error("Database error", "operation", "get_source", "source", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if source == nil {
		writeError(c, pipeline.Errorf(pipeline.CodeSourceNotFound, "source %s not found", id))
		return
	}

	resp := newSourceResponse(*source)
	if count, err := h.itemRepo.GetItemCount(ctx, id); err == nil {
		resp.ItemCount = &count
	}

	details := gin.H{
		"source":         resp,
		"extractionRule": source.ExtractionRule,
	}

	if runs, err := h.runRepo.GetRuns(ctx, id, 10); err == nil {
		recent := make([]runResponse, 0, len(runs))
		for _, run := range runs {
			recent = append(recent, newRunResponse(run))
		}
		details["runs"] = recent
	}

	c.JSON(http.StatusOK, details)
}

func (h *Handler) RefreshSource(c *gin.Context) {
	result, err := h.refresher.Refresh(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, refreshResponse{
		SourceID:    result.SourceID,
		SourceType:  string(result.SourceType),
		ItemsAdded:  result.ItemsAdded,
		NotModified: result.NotModified,
		Warnings:    result.Warnings,
	})
}

func (h *Handler) RefreshAll(c *gin.Context) {
	var req refreshRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}
	}
	if req.Limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be non-negative"})
		return
	}

	opts := h.batchOpts
	if req.Limit > 0 {
		opts.MaxSources = req.Limit
	}

	outcomes, err := h.refresher.RefreshAll(c.Request.Context(), opts)
	if err != nil {
		slog.Error("Batch refresh failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Batch refresh failed", "details": err.Error()})
		return
	}

	failed := 0
	for _, o := range outcomes {
		if o.Error != "" {
			failed++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"outcomes":  outcomes,
		"refreshed": len(outcomes) - failed,
		"failed":    failed,
	})
}

func owner(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(OwnerHeader)); id != "" {
		return id
	}
	return DefaultOwner
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// writeError maps pipeline codes to HTTP statuses.
func writeError(c *gin.Context, err error) {
	code := pipeline.CodeOf(err)

	status := http.StatusInternalServerError
	switch code {
	case pipeline.CodeJobNotFound, pipeline.CodeSourceNotFound:
		status = http.StatusNotFound
	case pipeline.CodeRefreshInProgress:
		status = http.StatusConflict
	case pipeline.CodeUpstreamNetwork, pipeline.CodeRefreshFailed, pipeline.CodeRenderFailed, pipeline.CodeExtractionEmpty:
		status = http.StatusBadGateway
	}

	message := err.Error()
	var perr *pipeline.Error
	if errors.As(err, &perr) && perr.Message != "" {
		message = perr.Message
	}

	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "path", c.Request.URL.Path, "error", err)
	}

	c.JSON(status, gin.H{
		"code":  string(code),
		"error": message,
	})
}

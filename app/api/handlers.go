package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/workflow-pulse/app/cache"
	"github.com/lysyi3m/workflow-pulse/app/cfg"
	"github.com/lysyi3m/workflow-pulse/app/collector"
	"github.com/lysyi3m/workflow-pulse/app/database"
)

// NewHandler wires the HTTP handlers. listCache may be nil.
func NewHandler(repo WorkflowReader, inferer StatusInferer, sources SourceLookup,
	runner Runner, listCache cache.ListCache) *Handler {
	return &Handler{
		repo:    repo,
		status:  inferer,
		sources: sources,
		runner:  runner,
		cache:   listCache,
	}
}

func (h *Handler) GetHome(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "n8n Popularity API is running",
		"service": "Workflow Pulse",
		"version": cfg.GetVersion(),
		"endpoints": gin.H{
			"workflows": "/api/workflows/?platform=&country=&limit=",
			"status":    "/api/status/",
			"trigger":   "/trigger/<source>/<country>/ (POST, requires X-Trigger-Secret header)",
			"health":    "/health/",
			"metrics":   "/metrics",
		},
	})
}

func (h *Handler) GetHealth(c *gin.Context) {
	ctx := c.Request.Context()
	health := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Database ping failed", "error", err)
		health["status"] = "unavailable"
		health["database"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}

	if count, err := h.repo.GetWorkflowCount(ctx); err == nil {
		health["workflows"] = count
	}

	if reporter, ok := h.cache.(HealthReporter); ok {
		health["cache"] = reporter.Health(ctx)
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) ListWorkflows(c *gin.Context) {
	ctx := c.Request.Context()
	platform := c.Query("platform")
	country := c.Query("country")

	limit := database.DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		limit = parsed
	}
	limit = database.ClampLimit(limit)

	var key string
	useCache := h.cache != nil
	if useCache {
		var err error
		if key, err = h.cache.ListKey(ctx, platform, country, limit); err != nil {
			slog.Warn("Cache key lookup failed, bypassing cache", "error", err)
			useCache = false
		}
	}
	if useCache {
		payload, hit, err := h.cache.GetList(ctx, key)
		if err != nil {
			slog.Warn("Cache read failed, falling back to store", "key", key, "error", err)
		} else if hit {
			c.Header("X-Cache", "HIT")
			c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
			return
		}
	}

	workflows, err := h.repo.ListWorkflows(ctx, database.ListFilter{
		Platform: platform,
		Country:  country,
		Limit:    limit,
	})
	if err != nil {
		slog.Error("Database error", "operation", "list_workflows", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	resp := make([]WorkflowResponse, 0, len(workflows))
	for _, w := range workflows {
		resp = append(resp, toWorkflowResponse(w))
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		slog.Error("Failed to encode workflows", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Encoding error"})
		return
	}

	if useCache {
		if err := h.cache.SetList(ctx, key, payload); err != nil {
			slog.Warn("Cache write failed", "key", key, "error", err)
		}
		c.Header("X-Cache", "MISS")
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
}

func (h *Handler) GetStatus(c *gin.Context) {
	st, err := h.status.Infer(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "infer_status", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if st.LastRun != nil {
		last, next := st.LastRun.In(time.Local), st.NextRun.In(time.Local)
		st.LastRun, st.NextRun = &last, &next
	}

	c.JSON(http.StatusOK, st)
}

// TriggerCollection runs one source for one country synchronously.
// Secret checking happens in triggerAuthMiddleware.
func (h *Handler) TriggerCollection(c *gin.Context) {
	source := c.Param("source")
	country := c.Param("country")

	src, err := h.sources.Get(source)
	if err != nil {
		if errors.Is(err, collector.ErrUnknownSource) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown source"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	code := collector.NormalizeCountry(country)
	if !collector.ValidCountry(code) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid country"})
		return
	}

	report, err := h.runner.Run(c.Request.Context(), []collector.Source{src}, []string{code})
	if err != nil {
		slog.Error("Triggered collection failed", "source", source, "country", country, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	slog.Info("Triggered collection finished", "source", source, "country", country, "run_id", report.RunID, "count", report.Total)

	c.JSON(http.StatusOK, TriggerResponse{
		OK:      true,
		Source:  source,
		Country: country,
		Count:   report.Total,
	})
}

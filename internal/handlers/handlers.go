// Package handlers provides HTTP request handlers for the model manager API.
package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/helixcode-ai/hx-model-manager/internal/catalog"
	"github.com/helixcode-ai/hx-model-manager/internal/download"
	"github.com/helixcode-ai/hx-model-manager/internal/events"
	"github.com/helixcode-ai/hx-model-manager/internal/modelcache"
	"github.com/helixcode-ai/hx-model-manager/internal/ollama"
	"github.com/helixcode-ai/hx-model-manager/internal/perf"
)

type downloadCoordinator interface {
	StartDownload(modelName, tag string) (download.Job, error)
	GetProgress(id string) (download.Job, bool)
	ListActive() []download.Job
	ListHistory(limit int) []download.Job
	Cancel(id string) bool
	Verify(ctx context.Context, modelName string) error
}

type runtimeClient interface {
	List(ctx context.Context) ([]ollama.Model, error)
	Show(ctx context.Context, name string) (*ollama.ModelDetails, error)
	Delete(ctx context.Context, name string) error
	Generate(ctx context.Context, model, prompt string) (*ollama.GenerateResult, error)
}

// Options configures handler runtime behavior.
type Options struct {
	Version           string
	ModelCacheTTL     time.Duration
	LanguageCacheTTL  time.Duration
	TaskModelCacheTTL time.Duration
}

// Handler encapsulates dependencies for HTTP handlers.
type Handler struct {
	coordinator downloadCoordinator
	runtime     runtimeClient
	cache       *modelcache.Cache
	tracker     *perf.Tracker
	catalog     *catalog.Catalog
	bus         *events.Bus
	opts        Options
}

// New creates a new Handler instance.
func New(coordinator downloadCoordinator, runtime runtimeClient, cache *modelcache.Cache, tracker *perf.Tracker, cat *catalog.Catalog, bus *events.Bus, opts Options) *Handler {
	if opts.ModelCacheTTL <= 0 {
		opts.ModelCacheTTL = 5 * time.Minute
	}
	if opts.LanguageCacheTTL <= 0 {
		opts.LanguageCacheTTL = 30 * time.Minute
	}
	if opts.TaskModelCacheTTL <= 0 {
		opts.TaskModelCacheTTL = 5 * time.Minute
	}
	return &Handler{
		coordinator: coordinator,
		runtime:     runtime,
		cache:       cache,
		tracker:     tracker,
		catalog:     cat,
		bus:         bus,
		opts:        opts,
	}
}

// Health responds to liveness probes.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": h.opts.Version})
}

// SystemInfo summarizes the running service.
func (h *Handler) SystemInfo(c *gin.Context) {
	active := h.coordinator.ListActive()
	c.JSON(http.StatusOK, gin.H{
		"version":         h.opts.Version,
		"activeDownloads": len(active),
		"tasks":           h.catalog.Tasks(),
	})
}

// ListModels returns the installed models, served from the metadata cache.
func (h *Handler) ListModels(c *gin.Context) {
	value, err := h.cache.GetOrFetch(c.Request.Context(), modelcache.KeyModelList, h.opts.ModelCacheTTL, func(ctx context.Context) (interface{}, error) {
		return h.runtime.List(ctx)
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": value})
}

// GetModel returns detailed metadata for one installed model.
func (h *Handler) GetModel(c *gin.Context) {
	name := strings.TrimPrefix(c.Param("name"), "/")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "model name required"})
		return
	}
	value, err := h.cache.GetOrFetch(c.Request.Context(), modelcache.KeyModelInfo+name, h.opts.ModelCacheTTL, func(ctx context.Context) (interface{}, error) {
		return h.runtime.Show(ctx, name)
	})
	if err != nil {
		statusFromRuntimeError(c, err)
		return
	}
	c.JSON(http.StatusOK, value)
}

// DeleteModel removes a model from the runtime and purges related cache
// entries so the next listing reflects the smaller model set.
func (h *Handler) DeleteModel(c *gin.Context) {
	name := strings.TrimPrefix(c.Param("name"), "/")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "model name required"})
		return
	}
	if err := h.runtime.Delete(c.Request.Context(), name); err != nil {
		statusFromRuntimeError(c, err)
		return
	}
	h.cache.Invalidate(modelcache.KeyModelList)
	h.cache.Invalidate(modelcache.KeyModelInfo + name)
	h.cache.InvalidatePrefix(modelcache.KeyTaskModel)
	c.JSON(http.StatusOK, gin.H{"deleted": name})
}

type startDownloadRequest struct {
	Model string `json:"model" binding:"required"`
	Tag   string `json:"tag,omitempty"`
}

// StartDownload begins acquiring a model and returns the tracking job.
func (h *Handler) StartDownload(c *gin.Context) {
	var req startDownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	job, err := h.coordinator.StartDownload(req.Model, req.Tag)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// GetDownload returns the current snapshot for one job.
func (h *Handler) GetDownload(c *gin.Context) {
	job, ok := h.coordinator.GetProgress(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "download not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// ListDownloads returns all active (non-terminal) jobs.
func (h *Handler) ListDownloads(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"downloads": h.coordinator.ListActive()})
}

// DownloadHistory returns recent terminal jobs.
func (h *Handler) DownloadHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}
	c.JSON(http.StatusOK, gin.H{"history": h.coordinator.ListHistory(limit)})
}

// CancelDownload signals a job's worker to stop.
func (h *Handler) CancelDownload(c *gin.Context) {
	id := c.Param("id")
	if h.coordinator.Cancel(id) {
		c.JSON(http.StatusOK, gin.H{"cancelled": true})
		return
	}
	if job, ok := h.coordinator.GetProgress(id); ok {
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("download already %s", job.State)})
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "download not found"})
}

type verifyRequest struct {
	Model string `json:"model" binding:"required"`
}

// VerifyModel runs a minimal synthetic inference against the model.
func (h *Handler) VerifyModel(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.coordinator.Verify(c.Request.Context(), req.Model); err != nil {
		c.JSON(http.StatusOK, gin.H{"model": req.Model, "verified": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"model": req.Model, "verified": true})
}

// ModelMetrics returns aggregate performance statistics for one model.
func (h *Handler) ModelMetrics(c *gin.Context) {
	name := strings.TrimPrefix(c.Param("name"), "/")
	metrics := h.tracker.GetMetrics(name)
	if metrics == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no samples recorded for model"})
		return
	}
	c.JSON(http.StatusOK, metrics)
}

// CompareModels ranks all tracked models.
func (h *Handler) CompareModels(c *gin.Context) {
	c.JSON(http.StatusOK, h.tracker.CompareAll())
}

type analyzeRequest struct {
	Task    string `json:"task" binding:"required"`
	Content string `json:"content" binding:"required"`
}

// Analyze picks the best model for the task, detects the content language,
// runs the analysis prompt, and records a performance sample.
func (h *Handler) Analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	model, err := h.pickModel(ctx, req.Task)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	language, err := h.detectLanguage(ctx, model, req.Content)
	if err != nil {
		// Language is advisory; analysis proceeds without it.
		language = ""
	}

	prompt := h.buildPrompt(req.Task, language, req.Content)
	start := time.Now()
	result, err := h.runtime.Generate(ctx, model, prompt)
	if err != nil {
		statusFromRuntimeError(c, err)
		return
	}
	elapsed := time.Since(start)
	h.tracker.RecordSample(model, elapsed, result.EvalCount)

	c.JSON(http.StatusOK, gin.H{
		"model":      model,
		"task":       req.Task,
		"language":   language,
		"response":   result.Response,
		"durationMs": elapsed.Milliseconds(),
		"tokens":     result.EvalCount,
	})
}

// StreamEvents serves the bus as a server-sent event feed.
func (h *Handler) StreamEvents(c *gin.Context) {
	ch, cancel, err := h.bus.Subscribe(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Flush()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			fmt.Fprintf(c.Writer, "event: %s\nid: %s\ndata: %s\n\n", evt.Type, evt.ID, payload)
			c.Writer.Flush()
		}
	}
}

func (h *Handler) pickModel(ctx context.Context, task string) (string, error) {
	value, err := h.cache.GetOrFetch(ctx, modelcache.KeyTaskModel+task, h.opts.TaskModelCacheTTL, func(ctx context.Context) (interface{}, error) {
		models, err := h.runtime.List(ctx)
		if err != nil {
			return nil, err
		}
		installed := make([]string, 0, len(models))
		for _, m := range models {
			installed = append(installed, m.Name)
		}
		return h.catalog.PickModel(task, installed)
	})
	if err != nil {
		return "", err
	}
	model, _ := value.(string)
	if model == "" {
		return "", fmt.Errorf("no model available for task %q", task)
	}
	return model, nil
}

// detectLanguage asks the runtime to classify the snippet; being a pure
// function of the content it is cached by content hash.
func (h *Handler) detectLanguage(ctx context.Context, model, content string) (string, error) {
	sum := sha256.Sum256([]byte(content))
	key := modelcache.KeyLanguage + hex.EncodeToString(sum[:])

	value, err := h.cache.GetOrFetch(ctx, key, h.opts.LanguageCacheTTL, func(ctx context.Context) (interface{}, error) {
		prompt := "Identify the programming language of the following snippet. Answer with one word.\n\n" + content
		result, err := h.runtime.Generate(ctx, model, prompt)
		if err != nil {
			return nil, err
		}
		return strings.ToLower(strings.TrimSpace(result.Response)), nil
	})
	if err != nil {
		return "", err
	}
	language, _ := value.(string)
	return language, nil
}

func (h *Handler) buildPrompt(task, language, content string) string {
	var b strings.Builder
	if profile, ok := h.catalog.Profile(task); ok && profile.PromptHint != "" {
		b.WriteString(profile.PromptHint)
	} else {
		b.WriteString("You are a code analysis assistant. Task: " + task + ".")
	}
	if language != "" {
		b.WriteString(" The snippet is written in " + language + ".")
	}
	b.WriteString("\n\n")
	b.WriteString(content)
	return b.String()
}

func statusFromRuntimeError(c *gin.Context, err error) {
	var statusErr *ollama.StatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}

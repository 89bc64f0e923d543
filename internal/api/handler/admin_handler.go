package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/nutrilens/internal/domain"
	"github.com/timmy/nutrilens/internal/logger"
	"github.com/timmy/nutrilens/internal/service"
	"github.com/timmy/nutrilens/internal/source"
)

// MealImporter replays a staged source through the ingestion pipeline.
type MealImporter interface {
	ImportFromSource(ctx context.Context, src source.Source, limit int) (*service.ImportStats, error)
}

// SourceResolver returns the staged source named id, or false if none exists.
type SourceResolver func(id string) (source.Source, bool)

// AdminHandler handles bulk import operations.
type AdminHandler struct {
	importer MealImporter
	sources  SourceResolver

	// Import run state
	mu            sync.RWMutex
	isRunning     bool
	currentStats  *service.ImportStats
	lastRunTime   time.Time
	lastRunStatus string
}

// NewAdminHandler creates a new admin handler.
// Parameters:
//   - importer: import service instance.
//   - sources: resolves staging source names to adapters.
//
// Returns:
//   - *AdminHandler: initialized handler.
func NewAdminHandler(importer MealImporter, sources SourceResolver) *AdminHandler {
	return &AdminHandler{
		importer: importer,
		sources:  sources,
	}
}

// ImportRequest represents the import API request.
type ImportRequest struct {
	Source string `json:"source" binding:"required"`
	Limit  int    `json:"limit" binding:"min=0,max=10000"`
}

// ImportResponse represents the import API response.
type ImportResponse struct {
	Message string               `json:"message"`
	Stats   *service.ImportStats `json:"stats,omitempty"`
}

// ImportStatusResponse represents the import status.
type ImportStatusResponse struct {
	IsRunning     bool                 `json:"isRunning"`
	LastRunTime   string               `json:"lastRunTime,omitempty"`
	LastRunStatus string               `json:"lastRunStatus,omitempty"`
	CurrentStats  *service.ImportStats `json:"currentStats,omitempty"`
}

// TriggerImport runs one import to completion and returns its counters.
// Only one import runs at a time; a concurrent request gets 409.
func (h *AdminHandler) TriggerImport(c *gin.Context) {
	ctx := c.Request.Context()

	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBindError(c, err)
		return
	}

	src, ok := h.sources(req.Source)
	if !ok {
		logger.CtxWarn(ctx, "Unknown source requested: source=%s, client_ip=%s", req.Source, c.ClientIP())
		RespondError(c, domain.NewValidationError("Unknown import source.", map[string]string{"source": "unknown"}))
		return
	}

	h.mu.Lock()
	if h.isRunning {
		h.mu.Unlock()
		logger.CtxWarn(ctx, "Import request rejected: already running, source=%s", req.Source)
		RespondError(c, domain.NewImportInProgress())
		return
	}
	h.isRunning = true
	h.currentStats = nil
	h.mu.Unlock()

	logger.CtxInfo(ctx, "Starting import: source=%s, limit=%d", req.Source, req.Limit)

	// Detach from the request so a client disconnect does not abort
	// half-imported batches.
	importCtx := context.WithoutCancel(ctx)
	startTime := time.Now()
	stats, err := h.importer.ImportFromSource(importCtx, src, req.Limit)
	duration := time.Since(startTime)

	h.mu.Lock()
	h.isRunning = false
	h.currentStats = stats
	h.lastRunTime = time.Now()
	if err != nil {
		h.lastRunStatus = "failed: " + err.Error()
	} else {
		h.lastRunStatus = "success"
	}
	h.mu.Unlock()

	if err != nil {
		logger.With(logger.Fields{
			logger.FieldDurationMs: duration.Milliseconds(),
		}).Error(ctx, "Import failed: source=%s, error=%v", req.Source, err)
		RespondError(c, err)
		return
	}

	logger.With(logger.Fields{
		logger.FieldDurationMs: duration.Milliseconds(),
		logger.FieldCount:      stats.ImportedItems,
	}).Info(ctx, "Import completed: source=%s, total=%d, imported=%d, rejected=%d, failed=%d",
		req.Source, stats.TotalItems, stats.ImportedItems, stats.RejectedItems, stats.FailedItems)

	c.JSON(http.StatusOK, ImportResponse{
		Message: "Import completed",
		Stats:   stats,
	})
}

// GetImportStatus returns the current import status.
func (h *AdminHandler) GetImportStatus(c *gin.Context) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	resp := ImportStatusResponse{
		IsRunning:     h.isRunning,
		LastRunStatus: h.lastRunStatus,
		CurrentStats:  h.currentStats,
	}
	if !h.lastRunTime.IsZero() {
		resp.LastRunTime = h.lastRunTime.UTC().Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, resp)
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/nutrilens/internal/api/middleware"
	"github.com/timmy/nutrilens/internal/domain"
	"github.com/timmy/nutrilens/internal/nutrition"
	"github.com/timmy/nutrilens/internal/service"
)

// multipartOverhead is allowed on top of the image limit for form fields
// and boundaries.
const multipartOverhead = 1 << 20

// MealIngester runs the ingestion pipeline.
type MealIngester interface {
	IngestImage(ctx context.Context, req domain.ImageAnalysisRequest) (*domain.MealAnalysisResponse, error)
	IngestText(ctx context.Context, req domain.TextAnalysisRequest) (*domain.MealAnalysisResponse, error)
}

// MealReader reads and edits persisted meals.
type MealReader interface {
	GetMeal(ctx context.Context, userID, mealID string) (*domain.Meal, error)
	ListMeals(ctx context.Context, userID string, filter domain.MealListFilter) (*service.MealPage, error)
	UpdateMeal(ctx context.Context, userID, mealID string, update domain.MealUpdate) (*domain.Meal, error)
	DeleteMeal(ctx context.Context, userID, mealID string) error
}

// MealHandler handles meal ingestion and meal CRUD endpoints.
type MealHandler struct {
	ingest        MealIngester
	meals         MealReader
	uploadDir     string
	maxImageBytes int64
}

// MealHandlerConfig holds upload settings for MealHandler.
type MealHandlerConfig struct {
	// UploadDir receives temporary uploads; empty uses os.TempDir.
	UploadDir     string
	MaxImageBytes int64
}

// NewMealHandler creates a new meal handler.
// Parameters:
//   - ingest: ingestion pipeline.
//   - meals: meal read/edit service.
//   - cfg: upload settings.
//
// Returns:
//   - *MealHandler: initialized handler.
func NewMealHandler(ingest MealIngester, meals MealReader, cfg MealHandlerConfig) *MealHandler {
	return &MealHandler{
		ingest:        ingest,
		meals:         meals,
		uploadDir:     cfg.UploadDir,
		maxImageBytes: cfg.MaxImageBytes,
	}
}

// AnalyzeTextRequest is the body of POST /api/v1/meals/analyze-text.
// Timestamp may be a JSON string or number.
type AnalyzeTextRequest struct {
	Description string          `json:"description" binding:"required"`
	MealType    string          `json:"mealType"`
	Timestamp   json.RawMessage `json:"timestamp"`
}

// UpdateMealRequest is the body of PATCH /api/v1/meals/:id.
type UpdateMealRequest struct {
	Notes    *string `json:"notes"`
	MealType *string `json:"mealType"`
}

// AnalyzeImage handles POST /api/v1/meals/analyze-image (multipart: image,
// mealType, timestamp). The upload is spooled to a temporary file whose
// ownership passes to the ingestion pipeline.
func (h *MealHandler) AnalyzeImage(c *gin.Context) {
	if h.maxImageBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxImageBytes+multipartOverhead)
	}

	file, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			RespondError(c, domain.NewValidationError("The uploaded image is too large.", map[string]string{"image": "too_large"}))
			return
		}
		RespondError(c, domain.NewValidationError("An image file is required.", map[string]string{"image": "required"}))
		return
	}
	if h.maxImageBytes > 0 && file.Size > h.maxImageBytes {
		RespondError(c, domain.NewValidationError("The uploaded image is too large.", map[string]string{"image": "too_large"}))
		return
	}

	tempPath, err := h.spool(file)
	if err != nil {
		RespondError(c, domain.NewStorageError(err))
		return
	}

	resp, err := h.ingest.IngestImage(c.Request.Context(), domain.ImageAnalysisRequest{
		UserID:    middleware.UserID(c),
		TempPath:  tempPath,
		MealType:  c.PostForm("mealType"),
		Timestamp: c.PostForm("timestamp"),
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// AnalyzeText handles POST /api/v1/meals/analyze-text.
func (h *MealHandler) AnalyzeText(c *gin.Context) {
	var req AnalyzeTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBindError(c, err)
		return
	}

	resp, err := h.ingest.IngestText(c.Request.Context(), domain.TextAnalysisRequest{
		UserID:      middleware.UserID(c),
		Description: req.Description,
		MealType:    req.MealType,
		Timestamp:   rawTimestamp(req.Timestamp),
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// ListMeals handles GET /api/v1/meals?from=&to=&limit=&offset=.
// from is inclusive and to is exclusive (consumedAt >= from, < to). A
// date-only to (2025-03-10) means the end of that UTC day, so the day's
// meals are included.
func (h *MealHandler) ListMeals(c *gin.Context) {
	filter := domain.MealListFilter{}
	fields := map[string]string{}

	for _, bound := range []struct {
		name   string
		target *time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		raw := strings.TrimSpace(c.Query(bound.name))
		if raw == "" {
			continue
		}
		t, fellBack := nutrition.ParseClientTimestamp(raw, time.Time{})
		if fellBack {
			fields[bound.name] = "datetime"
			continue
		}
		if bound.name == "to" && isDateOnly(raw) {
			t = t.AddDate(0, 0, 1)
		}
		*bound.target = t
	}
	for _, num := range []struct {
		name   string
		target *int
	}{{"limit", &filter.Limit}, {"offset", &filter.Offset}} {
		raw := c.Query(num.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			fields[num.name] = "numeric"
			continue
		}
		*num.target = n
	}
	if len(fields) > 0 {
		RespondError(c, domain.NewValidationError("Invalid query parameters.", fields))
		return
	}

	page, err := h.meals.ListMeals(c.Request.Context(), middleware.UserID(c), filter)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetMeal handles GET /api/v1/meals/:id.
func (h *MealHandler) GetMeal(c *gin.Context) {
	meal, err := h.meals.GetMeal(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, meal)
}

// UpdateMeal handles PATCH /api/v1/meals/:id.
func (h *MealHandler) UpdateMeal(c *gin.Context) {
	var req UpdateMealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBindError(c, err)
		return
	}

	meal, err := h.meals.UpdateMeal(c.Request.Context(), middleware.UserID(c), c.Param("id"), domain.MealUpdate{
		Notes:    req.Notes,
		MealType: req.MealType,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, meal)
}

// DeleteMeal handles DELETE /api/v1/meals/:id.
func (h *MealHandler) DeleteMeal(c *gin.Context) {
	if err := h.meals.DeleteMeal(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// spool copies an uploaded file to a new temporary file and returns its path.
// On failure no file is left behind.
func (h *MealHandler) spool(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	if h.uploadDir != "" {
		if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create upload dir: %w", err)
		}
	}
	dst, err := os.CreateTemp(h.uploadDir, "meal-upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	return dst.Name(), nil
}

// rawTimestamp renders a JSON timestamp (string or number) as the string
// form the ingestion pipeline parses.
func rawTimestamp(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func isDateOnly(raw string) bool {
	_, err := time.Parse(time.DateOnly, raw)
	return err == nil
}

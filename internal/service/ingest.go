package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/nutrilens/internal/domain"
	"github.com/timmy/nutrilens/internal/logger"
	"github.com/timmy/nutrilens/internal/nutrition"
	"github.com/timmy/nutrilens/internal/repository"
)

// responseTimestampFormat renders the resolved consumed-at time.
const responseTimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// ingestStage is a state of the ingestion pipeline. A run moves through
// received, validated, inferred, sanitized, persisting and ends in committed
// or failed.
type ingestStage string

const (
	stageReceived   ingestStage = "received"
	stageValidated  ingestStage = "validated"
	stageInferred   ingestStage = "inferred"
	stageSanitized  ingestStage = "sanitized"
	stagePersisting ingestStage = "persisting"
	stageCommitted  ingestStage = "committed"
	stageFailed     ingestStage = "failed"
)

// MealIngestService turns a meal photo or description into a persisted meal.
type MealIngestService struct {
	meals    *repository.MealRepository
	images   *ImageStore
	analyzer MealAnalyzer
	location *time.Location
	now      func() time.Time
}

// MealIngestConfig holds configuration for the ingest service
type MealIngestConfig struct {
	// Location derives the calendar date of a meal; nil means UTC.
	Location *time.Location
}

// NewMealIngestService creates a new ingest service
func NewMealIngestService(
	meals *repository.MealRepository,
	images *ImageStore,
	analyzer MealAnalyzer,
	cfg *MealIngestConfig,
) *MealIngestService {
	loc := time.UTC
	if cfg != nil && cfg.Location != nil {
		loc = cfg.Location
	}
	return &MealIngestService{
		meals:    meals,
		images:   images,
		analyzer: analyzer,
		location: loc,
		now:      time.Now,
	}
}

// ingestRun tracks one request through the pipeline.
type ingestRun struct {
	ctx    context.Context
	source domain.MealSource
	stage  ingestStage
	start  time.Time
}

func (s *MealIngestService) newRun(ctx context.Context, userID string, source domain.MealSource) *ingestRun {
	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldUserID:       userID,
		logger.FieldIngestSource: string(source),
	})
	run := &ingestRun{ctx: ctx, source: source, start: time.Now()}
	run.advance(stageReceived)
	return run
}

func (r *ingestRun) advance(stage ingestStage) {
	r.stage = stage
	logger.FromContext(r.ctx).WithField(logger.FieldStage, string(stage)).Debug("Ingestion stage reached")
}

// fail logs err against the stage it happened in and returns it unchanged.
// Client errors log at info, everything else logs the raw cause at error.
func (r *ingestRun) fail(err error) error {
	failedAt := r.stage
	r.stage = stageFailed
	log := logger.FromContext(r.ctx).WithFields(logger.Fields{
		logger.FieldStage:      string(failedAt),
		logger.FieldDurationMs: time.Since(r.start).Milliseconds(),
	})

	ie, ok := domain.AsIngestError(err)
	if ok && ie.Status() < 500 {
		log.WithField("code", ie.Code).Infof("Meal ingestion rejected: %s", ie.Message)
		return err
	}
	log.WithError(err).Error("Meal ingestion failed")
	return err
}

// IngestImage analyzes and stores a meal photo.
// The file at req.TempPath is owned by this call and removed when it returns,
// whatever the outcome.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - req: uploaded file path, owner, optional meal type and timestamp.
//
// Returns:
//   - *domain.MealAnalysisResponse: the persisted analysis.
//   - error: *domain.IngestError describing the failure.
func (s *MealIngestService) IngestImage(ctx context.Context, req domain.ImageAnalysisRequest) (*domain.MealAnalysisResponse, error) {
	run := s.newRun(ctx, req.UserID, domain.MealSourceImage)

	tempPath := strings.TrimSpace(req.TempPath)
	if tempPath == "" {
		return nil, run.fail(domain.NewValidationError("An image file is required.", map[string]string{"image": "required"}))
	}
	cleanup := s.tempFileCleanup(run.ctx, tempPath)
	defer cleanup()

	if err := validateUser(req.UserID); err != nil {
		return nil, run.fail(err)
	}
	consumedAt := s.resolveTimestamp(run.ctx, req.Timestamp)

	img, err := s.images.Load(tempPath)
	if err != nil {
		return nil, run.fail(imageValidationError(err))
	}
	run.advance(stageValidated)

	raw, err := s.analyzer.AnalyzeImage(run.ctx, img.Data, img.MIMEType)
	if err != nil {
		return nil, run.fail(inferenceError(err, domain.MealSourceImage))
	}
	run.advance(stageInferred)

	analysis := nutrition.SanitizeAnalysis(raw, req.MealType)
	if len(analysis.Foods) == 0 {
		return nil, run.fail(domain.NewMealNotDetected(domain.MealSourceImage))
	}
	run.advance(stageSanitized)

	// Same-content uploads of one user share a key; hold it until the meal
	// is committed or the rollback has decided whether to delete the object.
	unlock := s.images.LockKey(s.images.Key(req.UserID, img))
	defer unlock()

	stored, err := s.images.Store(run.ctx, req.UserID, img)
	if err != nil {
		return nil, run.fail(domain.NewStorageError(err))
	}

	meal := s.buildMeal(req.UserID, domain.MealSourceImage, consumedAt, &analysis)
	meal.ImageURL = &stored.URL
	meal.ImageKey = &stored.Key
	meal.ImageWidth = img.Width
	meal.ImageHeight = img.Height

	if err := s.persist(run, meal, &analysis); err != nil {
		if stored.Uploaded {
			s.releaseImage(run.ctx, stored.Key)
		}
		return nil, run.fail(err)
	}

	return s.complete(run, meal, &analysis), nil
}

// IngestText analyzes and stores a free-text meal description. Descriptions
// that do not look like food are rejected before inference is called.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - req: description, owner, optional meal type and timestamp.
//
// Returns:
//   - *domain.MealAnalysisResponse: the persisted analysis.
//   - error: *domain.IngestError describing the failure.
func (s *MealIngestService) IngestText(ctx context.Context, req domain.TextAnalysisRequest) (*domain.MealAnalysisResponse, error) {
	run := s.newRun(ctx, req.UserID, domain.MealSourceText)

	description := strings.TrimSpace(req.Description)
	if description == "" {
		return nil, run.fail(domain.NewValidationError("A meal description is required.", map[string]string{"description": "required"}))
	}
	if err := validateUser(req.UserID); err != nil {
		return nil, run.fail(err)
	}
	if ok, reason := nutrition.IsLikelyMeal(description); !ok {
		return nil, run.fail(domain.NewHeuristicRejection(reason))
	}
	consumedAt := s.resolveTimestamp(run.ctx, req.Timestamp)
	run.advance(stageValidated)

	raw, err := s.analyzer.AnalyzeText(run.ctx, description)
	if err != nil {
		return nil, run.fail(inferenceError(err, domain.MealSourceText))
	}
	run.advance(stageInferred)

	analysis := nutrition.SanitizeAnalysis(raw, req.MealType)
	if len(analysis.Foods) == 0 {
		return nil, run.fail(domain.NewMealNotDetected(domain.MealSourceText))
	}
	run.advance(stageSanitized)

	meal := s.buildMeal(req.UserID, domain.MealSourceText, consumedAt, &analysis)
	meal.Description = &description

	if err := s.persist(run, meal, &analysis); err != nil {
		return nil, run.fail(err)
	}

	return s.complete(run, meal, &analysis), nil
}

func (s *MealIngestService) persist(run *ingestRun, meal *domain.Meal, analysis *nutrition.Analysis) error {
	run.advance(stagePersisting)
	run.ctx = logger.SetMealID(run.ctx, meal.ID)

	foods := make([]domain.DetectedFood, 0, len(analysis.Foods))
	for _, f := range analysis.Foods {
		foods = append(foods, domain.DetectedFood{
			ID:            uuid.NewString(),
			Name:          f.Name,
			Confidence:    f.Confidence,
			PortionAmount: f.Portion.Amount,
			PortionUnit:   f.Portion.Unit,
			Calories:      f.Nutrition.Calories,
			Protein:       f.Nutrition.Protein,
			Carbs:         f.Nutrition.Carbs,
			Fat:           f.Nutrition.Fat,
			Fiber:         f.Nutrition.Fiber,
			Category:      f.Category,
		})
	}

	if err := s.meals.CreateWithFoods(run.ctx, meal, foods); err != nil {
		return domain.NewPersistenceError(err)
	}
	return nil
}

func (s *MealIngestService) complete(run *ingestRun, meal *domain.Meal, analysis *nutrition.Analysis) *domain.MealAnalysisResponse {
	run.advance(stageCommitted)
	logger.With(logger.Fields{
		logger.FieldFoodCount: len(meal.Foods),
		"health_score":        meal.HealthScore,
		"context_synthesized": analysis.ContextSynthesized,
	}).WithDuration(run.start).Info(run.ctx, "Meal ingested")

	return &domain.MealAnalysisResponse{
		MealID:         meal.ID,
		DetectedFoods:  domain.FoodsToDTO(meal.Foods),
		TotalNutrition: analysis.Totals,
		ImageURL:       meal.ImageURL,
		Timestamp:      meal.ConsumedAt.Format(responseTimestampFormat),
		MealContext:    analysis.Context,
		Notes:          analysis.Notes,
	}
}

func (s *MealIngestService) buildMeal(userID string, source domain.MealSource, consumedAt time.Time, analysis *nutrition.Analysis) *domain.Meal {
	return &domain.Meal{
		ID:          uuid.NewString(),
		UserID:      userID,
		MealType:    analysis.Context.EstimatedMealType,
		Source:      source,
		Calories:    analysis.Totals.Calories,
		Protein:     analysis.Totals.Protein,
		Carbs:       analysis.Totals.Carbs,
		Fat:         analysis.Totals.Fat,
		Fiber:       analysis.Totals.Fiber,
		HealthScore: analysis.Context.HealthScore,
		PortionSize: analysis.Context.PortionSize,
		MealDate:    nutrition.CalendarDate(consumedAt, s.location),
		ConsumedAt:  consumedAt,
		Notes:       analysis.Notes,
		CreatedAt:   s.now().UTC(),
	}
}

func (s *MealIngestService) resolveTimestamp(ctx context.Context, raw string) time.Time {
	ts, fellBack := nutrition.ParseClientTimestamp(raw, s.now().UTC())
	if fellBack && strings.TrimSpace(raw) != "" {
		logger.CtxDebug(ctx, "Unparseable client timestamp %q, using current time", raw)
	}
	return ts
}

// tempFileCleanup returns a function removing path at most once. Removal
// failures are logged and never returned.
func (s *MealIngestService) tempFileCleanup(ctx context.Context, path string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				logger.FromContext(ctx).WithField("path", path).WithError(err).Warn("Failed to remove temporary upload")
			}
		})
	}
}

// releaseImage removes an image uploaded for a meal that was not committed,
// unless a committed meal references the same key by now. The caller holds
// the key lock.
func (s *MealIngestService) releaseImage(ctx context.Context, key string) {
	cleanupCtx := context.WithoutCancel(ctx)
	log := logger.FromContext(ctx).WithField("storage_key", key)
	refs, err := s.meals.CountImageReferences(cleanupCtx, key)
	if err != nil {
		log.WithError(err).Warn("Failed to count image references, keeping image")
		return
	}
	if refs > 0 {
		log.Debug("Image referenced by another meal, keeping it")
		return
	}
	if err := s.images.Delete(cleanupCtx, key); err != nil {
		log.WithError(err).Error("Failed to rollback image upload")
	}
}

func validateUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return domain.NewValidationError("A user is required.", map[string]string{"userId": "required"})
	}
	return nil
}

func imageValidationError(err error) error {
	switch {
	case errors.Is(err, ErrImageMissing):
		return domain.NewValidationError("The uploaded image could not be found.", map[string]string{"image": "required"})
	case errors.Is(err, ErrImageEmpty):
		return domain.NewValidationError("The uploaded image is empty.", map[string]string{"image": "empty"})
	case errors.Is(err, ErrImageTooLarge):
		return domain.NewValidationError("The uploaded image is too large.", map[string]string{"image": "too_large"})
	case errors.Is(err, ErrImageUnsupported):
		return domain.NewValidationError("The uploaded file is not a supported image (JPEG, PNG, WebP or GIF).", map[string]string{"image": "unsupported_type"})
	default:
		return domain.NewStorageError(fmt.Errorf("failed to read upload: %w", err))
	}
}

func inferenceError(err error, source domain.MealSource) error {
	if errors.Is(err, domain.ErrNothingRecognized) {
		return domain.NewMealNotDetected(source)
	}
	return domain.NewInferenceError(err)
}

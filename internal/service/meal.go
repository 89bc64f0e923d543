package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/timmy/nutrilens/internal/domain"
	"github.com/timmy/nutrilens/internal/logger"
	"github.com/timmy/nutrilens/internal/nutrition"
	"github.com/timmy/nutrilens/internal/repository"
)

const (
	// MaxNotesLength bounds user-edited notes (in runes).
	MaxNotesLength = 2000
	// MaxListLimit bounds one page of ListMeals.
	MaxListLimit = 200

	defaultListLimit = 50
)

// MealService reads, edits and deletes persisted meals.
type MealService struct {
	meals  *repository.MealRepository
	images *ImageStore
}

// NewMealService creates a new MealService. images may be nil when stored
// photos should never be removed.
func NewMealService(meals *repository.MealRepository, images *ImageStore) *MealService {
	return &MealService{meals: meals, images: images}
}

// MealPage is one page of ListMeals.
type MealPage struct {
	Meals  []domain.Meal `json:"meals"`
	Total  int64         `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// GetMeal returns a meal owned by userID with its foods.
func (s *MealService) GetMeal(ctx context.Context, userID, mealID string) (*domain.Meal, error) {
	meal, err := s.meals.GetByID(ctx, userID, mealID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return meal, nil
}

// ListMeals returns userID's meals, newest consumed first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: owning user.
//   - filter: optional consumed-at window; Limit is capped at MaxListLimit.
//
// Returns:
//   - *MealPage: meals plus the total matching count.
//   - error: validation error for a negative offset or inverted window.
func (s *MealService) ListMeals(ctx context.Context, userID string, filter domain.MealListFilter) (*MealPage, error) {
	if filter.Offset < 0 {
		return nil, domain.NewValidationError("Offset must not be negative.", map[string]string{"offset": "min"})
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.From.Before(filter.To) {
		return nil, domain.NewValidationError("The from date must be before the to date.", map[string]string{"from": "before_to"})
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultListLimit
	case filter.Limit > MaxListLimit:
		filter.Limit = MaxListLimit
	}

	meals, total, err := s.meals.List(ctx, userID, filter)
	if err != nil {
		return nil, domain.NewPersistenceError(err)
	}
	return &MealPage{Meals: meals, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// UpdateMeal edits a meal's notes and meal type. The meal type goes through
// the same normalization as ingestion; nutrition and health score are never
// changed here.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: owning user.
//   - mealID: meal to edit.
//   - update: fields to change; nil fields are kept, empty notes clear them.
//
// Returns:
//   - *domain.Meal: the updated meal with foods.
//   - error: validation, not-found or persistence *domain.IngestError.
func (s *MealService) UpdateMeal(ctx context.Context, userID, mealID string, update domain.MealUpdate) (*domain.Meal, error) {
	var notes *string
	if update.Notes != nil {
		trimmed := strings.TrimSpace(*update.Notes)
		if utf8.RuneCountInString(trimmed) > MaxNotesLength {
			return nil, domain.NewValidationError("Notes are too long.", map[string]string{"notes": "max"})
		}
		notes = &trimmed
	}

	var mealType *domain.MealType
	if update.MealType != nil {
		if strings.TrimSpace(*update.MealType) == "" {
			return nil, domain.NewValidationError("Meal type must not be empty.", map[string]string{"mealType": "required"})
		}
		mt := nutrition.NormalizeMealType(*update.MealType)
		mealType = &mt
	}

	if notes == nil && mealType == nil {
		return nil, domain.NewValidationError("Nothing to update.", map[string]string{"notes": "required_without=mealType"})
	}

	meal, err := s.meals.UpdateDetails(ctx, userID, mealID, notes, mealType)
	if err != nil {
		return nil, mapRepoError(err)
	}
	logger.FromContext(ctx).WithField(logger.FieldMealID, mealID).Info("Meal updated")
	return meal, nil
}

// DeleteMeal removes a meal and its foods. The stored photo is removed after
// commit when no other meal references it; failures there are only logged.
func (s *MealService) DeleteMeal(ctx context.Context, userID, mealID string) error {
	meal, err := s.meals.Delete(ctx, userID, mealID)
	if err != nil {
		return mapRepoError(err)
	}
	log := logger.FromContext(ctx).WithField(logger.FieldMealID, mealID)
	log.Info("Meal deleted")

	if s.images == nil || meal.ImageKey == nil || *meal.ImageKey == "" {
		return nil
	}
	key := *meal.ImageKey
	unlock := s.images.LockKey(key)
	defer unlock()

	refs, err := s.meals.CountImageReferences(ctx, key)
	if err != nil {
		log.WithField("storage_key", key).WithError(err).Warn("Failed to count image references, keeping image")
		return nil
	}
	if refs > 0 {
		return nil
	}
	if err := s.images.Delete(context.WithoutCancel(ctx), key); err != nil {
		log.WithField("storage_key", key).WithError(err).Error("Failed to delete meal image")
	}
	return nil
}

// BackfillHealthScores assigns estimated scores to meals stored without one.
// It is a one-time migration and never runs on read paths.
func (s *MealService) BackfillHealthScores(ctx context.Context, batchSize int) (int, error) {
	updated, err := s.meals.BackfillHealthScores(ctx, batchSize, func(t domain.NutritionTotals) float64 {
		return nutrition.ResolveHealthScore(nil, t)
	})
	if err != nil {
		return updated, err
	}
	logger.With(logger.Fields{logger.FieldCount: updated}).Info(ctx, "Health score backfill completed")
	return updated, nil
}

// Ping checks database connectivity.
func (s *MealService) Ping(ctx context.Context) error {
	return s.meals.Ping(ctx)
}

func mapRepoError(err error) error {
	if errors.Is(err, domain.ErrMealNotFound) {
		return domain.NewMealNotFound()
	}
	return domain.NewPersistenceError(err)
}

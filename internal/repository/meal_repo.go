package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/nutrilens/internal/domain"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultListLimit = 50

// MealRepository persists meals and their detected foods.
type MealRepository struct {
	db                *gorm.DB
	insertConcurrency int
}

// NewMealRepository creates a new MealRepository.
// Parameters:
//   - db: GORM database handle used for queries.
//   - insertConcurrency: bound on concurrent food inserts per meal; values
//     below 1 insert sequentially.
//
// Returns:
//   - *MealRepository: repository instance bound to db.
func NewMealRepository(db *gorm.DB, insertConcurrency int) *MealRepository {
	if insertConcurrency < 1 {
		insertConcurrency = 1
	}
	return &MealRepository{db: db, insertConcurrency: insertConcurrency}
}

// CreateWithFoods inserts meal and all of its foods in one transaction.
// Food inserts fan out over the transaction and are joined before commit;
// any failure, including ctx cancellation, rolls the whole meal back.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - meal: parent record; its Foods field is ignored and set on success.
//   - foods: child records; MealID and Position are assigned here.
//
// Returns:
//   - error: non-nil if any insert or the commit fails.
func (r *MealRepository) CreateWithFoods(ctx context.Context, meal *domain.Meal, foods []domain.DetectedFood) (err error) {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback().Error; rbErr != nil && !errors.Is(rbErr, gorm.ErrInvalidTransaction) && !errors.Is(rbErr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
		}
	}()

	if meal.ID == "" {
		meal.ID = uuid.NewString()
	}
	if err := tx.Omit(clause.Associations).Create(meal).Error; err != nil {
		return fmt.Errorf("failed to insert meal: %w", err)
	}

	for i := range foods {
		if foods[i].ID == "" {
			foods[i].ID = uuid.NewString()
		}
		foods[i].MealID = meal.ID
		foods[i].Position = i
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.insertConcurrency)
	for i := range foods {
		food := &foods[i]
		g.Go(func() error {
			if err := tx.WithContext(gctx).Create(food).Error; err != nil {
				return fmt.Errorf("failed to insert food %q: %w", food.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit meal: %w", err)
	}
	committed = true
	meal.Foods = foods
	return nil
}

// GetByID retrieves a meal with its foods, scoped to its owner.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: owning user; meals of other users are not found.
//   - id: meal ID.
//
// Returns:
//   - *domain.Meal: meal with Foods ordered as detected.
//   - error: domain.ErrMealNotFound if absent, non-nil on query failure.
func (r *MealRepository) GetByID(ctx context.Context, userID, id string) (*domain.Meal, error) {
	var meal domain.Meal
	err := r.db.WithContext(ctx).
		Preload("Foods", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&meal, "id = ? AND user_id = ?", id, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrMealNotFound
	}
	if err != nil {
		return nil, err
	}
	return &meal, nil
}

// List returns a user's meals, newest consumed first, with the total count
// matching the filter. Foods are preloaded.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: owning user.
//   - filter: optional consumed-at window and pagination.
//
// Returns:
//   - []domain.Meal: the requested page.
//   - int64: total matching meals.
//   - error: non-nil if the query fails.
func (r *MealRepository) List(ctx context.Context, userID string, filter domain.MealListFilter) ([]domain.Meal, int64, error) {
	scoped := func() *gorm.DB {
		query := r.db.WithContext(ctx).Model(&domain.Meal{}).Where("user_id = ?", userID)
		if !filter.From.IsZero() {
			query = query.Where("consumed_at >= ?", filter.From)
		}
		if !filter.To.IsZero() {
			query = query.Where("consumed_at < ?", filter.To)
		}
		return query
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var meals []domain.Meal
	if err := scoped().
		Preload("Foods", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Order("consumed_at DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&meals).Error; err != nil {
		return nil, 0, err
	}
	return meals, total, nil
}

// UpdateDetails changes the editable fields of a meal and stamps edited_at.
// The health score and nutrition are never touched here.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: owning user.
//   - id: meal ID.
//   - notes: new notes, nil to keep; an empty string clears them.
//   - mealType: new normalized meal type, nil to keep.
//
// Returns:
//   - *domain.Meal: the updated meal.
//   - error: domain.ErrMealNotFound if absent, non-nil on failure.
func (r *MealRepository) UpdateDetails(ctx context.Context, userID, id string, notes *string, mealType *domain.MealType) (*domain.Meal, error) {
	updates := map[string]interface{}{"edited_at": time.Now().UTC()}
	if notes != nil {
		if *notes == "" {
			updates["notes"] = nil
		} else {
			updates["notes"] = *notes
		}
	}
	if mealType != nil {
		updates["meal_type"] = *mealType
	}

	res := r.db.WithContext(ctx).Model(&domain.Meal{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, domain.ErrMealNotFound
	}
	return r.GetByID(ctx, userID, id)
}

// Delete removes a meal and its foods in one transaction and returns the
// deleted meal so callers can release its stored image.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: owning user.
//   - id: meal ID.
//
// Returns:
//   - *domain.Meal: the deleted meal (without foods).
//   - error: domain.ErrMealNotFound if absent, non-nil on failure.
func (r *MealRepository) Delete(ctx context.Context, userID, id string) (*domain.Meal, error) {
	var meal domain.Meal
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&meal, "id = ? AND user_id = ?", id, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrMealNotFound
			}
			return err
		}
		if err := tx.Where("meal_id = ?", meal.ID).Delete(&domain.DetectedFood{}).Error; err != nil {
			return fmt.Errorf("failed to delete foods: %w", err)
		}
		if err := tx.Delete(&meal).Error; err != nil {
			return fmt.Errorf("failed to delete meal: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &meal, nil
}

// CountImageReferences returns how many meals point at the stored image key.
func (r *MealRepository) CountImageReferences(ctx context.Context, key string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.Meal{}).Where("image_key = ?", key).Count(&n).Error
	return n, err
}

// BackfillHealthScores assigns a score to legacy meals stored without one
// (NULL or below the 1.0 floor), batchSize rows at a time.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - batchSize: rows per batch; values below 1 use 100.
//   - score: computes the score from a meal's totals.
//
// Returns:
//   - int: number of meals updated.
//   - error: non-nil if a batch fails; earlier batches stay committed.
func (r *MealRepository) BackfillHealthScores(ctx context.Context, batchSize int, score func(domain.NutritionTotals) float64) (int, error) {
	if batchSize < 1 {
		batchSize = 100
	}

	updated := 0
	lastID := ""
	for {
		if err := ctx.Err(); err != nil {
			return updated, err
		}

		var meals []domain.Meal
		if err := r.db.WithContext(ctx).
			Where("(health_score IS NULL OR health_score < ?) AND id > ?", 1, lastID).
			Order("id").
			Limit(batchSize).
			Find(&meals).Error; err != nil {
			return updated, fmt.Errorf("failed to load meals for backfill: %w", err)
		}
		if len(meals) == 0 {
			return updated, nil
		}

		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for i := range meals {
				s := score(meals[i].Totals())
				if err := tx.Model(&domain.Meal{}).Where("id = ?", meals[i].ID).
					Update("health_score", s).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return updated, fmt.Errorf("failed to backfill health scores: %w", err)
		}
		updated += len(meals)
		lastID = meals[len(meals)-1].ID
	}
}

// Ping checks database connectivity.
func (r *MealRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

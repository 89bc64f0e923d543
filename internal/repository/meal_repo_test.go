package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/timmy/nutrilens/internal/config"
	"github.com/timmy/nutrilens/internal/domain"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := InitDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "meals.db"),
		AutoMigrate: true,
		LogLevel:    "silent",
	})
	if err != nil {
		t.Fatalf("InitDB() error = %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func countRows(t *testing.T, db *gorm.DB) (meals, foods int64) {
	t.Helper()
	if err := db.Model(&domain.Meal{}).Count(&meals).Error; err != nil {
		t.Fatalf("count meals: %v", err)
	}
	if err := db.Model(&domain.DetectedFood{}).Count(&foods).Error; err != nil {
		t.Fatalf("count foods: %v", err)
	}
	return meals, foods
}

func newMeal(userID string, consumedAt time.Time) *domain.Meal {
	return &domain.Meal{
		UserID:      userID,
		MealType:    domain.MealTypeLunch,
		Source:      domain.MealSourceText,
		Calories:    500,
		Protein:     15,
		Fat:         7,
		HealthScore: 6.54,
		PortionSize: domain.PortionMedium,
		MealDate:    consumedAt.Format(time.DateOnly),
		ConsumedAt:  consumedAt,
	}
}

func newFoods(names ...string) []domain.DetectedFood {
	foods := make([]domain.DetectedFood, 0, len(names))
	for _, n := range names {
		foods = append(foods, domain.DetectedFood{
			Name:          n,
			Confidence:    0.9,
			PortionAmount: 100,
			PortionUnit:   "g",
			Calories:      100,
			Category:      domain.CategoryMixed,
		})
	}
	return foods
}

func TestCreateWithFoods(t *testing.T) {
	for _, concurrency := range []int{1, 4} {
		db := newTestDB(t)
		repo := NewMealRepository(db, concurrency)
		ctx := context.Background()

		meal := newMeal("user-1", time.Now().UTC())
		if err := repo.CreateWithFoods(ctx, meal, newFoods("rice", "chicken", "salad", "water", "bread")); err != nil {
			t.Fatalf("concurrency %d: CreateWithFoods() error = %v", concurrency, err)
		}
		if meal.ID == "" {
			t.Fatal("expected meal ID to be assigned")
		}

		got, err := repo.GetByID(ctx, "user-1", meal.ID)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if len(got.Foods) != 5 {
			t.Fatalf("got %d foods, want 5", len(got.Foods))
		}
		for i, want := range []string{"rice", "chicken", "salad", "water", "bread"} {
			if got.Foods[i].Name != want || got.Foods[i].MealID != meal.ID {
				t.Errorf("food %d = %q (meal %q), want %q", i, got.Foods[i].Name, got.Foods[i].MealID, want)
			}
		}
	}
}

func TestCreateWithFoodsRollsBackOnFoodFailure(t *testing.T) {
	db := newTestDB(t)
	err := db.Callback().Create().Before("gorm:create").Register("test:fail_food", func(d *gorm.DB) {
		if food, ok := d.Statement.Dest.(*domain.DetectedFood); ok && food.Name == "boom" {
			d.AddError(errors.New("forced insert failure"))
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}
	repo := NewMealRepository(db, 3)

	if m, f := countRows(t, db); m != 0 || f != 0 {
		t.Fatalf("precondition: %d meals, %d foods", m, f)
	}

	err = repo.CreateWithFoods(context.Background(), newMeal("user-1", time.Now()), newFoods("rice", "boom", "salad", "beans"))
	if err == nil {
		t.Fatal("expected error from failing food insert")
	}

	if m, f := countRows(t, db); m != 0 || f != 0 {
		t.Errorf("after failure: %d meals, %d foods persisted, want none", m, f)
	}
}

func TestCreateWithFoodsCanceledContext(t *testing.T) {
	db := newTestDB(t)
	repo := NewMealRepository(db, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := repo.CreateWithFoods(ctx, newMeal("user-1", time.Now()), newFoods("rice")); err == nil {
		t.Fatal("expected error for canceled context")
	}
	if m, f := countRows(t, db); m != 0 || f != 0 {
		t.Errorf("%d meals, %d foods persisted after cancel, want none", m, f)
	}
}

func TestGetByIDOwnership(t *testing.T) {
	db := newTestDB(t)
	repo := NewMealRepository(db, 1)
	ctx := context.Background()

	meal := newMeal("owner", time.Now())
	if err := repo.CreateWithFoods(ctx, meal, newFoods("toast")); err != nil {
		t.Fatalf("CreateWithFoods() error = %v", err)
	}

	if _, err := repo.GetByID(ctx, "someone-else", meal.ID); !errors.Is(err, domain.ErrMealNotFound) {
		t.Errorf("GetByID(other user) error = %v, want ErrMealNotFound", err)
	}
	if _, err := repo.GetByID(ctx, "owner", "missing"); !errors.Is(err, domain.ErrMealNotFound) {
		t.Errorf("GetByID(missing) error = %v, want ErrMealNotFound", err)
	}
}

func TestList(t *testing.T) {
	db := newTestDB(t)
	repo := NewMealRepository(db, 2)
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		if err := repo.CreateWithFoods(ctx, newMeal("user-1", base.Add(time.Duration(i)*24*time.Hour)), newFoods("egg")); err != nil {
			t.Fatalf("CreateWithFoods() error = %v", err)
		}
	}
	if err := repo.CreateWithFoods(ctx, newMeal("user-2", base), newFoods("egg")); err != nil {
		t.Fatalf("CreateWithFoods() error = %v", err)
	}

	meals, total, err := repo.List(ctx, "user-1", domain.MealListFilter{Limit: 2})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 4 || len(meals) != 2 {
		t.Fatalf("List() = %d meals of %d, want 2 of 4", len(meals), total)
	}
	if !meals[0].ConsumedAt.After(meals[1].ConsumedAt) {
		t.Errorf("meals not ordered newest first: %v, %v", meals[0].ConsumedAt, meals[1].ConsumedAt)
	}
	if len(meals[0].Foods) != 1 {
		t.Errorf("expected foods preloaded, got %d", len(meals[0].Foods))
	}

	_, total, err = repo.List(ctx, "user-1", domain.MealListFilter{
		From: base.Add(24 * time.Hour),
		To:   base.Add(3 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("List(window) error = %v", err)
	}
	if total != 2 {
		t.Errorf("List(window) total = %d, want 2", total)
	}
}

func TestUpdateDetailsPreservesHealthScore(t *testing.T) {
	db := newTestDB(t)
	repo := NewMealRepository(db, 1)
	ctx := context.Background()

	meal := newMeal("user-1", time.Now())
	if err := repo.CreateWithFoods(ctx, meal, newFoods("soup")); err != nil {
		t.Fatalf("CreateWithFoods() error = %v", err)
	}

	notes := "extra salt"
	dinner := domain.MealTypeDinner
	got, err := repo.UpdateDetails(ctx, "user-1", meal.ID, &notes, &dinner)
	if err != nil {
		t.Fatalf("UpdateDetails() error = %v", err)
	}
	if got.MealType != domain.MealTypeDinner || got.Notes == nil || *got.Notes != notes {
		t.Errorf("updated meal = type %q notes %v", got.MealType, got.Notes)
	}
	if got.HealthScore != 6.54 {
		t.Errorf("HealthScore = %v, want 6.54 unchanged", got.HealthScore)
	}
	if got.EditedAt == nil {
		t.Error("expected EditedAt to be set")
	}

	empty := ""
	got, err = repo.UpdateDetails(ctx, "user-1", meal.ID, &empty, nil)
	if err != nil {
		t.Fatalf("UpdateDetails(clear) error = %v", err)
	}
	if got.Notes != nil {
		t.Errorf("Notes = %q, want cleared", *got.Notes)
	}
	if got.MealType != domain.MealTypeDinner {
		t.Errorf("MealType = %q, want dinner kept", got.MealType)
	}

	if _, err := repo.UpdateDetails(ctx, "intruder", meal.ID, &notes, nil); !errors.Is(err, domain.ErrMealNotFound) {
		t.Errorf("UpdateDetails(other user) error = %v, want ErrMealNotFound", err)
	}
}

func TestDeleteRemovesFoods(t *testing.T) {
	db := newTestDB(t)
	repo := NewMealRepository(db, 2)
	ctx := context.Background()

	meal := newMeal("user-1", time.Now())
	if err := repo.CreateWithFoods(ctx, meal, newFoods("rice", "beans")); err != nil {
		t.Fatalf("CreateWithFoods() error = %v", err)
	}

	if _, err := repo.Delete(ctx, "user-2", meal.ID); !errors.Is(err, domain.ErrMealNotFound) {
		t.Fatalf("Delete(other user) error = %v, want ErrMealNotFound", err)
	}

	deleted, err := repo.Delete(ctx, "user-1", meal.ID)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if deleted.ID != meal.ID {
		t.Errorf("deleted ID = %q, want %q", deleted.ID, meal.ID)
	}
	if m, f := countRows(t, db); m != 0 || f != 0 {
		t.Errorf("after delete: %d meals, %d foods, want none", m, f)
	}
	if _, err := repo.Delete(ctx, "user-1", meal.ID); !errors.Is(err, domain.ErrMealNotFound) {
		t.Errorf("second Delete() error = %v, want ErrMealNotFound", err)
	}
}

func TestBackfillHealthScores(t *testing.T) {
	db := newTestDB(t)
	repo := NewMealRepository(db, 1)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		meal := newMeal("user-1", time.Now())
		if i < 3 {
			meal.HealthScore = 0
		}
		if err := repo.CreateWithFoods(ctx, meal, nil); err != nil {
			t.Fatalf("CreateWithFoods() error = %v", err)
		}
	}

	calls := 0
	score := func(domain.NutritionTotals) float64 {
		calls++
		return 7
	}

	updated, err := repo.BackfillHealthScores(ctx, 2, score)
	if err != nil {
		t.Fatalf("BackfillHealthScores() error = %v", err)
	}
	if updated != 3 || calls != 3 {
		t.Errorf("updated %d meals with %d score calls, want 3", updated, calls)
	}

	var legacy int64
	db.Model(&domain.Meal{}).Where("health_score < ?", 1).Count(&legacy)
	if legacy != 0 {
		t.Errorf("%d meals still without a score", legacy)
	}

	updated, err = repo.BackfillHealthScores(ctx, 2, score)
	if err != nil || updated != 0 {
		t.Errorf("second run = %d, %v; want 0, nil", updated, err)
	}
}

func TestPing(t *testing.T) {
	repo := NewMealRepository(newTestDB(t), 1)
	if err := repo.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestCountImageReferences(t *testing.T) {
	ctx := context.Background()
	repo := NewMealRepository(newTestDB(t), 1)

	key := "meals/u1/ab/abcdef.jpg"
	for i := 0; i < 2; i++ {
		meal := newMeal("u1", time.Now())
		meal.Source = domain.MealSourceImage
		meal.ImageKey = &key
		if err := repo.CreateWithFoods(ctx, meal, nil); err != nil {
			t.Fatalf("CreateWithFoods() error = %v", err)
		}
	}

	n, err := repo.CountImageReferences(ctx, key)
	if err != nil || n != 2 {
		t.Errorf("CountImageReferences() = %d, %v; want 2", n, err)
	}
	n, err = repo.CountImageReferences(ctx, "meals/other.jpg")
	if err != nil || n != 0 {
		t.Errorf("CountImageReferences(unknown) = %d, %v; want 0", n, err)
	}
}

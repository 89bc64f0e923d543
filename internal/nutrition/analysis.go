package nutrition

import (
	"strings"

	"github.com/timmy/nutrilens/internal/domain"
)

// Analysis is a fully sanitized inference result, safe to persist.
type Analysis struct {
	Foods   []domain.FoodCandidate
	Totals  domain.NutritionTotals
	Context domain.MealContext
	Notes   *string

	// ContextSynthesized is set when the service sent no mealContext and one
	// was built from the estimated score.
	ContextSynthesized bool
}

// SanitizeAnalysis runs every field of raw through the sanitizer and resolves
// the meal type and health score. A non-blank requestedMealType wins over the
// service's estimate; both go through NormalizeMealType.
//
// Totals supplied by the service are trusted but sanitized; when absent they
// are summed from the sanitized foods.
func SanitizeAnalysis(raw *RawAnalysis, requestedMealType string) Analysis {
	if raw == nil {
		raw = &RawAnalysis{}
	}
	foods := SanitizeFoods(raw.FoodList())

	totals := SumTotals(foods)
	if supplied := AsMap(raw.TotalNutrition); hasNumericField(supplied) {
		totals = TotalsFromMap(supplied)
	}

	mealCtx := AsMap(raw.MealContext)
	mealType := strings.TrimSpace(requestedMealType)
	if mealType == "" {
		mealType = asString(mealCtx["estimatedMealType"])
	}

	out := Analysis{
		Foods:  foods,
		Totals: totals,
		Notes:  NotesFrom(raw.Notes),
		Context: domain.MealContext{
			EstimatedMealType: NormalizeMealType(mealType),
			PortionSize:       NormalizePortionSize(asString(mealCtx["portionSize"])),
			HealthScore:       ResolveHealthScore(mealCtx["healthScore"], totals),
		},
	}
	out.ContextSynthesized = mealCtx == nil
	return out
}

func hasNumericField(m map[string]any) bool {
	for _, k := range []string{"calories", "protein", "carbs", "fat", "fiber"} {
		if _, ok := asFloat(m[k]); ok {
			return true
		}
	}
	return false
}

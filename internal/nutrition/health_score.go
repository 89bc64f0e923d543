package nutrition

import (
	"math"

	"github.com/timmy/nutrilens/internal/domain"
)

const (
	MinHealthScore     = 1.0
	MaxHealthScore     = 10.0
	neutralHealthScore = 5.0

	calorieThreshold = 800.0
)

// EstimateHealthScore computes a deterministic 1-10 score from macro totals.
// Protein and fiber are rewarded up to fixed caps, fat and calories above a
// single-meal threshold are penalized up to fixed caps. Nil or non-finite
// totals score a neutral 5.
func EstimateHealthScore(t *domain.NutritionTotals) float64 {
	if t == nil {
		return neutralHealthScore
	}
	fiber := 0.0
	if t.Fiber != nil {
		fiber = *t.Fiber
	}
	calories := float64(t.Calories)
	for _, v := range []float64{t.Protein, t.Fat, fiber, calories} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return neutralHealthScore
		}
	}

	protein := math.Max(0, t.Protein)
	fiber = math.Max(0, fiber)
	fat := math.Max(0, t.Fat)

	proteinScore := math.Min(3, (protein/30)*3)
	fiberScore := math.Min(2, (fiber/10)*2)
	fatPenalty := math.Min(2, (fat/25)*2)
	caloriePenalty := 0.0
	if calories > calorieThreshold {
		caloriePenalty = math.Min(2, ((calories-calorieThreshold)/calorieThreshold)*2)
	}

	score := neutralHealthScore + proteinScore + fiberScore - fatPenalty - caloriePenalty
	return clampScore(score)
}

// ResolveHealthScore trusts a numeric score supplied by the inference service
// (clamped to [1,10]) and falls back to EstimateHealthScore otherwise. The
// result is rounded to the two decimals the column stores.
func ResolveHealthScore(supplied any, totals domain.NutritionTotals) float64 {
	if v, ok := asFloat(supplied); ok {
		return roundScore(clampScore(v))
	}
	return roundScore(EstimateHealthScore(&totals))
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) {
		return neutralHealthScore
	}
	return math.Max(MinHealthScore, math.Min(MaxHealthScore, v))
}

func roundScore(v float64) float64 {
	return math.Round(v*100) / 100
}

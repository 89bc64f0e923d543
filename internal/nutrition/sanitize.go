// Package nutrition holds the pure functions of the meal-ingestion pipeline:
// sanitization of untrusted inference output, health score estimation,
// the pre-inference meal description heuristic and client timestamp parsing.
package nutrition

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/timmy/nutrilens/internal/domain"
)

const (
	// MaxPortionAmount is the ceiling of the decimal(6,2) portion column.
	MaxPortionAmount = 9999.99
	// MaxNutrientGrams is the ceiling of the decimal(7,2) macro columns.
	MaxNutrientGrams = 99999.99
	// MaxCalories bounds the calorie columns.
	MaxCalories = 99999
	// MaxFoodNameLength bounds stored food names (in runes).
	MaxFoodNameLength = 200

	defaultFoodName    = "unknown food"
	defaultPortionUnit = "serving"
)

// RawAnalysis is the loosely-typed decode of an inference response.
// Nothing in it may be persisted before passing through this package.
type RawAnalysis struct {
	Foods          []RawFood `json:"foods"`
	DetectedFoods  []RawFood `json:"detectedFoods"`
	TotalNutrition any       `json:"totalNutrition"`
	MealContext    any       `json:"mealContext"`
	Notes          any       `json:"notes"`
}

// RawFood is one untrusted food candidate. Every field is decoded as any so a
// wrongly-typed value degrades to a default instead of failing the decode.
type RawFood struct {
	Name       any `json:"name"`
	Confidence any `json:"confidence"`
	Portion    any `json:"portion"`
	Nutrition  any `json:"nutrition"`
	Category   any `json:"category"`
}

// FoodList returns whichever food list the service populated.
func (r *RawAnalysis) FoodList() []RawFood {
	if r == nil {
		return nil
	}
	if len(r.Foods) > 0 {
		return r.Foods
	}
	return r.DetectedFoods
}

// ClampConfidence clamps v into [0,1]. NaN becomes 0.
func ClampConfidence(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// ClampPortionAmount clamps v into [0, MaxPortionAmount] at two-decimal precision.
func ClampPortionAmount(v float64) float64 {
	return clampDecimal(v, MaxPortionAmount)
}

func clampDecimal(v, ceiling float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Max(0, math.Min(ceiling, v))
	return math.Min(ceiling, math.Round(v*100)/100)
}

func clampCalories(v float64) int {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= MaxCalories {
		return MaxCalories
	}
	return int(math.Round(v))
}

var categorySynonyms = map[string]domain.FoodCategory{
	"protein":       domain.CategoryProtein,
	"proteins":      domain.CategoryProtein,
	"meat":          domain.CategoryProtein,
	"carb":          domain.CategoryCarb,
	"carbs":         domain.CategoryCarb,
	"carbohydrate":  domain.CategoryCarb,
	"carbohydrates": domain.CategoryCarb,
	"grain":         domain.CategoryCarb,
	"grains":        domain.CategoryCarb,
	"vegetable":     domain.CategoryVegetable,
	"vegetables":    domain.CategoryVegetable,
	"veggie":        domain.CategoryVegetable,
	"veggies":       domain.CategoryVegetable,
	"fruit":         domain.CategoryFruit,
	"fruits":        domain.CategoryFruit,
	"dairy":         domain.CategoryDairy,
	"fat":           domain.CategoryFat,
	"fats":          domain.CategoryFat,
	"mixed":         domain.CategoryMixed,
}

// NormalizeCategory maps s onto the closed category set. Anything
// unrecognized, including the empty string, is "mixed".
func NormalizeCategory(s string) domain.FoodCategory {
	if c, ok := categorySynonyms[strings.ToLower(strings.TrimSpace(s))]; ok {
		return c
	}
	return domain.CategoryMixed
}

var mealTypeSynonyms = map[string]domain.MealType{
	"breakfast": domain.MealTypeBreakfast,
	"desayuno":  domain.MealTypeBreakfast,
	"lunch":     domain.MealTypeLunch,
	"almuerzo":  domain.MealTypeLunch,
	"comida":    domain.MealTypeLunch,
	"dinner":    domain.MealTypeDinner,
	"supper":    domain.MealTypeDinner,
	"cena":      domain.MealTypeDinner,
	"snack":     domain.MealTypeSnack,
	"snacks":    domain.MealTypeSnack,
	"merienda":  domain.MealTypeSnack,
}

// NormalizeMealType maps informal and multilingual meal names onto the
// canonical enum, defaulting to snack. Every write path goes through here.
func NormalizeMealType(s string) domain.MealType {
	if t, ok := mealTypeSynonyms[strings.ToLower(strings.TrimSpace(s))]; ok {
		return t
	}
	return domain.MealTypeSnack
}

// NormalizePortionSize maps s onto small/medium/large, defaulting to medium.
func NormalizePortionSize(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "small", "pequeño", "pequeno", "pequeña":
		return domain.PortionSmall
	case "large", "big", "grande":
		return domain.PortionLarge
	default:
		return domain.PortionMedium
	}
}

// SanitizeTotals clamps every component of t into storage-legal ranges.
func SanitizeTotals(t domain.NutritionTotals) domain.NutritionTotals {
	out := domain.NutritionTotals{
		Calories: clampCalories(float64(t.Calories)),
		Protein:  clampDecimal(t.Protein, MaxNutrientGrams),
		Carbs:    clampDecimal(t.Carbs, MaxNutrientGrams),
		Fat:      clampDecimal(t.Fat, MaxNutrientGrams),
	}
	if t.Fiber != nil {
		f := clampDecimal(*t.Fiber, MaxNutrientGrams)
		out.Fiber = &f
	}
	return out
}

// SanitizeFood converts one untrusted candidate into a storage-safe value.
func SanitizeFood(raw RawFood) domain.FoodCandidate {
	name := strings.TrimSpace(asString(raw.Name))
	if name == "" {
		name = defaultFoodName
	}
	if r := []rune(name); len(r) > MaxFoodNameLength {
		name = string(r[:MaxFoodNameLength])
	}

	conf, _ := asFloat(raw.Confidence)
	portion := AsMap(raw.Portion)
	amount, ok := asFloat(portion["amount"])
	if !ok {
		amount, _ = asFloat(raw.Portion)
	}
	unit := strings.TrimSpace(asString(portion["unit"]))
	if unit == "" {
		unit = defaultPortionUnit
	}

	return domain.FoodCandidate{
		Name:       name,
		Confidence: ClampConfidence(conf),
		Portion:    domain.Portion{Amount: ClampPortionAmount(amount), Unit: unit},
		Nutrition:  TotalsFromMap(AsMap(raw.Nutrition)),
		Category:   NormalizeCategory(asString(raw.Category)),
	}
}

// SanitizeFoods sanitizes every candidate, preserving order.
func SanitizeFoods(raw []RawFood) []domain.FoodCandidate {
	out := make([]domain.FoodCandidate, 0, len(raw))
	for _, f := range raw {
		out = append(out, SanitizeFood(f))
	}
	return out
}

// TotalsFromMap reads a loosely-typed nutrition object and sanitizes it.
// Missing or non-numeric components are 0; fiber stays nil when absent.
func TotalsFromMap(m map[string]any) domain.NutritionTotals {
	cal, _ := asFloat(m["calories"])
	protein, _ := asFloat(m["protein"])
	carbs, _ := asFloat(m["carbs"])
	fat, _ := asFloat(m["fat"])

	t := domain.NutritionTotals{
		Calories: clampCalories(cal),
		Protein:  clampDecimal(protein, MaxNutrientGrams),
		Carbs:    clampDecimal(carbs, MaxNutrientGrams),
		Fat:      clampDecimal(fat, MaxNutrientGrams),
	}
	if fiber, ok := asFloat(m["fiber"]); ok {
		f := clampDecimal(fiber, MaxNutrientGrams)
		t.Fiber = &f
	}
	return t
}

// SumTotals adds up the nutrition of sanitized foods. Fiber is nil unless at
// least one food reported it.
func SumTotals(foods []domain.FoodCandidate) domain.NutritionTotals {
	var t domain.NutritionTotals
	var fiber float64
	hasFiber := false
	for _, f := range foods {
		t.Calories += f.Nutrition.Calories
		t.Protein += f.Nutrition.Protein
		t.Carbs += f.Nutrition.Carbs
		t.Fat += f.Nutrition.Fat
		if f.Nutrition.Fiber != nil {
			fiber += *f.Nutrition.Fiber
			hasFiber = true
		}
	}
	if hasFiber {
		t.Fiber = &fiber
	}
	return SanitizeTotals(t)
}

// NotesFrom returns trimmed notes or nil when absent or blank.
func NotesFrom(v any) *string {
	s := strings.TrimSpace(asString(v))
	if s == "" {
		return nil
	}
	return &s
}

// AsMap returns v as a JSON object, or nil when it is anything else.
func AsMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case nil:
		return ""
	default:
		return ""
	}
}

// asFloat reads a finite number from a decoded JSON value. Numeric strings
// count as numbers.
func asFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

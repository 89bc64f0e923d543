package domain

// FoodCategory is the closed set of categories a detected food may carry.
type FoodCategory string

const (
	CategoryProtein   FoodCategory = "protein"
	CategoryCarb      FoodCategory = "carb"
	CategoryVegetable FoodCategory = "vegetable"
	CategoryFruit     FoodCategory = "fruit"
	CategoryDairy     FoodCategory = "dairy"
	CategoryFat       FoodCategory = "fat"
	CategoryMixed     FoodCategory = "mixed"
)

// FoodCategories lists every valid FoodCategory.
var FoodCategories = []FoodCategory{
	CategoryProtein,
	CategoryCarb,
	CategoryVegetable,
	CategoryFruit,
	CategoryDairy,
	CategoryFat,
	CategoryMixed,
}

// PortionSize values used in the meal context.
const (
	PortionSmall  = "small"
	PortionMedium = "medium"
	PortionLarge  = "large"
)

// NutritionTotals holds macro values for a food or a whole meal.
// Fiber is optional and nil when unknown.
type NutritionTotals struct {
	Calories int      `json:"calories"`
	Protein  float64  `json:"protein"`
	Carbs    float64  `json:"carbs"`
	Fat      float64  `json:"fat"`
	Fiber    *float64 `json:"fiber,omitempty"`
}

// Portion is an amount plus a free-text unit ("g", "cup", "slice").
type Portion struct {
	Amount float64 `json:"amount"`
	Unit   string  `json:"unit"`
}

// FoodCandidate is a sanitized food item ready for persistence.
type FoodCandidate struct {
	Name       string          `json:"name"`
	Confidence float64         `json:"confidence"`
	Portion    Portion         `json:"portion"`
	Nutrition  NutritionTotals `json:"nutrition"`
	Category   FoodCategory    `json:"category"`
}

// MealContext describes the meal as a whole.
type MealContext struct {
	EstimatedMealType MealType `json:"estimatedMealType"`
	PortionSize       string   `json:"portionSize"`
	HealthScore       float64  `json:"healthScore"`
}

package domain

import "time"

// ImageAnalysisRequest is the image ingestion input. TempPath points at an
// uploaded file that the ingestion pipeline takes ownership of and removes.
type ImageAnalysisRequest struct {
	UserID    string
	TempPath  string
	MealType  string
	Timestamp string
}

// TextAnalysisRequest is the text ingestion input.
type TextAnalysisRequest struct {
	UserID      string
	Description string
	MealType    string
	Timestamp   string
}

// DetectedFoodDTO is a detected food as returned to clients.
type DetectedFoodDTO struct {
	Name       string          `json:"name"`
	Confidence float64         `json:"confidence"`
	Portion    Portion         `json:"portion"`
	Nutrition  NutritionTotals `json:"nutrition"`
	Category   FoodCategory    `json:"category"`
}

// MealAnalysisResponse is the normalized response of both ingestion paths.
type MealAnalysisResponse struct {
	MealID         string            `json:"mealId"`
	DetectedFoods  []DetectedFoodDTO `json:"detectedFoods"`
	TotalNutrition NutritionTotals   `json:"totalNutrition"`
	ImageURL       *string           `json:"imageUrl"`
	Timestamp      string            `json:"timestamp"`
	MealContext    MealContext       `json:"mealContext"`
	Notes          *string           `json:"notes"`
}

// MealUpdate carries the editable fields of a meal. Nil means unchanged.
type MealUpdate struct {
	Notes    *string
	MealType *string
}

// MealListFilter narrows ListMeals. Zero times are open bounds.
type MealListFilter struct {
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// FoodsToDTO converts persisted foods to their response shape.
func FoodsToDTO(foods []DetectedFood) []DetectedFoodDTO {
	out := make([]DetectedFoodDTO, 0, len(foods))
	for _, f := range foods {
		out = append(out, DetectedFoodDTO{
			Name:       f.Name,
			Confidence: f.Confidence,
			Portion:    Portion{Amount: f.PortionAmount, Unit: f.PortionUnit},
			Nutrition: NutritionTotals{
				Calories: f.Calories,
				Protein:  f.Protein,
				Carbs:    f.Carbs,
				Fat:      f.Fat,
				Fiber:    f.Fiber,
			},
			Category: f.Category,
		})
	}
	return out
}

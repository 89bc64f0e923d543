package prompts

import (
	"fmt"
	"strings"
)

// ============================================================================
// Shared Vocabulary
// ============================================================================

// FoodCategories is the closed category set the model must choose from.
var FoodCategories = []string{"protein", "carb", "vegetable", "fruit", "dairy", "fat", "mixed"}

// MealTypes is the closed meal-type set the model must choose from.
var MealTypes = []string{"breakfast", "lunch", "dinner", "snack"}

// responseContract is the JSON shape both analysis prompts ask for.
var responseContract = fmt.Sprintf(`{
  "foods": [
    {
      "name": "string",
      "confidence": 0.0,
      "portion": {"amount": 0.0, "unit": "g | ml | cup | slice | piece | serving"},
      "nutrition": {"calories": 0, "protein": 0.0, "carbs": 0.0, "fat": 0.0, "fiber": 0.0},
      "category": "%s"
    }
  ],
  "totalNutrition": {"calories": 0, "protein": 0.0, "carbs": 0.0, "fat": 0.0, "fiber": 0.0},
  "mealContext": {
    "estimatedMealType": "%s",
    "portionSize": "small | medium | large",
    "healthScore": 0.0
  },
  "notes": "string or null"
}`, strings.Join(FoodCategories, " | "), strings.Join(MealTypes, " | "))

// ============================================================================
// Meal Analysis Prompts
// ============================================================================

// AnalysisSystemPrompt defines the role and output rules for meal analysis.
var AnalysisSystemPrompt = `You are a registered dietitian estimating the nutrition of a single meal.

Rules:
- Answer with exactly one JSON object and nothing else: no markdown fences, no prose.
- List every distinct food or drink as its own entry in "foods".
- Estimate portions from visual or textual cues; use grams or millilitres when you can.
- Nutrition values are for the estimated portion, not per 100 g. Calories are whole kcal, macros are grams.
- "confidence" is your certainty between 0 and 1 that the item is present and correctly identified.
- "totalNutrition" is the sum of the foods.
- "healthScore" rates the meal's macro balance from 1 (poor) to 10 (excellent).
- If there is no food or drink at all, return {"foods": []}.

Output format:
` + responseContract

// ImageUserPrompt accompanies the meal photo.
const ImageUserPrompt = `Identify the foods in this photo and estimate their nutrition.`

// TextUserPrompt builds the user message for a free-text meal description.
func TextUserPrompt(description string) string {
	return fmt.Sprintf("Estimate the nutrition of this meal description:\n\n%s", description)
}

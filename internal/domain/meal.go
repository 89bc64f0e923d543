package domain

import (
	"time"
)

// MealType is the canonical meal slot a meal was eaten in.
type MealType string

const (
	MealTypeBreakfast MealType = "breakfast"
	MealTypeLunch     MealType = "lunch"
	MealTypeDinner    MealType = "dinner"
	MealTypeSnack     MealType = "snack"
)

// MealSource records which ingestion path produced a meal.
type MealSource string

const (
	MealSourceImage MealSource = "image"
	MealSourceText  MealSource = "text"
)

// Meal is the persisted parent record of one consumption event.
// Foods are created in the same transaction as the meal and removed with it.
type Meal struct {
	ID          string     `gorm:"type:text;primaryKey" json:"id"`
	UserID      string     `gorm:"type:text;not null;index:idx_meals_user_date" json:"userId"`
	MealType    MealType   `gorm:"type:text;not null" json:"mealType"`
	Source      MealSource `gorm:"type:text;not null" json:"source"`
	Description *string    `gorm:"type:text" json:"description,omitempty"`

	ImageURL    *string `gorm:"type:text" json:"imageUrl"`
	ImageKey    *string `gorm:"type:text" json:"-"`
	ImageWidth  int     `json:"imageWidth,omitempty"`
	ImageHeight int     `json:"imageHeight,omitempty"`

	Calories int      `gorm:"not null;default:0" json:"calories"`
	Protein  float64  `gorm:"type:decimal(7,2);not null;default:0" json:"protein"`
	Carbs    float64  `gorm:"type:decimal(7,2);not null;default:0" json:"carbs"`
	Fat      float64  `gorm:"type:decimal(7,2);not null;default:0" json:"fat"`
	Fiber    *float64 `gorm:"type:decimal(7,2)" json:"fiber,omitempty"`

	HealthScore float64 `gorm:"type:decimal(4,2);not null" json:"healthScore"`
	PortionSize string  `gorm:"type:text;not null;default:medium" json:"portionSize"`

	MealDate   string    `gorm:"type:text;not null;index:idx_meals_user_date" json:"mealDate"`
	ConsumedAt time.Time `gorm:"not null" json:"consumedAt"`
	Notes      *string   `gorm:"type:text" json:"notes,omitempty"`

	CreatedAt time.Time  `json:"createdAt"`
	EditedAt  *time.Time `json:"editedAt,omitempty"`

	Foods []DetectedFood `gorm:"foreignKey:MealID;constraint:OnDelete:CASCADE" json:"foods,omitempty"`
}

// TableName returns the database table name for Meal.
func (Meal) TableName() string {
	return "meals"
}

// Totals returns the meal's aggregate nutrition as a NutritionTotals value.
func (m *Meal) Totals() NutritionTotals {
	return NutritionTotals{
		Calories: m.Calories,
		Protein:  m.Protein,
		Carbs:    m.Carbs,
		Fat:      m.Fat,
		Fiber:    m.Fiber,
	}
}

// DetectedFood is one item identified inside a meal. All values are stored
// post-sanitization.
type DetectedFood struct {
	ID            string       `gorm:"type:text;primaryKey" json:"id"`
	MealID        string       `gorm:"type:text;not null;index:idx_detected_foods_meal" json:"mealId"`
	Position      int          `gorm:"not null;default:0" json:"-"`
	Name          string       `gorm:"type:text;not null" json:"name"`
	Confidence    float64      `gorm:"type:decimal(3,2);not null" json:"confidence"`
	PortionAmount float64      `gorm:"type:decimal(6,2);not null" json:"portionAmount"`
	PortionUnit   string       `gorm:"type:text;not null" json:"portionUnit"`
	Calories      int          `gorm:"not null;default:0" json:"calories"`
	Protein       float64      `gorm:"type:decimal(7,2);not null;default:0" json:"protein"`
	Carbs         float64      `gorm:"type:decimal(7,2);not null;default:0" json:"carbs"`
	Fat           float64      `gorm:"type:decimal(7,2);not null;default:0" json:"fat"`
	Fiber         *float64     `gorm:"type:decimal(7,2)" json:"fiber,omitempty"`
	Category      FoodCategory `gorm:"type:text;not null;default:mixed" json:"category"`
	CreatedAt     time.Time    `json:"createdAt"`
}

// TableName returns the database table name for DetectedFood.
func (DetectedFood) TableName() string {
	return "detected_foods"
}

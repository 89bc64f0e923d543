package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/nutrilens/internal/api/handler"
	"github.com/timmy/nutrilens/internal/api/middleware"
)

// RouterConfig wires the router's dependencies.
type RouterConfig struct {
	Mode string
	CORS middleware.CORSConfig
	Auth middleware.AuthConfig
	// Admin guards the admin routes; they are only registered when it is configured.
	Admin middleware.AdminConfig

	Ingest handler.MealIngester
	Meals  handler.MealReader
	DB     handler.Pinger
	Upload handler.MealHandlerConfig

	// Importer, when set, exposes the bulk import admin routes.
	Importer handler.MealImporter
	Sources  handler.SourceResolver

	// LocalImageDir, when set, is served at LocalImageURL for local storage.
	LocalImageDir string
	LocalImageURL string
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(cfg RouterConfig) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}
	handler.UseJSONFieldNames()

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORS(cfg.CORS))

	healthHandler := handler.NewHealthHandler(cfg.DB)
	mealHandler := handler.NewMealHandler(cfg.Ingest, cfg.Meals, cfg.Upload)

	r.GET("/health", healthHandler.Health)

	if cfg.LocalImageDir != "" && cfg.LocalImageURL != "" {
		r.Static(cfg.LocalImageURL, cfg.LocalImageDir)
	}

	v1 := r.Group("/api/v1")
	v1.Use(middleware.Auth(cfg.Auth))
	{
		// Ingestion
		v1.POST("/meals/analyze-image", mealHandler.AnalyzeImage)
		v1.POST("/meals/analyze-text", mealHandler.AnalyzeText)

		// Meals
		v1.GET("/meals", mealHandler.ListMeals)
		v1.GET("/meals/:id", mealHandler.GetMeal)
		v1.PATCH("/meals/:id", mealHandler.UpdateMeal)
		v1.DELETE("/meals/:id", mealHandler.DeleteMeal)

		// Admin
		if cfg.Importer != nil && cfg.Sources != nil && cfg.Admin.Configured() {
			adminHandler := handler.NewAdminHandler(cfg.Importer, cfg.Sources)
			admin := v1.Group("/admin")
			admin.Use(middleware.RequireAdmin(cfg.Admin))
			admin.POST("/imports", adminHandler.TriggerImport)
			admin.GET("/imports/status", adminHandler.GetImportStatus)
		}
	}

	return r
}

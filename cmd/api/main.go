package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/nutrilens/internal/api"
	"github.com/timmy/nutrilens/internal/api/handler"
	"github.com/timmy/nutrilens/internal/api/middleware"
	"github.com/timmy/nutrilens/internal/config"
	"github.com/timmy/nutrilens/internal/logger"
	"github.com/timmy/nutrilens/internal/repository"
	"github.com/timmy/nutrilens/internal/service"
	"github.com/timmy/nutrilens/internal/source"
	"github.com/timmy/nutrilens/internal/source/staging"
	"github.com/timmy/nutrilens/internal/storage"
)

func main() {
	appLogger := logger.New(logger.ConfigFromEnv())
	logger.SetDefault(appLogger)
	defer logger.Sync()

	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	mealRepo := repository.NewMealRepository(db, cfg.Database.InsertConcurrency)

	ctx := context.Background()

	// Initialize storage (local, S3, R2 or any S3-compatible endpoint)
	objectStorage, err := storage.NewStorage(&cfg.Storage)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize storage")
	}

	var localImageDir, localImageURL string
	switch s := objectStorage.(type) {
	case *storage.S3Storage:
		if err := s.EnsureBucket(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
		}
	case *storage.LocalStorage:
		localImageDir, localImageURL = s.Root(), s.PublicURL()
	}

	// Initialize services
	images := service.NewImageStore(objectStorage, cfg.Storage.Prefix, cfg.Ingest.MaxImageBytes)
	inference := service.NewInferenceService(&cfg.Inference)
	ingestService := service.NewMealIngestService(mealRepo, images, inference, &service.MealIngestConfig{
		Location: cfg.Ingest.Location(),
	})
	mealService := service.NewMealService(mealRepo, images)
	importService := service.NewImportService(ingestService, &service.ImportConfig{
		Workers:   cfg.Ingest.Workers,
		BatchSize: cfg.Ingest.BatchSize,
		TempDir:   cfg.Ingest.UploadDir,
	})

	appLogger.WithFields(logger.Fields{
		"model":    inference.GetModel(),
		"storage":  fmt.Sprintf("%T", objectStorage),
		"timezone": cfg.Ingest.Location().String(),
	}).Info("Services initialized")

	if cfg.Ingest.UploadDir != "" {
		if err := os.MkdirAll(cfg.Ingest.UploadDir, 0o755); err != nil {
			appLogger.WithError(err).Fatal("Failed to create upload directory")
		}
	}

	// Setup router
	router := api.SetupRouter(api.RouterConfig{
		Mode: cfg.Server.Mode,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
		Auth: middleware.AuthConfig{
			Enabled:       cfg.Auth.Enabled,
			Secret:        cfg.Auth.JWTSecret,
			Issuer:        cfg.Auth.Issuer,
			DefaultUserID: cfg.Auth.DefaultUserID,
		},
		Admin: middleware.AdminConfig{
			Role:  cfg.Auth.AdminRole,
			Token: cfg.Auth.AdminToken,
		},
		Ingest: ingestService,
		Meals:  mealService,
		DB:     mealService,
		Upload: handler.MealHandlerConfig{
			UploadDir:     cfg.Ingest.UploadDir,
			MaxImageBytes: cfg.Ingest.MaxImageBytes,
		},
		Importer:      importService,
		Sources:       stagingSources(cfg),
		LocalImageDir: localImageDir,
		LocalImageURL: localImageURL,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout; in-flight ingestions finish their
	// commit or rollback before the process exits.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	appLogger.Info("Server exited")
}

// stagingSources resolves import requests to staging directories that exist
// under sources.staging.base_path at request time.
func stagingSources(cfg *config.Config) handler.SourceResolver {
	basePath := cfg.Sources.Staging.BasePath
	if basePath == "" {
		return nil
	}
	return func(id string) (source.Source, bool) {
		available, err := staging.ListStagingSources(basePath)
		if err != nil {
			return nil, false
		}
		for _, name := range available {
			if name == id {
				return staging.NewAdapter(basePath, id, cfg.Auth.DefaultUserID), true
			}
		}
		return nil, false
	}
}

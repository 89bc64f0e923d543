package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/timmy/nutrilens/internal/config"
	"github.com/timmy/nutrilens/internal/domain"
	"github.com/timmy/nutrilens/internal/logger"
	"github.com/timmy/nutrilens/internal/repository"
	"github.com/timmy/nutrilens/internal/service"
	"github.com/timmy/nutrilens/internal/source/staging"
	"github.com/timmy/nutrilens/internal/storage"
)

func main() {
	// Initialize logger first (with defaults)
	logCfg := logger.ConfigFromEnv()
	logCfg.ServiceName = "nutrilens-ingest"
	appLogger := logger.New(logCfg)
	logger.SetDefault(appLogger)
	defer logger.Sync()

	// Parse command line flags
	sourceID := flag.String("source", "", "Staging source to import (directory under sources.staging.base_path)")
	limit := flag.Int("limit", 100, "Maximum number of staged items to import (0 = all)")
	text := flag.String("text", "", "Analyze a single meal description")
	imagePath := flag.String("image", "", "Analyze a single meal photo")
	userID := flag.String("user", "", "Owner of single-meal analyses (defaults to auth.default_user_id)")
	mealType := flag.String("meal-type", "", "Meal type hint for single-meal analyses")
	timestamp := flag.String("timestamp", "", "Consumption time for single-meal analyses")
	backfill := flag.Bool("backfill", false, "Recompute health scores for meals missing one")
	listSources := flag.Bool("list-sources", false, "List available staging sources")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	if *listSources {
		sources, err := staging.ListStagingSources(cfg.Sources.Staging.BasePath)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to list staging sources")
		}
		for _, s := range sources {
			fmt.Println(s)
		}
		return
	}

	owner := *userID
	if owner == "" {
		owner = cfg.Auth.DefaultUserID
	}

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	mealRepo := repository.NewMealRepository(db, cfg.Database.InsertConcurrency)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	objectStorage, err := storage.NewStorage(&cfg.Storage)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize storage")
	}
	if s3, ok := objectStorage.(*storage.S3Storage); ok {
		if err := s3.EnsureBucket(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
		}
	}

	// Initialize services
	images := service.NewImageStore(objectStorage, cfg.Storage.Prefix, cfg.Ingest.MaxImageBytes)
	ingestService := service.NewMealIngestService(mealRepo, images, service.NewInferenceService(&cfg.Inference), &service.MealIngestConfig{
		Location: cfg.Ingest.Location(),
	})
	mealService := service.NewMealService(mealRepo, images)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	switch {
	case *backfill:
		updated, err := mealService.BackfillHealthScores(ctx, cfg.Ingest.BatchSize)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to backfill health scores")
		}
		appLogger.WithField("updated", updated).Info("Backfill completed")

	case *text != "":
		result, err := ingestService.IngestText(ctx, domain.TextAnalysisRequest{
			UserID:      owner,
			Description: *text,
			MealType:    *mealType,
			Timestamp:   *timestamp,
		})
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to analyze meal description")
		}
		printJSON(result)

	case *imagePath != "":
		// The pipeline consumes its input file, so hand it a copy.
		tempPath, err := copyToTemp(*imagePath, cfg.Ingest.UploadDir)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to stage image")
		}
		result, err := ingestService.IngestImage(ctx, domain.ImageAnalysisRequest{
			UserID:    owner,
			TempPath:  tempPath,
			MealType:  *mealType,
			Timestamp: *timestamp,
		})
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to analyze meal photo")
		}
		printJSON(result)

	case *sourceID != "":
		importer := service.NewImportService(ingestService, &service.ImportConfig{
			Workers:   cfg.Ingest.Workers,
			BatchSize: cfg.Ingest.BatchSize,
			TempDir:   cfg.Ingest.UploadDir,
		})
		src := staging.NewAdapter(cfg.Sources.Staging.BasePath, *sourceID, cfg.Auth.DefaultUserID)

		appLogger.WithFields(logger.Fields{
			"source": src.GetSourceID(),
			"limit":  *limit,
		}).Info("Starting import")

		stats, err := importer.ImportFromSource(ctx, src, *limit)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to import from source")
		}
		appLogger.WithFields(logger.Fields{
			"total":     stats.TotalItems,
			"processed": stats.ProcessedItems,
			"imported":  stats.ImportedItems,
			"rejected":  stats.RejectedItems,
			"failed":    stats.FailedItems,
			"duration":  stats.EndTime.Sub(stats.StartTime).String(),
		}).Info("Import completed")

	default:
		flag.Usage()
		os.Exit(2)
	}
}

func copyToTemp(path, dir string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}
	dst, err := os.CreateTemp(dir, "cli-*"+filepath.Ext(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

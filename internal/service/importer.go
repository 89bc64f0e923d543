package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/timmy/nutrilens/internal/domain"
	"github.com/timmy/nutrilens/internal/logger"
	"github.com/timmy/nutrilens/internal/source"
)

// mealIngester is the part of MealIngestService the importer drives.
type mealIngester interface {
	IngestImage(ctx context.Context, req domain.ImageAnalysisRequest) (*domain.MealAnalysisResponse, error)
	IngestText(ctx context.Context, req domain.TextAnalysisRequest) (*domain.MealAnalysisResponse, error)
}

// ImportService replays staged meals through the ingestion pipeline with a
// bounded worker pool.
type ImportService struct {
	ingest    mealIngester
	workers   int
	batchSize int
	tempDir   string
}

// ImportConfig holds configuration for the import service
type ImportConfig struct {
	Workers   int
	BatchSize int
	// TempDir receives per-item copies of staged photos; empty uses os.TempDir.
	TempDir string
}

// NewImportService creates a new import service
func NewImportService(ingest *MealIngestService, cfg *ImportConfig) *ImportService {
	return newImportService(ingest, cfg)
}

func newImportService(ingest mealIngester, cfg *ImportConfig) *ImportService {
	workers, batchSize := 1, 50
	tempDir := ""
	if cfg != nil {
		if cfg.Workers > 0 {
			workers = cfg.Workers
		}
		if cfg.BatchSize > 0 {
			batchSize = cfg.BatchSize
		}
		tempDir = cfg.TempDir
	}
	return &ImportService{ingest: ingest, workers: workers, batchSize: batchSize, tempDir: tempDir}
}

// ImportStats holds statistics for an import run
type ImportStats struct {
	TotalItems     int64 `json:"totalItems"`
	ProcessedItems int64 `json:"processedItems"`
	ImportedItems  int64 `json:"importedItems"`
	// RejectedItems were refused by validation or detection and will not
	// succeed on retry.
	RejectedItems int64     `json:"rejectedItems"`
	FailedItems   int64     `json:"failedItems"`
	StartTime     time.Time `json:"startTime"`
	EndTime       time.Time `json:"endTime"`
}

type importResult struct {
	sourceID string
	mealID   string
	err      error
}

// ImportFromSource ingests up to limit staged meals from src.
// Parameters:
//   - ctx: context for cancellation; in-flight items finish, queued ones are dropped.
//   - src: staged meal source.
//   - limit: maximum number of items; values <= 0 import everything.
//
// Returns:
//   - *ImportStats: counters for the run.
//   - error: non-nil only if the source could not be read at all.
func (s *ImportService) ImportFromSource(ctx context.Context, src source.Source, limit int) (*ImportStats, error) {
	ctx = logger.SetComponent(ctx, "importer")
	stats := &ImportStats{StartTime: time.Now()}

	logger.FromContext(ctx).WithFields(logger.Fields{
		"source":  src.GetSourceID(),
		"limit":   limit,
		"workers": s.workers,
	}).Info("Starting import")

	itemsChan := make(chan source.MealItem, s.workers*2)
	resultsChan := make(chan *importResult, s.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx, itemsChan, resultsChan)
		}()
	}

	done := make(chan struct{})
	go func() {
		for result := range resultsChan {
			atomic.AddInt64(&stats.ProcessedItems, 1)
			s.record(ctx, stats, result)
		}
		close(done)
	}()

	fetchErr := s.feed(ctx, src, limit, stats, itemsChan)

	close(itemsChan)
	wg.Wait()
	close(resultsChan)
	<-done

	stats.EndTime = time.Now()

	logger.With(logger.Fields{
		"total":     stats.TotalItems,
		"processed": stats.ProcessedItems,
		"imported":  stats.ImportedItems,
		"rejected":  stats.RejectedItems,
		"failed":    stats.FailedItems,
	}).WithDuration(stats.StartTime).Info(ctx, "Import completed")

	if fetchErr != nil && stats.TotalItems == 0 {
		return stats, fetchErr
	}
	return stats, nil
}

// feed pages through src and queues items until limit, exhaustion or
// cancellation.
func (s *ImportService) feed(ctx context.Context, src source.Source, limit int, stats *ImportStats, items chan<- source.MealItem) error {
	cursor := ""
	fetched := 0
	for ctx.Err() == nil {
		batchLimit := s.batchSize
		if limit > 0 {
			remaining := limit - fetched
			if remaining <= 0 {
				return nil
			}
			if batchLimit > remaining {
				batchLimit = remaining
			}
		}

		batch, next, err := src.FetchBatch(ctx, cursor, batchLimit)
		if err != nil {
			logger.FromContext(ctx).WithError(err).Error("Failed to fetch batch")
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		atomic.AddInt64(&stats.TotalItems, int64(len(batch)))
		fetched += len(batch)

		for _, item := range batch {
			select {
			case items <- item:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if next == "" {
			return nil
		}
		cursor = next
	}
	return ctx.Err()
}

func (s *ImportService) worker(ctx context.Context, items <-chan source.MealItem, results chan<- *importResult) {
	for item := range items {
		if ctx.Err() != nil {
			return
		}
		result := &importResult{sourceID: item.SourceID}
		resp, err := s.importItem(ctx, &item)
		if err != nil {
			result.err = err
		} else {
			result.mealID = resp.MealID
		}
		results <- result
	}
}

func (s *ImportService) importItem(ctx context.Context, item *source.MealItem) (*domain.MealAnalysisResponse, error) {
	ctx = logger.WithField(ctx, "source_id", item.SourceID)

	if !item.IsImage() {
		return s.ingest.IngestText(ctx, domain.TextAnalysisRequest{
			UserID:      item.UserID,
			Description: item.Description,
			MealType:    item.MealType,
			Timestamp:   item.Timestamp,
		})
	}

	// IngestImage removes its input, so it gets a copy of the staged photo.
	tempPath, err := s.copyToTemp(item.LocalPath)
	if err != nil {
		return nil, err
	}
	return s.ingest.IngestImage(ctx, domain.ImageAnalysisRequest{
		UserID:    item.UserID,
		TempPath:  tempPath,
		MealType:  item.MealType,
		Timestamp: item.Timestamp,
	})
}

func (s *ImportService) copyToTemp(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open staged photo: %w", err)
	}
	defer src.Close()

	dst, err := os.CreateTemp(s.tempDir, "import-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", fmt.Errorf("failed to copy staged photo: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", fmt.Errorf("failed to copy staged photo: %w", err)
	}
	return dst.Name(), nil
}

func (s *ImportService) record(ctx context.Context, stats *ImportStats, result *importResult) {
	log := logger.FromContext(ctx).WithField("source_id", result.sourceID)
	if result.err == nil {
		atomic.AddInt64(&stats.ImportedItems, 1)
		log.WithField(logger.FieldMealID, result.mealID).Debug("Imported item")
		return
	}

	var ie *domain.IngestError
	if errors.As(result.err, &ie) && ie.Status() < 500 {
		atomic.AddInt64(&stats.RejectedItems, 1)
		log.WithField("code", ie.Code).Warnf("Item rejected: %s", ie.Message)
		return
	}
	atomic.AddInt64(&stats.FailedItems, 1)
	log.WithError(result.err).Error("Failed to import item")
}

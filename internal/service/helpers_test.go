package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/timmy/nutrilens/internal/config"
	"github.com/timmy/nutrilens/internal/domain"
	"github.com/timmy/nutrilens/internal/nutrition"
	"github.com/timmy/nutrilens/internal/repository"
	"gorm.io/gorm"
)

// memStorage is an in-memory ObjectStorage.
type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	uploads int
	deletes int

	// missExisting makes Exists report false, as when a concurrent request
	// uploads the same key between another request's check and upload.
	missExisting bool
}

func newMemStorage() *memStorage {
	return &memStorage{objects: make(map[string][]byte)}
}

func (m *memStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.uploads++
	return nil
}

func (m *memStorage) GetURL(key string) string {
	return "https://cdn.test/" + key
}

func (m *memStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	m.deletes++
	return nil
}

func (m *memStorage) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok && !m.missExisting, nil
}

func (m *memStorage) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// fakeAnalyzer returns a canned analysis and counts calls.
type fakeAnalyzer struct {
	mu         sync.Mutex
	result     *nutrition.RawAnalysis
	err        error
	imageCalls int
	textCalls  int
}

func (f *fakeAnalyzer) AnalyzeImage(ctx context.Context, imageData []byte, mimeType string) (*nutrition.RawAnalysis, error) {
	f.mu.Lock()
	f.imageCalls++
	f.mu.Unlock()
	return f.result, f.err
}

func (f *fakeAnalyzer) AnalyzeText(ctx context.Context, description string) (*nutrition.RawAnalysis, error) {
	f.mu.Lock()
	f.textCalls++
	f.mu.Unlock()
	return f.result, f.err
}

func (f *fakeAnalyzer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.imageCalls + f.textCalls
}

// breakfastAnalysis is a two-food result tagged with a Spanish meal type.
func breakfastAnalysis() *nutrition.RawAnalysis {
	return &nutrition.RawAnalysis{
		Foods: []nutrition.RawFood{
			{
				Name:       "Huevos revueltos",
				Confidence: 0.9,
				Portion:    map[string]any{"amount": 120.0, "unit": "g"},
				Nutrition:  map[string]any{"calories": 200.0, "protein": 14.0, "carbs": 2.0, "fat": 15.0},
				Category:   "protein",
			},
			{
				Name:       "Pan tostado",
				Confidence: 0.8,
				Portion:    map[string]any{"amount": 2.0, "unit": "slice"},
				Nutrition:  map[string]any{"calories": 160.0, "protein": 6.0, "carbs": 30.0, "fat": 2.0, "fiber": 3.0},
				Category:   "carb",
			},
		},
		MealContext: map[string]any{"estimatedMealType": "desayuno", "portionSize": "medium"},
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "meals.db"),
		AutoMigrate: true,
		LogLevel:    "silent",
	})
	if err != nil {
		t.Fatalf("InitDB() error = %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func countMeals(t *testing.T, db *gorm.DB) (meals, foods int64) {
	t.Helper()
	if err := db.Model(&domain.Meal{}).Count(&meals).Error; err != nil {
		t.Fatalf("count meals: %v", err)
	}
	if err := db.Model(&domain.DetectedFood{}).Count(&foods).Error; err != nil {
		t.Fatalf("count foods: %v", err)
	}
	return meals, foods
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 10), G: uint8(y * 10), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func writeTempFile(t *testing.T, data []byte) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "upload-*")
	if err != nil {
		t.Fatalf("create temp: %v", err)
	}
	if _, err := f.Write(data); err != nil {
		t.Fatalf("write temp: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp: %v", err)
	}
	return f.Name()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

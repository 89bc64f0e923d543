package staging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/timmy/nutrilens/internal/logger"
	"github.com/timmy/nutrilens/internal/source"
)

const (
	// ManifestFileName is the JSONL manifest file name in staging sources.
	ManifestFileName = "manifest.jsonl"
	// ImagesDir is the directory name for staged meal photos.
	ImagesDir = "images"
)

// ManifestItem represents a line of manifest.jsonl. Timestamp accepts a
// JSON number (epoch millis) or a string.
type ManifestItem struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Filename    string          `json:"filename"`
	Description string          `json:"description"`
	MealType    string          `json:"meal_type"`
	Timestamp   json.RawMessage `json:"timestamp"`
}

// Adapter implements the Source interface for the staging directory.
type Adapter struct {
	basePath      string
	sourceID      string
	defaultUserID string
	items         []source.MealItem
	loaded        bool
}

// NewAdapter creates a new staging adapter.
// Parameters:
//   - basePath: base path to the staging directory.
//   - sourceID: identifier for the staging source.
//   - defaultUserID: owner of items whose manifest line has no user_id.
//
// Returns:
//   - *Adapter: initialized staging adapter.
func NewAdapter(basePath, sourceID, defaultUserID string) *Adapter {
	return &Adapter{
		basePath:      basePath,
		sourceID:      sourceID,
		defaultUserID: defaultUserID,
	}
}

// GetSourceID returns the source identifier with a "staging:" prefix.
func (a *Adapter) GetSourceID() string {
	return "staging:" + a.sourceID
}

// GetDisplayName returns a human-readable name for this source.
func (a *Adapter) GetDisplayName() string {
	return fmt.Sprintf("Staging (%s)", a.sourceID)
}

// FetchBatch fetches a batch of meal items from the staging directory.
// Parameters:
//   - ctx: context for cancellation and deadlines (unused for local reads).
//   - cursor: pagination cursor as an index string.
//   - limit: maximum number of items to fetch.
//
// Returns:
//   - []source.MealItem: batch of meal items.
//   - string: next cursor or empty if no more items.
//   - error: non-nil if loading or parsing fails.
func (a *Adapter) FetchBatch(ctx context.Context, cursor string, limit int) ([]source.MealItem, string, error) {
	if err := a.ensureLoaded(ctx); err != nil {
		return nil, "", fmt.Errorf("failed to load staging items: %w", err)
	}

	startIndex := 0
	if cursor != "" {
		var err error
		startIndex, err = strconv.Atoi(cursor)
		if err != nil || startIndex < 0 {
			return nil, "", fmt.Errorf("invalid cursor: %q", cursor)
		}
	}

	if startIndex >= len(a.items) {
		return []source.MealItem{}, "", nil
	}

	endIndex := startIndex + limit
	if limit <= 0 || endIndex > len(a.items) {
		endIndex = len(a.items)
	}

	nextCursor := ""
	if endIndex < len(a.items) {
		nextCursor = strconv.Itoa(endIndex)
	}

	return a.items[startIndex:endIndex], nextCursor, nil
}

// GetTotalCount returns the total number of items in staging.
func (a *Adapter) GetTotalCount(ctx context.Context) (int, error) {
	if err := a.ensureLoaded(ctx); err != nil {
		return 0, err
	}
	return len(a.items), nil
}

func (a *Adapter) ensureLoaded(ctx context.Context) error {
	if a.loaded {
		return nil
	}
	if err := a.loadItems(ctx); err != nil {
		return err
	}
	a.loaded = true
	return nil
}

// loadItems loads all items from the manifest file. Malformed lines and
// lines whose photo is missing are skipped with a warning.
func (a *Adapter) loadItems(ctx context.Context) error {
	stagingPath := filepath.Join(a.basePath, a.sourceID)
	manifestPath := filepath.Join(stagingPath, ManifestFileName)
	imagesPath := filepath.Join(stagingPath, ImagesDir)
	log := logger.FromContext(ctx).WithField("manifest", manifestPath)

	file, err := os.Open(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("manifest file not found: %s", manifestPath)
		}
		return fmt.Errorf("failed to open manifest: %w", err)
	}
	defer file.Close()

	a.items = []source.MealItem{}

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var item ManifestItem
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			log.WithField("line", lineNo).WithError(err).Warn("Skipping malformed manifest line")
			continue
		}
		if item.ID == "" {
			log.WithField("line", lineNo).Warn("Skipping manifest line without id")
			continue
		}

		mealItem := source.MealItem{
			SourceID:    fmt.Sprintf("%s_%s", a.sourceID, item.ID),
			UserID:      item.UserID,
			Description: strings.TrimSpace(item.Description),
			MealType:    item.MealType,
			Timestamp:   rawTimestamp(item.Timestamp),
		}
		if mealItem.UserID == "" {
			mealItem.UserID = a.defaultUserID
		}

		if item.Filename != "" {
			localPath := filepath.Join(imagesPath, filepath.Base(item.Filename))
			if _, err := os.Stat(localPath); err != nil {
				log.WithField("line", lineNo).WithField("path", localPath).Warn("Skipping item with missing photo")
				continue
			}
			mealItem.LocalPath = localPath
			mealItem.Description = ""
		} else if mealItem.Description == "" {
			log.WithField("line", lineNo).Warn("Skipping item with neither filename nor description")
			continue
		}

		a.items = append(a.items, mealItem)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading manifest: %w", err)
	}

	sort.Slice(a.items, func(i, j int) bool {
		return a.items[i].SourceID < a.items[j].SourceID
	})

	return nil
}

// rawTimestamp renders a manifest timestamp as the string form the ingest
// pipeline parses: numbers verbatim, strings unquoted.
func rawTimestamp(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// ListStagingSources lists all available staging sources.
// Parameters:
//   - basePath: base path to the staging directory.
//
// Returns:
//   - []string: list of staging source IDs.
//   - error: non-nil if reading the directory fails.
func ListStagingSources(basePath string) ([]string, error) {
	entries, err := os.ReadDir(basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	var sources []string
	for _, entry := range entries {
		if entry.IsDir() {
			manifestPath := filepath.Join(basePath, entry.Name(), ManifestFileName)
			if _, err := os.Stat(manifestPath); err == nil {
				sources = append(sources, entry.Name())
			}
		}
	}

	return sources, nil
}

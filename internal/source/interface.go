package source

import "context"

// MealItem is one staged meal waiting to be imported. Exactly one of
// LocalPath and Description is set.
type MealItem struct {
	SourceID    string // Unique ID within the source
	UserID      string
	LocalPath   string // Photo path for image items
	Description string // Free text for text items
	MealType    string // Optional, normalized on ingest
	Timestamp   string // Optional, epoch millis or ISO date
}

// IsImage reports whether the item carries a photo.
func (i *MealItem) IsImage() bool {
	return i.LocalPath != ""
}

// Source defines the interface for staged meal sources.
type Source interface {
	// GetSourceID returns the unique identifier for this source.
	// Parameters: none.
	// Returns:
	//   - string: stable source identifier.
	GetSourceID() string

	// GetDisplayName returns a human-readable name for this source.
	// Parameters: none.
	// Returns:
	//   - string: display-friendly source name.
	GetDisplayName() string

	// FetchBatch fetches a batch of meal items starting from the given cursor.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - cursor: pagination cursor or empty for first page.
	//   - limit: maximum number of items to fetch.
	// Returns:
	//   - items: batch of meal items.
	//   - nextCursor: cursor for the next batch or empty if done.
	//   - err: non-nil if fetching fails.
	FetchBatch(ctx context.Context, cursor string, limit int) (items []MealItem, nextCursor string, err error)
}

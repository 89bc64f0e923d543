package storage

import (
	"context"
	"io"
)

// ObjectStorage stores meal images by key.
type ObjectStorage interface {
	// Upload writes size bytes from reader under key.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// GetURL returns the public URL of key.
	GetURL(key string) string

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key is stored.
	Exists(ctx context.Context, key string) (bool, error)
}

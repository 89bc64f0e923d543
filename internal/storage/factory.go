package storage

import (
	"fmt"
	"strings"

	"github.com/timmy/nutrilens/internal/config"
)

// StorageType selects the ObjectStorage backend.
type StorageType string

const (
	StorageTypeLocal        StorageType = "local"
	StorageTypeR2           StorageType = "r2"
	StorageTypeS3           StorageType = "s3"
	StorageTypeS3Compatible StorageType = "s3compatible"
)

// NewStorage builds the ObjectStorage named by cfg.Type, auto-detecting the
// S3 flavour from the endpoint when the type is empty.
func NewStorage(cfg *config.StorageConfig) (ObjectStorage, error) {
	storageType := StorageType(strings.ToLower(cfg.Type))
	if storageType == "" {
		storageType = detectStorageType(cfg.Endpoint)
	}

	switch storageType {
	case StorageTypeLocal:
		return NewLocalStorage(cfg.LocalDir, cfg.PublicURL)
	case StorageTypeR2, StorageTypeS3, StorageTypeS3Compatible:
		return NewS3Storage(&S3Config{
			Type:      storageType,
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			PublicURL: cfg.PublicURL,
		})
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.Type)
	}
}

func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)

	switch {
	case endpoint == "":
		return StorageTypeLocal
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	case strings.Contains(endpoint, "amazonaws.com"):
		return StorageTypeS3
	default:
		return StorageTypeS3Compatible
	}
}

package service

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/timmy/nutrilens/internal/storage"
	_ "golang.org/x/image/webp"
)

var (
	ErrImageMissing     = errors.New("image upload not found")
	ErrImageEmpty       = errors.New("image is empty")
	ErrImageTooLarge    = errors.New("image is too large")
	ErrImageUnsupported = errors.New("unsupported image type")
)

// supportedImageTypes maps accepted MIME types to stored file extensions.
var supportedImageTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/gif":  "gif",
}

// ImageFile is an uploaded meal photo that passed validation.
type ImageFile struct {
	Data     []byte
	MIMEType string
	Ext      string
	Width    int
	Height   int
	MD5      string
}

// StoredImage is a photo persisted to object storage.
type StoredImage struct {
	Key string
	URL string

	// Uploaded is false when an identical object was already stored; only
	// uploaded objects are removed on rollback.
	Uploaded bool
}

// ImageStore validates meal photos and stores them content-addressed under
// <prefix>/<user>/<md5[:2]>/<md5>.<ext>.
type ImageStore struct {
	storage  storage.ObjectStorage
	prefix   string
	maxBytes int64
	locks    keyLocks
}

// NewImageStore creates an ImageStore. maxBytes <= 0 disables the size check.
func NewImageStore(objectStorage storage.ObjectStorage, prefix string, maxBytes int64) *ImageStore {
	return &ImageStore{
		storage:  objectStorage,
		prefix:   strings.Trim(prefix, "/"),
		maxBytes: maxBytes,
		locks:    keyLocks{held: make(map[string]*keyLock)},
	}
}

// Load reads and validates the photo at filePath. The returned errors wrap
// ErrImageMissing, ErrImageEmpty, ErrImageTooLarge or ErrImageUnsupported
// for client mistakes.
func (s *ImageStore) Load(filePath string) (*ImageFile, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrImageMissing
		}
		return nil, fmt.Errorf("failed to stat image: %w", err)
	}
	if info.IsDir() {
		return nil, ErrImageMissing
	}
	if info.Size() == 0 {
		return nil, ErrImageEmpty
	}
	if s.maxBytes > 0 && info.Size() > s.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrImageTooLarge, info.Size(), s.maxBytes)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return s.inspect(data)
}

func (s *ImageStore) inspect(data []byte) (*ImageFile, error) {
	mime := mimetype.Detect(data)
	mimeType := strings.SplitN(mime.String(), ";", 2)[0]
	ext, ok := supportedImageTypes[mimeType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrImageUnsupported, mimeType)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageUnsupported, err)
	}

	sum := md5.Sum(data)
	return &ImageFile{
		Data:     data,
		MIMEType: mimeType,
		Ext:      ext,
		Width:    cfg.Width,
		Height:   cfg.Height,
		MD5:      hex.EncodeToString(sum[:]),
	}, nil
}

// Key returns the storage key of img for userID.
func (s *ImageStore) Key(userID string, img *ImageFile) string {
	return path.Join(s.prefix, userID, img.MD5[:2], img.MD5+"."+img.Ext)
}

// Store uploads img unless the same content is already stored for userID.
func (s *ImageStore) Store(ctx context.Context, userID string, img *ImageFile) (*StoredImage, error) {
	key := s.Key(userID, img)

	exists, err := s.storage.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check storage existence: %w", err)
	}

	stored := &StoredImage{Key: key, URL: s.storage.GetURL(key)}
	if exists {
		return stored, nil
	}
	if err := s.storage.Upload(ctx, key, bytes.NewReader(img.Data), int64(len(img.Data)), img.MIMEType); err != nil {
		return nil, fmt.Errorf("failed to upload image: %w", err)
	}
	stored.Uploaded = true
	return stored, nil
}

// LockKey serializes work on one storage key within this process: storing
// and committing a meal that references it, or deciding to delete it. Call
// the returned func to release.
func (s *ImageStore) LockKey(key string) (unlock func()) {
	return s.locks.lock(key)
}

// Delete removes a stored image by key.
func (s *ImageStore) Delete(ctx context.Context, key string) error {
	return s.storage.Delete(ctx, key)
}

type keyLock struct {
	mu      sync.Mutex
	waiters int
}

// keyLocks hands out one mutex per key and forgets keys nobody holds.
type keyLocks struct {
	mu   sync.Mutex
	held map[string]*keyLock
}

func (l *keyLocks) lock(key string) func() {
	l.mu.Lock()
	kl, ok := l.held[key]
	if !ok {
		kl = &keyLock{}
		l.held[key] = kl
	}
	kl.waiters++
	l.mu.Unlock()

	kl.mu.Lock()
	return func() {
		kl.mu.Unlock()
		l.mu.Lock()
		kl.waiters--
		if kl.waiters == 0 {
			delete(l.held, key)
		}
		l.mu.Unlock()
	}
}

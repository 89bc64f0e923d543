package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// LocalStorage keeps objects on the local filesystem. The API serves the
// directory under its public URL prefix; it is meant for development and
// single-node deployments.
type LocalStorage struct {
	root      string
	publicURL string
}

// NewLocalStorage creates root if needed.
func NewLocalStorage(root, publicURL string) (*LocalStorage, error) {
	if root == "" {
		return nil, errors.New("local storage requires a directory")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{root: root, publicURL: strings.TrimSuffix(publicURL, "/")}, nil
}

// Root returns the directory objects are written under.
func (s *LocalStorage) Root() string {
	return s.root
}

// PublicURL returns the URL prefix objects are served under.
func (s *LocalStorage) PublicURL() string {
	return s.publicURL
}

func (s *LocalStorage) pathFor(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

func (s *LocalStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	dst, err := s.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create object file: %w", err)
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, reader)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to write object %s: %w", key, err)
	}
	if size >= 0 && written != size {
		return fmt.Errorf("short write for object %s: wrote %d of %d bytes", key, written, size)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("failed to commit object %s: %w", key, err)
	}
	return nil
}

func (s *LocalStorage) GetURL(key string) string {
	return s.publicURL + "/" + strings.TrimPrefix(key, "/")
}

func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	p, err := s.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	p, err := s.pathFor(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to check object %s: %w", key, err)
	}
}

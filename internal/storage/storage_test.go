package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/timmy/nutrilens/internal/config"
)

func TestDetectStorageType(t *testing.T) {
	tests := []struct {
		endpoint string
		want     StorageType
	}{
		{"", StorageTypeLocal},
		{"https://abc.r2.cloudflarestorage.com", StorageTypeR2},
		{"s3.eu-west-1.amazonaws.com", StorageTypeS3},
		{"localhost:9000", StorageTypeS3Compatible},
	}
	for _, tt := range tests {
		if got := detectStorageType(tt.endpoint); got != tt.want {
			t.Errorf("detectStorageType(%q) = %q, want %q", tt.endpoint, got, tt.want)
		}
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := map[string]string{
		"https://minio.local:9000/":      "minio.local:9000",
		"http://localhost:9000/bucket/x": "localhost:9000",
		"s3.us-east-1.amazonaws.com":     "s3.us-east-1.amazonaws.com",
	}
	for in, want := range tests {
		if got := normalizeEndpoint(in); got != want {
			t.Errorf("normalizeEndpoint(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewStorageRejectsUnknownType(t *testing.T) {
	if _, err := NewStorage(&config.StorageConfig{Type: "ftp"}); err == nil {
		t.Fatal("expected error for unsupported type")
	}
}

func TestLocalStorageLifecycle(t *testing.T) {
	root := t.TempDir()
	store, err := NewStorage(&config.StorageConfig{Type: "local", LocalDir: root, PublicURL: "/images/"})
	if err != nil {
		t.Fatalf("NewStorage() error = %v", err)
	}
	ctx := context.Background()
	key := "meals/user-1/ab/abcdef.jpg"
	body := "not really a jpeg"

	if err := store.Upload(ctx, key, strings.NewReader(body), int64(len(body)), "image/jpeg"); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "meals", "user-1", "ab", "abcdef.jpg"))
	if err != nil || string(data) != body {
		t.Fatalf("stored object = %q, %v", data, err)
	}
	if got := store.GetURL(key); got != "/images/"+key {
		t.Errorf("GetURL() = %q", got)
	}
	if ok, err := store.Exists(ctx, key); err != nil || !ok {
		t.Errorf("Exists() = %v, %v; want true", ok, err)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if ok, _ := store.Exists(ctx, key); ok {
		t.Error("object still exists after Delete")
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Errorf("second Delete() error = %v, want nil", err)
	}
}

func TestLocalStorageKeysStayInsideRoot(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStorage(root, "/images")
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}

	p, err := store.pathFor("../../etc/passwd")
	if err != nil {
		t.Fatalf("pathFor() error = %v", err)
	}
	if !strings.HasPrefix(p, root) {
		t.Errorf("pathFor escaped root: %q", p)
	}
	if _, err := store.pathFor("/"); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestLocalStorageShortWrite(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir(), "/images")
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}
	err = store.Upload(context.Background(), "meals/x.png", strings.NewReader("abc"), 10, "image/png")
	if err == nil {
		t.Fatal("expected short write error")
	}
	if ok, _ := store.Exists(context.Background(), "meals/x.png"); ok {
		t.Error("partial object was committed")
	}
}

package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestImageStoreLoad(t *testing.T) {
	store := NewImageStore(newMemStorage(), "meals", 2048)

	tests := []struct {
		name    string
		path    func(t *testing.T) string
		wantErr error
	}{
		{name: "missing", path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.png") }, wantErr: ErrImageMissing},
		{name: "directory", path: func(t *testing.T) string { return t.TempDir() }, wantErr: ErrImageMissing},
		{name: "empty", path: func(t *testing.T) string { return writeTempFile(t, nil) }, wantErr: ErrImageEmpty},
		{name: "too large", path: func(t *testing.T) string { return writeTempFile(t, make([]byte, 4096)) }, wantErr: ErrImageTooLarge},
		{name: "text", path: func(t *testing.T) string { return writeTempFile(t, []byte("hello, not an image")) }, wantErr: ErrImageUnsupported},
		{name: "truncated png", path: func(t *testing.T) string { return writeTempFile(t, pngBytes(t, 4, 4)[:20]) }, wantErr: ErrImageUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Load(tt.path(t))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Load() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestImageStoreLoadPNG(t *testing.T) {
	store := NewImageStore(newMemStorage(), "/meals/", 0)

	img, err := store.Load(writeTempFile(t, pngBytes(t, 5, 3)))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if img.MIMEType != "image/png" || img.Ext != "png" {
		t.Errorf("type = %s/%s", img.MIMEType, img.Ext)
	}
	if img.Width != 5 || img.Height != 3 {
		t.Errorf("size = %dx%d, want 5x3", img.Width, img.Height)
	}
	if len(img.MD5) != 32 {
		t.Errorf("md5 = %q", img.MD5)
	}

	key := store.Key("user-1", img)
	want := "meals/user-1/" + img.MD5[:2] + "/" + img.MD5 + ".png"
	if key != want {
		t.Errorf("Key() = %q, want %q", key, want)
	}
}

func TestImageStoreStoreDeduplicates(t *testing.T) {
	backend := newMemStorage()
	store := NewImageStore(backend, "meals", 0)
	img, err := store.Load(writeTempFile(t, pngBytes(t, 4, 4)))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	first, err := store.Store(context.Background(), "user-1", img)
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if !first.Uploaded || !strings.HasSuffix(first.URL, first.Key) {
		t.Errorf("first = %+v", first)
	}

	second, err := store.Store(context.Background(), "user-1", img)
	if err != nil {
		t.Fatalf("second Store() error = %v", err)
	}
	if second.Uploaded {
		t.Error("identical image uploaded twice")
	}
	if second.Key != first.Key || backend.uploads != 1 {
		t.Errorf("keys %q/%q, uploads = %d", first.Key, second.Key, backend.uploads)
	}

	if err := store.Delete(context.Background(), first.Key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if backend.count() != 0 {
		t.Errorf("objects after delete = %d", backend.count())
	}
}

package objstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalUploadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocal(dir, "/files")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	url, err := l.Upload(ctx, "stops/s1/photo.jpg", strings.NewReader("jpegbytes"), "image/jpeg")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if url != "/files/stops/s1/photo.jpg" {
		t.Fatalf("url = %s", url)
	}
	b, err := os.ReadFile(filepath.Join(dir, "stops", "s1", "photo.jpg"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(b) != "jpegbytes" {
		t.Fatalf("content = %q", b)
	}

	if err := l.Delete(ctx, "stops/s1/photo.jpg"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := l.Delete(ctx, "stops/s1/photo.jpg"); err != nil {
		t.Fatalf("delete missing should be nil, got %v", err)
	}
}

func TestLocalConfinesTraversal(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocal(dir, "/files")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Upload(context.Background(), "../../escape.txt", strings.NewReader("x"), ""); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.txt")); err != nil {
		t.Fatalf("traversal not confined to base dir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "escape.txt")); err == nil {
		t.Fatal("file escaped the base dir")
	}
}

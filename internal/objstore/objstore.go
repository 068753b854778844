package objstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ObjectStore holds binary evidence: tour source PDFs, stop photos and
// signatures. Paths are namespaced by tour/stop identity, e.g.
// tours/{tourID}/source.pdf or stops/{stopID}/photo-169...jpg.
type ObjectStore interface {
	Upload(ctx context.Context, path string, r io.Reader, contentType string) (url string, err error)
	PublicURL(path string) string
	Delete(ctx context.Context, path string) error
}

// Local stores objects on the local filesystem and serves them under a URL
// prefix (the API mounts the base dir at /files/).
type Local struct {
	baseDir   string
	urlPrefix string
}

func NewLocal(baseDir, urlPrefix string) (*Local, error) {
	if baseDir == "" {
		baseDir = "./uploads"
	}
	if urlPrefix == "" {
		urlPrefix = "/files"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Local{baseDir: baseDir, urlPrefix: strings.TrimRight(urlPrefix, "/")}, nil
}

// Dir returns the base directory, for mounting a file server.
func (l *Local) Dir() string { return l.baseDir }

func (l *Local) Upload(ctx context.Context, path string, r io.Reader, contentType string) (string, error) {
	clean, err := l.cleanPath(path)
	if err != nil {
		return "", err
	}
	full := filepath.Join(l.baseDir, clean)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}
	dst, err := os.Create(full)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, r); err != nil {
		return "", fmt.Errorf("save file: %w", err)
	}
	return l.PublicURL(clean), nil
}

func (l *Local) PublicURL(path string) string {
	return l.urlPrefix + "/" + strings.TrimLeft(path, "/")
}

func (l *Local) Delete(ctx context.Context, path string) error {
	clean, err := l.cleanPath(path)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(l.baseDir, clean))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (l *Local) cleanPath(path string) (string, error) {
	clean := filepath.ToSlash(filepath.Clean("/" + path))
	if strings.Contains(clean, "..") {
		return "", fmt.Errorf("invalid object path %q", path)
	}
	return strings.TrimPrefix(clean, "/"), nil
}

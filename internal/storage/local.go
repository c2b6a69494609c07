package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalArchive implements ObjectStorage on the local filesystem.
// It is the default backend for development and single-node deployments.
type LocalArchive struct {
	baseDir   string
	publicURL string
}

// NewLocalArchive creates a filesystem-backed archive rooted at baseDir.
func NewLocalArchive(baseDir, publicURL string) (*LocalArchive, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("storage: local base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: failed to create base directory: %w", err)
	}
	return &LocalArchive{
		baseDir:   baseDir,
		publicURL: strings.TrimSuffix(publicURL, "/"),
	}, nil
}

func (l *LocalArchive) pathFor(key string) (string, error) {
	clean := filepath.Clean(key)
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("storage: invalid object key %q", key)
	}
	return filepath.Join(l.baseDir, clean), nil
}

// Upload writes an object under the base directory, creating parent
// directories as needed.
func (l *LocalArchive) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	path, err := l.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("storage: failed to create object directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("storage: failed to create object file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, reader); err != nil {
		return fmt.Errorf("storage: failed to write object: %w", err)
	}
	return nil
}

// Download opens a stored object for reading.
func (l *LocalArchive) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := l.pathFor(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to open object: %w", err)
	}
	return f, nil
}

// GetURL returns the public URL for an object when a public base URL is
// configured, otherwise the filesystem path.
func (l *LocalArchive) GetURL(key string) string {
	if l.publicURL != "" {
		return fmt.Sprintf("%s/%s", l.publicURL, key)
	}
	path, err := l.pathFor(key)
	if err != nil {
		return ""
	}
	return path
}

// Exists checks whether an object is present.
func (l *LocalArchive) Exists(ctx context.Context, key string) (bool, error) {
	path, err := l.pathFor(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("storage: failed to stat object: %w", err)
	}
	return true, nil
}

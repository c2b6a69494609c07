package storage

import (
	"context"
	"io"
)

// ObjectStorage is the contract archive: generated SOW documents and
// signed contracts are written here, keyed by opportunity id.
type ObjectStorage interface {
	// Upload stores an object.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download retrieves an object.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns the URL (or path) for accessing an object.
	GetURL(key string) string

	// Exists checks if an object exists.
	Exists(ctx context.Context, key string) (bool, error)
}

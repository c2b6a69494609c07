package storage

import (
	"fmt"

	"github.com/ankit/closepilot/internal/config"
)

// NewArchive builds the configured ObjectStorage backend.
func NewArchive(cfg *config.StorageConfig) (ObjectStorage, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalArchive(cfg.LocalDir, cfg.PublicURL)
	case "s3", "r2":
		return NewS3Archive(&S3Config{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			PublicURL: cfg.PublicURL,
		})
	default:
		return nil, fmt.Errorf("storage: unsupported storage type %q", cfg.Type)
	}
}

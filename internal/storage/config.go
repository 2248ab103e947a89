package storage

import (
	"context"
	"fmt"

	"toolshed-backend/internal/config"
)

// New builds the backend named by cfg.Type.
func New(ctx context.Context, cfg config.StorageConfig) (StorageInterface, error) {
	switch cfg.Type {
	case "", "mock":
		return NewMockStorageService(cfg.BaseURL, cfg.UploadDir)
	case "s3":
		return NewS3Storage(ctx, cfg.Bucket, cfg.Region)
	}
	return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
}

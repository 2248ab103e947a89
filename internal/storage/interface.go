package storage

import (
	"context"
	"io"
	"time"
)

// StorageInterface is the object store holding dispute evidence. Uploads go
// straight from the client to the store through a presigned URL; the service
// only checks afterwards that the object arrived.
type StorageInterface interface {
	// GeneratePresignedUploadURL returns a URL the client can PUT the file to.
	GeneratePresignedUploadURL(ctx context.Context, key string, contentType string, expiresIn time.Duration) (string, error)

	GeneratePresignedDownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, error)

	// FileExists reports whether key was uploaded and its size in bytes.
	FileExists(ctx context.Context, key string) (exists bool, size int64, err error)

	DeleteFile(ctx context.Context, key string) error
}

// LocalStore is implemented by backends that receive uploads through this
// server's own HTTP handlers.
type LocalStore interface {
	SaveFile(key string, reader io.Reader) error
	ReadFile(key string) (io.ReadCloser, error)
}

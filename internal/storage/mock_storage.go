package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"toolshed-backend/internal/logger"
)

// MockStorageService keeps evidence on the local filesystem and hands out
// URLs served by the API's upload and download handlers.
type MockStorageService struct {
	baseURL     string
	evidenceDir string
}

func NewMockStorageService(baseURL, uploadsDir string) (*MockStorageService, error) {
	evidenceDir := filepath.Join(uploadsDir, "evidence")
	if err := os.MkdirAll(evidenceDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create evidence directory: %w", err)
	}
	return &MockStorageService{
		baseURL:     strings.TrimRight(baseURL, "/"),
		evidenceDir: evidenceDir,
	}, nil
}

func (m *MockStorageService) GeneratePresignedUploadURL(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	token := uuid.New().String()
	return fmt.Sprintf("%s/api/v1/upload/%s?key=%s", m.baseURL, token, url.QueryEscape(key)), nil
}

func (m *MockStorageService) GeneratePresignedDownloadURL(_ context.Context, key string, _ time.Duration) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/api/v1/download?key=%s", m.baseURL, url.QueryEscape(key)), nil
}

func (m *MockStorageService) FileExists(_ context.Context, key string) (bool, int64, error) {
	fullPath, err := m.path(key)
	if err != nil {
		return false, 0, err
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debug("Evidence object missing", "key", key)
			return false, 0, nil
		}
		return false, 0, err
	}
	return true, info.Size(), nil
}

func (m *MockStorageService) DeleteFile(_ context.Context, key string) error {
	fullPath, err := m.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (m *MockStorageService) SaveFile(key string, reader io.Reader) error {
	fullPath, err := m.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}
	file, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, reader); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func (m *MockStorageService) ReadFile(key string) (io.ReadCloser, error) {
	fullPath, err := m.path(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

func (m *MockStorageService) path(key string) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	return filepath.Join(m.evidenceDir, filepath.FromSlash(key)), nil
}

// validKey rejects keys that would escape the storage root.
func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || !fs.ValidPath(key) {
		return fmt.Errorf("invalid storage key %q", key)
	}
	return nil
}

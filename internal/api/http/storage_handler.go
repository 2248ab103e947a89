package http

import (
	"io"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gorilla/mux"

	"toolshed-backend/internal/logger"
	"toolshed-backend/internal/storage"
)

// StorageHandler serves the presigned URLs handed out by the local storage
// backend so that evidence uploads work without a real object store.
type StorageHandler struct {
	store        storage.LocalStore
	allowedTypes []string
	maxBytes     int64
}

// NewStorageHandler creates a new upload handler
func NewStorageHandler(store storage.LocalStore, allowedTypes []string, maxBytes int64) *StorageHandler {
	return &StorageHandler{
		store:        store,
		allowedTypes: allowedTypes,
		maxBytes:     maxBytes,
	}
}

// HandleMockUpload handles HTTP PUT requests to mock presigned URLs
func (h *StorageHandler) HandleMockUpload(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "Missing key parameter", http.StatusBadRequest)
		return
	}

	contentType := r.Header.Get("Content-Type")
	if !slices.Contains(h.allowedTypes, contentType) {
		http.Error(w, "Invalid content type", http.StatusBadRequest)
		return
	}

	body := http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := h.store.SaveFile(key, body); err != nil {
		logger.Warn("Mock upload failed", "key", key, "error", err)
		http.Error(w, "Failed to save file", http.StatusBadRequest)
		return
	}

	// mimic S3 response
	w.Header().Set("ETag", `"mock-etag-success"`)
	w.WriteHeader(http.StatusOK)
}

// HandleMockDownload handles HTTP GET requests for stored evidence
func (h *StorageHandler) HandleMockDownload(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "Missing key parameter", http.StatusBadRequest)
		return
	}

	file, err := h.store.ReadFile(key)
	if err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", contentTypeFor(key))
	w.Header().Set("Cache-Control", "private, max-age=300")
	if _, err := io.Copy(w, file); err != nil {
		logger.Warn("Mock download interrupted", "key", key, "error", err)
	}
}

func contentTypeFor(key string) string {
	switch strings.ToLower(filepath.Ext(key)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".mp4":
		return "video/mp4"
	case ".pdf":
		return "application/pdf"
	}
	return "application/octet-stream"
}

// RegisterMockStorageRoutes registers the mock storage HTTP endpoints
func RegisterMockStorageRoutes(router *mux.Router, handler *StorageHandler) {
	router.HandleFunc("/api/v1/upload/{token}", handler.HandleMockUpload).Methods(http.MethodPut)
	router.HandleFunc("/api/v1/download", handler.HandleMockDownload).Methods(http.MethodGet)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harshraj78/legal-check-ai/config"
)

// BlobStore persists raw uploaded documents keyed by contract.
type BlobStore interface {
	// EnsureReady creates the backing directory or bucket if it is missing.
	EnsureReady(ctx context.Context) error
	// Save writes data under key, overwriting any previous blob.
	Save(ctx context.Context, key string, data []byte, contentType string) error
	// Load returns the blob stored under key, or ErrBlobNotFound.
	Load(ctx context.Context, key string) ([]byte, error)
}

// BlobKey derives the storage key for a contract: "{id}.{ext}".
func BlobKey(contractID, filename string) string {
	return contractID + strings.ToLower(filepath.Ext(filename))
}

// ContentTypeFor returns the MIME type stored alongside an upload.
func ContentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}

// NewBlobStore builds the backend selected by cfg.Backend and makes sure it is ready.
func NewBlobStore(ctx context.Context, cfg *config.StorageConfig) (BlobStore, error) {
	var (
		store BlobStore
		err   error
	)
	switch cfg.Backend {
	case "local":
		store = NewLocalBlobStore(cfg.LocalDir)
	case "minio":
		store, err = NewMinioService(&cfg.Minio)
	case "gcs":
		store, err = NewGCSBlobStore(ctx, &cfg.GCS)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	if err := store.EnsureReady(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// LocalBlobStore keeps blobs as files in a single directory.
type LocalBlobStore struct {
	root string
}

func NewLocalBlobStore(root string) *LocalBlobStore {
	return &LocalBlobStore{root: root}
}

func (s *LocalBlobStore) EnsureReady(ctx context.Context) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("failed to create upload dir: %w", err)
	}
	return nil
}

func (s *LocalBlobStore) Save(ctx context.Context, key string, data []byte, contentType string) error {
	if err := s.EnsureReady(ctx); err != nil {
		return err
	}
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write blob: %w", err)
	}
	return nil
}

func (s *LocalBlobStore) Load(ctx context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

func (s *LocalBlobStore) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(s.root, key), nil
}

package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"

	"github.com/feichai0017/pdf-processor/config"
	"github.com/feichai0017/pdf-processor/pkg/logger"
	"github.com/feichai0017/pdf-processor/pkg/storage/gcs"
	"github.com/feichai0017/pdf-processor/pkg/storage/local"
	"github.com/feichai0017/pdf-processor/pkg/storage/minio"
	"github.com/feichai0017/pdf-processor/pkg/storage/s3"
)

// StorageType selects a backend.
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
	StorageTypeMinio StorageType = "minio"
	StorageTypeGCS   StorageType = "gcs"
)

// ErrNotExist is returned (wrapped) by every backend when a key is absent.
var ErrNotExist = fs.ErrNotExist

// Storage holds uploaded files addressed by a slash separated key.
type Storage interface {
	// Store writes the content of reader under key and returns the key.
	Store(ctx context.Context, reader io.Reader, key string) (string, error)
	// Get opens the file stored under key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the file stored under key.
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// PathResolver is implemented by backends whose files already live on the
// local filesystem.
type PathResolver interface {
	Path(key string) (string, error)
}

// NewStorage builds the backend named by cfg.Type.
func NewStorage(ctx context.Context, cfg config.StorageConfig, log logger.Logger) (Storage, error) {
	log = log.Named("storage")

	switch StorageType(cfg.Type) {
	case StorageTypeLocal, "":
		return local.New(cfg.Local.Dir, log)
	case StorageTypeS3:
		return s3.NewS3Storage(ctx, cfg.S3, log)
	case StorageTypeMinio:
		return minio.NewMinioStorage(ctx, cfg.Minio, log)
	case StorageTypeGCS:
		return gcs.NewGCSStorage(ctx, cfg.GCS, log)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// LocalPath returns a filesystem path holding the file stored under key.
// Remote backends are downloaded to a temporary file; the returned cleanup
// func removes it and must always be called.
func LocalPath(ctx context.Context, s Storage, key string) (string, func(), error) {
	if r, ok := s.(PathResolver); ok {
		p, err := r.Path(key)
		if err != nil {
			return "", func() {}, err
		}
		if _, err := os.Stat(p); err != nil {
			return "", func() {}, fmt.Errorf("failed to stat %s: %w", key, err)
		}
		return p, func() {}, nil
	}

	rc, err := s.Get(ctx, key)
	if err != nil {
		return "", func() {}, err
	}
	defer rc.Close()

	tmp, err := os.CreateTemp("", "download-*"+path.Ext(key))
	if err != nil {
		return "", func() {}, fmt.Errorf("failed to create temp file: %w", err)
	}
	cleanup := func() { os.Remove(tmp.Name()) }

	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("failed to download %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("failed to close temp file: %w", err)
	}
	return tmp.Name(), cleanup, nil
}

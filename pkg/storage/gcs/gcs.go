// Package gcs stores files as objects in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	cfg "github.com/feichai0017/pdf-processor/config"
	"github.com/feichai0017/pdf-processor/pkg/logger"
)

type GCSStorage struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
	logger logger.Logger
}

func NewGCSStorage(ctx context.Context, gcsConfig cfg.GCSConfig, log logger.Logger) (*GCSStorage, error) {
	if gcsConfig.BucketName == "" {
		return nil, fmt.Errorf("gcs bucket name is required")
	}

	var opts []option.ClientOption
	if gcsConfig.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(gcsConfig.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	bucket := client.Bucket(gcsConfig.BucketName)
	if _, err := bucket.Attrs(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to verify bucket existence: %w", err)
	}

	return &GCSStorage{
		client: client,
		bucket: bucket,
		name:   gcsConfig.BucketName,
		logger: log.Named("gcs"),
	}, nil
}

func (g *GCSStorage) Store(ctx context.Context, reader io.Reader, key string) (string, error) {
	w := g.bucket.Object(key).NewWriter(ctx)
	w.ContentType = "application/pdf"

	if _, err := io.Copy(w, reader); err != nil {
		w.Close()
		g.logger.Error("Failed to store file to GCS",
			logger.String("bucket", g.name),
			logger.String("key", key),
			logger.Error(err),
		)
		return "", fmt.Errorf("failed to store file: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize upload: %w", err)
	}
	return key, nil
}

func (g *GCSStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := g.bucket.Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("failed to get file %s: %w", key, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return r, nil
}

func (g *GCSStorage) Delete(ctx context.Context, key string) error {
	if err := g.bucket.Object(key).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("failed to delete file %s: %w", key, fs.ErrNotExist)
		}
		g.logger.Error("Failed to delete file from GCS",
			logger.String("bucket", g.name),
			logger.String("key", key),
			logger.Error(err),
		)
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (g *GCSStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := g.bucket.Object(key).Attrs(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrObjectNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to read object attrs: %w", err)
	}
}

func (g *GCSStorage) Close() error {
	return g.client.Close()
}

package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/feichai0017/pdf-processor/internal/models"
	"github.com/feichai0017/pdf-processor/internal/repository"
	"github.com/feichai0017/pdf-processor/pkg/logger"
	"github.com/feichai0017/pdf-processor/pkg/storage"
)

// CleanupDocuments deletes completed documents uploaded before the retention
// cutoff, together with their files and tasks. A document that cannot be
// removed is logged and left for the next run.
func (s *DocumentService) CleanupDocuments(ctx context.Context) (int, error) {
	log := logger.FromContext(ctx, s.logger).Named("cleanup")
	cutoff := s.config.Now().UTC().Add(-s.config.RetentionPeriod)

	docs, err := s.repo.ListDocuments(ctx, repository.DocumentFilter{
		Status:         models.DocumentCompleted,
		UploadedBefore: cutoff,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list expired documents: %w", err)
	}

	count := 0
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		if err := s.removeDocument(ctx, doc); err != nil {
			log.Error("Failed to clean up document",
				logger.String("documentId", doc.ID),
				logger.Error(err),
			)
			continue
		}
		count++
	}

	log.Info(fmt.Sprintf("Cleaned up %d old documents", count),
		logger.Int("count", count),
		logger.Time("cutoff", cutoff),
	)
	return count, nil
}

// removeDocument deletes the stored file, then the row. A file that is
// already gone is not an error.
func (s *DocumentService) removeDocument(ctx context.Context, doc *models.Document) error {
	if doc.FileReference != "" {
		if err := s.storage.Delete(ctx, doc.FileReference); err != nil && !errors.Is(err, storage.ErrNotExist) {
			return fmt.Errorf("failed to delete file: %w", err)
		}
	}
	if err := s.repo.DeleteDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

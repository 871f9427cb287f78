package document

import (
	"context"

	"github.com/feichai0017/pdf-processor/internal/models"
)

// Processor is one way of pulling text and metadata out of a PDF on disk.
type Processor interface {
	// Name identifies the method in logs and on the extraction result.
	Name() string

	// Extract reads the file at path and returns its page-delimited text,
	// page count and metadata.
	Extract(ctx context.Context, path string) (*models.Extraction, error)
}

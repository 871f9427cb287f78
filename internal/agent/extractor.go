package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/feichai0017/pdf-processor/internal/agent/document"
	"github.com/feichai0017/pdf-processor/internal/agent/document/pdf"
	"github.com/feichai0017/pdf-processor/internal/models"
	"github.com/feichai0017/pdf-processor/pkg/logger"
)

// Extractor runs a primary processor and falls back to a secondary one when
// the primary fails. Failure of both fails the extraction.
type Extractor struct {
	primary  document.Processor
	fallback document.Processor
	logger   logger.Logger
}

// NewExtractor wires the layout processor as primary and the content stream
// processor as fallback.
func NewExtractor(log logger.Logger) *Extractor {
	named := log.Named("extractor")
	return NewExtractorWith(pdf.NewProcessor(named), pdf.NewStreamProcessor(named), log)
}

func NewExtractorWith(primary, fallback document.Processor, log logger.Logger) *Extractor {
	return &Extractor{
		primary:  primary,
		fallback: fallback,
		logger:   log,
	}
}

// Extract returns the text, page count and metadata of the PDF at path.
func (e *Extractor) Extract(ctx context.Context, path string) (*models.Extraction, error) {
	result, err := e.primary.Extract(ctx, path)
	if err == nil {
		return normalize(result, e.primary.Name()), nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("%s: %w", e.primary.Name(), err)
	}

	e.logger.Warn("Primary extraction failed, trying fallback",
		logger.String("path", path),
		logger.String("primary", e.primary.Name()),
		logger.String("fallback", e.fallback.Name()),
		logger.Error(err),
	)

	result, fallbackErr := e.fallback.Extract(ctx, path)
	if fallbackErr != nil {
		e.logger.Error("Both PDF extraction methods failed",
			logger.String("path", path),
			logger.Error(fallbackErr),
		)
		return nil, &ExtractionError{
			Primary:  fmt.Errorf("%s: %w", e.primary.Name(), err),
			Fallback: fmt.Errorf("%s: %w", e.fallback.Name(), fallbackErr),
		}
	}

	return normalize(result, e.fallback.Name()), nil
}

// ExtractionError is returned when every method failed.
type ExtractionError struct {
	Primary  error
	Fallback error
}

func (e *ExtractionError) Error() string {
	return e.Fallback.Error()
}

func (e *ExtractionError) Unwrap() []error {
	return []error{e.Primary, e.Fallback}
}

// IsExtractionError reports whether err came from a failed extraction.
func IsExtractionError(err error) bool {
	var target *ExtractionError
	return errors.As(err, &target)
}

func normalize(result *models.Extraction, method string) *models.Extraction {
	if result == nil {
		result = &models.Extraction{}
	}
	metadata := models.EmptyMetadata()
	for k, v := range result.Metadata {
		metadata[k] = v
	}
	result.Metadata = metadata
	if result.Method == "" {
		result.Method = method
	}
	return result
}

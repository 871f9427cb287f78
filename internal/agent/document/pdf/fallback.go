package pdf

import (
	"context"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/feichai0017/pdf-processor/internal/models"
	"github.com/feichai0017/pdf-processor/pkg/logger"
)

// MethodStream names the content-stream extraction method.
const MethodStream = "pdfcpu-stream"

func init() {
	// keep pdfcpu from writing its config directory under $HOME
	api.DisableConfigDir()
}

// StreamProcessor reads the validated document model with pdfcpu and scans
// each page's content stream for shown text. It tolerates files the layout
// parser rejects, such as broken cross reference tables that pdfcpu repairs.
type StreamProcessor struct {
	logger logger.Logger
}

func NewStreamProcessor(logger logger.Logger) *StreamProcessor {
	return &StreamProcessor{
		logger: logger,
	}
}

func (p *StreamProcessor) Name() string {
	return MethodStream
}

func (p *StreamProcessor) Extract(ctx context.Context, path string) (result *models.Extraction, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("pdfcpu panic: %v", r)
		}
	}()

	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf context: %w", err)
	}
	// validation fills the info fields; a file that fails it can still
	// have readable content streams
	if err := api.ValidateContext(pdfCtx); err != nil {
		p.logger.Debug("pdfcpu validation failed, metadata may be incomplete",
			logger.String("path", path),
			logger.Error(err),
		)
	}
	if err := pdfCtx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("failed to count pages: %w", err)
	}

	numPages := pdfCtx.PageCount
	pages := make([]PageText, 0, numPages)

	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		r, err := pdfcpu.ExtractPageContent(pdfCtx, i)
		if err != nil {
			return nil, fmt.Errorf("failed to read content of page %d: %w", i, err)
		}
		if r == nil {
			pages = append(pages, PageText{Number: i})
			continue
		}

		content, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read content of page %d: %w", i, err)
		}

		pages = append(pages, PageText{Number: i, Text: contentText(content)})
	}

	p.logger.Debug("Stream extraction finished",
		logger.String("path", path),
		logger.Int("pages", numPages),
	)

	return &models.Extraction{
		Text:      AssembleText(pages),
		PageCount: numPages,
		Metadata:  streamMetadata(pdfCtx),
		Method:    MethodStream,
	}, nil
}

func streamMetadata(ctx *model.Context) map[string]string {
	metadata := models.EmptyMetadata()
	if ctx == nil || ctx.XRefTable == nil {
		return metadata
	}

	xref := ctx.XRefTable
	metadata[models.MetaTitle] = xref.Title
	metadata[models.MetaAuthor] = xref.Author
	metadata[models.MetaSubject] = xref.Subject
	metadata[models.MetaCreator] = xref.Creator
	metadata[models.MetaProducer] = xref.Producer
	metadata[models.MetaCreationDate] = xref.CreationDate
	metadata[models.MetaModificationDate] = xref.ModDate

	return metadata
}

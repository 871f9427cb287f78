package pdf

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/feichai0017/pdf-processor/internal/models"
	"github.com/feichai0017/pdf-processor/pkg/logger"
)

// MethodLayout names the row-ordered extraction method.
const MethodLayout = "ledongthuc-layout"

// Processor extracts text row by row, top of the page first, so that the
// output follows the visual layout of each page.
type Processor struct {
	logger logger.Logger
}

func NewProcessor(logger logger.Logger) *Processor {
	return &Processor{
		logger: logger,
	}
}

func (p *Processor) Name() string {
	return MethodLayout
}

func (p *Processor) Extract(ctx context.Context, path string) (result *models.Extraction, err error) {
	// the parser panics on some malformed xref tables
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	numPages := reader.NumPage()
	pages := make([]PageText, 0, numPages)

	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, PageText{Number: i})
			continue
		}

		rows, err := page.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("failed to get text from page %d: %w", i, err)
		}

		pages = append(pages, PageText{Number: i, Text: rowsToText(rows)})
	}

	p.logger.Debug("Layout extraction finished",
		logger.String("path", path),
		logger.Int("pages", numPages),
	)

	return &models.Extraction{
		Text:      AssembleText(pages),
		PageCount: numPages,
		Metadata:  p.extractMetadata(reader),
		Method:    MethodLayout,
	}, nil
}

func (p *Processor) extractMetadata(reader *pdf.Reader) map[string]string {
	metadata := models.EmptyMetadata()

	trailer := reader.Trailer()
	if trailer.IsNull() {
		return metadata
	}
	info := trailer.Key("Info")
	if info.IsNull() {
		return metadata
	}

	fields := map[string]string{
		"Title":        models.MetaTitle,
		"Author":       models.MetaAuthor,
		"Subject":      models.MetaSubject,
		"Creator":      models.MetaCreator,
		"Producer":     models.MetaProducer,
		"CreationDate": models.MetaCreationDate,
		"ModDate":      models.MetaModificationDate,
	}
	for pdfKey, key := range fields {
		v := info.Key(pdfKey)
		if v.IsNull() {
			continue
		}
		metadata[key] = v.Text()
	}

	return metadata
}

func rowsToText(rows pdf.Rows) string {
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		var b strings.Builder
		for _, word := range row.Content {
			b.WriteString(word.S)
		}
		line := strings.TrimRight(b.String(), " \t")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

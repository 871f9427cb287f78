package handlers

import (
	"github.com/feichai0017/pdf-processor/internal/service/document"
	"github.com/feichai0017/pdf-processor/pkg/logger"
)

type Handlers struct {
	Document *DocumentHandler
	Health   *HealthHandler
}

func NewHandlers(
	documentService document.DocumentProcessor,
	logger logger.Logger,
) *Handlers {
	return &Handlers{
		Document: NewDocumentHandler(documentService, logger),
		Health:   NewHealthHandler(documentService),
	}
}

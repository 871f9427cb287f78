package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/pdf-processor/internal/models"
	"github.com/feichai0017/pdf-processor/internal/service/document"
	"github.com/feichai0017/pdf-processor/internal/utils/validator"
	"github.com/feichai0017/pdf-processor/pkg/converters"
	"github.com/feichai0017/pdf-processor/pkg/export"
	"github.com/feichai0017/pdf-processor/pkg/logger"
)

type DocumentHandler struct {
	service   document.DocumentProcessor
	converter *converters.JSONConverter
	logger    logger.Logger
}

// UploadResponse 定义上传响应结构
type UploadResponse struct {
	Message    string `json:"message"`
	DocumentID string `json:"document_id"`
	TaskID     string `json:"task_id"`
	Status     string `json:"status"`
}

// BatchItem is one accepted file of a batch upload.
type BatchItem struct {
	Filename   string `json:"filename"`
	DocumentID string `json:"document_id"`
	TaskID     string `json:"task_id"`
	Status     string `json:"status"`
}

// ErrorResponse 定义错误响应结构
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func NewDocumentHandler(service document.DocumentProcessor, logger logger.Logger) *DocumentHandler {
	return &DocumentHandler{
		service:   service,
		converter: converters.NewJSONConverter(),
		logger:    logger.Named("http"),
	}
}

// UploadPDF 上传单个 PDF
func (h *DocumentHandler) UploadPDF(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		h.handleError(c, "No file provided", &validator.ValidationError{
			Code:    validator.CodeNoFile,
			Message: "No file provided",
			Field:   "file",
		})
		return
	}
	defer file.Close()

	result, err := h.service.ProcessFile(c.Request.Context(), file, header, c.PostForm("title"))
	if err != nil {
		h.handleError(c, "Upload failed", err)
		return
	}

	c.JSON(http.StatusCreated, UploadResponse{
		Message:    "PDF uploaded successfully",
		DocumentID: result.DocumentID,
		TaskID:     result.TaskID,
		Status:     string(result.Status),
	})
}

// UploadBatch 批量上传 PDF
func (h *DocumentHandler) UploadBatch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		h.handleError(c, "Invalid form data", &validator.ValidationError{
			Code:    validator.CodeNoFile,
			Message: "Invalid form data",
		})
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		h.handleError(c, "No files provided", &validator.ValidationError{
			Code:    validator.CodeNoFile,
			Message: "No files provided",
			Field:   "files",
		})
		return
	}

	results, err := h.service.ProcessBatch(c.Request.Context(), files)

	items := make([]BatchItem, len(results))
	for i, r := range results {
		items[i] = BatchItem{
			Filename:   r.Filename,
			DocumentID: r.DocumentID,
			TaskID:     r.TaskID,
			Status:     string(r.Status),
		}
	}

	if err != nil {
		status, message := classify(err)
		h.logError(c, status, "Batch upload failed", err)
		c.JSON(status, gin.H{
			"error":     err.Error(),
			"message":   message,
			"documents": items,
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":   fmt.Sprintf("Processing %d documents", len(items)),
		"documents": items,
	})
}

// GetStatus 获取文档处理状态
func (h *DocumentHandler) GetStatus(c *gin.Context) {
	status, err := h.service.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, "Failed to get document status", err)
		return
	}

	c.JSON(http.StatusOK, h.converter.Status(status.Document, status.LatestTask))
}

// GetContent 获取提取的内容
func (h *DocumentHandler) GetContent(c *gin.Context) {
	doc, err := h.service.GetContent(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, "Failed to get document content", err)
		return
	}

	c.JSON(http.StatusOK, h.converter.Content(doc))
}

// ListDocuments 列出所有文档
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	views, ok := h.summaries(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, converters.ListView{
		Documents:  views,
		TotalCount: len(views),
	})
}

// ExportDocuments 导出文档列表为 XLSX
func (h *DocumentHandler) ExportDocuments(c *gin.Context) {
	views, ok := h.summaries(c)
	if !ok {
		return
	}

	data, err := export.DocumentsXLSX(views)
	if err != nil {
		h.handleError(c, "Failed to export documents", err)
		return
	}

	filename := fmt.Sprintf("documents_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, export.ContentType, data)
}

func (h *DocumentHandler) summaries(c *gin.Context) ([]converters.SummaryView, bool) {
	status := models.DocumentStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		h.handleError(c, "Invalid status filter", &validator.ValidationError{
			Code:    "INVALID_STATUS",
			Message: fmt.Sprintf("Unknown status %q", status),
			Field:   "status",
		})
		return nil, false
	}

	docs, err := h.service.ListDocuments(c.Request.Context(), status)
	if err != nil {
		h.handleError(c, "Failed to list documents", err)
		return nil, false
	}

	views := make([]converters.SummaryView, 0, len(docs))
	for _, d := range docs {
		views = append(views, h.converter.Summary(d.Document, d.LatestTask))
	}
	return views, true
}

// DeleteDocument 删除文档及其文件
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	if err := h.service.DeleteDocument(c.Request.Context(), c.Param("id")); err != nil {
		h.handleError(c, "Failed to delete document", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Document deleted successfully",
	})
}

// GetTaskStatus 获取任务状态
func (h *DocumentHandler) GetTaskStatus(c *gin.Context) {
	task, err := h.service.GetTaskStatus(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		h.handleError(c, "Failed to get task status", err)
		return
	}

	c.JSON(http.StatusOK, h.converter.Task(task.Task, task.DocumentTitle))
}

// classify maps a service error onto an HTTP status and a client message.
func classify(err error) (int, string) {
	var validationErr *validator.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, validationErr.Message
	case errors.Is(err, document.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, document.ErrNotCompleted):
		return http.StatusBadRequest, "Document processing not completed"
	default:
		return http.StatusInternalServerError, ""
	}
}

// handleError 统一错误处理
func (h *DocumentHandler) handleError(c *gin.Context, message string, err error) {
	status, clientMessage := classify(err)
	if clientMessage != "" {
		message = clientMessage
	}
	h.logError(c, status, message, err)

	c.JSON(status, ErrorResponse{
		Error:   err.Error(),
		Message: message,
	})
}

func (h *DocumentHandler) logError(c *gin.Context, status int, message string, err error) {
	log := logger.FromContext(c.Request.Context(), h.logger)
	fields := []logger.Field{
		logger.String("path", c.Request.URL.Path),
		logger.Int("status", status),
		logger.Error(err),
	}
	if status >= http.StatusInternalServerError {
		log.Error(message, fields...)
		return
	}
	log.Warn(message, fields...)
}

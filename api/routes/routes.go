package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/pdf-processor/api/handlers"
	"github.com/feichai0017/pdf-processor/api/middleware"
	"github.com/feichai0017/pdf-processor/pkg/logger"
)

type Options struct {
	AllowOrigins []string
	// MaxUploadSize caps the in-memory part of multipart parsing.
	MaxUploadSize int64
	Logger        logger.Logger
}

// SetupRoutes 配置所有路由
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, opts Options) {
	// 全局中间件
	if opts.Logger != nil {
		r.Use(middleware.RequestLogger(opts.Logger))
	}
	r.Use(middleware.CORS(opts.AllowOrigins))
	if opts.MaxUploadSize > 0 {
		r.MaxMultipartMemory = opts.MaxUploadSize
	}

	// API 版本组
	v1 := r.Group("/api/v1")

	// 健康检查
	v1.GET("/health", h.Health.Check)

	// PDF 路由组
	pdf := v1.Group("/pdf")
	{
		pdf.POST("/upload", h.Document.UploadPDF)
		pdf.POST("/batch", h.Document.UploadBatch)
		pdf.GET("/documents", h.Document.ListDocuments)
		pdf.GET("/documents/export", h.Document.ExportDocuments)
		pdf.GET("/documents/:id/status", h.Document.GetStatus)
		pdf.GET("/documents/:id/content", h.Document.GetContent)
		pdf.DELETE("/documents/:id", h.Document.DeleteDocument)
		pdf.GET("/tasks/:taskId/status", h.Document.GetTaskStatus)
	}
}

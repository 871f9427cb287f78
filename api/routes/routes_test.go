package routes

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/feichai0017/pdf-processor/api/handlers"
	"github.com/feichai0017/pdf-processor/pkg/logger"
)

func TestSetupRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	SetupRoutes(r, handlers.NewHandlers(nil, logger.NewTestLogger()), Options{
		MaxUploadSize: 1 << 20,
		Logger:        logger.NewTestLogger(),
	})

	registered := make(map[string]bool)
	for _, route := range r.Routes() {
		registered[route.Method+" "+route.Path] = true
	}

	for _, want := range []string{
		http.MethodGet + " /api/v1/health",
		http.MethodPost + " /api/v1/pdf/upload",
		http.MethodPost + " /api/v1/pdf/batch",
		http.MethodGet + " /api/v1/pdf/documents",
		http.MethodGet + " /api/v1/pdf/documents/export",
		http.MethodGet + " /api/v1/pdf/documents/:id/status",
		http.MethodGet + " /api/v1/pdf/documents/:id/content",
		http.MethodDelete + " /api/v1/pdf/documents/:id",
		http.MethodGet + " /api/v1/pdf/tasks/:taskId/status",
	} {
		assert.True(t, registered[want], want)
	}
	assert.Equal(t, int64(1<<20), r.MaxMultipartMemory)
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdf-processor/pkg/logger"
)

func setupRouter(log logger.Logger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(log), CORS(nil))
	r.GET("/ok", func(c *gin.Context) {
		logger.FromContext(c.Request.Context(), log).Info("inside handler")
		c.Status(http.StatusOK)
	})
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	return r
}

func TestRequestLogger_AssignsRequestID(t *testing.T) {
	log := logger.NewTestLogger()
	r := setupRouter(log)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))

	require.Equal(t, http.StatusOK, w.Code)
	id := w.Header().Get(RequestIDHeader)
	assert.NotEmpty(t, id)
	assert.True(t, log.Has("INFO", "Request handled"))

	var tagged bool
	for _, e := range log.GetEntries() {
		if e.Message != "inside handler" {
			continue
		}
		for _, f := range e.Fields {
			if f.Key == "request_id" && f.String == id {
				tagged = true
			}
		}
	}
	assert.True(t, tagged)
}

func TestRequestLogger_KeepsIncomingID(t *testing.T) {
	r := setupRouter(logger.NewTestLogger())

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestRequestLogger_ServerErrors(t *testing.T) {
	log := logger.NewTestLogger()
	r := setupRouter(log)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.True(t, log.Has("ERROR", "Request failed"))
}

func TestCORS_Preflight(t *testing.T) {
	r := setupRouter(logger.NewTestLogger())

	req := httptest.NewRequest(http.MethodOptions, "/ok", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

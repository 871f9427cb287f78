package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdf-processor/internal/models"
	"github.com/feichai0017/pdf-processor/internal/service/document"
	"github.com/feichai0017/pdf-processor/pkg/logger"
	"github.com/feichai0017/pdf-processor/pkg/queue"
)

type fakeHandler struct {
	documentID string
	taskID     string
	err        error
	removed    int
	cleanupErr error
}

func (h *fakeHandler) HandleDocument(ctx context.Context, documentID, taskID string) (*document.RunResult, error) {
	h.documentID, h.taskID = documentID, taskID
	if h.err != nil {
		return nil, h.err
	}
	return &document.RunResult{DocumentID: documentID, TaskID: taskID, Status: models.DocumentCompleted}, nil
}

func (h *fakeHandler) CleanupDocuments(ctx context.Context) (int, error) {
	return h.removed, h.cleanupErr
}

func newTestWorker(h DocumentHandler) (*DocumentWorker, *logger.TestLogger) {
	log := logger.NewTestLogger()
	return &DocumentWorker{
		BaseWorker: BaseWorker{logger: log},
		docService: h,
	}, log
}

func TestHandleDocumentProcess_PassesIDs(t *testing.T) {
	h := &fakeHandler{}
	w, log := newTestWorker(h)

	task, err := queue.NewProcessTask("doc-1", "task-1")
	require.NoError(t, err)

	require.NoError(t, w.handleDocumentProcess(context.Background(), task))
	assert.Equal(t, "doc-1", h.documentID)
	assert.Equal(t, "task-1", h.taskID)
	assert.True(t, log.Has("INFO", "Processing document task"))
}

func TestHandleDocumentProcess_BadPayload(t *testing.T) {
	h := &fakeHandler{}
	w, log := newTestWorker(h)

	err := w.handleDocumentProcess(context.Background(), asynq.NewTask(queue.TaskTypePDFProcess, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, h.documentID)
	assert.True(t, log.Has("ERROR", "Failed to unmarshal task"))
}

func TestHandleDocumentProcess_Errors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		skipRetry bool
	}{
		{name: "missing document", err: fmt.Errorf("%w: document doc-1", document.ErrNotFound), skipRetry: true},
		{name: "changed document", err: document.ErrDocumentChanged, skipRetry: true},
		{name: "database down", err: errors.New("connection refused"), skipRetry: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := newTestWorker(&fakeHandler{err: tt.err})
			task, err := queue.NewProcessTask("doc-1", "task-1")
			require.NoError(t, err)

			err = w.handleDocumentProcess(context.Background(), task)
			require.Error(t, err)
			assert.Equal(t, tt.skipRetry, errors.Is(err, asynq.SkipRetry))
		})
	}
}

func TestHandleDocumentsCleanup(t *testing.T) {
	w, _ := newTestWorker(&fakeHandler{removed: 3})
	assert.NoError(t, w.handleDocumentsCleanup(context.Background(), queue.NewCleanupTask()))

	w, log := newTestWorker(&fakeHandler{cleanupErr: errors.New("db locked")})
	assert.Error(t, w.handleDocumentsCleanup(context.Background(), queue.NewCleanupTask()))
	assert.True(t, log.Has("ERROR", "Cleanup run failed"))
}

func TestNewDocumentWorker_RequiresConcurrency(t *testing.T) {
	_, err := NewDocumentWorker(&Config{RedisAddr: "localhost:6379"}, &fakeHandler{}, logger.NewTestLogger())
	assert.Error(t, err)
}

func TestAsynqLogger_Routes(t *testing.T) {
	log := logger.NewTestLogger()
	l := asynqLogger{logger: log}

	l.Info("server ", "started")
	l.Warn("slow")
	assert.True(t, log.Has("INFO", "server started"))
	assert.True(t, log.Has("WARN", "slow"))
}

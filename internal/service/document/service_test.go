package document

import (
	"context"
	"errors"
	"mime/multipart"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdf-processor/internal/agent"
	"github.com/feichai0017/pdf-processor/internal/models"
	"github.com/feichai0017/pdf-processor/internal/repository"
	"github.com/feichai0017/pdf-processor/internal/testutil"
	"github.com/feichai0017/pdf-processor/internal/utils/validator"
)

func newRealExtractor(e *env) Extractor {
	return agent.NewExtractor(e.log)
}

func upload(t *testing.T, svc *DocumentService, name string, content []byte, title string) (*UploadResult, error) {
	t.Helper()
	header := fileHeader(t, name, content)
	file, err := header.Open()
	require.NoError(t, err)
	defer file.Close()
	return svc.ProcessFile(context.Background(), file, header, title)
}

func TestProcessFile_EndToEnd(t *testing.T) {
	ctx := context.Background()
	e := setupEnv(t)
	svc := e.service(newRealExtractor(e))

	content := testutil.BuildPDF([]string{"Page one text", "", "Page three text"}, map[string]string{"Title": "Sample"})
	res, err := upload(t, svc, "sample.pdf", content, "")
	require.NoError(t, err)

	assert.Equal(t, models.DocumentPending, res.Status)
	assert.Equal(t, "sample.pdf", res.Filename)
	assert.Equal(t, "task-1", res.TaskID)
	require.Len(t, e.dispatcher.dispatched, 1)
	assert.Equal(t, res.DocumentID, e.dispatcher.dispatched[0].DocumentID)

	status, err := svc.GetStatus(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentPending, status.Document.Status)
	assert.Equal(t, "sample.pdf", status.Document.Title)
	assert.Equal(t, int64(len(content)), status.Document.FileSize)
	assert.Nil(t, status.LatestTask)

	_, err = svc.GetContent(ctx, res.DocumentID)
	assert.ErrorIs(t, err, ErrNotCompleted)

	pending, err := svc.GetTaskStatus(ctx, res.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskPending, pending.Task.Status)
	assert.Equal(t, "sample.pdf", pending.DocumentTitle)

	run, err := svc.HandleDocument(ctx, res.DocumentID, res.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentCompleted, run.Status)
	assert.Equal(t, 3, run.PageCount)

	doc, err := svc.GetContent(ctx, res.DocumentID)
	require.NoError(t, err)
	require.NotNil(t, doc.ExtractedText)
	assert.Contains(t, *doc.ExtractedText, "--- Page 1 ---")
	assert.Contains(t, *doc.ExtractedText, "Page one text")
	assert.Contains(t, *doc.ExtractedText, "--- Page 3 ---")
	assert.NotContains(t, *doc.ExtractedText, "--- Page 2 ---")
	require.NotNil(t, doc.PageCount)
	assert.Equal(t, 3, *doc.PageCount)

	task, err := svc.GetTaskStatus(ctx, res.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskSuccess, task.Task.Status)

	status, err = svc.GetStatus(ctx, res.DocumentID)
	require.NoError(t, err)
	require.NotNil(t, status.LatestTask)
	assert.Equal(t, res.TaskID, status.LatestTask.TaskID)
}

func TestProcessFile_PageMarkersInOrder(t *testing.T) {
	ctx := context.Background()
	e := setupEnv(t)
	svc := e.service(newRealExtractor(e))

	content := testutil.BuildPDF([]string{"first page", "second page", "third page"}, nil)
	res, err := upload(t, svc, "three.pdf", content, "")
	require.NoError(t, err)

	run, err := svc.HandleDocument(ctx, res.DocumentID, res.TaskID)
	require.NoError(t, err)
	require.Equal(t, models.DocumentCompleted, run.Status)
	assert.Equal(t, 3, run.PageCount)

	doc, err := svc.GetContent(ctx, res.DocumentID)
	require.NoError(t, err)
	require.NotNil(t, doc.ExtractedText)
	text := *doc.ExtractedText

	prev := -1
	for i, marker := range []string{"--- Page 1 ---", "--- Page 2 ---", "--- Page 3 ---"} {
		at := strings.Index(text, marker)
		require.GreaterOrEqual(t, at, 0, marker)
		assert.Greater(t, at, prev, marker)
		assert.Equal(t, 1, strings.Count(text, marker), marker)
		prev = at

		body := []string{"first page", "second page", "third page"}[i]
		assert.Greater(t, strings.Index(text, body), at, body)
	}
	assert.Equal(t, 3, strings.Count(text, "--- Page "))
}

func TestProcessFile_UsesGivenTitle(t *testing.T) {
	e := setupEnv(t)
	svc := e.service(staticExtractor("", 0))

	res, err := upload(t, svc, "scan.pdf", testutil.BuildPDF([]string{"x"}, nil), "Annual Report")
	require.NoError(t, err)

	doc, err := e.repo.GetDocument(context.Background(), res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "Annual Report", doc.Title)
	assert.Equal(t, "pdfs/"+res.DocumentID+".pdf", doc.FileReference)
}

func TestProcessFile_RejectsInvalidUploads(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  []byte
		maxSize  int64
		code     string
	}{
		{name: "wrong extension", filename: "notes.txt", content: []byte("hello"), code: validator.CodeInvalidFileType},
		{name: "empty file", filename: "empty.pdf", content: nil, code: validator.CodeEmptyFile},
		{name: "too large", filename: "big.pdf", content: make([]byte, 2048), maxSize: 1024, code: validator.CodeFileTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := setupEnv(t)
			if tt.maxSize > 0 {
				e.cfg.MaxFileSize = tt.maxSize
			}
			svc := e.service(staticExtractor("", 0))

			_, err := upload(t, svc, tt.filename, tt.content, "")
			var verr *validator.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.code, verr.Code)

			assert.Empty(t, e.dispatcher.dispatched)
			docs, err := e.repo.ListDocuments(context.Background(), repository.DocumentFilter{})
			require.NoError(t, err)
			assert.Empty(t, docs)
		})
	}
}

func TestProcessFile_DispatchFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	e := setupEnv(t)
	e.dispatcher.err = errors.New("redis down")
	svc := e.service(staticExtractor("", 0))

	_, err := upload(t, svc, "sample.pdf", testutil.BuildPDF([]string{"x"}, nil), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")

	docs, err := e.repo.ListDocuments(ctx, repository.DocumentFilter{})
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.True(t, e.log.Has("ERROR", "Failed to dispatch processing"))
}

func TestProcessFile_RollbackSurvivesCanceledContext(t *testing.T) {
	e := setupEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher := &cancelingDispatcher{cancel: cancel}
	svc := NewService(e.repo, e.store, dispatcher, staticExtractor("", 0), e.log, e.cfg)

	header := fileHeader(t, "sample.pdf", testutil.BuildPDF([]string{"x"}, nil))
	file, err := header.Open()
	require.NoError(t, err)
	defer file.Close()

	_, err = svc.ProcessFile(ctx, file, header, "")
	require.Error(t, err)

	bg := context.Background()
	docs, err := e.repo.ListDocuments(bg, repository.DocumentFilter{})
	require.NoError(t, err)
	assert.Empty(t, docs)

	require.Len(t, dispatcher.received, 1)
	exists, err := e.store.Exists(bg, "pdfs/"+dispatcher.received[0]+".pdf")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.False(t, e.log.Has("ERROR", "Failed to roll back document"))
}

func TestProcessBatch_SiblingFailureLeavesNoPendingDocuments(t *testing.T) {
	e := setupEnv(t)
	dispatcher := newBrokerDownDispatcher()
	svc := NewService(e.repo, e.store, dispatcher, staticExtractor("", 0), e.log, e.cfg)

	pdf := testutil.BuildPDF([]string{"x"}, nil)
	results, err := svc.ProcessBatch(context.Background(), []*multipart.FileHeader{
		fileHeader(t, "a.pdf", pdf),
		fileHeader(t, "b.pdf", pdf),
	})
	require.Error(t, err)
	assert.Empty(t, results)

	bg := context.Background()
	docs, err := e.repo.ListDocuments(bg, repository.DocumentFilter{})
	require.NoError(t, err)
	assert.Empty(t, docs)

	require.Len(t, dispatcher.received, 2)
	for _, id := range dispatcher.received {
		exists, err := e.store.Exists(bg, "pdfs/"+id+".pdf")
		require.NoError(t, err)
		assert.False(t, exists, id)
	}
	assert.False(t, e.log.Has("ERROR", "Failed to roll back document"))
}

func TestProcessBatch(t *testing.T) {
	e := setupEnv(t)
	svc := e.service(staticExtractor("", 0))

	pdf := testutil.BuildPDF([]string{"x"}, nil)
	results, err := svc.ProcessBatch(context.Background(), []*multipart.FileHeader{
		fileHeader(t, "a.pdf", pdf),
		fileHeader(t, "b.pdf", pdf),
	})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Len(t, e.dispatcher.dispatched, 2)
}

func TestProcessBatch_ReportsBadFile(t *testing.T) {
	e := setupEnv(t)
	svc := e.service(staticExtractor("", 0))

	_, err := svc.ProcessBatch(context.Background(), []*multipart.FileHeader{
		fileHeader(t, "a.pdf", testutil.BuildPDF([]string{"x"}, nil)),
		fileHeader(t, "b.txt", []byte("text")),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b.txt")
}

func TestDeleteDocument(t *testing.T) {
	ctx := context.Background()
	e := setupEnv(t)
	svc := e.service(staticExtractor("--- Page 1 ---\nx", 1))

	res, err := upload(t, svc, "sample.pdf", testutil.BuildPDF([]string{"x"}, nil), "")
	require.NoError(t, err)
	_, err = svc.HandleDocument(ctx, res.DocumentID, res.TaskID)
	require.NoError(t, err)

	doc, err := e.repo.GetDocument(ctx, res.DocumentID)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteDocument(ctx, res.DocumentID))

	_, err = svc.GetStatus(ctx, res.DocumentID)
	assert.ErrorIs(t, err, ErrNotFound)
	exists, err := e.store.Exists(ctx, doc.FileReference)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = svc.GetTaskStatus(ctx, res.TaskID)
	assert.Error(t, err)

	assert.ErrorIs(t, svc.DeleteDocument(ctx, res.DocumentID), ErrNotFound)
}

func TestListDocuments_WithLatestTask(t *testing.T) {
	ctx := context.Background()
	e := setupEnv(t)
	svc := e.service(staticExtractor("--- Page 1 ---\nx", 1))

	first, err := upload(t, svc, "a.pdf", testutil.BuildPDF([]string{"x"}, nil), "")
	require.NoError(t, err)
	_, err = upload(t, svc, "b.pdf", testutil.BuildPDF([]string{"x"}, nil), "")
	require.NoError(t, err)
	_, err = svc.HandleDocument(ctx, first.DocumentID, first.TaskID)
	require.NoError(t, err)

	all, err := svc.ListDocuments(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	completed, err := svc.ListDocuments(ctx, models.DocumentCompleted)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, first.DocumentID, completed[0].Document.ID)
	require.NotNil(t, completed[0].LatestTask)
	assert.Equal(t, models.TaskSuccess, completed[0].LatestTask.Status)
}

func TestGetTaskStatus_Unknown(t *testing.T) {
	e := setupEnv(t)
	svc := e.service(staticExtractor("", 0))

	_, err := svc.GetTaskStatus(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetTaskStatus_WithoutInspector(t *testing.T) {
	e := setupEnv(t)
	svc := NewService(e.repo, e.store, &fakeDispatcher{}, staticExtractor("", 0), e.log, e.cfg)

	_, err := svc.GetTaskStatus(context.Background(), "task-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHealthCheck(t *testing.T) {
	e := setupEnv(t)
	svc := e.service(staticExtractor("", 0))

	checks := svc.HealthCheck(context.Background())
	assert.NoError(t, checks["database"])
	_, ok := checks["queue"]
	assert.False(t, ok)
}

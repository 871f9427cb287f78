package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdf-processor/internal/models"
)

func setupRepo(t *testing.T) *SQLRepository {
	t.Helper()

	db, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewSQLRepository(db)
}

func newDocument(id string, uploaded time.Time) *models.Document {
	return models.NewDocument(id, "title "+id, "pdfs/"+id+".pdf", 1024, uploaded)
}

func TestDocument_CreateThenGet(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	uploaded := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	doc := newDocument("doc-1", uploaded)
	require.NoError(t, repo.CreateDocument(ctx, doc))
	assert.Equal(t, int64(1), doc.Version)

	got, err := repo.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "title doc-1", got.Title)
	assert.Equal(t, "pdfs/doc-1.pdf", got.FileReference)
	assert.Equal(t, int64(1024), got.FileSize)
	assert.Equal(t, models.DocumentPending, got.Status)
	assert.True(t, uploaded.Equal(got.UploadTime))
	assert.Nil(t, got.ProcessingStartedAt)
	assert.Nil(t, got.ExtractedText)
	assert.Nil(t, got.PageCount)
	assert.Empty(t, got.Metadata)
	assert.Equal(t, int64(1), got.Version)
}

func TestDocument_GetMissing(t *testing.T) {
	repo := setupRepo(t)

	_, err := repo.GetDocument(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDocument_UpdateRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	now := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	doc := newDocument("doc-1", now)
	require.NoError(t, repo.CreateDocument(ctx, doc))

	doc.MarkProcessing(now.Add(time.Second))
	require.NoError(t, repo.UpdateDocument(ctx, doc))
	assert.Equal(t, int64(2), doc.Version)

	metadata := models.EmptyMetadata()
	metadata[models.MetaAuthor] = "Jane"
	doc.MarkCompleted(&models.Extraction{Text: "--- Page 1 ---\nhi", PageCount: 1, Metadata: metadata}, now.Add(2*time.Second))
	require.NoError(t, repo.UpdateDocument(ctx, doc))

	got, err := repo.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.DocumentCompleted, got.Status)
	require.NotNil(t, got.ExtractedText)
	assert.Equal(t, "--- Page 1 ---\nhi", *got.ExtractedText)
	require.NotNil(t, got.PageCount)
	assert.Equal(t, 1, *got.PageCount)
	assert.Equal(t, "Jane", got.Metadata[models.MetaAuthor])
	assert.Len(t, got.Metadata, len(models.MetadataKeys))
	require.NotNil(t, got.ProcessingStartedAt)
	require.NotNil(t, got.ProcessingCompletedAt)
	assert.Equal(t, time.Second, got.ProcessingDuration())
	assert.Equal(t, int64(3), got.Version)
}

func TestDocument_UpdateStaleVersion(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	doc := newDocument("doc-1", time.Now())
	require.NoError(t, repo.CreateDocument(ctx, doc))

	stale, err := repo.GetDocument(ctx, "doc-1")
	require.NoError(t, err)

	doc.MarkProcessing(time.Now())
	require.NoError(t, repo.UpdateDocument(ctx, doc))

	stale.MarkFailed("late writer")
	err = repo.UpdateDocument(ctx, stale)
	assert.ErrorIs(t, err, ErrVersionConflict)

	got, err := repo.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.DocumentProcessing, got.Status)
}

func TestDocument_UpdateDeleted(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	doc := newDocument("doc-1", time.Now())
	require.NoError(t, repo.CreateDocument(ctx, doc))
	require.NoError(t, repo.DeleteDocument(ctx, "doc-1"))

	doc.MarkProcessing(time.Now())
	assert.ErrorIs(t, repo.UpdateDocument(ctx, doc), ErrVersionConflict)
}

func TestDocument_DeleteRemovesTasks(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	now := time.Now()
	require.NoError(t, repo.CreateDocument(ctx, newDocument("doc-1", now)))
	require.NoError(t, repo.CreateDocument(ctx, newDocument("doc-2", now)))
	require.NoError(t, repo.CreateTask(ctx, models.NewTask("task-1", "doc-1", now)))
	require.NoError(t, repo.CreateTask(ctx, models.NewTask("task-2", "doc-1", now.Add(time.Second))))
	require.NoError(t, repo.CreateTask(ctx, models.NewTask("task-3", "doc-2", now)))

	require.NoError(t, repo.DeleteDocument(ctx, "doc-1"))

	_, err := repo.GetDocument(ctx, "doc-1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetTask(ctx, "task-1")
	assert.ErrorIs(t, err, ErrNotFound)
	tasks, err := repo.ListTasks(ctx, "doc-1")
	require.NoError(t, err)
	assert.Empty(t, tasks)

	_, err = repo.GetTask(ctx, "task-3")
	assert.NoError(t, err)

	assert.ErrorIs(t, repo.DeleteDocument(ctx, "doc-1"), ErrNotFound)
}

func TestListDocuments_FiltersAndOrder(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		doc := newDocument(id, base.Add(time.Duration(i)*24*time.Hour))
		require.NoError(t, repo.CreateDocument(ctx, doc))
		if id != "b" {
			doc.MarkProcessing(base)
			doc.MarkCompleted(&models.Extraction{Text: "x", PageCount: 1, Metadata: models.EmptyMetadata()}, base)
			require.NoError(t, repo.UpdateDocument(ctx, doc))
		}
	}

	all, err := repo.ListDocuments(ctx, DocumentFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, ids(all))

	completed, err := repo.ListDocuments(ctx, DocumentFilter{Status: models.DocumentCompleted})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, ids(completed))

	old, err := repo.ListDocuments(ctx, DocumentFilter{
		Status:         models.DocumentCompleted,
		UploadedBefore: base.Add(36 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(old))

	limited, err := repo.ListDocuments(ctx, DocumentFilter{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(limited))
}

func TestTask_CreateUpdateLatest(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.CreateDocument(ctx, newDocument("doc-1", now)))

	_, err := repo.LatestTask(ctx, "doc-1")
	assert.ErrorIs(t, err, ErrNotFound)

	first := models.NewTask("task-1", "doc-1", now)
	require.NoError(t, repo.CreateTask(ctx, first))
	second := models.NewTask("task-2", "doc-1", now.Add(time.Minute))
	require.NoError(t, repo.CreateTask(ctx, second))

	second.MarkSuccess(map[string]interface{}{
		models.ResultPageCount:      3,
		models.ResultTextLength:     120,
		models.ResultProcessingTime: "1.5s",
	}, now.Add(2*time.Minute))
	require.NoError(t, repo.UpdateTask(ctx, second))

	latest, err := repo.LatestTask(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "task-2", latest.TaskID)
	assert.Equal(t, models.TaskSuccess, latest.Status)
	assert.Equal(t, models.TaskNameProcessDocument, latest.Name)
	// numbers come back from JSON as float64
	assert.Equal(t, float64(3), latest.Result[models.ResultPageCount])
	assert.Equal(t, "1.5s", latest.Result[models.ResultProcessingTime])
	assert.Nil(t, latest.Error)
	assert.True(t, now.Add(2*time.Minute).Equal(latest.UpdatedAt))

	first.MarkFailure("boom", now.Add(time.Minute))
	require.NoError(t, repo.UpdateTask(ctx, first))
	got, err := repo.GetTask(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailure, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, "boom", *got.Error)

	tasks, err := repo.ListTasks(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "task-2", tasks[0].TaskID)
}

func TestTask_UpdateMissing(t *testing.T) {
	repo := setupRepo(t)

	task := models.NewTask("ghost", "doc-1", time.Now())
	assert.ErrorIs(t, repo.UpdateTask(context.Background(), task), ErrNotFound)
}

func TestTask_RequiresDocument(t *testing.T) {
	repo := setupRepo(t)

	err := repo.CreateTask(context.Background(), models.NewTask("task-1", "missing", time.Now()))
	assert.Error(t, err)
}

func ids(docs []*models.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}

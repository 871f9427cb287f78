package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdf-processor/internal/models"
	"github.com/feichai0017/pdf-processor/internal/repository"
	"github.com/feichai0017/pdf-processor/pkg/logger"
	"github.com/feichai0017/pdf-processor/pkg/queue"
	"github.com/feichai0017/pdf-processor/pkg/storage/local"
)

type fakeDispatcher struct {
	mu         sync.Mutex
	dispatched []queue.PendingTask
	err        error
}

func (d *fakeDispatcher) DispatchProcessing(ctx context.Context, documentID string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return "", d.err
	}
	taskID := fmt.Sprintf("task-%d", len(d.dispatched)+1)
	d.dispatched = append(d.dispatched, queue.PendingTask{
		TaskID:     taskID,
		DocumentID: documentID,
		State:      "pending",
	})
	return taskID, nil
}

// inspectingDispatcher also answers queue lookups for dispatched tasks.
type inspectingDispatcher struct {
	fakeDispatcher
}

func (d *inspectingDispatcher) PendingTask(ctx context.Context, taskID string) (*queue.PendingTask, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.dispatched {
		if p.TaskID == taskID {
			p := p
			return &p, nil
		}
	}
	return nil, queue.ErrTaskNotFound
}

// brokerDownDispatcher fails the first dispatch once a second one is in
// flight; the second waits until its context is cancelled.
type brokerDownDispatcher struct {
	mu       sync.Mutex
	calls    int
	arrived  chan struct{}
	received []string
}

func newBrokerDownDispatcher() *brokerDownDispatcher {
	return &brokerDownDispatcher{arrived: make(chan struct{})}
}

func (d *brokerDownDispatcher) DispatchProcessing(ctx context.Context, documentID string) (string, error) {
	d.mu.Lock()
	d.calls++
	call := d.calls
	d.received = append(d.received, documentID)
	d.mu.Unlock()

	if call == 1 {
		<-d.arrived
		return "", errors.New("broker unavailable")
	}
	close(d.arrived)
	<-ctx.Done()
	return "", ctx.Err()
}

// cancelingDispatcher cancels the upload's context before failing.
type cancelingDispatcher struct {
	cancel   context.CancelFunc
	received []string
}

func (d *cancelingDispatcher) DispatchProcessing(ctx context.Context, documentID string) (string, error) {
	d.received = append(d.received, documentID)
	d.cancel()
	return "", errors.New("broker unavailable")
}

type extractorFunc func(ctx context.Context, path string) (*models.Extraction, error)

func (f extractorFunc) Extract(ctx context.Context, path string) (*models.Extraction, error) {
	return f(ctx, path)
}

func staticExtractor(text string, pages int) extractorFunc {
	return func(ctx context.Context, path string) (*models.Extraction, error) {
		metadata := models.EmptyMetadata()
		metadata[models.MetaTitle] = "Extracted"
		return &models.Extraction{Text: text, PageCount: pages, Metadata: metadata, Method: "static"}, nil
	}
}

func failingExtractor(err error) extractorFunc {
	return func(ctx context.Context, path string) (*models.Extraction, error) {
		return nil, err
	}
}

// taskFailingRepo loses the ability to read tasks back.
type taskFailingRepo struct {
	*repository.SQLRepository
}

func (r *taskFailingRepo) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	return nil, errors.New("task table unavailable")
}

type env struct {
	repo       *repository.SQLRepository
	store      *local.LocalStorage
	dispatcher *inspectingDispatcher
	log        *logger.TestLogger
	now        time.Time
	cfg        *ServiceConfig
}

func setupEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()

	db, err := repository.Open(context.Background(), repository.DriverSQLite, filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logger.NewTestLogger()
	store, err := local.New(filepath.Join(dir, "files"), log)
	require.NoError(t, err)

	e := &env{
		repo:       repository.NewSQLRepository(db),
		store:      store,
		dispatcher: &inspectingDispatcher{},
		log:        log,
		now:        time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	e.cfg = DefaultServiceConfig()
	e.cfg.Now = func() time.Time { return e.now }
	return e
}

func (e *env) service(extractor Extractor) *DocumentService {
	return NewService(e.repo, e.store, e.dispatcher, extractor, e.log, e.cfg)
}

// seedDocument stores content and inserts a pending document for it.
func (e *env) seedDocument(t *testing.T, id string, content []byte, uploaded time.Time) *models.Document {
	t.Helper()
	key := "pdfs/" + id + ".pdf"
	_, err := e.store.Store(context.Background(), bytes.NewReader(content), key)
	require.NoError(t, err)

	doc := models.NewDocument(id, "doc "+id, key, int64(len(content)), uploaded)
	require.NoError(t, e.repo.CreateDocument(context.Background(), doc))
	return doc
}

// fileHeader builds the multipart header a browser upload of name would produce.
func fileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&body, w.Boundary()).ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })

	require.Len(t, form.File["file"], 1)
	return form.File["file"][0]
}

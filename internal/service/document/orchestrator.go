package document

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/feichai0017/pdf-processor/internal/models"
	"github.com/feichai0017/pdf-processor/internal/repository"
	"github.com/feichai0017/pdf-processor/pkg/logger"
	"github.com/feichai0017/pdf-processor/pkg/storage"
)

// failurePrefix starts every error message recorded for a failed run.
const failurePrefix = "Error processing PDF document: "

// recordTimeout bounds the writes that record a failure after the run's own
// context has ended.
const recordTimeout = 10 * time.Second

// Orchestrator drives one document through processing and records the
// outcome on the document and its task.
type Orchestrator struct {
	repo      repository.Repository
	storage   storage.Storage
	extractor Extractor
	logger    logger.Logger
	timeout   time.Duration
	now       func() time.Time
}

func NewOrchestrator(
	repo repository.Repository,
	store storage.Storage,
	extractor Extractor,
	log logger.Logger,
	timeout time.Duration,
	now func() time.Time,
) *Orchestrator {
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		repo:      repo,
		storage:   store,
		extractor: extractor,
		logger:    log.Named("orchestrator"),
		timeout:   timeout,
		now:       now,
	}
}

// Run processes documentID under taskID. Extraction problems never surface as
// an error: they end in a failed document and a FAILURE task. Errors are
// returned only for a missing document (ErrNotFound) and for a document that
// changed underneath the run (ErrDocumentChanged).
func (o *Orchestrator) Run(ctx context.Context, documentID, taskID string) (result *RunResult, err error) {
	log := logger.FromContext(ctx, o.logger).With(
		logger.String("documentId", documentID),
		logger.String("taskId", taskID),
	)

	doc, err := o.repo.GetDocument(ctx, documentID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Error("PDF document not found")
		return nil, fmt.Errorf("%w: document %s", ErrNotFound, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			log.Error("Unexpected error while processing document",
				logger.Any("panic", p),
				logger.Stack(),
			)
			result, err = o.fail(ctx, log, doc, taskID, fmt.Errorf("unexpected error: %v", p)), nil
		}
	}()

	doc.MarkProcessing(o.now())
	if err := o.repo.UpdateDocument(ctx, doc); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			log.Warn("Document changed before processing started")
			return nil, ErrDocumentChanged
		}
		return o.fail(ctx, log, doc, taskID, err), nil
	}

	task := models.NewTask(taskID, doc.ID, o.now())
	if err := o.repo.CreateTask(ctx, task); err != nil {
		return o.fail(ctx, log, doc, taskID, fmt.Errorf("failed to create task: %w", err)), nil
	}

	extraction, err := o.extract(ctx, doc)
	if err != nil {
		return o.fail(ctx, log, doc, taskID, err), nil
	}

	completedAt := o.now()
	doc.MarkCompleted(extraction, completedAt)
	if err := o.repo.UpdateDocument(ctx, doc); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			log.Warn("Document changed during processing; result discarded")
			return nil, ErrDocumentChanged
		}
		return o.fail(ctx, log, doc, taskID, err), nil
	}

	textLength := utf8.RuneCountInString(extraction.Text)
	duration := doc.ProcessingDuration()
	task.MarkSuccess(map[string]interface{}{
		models.ResultPageCount:      extraction.PageCount,
		models.ResultTextLength:     textLength,
		models.ResultProcessingTime: duration.String(),
	}, completedAt)
	if err := o.repo.UpdateTask(ctx, task); err != nil {
		// the document already carries the result
		log.Error("Failed to record task success", logger.Error(err))
	}

	log.Info("Successfully processed PDF document",
		logger.String("title", doc.Title),
		logger.String("method", extraction.Method),
		logger.Int("pageCount", extraction.PageCount),
		logger.Int("textLength", textLength),
		logger.Duration("duration", duration),
	)

	return &RunResult{
		DocumentID:     doc.ID,
		TaskID:         taskID,
		Status:         doc.Status,
		PageCount:      extraction.PageCount,
		TextLength:     textLength,
		ProcessingTime: duration,
	}, nil
}

type extractOutcome struct {
	extraction *models.Extraction
	err        error
}

// extract resolves the stored file and runs the extractor under the
// configured timeout. A library call that ignores cancellation is left
// running and its result dropped.
func (o *Orchestrator) extract(ctx context.Context, doc *models.Document) (*models.Extraction, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	path, cleanup, err := storage.LocalPath(ctx, o.storage, doc.FileReference)
	if err != nil {
		return nil, fmt.Errorf("failed to open stored file: %w", err)
	}
	defer cleanup()

	done := make(chan extractOutcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- extractOutcome{err: fmt.Errorf("unexpected error: %v", p)}
			}
		}()
		extraction, err := o.extractor.Extract(ctx, path)
		done <- extractOutcome{extraction: extraction, err: err}
	}()

	select {
	case out := <-done:
		if out.err == nil && out.extraction == nil {
			return nil, fmt.Errorf("extractor returned no result")
		}
		return out.extraction, out.err
	case <-ctx.Done():
		return nil, fmt.Errorf("extraction aborted: %w", ctx.Err())
	}
}

// fail records cause on the document and, best effort, on the task.
func (o *Orchestrator) fail(ctx context.Context, log logger.Logger, doc *models.Document, taskID string, cause error) *RunResult {
	msg := failurePrefix + cause.Error()
	log.Error("Error processing PDF document", logger.Error(cause))

	// the run's context may already be done
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	doc.MarkFailed(msg)
	if err := o.repo.UpdateDocument(ctx, doc); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			log.Warn("Document changed during processing; failure not recorded")
		} else {
			log.Error("Failed to record document failure", logger.Error(err))
		}
	}

	o.recordTaskFailure(ctx, log, taskID, msg)

	return &RunResult{
		DocumentID: doc.ID,
		TaskID:     taskID,
		Status:     models.DocumentFailed,
		Error:      msg,
	}
}

// recordTaskFailure marks the task failed. Errors are logged and dropped:
// the document row is the authoritative record of the failure.
func (o *Orchestrator) recordTaskFailure(ctx context.Context, log logger.Logger, taskID, msg string) {
	task, err := o.repo.GetTask(ctx, taskID)
	if err != nil {
		log.Warn("Could not load task to record failure", logger.Error(err))
		return
	}
	task.MarkFailure(msg, o.now())
	if err := o.repo.UpdateTask(ctx, task); err != nil {
		log.Warn("Could not record task failure", logger.Error(err))
	}
}

package document

import (
	"context"
	"errors"
	"mime/multipart"
	"time"

	"github.com/feichai0017/pdf-processor/internal/models"
)

var (
	// ErrNotFound means no document or task has the requested id.
	ErrNotFound = errors.New("not found")

	// ErrNotCompleted is returned when content is requested before processing finished.
	ErrNotCompleted = errors.New("document processing not completed")

	// ErrDocumentChanged stops a processing run whose document was deleted
	// or modified by someone else in the meantime.
	ErrDocumentChanged = errors.New("document changed during processing")
)

type DocumentProcessor interface {
	// ProcessFile validates and stores an upload, records a pending
	// document and dispatches its processing run.
	ProcessFile(ctx context.Context, file multipart.File, header *multipart.FileHeader, title string) (*UploadResult, error)
	ProcessBatch(ctx context.Context, files []*multipart.FileHeader) ([]*UploadResult, error)

	GetStatus(ctx context.Context, documentID string) (*DocumentWithTask, error)
	GetContent(ctx context.Context, documentID string) (*models.Document, error)
	ListDocuments(ctx context.Context, status models.DocumentStatus) ([]*DocumentWithTask, error)
	DeleteDocument(ctx context.Context, documentID string) error
	GetTaskStatus(ctx context.Context, taskID string) (*TaskWithDocument, error)

	// HandleDocument runs the processing orchestrator for one dispatched task.
	HandleDocument(ctx context.Context, documentID, taskID string) (*RunResult, error)
	// CleanupDocuments removes completed documents past the retention period.
	CleanupDocuments(ctx context.Context) (int, error)

	HealthCheck(ctx context.Context) map[string]error
}

// Extractor turns a PDF on disk into text, page count and metadata.
type Extractor interface {
	Extract(ctx context.Context, path string) (*models.Extraction, error)
}

type UploadResult struct {
	DocumentID string                `json:"documentId"`
	TaskID     string                `json:"taskId"`
	Filename   string                `json:"filename"`
	Status     models.DocumentStatus `json:"status"`
}

// DocumentWithTask pairs a document with its most recent task, if any.
type DocumentWithTask struct {
	Document   *models.Document
	LatestTask *models.Task
}

type TaskWithDocument struct {
	Task          *models.Task
	DocumentTitle string
}

// RunResult summarises one orchestrator run.
type RunResult struct {
	DocumentID     string                `json:"documentId"`
	TaskID         string                `json:"taskId"`
	Status         models.DocumentStatus `json:"status"`
	PageCount      int                   `json:"pageCount,omitempty"`
	TextLength     int                   `json:"textLength,omitempty"`
	ProcessingTime time.Duration         `json:"processingTime,omitempty"`
	Error          string                `json:"error,omitempty"`
}

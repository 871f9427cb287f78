package repository

import (
	"context"
	"errors"
	"time"

	"github.com/feichai0017/pdf-processor/internal/models"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict means the row changed or disappeared since it was read.
	ErrVersionConflict = errors.New("version conflict")
)

// DocumentFilter narrows ListDocuments. Zero fields do not filter.
type DocumentFilter struct {
	Status         models.DocumentStatus
	UploadedBefore time.Time
	Limit          int
}

type DocumentRepository interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	// UpdateDocument writes doc if its version still matches the stored row
	// and bumps doc.Version on success.
	UpdateDocument(ctx context.Context, doc *models.Document) error
	// DeleteDocument removes the document and every task it owns.
	DeleteDocument(ctx context.Context, id string) error
	// ListDocuments returns matching documents, newest upload first.
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]*models.Document, error)
}

type TaskRepository interface {
	CreateTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, taskID string) (*models.Task, error)
	UpdateTask(ctx context.Context, task *models.Task) error
	// LatestTask returns the most recently created task of a document.
	LatestTask(ctx context.Context, documentID string) (*models.Task, error)
	ListTasks(ctx context.Context, documentID string) ([]*models.Task, error)
}

// Repository is the persistence collaborator for documents and tasks.
type Repository interface {
	DocumentRepository
	TaskRepository
	Ping(ctx context.Context) error
}

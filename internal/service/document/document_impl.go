package document

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"path"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/pdf-processor/internal/models"
	"github.com/feichai0017/pdf-processor/internal/repository"
	"github.com/feichai0017/pdf-processor/internal/utils/validator"
	"github.com/feichai0017/pdf-processor/pkg/logger"
	"github.com/feichai0017/pdf-processor/pkg/queue"
	"github.com/feichai0017/pdf-processor/pkg/storage"
)

type DocumentService struct {
	repo         repository.Repository
	storage      storage.Storage
	dispatcher   queue.Dispatcher
	validator    *validator.DocumentValidator
	orchestrator *Orchestrator
	logger       logger.Logger
	config       *ServiceConfig
}

type ServiceConfig struct {
	MaxFileSize       int64
	StoragePrefix     string
	MaxConcurrent     int
	ExtractionTimeout time.Duration
	RetentionPeriod   time.Duration
	// Now is the clock used for every timestamp; nil means time.Now.
	Now func() time.Time
}

// DefaultServiceConfig mirrors the configuration defaults.
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		MaxFileSize:       10 * 1024 * 1024, // 10MB
		StoragePrefix:     "pdfs",
		MaxConcurrent:     4,
		ExtractionTimeout: 5 * time.Minute,
		RetentionPeriod:   30 * 24 * time.Hour,
	}
}

func NewService(
	repo repository.Repository,
	store storage.Storage,
	dispatcher queue.Dispatcher,
	extractor Extractor,
	log logger.Logger,
	cfg *ServiceConfig,
) *DocumentService {
	if cfg == nil {
		cfg = DefaultServiceConfig()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.StoragePrefix == "" {
		cfg.StoragePrefix = "pdfs"
	}
	log = log.Named("document")

	return &DocumentService{
		repo:         repo,
		storage:      store,
		dispatcher:   dispatcher,
		validator:    validator.NewDocumentValidator(log, validator.DefaultConfig(cfg.MaxFileSize)),
		orchestrator: NewOrchestrator(repo, store, extractor, log, cfg.ExtractionTimeout, cfg.Now),
		logger:       log,
		config:       cfg,
	}
}

// ProcessFile 处理单个文件
func (s *DocumentService) ProcessFile(
	ctx context.Context,
	file multipart.File,
	header *multipart.FileHeader,
	title string,
) (*UploadResult, error) {
	log := logger.FromContext(ctx, s.logger)

	// 验证文件
	result, err := s.validator.ValidateFile(header)
	if err != nil {
		return nil, fmt.Errorf("failed to validate file: %w", err)
	}
	if err := result.Err(); err != nil {
		log.Warn("File validation failed",
			logger.String("filename", result.FileInfo.Filename),
			logger.Error(err),
		)
		return nil, err
	}

	if title == "" {
		title = header.Filename
	}
	documentID := uuid.New().String()
	key := path.Join(s.config.StoragePrefix, documentID+".pdf")

	log.Info("Starting file upload",
		logger.String("documentId", documentID),
		logger.String("filename", header.Filename),
		logger.Int64("size", header.Size),
		logger.String("sha256", result.FileInfo.Hash),
	)

	// 存储文件
	if _, err := s.storage.Store(ctx, file, key); err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	doc := models.NewDocument(documentID, title, key, header.Size, s.config.Now())
	if err := s.repo.CreateDocument(ctx, doc); err != nil {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		s.discardFile(rctx, key)
		cancel()
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	// 加入处理队列
	taskID, err := s.dispatcher.DispatchProcessing(ctx, documentID)
	if err != nil {
		log.Error("Failed to dispatch processing",
			logger.String("documentId", documentID),
			logger.Error(err),
		)
		s.rollbackUpload(ctx, log, documentID, key)
		return nil, fmt.Errorf("failed to dispatch processing: %w", err)
	}

	log.Info("PDF uploaded",
		logger.String("documentId", documentID),
		logger.String("taskId", taskID),
	)

	return &UploadResult{
		DocumentID: documentID,
		TaskID:     taskID,
		Filename:   header.Filename,
		Status:     doc.Status,
	}, nil
}

// ProcessBatch 批量处理文件
func (s *DocumentService) ProcessBatch(ctx context.Context, files []*multipart.FileHeader) ([]*UploadResult, error) {
	results := make([]*UploadResult, len(files))

	// 使用 errgroup 来管理并发和错误
	g, ctx := errgroup.WithContext(ctx)
	if s.config.MaxConcurrent > 0 {
		g.SetLimit(s.config.MaxConcurrent)
	}

	for i, header := range files {
		g.Go(func() error {
			file, err := header.Open()
			if err != nil {
				return fmt.Errorf("failed to open file %s: %w", header.Filename, err)
			}
			defer file.Close()

			result, err := s.ProcessFile(ctx, file, header, "")
			if err != nil {
				return fmt.Errorf("failed to process file %s: %w", header.Filename, err)
			}
			results[i] = result
			return nil
		})
	}

	err := g.Wait()

	// 返回已处理的文件
	done := make([]*UploadResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			done = append(done, r)
		}
	}
	return done, err
}

func (s *DocumentService) GetStatus(ctx context.Context, documentID string) (*DocumentWithTask, error) {
	doc, err := s.getDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	task, err := s.latestTask(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return &DocumentWithTask{Document: doc, LatestTask: task}, nil
}

func (s *DocumentService) GetContent(ctx context.Context, documentID string) (*models.Document, error) {
	doc, err := s.getDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != models.DocumentCompleted {
		return nil, ErrNotCompleted
	}
	return doc, nil
}

func (s *DocumentService) ListDocuments(ctx context.Context, status models.DocumentStatus) ([]*DocumentWithTask, error) {
	docs, err := s.repo.ListDocuments(ctx, repository.DocumentFilter{Status: status})
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	result := make([]*DocumentWithTask, 0, len(docs))
	for _, doc := range docs {
		task, err := s.latestTask(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, &DocumentWithTask{Document: doc, LatestTask: task})
	}
	return result, nil
}

// DeleteDocument removes the stored file, the document and its tasks.
func (s *DocumentService) DeleteDocument(ctx context.Context, documentID string) error {
	doc, err := s.getDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if err := s.removeDocument(ctx, doc); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: document %s", ErrNotFound, documentID)
		}
		return err
	}

	logger.FromContext(ctx, s.logger).Info("Document deleted",
		logger.String("documentId", documentID),
	)
	return nil
}

// GetTaskStatus answers from the task table, and for a task the worker has
// not started yet, from the queue.
func (s *DocumentService) GetTaskStatus(ctx context.Context, taskID string) (*TaskWithDocument, error) {
	task, err := s.repo.GetTask(ctx, taskID)
	if errors.Is(err, repository.ErrNotFound) {
		return s.pendingTask(ctx, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	doc, err := s.getDocument(ctx, task.DocumentID)
	if err != nil {
		return nil, err
	}
	return &TaskWithDocument{Task: task, DocumentTitle: doc.Title}, nil
}

func (s *DocumentService) pendingTask(ctx context.Context, taskID string) (*TaskWithDocument, error) {
	inspector, ok := s.dispatcher.(queue.Inspector)
	if !ok {
		return nil, fmt.Errorf("%w: task %s", ErrNotFound, taskID)
	}

	pending, err := inspector.PendingTask(ctx, taskID)
	if errors.Is(err, queue.ErrTaskNotFound) {
		return nil, fmt.Errorf("%w: task %s", ErrNotFound, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to inspect queue: %w", err)
	}

	doc, err := s.getDocument(ctx, pending.DocumentID)
	if err != nil {
		return nil, err
	}

	task := &models.Task{
		TaskID:     pending.TaskID,
		DocumentID: doc.ID,
		Name:       models.TaskNameProcessDocument,
		Status:     models.TaskPending,
		CreatedAt:  doc.UploadTime,
		UpdatedAt:  doc.UploadTime,
		Result:     make(map[string]interface{}),
	}
	return &TaskWithDocument{Task: task, DocumentTitle: doc.Title}, nil
}

// HandleDocument 实现文档处理逻辑
func (s *DocumentService) HandleDocument(ctx context.Context, documentID, taskID string) (*RunResult, error) {
	return s.orchestrator.Run(ctx, documentID, taskID)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck pings the database and, when the dispatcher supports it, the broker.
func (s *DocumentService) HealthCheck(ctx context.Context) map[string]error {
	checks := map[string]error{
		"database": s.repo.Ping(ctx),
	}
	if p, ok := s.dispatcher.(pinger); ok {
		checks["queue"] = p.Ping(ctx)
	}
	return checks
}

func (s *DocumentService) getDocument(ctx context.Context, documentID string) (*models.Document, error) {
	doc, err := s.repo.GetDocument(ctx, documentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: document %s", ErrNotFound, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

func (s *DocumentService) latestTask(ctx context.Context, documentID string) (*models.Task, error) {
	task, err := s.repo.LatestTask(ctx, documentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest task: %w", err)
	}
	return task, nil
}

// rollbackUpload removes a document that was never dispatched. It runs
// detached from ctx: a batch sibling failing or the client going away must
// not leave a pending row behind. The file is kept when the row survives so
// the row never points at a missing file.
func (s *DocumentService) rollbackUpload(ctx context.Context, log logger.Logger, documentID, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := s.repo.DeleteDocument(ctx, documentID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		log.Error("Failed to roll back document",
			logger.String("documentId", documentID),
			logger.Error(err),
		)
		return
	}
	s.discardFile(ctx, key)
}

func (s *DocumentService) discardFile(ctx context.Context, key string) {
	if err := s.storage.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotExist) {
		s.logger.Error("Failed to remove stored file",
			logger.String("key", key),
			logger.Error(err),
		)
	}
}

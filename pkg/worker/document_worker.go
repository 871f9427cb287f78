package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/pdf-processor/internal/service/document"
	"github.com/feichai0017/pdf-processor/pkg/logger"
	"github.com/feichai0017/pdf-processor/pkg/queue"
)

// DocumentHandler is the part of the document service the worker drives.
type DocumentHandler interface {
	HandleDocument(ctx context.Context, documentID, taskID string) (*document.RunResult, error)
	CleanupDocuments(ctx context.Context) (int, error)
}

type DocumentWorker struct {
	BaseWorker
	docService DocumentHandler
}

func NewDocumentWorker(cfg *Config, docService DocumentHandler, log logger.Logger) (*DocumentWorker, error) {
	if cfg.Concurrency <= 0 {
		return nil, fmt.Errorf("worker concurrency must be positive")
	}
	log = log.Named("worker")

	server := asynq.NewServer(
		cfg.redisOpt(),
		asynq.Config{
			Concurrency:     cfg.Concurrency,
			Queues:          cfg.Queues,
			Logger:          asynqLogger{logger: log.Named("asynq")},
			ShutdownTimeout: 30 * time.Second,
		},
	)

	w := &DocumentWorker{
		BaseWorker: BaseWorker{
			server: server,
			mux:    asynq.NewServeMux(),
			logger: log,
		},
		docService: docService,
	}

	// 注册任务处理器
	w.registerHandlers()
	return w, nil
}

func (w *DocumentWorker) registerHandlers() {
	w.mux.HandleFunc(queue.TaskTypePDFProcess, w.handleDocumentProcess)
	w.mux.HandleFunc(queue.TaskTypeDocumentsCleanup, w.handleDocumentsCleanup)
}

func (w *DocumentWorker) handleDocumentProcess(ctx context.Context, t *asynq.Task) error {
	payload, err := queue.ParseProcessPayload(t.Payload())
	if err != nil {
		w.logger.Error("Failed to unmarshal task",
			logger.Error(err),
			logger.String("payload", string(t.Payload())),
		)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	taskID := payload.TaskID
	if taskID == "" {
		if id, ok := asynq.GetTaskID(ctx); ok {
			taskID = id
		}
	}
	ctx = logger.WithTaskID(ctx, taskID)

	w.logger.Info("Processing document task",
		logger.String("taskId", taskID),
		logger.String("documentId", payload.DocumentID),
	)

	result, err := w.docService.HandleDocument(ctx, payload.DocumentID, taskID)
	if err != nil {
		if errors.Is(err, document.ErrNotFound) || errors.Is(err, document.ErrDocumentChanged) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	// 写入任务结果
	w.writeResult(t, result)
	return nil
}

func (w *DocumentWorker) handleDocumentsCleanup(ctx context.Context, t *asynq.Task) error {
	count, err := w.docService.CleanupDocuments(ctx)
	if err != nil {
		w.logger.Error("Cleanup run failed", logger.Error(err))
		return err
	}
	w.writeResult(t, map[string]int{"removed": count})
	return nil
}

func (w *DocumentWorker) writeResult(t *asynq.Task, v any) {
	rw := t.ResultWriter()
	if rw == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		w.logger.Error("Failed to marshal task result", logger.Error(err))
		return
	}
	if _, err := rw.Write(data); err != nil {
		w.logger.Error("Failed to write task result", logger.Error(err))
	}
}

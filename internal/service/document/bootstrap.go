package document

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/feichai0017/pdf-processor/config"
	"github.com/feichai0017/pdf-processor/internal/agent"
	"github.com/feichai0017/pdf-processor/internal/repository"
	"github.com/feichai0017/pdf-processor/pkg/logger"
	"github.com/feichai0017/pdf-processor/pkg/queue"
	"github.com/feichai0017/pdf-processor/pkg/storage"
)

// Runtime is a fully wired service plus the resources it holds open.
type Runtime struct {
	Service *DocumentService
	Queue   *queue.AsynqQueue

	db    *sql.DB
	store storage.Storage
}

// GetService wires the service from configuration: database, storage,
// queue client and extractor.
func GetService(ctx context.Context, cfg *config.Config, log logger.Logger) (*Runtime, error) {
	db, err := repository.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	store, err := storage.NewStorage(ctx, cfg.Storage, log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	q := queue.NewAsynqQueue(&queue.QueueConfig{
		RedisAddr:      cfg.Redis.Addr,
		RedisPassword:  cfg.Redis.Password,
		RedisDB:        cfg.Redis.DB,
		Queue:          cfg.Processing.Queue,
		ProcessTimeout: cfg.Processing.ExtractionTimeout,
	})

	svc := NewService(
		repository.NewSQLRepository(db),
		store,
		q,
		agent.NewExtractor(log),
		log,
		&ServiceConfig{
			MaxFileSize:       cfg.Upload.MaxFileSize,
			StoragePrefix:     "pdfs",
			MaxConcurrent:     cfg.Processing.Concurrency,
			ExtractionTimeout: cfg.Processing.ExtractionTimeout,
			RetentionPeriod:   cfg.Processing.Retention,
		},
	)

	return &Runtime{
		Service: svc,
		Queue:   q,
		db:      db,
		store:   store,
	}, nil
}

// Close releases the queue client, the storage client and the database.
func (r *Runtime) Close() error {
	errs := []error{r.Queue.Close()}
	if c, ok := r.store.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	errs = append(errs, r.db.Close())
	return errors.Join(errs...)
}

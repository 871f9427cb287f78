package worker

import (
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/pdf-processor/pkg/logger"
	"github.com/feichai0017/pdf-processor/pkg/queue"
)

// CleanupScheduler enqueues the retention cleanup task on a cron spec.
type CleanupScheduler struct {
	scheduler *asynq.Scheduler
	logger    logger.Logger
	entryID   string
}

func NewCleanupScheduler(cfg *Config, log logger.Logger) *CleanupScheduler {
	log = log.Named("scheduler")

	scheduler := asynq.NewScheduler(cfg.redisOpt(), &asynq.SchedulerOpts{
		Location: time.UTC,
		Logger:   asynqLogger{logger: log},
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				log.Error("Failed to enqueue cleanup", logger.Error(err))
				return
			}
			log.Info("Cleanup enqueued", logger.String("taskId", info.ID))
		},
	})

	return &CleanupScheduler{
		scheduler: scheduler,
		logger:    log,
	}
}

// Register schedules cleanup with cronspec, e.g. "@daily" or "0 3 * * *".
func (s *CleanupScheduler) Register(cronspec, queueName string) error {
	opts := []asynq.Option{asynq.MaxRetry(0)}
	if queueName != "" {
		opts = append(opts, asynq.Queue(queueName))
	}

	id, err := s.scheduler.Register(cronspec, queue.NewCleanupTask(), opts...)
	if err != nil {
		return fmt.Errorf("failed to register cleanup schedule %q: %w", cronspec, err)
	}
	s.entryID = id
	s.logger.Info("Cleanup scheduled",
		logger.String("cron", cronspec),
		logger.String("entryId", id),
	)
	return nil
}

func (s *CleanupScheduler) Start() error {
	return s.scheduler.Start()
}

func (s *CleanupScheduler) Stop() {
	s.scheduler.Shutdown()
}

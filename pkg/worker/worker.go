package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/pdf-processor/pkg/logger"
)

type Worker interface {
	Start(ctx context.Context) error
	Stop() error
}

type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
	Queues        map[string]int
}

func (cfg *Config) redisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

type BaseWorker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger logger.Logger
}

// Start runs the server in the background until ctx is done or Stop is called.
func (w *BaseWorker) Start(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker server: %w", err)
	}
	w.logger.Info("Worker started")

	go func() {
		<-ctx.Done()
		w.Stop()
	}()

	return nil
}

// Stop waits for in-flight tasks up to the server's shutdown timeout.
func (w *BaseWorker) Stop() error {
	w.server.Shutdown()
	return nil
}

// asynqLogger routes asynq's own log lines through our logger.
type asynqLogger struct {
	logger logger.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.logger.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.logger.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.logger.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.logger.Error(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.logger.Fatal(fmt.Sprint(args...)) }

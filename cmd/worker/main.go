package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/feichai0017/pdf-processor/config"
	"github.com/feichai0017/pdf-processor/internal/service/document"
	"github.com/feichai0017/pdf-processor/pkg/logger"
	"github.com/feichai0017/pdf-processor/pkg/worker"
)

func main() {
	cfg, err := config.Get()
	if err != nil {
		panic(err)
	}

	// 初始化日志
	log, err := logger.NewLogger(cfg.Log.LoggerOptions("worker")...)
	if err != nil {
		panic(err)
	}

	if err := run(cfg, log); err != nil {
		log.Error("Worker failed", logger.Error(err))
		log.Sync()
		os.Exit(1)
	}
	log.Sync()
}

// run owns every resource it opens; returning closes them before main exits.
func run(cfg *config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 创建文档服务
	rt, err := document.GetService(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create document service: %w", err)
	}
	defer rt.Close()

	// 创建 worker 配置
	workerCfg := &worker.Config{
		RedisAddr:     cfg.Redis.Addr,
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		Concurrency:   cfg.Processing.Concurrency,
		Queues: map[string]int{
			cfg.Processing.Queue: 1,
		},
	}

	// 创建 worker
	documentWorker, err := worker.NewDocumentWorker(workerCfg, rt.Service, log)
	if err != nil {
		return fmt.Errorf("failed to create document worker: %w", err)
	}

	scheduler := worker.NewCleanupScheduler(workerCfg, log)
	if err := scheduler.Register(cfg.Processing.CleanupCron, cfg.Processing.Queue); err != nil {
		return fmt.Errorf("failed to schedule cleanup: %w", err)
	}

	// 启动 worker
	if err := documentWorker.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	defer documentWorker.Stop()

	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer scheduler.Stop()

	// 等待中断信号
	<-ctx.Done()

	log.Info("Shutting down worker...")
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/pdf-processor/api/handlers"
	"github.com/feichai0017/pdf-processor/api/routes"
	"github.com/feichai0017/pdf-processor/config"
	"github.com/feichai0017/pdf-processor/internal/service/document"
	"github.com/feichai0017/pdf-processor/pkg/logger"
)

func main() {
	cfg, err := config.Get()
	if err != nil {
		panic(err)
	}

	// init logger
	log, err := logger.NewLogger(cfg.Log.LoggerOptions("server")...)
	if err != nil {
		panic(err)
	}

	if err := run(cfg, log); err != nil {
		log.Error("Server failed", logger.Error(err))
		log.Sync()
		os.Exit(1)
	}
	log.Sync()
}

// run returns instead of exiting so the deferred closes always happen.
func run(cfg *config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// init document service
	rt, err := document.GetService(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to get document service: %w", err)
	}
	defer rt.Close()

	// init handlers
	h := handlers.NewHandlers(rt.Service, log)
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	routes.SetupRoutes(r, h, routes.Options{
		AllowOrigins:  cfg.Server.AllowOrigins,
		MaxUploadSize: cfg.Upload.MaxFileSize,
		Logger:        log,
	})

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	// start server
	go func() {
		log.Info("Server starting", logger.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
			stop()
		}
	}()

	// wait for interrupt signal to gracefully shut down the server
	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

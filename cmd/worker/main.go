// Package main provides the entry point for the corpus growth worker. It
// tops up thin syllabus topics with AI-generated questions and serves a
// small admin API for status and control.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"osscprep/internal/config"
	"osscprep/internal/di"
	"osscprep/internal/handlers"
	"osscprep/internal/observability"
	"osscprep/internal/version"
	"osscprep/internal/worker"
)

// fatalIfErr logs the error with context and panics with a consistent message
func fatalIfErr(ctx context.Context, logger *observability.Logger, msg string, err error, fields map[string]interface{}) {
	logger.Error(ctx, msg, err, fields)
	panic(msg + ": " + err.Error())
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.NewConfig()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	tp, mp, logger, err := observability.SetupObservability(cfg, config.WorkerServiceName)
	if err != nil {
		panic("Failed to initialize observability: " + err.Error())
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if sdk, ok := tp.(interface{ Shutdown(context.Context) error }); ok {
			if err := sdk.Shutdown(shutdownCtx); err != nil {
				logger.Warn(ctx, "Error shutting down tracer provider", map[string]interface{}{"error": err.Error(), "provider": "tracer"})
			}
		}
		if mp != nil {
			if err := mp.Shutdown(shutdownCtx); err != nil {
				logger.Warn(ctx, "Error shutting down meter provider", map[string]interface{}{"error": err.Error(), "provider": "meter"})
			}
		}
		_ = logger.Sync()
	}()

	logger.Info(ctx, "Starting corpus growth worker", map[string]interface{}{
		"port":             cfg.Worker.Port,
		"exam":             cfg.Worker.Exam,
		"interval":         cfg.Worker.Interval.String(),
		"target_per_topic": cfg.Worker.TargetPerTopic,
		"output":           cfg.Worker.OutputPath,
		"version":          version.Version,
	})

	container := di.NewServiceContainer(cfg, logger)
	if err := container.Initialize(ctx); err != nil {
		fatalIfErr(ctx, logger, "Failed to initialize services", err, nil)
	}
	defer func() {
		if err := container.Shutdown(context.Background()); err != nil {
			logger.Warn(ctx, "Failed to shut down services", map[string]interface{}{"error": err.Error()})
		}
	}()

	sourcing, err := container.GetSourcingService()
	if err != nil {
		fatalIfErr(ctx, logger, "Failed to get sourcing service", err, nil)
	}
	if !sourcing.AIAvailable() {
		logger.Warn(ctx, "AI generation is not configured, runs will fail until it is", nil)
	}

	workerInstance, err := worker.NewWorker(sourcing, sourcing.Resolver(), cfg, logger)
	if err != nil {
		fatalIfErr(ctx, logger, "Failed to create worker", err, map[string]interface{}{"output": cfg.Worker.OutputPath})
	}
	go workerInstance.Start(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Worker.Port,
		Handler:           handlers.NewWorkerRouter(cfg, workerInstance, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info(ctx, "Worker server starting", map[string]interface{}{"port": cfg.Worker.Port})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatalIfErr(ctx, logger, "Failed to start worker server", err, map[string]interface{}{"port": cfg.Worker.Port})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info(ctx, "Worker server shutting down", nil)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer shutdownCancel()

	// Stop the worker first so an in-flight run can save its output
	if err := workerInstance.Shutdown(shutdownCtx); err != nil {
		logger.Warn(ctx, "Failed to shut down worker", map[string]interface{}{"error": err.Error()})
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Worker server forced to shutdown", err, nil)
	}

	logger.Info(ctx, "Worker server exited", nil)
}

// Package main provides the HTTP entry point for the OSSC question sourcing service.
// It wires configuration, observability, the service container and the API routes.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"osscprep/internal/config"
	"osscprep/internal/di"
	"osscprep/internal/handlers"
	"osscprep/internal/observability"
	contextutils "osscprep/internal/utils"
	"osscprep/internal/version"

	"github.com/gin-gonic/gin"
)

// Application encapsulates the main application logic and can be tested
type Application struct {
	container di.ServiceContainerInterface
	router    *gin.Engine
	server    *http.Server
}

// NewApplication creates a new application instance
func NewApplication(container di.ServiceContainerInterface) (*Application, error) {
	sourcing, err := container.GetSourcingService()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get sourcing service")
	}

	exam, err := container.GetExamService()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get exam service")
	}

	tutor, err := container.GetTutorService()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get tutor service")
	}

	router := handlers.NewRouter(
		container.GetConfig(),
		sourcing,
		exam,
		tutor,
		container.GetMetrics(),
		container.GetLogger(),
	)

	return &Application{
		container: container,
		router:    router,
	}, nil
}

// Run serves HTTP until ctx is cancelled or the listener fails
func (a *Application) Run(ctx context.Context, port string) error {
	a.server = &http.Server{
		Addr:              ":" + port,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
		// Large batch requests may run for several AI round trips
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErr:
		return contextutils.WrapError(err, "server failed")
	}
}

// Shutdown stops accepting requests, drains in-flight ones and then
// shuts the container down.
func (a *Application) Shutdown(ctx context.Context) error {
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			return contextutils.WrapError(err, "failed to stop http server")
		}
	}
	return a.container.Shutdown(ctx)
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	tp, mp, logger, err := observability.SetupObservability(cfg, config.DefaultServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize observability: %v\n", err)
		os.Exit(1)
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

	logger.Info(ctx, "Starting OSSC question sourcing service", map[string]interface{}{
		"port":     cfg.Server.Port,
		"logLevel": cfg.Logging.Level,
		"version":  version.Version,
		"models":   cfg.GenerationModels(),
	})

	container := di.NewServiceContainer(cfg, logger)
	if err := container.Initialize(ctx); err != nil {
		logger.Error(ctx, "Failed to initialize services", err)
		os.Exit(1)
	}

	app, err := NewApplication(container)
	if err != nil {
		logger.Error(ctx, "Failed to create application", err)
		_ = container.Shutdown(context.Background())
		os.Exit(1)
	}

	appErr := make(chan error, 1)
	go func() {
		if err := app.Run(ctx, cfg.Server.Port); err != nil {
			appErr <- err
		}
	}()

	select {
	case <-shutdownCh:
		logger.Info(ctx, "Received shutdown signal, shutting down gracefully")
	case err := <-appErr:
		logger.Error(ctx, "Application failed", err)
		_ = container.Shutdown(context.Background())
		os.Exit(1)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Error during application shutdown", err)
		os.Exit(1)
	}

	logger.Info(ctx, "Shutdown completed successfully")
}

package handlers

import (
	"context"
	"net/http"

	"osscprep/internal/config"
	"osscprep/internal/middleware"
	"osscprep/internal/observability"
	"osscprep/internal/version"
	"osscprep/internal/worker"

	"github.com/gin-gonic/gin"
)

// WorkerController is what the admin endpoints need from the worker
type WorkerController interface {
	GetStatus() worker.Status
	GetHistory() []worker.RunRecord
	GetActivityLogs() []worker.ActivityLog
	TopicFailures() map[string]worker.TopicFailureInfo
	TriggerManualRun() bool
	Pause(ctx context.Context)
	Resume(ctx context.Context)
}

// WorkerHandler exposes worker state and controls
type WorkerHandler struct {
	worker WorkerController
	logger *observability.Logger
}

// NewWorkerHandler creates a new WorkerHandler instance
func NewWorkerHandler(w WorkerController, logger *observability.Logger) *WorkerHandler {
	return &WorkerHandler{worker: w, logger: logger}
}

// GetStatus returns the worker status and topics currently backing off
func (h *WorkerHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         h.worker.GetStatus(),
		"topic_failures": h.worker.TopicFailures(),
	})
}

// GetHistory returns recent runs
func (h *WorkerHandler) GetHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"history": h.worker.GetHistory()})
}

// GetActivityLogs returns the activity log
func (h *WorkerHandler) GetActivityLogs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"logs": h.worker.GetActivityLogs()})
}

// Pause pauses the worker
func (h *WorkerHandler) Pause(c *gin.Context) {
	h.worker.Pause(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"status": h.worker.GetStatus()})
}

// Resume resumes the worker
func (h *WorkerHandler) Resume(c *gin.Context) {
	h.worker.Resume(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"status": h.worker.GetStatus()})
}

// Trigger queues a run. queued is false when one is already pending.
func (h *WorkerHandler) Trigger(c *gin.Context) {
	queued := h.worker.TriggerManualRun()
	h.logger.Info(c.Request.Context(), "Worker run requested", map[string]interface{}{"queued": queued})
	c.JSON(http.StatusAccepted, gin.H{"queued": queued})
}

// NewWorkerRouter builds the worker's admin HTTP surface
func NewWorkerRouter(cfg *config.Config, w WorkerController, logger *observability.Logger) *gin.Engine {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
		if cfg.Server.Debug {
			gin.SetMode(gin.DebugMode)
		}
	}

	router := gin.New()
	router.Use(middleware.ErrorRecoveryMiddleware(logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(requestLoggingMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": config.WorkerServiceName})
	})

	router.Use(observability.GinMiddleware(config.WorkerServiceName))
	router.Use(observability.ErrorAttributesMiddleware())

	handler := NewWorkerHandler(w, logger)
	routeListing := NewRouteListingHandler(config.WorkerServiceName)

	v1 := router.Group("/v1")
	{
		v1.GET("/version", func(c *gin.Context) {
			c.JSON(http.StatusOK, version.Get(config.WorkerServiceName))
		})
		v1.GET("/routes", routeListing.GetRouteListingJSON)

		workerGroup := v1.Group("/worker")
		{
			workerGroup.GET("/status", handler.GetStatus)
			workerGroup.GET("/history", handler.GetHistory)
			workerGroup.GET("/logs", handler.GetActivityLogs)
			workerGroup.POST("/pause", handler.Pause)
			workerGroup.POST("/resume", handler.Resume)
			workerGroup.POST("/trigger", handler.Trigger)
		}
	}

	routeListing.CollectRoutes(router)
	return router
}

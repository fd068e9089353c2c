// Package handlers exposes the question sourcing library over HTTP.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"osscprep/internal/config"
	"osscprep/internal/middleware"
	"osscprep/internal/observability"
	"osscprep/internal/services"
	"osscprep/internal/version"
)

// NewRouter creates a new router factory with all the necessary middleware and routes
func NewRouter(
	cfg *config.Config,
	sourcing *services.QuestionSourcingService,
	exam *services.ExamService,
	tutor *services.TutorService,
	metrics *observability.SourcingMetrics,
	logger *observability.Logger,
) *gin.Engine {
	// Setup Gin mode
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

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":       "ok",
			"service":      cfg.OpenTelemetry.ServiceName,
			"ai_available": sourcing.AIAvailable(),
		})
	})

	if metrics != nil {
		router.Use(metrics.GinMiddleware())
		router.GET("/metrics", metrics.Handler())
	}

	// OpenTelemetry tracing with error attributes on failed requests
	router.Use(observability.GinMiddleware(cfg.OpenTelemetry.ServiceName))
	router.Use(observability.ErrorAttributesMiddleware())

	// Disable automatic redirection for trailing slashes, which is better for APIs
	router.RedirectTrailingSlash = false

	// Setup CORS middleware
	corsConfig := cors.DefaultConfig()
	if len(cfg.Server.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.Server.CORSOrigins
		corsConfig.AllowCredentials = true
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "X-Requested-With", middleware.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{middleware.RequestIDHeader}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Setup session middleware
	secret := cfg.Server.SessionSecret
	if secret == "" {
		logger.Warn(context.Background(), "No session secret configured, learner sessions will not survive a restart")
		secret = uuid.NewString() + uuid.NewString()
	}
	store := cookie.NewStore([]byte(secret))
	sessionOpts := sessions.Options{
		Path:     config.SessionPath,
		MaxAge:   int(config.SessionMaxAge.Seconds()),
		HttpOnly: config.SessionHTTPOnly,
		Secure:   config.SessionSecure,
	}
	if cfg.Server.Debug {
		sessionOpts.SameSite = http.SameSiteDefaultMode
	} else {
		sessionOpts.SameSite = http.SameSiteLaxMode
		sessionOpts.Secure = true
	}
	store.Options(sessionOpts)
	router.Use(sessions.Sessions(config.SessionName, store))
	router.Use(middleware.LearnerContext())

	// Security middleware
	secureConfig := secure.DefaultConfig()
	secureConfig.SSLRedirect = false
	secureConfig.IsDevelopment = cfg.Server.Debug
	secureConfig.ContentSecurityPolicy = config.DefaultCSP
	router.Use(secure.New(secureConfig))

	// Initialize handlers
	questionsHandler := NewQuestionsHandler(sourcing, cfg, logger)
	examHandler := NewExamHandler(exam, logger)
	tutorHandler := NewTutorHandler(tutor, logger)
	routeListing := NewRouteListingHandler(cfg.OpenTelemetry.ServiceName)

	v1 := router.Group("/v1")
	{
		v1.GET("/version", func(c *gin.Context) {
			c.JSON(http.StatusOK, version.Get(cfg.OpenTelemetry.ServiceName))
		})
		v1.GET("/routes", routeListing.GetRouteListingJSON)

		v1.POST("/questions", questionsHandler.GetQuestions)
		v1.GET("/stats", questionsHandler.GetStats)
		v1.GET("/topics/resolve", questionsHandler.ResolveTopic)
		v1.GET("/subjects/:subject/topics", questionsHandler.SubjectTopics)
		v1.GET("/syllabus/:exam", questionsHandler.Syllabus)

		sessionGroup := v1.Group("/sessions")
		{
			sessionGroup.POST("", questionsHandler.StartSession)
			sessionGroup.DELETE("/usage", questionsHandler.ResetUsage)
		}

		v1.POST("/mock-tests", examHandler.MockTest)
		v1.POST("/daily-tests", examHandler.DailyTest)

		tutorGroup := v1.Group("/tutor")
		{
			tutorGroup.POST("/chat", tutorHandler.Chat)
			tutorGroup.POST("/explain", tutorHandler.Explain)
			tutorGroup.POST("/translate", tutorHandler.Translate)
		}
	}

	routeListing.CollectRoutes(router)
	return router
}

// requestLoggingMiddleware logs every request through the observability
// logger, choosing the level from the response status
func requestLoggingMiddleware(logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		statusCode := c.Writer.Status()
		fields := map[string]interface{}{
			"http.method":      c.Request.Method,
			"http.path":        c.Request.URL.Path,
			"http.status_code": statusCode,
			"http.latency_ms":  time.Since(start).Milliseconds(),
			"http.client_ip":   c.ClientIP(),
			"http.user_agent":  c.Request.UserAgent(),
			"http.request_id":  c.Writer.Header().Get(middleware.RequestIDHeader),
		}
		if len(c.Errors) > 0 {
			fields["http.error"] = c.Errors.String()
		}
		if statusCode >= 400 {
			fields["http.response_size"] = c.Writer.Size()
			if statusCode >= 500 {
				fields["http.error_type"] = "server_error"
			} else {
				fields["http.error_type"] = "client_error"
			}
		}

		// Use appropriate log level based on status code
		if statusCode >= 500 {
			logger.Error(c.Request.Context(), "HTTP request failed", nil, fields)
		} else if statusCode >= 400 {
			logger.Warn(c.Request.Context(), "HTTP request warning", fields)
		} else {
			logger.Info(c.Request.Context(), "HTTP request", fields)
		}
	}
}

// Package di provides dependency injection container for managing service lifecycle and dependencies.
package di

import (
	"context"
	"database/sql"
	"sync"

	"osscprep/internal/bank"
	"osscprep/internal/config"
	"osscprep/internal/database"
	"osscprep/internal/observability"
	"osscprep/internal/services"
	"osscprep/internal/topics"
	contextutils "osscprep/internal/utils"

	"github.com/redis/go-redis/v9"
)

// ServiceContainerInterface defines the interface for service containers
type ServiceContainerInterface interface {
	GetService(name string) (interface{}, error)
	GetSourcingService() (*services.QuestionSourcingService, error)
	GetExamService() (*services.ExamService, error)
	GetTutorService() (*services.TutorService, error)
	GetResolver() *topics.Resolver
	GetMetrics() *observability.SourcingMetrics
	GetDatabase() *sql.DB
	GetConfig() *config.Config
	GetLogger() *observability.Logger
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// Option customises a container before Initialize
type Option func(*ServiceContainer)

// WithCompletionClient replaces the provider client built from config
func WithCompletionClient(client services.CompletionClient) Option {
	return func(sc *ServiceContainer) { sc.client = client }
}

// WithMetrics shares an existing metrics registry
func WithMetrics(metrics *observability.SourcingMetrics) Option {
	return func(sc *ServiceContainer) { sc.metrics = metrics }
}

// ServiceContainer manages all service dependencies and lifecycle
type ServiceContainer struct {
	cfg       *config.Config
	logger    *observability.Logger
	dbManager *database.Manager
	db        *sql.DB
	redis     *redis.Client
	client    services.CompletionClient
	metrics   *observability.SourcingMetrics
	resolver  *topics.Resolver

	services      map[string]interface{}
	mu            sync.RWMutex
	shutdownFuncs []func(context.Context) error
}

// NewServiceContainer creates a new dependency injection container
func NewServiceContainer(cfg *config.Config, logger *observability.Logger, opts ...Option) *ServiceContainer {
	sc := &ServiceContainer{
		cfg:      cfg,
		logger:   logger,
		services: make(map[string]interface{}),
	}
	for _, opt := range opts {
		opt(sc)
	}
	return sc
}

// Initialize sets up all services and their dependencies. Postgres and
// redis are only dialled when their URLs are configured.
func (sc *ServiceContainer) Initialize(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if err := sc.initializeServices(ctx); err != nil {
		_ = sc.cleanup(ctx)
		return contextutils.WrapErrorf(err, "failed to initialize services")
	}
	return nil
}

// initializeServices builds the collaborators in dependency order
func (sc *ServiceContainer) initializeServices(ctx context.Context) error {
	if sc.metrics == nil {
		sc.metrics = observability.NewSourcingMetrics()
	}

	resolver, err := topics.NewDefaultResolver()
	if err != nil {
		return contextutils.WrapError(err, "failed to load syllabus")
	}
	sc.resolver = resolver

	corpus, err := bank.OpenCorpus(sc.cfg.Bank.CorpusPath)
	if err != nil {
		return err
	}
	mapping, err := bank.OpenTopicMapping(sc.cfg.Bank.MappingPath)
	if err != nil {
		return err
	}
	if extra := sc.loadExtraCorpora(ctx); len(extra) > 0 {
		corpus = corpus.Merge(extra...)
		// a precomputed mapping does not index the extra questions
		mapping = nil
	}
	questionBank := bank.New(corpus, mapping, resolver, sc.logger)
	sc.services["bank"] = questionBank
	sc.logger.Info(ctx, "Question bank loaded", map[string]interface{}{
		"questions": corpus.Len(),
		"rejected":  corpus.Rejected(),
		"subjects":  len(questionBank.Subjects()),
	})

	usage, err := sc.initializeUsage(ctx)
	if err != nil {
		return err
	}

	sink, err := sc.initializeSink(ctx)
	if err != nil {
		return err
	}

	if sc.client == nil {
		sc.client = services.NewCompletionClient(sc.cfg, sc.logger)
	}
	breaker := services.NewCircuitBreakerState(sc.cfg.AI.BreakerThreshold, sc.cfg.AI.BreakerCooldown)
	racer := services.NewModelRacer(sc.client, services.RacerConfigFromConfig(sc.cfg), breaker, sc.metrics, sc.logger)
	sc.services["racer"] = racer
	if !racer.Available() {
		sc.logger.Warn(ctx, "AI generation not configured, serving bank and static questions only", map[string]interface{}{
			"provider": sc.cfg.AI.Provider,
			"api_key":  contextutils.MaskAPIKey(sc.cfg.AI.OpenRouter.APIKey),
		})
	}

	sourcing, err := services.NewQuestionSourcingService(questionBank, resolver, racer, nil, usage, sink, sc.cfg, sc.metrics, sc.logger)
	if err != nil {
		return contextutils.WrapError(err, "failed to create sourcing service")
	}
	sc.services["sourcing"] = sourcing
	sc.services["exam"] = services.NewExamService(sourcing, sc.cfg, sc.logger)

	tutor, err := services.NewTutorService(racer, sc.cfg, sc.logger)
	if err != nil {
		return contextutils.WrapError(err, "failed to create tutor service")
	}
	sc.services["tutor"] = tutor
	return nil
}

// initializeUsage picks the redis store when configured
func (sc *ServiceContainer) initializeUsage(ctx context.Context) (*bank.UsageTracker, error) {
	if sc.cfg.Redis.URL == "" {
		return bank.NewMemoryUsageTracker(), nil
	}
	opts, err := redis.ParseURL(sc.cfg.Redis.URL)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrCacheUnavailable, "invalid redis url: %v", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, contextutils.WrapErrorf(contextutils.ErrCacheUnavailable, "failed to reach redis: %v", err)
	}
	sc.redis = client
	sc.shutdownFuncs = append(sc.shutdownFuncs, func(_ context.Context) error {
		return client.Close()
	})
	sc.logger.Info(ctx, "Usage sets stored in redis", map[string]interface{}{"addr": opts.Addr, "prefix": sc.cfg.Redis.KeyPrefix})
	return bank.NewRedisUsageTracker(client, sc.cfg.Redis.KeyPrefix, sc.cfg.Usage.TTL), nil
}

// initializeSink writes events to Postgres when configured, else to the log
func (sc *ServiceContainer) initializeSink(ctx context.Context) (services.PersistenceSink, error) {
	if sc.cfg.Database.URL == "" {
		return services.NewLogSink(sc.logger), nil
	}
	sc.dbManager = database.NewManager(sc.logger)
	db, err := sc.dbManager.InitDB(ctx, sc.cfg.Database)
	if err != nil {
		return nil, contextutils.WrapErrorf(err, "failed to initialize database")
	}
	sc.db = db
	sc.shutdownFuncs = append(sc.shutdownFuncs, func(_ context.Context) error {
		return db.Close()
	})

	sink := services.NewAsyncSink(services.NewPostgresSink(db), sc.cfg.Database.EventBuffer, sc.logger)
	sc.shutdownFuncs = append(sc.shutdownFuncs, func(ctx context.Context) error {
		if dropped := sink.Dropped(); dropped > 0 {
			sc.logger.Warn(ctx, "Sourcing events dropped", map[string]interface{}{"dropped": dropped})
		}
		return sink.Close(ctx)
	})
	return sink, nil
}

// GetService retrieves a service by name with type assertion
func (sc *ServiceContainer) GetService(name string) (interface{}, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	service, exists := sc.services[name]
	if !exists {
		return nil, contextutils.ErrorWithContextf("service %s not found", name)
	}
	return service, nil
}

// GetServiceAs performs type-safe service retrieval
func GetServiceAs[T any](sc *ServiceContainer, name string) (T, error) {
	var zero T
	service, err := sc.GetService(name)
	if err != nil {
		return zero, err
	}

	typed, ok := service.(T)
	if !ok {
		return zero, contextutils.ErrorWithContextf("service %s is not of expected type %T", name, zero)
	}
	return typed, nil
}

// GetSourcingService returns the question sourcing service
func (sc *ServiceContainer) GetSourcingService() (*services.QuestionSourcingService, error) {
	return GetServiceAs[*services.QuestionSourcingService](sc, "sourcing")
}

// GetExamService returns the mock and daily test service
func (sc *ServiceContainer) GetExamService() (*services.ExamService, error) {
	return GetServiceAs[*services.ExamService](sc, "exam")
}

// GetTutorService returns the tutor service
func (sc *ServiceContainer) GetTutorService() (*services.TutorService, error) {
	return GetServiceAs[*services.TutorService](sc, "tutor")
}

// GetResolver returns the topic resolver
func (sc *ServiceContainer) GetResolver() *topics.Resolver {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.resolver
}

// GetMetrics returns the sourcing metrics
func (sc *ServiceContainer) GetMetrics() *observability.SourcingMetrics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.metrics
}

// GetDatabase returns the database instance, nil when Postgres is off
func (sc *ServiceContainer) GetDatabase() *sql.DB {
	return sc.db
}

// GetConfig returns the configuration
func (sc *ServiceContainer) GetConfig() *config.Config {
	return sc.cfg
}

// GetLogger returns the logger
func (sc *ServiceContainer) GetLogger() *observability.Logger {
	return sc.logger
}

// Shutdown gracefully shuts down all services
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	return sc.cleanup(ctx)
}

// cleanup runs the shutdown funcs in reverse order of registration
func (sc *ServiceContainer) cleanup(ctx context.Context) error {
	var errors []error
	for i := len(sc.shutdownFuncs) - 1; i >= 0; i-- {
		if err := sc.shutdownFuncs[i](ctx); err != nil {
			sc.logger.Error(ctx, "Shutdown step failed", err, map[string]interface{}{"step": i})
			errors = append(errors, err)
		}
	}
	sc.shutdownFuncs = nil

	if len(errors) > 0 {
		return contextutils.ErrorWithContextf("shutdown errors: %v", errors)
	}
	return nil
}

var _ ServiceContainerInterface = (*ServiceContainer)(nil)

// loadExtraCorpora opens every configured extra corpus. Missing files are
// skipped since the worker may not have written its output yet.
func (sc *ServiceContainer) loadExtraCorpora(ctx context.Context) []*bank.Corpus {
	var out []*bank.Corpus
	for _, path := range sc.cfg.Bank.ExtraPaths {
		if path == "" {
			continue
		}
		c, err := bank.OpenCorpus(path)
		if err != nil {
			sc.logger.Warn(ctx, "Skipping extra corpus", map[string]interface{}{"path": path, "error": err.Error()})
			continue
		}
		sc.logger.Info(ctx, "Extra corpus loaded", map[string]interface{}{"path": path, "questions": c.Len()})
		out = append(out, c)
	}
	return out
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"osscprep/internal/config"
	"osscprep/internal/models"
	"osscprep/internal/observability"
	contextutils "osscprep/internal/utils"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// RacerConfig sizes and paces the racer
type RacerConfig struct {
	// Models is the priority-ordered model list.
	Models            []string
	RaceWidth         int
	CallTimeout       time.Duration
	MinResponseLength int
	SequentialDelay   time.Duration
	RateLimitBackoff  time.Duration
	Params            Params
}

// RacerConfigFromConfig reads the ai section of cfg
func RacerConfigFromConfig(cfg *config.Config) RacerConfig {
	return RacerConfig{
		Models:            cfg.GenerationModels(),
		RaceWidth:         cfg.AI.RaceWidth,
		CallTimeout:       cfg.AI.CallTimeout,
		MinResponseLength: cfg.AI.MinResponseLength,
		SequentialDelay:   cfg.AI.SequentialDelay,
		RateLimitBackoff:  cfg.AI.RateLimitBackoff,
		Params: Params{
			Temperature: cfg.AI.OpenRouter.Temperature,
			MaxTokens:   cfg.AI.OpenRouter.MaxTokens,
			TopP:        cfg.AI.OpenRouter.TopP,
		},
	}
}

// ModelRacer sends one prompt to several models and keeps the first usable
// answer. When the race produces nothing it walks the model list one at a
// time. A CircuitBreakerState stops all calls after repeated failures.
type ModelRacer struct {
	client  CompletionClient
	cfg     RacerConfig
	breaker *CircuitBreakerState
	metrics *observability.SourcingMetrics
	logger  *observability.Logger
	now     func() time.Time
}

// NewModelRacer creates a racer. A nil client makes every call fail with
// ErrAIConfigInvalid; a nil breaker gets a default one.
func NewModelRacer(client CompletionClient, cfg RacerConfig, breaker *CircuitBreakerState, metrics *observability.SourcingMetrics, logger *observability.Logger) *ModelRacer {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = config.AIRequestTimeout
	}
	if cfg.MinResponseLength <= 0 {
		cfg.MinResponseLength = config.DefaultMinResponseLength
	}
	if cfg.SequentialDelay < config.SequentialAttemptDelay {
		cfg.SequentialDelay = config.SequentialAttemptDelay
	}
	if cfg.RaceWidth <= 0 {
		cfg.RaceWidth = config.DefaultRaceWidth
	}
	if breaker == nil {
		breaker = NewCircuitBreakerState(config.DefaultBreakerThreshold, config.BreakerCooldown)
	}
	return &ModelRacer{
		client:  client,
		cfg:     cfg,
		breaker: breaker,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Available reports whether there is anything to call
func (r *ModelRacer) Available() bool {
	return r != nil && r.client != nil && len(r.cfg.Models) > 0
}

// Models returns the configured priority list
func (r *ModelRacer) Models() []string {
	return append([]string(nil), r.cfg.Models...)
}

// Breaker exposes the shared breaker state
func (r *ModelRacer) Breaker() *CircuitBreakerState {
	return r.breaker
}

// DefaultParams returns the sampling parameters used for generation
func (r *ModelRacer) DefaultParams() Params {
	return r.cfg.Params
}

func (r *ModelRacer) usable(content string) bool {
	return len(strings.TrimSpace(content)) > r.cfg.MinResponseLength
}

var errResponseTooShort = contextutils.WrapError(contextutils.ErrAIResponseInvalid, "response shorter than minimum length")

// Race calls every model concurrently. The first usable answer wins and the
// remaining calls are cancelled; Race returns only after every call has
// finished. Each call has its own timeout. Cancelled calls are not counted
// as failures.
func (r *ModelRacer) Race(ctx context.Context, modelNames []string, messages []models.ChatMessage, params Params) (result string, err error) {
	ctx, span := observability.TraceAIFunction(ctx, "race",
		attribute.StringSlice("ai.models", modelNames),
	)
	defer observability.FinishSpan(span, &err)

	if r.client == nil {
		return "", contextutils.WrapError(contextutils.ErrAIConfigInvalid, "no completion client configured")
	}
	if len(modelNames) == 0 {
		return "", contextutils.WrapError(contextutils.ErrAIConfigInvalid, "no models to race")
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu        sync.Mutex
		won       bool
		winner    string
		winnerMdl string
		failures  = make([]error, len(modelNames))
	)

	start := r.now()
	var g errgroup.Group
	for i, model := range modelNames {
		g.Go(func() error {
			callCtx, callCancel := context.WithTimeout(raceCtx, r.cfg.CallTimeout)
			defer callCancel()

			content, callErr := r.client.Complete(callCtx, model, messages, params)
			if callErr == nil && !r.usable(content) {
				callErr = errResponseTooShort
			}

			mu.Lock()
			defer mu.Unlock()
			switch {
			case callErr == nil && !won:
				won, winner, winnerMdl = true, content, model
				cancel()
				r.metrics.ModelCall(model, observability.OutcomeSuccess)
			case raceCtx.Err() != nil:
				r.metrics.ModelCall(model, observability.OutcomeCancelled)
			default:
				failures[i] = fmt.Errorf("%s: %w", model, callErr)
				r.metrics.ModelCall(model, observability.OutcomeFailure)
			}
			return nil
		})
	}
	_ = g.Wait()
	elapsed := r.now().Sub(start)
	r.metrics.ObserveRace(elapsed, won)

	if won {
		span.SetAttributes(attribute.String("race.winner", winnerMdl))
		r.logger.Info(ctx, "Model race won", map[string]interface{}{
			"model":    winnerMdl,
			"duration": elapsed.String(),
			"raced":    describeModels(modelNames),
		})
		return winner, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	joined := errors.Join(failures...)
	r.logger.Warn(ctx, "Every raced model failed", map[string]interface{}{
		"raced":  describeModels(modelNames),
		"errors": fmt.Sprint(joined),
	})
	return "", contextutils.WrapErrorf(contextutils.ErrAllModelsFailed, "race over %d models failed: %v", len(modelNames), joined)
}

// Sequential tries the models one at a time, spacing attempts by at least
// the sequential delay. It stops at the first usable answer or at an
// authentication or billing error, and backs off after each 429.
func (r *ModelRacer) Sequential(ctx context.Context, modelNames []string, messages []models.ChatMessage, params Params) (result string, err error) {
	ctx, span := observability.TraceAIFunction(ctx, "sequential",
		attribute.StringSlice("ai.models", modelNames),
	)
	defer observability.FinishSpan(span, &err)

	if r.client == nil {
		return "", contextutils.WrapError(contextutils.ErrAIConfigInvalid, "no completion client configured")
	}
	if len(modelNames) == 0 {
		return "", contextutils.WrapError(contextutils.ErrAIConfigInvalid, "no models to try")
	}

	spacing := rate.NewLimiter(rate.Every(r.cfg.SequentialDelay), 1)
	rateLimited := 0
	var failures []error

	for _, model := range modelNames {
		if err := spacing.Wait(ctx); err != nil {
			return "", err
		}

		callCtx, callCancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
		content, callErr := r.client.Complete(callCtx, model, messages, params)
		callCancel()

		if callErr == nil && r.usable(content) {
			r.metrics.ModelCall(model, observability.OutcomeSuccess)
			span.SetAttributes(attribute.String("sequential.winner", model))
			return content, nil
		}
		if ctx.Err() != nil {
			r.metrics.ModelCall(model, observability.OutcomeCancelled)
			return "", ctx.Err()
		}
		if callErr == nil {
			callErr = errResponseTooShort
		}
		r.metrics.ModelCall(model, observability.OutcomeFailure)
		failures = append(failures, fmt.Errorf("%s: %w", model, callErr))

		if contextutils.IsError(callErr, contextutils.ErrAuthOrBilling) {
			r.logger.Warn(ctx, "Account-level provider error, stopping model fallback", map[string]interface{}{
				"model": model,
				"error": callErr.Error(),
			})
			return "", contextutils.WrapErrorf(contextutils.ErrAuthOrBilling, "stopped at %s: %v", model, callErr)
		}
		if contextutils.IsError(callErr, contextutils.ErrRateLimit) {
			rateLimited++
			if err := sleepCtx(ctx, r.cfg.RateLimitBackoff*time.Duration(rateLimited)); err != nil {
				return "", err
			}
		}
	}

	return "", contextutils.WrapErrorf(contextutils.ErrAllModelsFailed, "%d models tried in turn: %v", len(modelNames), errors.Join(failures...))
}

// Generate is the AI tier entry point. It checks the breaker, races the
// head of the model list and falls back to trying the remaining models in
// turn (or the whole list when the race already covered it).
func (r *ModelRacer) Generate(ctx context.Context, messages []models.ChatMessage, params Params) (result string, err error) {
	ctx, span := observability.TraceAIFunction(ctx, "generate")
	defer observability.FinishSpan(span, &err)

	if !r.Available() {
		return "", contextutils.WrapError(contextutils.ErrAIConfigInvalid, "AI generation is not configured")
	}

	if !r.breaker.Allow(r.now()) {
		r.metrics.BreakerShortCircuit()
		span.SetAttributes(attribute.Bool("breaker.open", true))
		return "", contextutils.WrapErrorf(contextutils.ErrCircuitOpen, "%d consecutive failures", r.breaker.Failures())
	}

	width := min(r.cfg.RaceWidth, len(r.cfg.Models))
	raced, rest := r.cfg.Models[:width], r.cfg.Models[width:]
	if len(rest) == 0 {
		rest = r.cfg.Models
	}

	content, err := r.Race(ctx, raced, messages, params)
	if err == nil {
		r.breaker.RecordSuccess(r.now())
		return content, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	content, err = r.Sequential(ctx, rest, messages, params)
	if err == nil {
		r.breaker.RecordSuccess(r.now())
		return content, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	failures := r.breaker.RecordFailure(r.now())
	r.logger.Warn(ctx, "AI generation failed", map[string]interface{}{
		"consecutive_failures": failures,
		"error":                err.Error(),
	})
	return "", err
}

// sleepCtx waits for d or until ctx is done
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

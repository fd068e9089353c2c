package observability

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Model call outcomes recorded by SourcingMetrics.ModelCall.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeCancelled = "cancelled"
)

// SourcingMetrics holds the Prometheus collectors scraped from /metrics.
// All methods are safe on a nil receiver so callers may run without metrics.
type SourcingMetrics struct {
	registry *prometheus.Registry

	questionsServed      *prometheus.CounterVec
	modelCalls           *prometheus.CounterVec
	raceDuration         *prometheus.HistogramVec
	breakerShortCircuits prometheus.Counter
	batchFallbacks       prometheus.Counter
	requestDuration      *prometheus.HistogramVec
}

// NewSourcingMetrics registers every collector on a private registry, along
// with the Go runtime and process collectors.
func NewSourcingMetrics() *SourcingMetrics {
	m := &SourcingMetrics{
		registry: prometheus.NewRegistry(),
		questionsServed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ossc_questions_served_total",
				Help: "Questions returned to callers, by provenance tier",
			},
			[]string{"source"},
		),
		modelCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ossc_model_calls_total",
				Help: "Upstream model calls by model and outcome",
			},
			[]string{"model", "outcome"},
		),
		raceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ossc_model_race_duration_seconds",
				Help:    "Wall time of a model race",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 45, 90},
			},
			[]string{"result"},
		),
		breakerShortCircuits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ossc_ai_breaker_short_circuits_total",
			Help: "AI tier calls skipped because the breaker was open",
		}),
		batchFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ossc_batch_fallbacks_total",
			Help: "Generation sub-batches replaced from non-AI tiers",
		}),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ossc_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"method", "route", "status"},
		),
	}

	m.registry.MustRegister(
		m.questionsServed,
		m.modelCalls,
		m.raceDuration,
		m.breakerShortCircuits,
		m.batchFallbacks,
		m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *SourcingMetrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// QuestionsServed adds n to the counter for source.
func (m *SourcingMetrics) QuestionsServed(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.questionsServed.WithLabelValues(source).Add(float64(n))
}

// ModelCall records one upstream call outcome.
func (m *SourcingMetrics) ModelCall(model, outcome string) {
	if m == nil {
		return
	}
	m.modelCalls.WithLabelValues(model, outcome).Inc()
}

// ObserveRace records how long a race took and whether it produced a winner.
func (m *SourcingMetrics) ObserveRace(d time.Duration, won bool) {
	if m == nil {
		return
	}
	result := "lost"
	if won {
		result = "won"
	}
	m.raceDuration.WithLabelValues(result).Observe(d.Seconds())
}

// BreakerShortCircuit counts a skipped AI tier.
func (m *SourcingMetrics) BreakerShortCircuit() {
	if m == nil {
		return
	}
	m.breakerShortCircuits.Inc()
}

// BatchFallback counts a sub-batch that was filled from the non-AI tiers.
func (m *SourcingMetrics) BatchFallback() {
	if m == nil {
		return
	}
	m.batchFallbacks.Inc()
}

// GinMiddleware records request duration by matched route.
func (m *SourcingMetrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requestDuration.WithLabelValues(c.Request.Method, route, http.StatusText(c.Writer.Status())).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *SourcingMetrics) Handler() gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Status(http.StatusNotFound) }
	}
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

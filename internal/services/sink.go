package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"osscprep/internal/config"
	"osscprep/internal/models"
	"osscprep/internal/observability"
	contextutils "osscprep/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// PersistenceSink receives one event per sourcing call. Record must not
// block the caller.
type PersistenceSink interface {
	Record(event models.SourcingEvent)
}

// EventWriter stores a single event, possibly doing I/O
type EventWriter interface {
	WriteEvent(ctx context.Context, event models.SourcingEvent) error
}

// NopSink discards events
type NopSink struct{}

// Record implements PersistenceSink
func (NopSink) Record(models.SourcingEvent) {}

// LogSink writes events to the structured log
type LogSink struct {
	logger *observability.Logger
}

// NewLogSink creates a LogSink
func NewLogSink(logger *observability.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Record implements PersistenceSink
func (s *LogSink) Record(event models.SourcingEvent) {
	_ = s.WriteEvent(context.Background(), event)
}

// WriteEvent implements EventWriter
func (s *LogSink) WriteEvent(ctx context.Context, event models.SourcingEvent) error {
	s.logger.Info(ctx, "Sourcing event", map[string]interface{}{
		"event_id":  event.ID,
		"kind":      event.Kind,
		"learner":   event.LearnerID,
		"exam":      event.Exam,
		"subject":   event.Subject,
		"topic":     event.Topic,
		"requested": event.Requested,
		"by_source": event.BySource,
		"duration":  event.Duration.String(),
		"degraded":  event.Degraded(),
	})
	return nil
}

// AsyncSink queues events for a single background writer. When the queue
// is full the event is dropped and counted.
type AsyncSink struct {
	writer       EventWriter
	events       chan models.SourcingEvent
	done         chan struct{}
	writeTimeout time.Duration
	logger       *observability.Logger

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// NewAsyncSink starts the writer goroutine
func NewAsyncSink(writer EventWriter, buffer int, logger *observability.Logger) *AsyncSink {
	if buffer <= 0 {
		buffer = config.DefaultEventBuffer
	}
	s := &AsyncSink{
		writer:       writer,
		events:       make(chan models.SourcingEvent, buffer),
		done:         make(chan struct{}),
		writeTimeout: 5 * time.Second,
		logger:       logger,
	}
	go s.run()
	return s
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for event := range s.events {
		ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
		if err := s.writer.WriteEvent(ctx, event); err != nil {
			s.logger.Warn(ctx, "Failed to persist sourcing event", map[string]interface{}{
				"event_id": event.ID,
				"kind":     event.Kind,
				"error":    err.Error(),
			})
		}
		cancel()
	}
}

// Record implements PersistenceSink
func (s *AsyncSink) Record(event models.SourcingEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.events <- event:
	default:
		n := s.dropped.Add(1)
		s.logger.Warn(context.Background(), "Sourcing event queue full, dropping event", map[string]interface{}{
			"event_id": event.ID,
			"dropped":  n,
		})
	}
}

// Dropped returns how many events never reached the writer
func (s *AsyncSink) Dropped() int64 {
	return s.dropped.Load()
}

// Close stops accepting events and waits for the queue to drain or ctx to
// end, whichever comes first.
func (s *AsyncSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return contextutils.WrapError(ctx.Err(), "sourcing event queue did not drain")
	}
}

const insertSourcingEventQuery = `
	INSERT INTO sourcing_events
		(id, kind, learner_id, exam, subject, topic, requested, by_source, duration_ms, degraded, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (id) DO NOTHING`

// PostgresSink writes events to the sourcing_events table
type PostgresSink struct {
	db *sql.DB
}

// NewPostgresSink creates a PostgresSink
func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

// WriteEvent implements EventWriter
func (s *PostgresSink) WriteEvent(ctx context.Context, event models.SourcingEvent) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "insert_sourcing_event",
		attribute.String("event.kind", event.Kind),
	)
	defer observability.FinishSpan(span, &err)

	bySource, err := json.Marshal(event.BySource)
	if err != nil {
		return contextutils.WrapError(err, "failed to encode by_source")
	}
	var learner sql.NullString
	if event.LearnerID != "" {
		learner = sql.NullString{String: event.LearnerID, Valid: true}
	}
	_, err = s.db.ExecContext(ctx, insertSourcingEventQuery,
		event.ID,
		event.Kind,
		learner,
		event.Exam,
		event.Subject,
		event.Topic,
		event.Requested,
		string(bySource),
		event.Duration.Milliseconds(),
		event.Degraded(),
		event.At,
	)
	if err != nil {
		return contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "insert sourcing event %s: %v", event.ID, err)
	}
	return nil
}

var (
	_ PersistenceSink = NopSink{}
	_ PersistenceSink = (*LogSink)(nil)
	_ PersistenceSink = (*AsyncSink)(nil)
	_ EventWriter     = (*LogSink)(nil)
	_ EventWriter     = (*PostgresSink)(nil)
)

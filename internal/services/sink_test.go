package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"osscprep/internal/models"
	"osscprep/internal/observability"
	contextutils "osscprep/internal/utils"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func sampleEvent(id string) models.SourcingEvent {
	return models.SourcingEvent{
		ID:        id,
		Kind:      models.EventKindQuestions,
		LearnerID: "learner-1",
		Exam:      models.ExamRI,
		Subject:   "Quantitative Aptitude",
		Topic:     "ri-quant-time-distance",
		Requested: 10,
		BySource:  map[models.Source]int{models.SourceLocalBank: 4, models.SourceStaticFallback: 6},
		Duration:  1500 * time.Millisecond,
		At:        time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC),
	}
}

// memoryWriter stores events; gate, when set, blocks every write until closed
type memoryWriter struct {
	mu     sync.Mutex
	events []models.SourcingEvent
	gate   chan struct{}
	err    error
}

func (w *memoryWriter) WriteEvent(ctx context.Context, event models.SourcingEvent) error {
	if w.gate != nil {
		select {
		case <-w.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, event)
	return w.err
}

func (w *memoryWriter) Events() []models.SourcingEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]models.SourcingEvent(nil), w.events...)
}

func TestAsyncSink_DrainsOnClose(t *testing.T) {
	writer := &memoryWriter{}
	sink := NewAsyncSink(writer, 16, testLogger())

	for i := 0; i < 10; i++ {
		sink.Record(sampleEvent(fmt.Sprintf("evt-%d", i)))
	}
	require.NoError(t, sink.Close(context.Background()))

	events := writer.Events()
	require.Len(t, events, 10)
	for i, e := range events {
		assert.Equal(t, fmt.Sprintf("evt-%d", i), e.ID)
	}
	assert.Zero(t, sink.Dropped())

	sink.Record(sampleEvent("late"))
	assert.Equal(t, int64(1), sink.Dropped())
	require.NoError(t, sink.Close(context.Background()), "close is idempotent")
}

func TestAsyncSink_DropsWhenFull(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	writer := &memoryWriter{gate: make(chan struct{})}
	sink := NewAsyncSink(writer, 1, &observability.Logger{Logger: zap.New(core)})

	start := time.Now()
	for i := 0; i < 5; i++ {
		sink.Record(sampleEvent(fmt.Sprintf("evt-%d", i)))
	}
	assert.Less(t, time.Since(start), time.Second, "record never blocks")
	assert.GreaterOrEqual(t, sink.Dropped(), int64(3))
	assert.NotEmpty(t, logs.FilterMessage("Sourcing event queue full, dropping event").All())

	close(writer.gate)
	require.NoError(t, sink.Close(context.Background()))
	assert.Equal(t, int64(5), sink.Dropped()+int64(len(writer.Events())))
}

func TestAsyncSink_CloseTimesOut(t *testing.T) {
	writer := &memoryWriter{gate: make(chan struct{})}
	defer close(writer.gate)
	sink := NewAsyncSink(writer, 4, testLogger())
	sink.Record(sampleEvent("stuck"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := sink.Close(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAsyncSink_WriterErrorsAreLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	writer := &memoryWriter{err: errors.New("disk full")}
	sink := NewAsyncSink(writer, 0, &observability.Logger{Logger: zap.New(core)})

	sink.Record(sampleEvent("evt-1"))
	require.NoError(t, sink.Close(context.Background()))

	entries := logs.FilterMessage("Failed to persist sourcing event").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "disk full", entries[0].ContextMap()["error"])
}

func newMockPostgresSink(t *testing.T) (*PostgresSink, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() {
		mock.ExpectClose()
		require.NoError(t, db.Close())
		require.NoError(t, mock.ExpectationsWereMet())
	})
	return NewPostgresSink(db), mock
}

func TestPostgresSink_WriteEvent(t *testing.T) {
	sink, mock := newMockPostgresSink(t)
	event := sampleEvent("evt-1")

	mock.ExpectExec(insertSourcingEventQuery).
		WithArgs(
			"evt-1",
			models.EventKindQuestions,
			"learner-1",
			models.ExamRI,
			"Quantitative Aptitude",
			"ri-quant-time-distance",
			10,
			`{"LocalBank":4,"StaticFallback":6}`,
			int64(1500),
			true,
			event.At,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, sink.WriteEvent(context.Background(), event))
}

func TestPostgresSink_AnonymousAndErrors(t *testing.T) {
	sink, mock := newMockPostgresSink(t)
	event := sampleEvent("evt-2")
	event.LearnerID = ""

	mock.ExpectExec(insertSourcingEventQuery).
		WithArgs(
			"evt-2",
			sqlmock.AnyArg(),
			nil,
			sqlmock.AnyArg(),
			sqlmock.AnyArg(),
			sqlmock.AnyArg(),
			sqlmock.AnyArg(),
			sqlmock.AnyArg(),
			sqlmock.AnyArg(),
			sqlmock.AnyArg(),
			sqlmock.AnyArg(),
		).
		WillReturnError(errors.New("connection reset"))

	err := sink.WriteEvent(context.Background(), event)
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrDatabaseQuery))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestLogSink_Record(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(&observability.Logger{Logger: zap.New(core)})

	sink.Record(sampleEvent("evt-3"))

	entries := logs.FilterMessage("Sourcing event").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "evt-3", fields["event_id"])
	assert.Equal(t, models.EventKindQuestions, fields["kind"])
	assert.Equal(t, true, fields["degraded"])
	assert.EqualValues(t, 10, fields["requested"])
}

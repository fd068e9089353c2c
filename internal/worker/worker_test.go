package worker

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"osscprep/internal/bank"
	"osscprep/internal/config"
	"osscprep/internal/models"
	"osscprep/internal/observability"
	"osscprep/internal/services"
	"osscprep/internal/topics"
	contextutils "osscprep/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGenerator reports fixed bank coverage and produces numbered questions
type fakeGenerator struct {
	mu        sync.Mutex
	available bool
	coverage  map[string]int // topic id -> bank questions, default covered
	thin      map[string]bool
	errs      map[string]error
	sameText  bool
	calls     []string
	counter   int
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{available: true, coverage: map[string]int{}, thin: map[string]bool{}, errs: map[string]error{}}
}

func (g *fakeGenerator) AIAvailable() bool { return g.available }

func (g *fakeGenerator) ResolveTopic(subject, topic string) services.TopicResolution {
	n, ok := g.coverage[topic]
	if !ok {
		n = 1000
	}
	return services.TopicResolution{Subject: subject, Topic: topic, Counts: map[string]int{topic: n}}
}

func (g *fakeGenerator) GenerateForTopic(_ context.Context, exam, topicID string, difficulty models.Difficulty, count int) ([]*models.Question, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, topicID)
	if err := g.errs[topicID]; err != nil {
		return nil, err
	}
	out := make([]*models.Question, count)
	for i := range out {
		g.counter++
		text := fmt.Sprintf("Generated question %d on %s?", g.counter, topicID)
		if g.sameText {
			text = "The very same   question?"
		}
		out[i] = &models.Question{
			ID:           fmt.Sprintf("ai_%d", g.counter),
			QuestionText: text,
			Options:      []string{"a", "b", "c", "d"},
			Subject:      "Subject",
			Topic:        topicID,
			Difficulty:   difficulty,
			Source:       models.SourceAIGenerated,
			Language:     models.LanguageEnglish,
			Exam:         exam,
		}
	}
	return out, nil
}

func (g *fakeGenerator) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Worker.OutputPath = filepath.Join(t.TempDir(), "generated.json")
	cfg.ApplyDefaults()
	return cfg
}

func newTestWorker(t *testing.T, gen Generator, cfg *config.Config) *Worker {
	t.Helper()
	resolver, err := topics.NewDefaultResolver()
	require.NoError(t, err)
	w, err := NewWorker(gen, resolver, cfg, observability.NewLogger(&config.OpenTelemetryConfig{}))
	require.NoError(t, err)
	return w
}

func TestNewWorker_UnknownExam(t *testing.T) {
	resolver, err := topics.NewDefaultResolver()
	require.NoError(t, err)
	cfg := testConfig(t)
	cfg.Worker.Exam = "ZZ"

	_, err = NewWorker(newFakeGenerator(), resolver, cfg, observability.NewLogger(&config.OpenTelemetryConfig{}))
	assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidInput))
}

func TestRunOnce_FillsThinTopicsWithinBudget(t *testing.T) {
	gen := newFakeGenerator()
	gen.coverage = map[string]int{"ri-eng-comprehension": 0, "ri-eng-fillers": 0, "ri-eng-grammar": 0}
	cfg := testConfig(t)
	cfg.Worker.TargetPerTopic = 2
	cfg.Worker.MaxPerRun = 5
	w := newTestWorker(t, gen, cfg)

	record, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunSuccess, record.Status)
	assert.Equal(t, 5, record.Generated)
	assert.Contains(t, record.Details, "generated 5 questions for 3 topics")
	assert.Equal(t, []string{"ri-eng-comprehension", "ri-eng-fillers", "ri-eng-grammar"}, gen.Calls())

	saved, err := bank.OpenCorpus(cfg.Worker.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, 5, saved.Len())

	status := w.GetStatus()
	assert.Equal(t, 5, status.TotalGenerated)
	assert.Empty(t, status.LastRunError)
	require.Len(t, w.GetHistory(), 1)
}

func TestRunOnce_LargestShortfallFirst(t *testing.T) {
	gen := newFakeGenerator()
	gen.coverage = map[string]int{"ri-eng-comprehension": 9, "ri-quant-percentage": 2}
	cfg := testConfig(t)
	w := newTestWorker(t, gen, cfg)

	record, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ri-quant-percentage", "ri-eng-comprehension"}, gen.Calls())
	assert.Equal(t, 9, record.Generated)
}

func TestRunOnce_NothingToDo(t *testing.T) {
	gen := newFakeGenerator()
	w := newTestWorker(t, gen, testConfig(t))

	record, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunSkipped, record.Status)
	assert.Equal(t, "all topics at target", record.Details)
	assert.Empty(t, gen.Calls())
}

func TestRunOnce_DropsDuplicateText(t *testing.T) {
	gen := newFakeGenerator()
	gen.sameText = true
	gen.coverage = map[string]int{"ri-eng-grammar": 0}
	cfg := testConfig(t)
	cfg.Worker.TargetPerTopic = 3
	w := newTestWorker(t, gen, cfg)

	record, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, record.Generated)

	logs := w.GetActivityLogs()
	require.NotEmpty(t, logs)
	last := logs[len(logs)-1]
	assert.Equal(t, "ri-eng-grammar", last.TopicID)
	assert.Equal(t, "Added 1 questions (2 duplicates dropped)", last.Message)
}

func TestRunOnce_ResumesFromOutputFile(t *testing.T) {
	gen := newFakeGenerator()
	gen.coverage = map[string]int{"ri-eng-grammar": 0, "ri-eng-fillers": 1}
	cfg := testConfig(t)
	cfg.Worker.TargetPerTopic = 2
	first := newTestWorker(t, gen, cfg)

	record, err := first.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, record.Generated)

	second := newTestWorker(t, gen, cfg)
	assert.Equal(t, 3, second.GetStatus().TotalGenerated)
	record, err = second.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunSkipped, record.Status)
	assert.Len(t, gen.Calls(), 2)
}

func TestRunOnce_FailedTopicBacksOff(t *testing.T) {
	gen := newFakeGenerator()
	gen.coverage = map[string]int{"ri-eng-grammar": 0, "ri-eng-fillers": 0}
	gen.errs["ri-eng-fillers"] = contextutils.WrapError(contextutils.ErrUnparsableResponse, "no json")
	cfg := testConfig(t)
	cfg.Worker.TargetPerTopic = 1
	w := newTestWorker(t, gen, cfg)

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	w.timeNow = func() time.Time { return now }

	record, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, record.Generated)
	assert.Contains(t, record.Details, "1 failed")

	failures := w.TopicFailures()
	require.Contains(t, failures, "ri-eng-fillers")
	assert.Equal(t, 1, failures["ri-eng-fillers"].ConsecutiveFailures)
	assert.Equal(t, now.Add(cfg.Worker.FailureBackoff), failures["ri-eng-fillers"].NextRetryTime)
	assert.Equal(t, "WARN", topicLog(t, w, "ri-eng-fillers").Level)

	record, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Contains(t, record.Details, "1 backing off")
	assert.Equal(t, []string{"ri-eng-fillers", "ri-eng-grammar"}, gen.Calls())

	now = now.Add(cfg.Worker.FailureBackoff)
	_, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, w.TopicFailures()["ri-eng-fillers"].ConsecutiveFailures)
	assert.Equal(t, now.Add(2*cfg.Worker.FailureBackoff), w.TopicFailures()["ri-eng-fillers"].NextRetryTime)

	delete(gen.errs, "ri-eng-fillers")
	now = now.Add(2 * cfg.Worker.FailureBackoff)
	record, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, record.Generated)
	assert.Empty(t, w.TopicFailures())
}

func TestRunOnce_AuthFailureStopsRun(t *testing.T) {
	gen := newFakeGenerator()
	gen.coverage = map[string]int{"ri-eng-grammar": 0, "ri-eng-fillers": 0}
	gen.errs["ri-eng-fillers"] = contextutils.WrapError(contextutils.ErrAuthOrBilling, "402")
	w := newTestWorker(t, gen, testConfig(t))

	record, err := w.RunOnce(context.Background())
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrAuthOrBilling))
	assert.Equal(t, RunFailure, record.Status)
	assert.Equal(t, []string{"ri-eng-fillers"}, gen.Calls())
	assert.NotEmpty(t, w.GetStatus().LastRunError)
	assert.Equal(t, "ERROR", topicLog(t, w, "ri-eng-fillers").Level)
}

func TestFailureLevel(t *testing.T) {
	assert.Equal(t, "INFO", failureLevel(contextutils.WrapError(contextutils.ErrCircuitOpen, "cooling down")))
	assert.Equal(t, "WARN", failureLevel(contextutils.ErrRateLimit))
	assert.Equal(t, "ERROR", failureLevel(contextutils.ErrAIRequestFailed))
	assert.Equal(t, "ERROR", failureLevel(fmt.Errorf("plain")))
}

// topicLog returns the latest activity entry for topicID
func topicLog(t *testing.T, w *Worker, topicID string) ActivityLog {
	t.Helper()
	logs := w.GetActivityLogs()
	for i := len(logs) - 1; i >= 0; i-- {
		if logs[i].TopicID == topicID {
			return logs[i]
		}
	}
	require.FailNow(t, "no activity logged for "+topicID)
	return ActivityLog{}
}

func TestRunOnce_AIUnavailable(t *testing.T) {
	gen := newFakeGenerator()
	gen.available = false
	w := newTestWorker(t, gen, testConfig(t))

	record, err := w.RunOnce(context.Background())
	assert.True(t, contextutils.IsError(err, contextutils.ErrServiceUnavailable))
	assert.Equal(t, RunFailure, record.Status)
	assert.Empty(t, gen.Calls())
}

func TestDominantDifficulty(t *testing.T) {
	tests := []struct {
		name string
		mix  topics.DifficultyMix
		want models.Difficulty
	}{
		{"medium heavy", topics.DifficultyMix{Easy: 25, Medium: 50, Hard: 25}, models.DifficultyMedium},
		{"easy heavy", topics.DifficultyMix{Easy: 60, Medium: 30, Hard: 10}, models.DifficultyEasy},
		{"hard heavy", topics.DifficultyMix{Easy: 10, Medium: 30, Hard: 60}, models.DifficultyHard},
		{"tie keeps medium", topics.DifficultyMix{Easy: 40, Medium: 40, Hard: 20}, models.DifficultyMedium},
		{"empty", topics.DifficultyMix{}, models.DifficultyMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dominantDifficulty(tt.mix))
		})
	}
}

func TestStart_PauseTriggerShutdown(t *testing.T) {
	gen := newFakeGenerator()
	gen.coverage = map[string]int{"ri-eng-grammar": 0}
	cfg := testConfig(t)
	cfg.Worker.Interval = time.Hour
	cfg.Worker.StartPaused = true
	w := newTestWorker(t, gen, cfg)

	go w.Start(context.Background())
	require.Eventually(t, func() bool { return w.GetStatus().IsRunning }, time.Second, 5*time.Millisecond)

	assert.True(t, w.TriggerManualRun())
	require.Eventually(t, func() bool { return w.GetStatus().CurrentActivity == "Paused" }, time.Second, 5*time.Millisecond)
	assert.Empty(t, gen.Calls())

	w.Resume(context.Background())
	assert.True(t, w.TriggerManualRun())
	require.Eventually(t, func() bool { return len(w.GetHistory()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"ri-eng-grammar"}, gen.Calls())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Shutdown(ctx))
	assert.False(t, w.GetStatus().IsRunning)
}

func TestShutdown_NotStarted(t *testing.T) {
	w := newTestWorker(t, newFakeGenerator(), testConfig(t))
	assert.NoError(t, w.Shutdown(context.Background()))
}

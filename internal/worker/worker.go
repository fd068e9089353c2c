// Package worker grows the question corpus in the background. Each run looks
// for syllabus topics whose bank coverage is below target, asks the AI tier
// for more questions on them and appends the accepted questions to a
// generated corpus file that the bank can load like any other corpus.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"osscprep/internal/bank"
	"osscprep/internal/config"
	"osscprep/internal/models"
	"osscprep/internal/observability"
	"osscprep/internal/services"
	"osscprep/internal/topics"
	contextutils "osscprep/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// Generator is the slice of the sourcing service the worker needs
type Generator interface {
	AIAvailable() bool
	ResolveTopic(subject, topic string) services.TopicResolution
	GenerateForTopic(ctx context.Context, exam, topicID string, difficulty models.Difficulty, count int) ([]*models.Question, error)
}

// Status represents the current state of the worker
type Status struct {
	IsRunning       bool      `json:"is_running"`
	IsPaused        bool      `json:"is_paused"`
	CurrentActivity string    `json:"current_activity,omitempty"`
	LastRunStart    time.Time `json:"last_run_start"`
	LastRunFinish   time.Time `json:"last_run_finish"`
	LastRunError    string    `json:"last_run_error,omitempty"`
	NextRun         time.Time `json:"next_run"`
	TotalGenerated  int       `json:"total_generated"`
}

// RunRecord tracks individual worker runs
type RunRecord struct {
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Status    string        `json:"status"` // Success, Failure, Skipped
	Details   string        `json:"details"`
	Generated int           `json:"generated"`
}

// ActivityLog represents a single activity log entry
type ActivityLog struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"` // INFO, WARN, ERROR
	Message   string    `json:"message"`
	TopicID   string    `json:"topic_id,omitempty"`
}

// TopicFailureInfo tracks failures for exponential backoff
type TopicFailureInfo struct {
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastFailureTime     time.Time `json:"last_failure_time"`
	NextRetryTime       time.Time `json:"next_retry_time"`
}

// Run outcomes recorded in RunRecord.Status
const (
	RunSuccess = "Success"
	RunFailure = "Failure"
	RunSkipped = "Skipped"
)

// Worker manages background corpus growth
type Worker struct {
	gen      Generator
	syllabus *topics.Syllabus
	cfg      config.WorkerConfig
	logger   *observability.Logger

	status       Status
	history      []RunRecord
	activityLogs []ActivityLog
	mu           sync.RWMutex

	// generated is the content of the output file; guarded by runMu
	generated        []*models.Question
	seenText         map[string]bool
	generatedByTopic map[string]int
	topicIDs         map[string]string
	runMu            sync.Mutex

	topicFailures map[string]*TopicFailureInfo
	failureMu     sync.RWMutex

	manualTrigger chan struct{}
	cancel        context.CancelFunc
	done          chan struct{}

	timeNow func() time.Time
}

// NewWorker creates a worker for cfg.Worker.Exam. Questions already in the
// output file count towards coverage and are kept on the next save.
func NewWorker(gen Generator, resolver *topics.Resolver, cfg *config.Config, logger *observability.Logger) (*Worker, error) {
	syllabus, ok := resolver.Syllabus(cfg.Worker.Exam)
	if !ok {
		return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "unknown exam %q", cfg.Worker.Exam)
	}

	w := &Worker{
		gen:              gen,
		syllabus:         syllabus,
		cfg:              cfg.Worker,
		logger:           logger,
		status:           Status{CurrentActivity: "Initialized", IsPaused: cfg.Worker.StartPaused},
		history:          make([]RunRecord, 0, cfg.Worker.MaxHistory),
		activityLogs:     make([]ActivityLog, 0, cfg.Worker.MaxActivityLogs),
		seenText:         make(map[string]bool),
		generatedByTopic: make(map[string]int),
		topicIDs:         make(map[string]string),
		topicFailures:    make(map[string]*TopicFailureInfo),
		manualTrigger:    make(chan struct{}, 1),
		timeNow:          time.Now,
	}
	for _, ref := range syllabus.AllTopics() {
		w.topicIDs[strings.ToLower(ref.ID)] = ref.ID
		w.topicIDs[strings.ToLower(ref.Name)] = ref.ID
	}

	if err := w.loadExisting(); err != nil {
		return nil, err
	}
	return w, nil
}

// loadExisting seeds coverage from a previous output file
func (w *Worker) loadExisting() error {
	if _, err := os.Stat(w.cfg.OutputPath); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	corpus, err := bank.OpenCorpus(w.cfg.OutputPath)
	if err != nil {
		return err
	}
	for _, q := range corpus.All() {
		w.accept(w.topicIDs[strings.ToLower(q.Topic)], q)
	}
	w.status.TotalGenerated = len(w.generated)
	return nil
}

// accept stores q unless its text was seen before
func (w *Worker) accept(topicID string, q *models.Question) bool {
	key := normalizeText(q.QuestionText)
	if key == "" || w.seenText[key] {
		return false
	}
	w.seenText[key] = true
	w.generated = append(w.generated, q)
	if topicID != "" {
		w.generatedByTopic[topicID]++
	}
	return true
}

func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Start runs the worker loop until ctx is cancelled or Shutdown is called
func (w *Worker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.done = make(chan struct{})
	w.status.IsRunning = true
	w.status.NextRun = w.timeNow().Add(w.cfg.Interval)
	done := w.done
	w.mu.Unlock()
	defer close(done)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	initial := "running"
	if w.GetStatus().IsPaused {
		initial = "paused"
	}
	w.logger.Info(ctx, "Worker started", map[string]interface{}{
		"exam":     w.syllabus.ExamCode,
		"interval": w.cfg.Interval.String(),
		"status":   initial,
	})
	w.logActivity("INFO", fmt.Sprintf("Worker started (%s)", initial), "")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "Worker shutting down", nil)
			w.logActivity("INFO", "Worker shutting down", "")
			w.mu.Lock()
			w.status.IsRunning = false
			w.mu.Unlock()
			return

		case <-ticker.C:
			w.run(ctx)

		case <-w.manualTrigger:
			w.logger.Info(ctx, "Worker triggered manually", nil)
			w.logActivity("INFO", "Worker triggered manually", "")
			w.run(ctx)
		}
	}
}

// run executes one scheduled cycle, honouring pause
func (w *Worker) run(ctx context.Context) {
	w.mu.Lock()
	w.status.NextRun = w.timeNow().Add(w.cfg.Interval)
	paused := w.status.IsPaused
	w.mu.Unlock()

	if paused {
		w.updateActivity("Paused")
		return
	}
	if _, err := w.RunOnce(ctx); err != nil {
		w.logger.Error(ctx, "Worker run failed", err, nil)
	}
}

// RunOnce performs a single growth pass regardless of pause state
func (w *Worker) RunOnce(ctx context.Context) (record RunRecord, err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "run",
		observability.AttributeExam(w.syllabus.ExamCode),
	)
	defer observability.FinishSpan(span, &err)

	w.runMu.Lock()
	defer w.runMu.Unlock()

	record.StartTime = w.timeNow()
	w.mu.Lock()
	w.status.LastRunStart = record.StartTime
	w.mu.Unlock()
	w.updateActivity("Planning")

	var details string
	var generated int
	if !w.gen.AIAvailable() {
		err = contextutils.WrapError(contextutils.ErrServiceUnavailable, "AI generation is not configured")
	} else {
		details, generated, err = w.grow(ctx)
	}

	record.EndTime = w.timeNow()
	record.Duration = record.EndTime.Sub(record.StartTime)
	record.Details = details
	record.Generated = generated
	switch {
	case err != nil:
		record.Status = RunFailure
		record.Details = err.Error()
	case generated == 0:
		record.Status = RunSkipped
	default:
		record.Status = RunSuccess
	}
	span.SetAttributes(
		attribute.Int("worker.generated", generated),
		attribute.String("worker.status", record.Status),
	)

	w.mu.Lock()
	w.status.LastRunFinish = record.EndTime
	w.status.LastRunError = ""
	if err != nil {
		w.status.LastRunError = err.Error()
	}
	w.status.TotalGenerated = len(w.generated)
	w.history = append(w.history, record)
	if len(w.history) > w.cfg.MaxHistory {
		w.history = w.history[len(w.history)-w.cfg.MaxHistory:]
	}
	w.mu.Unlock()
	w.updateActivity("Idle")

	return record, err
}

// deficit is one topic still short of the coverage target
type deficit struct {
	ref     topics.TopicRef
	missing int
}

// plan lists topics below target, largest shortfall first
func (w *Worker) plan() []deficit {
	var out []deficit
	for _, ref := range w.syllabus.AllTopics() {
		res := w.gen.ResolveTopic(ref.SubjectName, ref.ID)
		have := w.generatedByTopic[ref.ID]
		for _, n := range res.Counts {
			have += n
		}
		if missing := w.cfg.TargetPerTopic - have; missing > 0 {
			out = append(out, deficit{ref: ref, missing: missing})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].missing != out[j].missing {
			return out[i].missing > out[j].missing
		}
		return out[i].ref.ID < out[j].ref.ID
	})
	return out
}

// grow generates up to MaxPerRun questions for thin topics and saves them
func (w *Worker) grow(ctx context.Context) (string, int, error) {
	deficits := w.plan()
	if len(deficits) == 0 {
		return "all topics at target", 0, nil
	}

	budget := w.cfg.MaxPerRun
	accepted, topicsGrown, failed, backedOff := 0, 0, 0, 0
	var stopErr error

	for _, d := range deficits {
		if budget <= 0 || ctx.Err() != nil {
			break
		}
		if !w.shouldRetryTopic(d.ref.ID) {
			backedOff++
			continue
		}

		n := min(d.missing, budget)
		w.updateActivity(fmt.Sprintf("Generating %d for %s", n, d.ref.ID))
		questions, err := w.gen.GenerateForTopic(ctx, w.syllabus.ExamCode, d.ref.ID, dominantDifficulty(d.ref.Difficulty), n)
		if err != nil {
			failed++
			w.recordTopicFailure(ctx, d.ref.ID, err)
			if contextutils.IsError(err, contextutils.ErrAuthOrBilling) || contextutils.IsError(err, contextutils.ErrCircuitOpen) {
				stopErr = err
				break
			}
			continue
		}
		w.recordTopicSuccess(d.ref.ID)

		added := 0
		for _, q := range questions {
			if added >= n {
				break
			}
			if w.accept(d.ref.ID, q) {
				added++
			}
		}
		if added > 0 {
			topicsGrown++
			accepted += added
			budget -= added
			w.logActivity("INFO", fmt.Sprintf("Added %d questions (%d duplicates dropped)", added, len(questions)-added), d.ref.ID)
		}
	}

	if accepted > 0 {
		if err := bank.SaveCorpus(w.cfg.OutputPath, w.generated); err != nil {
			return "", 0, err
		}
	}

	details := fmt.Sprintf("generated %d questions for %d topics (%d failed, %d backing off, %d below target)",
		accepted, topicsGrown, failed, backedOff, len(deficits))
	w.logger.Info(ctx, "Corpus growth run finished", map[string]interface{}{
		"generated":    accepted,
		"topics":       topicsGrown,
		"failed":       failed,
		"backing_off":  backedOff,
		"below_target": len(deficits),
		"output":       w.cfg.OutputPath,
	})
	if stopErr != nil {
		return details, accepted, contextutils.WrapError(stopErr, "generation stopped early")
	}
	return details, accepted, nil
}

// dominantDifficulty picks the band with the largest share, medium on ties
func dominantDifficulty(mix topics.DifficultyMix) models.Difficulty {
	best, share := models.DifficultyMedium, mix.Medium
	if mix.Easy > share {
		best, share = models.DifficultyEasy, mix.Easy
	}
	if mix.Hard > share {
		best = models.DifficultyHard
	}
	return best
}

func (w *Worker) shouldRetryTopic(topicID string) bool {
	w.failureMu.RLock()
	defer w.failureMu.RUnlock()
	info, ok := w.topicFailures[topicID]
	return !ok || !w.timeNow().Before(info.NextRetryTime)
}

// recordTopicFailure doubles the topic's backoff up to WorkerMaxBackoff
func (w *Worker) recordTopicFailure(ctx context.Context, topicID string, err error) {
	w.failureMu.Lock()
	info, ok := w.topicFailures[topicID]
	if !ok {
		info = &TopicFailureInfo{}
		w.topicFailures[topicID] = info
	}
	info.ConsecutiveFailures++
	info.LastFailureTime = w.timeNow()
	backoff := w.cfg.FailureBackoff
	for i := 1; i < info.ConsecutiveFailures && backoff < config.WorkerMaxBackoff; i++ {
		backoff *= 2
	}
	backoff = min(backoff, config.WorkerMaxBackoff)
	info.NextRetryTime = info.LastFailureTime.Add(backoff)
	failures := info.ConsecutiveFailures
	w.failureMu.Unlock()

	w.logger.Warn(ctx, "Topic generation failed", map[string]interface{}{
		"topic":    topicID,
		"failures": failures,
		"retry_in": backoff.String(),
		"error":    err.Error(),
	})
	w.logActivity(failureLevel(err), fmt.Sprintf("Generation failed (%d in a row, retry in %s): %v", failures, backoff, err), topicID)
}

// failureLevel maps the error's severity onto the activity log levels
func failureLevel(err error) string {
	switch contextutils.GetErrorSeverity(err) {
	case contextutils.SeverityDebug, contextutils.SeverityInfo:
		return "INFO"
	case contextutils.SeverityWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

func (w *Worker) recordTopicSuccess(topicID string) {
	w.failureMu.Lock()
	delete(w.topicFailures, topicID)
	w.failureMu.Unlock()
}

// TopicFailures returns a copy of the current backoff table
func (w *Worker) TopicFailures() map[string]TopicFailureInfo {
	w.failureMu.RLock()
	defer w.failureMu.RUnlock()
	out := make(map[string]TopicFailureInfo, len(w.topicFailures))
	for k, v := range w.topicFailures {
		out[k] = *v
	}
	return out
}

func (w *Worker) updateActivity(activity string) {
	w.mu.Lock()
	w.status.CurrentActivity = activity
	w.mu.Unlock()
}

// logActivity appends to the bounded activity log
func (w *Worker) logActivity(level, message, topicID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.activityLogs = append(w.activityLogs, ActivityLog{
		Timestamp: w.timeNow(),
		Level:     level,
		Message:   message,
		TopicID:   topicID,
	})
	if len(w.activityLogs) > w.cfg.MaxActivityLogs {
		w.activityLogs = w.activityLogs[len(w.activityLogs)-w.cfg.MaxActivityLogs:]
	}
}

// GetStatus returns the current worker status
func (w *Worker) GetStatus() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

// GetHistory returns the worker's run history
func (w *Worker) GetHistory() []RunRecord {
	w.mu.RLock()
	defer w.mu.RUnlock()
	history := make([]RunRecord, len(w.history))
	copy(history, w.history)
	return history
}

// GetActivityLogs returns recent activity logs
func (w *Worker) GetActivityLogs() []ActivityLog {
	w.mu.RLock()
	defer w.mu.RUnlock()
	logs := make([]ActivityLog, len(w.activityLogs))
	copy(logs, w.activityLogs)
	return logs
}

// TriggerManualRun queues a run; a pending trigger absorbs further ones
func (w *Worker) TriggerManualRun() bool {
	select {
	case w.manualTrigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Pause stops scheduled and triggered runs until Resume
func (w *Worker) Pause(ctx context.Context) {
	w.mu.Lock()
	w.status.IsPaused = true
	w.mu.Unlock()
	w.logger.Info(ctx, "Worker paused", nil)
	w.logActivity("INFO", "Worker paused", "")
}

// Resume resumes the worker
func (w *Worker) Resume(ctx context.Context) {
	w.mu.Lock()
	w.status.IsPaused = false
	w.mu.Unlock()
	w.logger.Info(ctx, "Worker resumed", nil)
	w.logActivity("INFO", "Worker resumed", "")
}

// Shutdown stops the loop and waits for an in-flight run to finish
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.RLock()
	cancel, done := w.cancel, w.done
	w.mu.RUnlock()
	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		w.logger.Info(ctx, "Worker shutdown completed", nil)
		return nil
	case <-ctx.Done():
		return contextutils.WrapError(contextutils.ErrTimeout, "worker did not stop in time")
	}
}

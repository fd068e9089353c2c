package services

import (
	"context"
	"fmt"
	"time"

	"osscprep/internal/bank"
	"osscprep/internal/config"
	"osscprep/internal/models"
	"osscprep/internal/observability"
	"osscprep/internal/topics"
	contextutils "osscprep/internal/utils"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// QuestionSourcingService is the single entry point for questions. Each
// call walks three tiers in order: the local bank, AI generation and the
// static fallback bank. Tier failures are logged and treated as zero
// questions from that tier, so callers always get a full list.
type QuestionSourcingService struct {
	bank     *bank.Bank
	resolver *topics.Resolver
	racer    *ModelRacer
	parser   *ResponseParser
	prompts  *PromptBuilder
	fallback *StaticFallbackBank
	usage    *bank.UsageTracker
	sink     PersistenceSink
	batch    *BatchGenerator
	metrics  *observability.SourcingMetrics
	logger   *observability.Logger

	persistAcrossSessions bool
	now                   func() time.Time
}

// NewQuestionSourcingService wires the tiers together. It validates the
// static fallback bank and fails when it is unusable. racer may be nil or
// unconfigured, in which case the AI tier is skipped; sink may be nil.
func NewQuestionSourcingService(
	questionBank *bank.Bank,
	resolver *topics.Resolver,
	racer *ModelRacer,
	fallback *StaticFallbackBank,
	usage *bank.UsageTracker,
	sink PersistenceSink,
	cfg *config.Config,
	metrics *observability.SourcingMetrics,
	logger *observability.Logger,
) (*QuestionSourcingService, error) {
	if fallback == nil {
		fallback = DefaultStaticFallbackBank()
	}
	if err := fallback.Validate(); err != nil {
		return nil, err
	}
	parser, err := NewResponseParser()
	if err != nil {
		return nil, err
	}
	prompts, err := NewPromptBuilder()
	if err != nil {
		return nil, err
	}
	if usage == nil {
		usage = bank.NewMemoryUsageTracker()
	}
	if sink == nil {
		sink = NopSink{}
	}

	s := &QuestionSourcingService{
		bank:                  questionBank,
		resolver:              resolver,
		racer:                 racer,
		parser:                parser,
		prompts:               prompts,
		fallback:              fallback,
		usage:                 usage,
		sink:                  sink,
		metrics:               metrics,
		logger:                logger,
		persistAcrossSessions: cfg.Usage.PersistAcrossSessions,
		now:                   time.Now,
	}
	s.batch = newBatchGenerator(s, cfg.AI.BatchSize, cfg.AI.BatchStagger)
	return s, nil
}

// Batch returns the generator used for large AI requests
func (s *QuestionSourcingService) Batch() *BatchGenerator {
	return s.batch
}

// Resolver returns the topic resolver
func (s *QuestionSourcingService) Resolver() *topics.Resolver {
	return s.resolver
}

// AIAvailable reports whether the AI tier can be tried at all
func (s *QuestionSourcingService) AIAvailable() bool {
	return s.racer.Available()
}

// GetQuestions returns exactly req.Count questions. It never fails: tiers
// that error or under-supply are topped up by the next tier, and as a last
// resort already collected questions are repeated.
func (s *QuestionSourcingService) GetQuestions(ctx context.Context, req models.SourcingRequest) []*models.Question {
	start := s.now()
	req = s.sanitize(ctx, req)
	questions := s.source(ctx, req)

	bySource := models.CountBySource(questions)
	s.record(models.EventKindQuestions, req, bySource, start)
	s.logger.Info(ctx, "Questions sourced", map[string]interface{}{
		"request":  req.String(),
		"bank":     bySource[models.SourceLocalBank],
		"ai":       bySource[models.SourceAIGenerated],
		"static":   bySource[models.SourceStaticFallback],
		"duration": s.now().Sub(start).String(),
		"learner":  req.LearnerID,
	})
	return questions
}

// source runs the tier chain for an already sanitized request
func (s *QuestionSourcingService) source(ctx context.Context, req models.SourcingRequest) []*models.Question {
	ctx, span := observability.TraceSourcingFunction(ctx, "source",
		observability.AttributeExam(req.Exam),
		observability.AttributeSubject(req.SubjectID),
		observability.AttributeTopic(req.SyllabusTopic),
		observability.AttributeDifficulty(string(req.Difficulty)),
		observability.AttributeCount(req.Count),
		observability.AttributeLearnerID(req.LearnerID),
	)
	defer span.End()

	if req.Count <= 0 {
		return []*models.Question{}
	}

	subject := s.resolver.NormalizeSubject(req.SubjectID)
	out := newCollector(req.Count)

	out.add(s.bankTier(ctx, req, subject, req.Count))

	if out.short() > 0 {
		aiQuestions, err := s.aiTier(ctx, req, subject, out.short())
		if err != nil {
			s.logTierFailure(ctx, "ai", req, err)
		}
		out.add(aiQuestions)
	}

	if out.short() > 0 {
		out.add(s.staticTier(req, subject, out.short()))
	}

	questions := out.result()
	bySource := models.CountBySource(questions)
	for src, n := range bySource {
		s.metrics.QuestionsServed(string(src), n)
	}
	span.SetAttributes(
		attribute.Int("served.bank", bySource[models.SourceLocalBank]),
		attribute.Int("served.ai", bySource[models.SourceAIGenerated]),
		attribute.Int("served.static", bySource[models.SourceStaticFallback]),
	)
	return questions
}

// sanitize normalizes req and replaces invalid fields with defaults. The
// HTTP layer rejects invalid requests before they get here.
func (s *QuestionSourcingService) sanitize(ctx context.Context, req models.SourcingRequest) models.SourcingRequest {
	if err := req.Validate(); err != nil {
		s.logger.Warn(ctx, "Sourcing request failed validation, using defaults", map[string]interface{}{
			"error": err.Error(), "request": req.String(),
		})
		if req.Exam != models.ExamRI && req.Exam != models.ExamAI {
			req.Exam = models.ExamRI
		}
		if req.Language != models.LanguageEnglish && req.Language != models.LanguageOdia {
			req.Language = models.LanguageEnglish
		}
		if _, ok := models.ParseDifficulty(string(req.Difficulty)); !ok {
			req.Difficulty = ""
		}
		req.Count = min(req.Count, models.MaxQuestionsPerRequest)
	}
	return req
}

// bankTier queries the local bank for up to need questions
func (s *QuestionSourcingService) bankTier(ctx context.Context, req models.SourcingRequest, subject string, need int) []*models.Question {
	if s.bank == nil {
		return nil
	}
	var bankTopics []string
	if req.SyllabusTopic != "" {
		bankTopics = s.resolver.Resolve(subject, req.SyllabusTopic)
	}
	return s.bank.Query(ctx, bank.Filter{
		Exam:       req.Exam,
		Subject:    subject,
		Topic:      req.SyllabusTopic,
		BankTopics: bankTopics,
		Difficulty: req.Difficulty,
		ExcludeIDs: req.ExcludeIDs,
		Limit:      need,
	}, s.usage.ForLearner(req.LearnerID))
}

// aiTier asks the model racer for need questions. Requests above the
// batch size are split into staggered sub-batches.
func (s *QuestionSourcingService) aiTier(ctx context.Context, req models.SourcingRequest, subject string, need int) ([]*models.Question, error) {
	if !s.racer.Available() {
		s.logger.Debug(ctx, "AI tier not configured, skipping", nil)
		return nil, nil
	}
	genReq := s.generationRequest(req, subject, need)
	if need > s.batch.BatchSize() {
		var questions []*models.Question
		var firstErr error
		for _, b := range s.batch.generateAIBatches(ctx, genReq) {
			if b.err != nil && firstErr == nil {
				firstErr = b.err
			}
			questions = append(questions, b.questions...)
		}
		return questions, firstErr
	}
	return s.generateAI(ctx, genReq)
}

// generateAI runs one generation request through the racer and parser
func (s *QuestionSourcingService) generateAI(ctx context.Context, genReq models.GenerationRequest) (result []*models.Question, err error) {
	ctx, span := observability.TraceAIFunction(ctx, "generate_questions",
		observability.AttributeSubject(genReq.SubjectName),
		observability.AttributeTopic(genReq.TopicName),
		observability.AttributeCount(genReq.Count),
	)
	defer observability.FinishSpan(span, &err)

	messages, err := s.prompts.GenerationMessages(genReq)
	if err != nil {
		return nil, err
	}
	raw, err := s.racer.Generate(ctx, messages, s.racer.DefaultParams())
	if err != nil {
		return nil, err
	}
	parsed := s.parser.Parse(raw)
	if !parsed.Ok() {
		return nil, parsed.Err
	}
	questions := ToQuestions(parsed.Questions, genReq, s.now())
	if len(questions) > genReq.Count {
		questions = questions[:genReq.Count]
	}
	span.SetAttributes(attribute.Int("questions.parsed", len(parsed.Questions)))
	return questions, nil
}

// generationRequest fills display names and subtopics from the syllabus
func (s *QuestionSourcingService) generationRequest(req models.SourcingRequest, subject string, count int) models.GenerationRequest {
	genReq := models.GenerationRequest{
		Exam:        req.Exam,
		SubjectName: subject,
		Difficulty:  req.Difficulty,
		Count:       count,
		Language:    req.Language,
	}
	if req.SyllabusTopic != "" {
		ref := s.resolver.DescribeTopic(req.Exam, req.SyllabusTopic)
		genReq.TopicName = ref.Name
		genReq.Subtopics = ref.Subtopics
		if genReq.SubjectName == "" {
			genReq.SubjectName = ref.SubjectName
		}
	}
	if genReq.SubjectName == "" {
		genReq.SubjectName = "General"
	}
	return genReq
}

// staticTier always returns exactly need questions
func (s *QuestionSourcingService) staticTier(req models.SourcingRequest, subject string, need int) []*models.Question {
	hint := subject
	if hint == "" {
		hint = req.SubjectID
	}
	questions := s.fallback.Select(hint, need, nil)
	for _, q := range questions {
		q.Exam = req.Exam
	}
	return questions
}

// nonAITiers fills need questions from the bank and then the static bank.
// Used by the batch generator when a sub-batch fails.
func (s *QuestionSourcingService) nonAITiers(ctx context.Context, req models.SourcingRequest, need int) []*models.Question {
	subject := s.resolver.NormalizeSubject(req.SubjectID)
	out := newCollector(need)
	out.add(s.bankTier(ctx, req, subject, need))
	if out.short() > 0 {
		out.add(s.staticTier(req, subject, out.short()))
	}
	return out.result()
}

func (s *QuestionSourcingService) logTierFailure(ctx context.Context, tier string, req models.SourcingRequest, err error) {
	fields := map[string]interface{}{
		"tier":    tier,
		"request": req.String(),
		"code":    string(contextutils.GetErrorCode(err)),
		"error":   err.Error(),
	}
	if contextutils.IsError(err, contextutils.ErrCircuitOpen) || contextutils.IsError(err, contextutils.ErrAIConfigInvalid) {
		s.logger.Info(ctx, "Sourcing tier skipped", fields)
		return
	}
	s.logger.Warn(ctx, "Sourcing tier failed, falling through", fields)
}

// record hands the event to the sink without waiting
func (s *QuestionSourcingService) record(kind string, req models.SourcingRequest, bySource map[models.Source]int, start time.Time) {
	s.sink.Record(models.SourcingEvent{
		ID:        uuid.NewString(),
		Kind:      kind,
		LearnerID: req.LearnerID,
		Exam:      req.Exam,
		Subject:   s.resolver.NormalizeSubject(req.SubjectID),
		Topic:     req.SyllabusTopic,
		Requested: req.Count,
		BySource:  bySource,
		Duration:  s.now().Sub(start),
		At:        start.UTC(),
	})
}

// StartSession begins a practice session for learnerID, minting an id when
// it is empty. The learner's usage set is cleared unless usage persists
// across sessions.
func (s *QuestionSourcingService) StartSession(ctx context.Context, learnerID string) (string, error) {
	if learnerID == "" {
		learnerID = uuid.NewString()
	}
	if s.persistAcrossSessions {
		return learnerID, nil
	}
	if err := s.ResetUsageTracking(ctx, learnerID); err != nil {
		return learnerID, err
	}
	return learnerID, nil
}

// ResetUsageTracking forgets which questions learnerID has seen
func (s *QuestionSourcingService) ResetUsageTracking(ctx context.Context, learnerID string) error {
	if err := s.usage.ForLearner(learnerID).Reset(ctx); err != nil {
		return contextutils.WrapErrorf(err, "failed to reset usage for learner %q", learnerID)
	}
	s.logger.Info(ctx, "Usage tracking reset", map[string]interface{}{"learner": learnerID})
	return nil
}

// GetStats returns corpus statistics with learnerID's usage applied
func (s *QuestionSourcingService) GetStats(ctx context.Context, learnerID string) models.BankStats {
	return s.bank.Stats(ctx, s.usage.ForLearner(learnerID))
}

// TopicsForSubject lists the bank topics of a subject with availability
func (s *QuestionSourcingService) TopicsForSubject(ctx context.Context, subject, learnerID string) []models.TopicAvailability {
	return s.bank.TopicsForSubject(ctx, s.resolver.NormalizeSubject(subject), s.usage.ForLearner(learnerID))
}

// GenerateForTopic asks the AI tier alone for count questions on one
// syllabus topic. Unlike GetQuestions it does not fall back, so callers see
// the generation error.
func (s *QuestionSourcingService) GenerateForTopic(ctx context.Context, exam, topicID string, difficulty models.Difficulty, count int) (result []*models.Question, err error) {
	ctx, span := observability.TraceSourcingFunction(ctx, "generate_for_topic",
		observability.AttributeExam(exam),
		observability.AttributeTopic(topicID),
		observability.AttributeCount(count),
	)
	defer observability.FinishSpan(span, &err)

	if !s.racer.Available() {
		return nil, contextutils.WrapError(contextutils.ErrServiceUnavailable, "AI generation is not configured")
	}
	if count <= 0 {
		return nil, nil
	}

	start := s.now()
	ref := s.resolver.DescribeTopic(exam, topicID)
	req := models.SourcingRequest{
		Exam:          exam,
		SubjectID:     ref.SubjectID,
		SyllabusTopic: topicID,
		Difficulty:    difficulty,
		Count:         count,
		Language:      models.LanguageEnglish,
	}
	subject := ref.SubjectName
	if subject == "" {
		subject = s.resolver.NormalizeSubject(ref.SubjectID)
	}

	questions, err := s.aiTier(ctx, req, subject, count)
	s.record(models.EventKindGenerate, req, models.CountBySource(questions), start)
	if err != nil && len(questions) == 0 {
		return nil, err
	}
	for _, q := range questions {
		q.Exam = exam
	}
	return questions, nil
}

// TopicResolution explains how a syllabus topic maps onto the bank
type TopicResolution struct {
	Subject    string         `json:"subject"`
	Topic      string         `json:"topic"`
	Canonical  string         `json:"canonical"`
	BankTopics []string       `json:"bank_topics"`
	Counts     map[string]int `json:"counts"`
}

// ResolveTopic reports the bank labels for a subject and syllabus topic
func (s *QuestionSourcingService) ResolveTopic(subject, topic string) TopicResolution {
	normalized := s.resolver.NormalizeSubject(subject)
	labels := s.resolver.Resolve(normalized, topic)
	if labels == nil {
		labels = []string{}
	}
	counts := make(map[string]int, len(labels))
	for _, l := range labels {
		counts[l] = s.bank.TopicCount(normalized, l)
	}
	return TopicResolution{
		Subject:    normalized,
		Topic:      topic,
		Canonical:  s.resolver.Canonical(topic),
		BankTopics: labels,
		Counts:     counts,
	}
}

// collector accumulates tier output, dropping repeated ids
type collector struct {
	want      int
	seen      map[string]bool
	questions []*models.Question
}

func newCollector(want int) *collector {
	return &collector{want: want, seen: make(map[string]bool, want), questions: make([]*models.Question, 0, want)}
}

func (c *collector) short() int {
	return c.want - len(c.questions)
}

func (c *collector) add(qs []*models.Question) {
	for _, q := range qs {
		if c.short() <= 0 {
			return
		}
		if q == nil || c.seen[q.ID] || q.Validate() != nil {
			continue
		}
		c.seen[q.ID] = true
		c.questions = append(c.questions, q)
	}
}

// result pads by repeating collected questions under new ids when every
// tier together still fell short.
func (c *collector) result() []*models.Question {
	if n := len(c.questions); n > 0 {
		for i := 0; c.short() > 0; i++ {
			q := c.questions[i%n].Clone()
			q.ID = fmt.Sprintf("%s_p%d", q.ID, i/n+2)
			c.questions = append(c.questions, q)
		}
	}
	return c.questions
}

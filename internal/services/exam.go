package services

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"osscprep/internal/config"
	"osscprep/internal/models"
	"osscprep/internal/observability"
	"osscprep/internal/topics"
	contextutils "osscprep/internal/utils"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// questionsPerWeakTopic is how many daily questions each weak topic gets
const questionsPerWeakTopic = 2

// mockSubjectConcurrency bounds how many subjects of a mock test are
// sourced at the same time.
const mockSubjectConcurrency = 2

// ExamService assembles full mock tests and short daily tests on top of
// the sourcing service.
type ExamService struct {
	sourcing *QuestionSourcingService
	resolver *topics.Resolver
	logger   *observability.Logger

	mockTestQuestions  int
	dailyTestQuestions int

	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewExamService creates an ExamService
func NewExamService(sourcing *QuestionSourcingService, cfg *config.Config, logger *observability.Logger) *ExamService {
	mock, daily := cfg.Exam.MockTestQuestions, cfg.Exam.DailyTestQuestions
	if mock <= 0 {
		mock = config.DefaultMockTestQuestions
	}
	if daily <= 0 {
		daily = config.DefaultDailyTestQuestions
	}
	seed := uint64(time.Now().UnixNano())
	return &ExamService{
		sourcing:           sourcing,
		resolver:           sourcing.Resolver(),
		logger:             logger,
		mockTestQuestions:  mock,
		dailyTestQuestions: daily,
		rng:                rand.New(rand.NewPCG(seed, seed>>1|1)),
		now:                time.Now,
	}
}

// SubjectCounts splits total across subjects by weightage percentage,
// rounding each share. The shares may not add up to total exactly.
func SubjectCounts(subjects []topics.Subject, total int) []int {
	counts := make([]int, len(subjects))
	for i, s := range subjects {
		counts[i] = int(math.Round(float64(s.Weightage) / 100 * float64(total)))
	}
	return counts
}

// MockTest builds a full paper for exam. Each subject is filled from the
// bank first and the remainder is generated in batches. The paper is
// shuffled across subjects and always has the configured length.
func (e *ExamService) MockTest(ctx context.Context, exam, learnerID, language string) (result *models.MockTest, err error) {
	ctx, span := observability.TraceExamFunction(ctx, "mock_test",
		observability.AttributeExam(exam),
		observability.AttributeLearnerID(learnerID),
	)
	defer observability.FinishSpan(span, &err)

	start := e.sourcing.now()
	syllabus, ok := e.resolver.Syllabus(exam)
	if !ok {
		return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "unknown exam %q", exam)
	}
	if language == "" {
		language = models.LanguageEnglish
	}

	total := e.mockTestQuestions
	counts := SubjectCounts(syllabus.Subjects, total)
	perSubject := make([][]*models.Question, len(syllabus.Subjects))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(mockSubjectConcurrency)
	for i, subject := range syllabus.Subjects {
		if counts[i] <= 0 {
			continue
		}
		g.Go(func() error {
			perSubject[i] = e.subjectQuestions(gctx, models.SourcingRequest{
				Exam:      syllabus.ExamCode,
				SubjectID: subject.ID,
				Count:     counts[i],
				Language:  language,
				LearnerID: learnerID,
			})
			return nil
		})
	}
	_ = g.Wait()

	questions := e.assemblePaper(perSubject, total, func(n int) []*models.Question {
		return e.sourcing.staticTier(models.SourcingRequest{Exam: syllabus.ExamCode}, "", n+e.sourcing.fallback.Len())
	})

	bySource := models.CountBySource(questions)
	req := models.SourcingRequest{Exam: syllabus.ExamCode, Count: total, Language: language, LearnerID: learnerID}
	e.sourcing.record(models.EventKindMockTest, req, bySource, start)
	span.SetAttributes(attribute.Int("questions.total", len(questions)))
	e.logger.Info(ctx, "Mock test assembled", map[string]interface{}{
		"exam":     syllabus.ExamCode,
		"total":    len(questions),
		"bank":     bySource[models.SourceLocalBank],
		"ai":       bySource[models.SourceAIGenerated],
		"static":   bySource[models.SourceStaticFallback],
		"learner":  learnerID,
		"duration": e.sourcing.now().Sub(start).String(),
	})

	return &models.MockTest{
		Exam:            syllabus.ExamCode,
		Questions:       questions,
		DurationMinutes: syllabus.DurationMinutes,
		TotalMarks:      syllabus.TotalMarks,
		NegativeMarking: syllabus.NegativeMarking,
		BySource:        bySource,
	}, nil
}

// assemblePaper joins the per-subject sets in random order, so rounding
// overflow is not always cut from the last subject. A short paper is topped
// up through topUp before the final shuffle.
func (e *ExamService) assemblePaper(perSubject [][]*models.Question, total int, topUp func(n int) []*models.Question) []*models.Question {
	var all []*models.Question
	for _, qs := range perSubject {
		all = append(all, qs...)
	}
	e.shuffle(all)

	out := newCollector(total)
	out.add(all)
	if short := out.short(); short > 0 {
		out.add(topUp(short))
	}
	questions := out.result()
	e.shuffle(questions)
	return questions
}

// subjectQuestions takes what the bank has for one subject and sends the
// shortfall through the batch generator.
func (e *ExamService) subjectQuestions(ctx context.Context, req models.SourcingRequest) []*models.Question {
	subject := e.resolver.NormalizeSubject(req.SubjectID)
	out := newCollector(req.Count)
	out.add(e.sourcing.bankTier(ctx, req, subject, req.Count))
	if short := out.short(); short > 0 {
		out.add(e.sourcing.Batch().GenerateLarge(ctx, req, short, 0))
	}
	return out.result()
}

// DailyTest builds the short daily set. Up to half of it targets the
// learner's weak topics, two questions each; the rest comes from the
// subject of the day.
func (e *ExamService) DailyTest(ctx context.Context, exam, learnerID, language string, weakTopics []string) (result *models.DailyTest, err error) {
	ctx, span := observability.TraceExamFunction(ctx, "daily_test",
		observability.AttributeExam(exam),
		observability.AttributeLearnerID(learnerID),
		attribute.Int("weak_topics", len(weakTopics)),
	)
	defer observability.FinishSpan(span, &err)

	start := e.sourcing.now()
	syllabus, ok := e.resolver.Syllabus(exam)
	if !ok {
		return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "unknown exam %q", exam)
	}
	if len(syllabus.Subjects) == 0 {
		return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "syllabus %s has no subjects", syllabus.ExamCode)
	}
	if language == "" {
		language = models.LanguageEnglish
	}

	total := e.dailyTestQuestions
	weakCount := min(total/2, len(weakTopics)*questionsPerWeakTopic)
	out := newCollector(total)

	for _, topic := range weakTopics {
		got := len(out.questions)
		if got >= weakCount {
			break
		}
		out.add(e.sourcing.source(ctx, models.SourcingRequest{
			Exam:          syllabus.ExamCode,
			SyllabusTopic: topic,
			Count:         min(questionsPerWeakTopic, weakCount-got),
			Language:      language,
			LearnerID:     learnerID,
		}))
	}

	today := e.now()
	subject := syllabus.Subjects[int(today.Weekday())%len(syllabus.Subjects)]
	if short := out.short(); short > 0 {
		out.add(e.sourcing.source(ctx, models.SourcingRequest{
			Exam:      syllabus.ExamCode,
			SubjectID: subject.ID,
			Count:     short,
			Language:  language,
			LearnerID: learnerID,
		}))
	}
	questions := out.result()
	e.shuffle(questions)

	bySource := models.CountBySource(questions)
	req := models.SourcingRequest{Exam: syllabus.ExamCode, SubjectID: subject.ID, Count: total, Language: language, LearnerID: learnerID}
	e.sourcing.record(models.EventKindDailyTest, req, bySource, start)
	e.logger.Info(ctx, "Daily test assembled", map[string]interface{}{
		"exam":        syllabus.ExamCode,
		"subject":     subject.Name,
		"weak_topics": len(weakTopics),
		"weak_served": weakCount,
		"total":       len(questions),
		"learner":     learnerID,
	})

	return &models.DailyTest{
		Exam:       syllabus.ExamCode,
		Date:       today.Format(time.DateOnly),
		Subject:    subject.Name,
		WeakTopics: weakTopics,
		Questions:  questions,
		BySource:   bySource,
	}, nil
}

func (e *ExamService) shuffle(qs []*models.Question) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rng.Shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
}

package services

import (
	"context"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"osscprep/internal/bank"
	"osscprep/internal/config"
	"osscprep/internal/models"
	"osscprep/internal/topics"
	contextutils "osscprep/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// recordingSink keeps every event in memory
type recordingSink struct {
	mu     sync.Mutex
	events []models.SourcingEvent
}

func (s *recordingSink) Record(e models.SourcingEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) Events() []models.SourcingEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.SourcingEvent(nil), s.events...)
}

var requestedCount = regexp.MustCompile(`Write exactly (\d+) distinct questions`)

// aiQuestionsJSON renders n well-formed questions tagged with label
func aiQuestionsJSON(label string, n int) string {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf(`{"question":"%s question %d?","options":["w","x","y","z"],"correctAnswer":"%s","explanation":"because"}`,
			label, i, models.OptionLetter(i%4))
	}
	return `{"questions":[` + strings.Join(items, ",") + `]}`
}

// countingGenerator answers every prompt with as many questions as it asks for
func countingGenerator(label string, calls *atomic.Int32) completionFunc {
	return func(_ context.Context, _ string, messages []models.ChatMessage, _ Params) (string, error) {
		if calls != nil {
			calls.Add(1)
		}
		n := 1
		if m := requestedCount.FindStringSubmatch(messages[0].Content); m != nil {
			n, _ = strconv.Atoi(m[1])
		}
		return aiQuestionsJSON(label, n), nil
	}
}

func tsdCorpus(t *testing.T, n int) *bank.Corpus {
	t.Helper()
	records := make([]string, n)
	for i := range records {
		records[i] = fmt.Sprintf(`{"id":"tsd_%02d","subject":"Quantitative Aptitude","topic":"Time Speed Distance","difficulty":"medium",
			"question":"Train %d covers 120 km in 2 hours. Speed?","options":{"A":"50","B":"60","C":"70","D":"80"},"correctAnswer":"B","explanation":"120/2"}`, i, i)
	}
	corpus, err := bank.LoadCorpus(strings.NewReader(`{"questions":[` + strings.Join(records, ",") + `]}`))
	require.NoError(t, err)
	return corpus
}

type SourcingServiceTestSuite struct {
	suite.Suite
	resolver *topics.Resolver
	cfg      *config.Config
	sink     *recordingSink
	ctx      context.Context
}

func TestSourcingServiceTestSuite(t *testing.T) {
	suite.Run(t, new(SourcingServiceTestSuite))
}

func (s *SourcingServiceTestSuite) SetupTest() {
	resolver, err := topics.NewDefaultResolver()
	s.Require().NoError(err)
	s.resolver = resolver

	s.cfg = &config.Config{}
	s.cfg.ApplyDefaults()
	s.cfg.AI.BatchStagger = time.Millisecond
	s.sink = &recordingSink{}
	s.ctx = context.Background()
}

func (s *SourcingServiceTestSuite) newService(corpus *bank.Corpus, racer *ModelRacer) *QuestionSourcingService {
	if corpus == nil {
		var err error
		corpus, err = bank.DefaultCorpus()
		s.Require().NoError(err)
	}
	logger := testLogger()
	questionBank := bank.New(corpus, nil, s.resolver, logger, bank.WithRand(rand.New(rand.NewPCG(7, 11))))
	svc, err := NewQuestionSourcingService(questionBank, s.resolver, racer, nil, nil, s.sink, s.cfg, nil, logger)
	s.Require().NoError(err)
	return svc
}

func (s *SourcingServiceTestSuite) aiRacer(client CompletionClient) *ModelRacer {
	return NewModelRacer(client, RacerConfig{
		Models:      []string{"model-a"},
		RaceWidth:   1,
		CallTimeout: 5 * time.Second,
	}, nil, nil, testLogger())
}

func (s *SourcingServiceTestSuite) assertWellFormed(qs []*models.Question) {
	seen := map[string]bool{}
	for _, q := range qs {
		s.Require().NoError(q.Validate())
		s.Len(q.Options, 4)
		s.GreaterOrEqual(q.CorrectOptionIndex, 0)
		s.Less(q.CorrectOptionIndex, 4)
		s.False(seen[q.ID], "duplicate id %s", q.ID)
		seen[q.ID] = true
	}
}

func (s *SourcingServiceTestSuite) TestBankSatisfiesAliasedTopic() {
	svc := s.newService(tsdCorpusFromDefault(s.T()), nil)

	got := svc.GetQuestions(s.ctx, models.SourcingRequest{
		SubjectID:     "Quantitative Aptitude",
		SyllabusTopic: "ri-quant-time-distance",
		Difficulty:    models.DifficultyMedium,
		Count:         10,
	})

	s.Require().Len(got, 10)
	s.assertWellFormed(got)
	labels := map[string]int{}
	for _, q := range got {
		s.Equal(models.SourceLocalBank, q.Source)
		labels[q.Topic]++
	}
	s.Equal(map[string]int{"Time Speed Distance": 6, "Time, Speed & Distance": 4}, labels)

	events := s.sink.Events()
	s.Require().Len(events, 1)
	s.Equal(models.EventKindQuestions, events[0].Kind)
	s.Equal(10, events[0].BySource[models.SourceLocalBank])
	s.False(events[0].Degraded())
}

func (s *SourcingServiceTestSuite) TestShortBankFallsThroughToStatic() {
	svc := s.newService(tsdCorpus(s.T(), 4), nil)

	got := svc.GetQuestions(s.ctx, models.SourcingRequest{
		SubjectID:     "Quantitative Aptitude",
		SyllabusTopic: "ri-quant-time-distance",
		Difficulty:    models.DifficultyMedium,
		Count:         10,
	})

	s.Require().Len(got, 10)
	s.assertWellFormed(got)
	counts := models.CountBySource(got)
	s.Equal(4, counts[models.SourceLocalBank])
	s.Equal(6, counts[models.SourceStaticFallback])
	s.Zero(counts[models.SourceAIGenerated])
	for _, q := range got[4:] {
		s.True(strings.HasPrefix(q.ID, "fallback_quant_"), q.ID)
		s.Equal(models.ExamRI, q.Exam)
	}
	s.True(s.sink.Events()[0].Degraded())
}

func (s *SourcingServiceTestSuite) TestNoMatchAnywhereServesStatic() {
	svc := s.newService(nil, nil)

	got := svc.GetQuestions(s.ctx, models.SourcingRequest{
		SubjectID:     "Underwater Basket Weaving",
		SyllabusTopic: "no-such-topic",
		Count:         15,
	})

	s.Require().Len(got, 15)
	s.assertWellFormed(got)
	for _, q := range got {
		s.Equal(models.SourceStaticFallback, q.Source)
	}
}

func (s *SourcingServiceTestSuite) TestCountInvariant() {
	svc := s.newService(nil, nil)
	for _, tc := range []struct {
		subject string
		topic   string
		count   int
	}{
		{"Reasoning & Mental Ability", "", 1},
		{"ri-english", "", 7},
		{"General Knowledge", "ri-gk-polity", 25},
		{"Odia Language", "ri-odia-comprehension", 12},
		{"", "", 200},
	} {
		got := svc.GetQuestions(s.ctx, models.SourcingRequest{SubjectID: tc.subject, SyllabusTopic: tc.topic, Count: tc.count})
		s.Len(got, tc.count, "%s/%s", tc.subject, tc.topic)
		s.assertWellFormed(got)
	}
}

func (s *SourcingServiceTestSuite) TestInvalidRequestsAreSanitized() {
	svc := s.newService(nil, nil)

	s.Empty(svc.GetQuestions(s.ctx, models.SourcingRequest{Count: 0}))
	s.Empty(svc.GetQuestions(s.ctx, models.SourcingRequest{Count: -3}))

	got := svc.GetQuestions(s.ctx, models.SourcingRequest{Exam: "XYZ", Language: "fr", Difficulty: "extreme", Count: 500})
	s.Len(got, models.MaxQuestionsPerRequest)
	for _, q := range got {
		s.Equal(models.ExamRI, q.Exam)
	}
}

func (s *SourcingServiceTestSuite) TestAITierFillsBankShortfall() {
	var calls atomic.Int32
	svc := s.newService(tsdCorpus(s.T(), 4), s.aiRacer(countingGenerator("gen", &calls)))
	s.True(svc.AIAvailable())

	got := svc.GetQuestions(s.ctx, models.SourcingRequest{
		SubjectID:     "Quantitative Aptitude",
		SyllabusTopic: "ri-quant-time-distance",
		Count:         10,
		Language:      "or",
	})

	s.Require().Len(got, 10)
	s.assertWellFormed(got)
	counts := models.CountBySource(got)
	s.Equal(4, counts[models.SourceLocalBank])
	s.Equal(6, counts[models.SourceAIGenerated])
	for _, q := range got[4:] {
		s.True(strings.HasPrefix(q.ID, "ai_"))
		s.Equal("Quantitative Aptitude", q.Subject)
		s.Equal("Time, Speed & Distance", q.Topic)
		s.Equal(models.LanguageOdia, q.Language)
	}
	s.GreaterOrEqual(calls.Load(), int32(1))
}

func (s *SourcingServiceTestSuite) TestAIGarbageFallsThroughToStatic() {
	client := completionFunc(func(context.Context, string, []models.ChatMessage, Params) (string, error) {
		return "I'm sorry, I cannot produce questions right now, please retry later.", nil
	})
	svc := s.newService(tsdCorpus(s.T(), 2), s.aiRacer(client))

	got := svc.GetQuestions(s.ctx, models.SourcingRequest{SubjectID: "Quantitative Aptitude", SyllabusTopic: "ri-quant-time-distance", Count: 5})
	s.Require().Len(got, 5)
	counts := models.CountBySource(got)
	s.Equal(2, counts[models.SourceLocalBank])
	s.Equal(3, counts[models.SourceStaticFallback])
}

func (s *SourcingServiceTestSuite) TestAIErrorsNeverEscape() {
	client := completionFunc(func(context.Context, string, []models.ChatMessage, Params) (string, error) {
		return "", statusError(401, "http://provider", []byte("no credit"))
	})
	svc := s.newService(tsdCorpus(s.T(), 1), s.aiRacer(client))

	got := svc.GetQuestions(s.ctx, models.SourcingRequest{SubjectID: "Quantitative Aptitude", Count: 4})
	s.Require().Len(got, 4)
	s.assertWellFormed(got)
	s.Equal(3, models.CountBySource(got)[models.SourceStaticFallback])
}

func (s *SourcingServiceTestSuite) TestLargeAIRequestIsBatched() {
	var calls atomic.Int32
	svc := s.newService(tsdCorpus(s.T(), 0), s.aiRacer(countingGenerator("big", &calls)))

	got := svc.GetQuestions(s.ctx, models.SourcingRequest{SubjectID: "Quantitative Aptitude", Count: 45})
	s.Require().Len(got, 45)
	s.assertWellFormed(got)
	s.Equal(45, models.CountBySource(got)[models.SourceAIGenerated])
	s.Equal(int32(3), calls.Load(), "20 + 20 + 5")
}

func (s *SourcingServiceTestSuite) TestUsageTrackingAndSessions() {
	svc := s.newService(tsdCorpus(s.T(), 6), nil)
	req := models.SourcingRequest{SubjectID: "Quantitative Aptitude", SyllabusTopic: "ri-quant-time-distance", Count: 6, LearnerID: "learner-1"}

	first := svc.GetQuestions(s.ctx, req)
	s.Equal(6, models.CountBySource(first)[models.SourceLocalBank])

	second := svc.GetQuestions(s.ctx, req)
	s.Zero(models.CountBySource(second)[models.SourceLocalBank], "served questions are not repeated")

	other := svc.GetQuestions(s.ctx, models.SourcingRequest{SubjectID: "Quantitative Aptitude", SyllabusTopic: "ri-quant-time-distance", Count: 6, LearnerID: "learner-2"})
	s.Equal(6, models.CountBySource(other)[models.SourceLocalBank], "usage is per learner")

	id, err := svc.StartSession(s.ctx, "learner-1")
	s.Require().NoError(err)
	s.Equal("learner-1", id)
	third := svc.GetQuestions(s.ctx, req)
	s.Equal(6, models.CountBySource(third)[models.SourceLocalBank], "a new session starts fresh")

	s.Equal(6, svc.GetStats(s.ctx, "learner-1").Used)
	s.Require().NoError(svc.ResetUsageTracking(s.ctx, "learner-1"))
	s.Equal(0, svc.GetStats(s.ctx, "learner-1").Used)
}

func (s *SourcingServiceTestSuite) TestPersistAcrossSessions() {
	s.cfg.Usage.PersistAcrossSessions = true
	svc := s.newService(tsdCorpus(s.T(), 3), nil)
	req := models.SourcingRequest{SubjectID: "Quantitative Aptitude", Count: 3, LearnerID: "learner-1"}

	s.Equal(3, models.CountBySource(svc.GetQuestions(s.ctx, req))[models.SourceLocalBank])
	_, err := svc.StartSession(s.ctx, "learner-1")
	s.Require().NoError(err)
	s.Zero(models.CountBySource(svc.GetQuestions(s.ctx, req))[models.SourceLocalBank])

	minted, err := svc.StartSession(s.ctx, "")
	s.Require().NoError(err)
	s.NotEmpty(minted)
}

func (s *SourcingServiceTestSuite) TestGenerateForTopic() {
	svc := s.newService(tsdCorpus(s.T(), 4), s.aiRacer(countingGenerator("grow", nil)))

	got, err := svc.GenerateForTopic(s.ctx, models.ExamRI, "ri-quant-time-distance", models.DifficultyHard, 3)
	s.Require().NoError(err)
	s.Require().Len(got, 3)
	s.assertWellFormed(got)
	for _, q := range got {
		s.Equal(models.SourceAIGenerated, q.Source)
		s.Equal("Time, Speed & Distance", q.Topic)
		s.Equal(models.ExamRI, q.Exam)
	}

	events := s.sink.Events()
	s.Require().Len(events, 1)
	s.Equal(models.EventKindGenerate, events[0].Kind)
	s.Equal(3, events[0].BySource[models.SourceAIGenerated])

	none, err := svc.GenerateForTopic(s.ctx, models.ExamRI, "ri-quant-time-distance", models.DifficultyHard, 0)
	s.NoError(err)
	s.Empty(none)
}

func (s *SourcingServiceTestSuite) TestGenerateForTopic_Errors() {
	offline := s.newService(nil, nil)
	_, err := offline.GenerateForTopic(s.ctx, models.ExamRI, "ri-quant-time-distance", models.DifficultyMedium, 2)
	s.True(contextutils.IsError(err, contextutils.ErrServiceUnavailable))

	garbage := completionFunc(func(context.Context, string, []models.ChatMessage, Params) (string, error) {
		return "No questions today, the model is resting quietly.", nil
	})
	svc := s.newService(nil, s.aiRacer(garbage))
	got, err := svc.GenerateForTopic(s.ctx, models.ExamRI, "ri-quant-time-distance", models.DifficultyMedium, 2)
	s.Error(err)
	s.Empty(got)
}

func (s *SourcingServiceTestSuite) TestExcludeIDs() {
	svc := s.newService(tsdCorpus(s.T(), 5), nil)
	got := svc.GetQuestions(s.ctx, models.SourcingRequest{
		SubjectID:  "Quantitative Aptitude",
		Count:      5,
		ExcludeIDs: []string{"tsd_00", "tsd_01"},
	})
	s.Require().Len(got, 5)
	s.Equal(3, models.CountBySource(got)[models.SourceLocalBank])
	for _, q := range got {
		s.NotContains([]string{"tsd_00", "tsd_01"}, q.ID)
	}
}

func (s *SourcingServiceTestSuite) TestResolveTopic() {
	svc := s.newService(nil, nil)
	res := svc.ResolveTopic("ri-quantitative", "ri-quant-time-distance")

	s.Equal("Quantitative Aptitude", res.Subject)
	s.ElementsMatch([]string{"Time Speed Distance", "Time, Speed & Distance"}, res.BankTopics)
	s.Equal(6, res.Counts["Time Speed Distance"])
	s.Equal(4, res.Counts["Time, Speed & Distance"])

	again := svc.ResolveTopic("ri-quantitative", res.Canonical)
	s.ElementsMatch(res.BankTopics, again.BankTopics)
}

func (s *SourcingServiceTestSuite) TestTopicsForSubject() {
	svc := s.newService(nil, nil)
	rows := svc.TopicsForSubject(s.ctx, "ri-quantitative", "")
	s.NotEmpty(rows)
	for _, r := range rows {
		s.Equal(r.Count, r.Available)
	}
}

func tsdCorpusFromDefault(t *testing.T) *bank.Corpus {
	t.Helper()
	corpus, err := bank.DefaultCorpus()
	require.NoError(t, err)
	return corpus
}

func TestNewQuestionSourcingService_RejectsInvalidFallback(t *testing.T) {
	resolver, err := topics.NewDefaultResolver()
	require.NoError(t, err)
	cfg := &config.Config{}
	cfg.ApplyDefaults()

	broken := NewStaticFallbackBank(map[FallbackCategory][]*models.Question{}, nil)
	_, err = NewQuestionSourcingService(nil, resolver, nil, broken, nil, nil, cfg, nil, testLogger())
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrFallbackBankInvalid))
}

func TestCollector(t *testing.T) {
	q := func(id string) *models.Question {
		return &models.Question{ID: id, QuestionText: "t", Options: []string{"a", "b", "c", "d"}}
	}

	c := newCollector(5)
	c.add([]*models.Question{q("a"), nil, q("a"), {ID: "bad"}, q("b")})
	assert.Equal(t, 3, c.short())

	got := c.result()
	require.Len(t, got, 5)
	assert.Equal(t, []string{"a", "b", "a_p2", "b_p2", "a_p3"}, []string{got[0].ID, got[1].ID, got[2].ID, got[3].ID, got[4].ID})

	empty := newCollector(3)
	assert.Empty(t, empty.result())
}

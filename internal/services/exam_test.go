package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"osscprep/internal/models"
	"osscprep/internal/topics"
	contextutils "osscprep/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExamTestService(t *testing.T) (*ExamService, *recordingSink) {
	t.Helper()
	s := &SourcingServiceTestSuite{}
	s.SetT(t)
	s.SetupTest()
	svc := s.newService(nil, nil)
	return NewExamService(svc, s.cfg, testLogger()), s.sink
}

func TestSubjectCounts(t *testing.T) {
	resolver, err := topics.NewDefaultResolver()
	require.NoError(t, err)
	syllabus, ok := resolver.Syllabus(models.ExamRI)
	require.True(t, ok)

	assert.Equal(t, []int{25, 25, 15, 10, 15, 10}, SubjectCounts(syllabus.Subjects, 100))
	assert.Equal(t, []int{3, 3, 2, 1, 2, 1}, SubjectCounts(syllabus.Subjects, 10))
	assert.Empty(t, SubjectCounts(nil, 100))
}

func TestMockTest(t *testing.T) {
	exams, sink := newExamTestService(t)

	paper, err := exams.MockTest(context.Background(), models.ExamRI, "learner-1", "")
	require.NoError(t, err)

	assert.Equal(t, models.ExamRI, paper.Exam)
	assert.Equal(t, 90, paper.DurationMinutes)
	assert.Equal(t, 100, paper.TotalMarks)
	assert.InDelta(t, 0.25, paper.NegativeMarking, 1e-9)
	require.Len(t, paper.Questions, 100)

	seen := map[string]bool{}
	total := 0
	for _, q := range paper.Questions {
		require.NoError(t, q.Validate())
		assert.False(t, seen[q.ID], "duplicate %s", q.ID)
		seen[q.ID] = true
	}
	for _, n := range paper.BySource {
		total += n
	}
	assert.Equal(t, 100, total)
	assert.Positive(t, paper.BySource[models.SourceLocalBank])
	assert.Zero(t, paper.BySource[models.SourceAIGenerated])

	var kinds []string
	for _, e := range sink.Events() {
		kinds = append(kinds, e.Kind)
	}
	assert.Contains(t, kinds, models.EventKindMockTest)
}

func TestAssemblePaper_TopUpIsShuffledIn(t *testing.T) {
	exams, _ := newExamTestService(t)

	question := func(id string, source models.Source) *models.Question {
		return &models.Question{
			ID:                 id,
			QuestionText:       "question " + id,
			Options:            []string{"a", "b", "c", "d"},
			CorrectOptionIndex: 0,
			Source:             source,
		}
	}
	perSubject := [][]*models.Question{{}, {}}
	for i := 0; i < 10; i++ {
		perSubject[i%2] = append(perSubject[i%2], question(fmt.Sprintf("bank-%d", i), models.SourceLocalBank))
	}

	var asked int
	paper := exams.assemblePaper(perSubject, 40, func(n int) []*models.Question {
		asked = n
		out := make([]*models.Question, n)
		for i := range out {
			out[i] = question(fmt.Sprintf("static-%d", i), models.SourceStaticFallback)
		}
		return out
	})

	assert.Equal(t, 30, asked)
	require.Len(t, paper, 40)
	assert.Equal(t, map[models.Source]int{models.SourceLocalBank: 10, models.SourceStaticFallback: 30}, models.CountBySource(paper))

	staticInHead := 0
	for _, q := range paper[:10] {
		if q.Source == models.SourceStaticFallback {
			staticInHead++
		}
	}
	assert.Positive(t, staticInHead, "top-up questions must not trail the paper")
}

func TestMockTest_UnknownExam(t *testing.T) {
	exams, _ := newExamTestService(t)
	_, err := exams.MockTest(context.Background(), "XYZ", "", "")
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidInput))

	_, err = exams.DailyTest(context.Background(), "XYZ", "", "", nil)
	assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidInput))
}

func TestDailyTest_SubjectOfTheDay(t *testing.T) {
	exams, sink := newExamTestService(t)
	exams.now = func() time.Time { return time.Date(2026, 10, 19, 7, 0, 0, 0, time.UTC) }

	daily, err := exams.DailyTest(context.Background(), models.ExamRI, "learner-1", models.LanguageEnglish, nil)
	require.NoError(t, err)

	assert.Equal(t, "2026-10-19", daily.Date)
	assert.Equal(t, "Quantitative Aptitude", daily.Subject)
	require.Len(t, daily.Questions, 10)
	for _, q := range daily.Questions {
		require.NoError(t, q.Validate())
		assert.Equal(t, "Quantitative Aptitude", q.Subject)
	}

	events := sink.Events()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, models.EventKindDailyTest, last.Kind)
	assert.Equal(t, 10, last.Requested)
}

func TestDailyTest_WeakTopics(t *testing.T) {
	exams, _ := newExamTestService(t)
	exams.now = func() time.Time { return time.Date(2026, 10, 19, 7, 0, 0, 0, time.UTC) }

	daily, err := exams.DailyTest(context.Background(), models.ExamRI, "learner-2", "", []string{"ri-gk-polity", "ri-eng-vocabulary", "ri-reasoning-analogy", "ri-odisha-history"})
	require.NoError(t, err)
	require.Len(t, daily.Questions, 10)

	bySubject := map[string]int{}
	for _, q := range daily.Questions {
		bySubject[q.Subject]++
	}
	assert.Equal(t, 5, bySubject["Quantitative Aptitude"], "half of the test stays on the subject of the day")
	assert.Len(t, daily.WeakTopics, 4)
}

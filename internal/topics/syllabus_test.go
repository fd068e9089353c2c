package topics

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedSyllabi(t *testing.T) {
	r := newTestResolver(t)
	assert.Equal(t, []string{"AI", "RI"}, r.Exams())

	ri, ok := r.Syllabus("ri")
	require.True(t, ok)
	assert.Equal(t, 100, ri.TotalQuestions)
	assert.Equal(t, 90, ri.DurationMinutes)
	assert.Equal(t, 0.25, ri.NegativeMarking)
	assert.Len(t, ri.Subjects, 6)
	require.NoError(t, ri.Validate())

	ai, ok := r.Syllabus("AI")
	require.True(t, ok)
	assert.Equal(t, "Assistant Inspector (AI)", ai.ExamName)
	require.NoError(t, ai.Validate())
	assert.Len(t, ai.AllTopics(), len(ri.AllTopics()))
	for _, ref := range ai.AllTopics() {
		assert.True(t, strings.HasPrefix(ref.ID, "ai-"), ref.ID)
		assert.True(t, strings.HasPrefix(ref.SubjectID, "ai-"), ref.SubjectID)
	}

	_, ok = r.Syllabus("PSC")
	assert.False(t, ok)
}

func TestDerive_DoesNotMutateSource(t *testing.T) {
	r := newTestResolver(t)
	ri, _ := r.Syllabus("RI")

	derived := ri.Derive("XX", "Test")
	derived.Subjects[0].Topics[0].Subtopics[0] = "changed"

	assert.Equal(t, "ri-reasoning", ri.Subjects[0].ID)
	assert.Equal(t, "xx-reasoning", derived.Subjects[0].ID)
	assert.NotEqual(t, "changed", ri.Subjects[0].Topics[0].Subtopics[0])
}

func TestSyllabusLookups(t *testing.T) {
	r := newTestResolver(t)
	ri, _ := r.Syllabus("RI")

	subj, ok := ri.SubjectByID("ri-odisha")
	require.True(t, ok)
	assert.Equal(t, "Odisha GK", subj.Name)
	assert.Equal(t, 10, subj.Weightage)

	subj, ok = ri.SubjectByName("quantitative aptitude")
	require.True(t, ok)
	assert.Equal(t, "ri-quantitative", subj.ID)

	ref, ok := ri.TopicByID("ri-reasoning-analogy")
	require.True(t, ok)
	assert.Equal(t, "Analogy", ref.Name)
	assert.Equal(t, "Reasoning & Mental Ability", ref.SubjectName)

	_, ok = ri.TopicByID("ri-missing")
	assert.False(t, ok)
}

func TestLoadSyllabus_Errors(t *testing.T) {
	_, err := LoadSyllabus(strings.NewReader("subjects: [unclosed"))
	assert.Error(t, err)

	_, err = LoadSyllabus(strings.NewReader("exam_code: RI\n"))
	assert.Error(t, err)

	s, err := LoadSyllabus(strings.NewReader(`
exam_code: T
subjects:
  - id: t-a
    name: A
    weightage: 60
  - id: t-b
    name: B
    weightage: 30
`))
	require.NoError(t, err)
	assert.Error(t, s.Validate())
}

package bank

import (
	"bytes"
	"strings"
	"testing"

	"osscprep/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCorpus(t *testing.T) {
	c, err := DefaultCorpus()
	require.NoError(t, err)

	assert.Equal(t, 54, c.Len())
	assert.Zero(t, c.Rejected())
	for _, q := range c.All() {
		require.NoError(t, q.Validate(), q.ID)
		assert.NotEmpty(t, q.Subject, q.ID)
		assert.NotEmpty(t, q.Topic, q.ID)
		for i, opt := range q.Options {
			assert.NotEmpty(t, opt, "%s option %d", q.ID, i)
		}
	}

	q, ok := c.Get("reason_series_001")
	require.True(t, ok)
	assert.Equal(t, "42", q.CorrectAnswer())
	assert.Equal(t, models.DifficultyEasy, q.Difficulty)
	assert.False(t, q.GeneratedAt.IsZero())
}

func TestLoadCorpus_Shapes(t *testing.T) {
	doc := `[
	  {"id":"a","subject":"Quantitative Aptitude","topic":"Average","question":"Q1","options":["1","2","3","4"],"correctAnswer":2,"difficulty":"HARD"},
	  {"id":"b","subject":"Quantitative Aptitude","topic":"Average","question":"Q2","options":{"A":"w","B":"x","C":"y","D":"z"},"correctAnswer":"d"},
	  {"id":"c","subject":"Quantitative Aptitude","topic":"Average","question":"Q3","options":{"A":"w","B":"x"},"correctAnswer":"Z","difficulty":"unknown"},
	  {"id":"d","subject":"Quantitative Aptitude","topic":"Average","question":"Q4","options":["1","2","3","4","5"],"correctAnswer":"3"},
	  {"id":"","question":"no id"},
	  {"id":"e","question":"   "},
	  {"id":"a","question":"duplicate","options":["1","2","3","4"]}
	]`
	c, err := LoadCorpus(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, 4, c.Len())
	assert.Equal(t, 3, c.Rejected())

	a, _ := c.Get("a")
	assert.Equal(t, 2, a.CorrectOptionIndex)
	assert.Equal(t, models.DifficultyHard, a.Difficulty)
	assert.Equal(t, "Q1", a.QuestionText)

	b, _ := c.Get("b")
	assert.Equal(t, []string{"w", "x", "y", "z"}, b.Options)
	assert.Equal(t, 3, b.CorrectOptionIndex)
	assert.Equal(t, models.DifficultyMedium, b.Difficulty)
	assert.Equal(t, models.LanguageEnglish, b.Language)

	cq, _ := c.Get("c")
	assert.Equal(t, []string{"w", "x", "", ""}, cq.Options)
	assert.Equal(t, 0, cq.CorrectOptionIndex)
	assert.Equal(t, models.DifficultyMedium, cq.Difficulty)

	d, _ := c.Get("d")
	assert.Len(t, d.Options, models.OptionCount)
	assert.Equal(t, 3, d.CorrectOptionIndex)
}

func TestLoadCorpus_Errors(t *testing.T) {
	_, err := LoadCorpus(strings.NewReader(`{"questions": [`))
	assert.Error(t, err)

	c, err := LoadCorpus(bytes.NewReader(nil))
	assert.Error(t, err)
	assert.Nil(t, c)
}

func TestCorpus_Merge(t *testing.T) {
	base, err := LoadCorpus(strings.NewReader(`[
  {"id":"q1","subject":"GK","topic":"Polity","question":"One?","options":["a","b","c","d"],"correctAnswer":"A"},
  {"id":"","question":"rejected"}
]`))
	require.NoError(t, err)
	extra, err := LoadCorpus(strings.NewReader(`[
  {"id":"q1","subject":"GK","topic":"Polity","question":"Duplicate id?","options":["a","b","c","d"],"correctAnswer":"B"},
  {"id":"q2","subject":"GK","topic":"Economy","question":"Two?","options":["a","b","c","d"],"correctAnswer":2}
]`))
	require.NoError(t, err)

	merged := base.Merge(extra)
	assert.Equal(t, 2, merged.Len())
	assert.Equal(t, 2, merged.Rejected())
	q1, ok := merged.Get("q1")
	require.True(t, ok)
	assert.Equal(t, "One?", q1.QuestionText)
	q2, ok := merged.Get("q2")
	require.True(t, ok)
	assert.Equal(t, 2, q2.CorrectOptionIndex)

	assert.Equal(t, 1, base.Len(), "receiver is unchanged")
}

package bank

import (
	"os"
	"path/filepath"
	"testing"

	contextutils "osscprep/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCorpus(t *testing.T) {
	t.Run("empty path uses the sample", func(t *testing.T) {
		c, err := OpenCorpus("")
		require.NoError(t, err)
		assert.Equal(t, 54, c.Len())
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "corpus.json")
		require.NoError(t, os.WriteFile(path, []byte(`[{"id":"q1","subject":"GK","topic":"Polity","question":"Who?","options":["a","b","c","d"],"correctAnswer":"A"}]`), 0o600))
		c, err := OpenCorpus(path)
		require.NoError(t, err)
		assert.Equal(t, 1, c.Len())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := OpenCorpus(filepath.Join(t.TempDir(), "nope.json"))
		assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidInput))
	})
}

func TestOpenTopicMapping(t *testing.T) {
	m, err := OpenTopicMapping("")
	require.NoError(t, err)
	assert.Nil(t, m)

	corpus, err := DefaultCorpus()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "mapping.json")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, BuildTopicMapping(corpus).WriteJSON(f))
	require.NoError(t, f.Close())

	m, err = OpenTopicMapping(path)
	require.NoError(t, err)
	assert.Equal(t, 6, m["Quantitative Aptitude"]["Time Speed Distance"].Count)
}

func TestSaveCorpus_RoundTrip(t *testing.T) {
	corpus, err := DefaultCorpus()
	require.NoError(t, err)
	original := corpus.All()[:3]

	path := filepath.Join(t.TempDir(), "generated.json")
	require.NoError(t, SaveCorpus(path, original))

	reloaded, err := OpenCorpus(path)
	require.NoError(t, err)
	require.Equal(t, 3, reloaded.Len())
	assert.Zero(t, reloaded.Rejected())
	for _, q := range original {
		got, ok := reloaded.Get(q.ID)
		require.True(t, ok, q.ID)
		assert.Equal(t, q.QuestionText, got.QuestionText)
		assert.Equal(t, q.Options, got.Options)
		assert.Equal(t, q.CorrectOptionIndex, got.CorrectOptionIndex)
		assert.Equal(t, q.Difficulty, got.Difficulty)
		assert.Equal(t, q.Topic, got.Topic)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must be renamed away")
}

package bank

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTopicMapping(t *testing.T) {
	c, err := DefaultCorpus()
	require.NoError(t, err)

	m := BuildTopicMapping(c)
	assert.Equal(t, c.Len(), m.TotalQuestions())
	assert.Equal(t, []string{
		"English Language",
		"General Knowledge",
		"Odia Language",
		"Odisha GK",
		"Quantitative Aptitude",
		"Reasoning & Mental Ability",
	}, m.Subjects())

	quant := m["Quantitative Aptitude"]
	assert.Equal(t, 6, quant["Time Speed Distance"].Count)
	assert.Equal(t, 4, quant["Time, Speed & Distance"].Count)
	assert.Equal(t, "quant_tsd_001", quant["Time Speed Distance"].QuestionIDs[0])
	assert.Contains(t, m.Topics("Quantitative Aptitude"), "Percentage")
	assert.Empty(t, m.Topics("Computer Awareness"))
}

func TestTopicMapping_WriteAndLoad(t *testing.T) {
	c, err := DefaultCorpus()
	require.NoError(t, err)
	m := BuildTopicMapping(c)

	var buf bytes.Buffer
	require.NoError(t, m.WriteJSON(&buf))
	assert.Contains(t, buf.String(), `"Time, Speed & Distance"`)

	loaded, err := LoadTopicMapping(&buf)
	require.NoError(t, err)
	assert.Equal(t, m, loaded)
}

func TestLoadTopicMapping_RecomputesCounts(t *testing.T) {
	m, err := LoadTopicMapping(strings.NewReader(`{"Odisha GK":{"Odisha Geography":{"count":99,"questionIds":["x","y"]}}}`))
	require.NoError(t, err)
	assert.Equal(t, 2, m["Odisha GK"]["Odisha Geography"].Count)

	_, err = LoadTopicMapping(strings.NewReader(`[`))
	assert.Error(t, err)
}

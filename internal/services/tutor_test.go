package services

import (
	"context"
	"testing"

	"osscprep/internal/config"
	"osscprep/internal/models"
	contextutils "osscprep/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tutorAnswer = "  The RI paper has 100 questions across six subjects.  "

func newTestTutor(t *testing.T, racer *ModelRacer) *TutorService {
	t.Helper()
	cfg := &config.Config{}
	cfg.AI.OpenRouter.ChatModel = "chat-model"
	cfg.AI.OpenRouter.ExplanationModel = "explain-model"
	cfg.AI.OpenRouter.TranslationModel = "translate-model"
	tutor, err := NewTutorService(racer, cfg, testLogger())
	require.NoError(t, err)
	return tutor
}

func TestTutor_WithoutModelsDegrades(t *testing.T) {
	tutor := newTestTutor(t, nil)
	ctx := context.Background()

	reply, err := tutor.Chat(ctx, models.ExamRI, models.LanguageEnglish, nil, "What is the syllabus?")
	require.NoError(t, err)
	assert.Equal(t, TutorReply{Text: ChatUnavailableEnglish, Degraded: true}, reply)

	reply, err = tutor.Chat(ctx, models.ExamRI, models.LanguageOdia, nil, "ପାଠ୍ୟକ୍ରମ କଣ?")
	require.NoError(t, err)
	assert.Equal(t, ChatUnavailableOdia, reply.Text)

	reply, err = tutor.Explain(ctx, "2 + 2 = ?", "4", []string{"3", "4", "5", "6"}, models.LanguageOdia)
	require.NoError(t, err)
	assert.Equal(t, TutorReply{Text: ExplainUnavailableOdia, Degraded: true}, reply)

	reply, err = tutor.Translate(ctx, "Good morning", models.LanguageEnglish, models.LanguageOdia)
	require.NoError(t, err)
	assert.Equal(t, TutorReply{Text: "Good morning", Degraded: true}, reply)
}

func TestTutor_ChatPrefersChatModel(t *testing.T) {
	client := newScriptedClient(map[string]scriptedReply{
		"model-a":    {content: "from the generation list, long enough"},
		"chat-model": {content: tutorAnswer},
	})
	racer := newTestRacer(client, []string{"model-a", "chat-model"})
	tutor := newTestTutor(t, racer)

	history := []models.ChatMessage{
		{Role: models.RoleUser, Content: "Hi"},
		{Role: models.RoleAssistant, Content: "Hello! How can I help?"},
	}
	reply, err := tutor.Chat(context.Background(), models.ExamRI, models.LanguageEnglish, history, "  How many questions are there?  ")
	require.NoError(t, err)
	assert.Equal(t, TutorReply{Text: "The RI paper has 100 questions across six subjects."}, reply)

	assert.Equal(t, []string{"chat-model"}, client.Calls())
	require.Len(t, client.messages, 1)
	sent := client.messages[0]
	require.Len(t, sent, 4)
	assert.Equal(t, models.RoleSystem, sent[0].Role)
	assert.Equal(t, history, sent[1:3])
	assert.Equal(t, models.ChatMessage{Role: models.RoleUser, Content: "How many questions are there?"}, sent[3])

	assert.InDelta(t, 0.7, client.params[0].Temperature, 1e-9)
	assert.Equal(t, 1000, client.params[0].MaxTokens)
	assert.InDelta(t, 0.95, client.params[0].TopP, 1e-9)
}

func TestTutor_FallsBackToOtherModels(t *testing.T) {
	client := newScriptedClient(map[string]scriptedReply{
		"model-a":       {content: "Because 2 and 2 make 4 when added."},
		"explain-model": {err: statusError(503, "http://provider", nil)},
	})
	racer := newTestRacer(client, []string{"explain-model", "model-a"})
	tutor := newTestTutor(t, racer)

	reply, err := tutor.Explain(context.Background(), "2 + 2 = ?", "4", []string{"3", "4", "5", "6"}, models.LanguageEnglish)
	require.NoError(t, err)
	assert.False(t, reply.Degraded)
	assert.Equal(t, "Because 2 and 2 make 4 when added.", reply.Text)
	assert.Equal(t, []string{"explain-model", "model-a"}, client.Calls())
	assert.Equal(t, 500, client.params[0].MaxTokens)
}

func TestTutor_UnconfiguredPreferredModelIsSkipped(t *testing.T) {
	client := newScriptedClient(map[string]scriptedReply{
		"model-a": {content: "ସୁପ୍ରଭାତ, this is a translation"},
	})
	tutor := newTestTutor(t, newTestRacer(client, []string{"model-a"}))

	reply, err := tutor.Translate(context.Background(), "Good morning", models.LanguageEnglish, models.LanguageOdia)
	require.NoError(t, err)
	assert.False(t, reply.Degraded)
	assert.Equal(t, []string{"model-a"}, client.Calls())
	assert.InDelta(t, 0.3, client.params[0].Temperature, 1e-9)
}

func TestTutor_OpenBreakerDegrades(t *testing.T) {
	client := newScriptedClient(map[string]scriptedReply{"chat-model": {content: tutorAnswer}})
	racer := newTestRacer(client, []string{"chat-model"})
	for range config.DefaultBreakerThreshold {
		racer.Breaker().RecordFailure(racer.now())
	}
	tutor := newTestTutor(t, racer)

	reply, err := tutor.Chat(context.Background(), models.ExamRI, models.LanguageEnglish, nil, "hello there")
	require.NoError(t, err)
	assert.True(t, reply.Degraded)
	assert.Empty(t, client.Calls())
}

func TestTutor_Validation(t *testing.T) {
	tutor := newTestTutor(t, nil)
	ctx := context.Background()

	_, err := tutor.Chat(ctx, models.ExamRI, models.LanguageEnglish, nil, "   ")
	assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidInput))

	_, err = tutor.Explain(ctx, "", "4", nil, models.LanguageEnglish)
	assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidInput))

	_, err = tutor.Translate(ctx, "", models.LanguageEnglish, models.LanguageOdia)
	assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidInput))

	_, err = tutor.Translate(ctx, "Bonjour", "fr", models.LanguageEnglish)
	assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidInput))

	reply, err := tutor.Translate(ctx, "same text", models.LanguageOdia, models.LanguageOdia)
	require.NoError(t, err)
	assert.Equal(t, TutorReply{Text: "same text"}, reply)
}

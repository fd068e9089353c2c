package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"osscprep/internal/config"
	"osscprep/internal/models"
	contextutils "osscprep/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMessages = []models.ChatMessage{
	{Role: models.RoleSystem, Content: "You write questions."},
	{Role: models.RoleUser, Content: "Generate 2 easy MCQ questions."},
}

func TestOpenRouterClient_Complete(t *testing.T) {
	var got OpenAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer sk-or-test-0123456789", r.Header.Get("Authorization"))
		assert.Equal(t, "https://example.test", r.Header.Get("HTTP-Referer"))
		assert.Equal(t, "OSSC Prep", r.Header.Get("X-Title"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"generated text"}}]}`))
	}))
	defer server.Close()

	client := NewOpenRouterClient(config.OpenRouterConfig{
		BaseURL: server.URL + "/",
		APIKey:  "sk-or-test-0123456789",
		Referer: "https://example.test",
		Title:   "OSSC Prep",
	}, testLogger())

	content, err := client.Complete(context.Background(), "vendor/model:free", testMessages, Params{Temperature: 0.7, MaxTokens: 4000, TopP: 0.95})
	require.NoError(t, err)
	assert.Equal(t, "generated text", content)

	assert.Equal(t, "vendor/model:free", got.Model)
	assert.Equal(t, 4000, got.MaxTokens)
	assert.InDelta(t, 0.7, got.Temperature, 1e-9)
	assert.InDelta(t, 0.95, got.TopP, 1e-9)
	assert.Equal(t, testMessages, got.Messages)
}

func TestOpenRouterClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode contextutils.ErrorCode
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, contextutils.ErrorCodeAuthOrBilling},
		{"payment required", http.StatusPaymentRequired, `{}`, contextutils.ErrorCodeAuthOrBilling},
		{"rate limited", http.StatusTooManyRequests, `{}`, contextutils.ErrorCodeRateLimit},
		{"server error", http.StatusBadGateway, `upstream down`, contextutils.ErrorCodeAIRequestFailed},
		{"empty choices", http.StatusOK, `{"choices":[]}`, contextutils.ErrorCodeAIResponseInvalid},
		{"provider error body", http.StatusOK, `{"error":{"message":"model overloaded","type":"overloaded"}}`, contextutils.ErrorCodeAIRequestFailed},
		{"not json", http.StatusOK, `<html>`, contextutils.ErrorCodeAIResponseInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewOpenRouterClient(config.OpenRouterConfig{BaseURL: server.URL, APIKey: "sk-or-test-0123456789"}, testLogger())
			_, err := client.Complete(context.Background(), "m", testMessages, Params{})
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, contextutils.GetErrorCode(err), err.Error())
		})
	}
}

func TestOpenRouterClient_RejectsEmptyInput(t *testing.T) {
	client := NewOpenRouterClient(config.OpenRouterConfig{BaseURL: "http://127.0.0.1:1"}, testLogger())

	_, err := client.Complete(context.Background(), "", testMessages, Params{})
	assert.True(t, contextutils.IsError(err, contextutils.ErrAIConfigInvalid))

	_, err = client.Complete(context.Background(), "m", nil, Params{})
	assert.True(t, contextutils.IsError(err, contextutils.ErrAIConfigInvalid))
}

func TestOpenRouterClient_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewOpenRouterClient(config.OpenRouterConfig{BaseURL: server.URL, APIKey: "sk-or-test-0123456789"}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Complete(ctx, "m", testMessages, Params{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOllamaClient_Complete(t *testing.T) {
	var got ollamaRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"response":"ollama says hi","done":true}`))
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, testLogger())
	content, err := client.Complete(context.Background(), "llama3.1:8b", testMessages, Params{Temperature: 0.5, MaxTokens: 500, TopP: 0.9})
	require.NoError(t, err)
	assert.Equal(t, "ollama says hi", content)

	assert.Equal(t, "llama3.1:8b", got.Model)
	assert.False(t, got.Stream)
	assert.Equal(t, 500, got.Options.NumPredict)
	assert.InDelta(t, 0.5, got.Options.Temperature, 1e-9)
	assert.Equal(t, "You write questions.\n\nGenerate 2 easy MCQ questions.", got.Prompt)
}

func TestOllamaClient_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, testLogger())
	_, err := client.Complete(context.Background(), "missing", testMessages, Params{})
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrAIRequestFailed))
	assert.Contains(t, err.Error(), "model not found")
}

func TestFlattenMessages_LabelsLongTranscripts(t *testing.T) {
	got := flattenMessages([]models.ChatMessage{
		{Role: models.RoleSystem, Content: "sys"},
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "hello"},
		{Role: models.RoleUser, Content: "why?"},
	})
	assert.Equal(t, "sys\n\nUser: hi\n\nAssistant: hello\n\nUser: why?", got)
}

func TestNewCompletionClient(t *testing.T) {
	t.Run("no credential", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.ApplyDefaults()
		assert.Nil(t, NewCompletionClient(cfg, testLogger()))
	})

	t.Run("short credential", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.ApplyDefaults()
		cfg.AI.OpenRouter.APIKey = "short"
		assert.Nil(t, NewCompletionClient(cfg, testLogger()))
	})

	t.Run("openrouter", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.ApplyDefaults()
		cfg.AI.OpenRouter.APIKey = "sk-or-v1-abcdefghijkl"
		assert.IsType(t, &OpenRouterClient{}, NewCompletionClient(cfg, testLogger()))
	})

	t.Run("ollama", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.AI.Provider = config.ProviderOllama
		cfg.AI.Ollama.URL = "http://localhost:11434"
		cfg.ApplyDefaults()
		assert.IsType(t, &OllamaClient{}, NewCompletionClient(cfg, testLogger()))
	})
}

func TestNewRequestLimiter(t *testing.T) {
	assert.Equal(t, 3, newRequestLimiter(30).Burst())
	assert.Equal(t, 1, newRequestLimiter(5).Burst())
	assert.True(t, newRequestLimiter(0).Allow())
}

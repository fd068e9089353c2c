// Package services implements question sourcing: the model racer, the
// response parser, the static fallback bank and the tiered sourcing service
// built on top of them, plus the exam and tutor flows that consume it.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"osscprep/internal/config"
	"osscprep/internal/models"
	"osscprep/internal/observability"
	contextutils "osscprep/internal/utils"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// Params tunes a single completion call
type Params struct {
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// CompletionClient sends one prompt to one model and returns the raw text.
// Implementations must honour ctx cancellation.
type CompletionClient interface {
	Complete(ctx context.Context, model string, messages []models.ChatMessage, params Params) (string, error)
}

// OpenAIRequest is the chat-completion request body
type OpenAIRequest struct {
	Model       string               `json:"model"`
	Messages    []models.ChatMessage `json:"messages"`
	Temperature float64              `json:"temperature"`
	MaxTokens   int                  `json:"max_tokens,omitempty"`
	TopP        float64              `json:"top_p,omitempty"`
}

// OpenAIResponse is the subset of the chat-completion response we read
type OpenAIResponse struct {
	Choices []Choice  `json:"choices"`
	Error   *APIError `json:"error,omitempty"`
}

// Choice represents a choice in the response
type Choice struct {
	Message models.ChatMessage `json:"message"`
}

// APIError is the error object some providers return with a 200 status
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// newTracedHTTPClient returns the client used for every provider call.
// Deadlines come from the request context, not the client.
func newTracedHTTPClient() *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanOptions(trace.WithSpanKind(trace.SpanKindClient)),
		),
	}
}

// statusError maps a non-200 provider status onto the error taxonomy.
func statusError(status int, url string, body []byte) error {
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > 300 {
		snippet = snippet[:300]
	}
	switch status {
	case http.StatusUnauthorized, http.StatusPaymentRequired:
		return contextutils.WrapErrorf(contextutils.ErrAuthOrBilling, "status %d from %s: %s", status, url, snippet)
	case http.StatusTooManyRequests:
		return contextutils.WrapErrorf(contextutils.ErrRateLimit, "status %d from %s: %s", status, url, snippet)
	default:
		return contextutils.WrapErrorf(contextutils.ErrAIRequestFailed, "API request failed with status %d to %s: %s", status, url, snippet)
	}
}

// OpenRouterClient talks to an OpenAI-compatible chat-completions endpoint.
type OpenRouterClient struct {
	baseURL    string
	apiKey     string
	referer    string
	title      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *observability.Logger
}

// NewOpenRouterClient builds a client from the openrouter config section.
// RequestsPerMinute <= 0 disables client-side rate limiting.
func NewOpenRouterClient(cfg config.OpenRouterConfig, logger *observability.Logger) *OpenRouterClient {
	return &OpenRouterClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		referer:    cfg.Referer,
		title:      cfg.Title,
		httpClient: newTracedHTTPClient(),
		limiter:    newRequestLimiter(cfg.RequestsPerMinute),
		logger:     logger,
	}
}

func newRequestLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := max(1, perMinute/10)
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst)
}

// Complete implements CompletionClient
func (c *OpenRouterClient) Complete(ctx context.Context, model string, messages []models.ChatMessage, params Params) (result string, err error) {
	ctx, span := observability.TraceAIFunction(ctx, "openrouter_complete",
		observability.AttributeModel(model),
		attribute.Int("messages.count", len(messages)),
	)
	defer observability.FinishSpan(span, &err)

	if model == "" {
		span.SetAttributes(attribute.String("call.result", "empty_model"))
		return "", contextutils.WrapError(contextutils.ErrAIConfigInvalid, "model is required")
	}
	if len(messages) == 0 {
		span.SetAttributes(attribute.String("call.result", "empty_prompt"))
		return "", contextutils.WrapError(contextutils.ErrAIConfigInvalid, "messages cannot be empty")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.String("call.result", "rate_limiter"))
		return "", err
	}

	reqBody := OpenAIRequest{
		Model:       model,
		Messages:    messages,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
		TopP:        params.TopP,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		span.SetAttributes(attribute.String("call.result", "marshal_failed"))
		return "", contextutils.WrapErrorf(err, "failed to marshal request body")
	}

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		span.SetAttributes(attribute.String("call.result", "request_creation_failed"))
		return "", contextutils.WrapErrorf(err, "failed to create HTTP request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}

	c.logger.Debug(ctx, "Calling OpenRouter", map[string]interface{}{
		"model":   model,
		"url":     url,
		"api_key": contextutils.MaskAPIKey(c.apiKey),
	})

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		span.SetAttributes(attribute.String("call.result", "http_request_failed"), attribute.String("duration", duration.String()))
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", contextutils.WrapErrorf(contextutils.ErrAIRequestFailed, "HTTP request failed after %v: %w", duration, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn(ctx, "Failed to close response body", map[string]interface{}{"error": cerr.Error()})
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.SetAttributes(attribute.String("call.result", "body_read_failed"))
		return "", contextutils.WrapErrorf(contextutils.ErrAIRequestFailed, "failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		span.SetAttributes(attribute.String("call.result", "http_error"), attribute.Int("status_code", resp.StatusCode))
		return "", statusError(resp.StatusCode, url, body)
	}

	var parsed OpenAIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		span.SetAttributes(attribute.String("call.result", "json_unmarshal_failed"))
		return "", contextutils.WrapErrorf(contextutils.ErrAIResponseInvalid, "failed to decode completion: %w", err)
	}
	if parsed.Error != nil {
		span.SetAttributes(attribute.String("call.result", "api_error"), attribute.String("error_type", parsed.Error.Type))
		return "", contextutils.WrapErrorf(contextutils.ErrAIRequestFailed, "provider error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		span.SetAttributes(attribute.String("call.result", "empty_content"))
		return "", contextutils.WrapError(contextutils.ErrAIResponseInvalid, "model returned no content")
	}

	content := parsed.Choices[0].Message.Content
	span.SetAttributes(attribute.String("call.result", "success"), attribute.Int("content_length", len(content)), attribute.String("duration", duration.String()))
	return content, nil
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// OllamaClient calls a local Ollama server through /api/generate.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *observability.Logger
}

// NewOllamaClient returns a client for the server at baseURL
func NewOllamaClient(baseURL string, logger *observability.Logger) *OllamaClient {
	return &OllamaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: newTracedHTTPClient(),
		logger:     logger,
	}
}

// flattenMessages turns a chat transcript into a single generate prompt.
func flattenMessages(messages []models.ChatMessage) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch m.Role {
		case models.RoleSystem:
			b.WriteString(m.Content)
		case models.RoleAssistant:
			b.WriteString("Assistant: ")
			b.WriteString(m.Content)
		default:
			if len(messages) > 2 {
				b.WriteString("User: ")
			}
			b.WriteString(m.Content)
		}
	}
	return b.String()
}

// Complete implements CompletionClient
func (c *OllamaClient) Complete(ctx context.Context, model string, messages []models.ChatMessage, params Params) (result string, err error) {
	ctx, span := observability.TraceAIFunction(ctx, "ollama_complete", observability.AttributeModel(model))
	defer observability.FinishSpan(span, &err)

	if model == "" {
		return "", contextutils.WrapError(contextutils.ErrAIConfigInvalid, "model is required")
	}

	jsonData, err := json.Marshal(ollamaRequest{
		Model:  model,
		Prompt: flattenMessages(messages),
		Stream: false,
		Options: ollamaOptions{
			Temperature: params.Temperature,
			TopP:        params.TopP,
			NumPredict:  params.MaxTokens,
		},
	})
	if err != nil {
		return "", contextutils.WrapErrorf(err, "failed to marshal request body")
	}

	url := c.baseURL + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", contextutils.WrapErrorf(err, "failed to create HTTP request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.SetAttributes(attribute.String("call.result", "http_request_failed"))
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", contextutils.WrapErrorf(contextutils.ErrAIRequestFailed, "ollama request failed: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn(ctx, "Failed to close response body", map[string]interface{}{"error": cerr.Error()})
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", contextutils.WrapErrorf(contextutils.ErrAIRequestFailed, "failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		span.SetAttributes(attribute.Int("status_code", resp.StatusCode))
		return "", statusError(resp.StatusCode, url, body)
	}

	var parsed ollamaResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", contextutils.WrapErrorf(contextutils.ErrAIResponseInvalid, "failed to decode ollama response: %w", err)
	}
	if parsed.Error != "" {
		return "", contextutils.WrapErrorf(contextutils.ErrAIRequestFailed, "ollama error: %s", parsed.Error)
	}
	if parsed.Response == "" {
		return "", contextutils.WrapError(contextutils.ErrAIResponseInvalid, "model returned no content")
	}
	span.SetAttributes(attribute.String("call.result", "success"))
	return parsed.Response, nil
}

// NewCompletionClient picks the provider named in cfg. It returns nil when
// the AI tier is not configured, which callers treat as "skip AI".
func NewCompletionClient(cfg *config.Config, logger *observability.Logger) CompletionClient {
	if !cfg.IsAIConfigured() {
		return nil
	}
	switch cfg.AI.Provider {
	case config.ProviderOllama:
		return NewOllamaClient(cfg.AI.Ollama.URL, logger)
	case config.ProviderOpenRouter, "":
		return NewOpenRouterClient(cfg.AI.OpenRouter, logger)
	default:
		logger.Warn(context.Background(), "Unknown AI provider, AI tier disabled", map[string]interface{}{
			"provider": cfg.AI.Provider,
		})
		return nil
	}
}

var _ CompletionClient = (*OpenRouterClient)(nil)
var _ CompletionClient = (*OllamaClient)(nil)

// describeModels is used in log lines
func describeModels(names []string) string {
	return fmt.Sprintf("%d models [%s]", len(names), strings.Join(names, ", "))
}

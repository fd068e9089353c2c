package services

import (
	"context"
	"slices"
	"strings"

	"osscprep/internal/config"
	"osscprep/internal/models"
	"osscprep/internal/observability"
	contextutils "osscprep/internal/utils"
)

// Messages returned when the tutor cannot reach any model
const (
	ChatUnavailableEnglish    = "Sorry, I am unable to respond at this time. Please try again in a moment."
	ChatUnavailableOdia       = "ଦୁଃଖିତ, ଏହି ସମୟରେ ଉତ୍ତର ଦେବାରେ ଅସମର୍ଥ। ଦୟାକରି ପୁଣିଥରେ ଚେଷ୍ଟା କରନ୍ତୁ।"
	ExplainUnavailableEnglish = "Explanation could not be generated. Please try again."
	ExplainUnavailableOdia    = "ବ୍ୟାଖ୍ୟା ଉପଲବ୍ଧ ନାହିଁ। ଦୟାକରି ପୁଣିଥରେ ଚେଷ୍ଟା କରନ୍ତୁ।"
)

var (
	chatParams      = Params{Temperature: 0.7, MaxTokens: 1000}
	explainParams   = Params{Temperature: 0.5, MaxTokens: 500}
	translateParams = Params{Temperature: 0.3, MaxTokens: 1000}
)

// TutorReply is the text shown to the learner. Degraded is set when the
// text is a canned message or an untranslated original.
type TutorReply struct {
	Text     string `json:"text"`
	Degraded bool   `json:"degraded"`
}

// TutorService answers chat messages, explains answers and translates
// text. Models are tried one at a time in a fixed order.
type TutorService struct {
	racer   *ModelRacer
	prompts *PromptBuilder
	logger  *observability.Logger

	chatModel        string
	explanationModel string
	translationModel string
}

// NewTutorService creates a TutorService. racer may be nil, in which case
// every call returns the canned reply.
func NewTutorService(racer *ModelRacer, cfg *config.Config, logger *observability.Logger) (*TutorService, error) {
	prompts, err := NewPromptBuilder()
	if err != nil {
		return nil, err
	}
	return &TutorService{
		racer:            racer,
		prompts:          prompts,
		logger:           logger,
		chatModel:        cfg.AI.OpenRouter.ChatModel,
		explanationModel: cfg.AI.OpenRouter.ExplanationModel,
		translationModel: cfg.AI.OpenRouter.TranslationModel,
	}, nil
}

// modelOrder puts preferred first, followed by the generation models
func (t *TutorService) modelOrder(preferred string) []string {
	var order []string
	if preferred != "" && t.racer.Available() && slices.Contains(t.racer.Models(), preferred) {
		order = append(order, preferred)
	}
	for _, m := range t.racer.Models() {
		if m != preferred {
			order = append(order, m)
		}
	}
	return order
}

func (t *TutorService) complete(ctx context.Context, preferred string, messages []models.ChatMessage, params Params) (string, error) {
	if !t.racer.Available() {
		return "", contextutils.WrapError(contextutils.ErrAIConfigInvalid, "tutor has no models configured")
	}
	if !t.racer.Breaker().Allow(t.racer.now()) {
		return "", contextutils.WrapError(contextutils.ErrCircuitOpen, "AI calls suspended")
	}
	params.TopP = t.racer.DefaultParams().TopP
	content, err := t.racer.Sequential(ctx, t.modelOrder(preferred), messages, params)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

// Chat answers message in the context of the earlier history
func (t *TutorService) Chat(ctx context.Context, exam, language string, history []models.ChatMessage, message string) (result TutorReply, err error) {
	ctx, span := observability.TraceAIFunction(ctx, "tutor_chat",
		observability.AttributeExam(exam),
		observability.AttributeLanguage(language),
	)
	defer observability.FinishSpan(span, &err)

	message = strings.TrimSpace(message)
	if message == "" {
		return TutorReply{}, contextutils.WrapError(contextutils.ErrInvalidInput, "message is required")
	}
	messages, err := t.prompts.TutorMessages(exam, language, history, message)
	if err != nil {
		return TutorReply{}, err
	}
	reply, callErr := t.complete(ctx, t.chatModel, messages, chatParams)
	if callErr != nil {
		t.logDegraded(ctx, "chat", callErr)
		return TutorReply{Text: localized(language, ChatUnavailableEnglish, ChatUnavailableOdia), Degraded: true}, nil
	}
	return TutorReply{Text: reply}, nil
}

// Explain says why correctAnswer is right for question
func (t *TutorService) Explain(ctx context.Context, question, correctAnswer string, options []string, language string) (result TutorReply, err error) {
	ctx, span := observability.TraceAIFunction(ctx, "tutor_explain",
		observability.AttributeLanguage(language),
	)
	defer observability.FinishSpan(span, &err)

	if strings.TrimSpace(question) == "" || strings.TrimSpace(correctAnswer) == "" {
		return TutorReply{}, contextutils.WrapError(contextutils.ErrInvalidInput, "question and correct answer are required")
	}
	messages, err := t.prompts.ExplainMessages(question, correctAnswer, options, language)
	if err != nil {
		return TutorReply{}, err
	}
	reply, callErr := t.complete(ctx, t.explanationModel, messages, explainParams)
	if callErr != nil {
		t.logDegraded(ctx, "explain", callErr)
		return TutorReply{Text: localized(language, ExplainUnavailableEnglish, ExplainUnavailableOdia), Degraded: true}, nil
	}
	return TutorReply{Text: reply}, nil
}

// Translate converts text between English and Odia. The original text is
// returned when no model answers.
func (t *TutorService) Translate(ctx context.Context, text, from, to string) (result TutorReply, err error) {
	ctx, span := observability.TraceAIFunction(ctx, "tutor_translate",
		observability.AttributeLanguage(to),
	)
	defer observability.FinishSpan(span, &err)

	if strings.TrimSpace(text) == "" {
		return TutorReply{}, contextutils.WrapError(contextutils.ErrInvalidInput, "text is required")
	}
	for _, lang := range []string{from, to} {
		if lang != models.LanguageEnglish && lang != models.LanguageOdia {
			return TutorReply{}, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "unsupported language %q", lang)
		}
	}
	if from == to {
		return TutorReply{Text: text}, nil
	}
	messages, err := t.prompts.TranslateMessages(text, from, to)
	if err != nil {
		return TutorReply{}, err
	}
	reply, callErr := t.complete(ctx, t.translationModel, messages, translateParams)
	if callErr != nil {
		t.logDegraded(ctx, "translate", callErr)
		return TutorReply{Text: text, Degraded: true}, nil
	}
	return TutorReply{Text: reply}, nil
}

func (t *TutorService) logDegraded(ctx context.Context, op string, err error) {
	t.logger.Warn(ctx, "Tutor reply degraded", map[string]interface{}{
		"operation": op,
		"code":      string(contextutils.GetErrorCode(err)),
		"error":     err.Error(),
	})
}

func localized(language, english, odia string) string {
	if language == models.LanguageOdia {
		return odia
	}
	return english
}

package handlers

import (
	"net/http"

	"osscprep/internal/models"
	"osscprep/internal/observability"
	"osscprep/internal/services"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// ChatRequest is one tutor chat turn
type ChatRequest struct {
	Exam     string               `json:"exam" binding:"omitempty,max=16"`
	Language string               `json:"language" binding:"omitempty,oneof=en or"`
	History  []models.ChatMessage `json:"history" binding:"omitempty,max=40,dive"`
	Message  string               `json:"message" binding:"required,max=4000"`
}

// ExplainRequest asks why an answer is correct
type ExplainRequest struct {
	Question      string   `json:"question" binding:"required,max=4000"`
	CorrectAnswer string   `json:"correct_answer" binding:"required,max=1000"`
	Options       []string `json:"options" binding:"omitempty,max=4"`
	Language      string   `json:"language" binding:"omitempty,oneof=en or"`
}

// TranslateRequest asks for a translation between English and Odia
type TranslateRequest struct {
	Text string `json:"text" binding:"required,max=5000"`
	From string `json:"from" binding:"required,oneof=en or"`
	To   string `json:"to" binding:"required,oneof=en or"`
}

// TutorHandler serves the AI tutor endpoints
type TutorHandler struct {
	tutor  *services.TutorService
	logger *observability.Logger
}

// NewTutorHandler creates a new TutorHandler instance
func NewTutorHandler(tutor *services.TutorService, logger *observability.Logger) *TutorHandler {
	return &TutorHandler{tutor: tutor, logger: logger}
}

// Chat answers a learner message. A degraded reply is still a 200.
func (h *TutorHandler) Chat(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "tutor_chat")
	defer observability.FinishSpan(span, nil)

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBindError(c, err)
		return
	}
	if req.Exam == "" {
		req.Exam = models.ExamRI
	}
	if req.Language == "" {
		req.Language = models.LanguageEnglish
	}
	span.SetAttributes(attribute.Int("tutor.history", len(req.History)))

	reply, err := h.tutor.Chat(ctx, req.Exam, req.Language, req.History, req.Message)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

// Explain explains the correct answer of a question
func (h *TutorHandler) Explain(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "tutor_explain")
	defer observability.FinishSpan(span, nil)

	var req ExplainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBindError(c, err)
		return
	}
	if req.Language == "" {
		req.Language = models.LanguageEnglish
	}

	reply, err := h.tutor.Explain(ctx, req.Question, req.CorrectAnswer, req.Options, req.Language)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

// Translate translates text between English and Odia
func (h *TutorHandler) Translate(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "tutor_translate")
	defer observability.FinishSpan(span, nil)

	var req TranslateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBindError(c, err)
		return
	}
	span.SetAttributes(
		attribute.String("translation.source_language", req.From),
		attribute.String("translation.target_language", req.To),
		attribute.Int("translation.text_length", len(req.Text)),
	)

	reply, err := h.tutor.Translate(ctx, req.Text, req.From, req.To)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

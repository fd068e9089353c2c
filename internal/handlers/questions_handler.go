package handlers

import (
	"net/http"
	"strings"

	"osscprep/internal/config"
	"osscprep/internal/models"
	"osscprep/internal/observability"
	"osscprep/internal/services"
	contextutils "osscprep/internal/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// QuestionsResponse is the body of POST /v1/questions
type QuestionsResponse struct {
	Questions []*models.Question    `json:"questions"`
	Count     int                   `json:"count"`
	BySource  map[models.Source]int `json:"by_source"`
}

// StartSessionRequest optionally names the learner resuming a session
type StartSessionRequest struct {
	LearnerID string `json:"learner_id" binding:"omitempty,max=128"`
}

// QuestionsHandler serves question sourcing, sessions and bank lookups
type QuestionsHandler struct {
	sourcing *services.QuestionSourcingService
	cfg      *config.Config
	logger   *observability.Logger
}

// NewQuestionsHandler creates a new QuestionsHandler instance
func NewQuestionsHandler(sourcing *services.QuestionSourcingService, cfg *config.Config, logger *observability.Logger) *QuestionsHandler {
	return &QuestionsHandler{
		sourcing: sourcing,
		cfg:      cfg,
		logger:   logger,
	}
}

// GetQuestions sources a question set. The count is clamped by the service,
// so any well-formed body produces a response.
func (h *QuestionsHandler) GetQuestions(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_questions")
	defer observability.FinishSpan(span, nil)

	var req models.SourcingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn(ctx, "Invalid questions request format", map[string]interface{}{"error": err.Error()})
		HandleBindError(c, err)
		return
	}
	if learnerID, ok := GetLearnerIDFromSession(c); ok {
		req.LearnerID = learnerID
	}

	span.SetAttributes(
		attribute.String("sourcing.exam", req.Exam),
		attribute.String("sourcing.subject", req.SubjectID),
		attribute.String("sourcing.topic", req.SyllabusTopic),
		attribute.Int("sourcing.count", req.Count),
	)

	questions := h.sourcing.GetQuestions(ctx, req)
	c.JSON(http.StatusOK, QuestionsResponse{
		Questions: questions,
		Count:     len(questions),
		BySource:  models.CountBySource(questions),
	})
}

// StartSession begins a practice session and stores the learner id in the
// session cookie.
func (h *QuestionsHandler) StartSession(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "start_session")
	defer observability.FinishSpan(span, nil)

	var req StartSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleBindError(c, err)
			return
		}
	}
	learnerID := strings.TrimSpace(req.LearnerID)
	if existing, ok := GetLearnerIDFromSession(c); ok && learnerID == "" {
		learnerID = existing
	}

	learnerID, err := h.sourcing.StartSession(ctx, learnerID)
	if err != nil {
		h.logger.Error(ctx, "Failed to start session", err, map[string]interface{}{"learner": learnerID})
		HandleAppError(c, err)
		return
	}
	if err := SetLearnerIDInSession(c, learnerID); err != nil {
		HandleAppError(c, contextutils.WrapError(err, "failed to save session"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"learner_id":              learnerID,
		"persist_across_sessions": h.cfg.Usage.PersistAcrossSessions,
	})
}

// ResetUsage forgets which questions the session's learner has seen
func (h *QuestionsHandler) ResetUsage(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "reset_usage")
	defer observability.FinishSpan(span, nil)

	learnerID, ok := GetLearnerIDFromSession(c)
	if !ok {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInvalidInput, "no practice session started"))
		return
	}
	if err := h.sourcing.ResetUsageTracking(ctx, learnerID); err != nil {
		HandleAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetStats reports corpus statistics for the session's learner
func (h *QuestionsHandler) GetStats(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_stats")
	defer observability.FinishSpan(span, nil)

	learnerID, _ := GetLearnerIDFromSession(c)
	c.JSON(http.StatusOK, h.sourcing.GetStats(ctx, learnerID))
}

// ResolveTopic shows how a syllabus topic maps onto bank topic labels
func (h *QuestionsHandler) ResolveTopic(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "resolve_topic")
	defer observability.FinishSpan(span, nil)

	subject := strings.TrimSpace(c.Query("subject"))
	topic := strings.TrimSpace(c.Query("topic"))
	if topic == "" {
		HandleValidationError(c, "topic", topic, "topic is required")
		return
	}
	c.JSON(http.StatusOK, h.sourcing.ResolveTopic(subject, topic))
}

// SubjectTopics lists the bank topics of a subject with availability
func (h *QuestionsHandler) SubjectTopics(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "subject_topics")
	defer observability.FinishSpan(span, nil)

	subject := c.Param("subject")
	learnerID, _ := GetLearnerIDFromSession(c)
	topicList := h.sourcing.TopicsForSubject(ctx, subject, learnerID)
	c.JSON(http.StatusOK, gin.H{
		"subject": h.sourcing.Resolver().NormalizeSubject(subject),
		"topics":  topicList,
	})
}

// Syllabus returns the syllabus of an exam
func (h *QuestionsHandler) Syllabus(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_syllabus")
	defer observability.FinishSpan(span, nil)

	exam := c.Param("exam")
	syllabus, ok := h.sourcing.Resolver().Syllabus(exam)
	if !ok {
		HandleAppError(c, contextutils.WrapErrorf(contextutils.ErrNotFound, "no syllabus for exam %q", exam))
		return
	}
	c.JSON(http.StatusOK, syllabus)
}

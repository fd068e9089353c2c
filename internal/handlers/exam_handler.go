package handlers

import (
	"net/http"

	"osscprep/internal/models"
	"osscprep/internal/observability"
	"osscprep/internal/services"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// MockTestRequest selects the paper and language of a mock test
type MockTestRequest struct {
	Exam     string `json:"exam" binding:"omitempty,max=16"`
	Language string `json:"language" binding:"omitempty,oneof=en or"`
}

// DailyTestRequest additionally carries the learner's weak syllabus topics
type DailyTestRequest struct {
	Exam       string   `json:"exam" binding:"omitempty,max=16"`
	Language   string   `json:"language" binding:"omitempty,oneof=en or"`
	WeakTopics []string `json:"weak_topics" binding:"omitempty,max=20,dive,max=128"`
}

// ExamHandler serves generated mock and daily tests
type ExamHandler struct {
	exam   *services.ExamService
	logger *observability.Logger
}

// NewExamHandler creates a new ExamHandler instance
func NewExamHandler(exam *services.ExamService, logger *observability.Logger) *ExamHandler {
	return &ExamHandler{exam: exam, logger: logger}
}

// MockTest assembles a full-length paper
func (h *ExamHandler) MockTest(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "mock_test")
	defer observability.FinishSpan(span, nil)

	var req MockTestRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleBindError(c, err)
			return
		}
	}
	if req.Exam == "" {
		req.Exam = models.ExamRI
	}
	span.SetAttributes(attribute.String("exam.code", req.Exam))

	learnerID, _ := GetLearnerIDFromSession(c)
	test, err := h.exam.MockTest(ctx, req.Exam, learnerID, req.Language)
	if err != nil {
		h.logger.Warn(ctx, "Mock test request rejected", map[string]interface{}{"exam": req.Exam, "error": err.Error()})
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, test)
}

// DailyTest assembles today's short practice set
func (h *ExamHandler) DailyTest(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "daily_test")
	defer observability.FinishSpan(span, nil)

	var req DailyTestRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleBindError(c, err)
			return
		}
	}
	if req.Exam == "" {
		req.Exam = models.ExamRI
	}
	span.SetAttributes(
		attribute.String("exam.code", req.Exam),
		attribute.Int("exam.weak_topics", len(req.WeakTopics)),
	)

	learnerID, _ := GetLearnerIDFromSession(c)
	test, err := h.exam.DailyTest(ctx, req.Exam, learnerID, req.Language, req.WeakTopics)
	if err != nil {
		h.logger.Warn(ctx, "Daily test request rejected", map[string]interface{}{"exam": req.Exam, "error": err.Error()})
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, test)
}

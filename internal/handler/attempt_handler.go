package handler

import (
	"errors"
	"net/http"

	"github.com/drivetheory/theory-backend/internal/middleware"
	"github.com/drivetheory/theory-backend/internal/model"
	"github.com/drivetheory/theory-backend/internal/repository"
	"github.com/drivetheory/theory-backend/internal/response"
	"github.com/drivetheory/theory-backend/internal/service"
	"github.com/drivetheory/theory-backend/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AttemptHandler exposes the attempt lifecycle to remote assessment sessions.
type AttemptHandler struct {
	attempts *service.AttemptService
	local    *repository.LocalAttemptStore
	log      zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attempts *service.AttemptService, local *repository.LocalAttemptStore, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		attempts: attempts,
		local:    local,
		log:      log.With().Str("component", "attempt_handler").Logger(),
	}
}

// StartAttempt godoc
// POST /api/v1/exam-attempts/start
// Registers an IN_PROGRESS attempt for the learner.
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.StartAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attemptID, err := h.attempts.Start(c.Request.Context(), claims.LearnerID, req.ExamID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusCreated, model.StartAttemptResponse{AttemptID: attemptID})
}

// SubmitAnswer godoc
// POST /api/v1/exam-attempts/submit-answer
// Saves one answer; resubmitting a question overwrites the earlier answer.
func (h *AttemptHandler) SubmitAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.SubmitAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	err := h.attempts.SubmitAnswer(c.Request.Context(), claims.LearnerID, req.AttemptID, req.QuestionID, *req.SelectedOption)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"saved": true})
}

// CompleteAttempt godoc
// PUT /api/v1/exam-attempts/:id/complete
// Scores the attempt. Completing an already completed attempt returns the
// first result.
func (h *AttemptHandler) CompleteAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	// The body is optional.
	var req model.CompleteAttemptRequest
	if c.Request.ContentLength > 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}
	if req.Reason == "" {
		req.Reason = model.SubmitReasonManual
	}

	result, err := h.attempts.Complete(c.Request.Context(), claims.LearnerID, attemptID, req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// GetAttempt godoc
// GET /api/v1/exam-attempts/:id
// Returns the result of a completed attempt.
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	result, err := h.attempts.Get(c.Request.Context(), claims.LearnerID, attemptID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// ListAttempts godoc
// GET /api/v1/exam-attempts
// Lists the learner's attempts, newest first.
func (h *AttemptHandler) ListAttempts(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attempts, err := h.attempts.ListByLearner(c.Request.Context(), claims.LearnerID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if attempts == nil {
		attempts = []model.ExamAttempt{}
	}

	response.Success(c, http.StatusOK, gin.H{"attempts": attempts})
}

// ReportIntegrityEvent godoc
// POST /api/v1/exam-attempts/:id/integrity-events
// Records a fullscreen exit or page hide that ended the attempt.
func (h *AttemptHandler) ReportIntegrityEvent(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.IntegrityEventRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attempts.ReportIntegrityEvent(c.Request.Context(), claims.LearnerID, attemptID, req.Reason, req.RecordedAt); err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusAccepted, gin.H{})
}

// RecordQuestionOrder godoc
// PUT /api/v1/exam-attempts/:id/question-order
// Stores the order a retry presented its questions in.
func (h *AttemptHandler) RecordQuestionOrder(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.QuestionOrderRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attempts.RecordQuestionOrder(c.Request.Context(), claims.LearnerID, attemptID, req.QuestionIDs); err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusAccepted, gin.H{})
}

// GetLocalAttempt godoc
// GET /api/v1/local-attempts/:id
// Returns the result of a local-mode attempt while it is still retained.
func (h *AttemptHandler) GetLocalAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	localID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	result, err := h.local.GetResult(c.Request.Context(), claims.LearnerID, localID)
	if err != nil {
		if errors.Is(err, repository.ErrLocalAttemptNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
			return
		}
		h.log.Error().Err(err).Msg("Failed to read local attempt")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// fail maps attempt service errors onto API error codes.
func (h *AttemptHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAttemptNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
	case errors.Is(err, service.ErrAttemptCompleted):
		response.Fail(c, http.StatusConflict, response.ErrAttemptCompleted)
	case errors.Is(err, service.ErrAttemptInProgress):
		response.Fail(c, http.StatusConflict, response.ErrAttemptInProgress)
	case errors.Is(err, service.ErrUnknownQuestion):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrUnknownQuestion)
	case errors.Is(err, service.ErrInvalidOption):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrInvalidOption)
	case errors.Is(err, service.ErrExamNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrExamNotPublished):
		response.Fail(c, http.StatusForbidden, response.ErrExamNotAvailable)
	case errors.Is(err, service.ErrExamInvalid):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrExamInvalid)
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Attempt request failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

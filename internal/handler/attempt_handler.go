package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempts/internal/middleware"
	"github.com/stemsi/exstem-attempts/internal/model"
	"github.com/stemsi/exstem-attempts/internal/response"
	"github.com/stemsi/exstem-attempts/internal/service"
	"github.com/stemsi/exstem-attempts/internal/validator"
)

// Attempts is the attempt lifecycle as seen by the transport layer.
type Attempts interface {
	StartAttempt(ctx context.Context, examID uuid.UUID, userID int, lateCode string) (*service.StartResult, error)
	ResumeAttempt(ctx context.Context, attemptID uuid.UUID, userID int, resumeToken string) (*service.ResumeResult, error)
	GetAttempt(ctx context.Context, attemptID uuid.UUID, userID int) (*service.AttemptDetail, error)
	SaveDraftResponse(ctx context.Context, attemptID uuid.UUID, userID int, questionID uuid.UUID, req model.SaveDraftRequest) (*model.DraftResponse, error)
	RecordAntiCheatEvent(ctx context.Context, attemptID uuid.UUID, userID int, req model.RecordAntiCheatRequest) (*service.AntiCheatResult, error)
	SubmitAttempt(ctx context.Context, attemptID uuid.UUID, userID int, req model.SubmitAttemptRequest) (*service.SubmitResult, error)
}

// AttemptHandler handles student-facing attempt endpoints.
type AttemptHandler struct {
	attempts Attempts
	log      zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attempts Attempts, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		attempts: attempts,
		log:      log.With().Str("component", "attempt_handler").Logger(),
	}
}

// StartAttempt godoc
// POST /api/v1/student/exams/:exam_id/attempts
// Runs eligibility checks and opens a new attempt. The resume token in the
// response is never shown again.
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := paramUUID(c, "exam_id")
	if !ok {
		return
	}

	var req model.StartAttemptRequest
	if c.Request.ContentLength != 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	res, err := h.attempts.StartAttempt(c.Request.Context(), examID, claims.UserID, req.LateCode)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, res)
}

// GetAttempt godoc
// GET /api/v1/student/attempts/:attempt_id
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := paramUUID(c, "attempt_id")
	if !ok {
		return
	}

	detail, err := h.attempts.GetAttempt(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, detail)
}

// ResumeAttempt godoc
// POST /api/v1/student/attempts/:attempt_id/resume
// Covers page reloads: returns the session and every answer saved so far.
func (h *AttemptHandler) ResumeAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := paramUUID(c, "attempt_id")
	if !ok {
		return
	}

	var req model.ResumeAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.attempts.ResumeAttempt(c.Request.Context(), attemptID, claims.UserID, req.ResumeToken)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// SaveDraft godoc
// PUT /api/v1/student/attempts/:attempt_id/responses/:question_id
func (h *AttemptHandler) SaveDraft(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := paramUUID(c, "attempt_id")
	if !ok {
		return
	}
	questionID, ok := paramUUID(c, "question_id")
	if !ok {
		return
	}

	var req model.SaveDraftRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	draft, err := h.attempts.SaveDraftResponse(c.Request.Context(), attemptID, claims.UserID, questionID, req)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"response": draft})
}

// RecordAntiCheat godoc
// POST /api/v1/student/attempts/:attempt_id/anticheat
func (h *AttemptHandler) RecordAntiCheat(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := paramUUID(c, "attempt_id")
	if !ok {
		return
	}

	var req model.RecordAntiCheatRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.attempts.RecordAntiCheatEvent(c.Request.Context(), attemptID, claims.UserID, req)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// SubmitAttempt godoc
// POST /api/v1/student/attempts/:attempt_id/submit
// Grades the attempt and returns the evaluation with the saved responses.
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := paramUUID(c, "attempt_id")
	if !ok {
		return
	}

	var req model.SubmitAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.attempts.SubmitAttempt(c.Request.Context(), attemptID, claims.UserID, req)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// paramUUID parses a path parameter, writing INVALID_ID on failure.
func paramUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempts/internal/middleware"
	"github.com/stemsi/exstem-attempts/internal/model"
	"github.com/stemsi/exstem-attempts/internal/response"
	"github.com/stemsi/exstem-attempts/internal/service"
	"github.com/stemsi/exstem-attempts/internal/validator"
)

// LateCodes is the late-access registry as seen by the transport layer.
type LateCodes interface {
	Generate(ctx context.Context, examID uuid.UUID, actor service.Actor, req model.GenerateLateCodeRequest) (*model.LateAccessCode, error)
	Check(ctx context.Context, code string, examID uuid.UUID, userID int) (*model.LateAccessCode, error)
	Revoke(ctx context.Context, codeID uuid.UUID, actor service.Actor) (*model.LateAccessCode, error)
	List(ctx context.Context, examID uuid.UUID, actor service.Actor) ([]model.LateAccessCode, error)
}

// LateCodeHandler handles late-access code endpoints for staff and the
// student-side pre-check.
type LateCodeHandler struct {
	codes LateCodes
	log   zerolog.Logger
}

// NewLateCodeHandler creates a new LateCodeHandler.
func NewLateCodeHandler(codes LateCodes, log zerolog.Logger) *LateCodeHandler {
	return &LateCodeHandler{
		codes: codes,
		log:   log.With().Str("component", "late_code_handler").Logger(),
	}
}

func actorFrom(claims *service.Claims) service.Actor {
	return service.Actor{
		UserID:    claims.UserID,
		Inspector: claims.HasPermission(model.PermissionLateCodesInspect),
	}
}

// Generate godoc
// POST /api/v1/staff/exams/:exam_id/late-codes
func (h *LateCodeHandler) Generate(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := paramUUID(c, "exam_id")
	if !ok {
		return
	}

	var req model.GenerateLateCodeRequest
	if c.Request.ContentLength != 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	code, err := h.codes.Generate(c.Request.Context(), examID, actorFrom(claims), req)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"late_code": code})
}

// List godoc
// GET /api/v1/staff/exams/:exam_id/late-codes
func (h *LateCodeHandler) List(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := paramUUID(c, "exam_id")
	if !ok {
		return
	}

	codes, err := h.codes.List(c.Request.Context(), examID, actorFrom(claims))
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"late_codes": codes})
}

// Revoke godoc
// DELETE /api/v1/staff/late-codes/:code_id
func (h *LateCodeHandler) Revoke(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	codeID, ok := paramUUID(c, "code_id")
	if !ok {
		return
	}

	code, err := h.codes.Revoke(c.Request.Context(), codeID, actorFrom(claims))
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"late_code": code})
}

// lateCodeCheck is what a student learns from a successful pre-check. The
// full code record stays staff-only.
type lateCodeCheck struct {
	Valid           bool      `json:"valid"`
	UsagesRemaining int       `json:"usages_remaining"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// Check godoc
// POST /api/v1/student/exams/:exam_id/late-codes/check
// Validates a code without consuming it.
func (h *LateCodeHandler) Check(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := paramUUID(c, "exam_id")
	if !ok {
		return
	}

	var req model.CheckLateCodeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	code, err := h.codes.Check(c.Request.Context(), req.Code, examID, claims.UserID)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, lateCodeCheck{
		Valid:           true,
		UsagesRemaining: code.UsagesRemaining(),
		ExpiresAt:       code.ExpiresAt,
	})
}

package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempts/internal/response"
	"github.com/stemsi/exstem-attempts/internal/service"
)

// apiError is a service error translated for transport.
type apiError struct {
	status     int
	code       response.ErrCode
	fields     map[string]string
	retryAfter time.Duration
}

var sentinelErrors = []struct {
	err    error
	status int
	code   response.ErrCode
}{
	// Eligibility.
	{service.ErrExamNotFound, http.StatusNotFound, response.ErrExamNotFound},
	{service.ErrExamNotPublished, http.StatusForbidden, response.ErrExamNotPublished},
	{service.ErrExamNotOpen, http.StatusForbidden, response.ErrExamNotOpen},
	{service.ErrExamClosed, http.StatusForbidden, response.ErrExamClosed},
	{service.ErrAttemptLimitReached, http.StatusConflict, response.ErrAttemptLimitReached},

	// Authorization.
	{service.ErrNotAttemptOwner, http.StatusForbidden, response.ErrNotAttemptOwner},
	{service.ErrInvalidResumeToken, http.StatusUnauthorized, response.ErrInvalidResume},
	{service.ErrNotAuthorizedForCodes, http.StatusForbidden, response.ErrNotExamAuthor},
	{service.ErrNotAuthorizedToWatch, http.StatusForbidden, response.ErrNotExamAuthor},

	// Integrity. Expired is checked before its parent not-in-progress.
	{service.ErrAttemptNotFound, http.StatusNotFound, response.ErrAttemptNotFound},
	{service.ErrAttemptAbandoned, http.StatusConflict, response.ErrAttemptAbandoned},
	{service.ErrAttemptExpired, http.StatusGone, response.ErrAttemptExpired},
	{service.ErrAttemptNotInProgress, http.StatusConflict, response.ErrAttemptNotInProgress},
	{service.ErrDuplicateResponse, http.StatusConflict, response.ErrDuplicateResponse},
	{service.ErrUnknownQuestion, http.StatusUnprocessableEntity, response.ErrUnknownQuestion},

	// Late access.
	{service.ErrLateCodeInvalid, http.StatusBadRequest, response.ErrLateCodeInvalid},
	{service.ErrLateCodeDeactivated, http.StatusGone, response.ErrLateCodeDeactivated},
	{service.ErrLateCodeExpired, http.StatusGone, response.ErrLateCodeExpired},
	{service.ErrLateCodeExhausted, http.StatusGone, response.ErrLateCodeExhausted},
	{service.ErrLateCodeNotYours, http.StatusForbidden, response.ErrLateCodeNotYours},
	{service.ErrLateCodeAlreadyUsed, http.StatusConflict, response.ErrLateCodeAlreadyUsed},
	{service.ErrLateCodeNotFound, http.StatusNotFound, response.ErrLateCodeNotFound},
}

// translateError maps a service error onto a status and error code. Unknown
// errors become INTERNAL_ERROR.
func translateError(err error) apiError {
	var cooldown *service.CooldownError
	if errors.As(err, &cooldown) {
		return apiError{
			status:     http.StatusTooManyRequests,
			code:       response.ErrCooldownActive,
			retryAfter: cooldown.Remaining,
		}
	}

	var inProgress *service.InProgressError
	if errors.As(err, &inProgress) {
		return apiError{
			status: http.StatusConflict,
			code:   response.ErrAttemptInProgress,
			fields: map[string]string{"attempt_id": inProgress.AttemptID.String()},
		}
	}
	if errors.Is(err, service.ErrAttemptInProgress) {
		return apiError{status: http.StatusConflict, code: response.ErrAttemptInProgress}
	}

	for _, m := range sentinelErrors {
		if errors.Is(err, m.err) {
			return apiError{status: m.status, code: m.code}
		}
	}
	return apiError{status: http.StatusInternalServerError, code: response.ErrInternal}
}

// failWithError writes the error envelope for err, logging unexpected errors.
func failWithError(c *gin.Context, log zerolog.Logger, err error) {
	e := translateError(err)
	if e.code == response.ErrInternal {
		log.Error().Err(err).
			Str("path", c.FullPath()).
			Str("request_id", response.RequestID(c)).
			Msg("Request failed")
	}
	if e.retryAfter > 0 {
		response.FailRetryAfter(c, e.status, e.code, e.retryAfter, e.fields)
		return
	}
	if len(e.fields) > 0 {
		response.FailWithFields(c, e.status, e.code, e.fields)
		return
	}
	response.Fail(c, e.status, e.code)
}

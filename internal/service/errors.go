package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Eligibility errors. Recoverable by the student and never retried.
var (
	ErrExamNotFound        = errors.New("exam not found")
	ErrExamNotPublished    = errors.New("exam is not published")
	ErrExamNotOpen         = errors.New("exam window has not opened yet")
	ErrExamClosed          = errors.New("exam window has closed")
	ErrAttemptLimitReached = errors.New("maximum number of attempts reached")
	ErrCooldownActive      = errors.New("cool-down between attempts is still active")
	ErrAttemptInProgress   = errors.New("another attempt is already in progress")
)

// Authorization errors. Logged as potential abuse.
var (
	ErrNotAttemptOwner       = errors.New("attempt belongs to another user")
	ErrInvalidResumeToken    = errors.New("invalid resume token")
	ErrNotAuthorizedForCodes = errors.New("not authorized to manage late-access codes for this exam")
	ErrNotAuthorizedToWatch  = errors.New("not authorized to monitor this exam")
)

// Integrity errors. The operation is rejected and prior state is untouched.
var (
	ErrAttemptNotFound      = errors.New("attempt not found")
	ErrAttemptNotInProgress = errors.New("attempt no longer in progress")
	ErrAttemptAbandoned     = errors.New("attempt abandoned: anti-cheat threshold exceeded")
	ErrDuplicateResponse    = errors.New("a response for this question was already recorded")
	ErrUnknownQuestion      = errors.New("question does not belong to this exam")
)

// ErrAttemptExpired is the not-in-progress case where the deadline passed.
var ErrAttemptExpired = fmt.Errorf("%w: time limit has passed", ErrAttemptNotInProgress)

// Late-access code errors, one per validation step.
var (
	ErrLateCodeInvalid     = errors.New("late-access code is invalid")
	ErrLateCodeDeactivated = errors.New("late-access code is deactivated")
	ErrLateCodeExpired     = errors.New("late-access code has expired")
	ErrLateCodeExhausted   = errors.New("late-access code has no remaining usages")
	ErrLateCodeNotYours    = errors.New("late-access code is assigned to another user")
	ErrLateCodeAlreadyUsed = errors.New("late-access code already used by this user")
	ErrLateCodeNotFound    = errors.New("late-access code not found")
)

// CooldownError reports the exact wait before the next attempt may start.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s: retry in %s", ErrCooldownActive, e.Remaining.Round(time.Second))
}

func (e *CooldownError) Is(target error) bool { return target == ErrCooldownActive }

// InProgressError carries the id of the attempt the student should resume.
type InProgressError struct {
	AttemptID uuid.UUID
}

func (e *InProgressError) Error() string {
	return fmt.Sprintf("%s: %s", ErrAttemptInProgress, e.AttemptID)
}

func (e *InProgressError) Is(target error) bool { return target == ErrAttemptInProgress }

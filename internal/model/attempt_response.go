package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AttemptResponse is the final, graded answer to one question within one
// attempt. (attempt_id, question_id) is unique.
type AttemptResponse struct {
	ID             uuid.UUID       `json:"id"`
	AttemptID      uuid.UUID       `json:"attempt_id"`
	QuestionID     uuid.UUID       `json:"question_id"`
	Answer         string          `json:"answer"`
	IsCorrect      bool            `json:"is_correct"`
	EarnedPoints   *float64        `json:"earned_points,omitempty"`
	GradingDetails json.RawMessage `json:"grading_details,omitempty"`
	TimeSpent      int             `json:"time_spent"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Answered reports whether the student supplied a non-blank answer.
func (r *AttemptResponse) Answered() bool {
	return strings.TrimSpace(r.Answer) != ""
}

// DraftResponse is an autosaved answer held while the attempt is in progress.
type DraftResponse struct {
	QuestionID uuid.UUID `json:"question_id"`
	Answer     string    `json:"answer"`
	TimeSpent  int       `json:"time_spent"`
	SavedAt    time.Time `json:"saved_at"`
}

// ResponseInput is one answer in a submit payload.
type ResponseInput struct {
	QuestionID uuid.UUID `json:"question_id" binding:"required"`
	Answer     string    `json:"answer" binding:"max=20000"`
	TimeSpent  int       `json:"time_spent" binding:"min=0"`
}

// SubmitAttemptRequest is the payload for submitting an attempt.
type SubmitAttemptRequest struct {
	Responses  []ResponseInput `json:"responses" binding:"dive"`
	Decorators []string        `json:"decorators" binding:"omitempty,dive,oneof=time_bonus time_penalty streak_bonus badges detailed_stats"`
}

// SaveDraftRequest is the payload for autosaving a single answer.
type SaveDraftRequest struct {
	Answer    string `json:"answer" binding:"max=20000"`
	TimeSpent int    `json:"time_spent" binding:"min=0"`
}

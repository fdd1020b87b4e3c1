package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt session states. STARTED is the only
// non-terminal state.
type AttemptStatus string

const (
	AttemptStatusStarted   AttemptStatus = "STARTED"
	AttemptStatusCompleted AttemptStatus = "COMPLETED"
	AttemptStatusExpired   AttemptStatus = "EXPIRED"
	AttemptStatusAbandoned AttemptStatus = "ABANDONED"
)

// Terminal reports whether no further transition is possible from s.
func (s AttemptStatus) Terminal() bool {
	return s != AttemptStatusStarted
}

// AttemptSession is one student's timed pass at one exam.
type AttemptSession struct {
	ID               uuid.UUID     `json:"id"`
	ExamID           uuid.UUID     `json:"exam_id"`
	UserID           int           `json:"user_id"`
	Status           AttemptStatus `json:"status"`
	ResumeTokenHash  string        `json:"-"`
	LateAccessCodeID *uuid.UUID    `json:"late_access_code_id,omitempty"`
	StartedAt        time.Time     `json:"started_at"`
	ExpiresAt        time.Time     `json:"expires_at"`
	SubmittedAt      *time.Time    `json:"submitted_at,omitempty"`

	// Derived from the anti-cheat ledger on every read; never stored as a
	// counter of its own.
	TabSwitches                int             `json:"tab_switches"`
	SuspiciousActivityDetected bool            `json:"suspicious_activity_detected"`
	AntiCheatEvents            AntiCheatLedger `json:"anti_cheat_events,omitempty"`

	Score            *float64        `json:"score,omitempty"`
	MaxScore         *float64        `json:"max_score,omitempty"`
	Percentage       *float64        `json:"percentage,omitempty"`
	Passed           *bool           `json:"passed,omitempty"`
	TimeSpentSeconds *int            `json:"time_spent_seconds,omitempty"`
	Evaluation       json.RawMessage `json:"evaluation,omitempty"`

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PastDeadline reports whether now is beyond the session's expiry plus grace.
func (a *AttemptSession) PastDeadline(now time.Time, grace time.Duration) bool {
	return now.After(a.ExpiresAt.Add(grace))
}

// StartAttemptRequest is the payload for starting an attempt.
type StartAttemptRequest struct {
	LateCode string `json:"late_code" binding:"omitempty,latecode"`
}

// ResumeAttemptRequest is the payload for resuming an in-progress attempt.
type ResumeAttemptRequest struct {
	ResumeToken string `json:"resume_token" binding:"required,min=16,max=128"`
}

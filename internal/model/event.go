package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptEventType names outbound domain events emitted by the attempt engine.
type AttemptEventType string

const (
	EventAttemptStarted   AttemptEventType = "attempt.started"
	EventAttemptSubmitted AttemptEventType = "attempt.submitted"
	EventAttemptGraded    AttemptEventType = "attempt.graded"
	EventAttemptAbandoned AttemptEventType = "attempt.abandoned"
	EventAttemptExpired   AttemptEventType = "attempt.expired"
)

// AttemptEvent is a fire-and-forget notification for external subscribers
// (notifications, gamification, analytics).
type AttemptEvent struct {
	ID         uuid.UUID        `json:"id"`
	Type       AttemptEventType `json:"type"`
	AttemptID  uuid.UUID        `json:"attempt_id"`
	ExamID     uuid.UUID        `json:"exam_id"`
	UserID     int              `json:"user_id"`
	OccurredAt time.Time        `json:"occurred_at"`
	Payload    map[string]any   `json:"payload,omitempty"`
}

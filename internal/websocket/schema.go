package websocket

import (
	"encoding/json"
	"time"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave Action = "autosave"
	ActionCheat    Action = "cheat"
	ActionPing     Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AutosaveRequest saves the latest answer to one question.
type AutosaveRequest struct {
	Action    Action `json:"action"`
	QID       string `json:"q_id"`
	Answer    string `json:"ans"`
	TimeSpent int    `json:"time_spent"`
}

// CheatRequest reports one anti-cheat event. EventID makes redelivery after
// a reconnect harmless.
type CheatRequest struct {
	Action     Action          `json:"action"`
	EventID    string          `json:"event_id"`
	Type       string          `json:"type"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	OccurredAt *time.Time      `json:"occurred_at,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventSaved     Event = "saved"
	EventRecorded  Event = "recorded"
	EventAbandoned Event = "abandoned"
	EventPong      Event = "pong"
)

type SavedResponse struct {
	Event   Event     `json:"event"`
	QID     string    `json:"q_id"`
	SavedAt time.Time `json:"saved_at"`
}

type RecordedResponse struct {
	Event       Event  `json:"event"`
	EventID     string `json:"event_id,omitempty"`
	Duplicate   bool   `json:"duplicate"`
	TabSwitches int    `json:"tab_switches"`
	Suspicious  bool   `json:"suspicious_activity_detected"`
}

type AbandonedResponse struct {
	Event  Event  `json:"event"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}

package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptProgress is one row of the live exam monitor.
type AttemptProgress struct {
	AttemptID uuid.UUID     `json:"attempt_id"`
	UserID    int           `json:"user_id"`
	Status    AttemptStatus `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	ExpiresAt time.Time     `json:"expires_at"`
	// Overdue marks a STARTED attempt past its deadline that nobody has
	// touched since, so lazy expiry has not run yet.
	Overdue         bool     `json:"overdue"`
	Score           *float64 `json:"score,omitempty"`
	AnsweredCount   int64    `json:"answered_count"`
	AntiCheatEvents int64    `json:"anti_cheat_count"`
	TabSwitches     int64    `json:"tab_switches"`
}

// MonitorStats aggregates AttemptProgress rows.
type MonitorStats struct {
	TotalJoined     int   `json:"total_joined"`
	TotalInProgress int   `json:"total_in_progress"`
	TotalCompleted  int   `json:"total_completed"`
	TotalAbandoned  int   `json:"total_abandoned"`
	TotalExpired    int   `json:"total_expired"`
	TotalAntiCheat  int64 `json:"total_anti_cheat"`
}

// MonitorSnapshot is the full state pushed when a monitor attaches.
type MonitorSnapshot struct {
	ExamID          uuid.UUID         `json:"exam_id"`
	Title           string            `json:"title"`
	DurationMinutes int               `json:"duration_minutes"`
	TotalQuestions  int               `json:"total_questions"`
	Stats           MonitorStats      `json:"stats"`
	Attempts        []AttemptProgress `json:"attempts"`
}

// SummarizeProgress counts attempts per effective status. Overdue attempts
// count as expired.
func SummarizeProgress(rows []AttemptProgress) MonitorStats {
	stats := MonitorStats{TotalJoined: len(rows)}
	for _, p := range rows {
		stats.TotalAntiCheat += p.AntiCheatEvents
		switch {
		case p.Status == AttemptStatusStarted && p.Overdue:
			stats.TotalExpired++
		case p.Status == AttemptStatusStarted:
			stats.TotalInProgress++
		case p.Status == AttemptStatusCompleted:
			stats.TotalCompleted++
		case p.Status == AttemptStatusAbandoned:
			stats.TotalAbandoned++
		case p.Status == AttemptStatusExpired:
			stats.TotalExpired++
		}
	}
	return stats
}

package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusArchived  ExamStatus = "ARCHIVED"
)

// EvaluationType selects the scoring strategy used when an attempt is submitted.
type EvaluationType string

const (
	EvaluationExactMatch EvaluationType = "EXACT_MATCH"
	EvaluationBinary     EvaluationType = "BINARY"
	EvaluationAdaptive   EvaluationType = "ADAPTIVE"
	EvaluationPenalized  EvaluationType = "PENALIZED"
	EvaluationOpenText   EvaluationType = "OPEN_TEXT"
)

// AntiCheatPolicy is the exam's client-side proctoring configuration.
// A nil MaxTabSwitches means tab switching is tracked but never enforced.
type AntiCheatPolicy struct {
	MaxTabSwitches    *int `json:"max_tab_switches,omitempty"`
	RequireFullscreen bool `json:"require_fullscreen"`
	BlockCopyPaste    bool `json:"block_copy_paste"`
	RequireWebcam     bool `json:"require_webcam"`
}

// Exam is the read-only view of a graded activity consumed by the attempt engine.
type Exam struct {
	ID              uuid.UUID      `json:"id"`
	Title           string         `json:"title"`
	AuthorID        int            `json:"author_id"`
	Status          ExamStatus     `json:"status"`
	StartTime       *time.Time     `json:"start_time,omitempty"`
	EndTime         *time.Time     `json:"end_time,omitempty"`
	DurationMinutes int            `json:"duration_minutes"`
	PassingScore    float64        `json:"passing_score"`
	MaxAttempts     int            `json:"max_attempts"`
	// TimeBetweenAttempts is the cool-down in hours between completed attempts.
	TimeBetweenAttempts int             `json:"time_between_attempts"`
	EvaluationType      EvaluationType  `json:"evaluation_type"`
	AntiCheat           AntiCheatPolicy `json:"anti_cheat"`
	Decorators          []string        `json:"decorators,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Duration returns the configured attempt duration.
func (e *Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// ExamSnapshot is a consistent view of an exam and its question bank,
// loaded once and reused for every response of a submission.
type ExamSnapshot struct {
	Exam      Exam       `json:"exam"`
	Questions []Question `json:"questions"`
}

// QuestionByID indexes the snapshot's questions.
func (s *ExamSnapshot) QuestionByID() map[uuid.UUID]*Question {
	idx := make(map[uuid.UUID]*Question, len(s.Questions))
	for i := range s.Questions {
		idx[s.Questions[i].ID] = &s.Questions[i]
	}
	return idx
}

// AttemptConfig is the client-facing subset of exam configuration returned
// when an attempt starts.
type AttemptConfig struct {
	Title           string          `json:"title"`
	DurationMinutes int             `json:"duration_minutes"`
	PassingScore    float64         `json:"passing_score"`
	EvaluationType  EvaluationType  `json:"evaluation_type"`
	AntiCheat       AntiCheatPolicy `json:"anti_cheat"`
	QuestionCount   int             `json:"question_count"`
}

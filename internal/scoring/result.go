package scoring

import "github.com/google/uuid"

// QuestionStatus describes how a single question was graded.
type QuestionStatus string

const (
	StatusCorrect       QuestionStatus = "correct"
	StatusIncorrect     QuestionStatus = "incorrect"
	StatusPartial       QuestionStatus = "partial"
	StatusUnanswered    QuestionStatus = "unanswered"
	StatusPendingReview QuestionStatus = "pending_review"
)

// QuestionResult is the per-question breakdown of an evaluation.
type QuestionResult struct {
	QuestionID      uuid.UUID      `json:"question_id"`
	Status          QuestionStatus `json:"status"`
	IsCorrect       bool           `json:"is_correct"`
	Earned          float64        `json:"earned"`
	Max             float64        `json:"max"`
	Mode            string         `json:"mode,omitempty"`
	Similarity      *float64       `json:"similarity,omitempty"`
	MatchedKeywords []string       `json:"matched_keywords,omitempty"`
	MissingRequired []string       `json:"missing_required,omitempty"`
	Feedback        string         `json:"feedback,omitempty"`
}

// Adjustment records a score change made by a decorator.
type Adjustment struct {
	Decorator string  `json:"decorator"`
	Points    float64 `json:"points"`
	Reason    string  `json:"reason"`
}

// DifficultyStats aggregates results for one difficulty level.
type DifficultyStats struct {
	Total   int     `json:"total"`
	Correct int     `json:"correct"`
	Earned  float64 `json:"earned"`
	Max     float64 `json:"max"`
}

// Stats is the optional detailed breakdown added by the detailed_stats decorator.
type Stats struct {
	Answered              int                        `json:"answered"`
	Unanswered            int                        `json:"unanswered"`
	Correct               int                        `json:"correct"`
	Incorrect             int                        `json:"incorrect"`
	Partial               int                        `json:"partial"`
	PendingReview         int                        `json:"pending_review"`
	Accuracy              float64                    `json:"accuracy"`
	AverageSecondsPerItem float64                    `json:"average_seconds_per_item"`
	ByDifficulty          map[string]DifficultyStats `json:"by_difficulty"`
}

// Result is the outcome of evaluating one attempt.
type Result struct {
	Score         float64          `json:"score"`
	MaxScore      float64          `json:"max_score"`
	Percentage    float64          `json:"percentage"`
	Passed        bool             `json:"passed"`
	PendingReview bool             `json:"pending_review"`
	Feedback      string           `json:"feedback"`
	Details       []QuestionResult `json:"details"`
	Adjustments   []Adjustment     `json:"adjustments,omitempty"`
	Badges        []string         `json:"badges,omitempty"`
	Stats         *Stats           `json:"stats,omitempty"`
}

// clone deep-copies the slices a decorator may append to.
func (r Result) clone() Result {
	out := r
	out.Details = append([]QuestionResult(nil), r.Details...)
	out.Adjustments = append([]Adjustment(nil), r.Adjustments...)
	out.Badges = append([]string(nil), r.Badges...)
	if r.Stats != nil {
		s := *r.Stats
		s.ByDifficulty = make(map[string]DifficultyStats, len(r.Stats.ByDifficulty))
		for k, v := range r.Stats.ByDifficulty {
			s.ByDifficulty[k] = v
		}
		out.Stats = &s
	}
	return out
}

package model

import (
	"strings"

	"github.com/google/uuid"
)

// Question represents a single exam question with its grading configuration.
type Question struct {
	ID            uuid.UUID       `json:"id"`
	ExamID        uuid.UUID       `json:"exam_id"`
	QuestionText  string          `json:"question_text"`
	QuestionType  QuestionType    `json:"question_type"`
	Points        float64         `json:"points"`
	Difficulty    Difficulty      `json:"difficulty"`
	CorrectOption string          `json:"correct_option,omitempty"`
	OpenText      *OpenTextConfig `json:"open_text,omitempty"`
	OrderNum      int             `json:"order_num"`
}

type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTypeTrueFalse      QuestionType = "TRUE_FALSE"
	QuestionTypeOpenText       QuestionType = "OPEN_TEXT"
)

type Difficulty string

const (
	DifficultyBeginner     Difficulty = "BEGINNER"
	DifficultyIntermediate Difficulty = "INTERMEDIATE"
	DifficultyAdvanced     Difficulty = "ADVANCED"
	DifficultyExpert       Difficulty = "EXPERT"
)

// GradingMode selects how an open-text answer is auto-graded.
type GradingMode string

const (
	GradingKeywords GradingMode = "keywords"
	GradingSemantic GradingMode = "semantic"
	GradingHybrid   GradingMode = "hybrid"
	GradingManual   GradingMode = "manual"
)

// Keyword is one weighted term an open-text answer is expected to contain.
type Keyword struct {
	Word     string   `json:"word"`
	Weight   float64  `json:"weight"`
	Synonyms []string `json:"synonyms,omitempty"`
	Required bool     `json:"required"`
}

// OpenTextConfig carries the per-question grading rules for free-text answers.
// Zero MinLength/MaxLength disable the corresponding bound.
type OpenTextConfig struct {
	Mode                GradingMode `json:"mode"`
	Keywords            []Keyword   `json:"keywords,omitempty"`
	ModelAnswer         string      `json:"model_answer,omitempty"`
	SimilarityThreshold float64     `json:"similarity_threshold"`
	MinLength           int         `json:"min_length"`
	MaxLength           int         `json:"max_length"`
}

// Judge reports whether a selection answer matches the question's correct option.
// Open-text questions are never judged here; their credit comes from grading.
func (q *Question) Judge(answer string) bool {
	if q.QuestionType == QuestionTypeOpenText {
		return false
	}
	answer = strings.TrimSpace(answer)
	if answer == "" || q.CorrectOption == "" {
		return false
	}
	return strings.EqualFold(answer, strings.TrimSpace(q.CorrectOption))
}

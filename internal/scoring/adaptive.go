package scoring

import "github.com/stemsi/exstem-attempts/internal/model"

// DifficultyMultiplier returns the credit multiplier for a difficulty level.
// Unknown levels count as beginner.
func DifficultyMultiplier(d model.Difficulty) float64 {
	switch d {
	case model.DifficultyIntermediate:
		return 1.2
	case model.DifficultyAdvanced:
		return 1.5
	case model.DifficultyExpert:
		return 2.0
	default:
		return 1.0
	}
}

// adaptiveEvaluator weights correct answers by difficulty while MaxScore
// accumulates the undiscounted points. Percentages above 100 are expected
// and are not clamped.
type adaptiveEvaluator struct{}

func (adaptiveEvaluator) Evaluate(exam *model.Exam, responses []model.AttemptResponse, questions []model.Question) Result {
	byQuestion := indexResponses(responses)

	var r Result
	for _, q := range orderedQuestions(questions) {
		qr := judged(&q, byQuestion[q.ID], q.Points)
		if qr.IsCorrect {
			qr.Earned = q.Points * DifficultyMultiplier(q.Difficulty)
		}
		r.Score += qr.Earned
		r.MaxScore += q.Points
		r.Details = append(r.Details, qr)
	}

	Finalize(&r, exam.PassingScore)
	return r
}

package scoring

import (
	"math"

	"github.com/stemsi/exstem-attempts/internal/model"
)

// PenaltyRate is the share of a question's points deducted for a wrong answer.
const PenaltyRate = 0.25

// penalizedEvaluator awards full points for correct answers and deducts
// PenaltyRate of the points for each answered-but-wrong question. The running
// score is clamped at zero after every deduction; unanswered questions cost
// nothing.
type penalizedEvaluator struct{}

func (penalizedEvaluator) Evaluate(exam *model.Exam, responses []model.AttemptResponse, questions []model.Question) Result {
	byQuestion := indexResponses(responses)

	var r Result
	for _, q := range orderedQuestions(questions) {
		qr := judged(&q, byQuestion[q.ID], q.Points)
		if qr.Status == StatusIncorrect {
			penalty := q.Points * PenaltyRate
			qr.Earned = -penalty
			r.Score = math.Max(0, r.Score-penalty)
		} else {
			r.Score += qr.Earned
		}
		r.MaxScore += q.Points
		r.Details = append(r.Details, qr)
	}

	Finalize(&r, exam.PassingScore)
	return r
}

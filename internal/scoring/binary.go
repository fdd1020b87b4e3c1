package scoring

import "github.com/stemsi/exstem-attempts/internal/model"

// binaryEvaluator scores every question as exactly one point, ignoring the
// declared point value.
type binaryEvaluator struct{}

func (binaryEvaluator) Evaluate(exam *model.Exam, responses []model.AttemptResponse, questions []model.Question) Result {
	byQuestion := indexResponses(responses)

	var r Result
	for _, q := range orderedQuestions(questions) {
		qr := judged(&q, byQuestion[q.ID], 1)
		r.Score += qr.Earned
		r.MaxScore++
		r.Details = append(r.Details, qr)
	}

	Finalize(&r, exam.PassingScore)
	return r
}

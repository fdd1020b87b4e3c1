package scoring

import "github.com/stemsi/exstem-attempts/internal/model"

// exactMatchEvaluator sums the points of every correctly answered question.
type exactMatchEvaluator struct{}

func (exactMatchEvaluator) Evaluate(exam *model.Exam, responses []model.AttemptResponse, questions []model.Question) Result {
	byQuestion := indexResponses(responses)

	var r Result
	for _, q := range orderedQuestions(questions) {
		qr := judged(&q, byQuestion[q.ID], q.Points)
		r.Score += qr.Earned
		r.MaxScore += q.Points
		r.Details = append(r.Details, qr)
	}

	Finalize(&r, exam.PassingScore)
	return r
}

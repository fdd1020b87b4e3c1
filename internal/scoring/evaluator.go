// Package scoring turns submitted responses into a graded result.
//
// Evaluators are pure: they read the exam, the responses and the question
// bank and never mutate them, so evaluations of different attempts may run
// in parallel against a shared snapshot.
package scoring

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-attempts/internal/model"
)

// Evaluator scores one attempt.
type Evaluator interface {
	Evaluate(exam *model.Exam, responses []model.AttemptResponse, questions []model.Question) Result
}

// ForType returns the evaluator for an evaluation type. Unknown types fall
// back to exact-match so a submission is always resolvable.
func ForType(t model.EvaluationType) Evaluator {
	switch t {
	case model.EvaluationBinary:
		return binaryEvaluator{}
	case model.EvaluationAdaptive:
		return adaptiveEvaluator{}
	case model.EvaluationPenalized:
		return penalizedEvaluator{}
	case model.EvaluationOpenText:
		return NewOpenTextEvaluator(JaccardSimilarity{})
	default:
		return exactMatchEvaluator{}
	}
}

// Finalize derives percentage, the pass flag and the summary feedback from
// score and max score. A result with questions pending manual review never
// passes.
func Finalize(r *Result, passingScore float64) {
	r.Percentage = 0
	if r.MaxScore > 0 {
		r.Percentage = 100 * r.Score / r.MaxScore
	}
	r.Passed = !r.PendingReview && r.Percentage >= passingScore

	switch {
	case r.PendingReview:
		r.Feedback = "Some answers are awaiting manual review."
	case r.Passed:
		r.Feedback = fmt.Sprintf("Passed with %.1f%%.", r.Percentage)
	default:
		r.Feedback = fmt.Sprintf("Scored %.1f%%, below the passing score of %.1f%%.", r.Percentage, passingScore)
	}
}

// orderedQuestions returns a copy of the bank sorted by display order.
func orderedQuestions(questions []model.Question) []model.Question {
	out := make([]model.Question, len(questions))
	copy(out, questions)
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderNum < out[j].OrderNum })
	return out
}

func indexResponses(responses []model.AttemptResponse) map[uuid.UUID]*model.AttemptResponse {
	idx := make(map[uuid.UUID]*model.AttemptResponse, len(responses))
	for i := range responses {
		idx[responses[i].QuestionID] = &responses[i]
	}
	return idx
}

// judged grades a selection-type question: full credit when the response is
// marked correct.
func judged(q *model.Question, resp *model.AttemptResponse, points float64) QuestionResult {
	qr := QuestionResult{QuestionID: q.ID, Max: points}
	switch {
	case resp == nil || !resp.Answered():
		qr.Status = StatusUnanswered
	case resp.IsCorrect:
		qr.Status = StatusCorrect
		qr.IsCorrect = true
		qr.Earned = points
	default:
		qr.Status = StatusIncorrect
	}
	return qr
}

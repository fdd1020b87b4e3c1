package scoring

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/stemsi/exstem-attempts/internal/model"
)

const (
	// DefaultSimilarityThreshold applies when a question sets none.
	DefaultSimilarityThreshold = 0.7

	overLengthCredit = 0.5
	semanticWeight   = 0.6
	keywordWeight    = 0.4
)

// openTextEvaluator grades free-text answers by keywords, semantic
// similarity, a blend of both, or defers them to manual review. Selection
// questions mixed into the exam are graded like exact-match.
type openTextEvaluator struct {
	sim Similarity
}

// NewOpenTextEvaluator builds the open-text evaluator around a similarity scorer.
func NewOpenTextEvaluator(sim Similarity) Evaluator {
	if sim == nil {
		sim = JaccardSimilarity{}
	}
	return openTextEvaluator{sim: sim}
}

func (e openTextEvaluator) Evaluate(exam *model.Exam, responses []model.AttemptResponse, questions []model.Question) Result {
	byQuestion := indexResponses(responses)

	var r Result
	for _, q := range orderedQuestions(questions) {
		var qr QuestionResult
		if q.QuestionType == model.QuestionTypeOpenText {
			qr = e.gradeOpen(&q, byQuestion[q.ID])
		} else {
			qr = judged(&q, byQuestion[q.ID], q.Points)
		}
		if qr.Status == StatusPendingReview {
			r.PendingReview = true
		}
		r.Score += qr.Earned
		r.MaxScore += q.Points
		r.Details = append(r.Details, qr)
	}

	Finalize(&r, exam.PassingScore)
	return r
}

func (e openTextEvaluator) gradeOpen(q *model.Question, resp *model.AttemptResponse) QuestionResult {
	cfg := model.OpenTextConfig{}
	if q.OpenText != nil {
		cfg = *q.OpenText
	}
	qr := QuestionResult{QuestionID: q.ID, Max: q.Points, Mode: string(cfg.Mode)}

	if resp == nil || !resp.Answered() {
		qr.Status = StatusUnanswered
		return qr
	}

	answer := strings.TrimSpace(resp.Answer)
	length := utf8.RuneCountInString(answer)
	if cfg.MinLength > 0 && length < cfg.MinLength {
		qr.Status = StatusIncorrect
		qr.Feedback = fmt.Sprintf("answer shorter than the minimum of %d characters", cfg.MinLength)
		return qr
	}
	if cfg.MaxLength > 0 && length > cfg.MaxLength {
		qr.Earned = q.Points * overLengthCredit
		qr.Status = StatusPartial
		qr.Feedback = fmt.Sprintf("answer longer than the maximum of %d characters", cfg.MaxLength)
		return qr
	}

	switch cfg.Mode {
	case model.GradingManual:
		qr.Status = StatusPendingReview
		qr.Feedback = "awaiting manual review"
		return qr
	case model.GradingKeywords:
		qr.Earned = e.keywordCredit(&cfg, answer, q.Points, &qr)
	case model.GradingSemantic:
		qr.Earned = e.semanticCredit(&cfg, answer, q.Points, &qr)
	default:
		semantic := e.semanticCredit(&cfg, answer, q.Points, &qr)
		if len(cfg.Keywords) > 0 {
			keyword := e.keywordCredit(&cfg, answer, q.Points, &qr)
			qr.Earned = semanticWeight*semantic + keywordWeight*keyword
		} else {
			qr.Earned = semantic
		}
	}

	switch {
	case qr.Earned >= q.Points:
		qr.Status = StatusCorrect
		qr.IsCorrect = true
	case qr.Earned > 0:
		qr.Status = StatusPartial
	default:
		qr.Status = StatusIncorrect
	}
	return qr
}

// keywordCredit awards matched weight over total weight. A missing required
// keyword zeroes the question regardless of other matches.
func (e openTextEvaluator) keywordCredit(cfg *model.OpenTextConfig, answer string, points float64, qr *QuestionResult) float64 {
	if len(cfg.Keywords) == 0 {
		qr.Feedback = "no keywords configured"
		return points
	}

	normalized := strings.Join(tokenize(answer), " ")
	var total, matched float64
	for _, kw := range cfg.Keywords {
		weight := kw.Weight
		if weight <= 0 {
			weight = 1
		}
		total += weight

		if keywordPresent(normalized, kw) {
			matched += weight
			qr.MatchedKeywords = append(qr.MatchedKeywords, kw.Word)
		} else if kw.Required {
			qr.MissingRequired = append(qr.MissingRequired, kw.Word)
		}
	}

	if len(qr.MissingRequired) > 0 {
		qr.Feedback = "required keyword missing: " + strings.Join(qr.MissingRequired, ", ")
		return 0
	}
	return points * matched / total
}

func keywordPresent(normalized string, kw model.Keyword) bool {
	if containsPhrase(normalized, kw.Word) {
		return true
	}
	for _, syn := range kw.Synonyms {
		if containsPhrase(normalized, syn) {
			return true
		}
	}
	return false
}

// semanticCredit gives full credit at or above the threshold, proportional
// credit from half the threshold up, and nothing below. A question without
// a model answer cannot be compared and earns full credit.
func (e openTextEvaluator) semanticCredit(cfg *model.OpenTextConfig, answer string, points float64, qr *QuestionResult) float64 {
	if strings.TrimSpace(cfg.ModelAnswer) == "" {
		qr.Feedback = "no model answer configured"
		return points
	}

	threshold := cfg.SimilarityThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultSimilarityThreshold
	}

	sim := e.sim.Similarity(answer, cfg.ModelAnswer)
	qr.Similarity = &sim

	switch {
	case sim >= threshold:
		return points
	case sim >= threshold/2:
		return points * sim / threshold
	default:
		return 0
	}
}

package scoring

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-attempts/internal/model"
)

var errNoExam = errors.New("submission has no exam")

// addBonus raises the score by bonus without exceeding max(MaxScore, score)
// and records the applied delta.
func addBonus(r *Result, name string, bonus float64, reason string) {
	if bonus <= 0 {
		return
	}
	ceiling := math.Max(r.MaxScore, r.Score)
	applied := math.Min(r.Score+bonus, ceiling) - r.Score
	if applied <= 0 {
		return
	}
	r.Score += applied
	r.Adjustments = append(r.Adjustments, Adjustment{Decorator: name, Points: applied, Reason: reason})
}

type timeBonus struct {
	threshold float64
	rate      float64
}

func (timeBonus) Name() string { return DecoratorTimeBonus }

func (d timeBonus) Decorate(sub Submission, r *Result) error {
	if sub.Exam == nil {
		return errNoExam
	}
	limit := sub.Exam.Duration()
	if limit <= 0 || sub.TimeSpent > time.Duration(float64(limit)*d.threshold) {
		return nil
	}
	addBonus(r, d.Name(), r.Score*d.rate, fmt.Sprintf("finished within %.0f%% of the time limit", d.threshold*100))
	return nil
}

type timePenalty struct {
	ratePerMinute float64
	maxRate       float64
}

func (timePenalty) Name() string { return DecoratorTimePenalty }

func (d timePenalty) Decorate(sub Submission, r *Result) error {
	if sub.Exam == nil {
		return errNoExam
	}
	limit := sub.Exam.Duration()
	over := sub.TimeSpent - limit
	if limit <= 0 || over <= 0 || r.Score <= 0 {
		return nil
	}

	minutes := math.Ceil(over.Minutes())
	rate := math.Min(minutes*d.ratePerMinute, d.maxRate)
	penalty := math.Min(r.Score*rate, r.Score)
	r.Score -= penalty
	r.Adjustments = append(r.Adjustments, Adjustment{
		Decorator: d.Name(),
		Points:    -penalty,
		Reason:    fmt.Sprintf("%.0f minute(s) over the time limit", minutes),
	})
	return nil
}

// longestStreak is the longest run of consecutive correct answers in
// question order.
func longestStreak(r *Result) int {
	best, run := 0, 0
	for _, d := range r.Details {
		if d.IsCorrect {
			run++
			if run > best {
				best = run
			}
			continue
		}
		run = 0
	}
	return best
}

type streakBonus struct {
	minStreak int
	perAnswer float64
}

func (streakBonus) Name() string { return DecoratorStreakBonus }

func (d streakBonus) Decorate(_ Submission, r *Result) error {
	streak := longestStreak(r)
	if streak < d.minStreak {
		return nil
	}
	addBonus(r, d.Name(), float64(streak)*d.perAnswer, fmt.Sprintf("%d correct answers in a row", streak))
	return nil
}

// Badge tags.
const (
	BadgePerfectScore = "perfect_score"
	BadgeHighAchiever = "high_achiever"
	BadgeSpeedRunner  = "speed_runner"
	BadgeStreakMaster = "streak_master"
	BadgeCleanSession = "clean_session"
)

type badges struct{}

func (badges) Name() string { return DecoratorBadges }

func (badges) Decorate(sub Submission, r *Result) error {
	pct := 0.0
	if r.MaxScore > 0 {
		pct = 100 * r.Score / r.MaxScore
	}

	if r.MaxScore > 0 && r.Score >= r.MaxScore {
		r.Badges = append(r.Badges, BadgePerfectScore)
	}
	if pct >= 90 {
		r.Badges = append(r.Badges, BadgeHighAchiever)
	}
	if sub.Exam != nil && sub.Exam.Duration() > 0 && sub.TimeSpent < sub.Exam.Duration()/4 {
		r.Badges = append(r.Badges, BadgeSpeedRunner)
	}
	if longestStreak(r) >= 5 {
		r.Badges = append(r.Badges, BadgeStreakMaster)
	}
	// Only a ledger known to be empty earns clean_session.
	if sub.AntiCheatEvents == 0 {
		r.Badges = append(r.Badges, BadgeCleanSession)
	}
	return nil
}

type detailedStats struct{}

func (detailedStats) Name() string { return DecoratorDetailedStats }

func (detailedStats) Decorate(sub Submission, r *Result) error {
	difficulty := make(map[uuid.UUID]model.Difficulty, len(sub.Questions))
	for _, q := range sub.Questions {
		difficulty[q.ID] = q.Difficulty
	}

	s := &Stats{ByDifficulty: make(map[string]DifficultyStats)}
	for _, d := range r.Details {
		switch d.Status {
		case StatusUnanswered:
			s.Unanswered++
		case StatusCorrect:
			s.Correct++
		case StatusIncorrect:
			s.Incorrect++
		case StatusPartial:
			s.Partial++
		case StatusPendingReview:
			s.PendingReview++
		}

		level := string(difficulty[d.QuestionID])
		if level == "" {
			level = string(model.DifficultyBeginner)
		}
		ds := s.ByDifficulty[level]
		ds.Total++
		if d.IsCorrect {
			ds.Correct++
		}
		ds.Earned += d.Earned
		ds.Max += d.Max
		s.ByDifficulty[level] = ds
	}
	s.Answered = len(r.Details) - s.Unanswered

	if s.Answered > 0 {
		s.Accuracy = 100 * float64(s.Correct) / float64(s.Answered)
	}
	if n := len(r.Details); n > 0 {
		s.AverageSecondsPerItem = sub.TimeSpent.Seconds() / float64(n)
	}

	r.Stats = s
	return nil
}

package scoring

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/stemsi/exstem-attempts/internal/model"
)

// Decorator names accepted by NewChain.
const (
	DecoratorTimeBonus     = "time_bonus"
	DecoratorTimePenalty   = "time_penalty"
	DecoratorStreakBonus   = "streak_bonus"
	DecoratorBadges        = "badges"
	DecoratorDetailedStats = "detailed_stats"
)

// canonicalOrder fixes the application order so results are reproducible
// whatever order the caller lists decorators in.
var canonicalOrder = map[string]int{
	DecoratorTimeBonus:     0,
	DecoratorTimePenalty:   1,
	DecoratorStreakBonus:   2,
	DecoratorBadges:        3,
	DecoratorDetailedStats: 4,
}

// ErrUnknownDecorator is returned by NewChain for an unrecognised name.
var ErrUnknownDecorator = errors.New("unknown score decorator")

// AntiCheatUnknown marks a submission whose ledger could not be read.
const AntiCheatUnknown = -1

// Submission is the read-only context a decorator sees.
type Submission struct {
	Exam      *model.Exam
	Questions []model.Question
	Responses []model.AttemptResponse
	TimeSpent time.Duration
	// AntiCheatEvents is the ledger length, or AntiCheatUnknown.
	AntiCheatEvents int
}

// Decorator layers a bonus, penalty or annotation onto an evaluated result.
type Decorator interface {
	Name() string
	Decorate(sub Submission, r *Result) error
}

// Chain applies decorators in canonical order.
type Chain struct {
	decorators []Decorator
}

// NewChain builds a chain from decorator names. Duplicates are collapsed.
func NewChain(names ...string) (*Chain, error) {
	seen := make(map[string]bool, len(names))
	c := &Chain{}
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		d, err := decoratorFor(name)
		if err != nil {
			return nil, err
		}
		c.decorators = append(c.decorators, d)
	}

	sort.SliceStable(c.decorators, func(i, j int) bool {
		return canonicalOrder[c.decorators[i].Name()] < canonicalOrder[c.decorators[j].Name()]
	})
	return c, nil
}

func decoratorFor(name string) (Decorator, error) {
	switch name {
	case DecoratorTimeBonus:
		return timeBonus{threshold: 0.5, rate: 0.10}, nil
	case DecoratorTimePenalty:
		return timePenalty{ratePerMinute: 0.05, maxRate: 0.50}, nil
	case DecoratorStreakBonus:
		return streakBonus{minStreak: 3, perAnswer: 0.5}, nil
	case DecoratorBadges:
		return badges{}, nil
	case DecoratorDetailedStats:
		return detailedStats{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDecorator, name)
	}
}

// Names lists the chain's decorators in application order.
func (c *Chain) Names() []string {
	out := make([]string, len(c.decorators))
	for i, d := range c.decorators {
		out[i] = d.Name()
	}
	return out
}

// Apply runs every decorator over a copy of base. A failing decorator is
// skipped, leaving the result as it was before that stage; its error is
// returned alongside the final result for logging. Percentage and pass
// flag are recomputed at the end.
func (c *Chain) Apply(sub Submission, base Result) (Result, []error) {
	current := base.clone()
	var errs []error

	for _, d := range c.decorators {
		next := current.clone()
		if err := safeDecorate(d, sub, &next); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.Name(), err))
			continue
		}
		current = next
	}

	passing := 0.0
	if sub.Exam != nil {
		passing = sub.Exam.PassingScore
	}
	Finalize(&current, passing)
	return current, errs
}

func safeDecorate(d Decorator, sub Submission, r *Result) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return d.Decorate(sub, r)
}

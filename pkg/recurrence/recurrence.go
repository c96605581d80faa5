// Package recurrence decides whether a date is an occurrence day of a quest and
// which window instance a date belongs to. Nothing here looks at completions.
package recurrence

import (
	"log/slog"
	"slices"
	"time"

	"github.com/hearthquest/quest-engine-common/pkg/common"
	"github.com/hearthquest/quest-engine-common/pkg/domain"
	"github.com/hearthquest/quest-engine-common/pkg/errors"
)

// lifetimeKey is the window key of quests without calendar gating.
const lifetimeKey = "lifetime"

// Window is one instance of a quest's recurrence period: a calendar day, or the
// whole lifetime for unlimited quests. Start is inclusive, End exclusive.
type Window struct {
	Start    time.Time
	End      time.Time
	Lifetime bool
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if w.Lifetime {
		return true
	}
	return !t.Before(w.Start) && t.Before(w.End)
}

// Key identifies the window instance, e.g. "2025-10-17" or "lifetime".
func (w Window) Key() string {
	if w.Lifetime {
		return lifetimeKey
	}
	return w.Start.Format(time.DateOnly)
}

// WindowFor returns the window instance ref belongs to.
// Every calendar-gated type uses the calendar day of ref, in ref's location.
func WindowFor(q *domain.Quest, ref time.Time) Window {
	if q.AvailabilityType == domain.AvailabilityUnlimited {
		return Window{Lifetime: true}
	}
	return Window{
		Start: common.StartOfDay(ref),
		End:   common.StartOfNextDay(ref),
	}
}

// WindowCap returns how many counted completions a user may have per window.
// capped is false for unlimited quests without a lifetime cap.
func WindowCap(q *domain.Quest) (limit int, capped bool) {
	switch q.AvailabilityType {
	case domain.AvailabilityUnlimited:
		if q.AvailabilityCount <= 0 {
			return 0, false
		}
		return q.AvailabilityCount, true
	case domain.AvailabilityFrequency:
		// AvailabilityCount carries the interval for this type.
		return 1, true
	default:
		return max(q.AvailabilityCount, 1), true
	}
}

// Validate reports recurrence rules that can never fire.
func Validate(q *domain.Quest) error {
	switch q.AvailabilityType {
	case domain.AvailabilityDaily, domain.AvailabilityUnlimited:
		return nil
	case domain.AvailabilityWeekly:
		if len(q.WeeklyRecurrenceDays) == 0 {
			return errors.ErrInvalidRecurrenceConfig(q.ID, "weekly quest has no recurrence days")
		}
		for _, d := range q.WeeklyRecurrenceDays {
			if d < time.Sunday || d > time.Saturday {
				return errors.ErrInvalidRecurrenceConfig(q.ID, "weekday out of range 0..6")
			}
		}
		return nil
	case domain.AvailabilityMonthly:
		if len(q.MonthlyRecurrenceDays) == 0 {
			return errors.ErrInvalidRecurrenceConfig(q.ID, "monthly quest has no recurrence days")
		}
		for _, d := range q.MonthlyRecurrenceDays {
			if d < 1 || d > 31 {
				return errors.ErrInvalidRecurrenceConfig(q.ID, "day of month out of range 1..31")
			}
		}
		return nil
	case domain.AvailabilityFrequency:
		if q.AvailabilityCount <= 0 {
			return errors.ErrInvalidRecurrenceConfig(q.ID, "frequency interval must be positive")
		}
		return nil
	default:
		return errors.ErrInvalidRecurrenceConfig(q.ID, "unknown availability type '"+string(q.AvailabilityType)+"'")
	}
}

// OccursOn reports whether ref is an occurrence day of q.
// An invalid rule never occurs; the error explains why.
//
// Monthly days beyond the length of ref's month never fire that month. A quest on
// day 31 skips February, April, June, September and November.
func OccursOn(q *domain.Quest, ref time.Time) (bool, error) {
	if err := Validate(q); err != nil {
		return false, err
	}

	switch q.AvailabilityType {
	case domain.AvailabilityWeekly:
		return slices.Contains(q.WeeklyRecurrenceDays, ref.Weekday()), nil
	case domain.AvailabilityMonthly:
		return slices.Contains(q.MonthlyRecurrenceDays, ref.Day()), nil
	case domain.AvailabilityFrequency:
		days := common.DaysBetween(q.EffectiveStartDate(), ref)
		return days >= 0 && days%q.AvailabilityCount == 0, nil
	default:
		return true, nil
	}
}

// Evaluator wraps OccursOn and logs invalid rules as authoring mistakes.
type Evaluator struct {
	logger *slog.Logger
}

// NewEvaluator creates a new Evaluator.
func NewEvaluator(logger *slog.Logger) *Evaluator {
	return &Evaluator{logger: logger}
}

// IsOccurrenceDay reports whether ref is an occurrence day of q.
// Invalid rules are treated as "never occurs" and logged, not returned.
func (e *Evaluator) IsOccurrenceDay(q *domain.Quest, ref time.Time) bool {
	ok, err := OccursOn(q, ref)
	if err != nil {
		e.logger.Warn("Quest recurrence rule never fires, check quest authoring",
			"quest_id", q.ID,
			"availability_type", q.AvailabilityType,
			"error", err,
		)
		return false
	}
	return ok
}

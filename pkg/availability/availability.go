// Package availability decides, for one quest, user and reference date, whether
// the quest is actionable. The decision is computed fresh from the quest and its
// completion history on every call and is never stored.
package availability

import (
	"time"

	"github.com/hearthquest/quest-engine-common/pkg/common"
	"github.com/hearthquest/quest-engine-common/pkg/domain"
	"github.com/hearthquest/quest-engine-common/pkg/recurrence"
)

// State is the availability of a quest instance for a user on a date.
type State string

const (
	StateLocked          State = "locked"
	StateDismissed       State = "dismissed"
	StateClaimedByOther  State = "claimed_by_other"
	StateExhausted       State = "exhausted"
	StatePendingApproval State = "pending_approval"
	StateOpen            State = "open"
)

// IsActionable returns true if the quest can be completed in this state.
func (s State) IsActionable() bool {
	return s == StateOpen
}

// IsVisible returns true if the quest should be listed to the user.
// Pending quests are shown but not re-completable.
func (s State) IsVisible() bool {
	return s == StateOpen || s == StatePendingApproval
}

// LockReason explains a Locked decision.
type LockReason string

const (
	LockReasonNone              LockReason = ""
	LockReasonInactive          LockReason = "inactive"
	LockReasonNotAssigned       LockReason = "not_assigned"
	LockReasonInvalidRecurrence LockReason = "invalid_recurrence"
	LockReasonNotOccurrenceDay  LockReason = "not_occurrence_day"
)

// Decision is the outcome of Decide.
type Decision struct {
	State  State
	Reason LockReason

	// Window is the recurrence window instance the reference date falls in.
	Window recurrence.Window

	// Occurrences is how many counted completions the user has in Window.
	Occurrences int

	// Cap is the per-window limit; Capped is false for uncapped Unlimited quests.
	Cap    int
	Capped bool
}

// OccurrencesInCurrentWindow counts the user's completions of q that consume an
// occurrence of the window ref falls in. Rejected completions never count; pending
// ones count only when the quest has no approval step.
func OccurrencesInCurrentWindow(q *domain.Quest, userID string, completions []domain.QuestCompletion, ref time.Time) int {
	window := recurrence.WindowFor(q, ref)

	n := 0
	for i := range completions {
		c := &completions[i]
		if c.QuestID != q.ID || c.UserID != userID {
			continue
		}
		if !window.Contains(c.CompletedAt) {
			continue
		}
		if c.CountsToward(q.RequiresApproval) {
			n++
		}
	}
	return n
}

// Decider composes the recurrence evaluator with the completion ledger and the
// assignment, dismissal and claim rules.
type Decider struct {
	evaluator *recurrence.Evaluator
}

// NewDecider creates a new Decider.
func NewDecider(evaluator *recurrence.Evaluator) *Decider {
	return &Decider{evaluator: evaluator}
}

// Decide returns the availability of q for userID on ref.
//
// completions must hold the quest's completions for all users: exclusive Venture
// checks need other users' history. The first matching state wins, in order
// Locked, Dismissed, ClaimedByOther, Exhausted, PendingApproval, Open.
func (d *Decider) Decide(q *domain.Quest, userID string, completions []domain.QuestCompletion, ref time.Time) Decision {
	window := recurrence.WindowFor(q, ref)
	limit, capped := recurrence.WindowCap(q)

	decision := Decision{
		Window: window,
		Cap:    limit,
		Capped: capped,
	}

	if reason := d.lockReason(q, userID, ref); reason != LockReasonNone {
		decision.State = StateLocked
		decision.Reason = reason
		return decision
	}

	if isDismissed(q, userID, ref) {
		decision.State = StateDismissed
		return decision
	}

	if q.IsExclusive() && isClaimedByOther(q, userID, completions, window) {
		decision.State = StateClaimedByOther
		return decision
	}

	decision.Occurrences = OccurrencesInCurrentWindow(q, userID, completions, ref)
	if capped && decision.Occurrences >= limit {
		decision.State = StateExhausted
		return decision
	}

	if hasPending(q, userID, completions, window) {
		decision.State = StatePendingApproval
		return decision
	}

	decision.State = StateOpen
	return decision
}

func (d *Decider) lockReason(q *domain.Quest, userID string, ref time.Time) LockReason {
	switch {
	case !q.IsActive:
		return LockReasonInactive
	case !q.IsAssignedTo(userID):
		return LockReasonNotAssigned
	case !d.evaluator.IsOccurrenceDay(q, ref):
		if recurrence.Validate(q) != nil {
			return LockReasonInvalidRecurrence
		}
		return LockReasonNotOccurrenceDay
	default:
		return LockReasonNone
	}
}

func isDismissed(q *domain.Quest, userID string, ref time.Time) bool {
	for _, dm := range q.Dismissals {
		if dm.UserID == userID && common.SameDay(dm.Date, ref) {
			return true
		}
	}
	return false
}

// isClaimedByOther applies per-scope exclusivity. Explicit claims in the quest's
// scope block everyone who did not also claim; a live completion by another user
// in the same scope and window blocks regardless.
func isClaimedByOther(q *domain.Quest, userID string, completions []domain.QuestCompletion, window recurrence.Window) bool {
	scope := q.Scope()

	claimedByOther, claimedBySelf := false, false
	for _, cl := range q.Claims {
		if cl.GuildID != scope.GuildID {
			continue
		}
		if cl.UserID == userID {
			claimedBySelf = true
		} else {
			claimedByOther = true
		}
	}
	if claimedByOther && !claimedBySelf {
		return true
	}

	for i := range completions {
		c := &completions[i]
		if c.QuestID != q.ID || c.UserID == userID || c.Status == domain.CompletionStatusRejected {
			continue
		}
		if c.Scope() == scope && window.Contains(c.CompletedAt) {
			return true
		}
	}
	return false
}

func hasPending(q *domain.Quest, userID string, completions []domain.QuestCompletion, window recurrence.Window) bool {
	for i := range completions {
		c := &completions[i]
		if c.QuestID == q.ID && c.UserID == userID && c.Status == domain.CompletionStatusPending && window.Contains(c.CompletedAt) {
			return true
		}
	}
	return false
}

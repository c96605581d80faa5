package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hearthquest/quest-engine-common/pkg/domain"
)

// CompletionInsert is a completion to record together with the guard that must
// still hold when it is written. The guard is checked and the row inserted as one
// atomic step, which closes the race between checking availability and completing.
type CompletionInsert struct {
	Completion domain.QuestCompletion

	// WindowStart and WindowEnd bound the recurrence window (end exclusive).
	// Lifetime windows ignore both.
	WindowStart time.Time
	WindowEnd   time.Time
	Lifetime    bool

	// Limit is the most live (pending or approved) completions the user may hold in
	// the window for this quest and scope. Zero means uncapped.
	Limit int
}

// LockKey is the key completion inserts for the same slot serialize on.
// Exclusive claims serialize all users of the scope and window; capped windows only
// the user's own inserts.
func (in *CompletionInsert) LockKey() string {
	c := &in.Completion
	if c.ClaimKey != "" {
		return "claim:" + c.ClaimKey
	}
	return "quest:" + c.QuestID + "|" + c.Scope().Key() + "|user:" + c.UserID
}

// inWindow reports whether t falls inside the insert's window.
func (in *CompletionInsert) inWindow(t time.Time) bool {
	if in.Lifetime {
		return true
	}
	return !t.Before(in.WindowStart) && t.Before(in.WindowEnd)
}

// BalanceDelta is one signed change to a balance row.
type BalanceDelta struct {
	UserID       string
	Scope        domain.Scope
	RewardTypeID string
	Delta        decimal.Decimal

	// Earned marks settlement credits (and their reversals): Delta is also added to
	// the lifetime earned total. Exchange deltas leave Earned unchanged.
	Earned bool
}

// QuestStore reads quests. The engine never writes quests.
type QuestStore interface {
	// GetQuest retrieves a quest by ID.
	// Returns nil if the quest does not exist.
	GetQuest(ctx context.Context, questID string) (*domain.Quest, error)

	// GetQuestsAssignedTo retrieves every quest userID is assigned to, active or not.
	GetQuestsAssignedTo(ctx context.Context, userID string) ([]*domain.Quest, error)

	// GetQuestsByIDs retrieves the quests with the given IDs. Missing IDs are skipped.
	GetQuestsByIDs(ctx context.Context, questIDs []string) ([]*domain.Quest, error)
}

// CompletionStore records and reads completions. Completions are never deleted.
type CompletionStore interface {
	// GetCompletions retrieves the completions of a quest, for all users when userID is empty.
	GetCompletions(ctx context.Context, questID, userID string) ([]domain.QuestCompletion, error)

	// GetCompletion retrieves a completion by ID.
	// Returns nil if the completion does not exist.
	GetCompletion(ctx context.Context, completionID string) (*domain.QuestCompletion, error)

	// GetUserCompletions retrieves all completions of a user in a scope, oldest first.
	GetUserCompletions(ctx context.Context, userID string, scope domain.Scope) ([]domain.QuestCompletion, error)

	// InsertCompletion writes a completion if its guard still holds.
	// Returns QUEST_ALREADY_CLAIMED when another user holds the exclusive claim and
	// QUEST_NOT_AVAILABLE when the window cap is already reached.
	InsertCompletion(ctx context.Context, in CompletionInsert) error

	// UpdateCompletionStatus sets the status and review time of a completion.
	// Returns COMPLETION_NOT_FOUND if no row was updated.
	UpdateCompletionStatus(ctx context.Context, completionID string, status domain.CompletionStatus, reviewedAt time.Time) error
}

// BalanceStore reads and mutates the balance ledger.
type BalanceStore interface {
	// GetBalance retrieves a balance row. A missing row is a zero balance.
	GetBalance(ctx context.Context, userID string, scope domain.Scope, rewardTypeID string) (domain.Balance, error)

	// GetBalances retrieves every balance row of a user in a scope.
	GetBalances(ctx context.Context, userID string, scope domain.Scope) ([]domain.Balance, error)

	// ApplyDelta applies one delta.
	// Returns INSUFFICIENT_BALANCE, changing nothing, if the amount would go negative.
	ApplyDelta(ctx context.Context, delta BalanceDelta) error

	// ApplyDeltas applies all deltas or none of them.
	// Returns INSUFFICIENT_BALANCE, changing nothing, if any amount would go negative.
	ApplyDeltas(ctx context.Context, deltas []BalanceDelta) error
}

// TrophyStore reads trophy definitions and records awards.
type TrophyStore interface {
	// GetTrophies retrieves all trophy definitions in declaration order.
	GetTrophies(ctx context.Context) ([]domain.Trophy, error)

	// GetUserTrophies retrieves the trophies a user holds in a scope.
	GetUserTrophies(ctx context.Context, userID string, scope domain.Scope) ([]domain.UserTrophy, error)

	// InsertUserTrophy records an award. Re-inserting the same (user, trophy, scope)
	// is a no-op and reports inserted=false.
	InsertUserTrophy(ctx context.Context, ut domain.UserTrophy) (inserted bool, err error)
}

// Store is everything the engine reads and writes.
type Store interface {
	QuestStore
	CompletionStore
	BalanceStore
	TrophyStore

	// BeginTx starts a transaction and returns a transactional store.
	// Completion and exchange settlement run inside one so that no partial debit or
	// orphan completion is ever visible.
	BeginTx(ctx context.Context) (TxStore, error)
}

// TxStore is a Store bound to one transaction.
type TxStore interface {
	Store

	// GetBalanceForUpdate retrieves a balance row and locks it until the transaction ends.
	GetBalanceForUpdate(ctx context.Context, userID string, scope domain.Scope, rewardTypeID string) (domain.Balance, error)

	// Commit commits the transaction.
	Commit() error

	// Rollback rolls back the transaction. Calling it after Commit is a no-op.
	Rollback() error
}

// Package engine exposes the quest engine operations to the surrounding app:
// availability, completion settlement, review, exchange, rank and trophies.
//
// Every operation reads one settings snapshot and talks to the store only
// through repository.Store. Ledger mutations run in a single store transaction.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hearthquest/quest-engine-common/pkg/availability"
	"github.com/hearthquest/quest-engine-common/pkg/cache"
	"github.com/hearthquest/quest-engine-common/pkg/domain"
	"github.com/hearthquest/quest-engine-common/pkg/errors"
	"github.com/hearthquest/quest-engine-common/pkg/exchange"
	"github.com/hearthquest/quest-engine-common/pkg/rank"
	"github.com/hearthquest/quest-engine-common/pkg/recurrence"
	"github.com/hearthquest/quest-engine-common/pkg/repository"
	"github.com/hearthquest/quest-engine-common/pkg/trophy"
)

// Engine is the quest availability and reward valuation engine.
// It holds no mutable state of its own and is safe for concurrent use.
type Engine struct {
	store    repository.Store
	settings cache.SettingsCache
	decider  *availability.Decider
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine creates an engine on top of a store and a settings source.
func NewEngine(store repository.Store, settings cache.SettingsCache, logger *slog.Logger) *Engine {
	return &Engine{
		store:    store,
		settings: settings,
		decider:  availability.NewDecider(recurrence.NewEvaluator(logger)),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// QuestAvailability pairs a quest with its decision for one user and date.
type QuestAvailability struct {
	Quest    *domain.Quest
	Decision availability.Decision
}

// CompletionResult is the outcome of CompleteQuest.
type CompletionResult struct {
	Completion domain.QuestCompletion
	// Decision is the availability that admitted the completion.
	Decision availability.Decision
	// Credited is empty while the completion awaits approval.
	Credited    []domain.RewardAmount
	NewTrophies []string
}

// ReviewResult is the outcome of ReviewCompletion.
type ReviewResult struct {
	Completion     domain.QuestCompletion
	PreviousStatus domain.CompletionStatus
	Credited       []domain.RewardAmount
	Reversed       []domain.RewardAmount
	NewTrophies    []string
}

// ExchangeResult is the outcome of ExecuteExchange.
type ExchangeResult struct {
	Quote       *exchange.Quote
	FromBalance domain.Balance
	ToBalance   domain.Balance
}

// IsAvailable decides the state of a quest for userID on date.
func (e *Engine) IsAvailable(ctx context.Context, questID, userID string, date time.Time) (availability.Decision, error) {
	quest, err := e.store.GetQuest(ctx, questID)
	if err != nil {
		return availability.Decision{}, err
	}
	if quest == nil {
		return availability.Decision{}, errors.ErrQuestNotFound(questID)
	}

	completions, err := e.store.GetCompletions(ctx, questID, "")
	if err != nil {
		return availability.Decision{}, err
	}

	return e.decider.Decide(quest, userID, completions, date), nil
}

// AvailableQuests lists the quests assigned to userID that are open or awaiting
// approval on date.
func (e *Engine) AvailableQuests(ctx context.Context, userID string, date time.Time) ([]QuestAvailability, error) {
	quests, err := e.store.GetQuestsAssignedTo(ctx, userID)
	if err != nil {
		return nil, err
	}

	var out []QuestAvailability
	for _, q := range quests {
		completions, err := e.store.GetCompletions(ctx, q.ID, "")
		if err != nil {
			return nil, err
		}
		decision := e.decider.Decide(q, userID, completions, date)
		if decision.State.IsVisible() {
			out = append(out, QuestAvailability{Quest: q, Decision: decision})
		}
	}
	return out, nil
}

// CompleteQuest records a completion of questID by userID at the given time.
//
// Availability is decided again inside the transaction and the store enforces
// the window cap and exclusive claim on insert, so two racing completions of a
// single-slot quest leave exactly one row. Without an approval step the
// completion is approved on the spot and its rewards are credited in the same
// transaction; trophies are evaluated after commit.
//
// Returns:
//   - QUEST_NOT_FOUND: no such quest
//   - QUEST_ALREADY_CLAIMED: an exclusive Venture belongs to someone else
//   - QUEST_NOT_AVAILABLE: any other state than open
func (e *Engine) CompleteQuest(ctx context.Context, questID, userID string, at time.Time) (*CompletionResult, error) {
	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	quest, err := tx.GetQuest(ctx, questID)
	if err != nil {
		return nil, err
	}
	if quest == nil {
		return nil, errors.ErrQuestNotFound(questID)
	}

	completions, err := tx.GetCompletions(ctx, questID, "")
	if err != nil {
		return nil, err
	}

	decision := e.decider.Decide(quest, userID, completions, at)
	switch decision.State {
	case availability.StateOpen:
	case availability.StateClaimedByOther:
		return nil, errors.ErrQuestAlreadyClaimed(questID)
	default:
		return nil, errors.ErrQuestNotAvailable(questID, string(decision.State))
	}

	status := domain.CompletionStatusApproved
	if quest.RequiresApproval {
		status = domain.CompletionStatusPending
	}

	completion := domain.QuestCompletion{
		ID:          uuid.NewString(),
		QuestID:     quest.ID,
		UserID:      userID,
		CompletedAt: at,
		Status:      status,
		GuildID:     quest.GroupID,
	}
	if quest.IsExclusive() {
		completion.ClaimKey = claimKey(quest, decision.Window)
	}

	in := repository.CompletionInsert{
		Completion:  completion,
		WindowStart: decision.Window.Start,
		WindowEnd:   decision.Window.End,
		Lifetime:    decision.Window.Lifetime,
	}
	if decision.Capped {
		in.Limit = decision.Cap
	}

	if err := tx.InsertCompletion(ctx, in); err != nil {
		return nil, err
	}

	result := &CompletionResult{
		Completion: completion,
		Decision:   decision,
	}

	if status == domain.CompletionStatusApproved {
		credited, err := e.settle(ctx, tx, quest, completion, decimal.NewFromInt(1))
		if err != nil {
			return nil, err
		}
		result.Credited = credited
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	e.logger.Info("Quest completion recorded",
		"quest_id", quest.ID,
		"user_id", userID,
		"completion_id", completion.ID,
		"status", completion.Status,
		"window", decision.Window.Key(),
	)

	if status == domain.CompletionStatusApproved {
		result.NewTrophies = e.evaluateAfterSettlement(ctx, userID, completion.Scope())
	}

	return result, nil
}

// ReviewCompletion moves a completion to approved or rejected.
//
// Allowed transitions:
//   - pending -> approved: rewards are credited
//   - pending -> rejected: nothing else changes, the user may retry
//   - approved -> rejected: rewards are debited; fails with INSUFFICIENT_BALANCE
//     if they were already spent
//
// Trophies are never revoked by a reversal.
func (e *Engine) ReviewCompletion(ctx context.Context, completionID string, status domain.CompletionStatus) (*ReviewResult, error) {
	if status != domain.CompletionStatusApproved && status != domain.CompletionStatusRejected {
		return nil, errors.ErrInvalidInput("status", "must be approved or rejected")
	}

	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	completion, err := tx.GetCompletion(ctx, completionID)
	if err != nil {
		return nil, err
	}
	if completion == nil {
		return nil, errors.ErrCompletionNotFound(completionID)
	}

	previous := completion.Status
	if !canTransition(previous, status) {
		return nil, errors.ErrInvalidStatusTransition(string(previous), string(status))
	}

	quest, err := tx.GetQuest(ctx, completion.QuestID)
	if err != nil {
		return nil, err
	}
	if quest == nil {
		return nil, errors.ErrQuestNotFound(completion.QuestID)
	}

	reviewedAt := e.now()
	if err := tx.UpdateCompletionStatus(ctx, completionID, status, reviewedAt); err != nil {
		return nil, err
	}
	completion.Status = status
	completion.ReviewedAt = &reviewedAt

	result := &ReviewResult{
		Completion:     *completion,
		PreviousStatus: previous,
	}

	switch {
	case status == domain.CompletionStatusApproved:
		result.Credited, err = e.settle(ctx, tx, quest, *completion, decimal.NewFromInt(1))
	case previous == domain.CompletionStatusApproved:
		result.Reversed, err = e.settle(ctx, tx, quest, *completion, decimal.NewFromInt(-1))
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	e.logger.Info("Quest completion reviewed",
		"completion_id", completionID,
		"quest_id", quest.ID,
		"user_id", completion.UserID,
		"from", previous,
		"to", status,
	)

	if status == domain.CompletionStatusApproved {
		result.NewTrophies = e.evaluateAfterSettlement(ctx, completion.UserID, completion.Scope())
	}

	return result, nil
}

// QuoteExchange prices buying desired units of toID with fromID from the user's
// current balance in scope. Nothing is written.
func (e *Engine) QuoteExchange(ctx context.Context, userID string, scope domain.Scope, fromID, toID string, desired decimal.Decimal) (*exchange.Quote, error) {
	settings := e.settings.Snapshot().Settings

	balance, err := e.store.GetBalance(ctx, userID, scope, fromID)
	if err != nil {
		return nil, err
	}

	return exchange.NewQuote(settings, fromID, toID, desired, balance.Amount)
}

// ExecuteExchange re-quotes against the locked source balance and, if the
// settled cost fits, debits fromID and credits toID in one transaction.
func (e *Engine) ExecuteExchange(ctx context.Context, userID string, scope domain.Scope, fromID, toID string, desired decimal.Decimal) (*ExchangeResult, error) {
	settings := e.settings.Snapshot().Settings

	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	balance, err := tx.GetBalanceForUpdate(ctx, userID, scope, fromID)
	if err != nil {
		return nil, err
	}

	quote, err := exchange.NewQuote(settings, fromID, toID, desired, balance.Amount)
	if err != nil {
		return nil, err
	}
	if !quote.Affordable() {
		return nil, errors.ErrInsufficientBalance(fromID, quote.SettledFromAmount.String(), balance.Amount.String())
	}

	err = tx.ApplyDeltas(ctx, []repository.BalanceDelta{
		{UserID: userID, Scope: scope, RewardTypeID: fromID, Delta: quote.SettledFromAmount.Neg()},
		{UserID: userID, Scope: scope, RewardTypeID: toID, Delta: quote.DesiredToAmount},
	})
	if err != nil {
		return nil, err
	}

	fromBalance, err := tx.GetBalance(ctx, userID, scope, fromID)
	if err != nil {
		return nil, err
	}
	toBalance, err := tx.GetBalance(ctx, userID, scope, toID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	e.logger.Info("Exchange settled",
		"user_id", userID,
		"scope", scope.Key(),
		"from", fromID,
		"to", toID,
		"debited", quote.SettledFromAmount.String(),
		"credited", quote.DesiredToAmount.String(),
		"fee", quote.Fee.String(),
	)

	return &ExchangeResult{
		Quote:       quote,
		FromBalance: fromBalance,
		ToBalance:   toBalance,
	}, nil
}

// ExchangeRates returns the display rates of every reward type that has a rate,
// in registry order.
func (e *Engine) ExchangeRates() ([]exchange.RateView, error) {
	settings := e.settings.Snapshot().Settings

	var views []exchange.RateView
	for _, rt := range settings.RewardTypes {
		if _, ok := settings.Rate(rt.ID); !ok {
			continue
		}
		view, err := exchange.Rates(settings, rt.ID)
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}
	return views, nil
}

// CurrentRank returns the rank of userID in scope from the lifetime earned total
// of the ranking reward type.
func (e *Engine) CurrentRank(ctx context.Context, userID string, scope domain.Scope) (rank.Progress, error) {
	snap := e.settings.Snapshot()

	balance, err := e.store.GetBalance(ctx, userID, scope, snap.Settings.RankRewardID)
	if err != nil {
		return rank.Progress{}, err
	}

	return snap.Ladder.Progress(balance.Earned), nil
}

// EvaluateTrophies awards every automatic trophy userID newly satisfies in scope
// and returns their IDs. Running it twice on unchanged history awards nothing
// the second time.
func (e *Engine) EvaluateTrophies(ctx context.Context, userID string, scope domain.Scope) ([]string, error) {
	snap := e.settings.Snapshot()

	trophies, err := e.store.GetTrophies(ctx)
	if err != nil {
		return nil, err
	}
	if len(trophies) == 0 {
		return nil, nil
	}

	facts, err := e.loadFacts(ctx, userID, scope, snap)
	if err != nil {
		return nil, err
	}

	existing, err := e.store.GetUserTrophies(ctx, userID, scope)
	if err != nil {
		return nil, err
	}

	var awarded []string
	for _, trophyID := range trophy.Evaluate(userID, scope, facts, snap.Ladder, existing, trophies) {
		inserted, err := e.store.InsertUserTrophy(ctx, domain.UserTrophy{
			ID:        uuid.NewString(),
			UserID:    userID,
			TrophyID:  trophyID,
			Scope:     scope,
			AwardedAt: e.now(),
		})
		if err != nil {
			return awarded, err
		}
		if !inserted {
			continue
		}

		awarded = append(awarded, trophyID)
		e.logger.Info("Trophy awarded",
			"user_id", userID,
			"trophy_id", trophyID,
			"scope", scope.Key(),
		)
	}

	return awarded, nil
}

func (e *Engine) loadFacts(ctx context.Context, userID string, scope domain.Scope, snap *cache.Snapshot) (trophy.Facts, error) {
	completions, err := e.store.GetUserCompletions(ctx, userID, scope)
	if err != nil {
		return trophy.Facts{}, err
	}

	seen := make(map[string]bool)
	var questIDs []string
	for _, c := range completions {
		if !seen[c.QuestID] {
			seen[c.QuestID] = true
			questIDs = append(questIDs, c.QuestID)
		}
	}

	quests := make(map[string]*domain.Quest, len(questIDs))
	if len(questIDs) > 0 {
		list, err := e.store.GetQuestsByIDs(ctx, questIDs)
		if err != nil {
			return trophy.Facts{}, err
		}
		for _, q := range list {
			quests[q.ID] = q
		}
	}

	balances, err := e.store.GetBalances(ctx, userID, scope)
	if err != nil {
		return trophy.Facts{}, err
	}
	earned := make(map[string]decimal.Decimal, len(balances))
	for _, b := range balances {
		earned[b.RewardTypeID] = b.Earned
	}

	_, rankIndex := snap.Ladder.Current(earned[snap.Settings.RankRewardID])

	return trophy.NewFacts(completions, quests, earned, rankIndex), nil
}

// evaluateAfterSettlement runs trophy evaluation once a settlement is committed.
// The settlement stands even if evaluation fails.
func (e *Engine) evaluateAfterSettlement(ctx context.Context, userID string, scope domain.Scope) []string {
	awarded, err := e.EvaluateTrophies(ctx, userID, scope)
	if err != nil {
		e.logger.Error("Trophy evaluation failed after settlement",
			"user_id", userID,
			"scope", scope.Key(),
			"error", err,
		)
	}
	return awarded
}

// settle applies the quest's rewards times sign to the completer's balances in
// the completion's scope, counting toward the lifetime earned totals.
func (e *Engine) settle(ctx context.Context, tx repository.TxStore, quest *domain.Quest, c domain.QuestCompletion, sign decimal.Decimal) ([]domain.RewardAmount, error) {
	scope := c.Scope()

	var deltas []repository.BalanceDelta
	var applied []domain.RewardAmount
	for _, r := range quest.Rewards {
		if !r.Amount.IsPositive() {
			continue
		}
		deltas = append(deltas, repository.BalanceDelta{
			UserID:       c.UserID,
			Scope:        scope,
			RewardTypeID: r.RewardTypeID,
			Delta:        r.Amount.Mul(sign),
			Earned:       true,
		})
		applied = append(applied, r)
	}
	if len(deltas) == 0 {
		return nil, nil
	}

	if err := tx.ApplyDeltas(ctx, deltas); err != nil {
		return nil, err
	}
	return applied, nil
}

func canTransition(from, to domain.CompletionStatus) bool {
	switch from {
	case domain.CompletionStatusPending:
		return to == domain.CompletionStatusApproved || to == domain.CompletionStatusRejected
	case domain.CompletionStatusApproved:
		return to == domain.CompletionStatusRejected
	default:
		return false
	}
}

// claimKey identifies the single slot of an exclusive Venture: one per quest,
// scope and window instance.
func claimKey(q *domain.Quest, w recurrence.Window) string {
	return q.ID + "|" + q.Scope().Key() + "|" + w.Key()
}

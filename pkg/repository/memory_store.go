package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hearthquest/quest-engine-common/pkg/domain"
	"github.com/hearthquest/quest-engine-common/pkg/errors"
)

// balanceKey identifies one balance row.
type balanceKey struct {
	userID   string
	scope    string
	rewardID string
}

// memoryState is the full content of a MemoryStore.
type memoryState struct {
	quests       map[string]*domain.Quest
	completions  []domain.QuestCompletion
	balances     map[balanceKey]domain.Balance
	trophies     []domain.Trophy
	userTrophies []domain.UserTrophy
}

func newMemoryState() memoryState {
	return memoryState{
		quests:   make(map[string]*domain.Quest),
		balances: make(map[balanceKey]domain.Balance),
	}
}

// clone copies everything a transaction may mutate. Quests and trophies are
// read-only to the engine, so their pointers are shared.
func (s *memoryState) clone() memoryState {
	c := memoryState{
		quests:       make(map[string]*domain.Quest, len(s.quests)),
		completions:  slices.Clone(s.completions),
		balances:     make(map[balanceKey]domain.Balance, len(s.balances)),
		trophies:     slices.Clone(s.trophies),
		userTrophies: slices.Clone(s.userTrophies),
	}
	for k, v := range s.quests {
		c.quests[k] = v
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	return c
}

// MemoryStore is an in-process Store for tests and single-process deployments.
//
// A transaction holds the store's write lock from BeginTx until Commit or Rollback,
// so transactions are fully serialized. Reads outside a transaction take the read
// lock. Calling non-transactional methods from a goroutine that holds an open
// transaction deadlocks; use the TxStore instead.
type MemoryStore struct {
	mu    sync.RWMutex
	state memoryState
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: newMemoryState(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SaveQuest creates or replaces a quest. Quests are authored by the surrounding app.
func (m *MemoryStore) SaveQuest(q *domain.Quest) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *q
	m.state.quests[q.ID] = &cp
}

// SaveTrophy creates or replaces a trophy definition, keeping declaration order.
func (m *MemoryStore) SaveTrophy(t domain.Trophy) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.state.trophies {
		if m.state.trophies[i].ID == t.ID {
			m.state.trophies[i] = t
			return
		}
	}
	m.state.trophies = append(m.state.trophies, t)
}

// GetQuest retrieves a quest by ID.
func (m *MemoryStore) GetQuest(ctx context.Context, questID string) (*domain.Quest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.getQuest(questID), nil
}

// GetQuestsAssignedTo retrieves every quest userID is assigned to.
func (m *MemoryStore) GetQuestsAssignedTo(ctx context.Context, userID string) ([]*domain.Quest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.getQuestsAssignedTo(userID), nil
}

// GetQuestsByIDs retrieves the quests with the given IDs.
func (m *MemoryStore) GetQuestsByIDs(ctx context.Context, questIDs []string) ([]*domain.Quest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.getQuestsByIDs(questIDs), nil
}

// GetCompletions retrieves the completions of a quest.
func (m *MemoryStore) GetCompletions(ctx context.Context, questID, userID string) ([]domain.QuestCompletion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.getCompletions(questID, userID), nil
}

// GetCompletion retrieves a completion by ID.
func (m *MemoryStore) GetCompletion(ctx context.Context, completionID string) (*domain.QuestCompletion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.getCompletion(completionID), nil
}

// GetUserCompletions retrieves all completions of a user in a scope.
func (m *MemoryStore) GetUserCompletions(ctx context.Context, userID string, scope domain.Scope) ([]domain.QuestCompletion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.getUserCompletions(userID, scope), nil
}

// InsertCompletion writes a completion if its guard still holds.
func (m *MemoryStore) InsertCompletion(ctx context.Context, in CompletionInsert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.insertCompletion(in)
}

// UpdateCompletionStatus sets the status of a completion.
func (m *MemoryStore) UpdateCompletionStatus(ctx context.Context, completionID string, status domain.CompletionStatus, reviewedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.updateCompletionStatus(completionID, status, reviewedAt)
}

// GetBalance retrieves a balance row.
func (m *MemoryStore) GetBalance(ctx context.Context, userID string, scope domain.Scope, rewardTypeID string) (domain.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.getBalance(userID, scope, rewardTypeID), nil
}

// GetBalances retrieves every balance row of a user in a scope.
func (m *MemoryStore) GetBalances(ctx context.Context, userID string, scope domain.Scope) ([]domain.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.getBalances(userID, scope), nil
}

// ApplyDelta applies one delta.
func (m *MemoryStore) ApplyDelta(ctx context.Context, delta BalanceDelta) error {
	return m.ApplyDeltas(ctx, []BalanceDelta{delta})
}

// ApplyDeltas applies all deltas or none of them.
func (m *MemoryStore) ApplyDeltas(ctx context.Context, deltas []BalanceDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.applyDeltas(deltas, m.now())
}

// GetTrophies retrieves all trophy definitions.
func (m *MemoryStore) GetTrophies(ctx context.Context) ([]domain.Trophy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.state.trophies), nil
}

// GetUserTrophies retrieves the trophies a user holds in a scope.
func (m *MemoryStore) GetUserTrophies(ctx context.Context, userID string, scope domain.Scope) ([]domain.UserTrophy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.getUserTrophies(userID, scope), nil
}

// InsertUserTrophy records an award once.
func (m *MemoryStore) InsertUserTrophy(ctx context.Context, ut domain.UserTrophy) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.insertUserTrophy(ut), nil
}

// BeginTx starts a transaction. It blocks until every other transaction has ended.
func (m *MemoryStore) BeginTx(ctx context.Context) (TxStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.ErrTransactionFailed("begin transaction", err)
	}

	m.mu.Lock()
	return &memoryTx{
		parent:   m,
		snapshot: m.state.clone(),
	}, nil
}

// memoryTx is a transaction on a MemoryStore. It owns the parent's write lock.
type memoryTx struct {
	parent   *MemoryStore
	snapshot memoryState
	done     bool
}

func (t *memoryTx) state() *memoryState {
	return &t.parent.state
}

func (t *memoryTx) checkOpen() error {
	if t.done {
		return errors.ErrTransactionFailed("use transaction", fmt.Errorf("transaction already finished"))
	}
	return nil
}

func (t *memoryTx) GetQuest(ctx context.Context, questID string) (*domain.Quest, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	return t.state().getQuest(questID), nil
}

func (t *memoryTx) GetQuestsAssignedTo(ctx context.Context, userID string) ([]*domain.Quest, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	return t.state().getQuestsAssignedTo(userID), nil
}

func (t *memoryTx) GetQuestsByIDs(ctx context.Context, questIDs []string) ([]*domain.Quest, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	return t.state().getQuestsByIDs(questIDs), nil
}

func (t *memoryTx) GetCompletions(ctx context.Context, questID, userID string) ([]domain.QuestCompletion, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	return t.state().getCompletions(questID, userID), nil
}

func (t *memoryTx) GetCompletion(ctx context.Context, completionID string) (*domain.QuestCompletion, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	return t.state().getCompletion(completionID), nil
}

func (t *memoryTx) GetUserCompletions(ctx context.Context, userID string, scope domain.Scope) ([]domain.QuestCompletion, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	return t.state().getUserCompletions(userID, scope), nil
}

func (t *memoryTx) InsertCompletion(ctx context.Context, in CompletionInsert) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	return t.state().insertCompletion(in)
}

func (t *memoryTx) UpdateCompletionStatus(ctx context.Context, completionID string, status domain.CompletionStatus, reviewedAt time.Time) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	return t.state().updateCompletionStatus(completionID, status, reviewedAt)
}

func (t *memoryTx) GetBalance(ctx context.Context, userID string, scope domain.Scope, rewardTypeID string) (domain.Balance, error) {
	if err := t.checkOpen(); err != nil {
		return domain.Balance{}, err
	}
	return t.state().getBalance(userID, scope, rewardTypeID), nil
}

// GetBalanceForUpdate is GetBalance: the transaction already holds the store lock.
func (t *memoryTx) GetBalanceForUpdate(ctx context.Context, userID string, scope domain.Scope, rewardTypeID string) (domain.Balance, error) {
	return t.GetBalance(ctx, userID, scope, rewardTypeID)
}

func (t *memoryTx) GetBalances(ctx context.Context, userID string, scope domain.Scope) ([]domain.Balance, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	return t.state().getBalances(userID, scope), nil
}

func (t *memoryTx) ApplyDelta(ctx context.Context, delta BalanceDelta) error {
	return t.ApplyDeltas(ctx, []BalanceDelta{delta})
}

func (t *memoryTx) ApplyDeltas(ctx context.Context, deltas []BalanceDelta) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	return t.state().applyDeltas(deltas, t.parent.now())
}

func (t *memoryTx) GetTrophies(ctx context.Context) ([]domain.Trophy, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	return slices.Clone(t.state().trophies), nil
}

func (t *memoryTx) GetUserTrophies(ctx context.Context, userID string, scope domain.Scope) ([]domain.UserTrophy, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	return t.state().getUserTrophies(userID, scope), nil
}

func (t *memoryTx) InsertUserTrophy(ctx context.Context, ut domain.UserTrophy) (bool, error) {
	if err := t.checkOpen(); err != nil {
		return false, err
	}
	return t.state().insertUserTrophy(ut), nil
}

// BeginTx is not supported within a transaction.
func (t *memoryTx) BeginTx(ctx context.Context) (TxStore, error) {
	return nil, fmt.Errorf("cannot begin nested transaction")
}

// Commit keeps the changes and releases the store.
func (t *memoryTx) Commit() error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	t.done = true
	t.parent.mu.Unlock()
	return nil
}

// Rollback restores the state captured at BeginTx and releases the store.
func (t *memoryTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.parent.state = t.snapshot
	t.parent.mu.Unlock()
	return nil
}

// State operations. Callers hold the appropriate lock.

func (s *memoryState) getQuest(questID string) *domain.Quest {
	q, ok := s.quests[questID]
	if !ok {
		return nil
	}
	cp := *q
	return &cp
}

func (s *memoryState) getQuestsAssignedTo(userID string) []*domain.Quest {
	var out []*domain.Quest
	for _, q := range s.quests {
		if q.IsAssignedTo(userID) {
			cp := *q
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memoryState) getQuestsByIDs(questIDs []string) []*domain.Quest {
	out := make([]*domain.Quest, 0, len(questIDs))
	for _, id := range questIDs {
		if q := s.getQuest(id); q != nil {
			out = append(out, q)
		}
	}
	return out
}

func (s *memoryState) getCompletions(questID, userID string) []domain.QuestCompletion {
	var out []domain.QuestCompletion
	for _, c := range s.completions {
		if c.QuestID == questID && (userID == "" || c.UserID == userID) {
			out = append(out, c)
		}
	}
	return out
}

func (s *memoryState) getCompletion(completionID string) *domain.QuestCompletion {
	for i := range s.completions {
		if s.completions[i].ID == completionID {
			cp := s.completions[i]
			return &cp
		}
	}
	return nil
}

func (s *memoryState) getUserCompletions(userID string, scope domain.Scope) []domain.QuestCompletion {
	var out []domain.QuestCompletion
	for _, c := range s.completions {
		if c.UserID == userID && c.Scope() == scope {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CompletedAt.Before(out[j].CompletedAt) })
	return out
}

func (s *memoryState) insertCompletion(in CompletionInsert) error {
	c := in.Completion
	scope := c.Scope()

	if c.ClaimKey != "" {
		for _, existing := range s.completions {
			if existing.ClaimKey == c.ClaimKey && existing.UserID != c.UserID && existing.Status != domain.CompletionStatusRejected {
				return errors.ErrQuestAlreadyClaimed(c.QuestID)
			}
		}
	}

	if in.Limit > 0 {
		live := 0
		for _, existing := range s.completions {
			if existing.QuestID != c.QuestID || existing.UserID != c.UserID || existing.Scope() != scope {
				continue
			}
			if existing.Status != domain.CompletionStatusRejected && in.inWindow(existing.CompletedAt) {
				live++
			}
		}
		if live >= in.Limit {
			return errors.ErrQuestNotAvailable(c.QuestID, "exhausted")
		}
	}

	for _, existing := range s.completions {
		if existing.ID == c.ID {
			return errors.ErrDatabaseError("insert completion", fmt.Errorf("duplicate completion ID %s", c.ID))
		}
	}

	s.completions = append(s.completions, c)
	return nil
}

func (s *memoryState) updateCompletionStatus(completionID string, status domain.CompletionStatus, reviewedAt time.Time) error {
	for i := range s.completions {
		if s.completions[i].ID == completionID {
			s.completions[i].Status = status
			at := reviewedAt
			s.completions[i].ReviewedAt = &at
			return nil
		}
	}
	return errors.ErrCompletionNotFound(completionID)
}

func (s *memoryState) getBalance(userID string, scope domain.Scope, rewardTypeID string) domain.Balance {
	if b, ok := s.balances[balanceKey{userID, scope.Key(), rewardTypeID}]; ok {
		return b
	}
	return domain.Balance{UserID: userID, Scope: scope, RewardTypeID: rewardTypeID}
}

func (s *memoryState) getBalances(userID string, scope domain.Scope) []domain.Balance {
	var out []domain.Balance
	for k, b := range s.balances {
		if k.userID == userID && k.scope == scope.Key() {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RewardTypeID < out[j].RewardTypeID })
	return out
}

// applyDeltas computes every resulting row first and writes only if none is negative.
func (s *memoryState) applyDeltas(deltas []BalanceDelta, now time.Time) error {
	pending := make(map[balanceKey]domain.Balance, len(deltas))
	order := make([]balanceKey, 0, len(deltas))

	for _, d := range deltas {
		key := balanceKey{d.UserID, d.Scope.Key(), d.RewardTypeID}
		b, ok := pending[key]
		if !ok {
			b = s.getBalance(d.UserID, d.Scope, d.RewardTypeID)
			order = append(order, key)
		}

		b.Amount = b.Amount.Add(d.Delta)
		if d.Earned {
			b.Earned = decimal.Max(b.Earned.Add(d.Delta), decimal.Zero)
		}
		if b.Amount.IsNegative() {
			available := s.getBalance(d.UserID, d.Scope, d.RewardTypeID).Amount
			return errors.ErrInsufficientBalance(d.RewardTypeID, d.Delta.Neg().String(), available.String())
		}
		b.UpdatedAt = now
		pending[key] = b
	}

	for _, key := range order {
		s.balances[key] = pending[key]
	}
	return nil
}

func (s *memoryState) getUserTrophies(userID string, scope domain.Scope) []domain.UserTrophy {
	var out []domain.UserTrophy
	for _, ut := range s.userTrophies {
		if ut.UserID == userID && ut.Scope == scope {
			out = append(out, ut)
		}
	}
	return out
}

func (s *memoryState) insertUserTrophy(ut domain.UserTrophy) bool {
	for _, existing := range s.userTrophies {
		if existing.UserID == ut.UserID && existing.TrophyID == ut.TrophyID && existing.Scope == ut.Scope {
			return false
		}
	}
	s.userTrophies = append(s.userTrophies, ut)
	return true
}

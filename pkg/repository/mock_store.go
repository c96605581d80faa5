package repository

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/hearthquest/quest-engine-common/pkg/domain"
)

// MockStore is a mock implementation of Store for testing.
// It uses testify/mock to allow test assertions on method calls.
type MockStore struct {
	mock.Mock
}

// NewMockStore creates a new mock store.
func NewMockStore() *MockStore {
	return &MockStore{}
}

func (m *MockStore) GetQuest(ctx context.Context, questID string) (*domain.Quest, error) {
	args := m.Called(ctx, questID)
	q, _ := args.Get(0).(*domain.Quest)
	return q, args.Error(1)
}

func (m *MockStore) GetQuestsAssignedTo(ctx context.Context, userID string) ([]*domain.Quest, error) {
	args := m.Called(ctx, userID)
	qs, _ := args.Get(0).([]*domain.Quest)
	return qs, args.Error(1)
}

func (m *MockStore) GetQuestsByIDs(ctx context.Context, questIDs []string) ([]*domain.Quest, error) {
	args := m.Called(ctx, questIDs)
	qs, _ := args.Get(0).([]*domain.Quest)
	return qs, args.Error(1)
}

func (m *MockStore) GetCompletions(ctx context.Context, questID, userID string) ([]domain.QuestCompletion, error) {
	args := m.Called(ctx, questID, userID)
	cs, _ := args.Get(0).([]domain.QuestCompletion)
	return cs, args.Error(1)
}

func (m *MockStore) GetCompletion(ctx context.Context, completionID string) (*domain.QuestCompletion, error) {
	args := m.Called(ctx, completionID)
	c, _ := args.Get(0).(*domain.QuestCompletion)
	return c, args.Error(1)
}

func (m *MockStore) GetUserCompletions(ctx context.Context, userID string, scope domain.Scope) ([]domain.QuestCompletion, error) {
	args := m.Called(ctx, userID, scope)
	cs, _ := args.Get(0).([]domain.QuestCompletion)
	return cs, args.Error(1)
}

func (m *MockStore) InsertCompletion(ctx context.Context, in CompletionInsert) error {
	args := m.Called(ctx, in)
	return args.Error(0)
}

func (m *MockStore) UpdateCompletionStatus(ctx context.Context, completionID string, status domain.CompletionStatus, reviewedAt time.Time) error {
	args := m.Called(ctx, completionID, status, reviewedAt)
	return args.Error(0)
}

func (m *MockStore) GetBalance(ctx context.Context, userID string, scope domain.Scope, rewardTypeID string) (domain.Balance, error) {
	args := m.Called(ctx, userID, scope, rewardTypeID)
	b, _ := args.Get(0).(domain.Balance)
	return b, args.Error(1)
}

func (m *MockStore) GetBalances(ctx context.Context, userID string, scope domain.Scope) ([]domain.Balance, error) {
	args := m.Called(ctx, userID, scope)
	bs, _ := args.Get(0).([]domain.Balance)
	return bs, args.Error(1)
}

func (m *MockStore) ApplyDelta(ctx context.Context, delta BalanceDelta) error {
	args := m.Called(ctx, delta)
	return args.Error(0)
}

func (m *MockStore) ApplyDeltas(ctx context.Context, deltas []BalanceDelta) error {
	args := m.Called(ctx, deltas)
	return args.Error(0)
}

func (m *MockStore) GetTrophies(ctx context.Context) ([]domain.Trophy, error) {
	args := m.Called(ctx)
	ts, _ := args.Get(0).([]domain.Trophy)
	return ts, args.Error(1)
}

func (m *MockStore) GetUserTrophies(ctx context.Context, userID string, scope domain.Scope) ([]domain.UserTrophy, error) {
	args := m.Called(ctx, userID, scope)
	uts, _ := args.Get(0).([]domain.UserTrophy)
	return uts, args.Error(1)
}

func (m *MockStore) InsertUserTrophy(ctx context.Context, ut domain.UserTrophy) (bool, error) {
	args := m.Called(ctx, ut)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) BeginTx(ctx context.Context) (TxStore, error) {
	args := m.Called(ctx)
	tx, _ := args.Get(0).(TxStore)
	return tx, args.Error(1)
}

// MockTxStore is a mock implementation of TxStore for testing.
type MockTxStore struct {
	MockStore
}

// NewMockTxStore creates a new mock transactional store.
func NewMockTxStore() *MockTxStore {
	return &MockTxStore{}
}

func (m *MockTxStore) GetBalanceForUpdate(ctx context.Context, userID string, scope domain.Scope, rewardTypeID string) (domain.Balance, error) {
	args := m.Called(ctx, userID, scope, rewardTypeID)
	b, _ := args.Get(0).(domain.Balance)
	return b, args.Error(1)
}

func (m *MockTxStore) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTxStore) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

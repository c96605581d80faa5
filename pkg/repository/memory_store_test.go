package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthquest/quest-engine-common/pkg/domain"
	"github.com/hearthquest/quest-engine-common/pkg/errors"
)

var (
	_ Store   = (*MemoryStore)(nil)
	_ TxStore = (*memoryTx)(nil)
	_ Store   = (*PostgresStore)(nil)
	_ TxStore = (*PostgresTxStore)(nil)
	_ TxStore = (*MockTxStore)(nil)
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(d, hour int) time.Time {
	return time.Date(2025, 10, d, hour, 0, 0, 0, time.UTC)
}

func windowInsert(id, questID, userID string, at time.Time, limit int) CompletionInsert {
	return CompletionInsert{
		Completion: domain.QuestCompletion{
			ID:          id,
			QuestID:     questID,
			UserID:      userID,
			CompletedAt: at,
			Status:      domain.CompletionStatusApproved,
		},
		WindowStart: time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC),
		WindowEnd:   time.Date(at.Year(), at.Month(), at.Day()+1, 0, 0, 0, 0, time.UTC),
		Limit:       limit,
	}
}

func TestMemoryStore_Quests(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.SaveQuest(&domain.Quest{ID: "b", AssignedUserIDs: []string{"alice"}})
	store.SaveQuest(&domain.Quest{ID: "a", AssignedUserIDs: []string{"alice", "bob"}})
	store.SaveQuest(&domain.Quest{ID: "c", AssignedUserIDs: []string{"bob"}})

	q, err := store.GetQuest(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.Equal(t, "a", q.ID)

	missing, err := store.GetQuest(ctx, "zzz")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assigned, err := store.GetQuestsAssignedTo(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, assigned, 2)
	assert.Equal(t, "a", assigned[0].ID)
	assert.Equal(t, "b", assigned[1].ID)

	byIDs, err := store.GetQuestsByIDs(ctx, []string{"c", "missing", "a"})
	require.NoError(t, err)
	require.Len(t, byIDs, 2)
	assert.Equal(t, "c", byIDs[0].ID)
}

func TestMemoryStore_InsertCompletionGuard(t *testing.T) {
	ctx := context.Background()

	t.Run("cap reached", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.InsertCompletion(ctx, windowInsert("c1", "dishes", "alice", day(14, 8), 1)))

		err := store.InsertCompletion(ctx, windowInsert("c2", "dishes", "alice", day(14, 9), 1))
		assert.True(t, errors.Is(err, errors.ErrCodeQuestNotAvailable), "got %v", err)

		// Next window is free again
		require.NoError(t, store.InsertCompletion(ctx, windowInsert("c3", "dishes", "alice", day(15, 9), 1)))

		// Another user is counted separately
		require.NoError(t, store.InsertCompletion(ctx, windowInsert("c4", "dishes", "bob", day(14, 9), 1)))
	})

	t.Run("rejected completions free the slot", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.InsertCompletion(ctx, windowInsert("c1", "dishes", "alice", day(14, 8), 1)))
		require.NoError(t, store.UpdateCompletionStatus(ctx, "c1", domain.CompletionStatusRejected, day(14, 10)))

		require.NoError(t, store.InsertCompletion(ctx, windowInsert("c2", "dishes", "alice", day(14, 11), 1)))
	})

	t.Run("lifetime cap", func(t *testing.T) {
		store := NewMemoryStore()
		in := windowInsert("c1", "medal", "alice", day(1, 8), 2)
		in.Lifetime = true
		require.NoError(t, store.InsertCompletion(ctx, in))

		in = windowInsert("c2", "medal", "alice", day(20, 8), 2)
		in.Lifetime = true
		require.NoError(t, store.InsertCompletion(ctx, in))

		in = windowInsert("c3", "medal", "alice", day(30, 8), 2)
		in.Lifetime = true
		assert.Error(t, store.InsertCompletion(ctx, in))
	})

	t.Run("exclusive claim", func(t *testing.T) {
		store := NewMemoryStore()
		first := windowInsert("c1", "gutters", "alice", day(14, 8), 1)
		first.Completion.ClaimKey = "gutters|guild:house|2025-10-14"
		first.Completion.GuildID = "house"
		require.NoError(t, store.InsertCompletion(ctx, first))

		second := windowInsert("c2", "gutters", "bob", day(14, 9), 1)
		second.Completion.ClaimKey = first.Completion.ClaimKey
		second.Completion.GuildID = "house"
		err := store.InsertCompletion(ctx, second)
		assert.True(t, errors.Is(err, errors.ErrCodeQuestAlreadyClaimed), "got %v", err)

		completions, err := store.GetCompletions(ctx, "gutters", "")
		require.NoError(t, err)
		assert.Len(t, completions, 1)
	})

	t.Run("duplicate ID", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.InsertCompletion(ctx, windowInsert("c1", "dishes", "alice", day(14, 8), 0)))
		err := store.InsertCompletion(ctx, windowInsert("c1", "dishes", "alice", day(15, 8), 0))
		assert.True(t, errors.Is(err, errors.ErrCodeDatabaseError))
	})
}

func TestMemoryStore_Completions(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	personal := windowInsert("p1", "dishes", "alice", day(14, 9), 0)
	guild := windowInsert("g1", "dishes", "alice", day(13, 9), 0)
	guild.Completion.GuildID = "house"
	require.NoError(t, store.InsertCompletion(ctx, personal))
	require.NoError(t, store.InsertCompletion(ctx, guild))

	got, err := store.GetUserCompletions(ctx, "alice", domain.PersonalScope())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].ID)

	got, err = store.GetUserCompletions(ctx, "alice", domain.GuildScope("house"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "g1", got[0].ID)

	err = store.UpdateCompletionStatus(ctx, "nope", domain.CompletionStatusApproved, day(14, 10))
	assert.True(t, errors.Is(err, errors.ErrCodeCompletionNotFound))

	require.NoError(t, store.UpdateCompletionStatus(ctx, "p1", domain.CompletionStatusRejected, day(14, 10)))
	c, err := store.GetCompletion(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.CompletionStatusRejected, c.Status)
	require.NotNil(t, c.ReviewedAt)
}

func TestMemoryStore_ApplyDeltas(t *testing.T) {
	ctx := context.Background()
	scope := domain.GuildScope("house")

	t.Run("credit and earned", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.ApplyDelta(ctx, BalanceDelta{UserID: "alice", Scope: scope, RewardTypeID: "gold", Delta: dec("10"), Earned: true}))
		require.NoError(t, store.ApplyDelta(ctx, BalanceDelta{UserID: "alice", Scope: scope, RewardTypeID: "gold", Delta: dec("5")}))

		b, err := store.GetBalance(ctx, "alice", scope, "gold")
		require.NoError(t, err)
		assert.True(t, b.Amount.Equal(dec("15")))
		assert.True(t, b.Earned.Equal(dec("10")))

		other, err := store.GetBalance(ctx, "alice", domain.PersonalScope(), "gold")
		require.NoError(t, err)
		assert.True(t, other.Amount.IsZero())
	})

	t.Run("all or nothing", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.ApplyDelta(ctx, BalanceDelta{UserID: "alice", Scope: scope, RewardTypeID: "gold", Delta: dec("10")}))

		err := store.ApplyDeltas(ctx, []BalanceDelta{
			{UserID: "alice", Scope: scope, RewardTypeID: "gems", Delta: dec("100")},
			{UserID: "alice", Scope: scope, RewardTypeID: "gold", Delta: dec("-10.5")},
		})
		assert.True(t, errors.Is(err, errors.ErrCodeInsufficientBalance), "got %v", err)

		balances, err := store.GetBalances(ctx, "alice", scope)
		require.NoError(t, err)
		require.Len(t, balances, 1)
		assert.Equal(t, "gold", balances[0].RewardTypeID)
		assert.True(t, balances[0].Amount.Equal(dec("10")))
	})

	t.Run("deltas on the same row accumulate", func(t *testing.T) {
		store := NewMemoryStore()
		err := store.ApplyDeltas(ctx, []BalanceDelta{
			{UserID: "alice", Scope: scope, RewardTypeID: "gold", Delta: dec("3")},
			{UserID: "alice", Scope: scope, RewardTypeID: "gold", Delta: dec("-2")},
		})
		require.NoError(t, err)

		b, err := store.GetBalance(ctx, "alice", scope, "gold")
		require.NoError(t, err)
		assert.True(t, b.Amount.Equal(dec("1")))
	})
}

func TestMemoryStore_UserTrophies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	scope := domain.PersonalScope()

	store.SaveTrophy(domain.Trophy{ID: "first"})
	store.SaveTrophy(domain.Trophy{ID: "second"})
	store.SaveTrophy(domain.Trophy{ID: "first", Name: "renamed"})

	trophies, err := store.GetTrophies(ctx)
	require.NoError(t, err)
	require.Len(t, trophies, 2)
	assert.Equal(t, "renamed", trophies[0].Name)

	ut := domain.UserTrophy{ID: "ut1", UserID: "alice", TrophyID: "first", Scope: scope}
	inserted, err := store.InsertUserTrophy(ctx, ut)
	require.NoError(t, err)
	assert.True(t, inserted)

	ut.ID = "ut2"
	inserted, err = store.InsertUserTrophy(ctx, ut)
	require.NoError(t, err)
	assert.False(t, inserted)

	held, err := store.GetUserTrophies(ctx, "alice", scope)
	require.NoError(t, err)
	assert.Len(t, held, 1)
}

func TestMemoryStore_Transaction(t *testing.T) {
	ctx := context.Background()
	scope := domain.PersonalScope()

	t.Run("rollback restores state", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.ApplyDelta(ctx, BalanceDelta{UserID: "alice", Scope: scope, RewardTypeID: "gold", Delta: dec("10")}))

		tx, err := store.BeginTx(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.ApplyDelta(ctx, BalanceDelta{UserID: "alice", Scope: scope, RewardTypeID: "gold", Delta: dec("-4")}))
		require.NoError(t, tx.InsertCompletion(ctx, windowInsert("c1", "dishes", "alice", day(14, 8), 1)))

		b, err := tx.GetBalanceForUpdate(ctx, "alice", scope, "gold")
		require.NoError(t, err)
		assert.True(t, b.Amount.Equal(dec("6")))

		require.NoError(t, tx.Rollback())
		require.NoError(t, tx.Rollback())

		b, err = store.GetBalance(ctx, "alice", scope, "gold")
		require.NoError(t, err)
		assert.True(t, b.Amount.Equal(dec("10")))

		c, err := store.GetCompletion(ctx, "c1")
		require.NoError(t, err)
		assert.Nil(t, c)
	})

	t.Run("commit keeps changes and closes the tx", func(t *testing.T) {
		store := NewMemoryStore()
		tx, err := store.BeginTx(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.ApplyDelta(ctx, BalanceDelta{UserID: "alice", Scope: scope, RewardTypeID: "gold", Delta: dec("7")}))
		require.NoError(t, tx.Commit())
		require.NoError(t, tx.Rollback())

		_, err = tx.GetBalance(ctx, "alice", scope, "gold")
		assert.True(t, errors.Is(err, errors.ErrCodeTransactionFailed))

		b, err := store.GetBalance(ctx, "alice", scope, "gold")
		require.NoError(t, err)
		assert.True(t, b.Amount.Equal(dec("7")))
	})

	t.Run("nested begin fails", func(t *testing.T) {
		store := NewMemoryStore()
		tx, err := store.BeginTx(ctx)
		require.NoError(t, err)
		defer func() { _ = tx.Rollback() }()

		_, err = tx.BeginTx(ctx)
		assert.Error(t, err)
	})

	t.Run("canceled context", func(t *testing.T) {
		store := NewMemoryStore()
		canceled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := store.BeginTx(canceled)
		assert.Error(t, err)
	})
}

func TestMemoryStore_ConcurrentTransactionsSerialize(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	scope := domain.PersonalScope()
	require.NoError(t, store.ApplyDelta(ctx, BalanceDelta{UserID: "alice", Scope: scope, RewardTypeID: "gold", Delta: dec("100")}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, err := store.BeginTx(ctx)
			if err != nil {
				return
			}
			b, _ := tx.GetBalanceForUpdate(ctx, "alice", scope, "gold")
			if b.Amount.LessThan(dec("3")) {
				_ = tx.Rollback()
				return
			}
			_ = tx.ApplyDelta(ctx, BalanceDelta{UserID: "alice", Scope: scope, RewardTypeID: "gold", Delta: dec("-3")})
			_ = tx.Commit()
		}()
	}
	wg.Wait()

	b, err := store.GetBalance(ctx, "alice", scope, "gold")
	require.NoError(t, err)
	assert.True(t, b.Amount.Equal(dec("1")), "got %s", b.Amount)
}

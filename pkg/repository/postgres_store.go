package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/lib/pq" // PostgreSQL driver and array support
	"github.com/shopspring/decimal"

	"github.com/hearthquest/quest-engine-common/pkg/domain"
	"github.com/hearthquest/quest-engine-common/pkg/errors"
)

// querier is the subset of *sql.DB and *sql.Tx the queries need.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// pgQueries holds every statement, run against either the pool or a transaction.
type pgQueries struct {
	q querier
}

const questColumns = `
	id, name, quest_type, availability_type, availability_count,
	weekly_recurrence_days, monthly_recurrence_days, start_date,
	assigned_user_ids, requires_approval, is_optional, is_active,
	rewards, claim_policy, claims, dismissals, group_id, tags, created_at`

const completionColumns = `
	id, quest_id, user_id, guild_id, completed_at, status, claim_key, reviewed_at`

// PostgresStore implements Store using PostgreSQL.
// The schema is created by db.Migrate.
type PostgresStore struct {
	pgQueries
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		pgQueries: pgQueries{q: db},
		db:        db,
	}
}

// BeginTx starts a database transaction and returns a transactional store.
func (s *PostgresStore) BeginTx(ctx context.Context) (TxStore, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.ErrDatabaseError("begin transaction", err)
	}

	return &PostgresTxStore{
		pgQueries: pgQueries{q: tx},
		tx:        tx,
	}, nil
}

// withTx runs fn in its own transaction. Guarded inserts and multi-row balance
// updates need one even when the caller did not open a transaction.
func (s *PostgresStore) withTx(ctx context.Context, operation string, fn func(q *pgQueries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.ErrDatabaseError("begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(&pgQueries{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.ErrTransactionFailed(operation, err)
	}
	return nil
}

// InsertCompletion writes a completion if its guard still holds.
func (s *PostgresStore) InsertCompletion(ctx context.Context, in CompletionInsert) error {
	return s.withTx(ctx, "insert completion", func(q *pgQueries) error {
		return q.InsertCompletion(ctx, in)
	})
}

// ApplyDelta applies one delta.
func (s *PostgresStore) ApplyDelta(ctx context.Context, delta BalanceDelta) error {
	return s.ApplyDeltas(ctx, []BalanceDelta{delta})
}

// ApplyDeltas applies all deltas or none of them.
func (s *PostgresStore) ApplyDeltas(ctx context.Context, deltas []BalanceDelta) error {
	return s.withTx(ctx, "apply balance deltas", func(q *pgQueries) error {
		return q.ApplyDeltas(ctx, deltas)
	})
}

// SaveQuest creates or replaces a quest. Quests are authored by the surrounding app.
func (s *PostgresStore) SaveQuest(ctx context.Context, quest *domain.Quest) error {
	rewards, err := json.Marshal(nonNil(quest.Rewards))
	if err != nil {
		return errors.ErrDatabaseError("encode quest rewards", err)
	}
	claims, err := json.Marshal(nonNil(quest.Claims))
	if err != nil {
		return errors.ErrDatabaseError("encode quest claims", err)
	}
	dismissals, err := json.Marshal(nonNil(quest.Dismissals))
	if err != nil {
		return errors.ErrDatabaseError("encode quest dismissals", err)
	}

	weekly := make(pq.Int64Array, 0, len(quest.WeeklyRecurrenceDays))
	for _, d := range quest.WeeklyRecurrenceDays {
		weekly = append(weekly, int64(d))
	}
	monthly := make(pq.Int64Array, 0, len(quest.MonthlyRecurrenceDays))
	for _, d := range quest.MonthlyRecurrenceDays {
		monthly = append(monthly, int64(d))
	}

	createdAt := quest.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO quests (` + questColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			quest_type = EXCLUDED.quest_type,
			availability_type = EXCLUDED.availability_type,
			availability_count = EXCLUDED.availability_count,
			weekly_recurrence_days = EXCLUDED.weekly_recurrence_days,
			monthly_recurrence_days = EXCLUDED.monthly_recurrence_days,
			start_date = EXCLUDED.start_date,
			assigned_user_ids = EXCLUDED.assigned_user_ids,
			requires_approval = EXCLUDED.requires_approval,
			is_optional = EXCLUDED.is_optional,
			is_active = EXCLUDED.is_active,
			rewards = EXCLUDED.rewards,
			claim_policy = EXCLUDED.claim_policy,
			claims = EXCLUDED.claims,
			dismissals = EXCLUDED.dismissals,
			group_id = EXCLUDED.group_id,
			tags = EXCLUDED.tags
	`

	_, err = s.db.ExecContext(ctx, query,
		quest.ID,
		quest.Name,
		quest.Type,
		quest.AvailabilityType,
		quest.AvailabilityCount,
		weekly,
		monthly,
		quest.StartDate,
		pq.Array(nonNil(quest.AssignedUserIDs)),
		quest.RequiresApproval,
		quest.IsOptional,
		quest.IsActive,
		string(rewards),
		string(quest.ClaimPolicy),
		string(claims),
		string(dismissals),
		quest.GroupID,
		pq.Array(nonNil(quest.Tags)),
		createdAt,
	)
	if err != nil {
		return errors.ErrDatabaseError("save quest", err)
	}

	return nil
}

// SaveTrophy creates or replaces a trophy definition. New trophies are appended to
// the declaration order; replaced ones keep their position.
func (s *PostgresStore) SaveTrophy(ctx context.Context, trophy domain.Trophy) error {
	requirements, err := json.Marshal(nonNil(trophy.Requirements))
	if err != nil {
		return errors.ErrDatabaseError("encode trophy requirements", err)
	}

	query := `
		INSERT INTO trophies (id, name, description, is_manual, requirements)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			is_manual = EXCLUDED.is_manual,
			requirements = EXCLUDED.requirements
	`

	_, err = s.db.ExecContext(ctx, query, trophy.ID, trophy.Name, trophy.Description, trophy.IsManual, string(requirements))
	if err != nil {
		return errors.ErrDatabaseError("save trophy", err)
	}

	return nil
}

// PostgresTxStore implements TxStore for transactional operations.
type PostgresTxStore struct {
	pgQueries
	tx *sql.Tx
}

// BeginTx is not supported within a transaction.
func (s *PostgresTxStore) BeginTx(ctx context.Context) (TxStore, error) {
	return nil, fmt.Errorf("cannot begin nested transaction")
}

// ApplyDelta applies one delta within the transaction.
func (s *PostgresTxStore) ApplyDelta(ctx context.Context, delta BalanceDelta) error {
	return s.ApplyDeltas(ctx, []BalanceDelta{delta})
}

// GetBalanceForUpdate retrieves a balance with SELECT ... FOR UPDATE (row-level lock).
// A zero row is created first so there is always a row to lock.
func (s *PostgresTxStore) GetBalanceForUpdate(ctx context.Context, userID string, scope domain.Scope, rewardTypeID string) (domain.Balance, error) {
	return s.lockBalance(ctx, userID, scope, rewardTypeID)
}

// Commit commits the transaction.
func (s *PostgresTxStore) Commit() error {
	err := s.tx.Commit()
	if err != nil {
		return errors.ErrTransactionFailed("commit transaction", err)
	}
	return nil
}

// Rollback rolls back the transaction. Rolling back a finished transaction is a no-op.
func (s *PostgresTxStore) Rollback() error {
	err := s.tx.Rollback()
	if err != nil && err != sql.ErrTxDone {
		return errors.ErrDatabaseError("rollback transaction", err)
	}
	return nil
}

// GetQuest retrieves a quest by ID.
func (r *pgQueries) GetQuest(ctx context.Context, questID string) (*domain.Quest, error) {
	query := `SELECT ` + questColumns + ` FROM quests WHERE id = $1`

	rows, err := r.q.QueryContext(ctx, query, questID)
	if err != nil {
		return nil, errors.ErrDatabaseError("get quest", err)
	}
	defer func() { _ = rows.Close() }()

	quests, err := scanQuestRows(rows)
	if err != nil {
		return nil, err
	}
	if len(quests) == 0 {
		return nil, nil
	}
	return quests[0], nil
}

// GetQuestsAssignedTo retrieves every quest userID is assigned to.
func (r *pgQueries) GetQuestsAssignedTo(ctx context.Context, userID string) ([]*domain.Quest, error) {
	query := `
		SELECT ` + questColumns + `
		FROM quests
		WHERE $1 = ANY(assigned_user_ids)
		ORDER BY id ASC
	`

	rows, err := r.q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, errors.ErrDatabaseError("get assigned quests", err)
	}
	defer func() { _ = rows.Close() }()

	return scanQuestRows(rows)
}

// GetQuestsByIDs retrieves the quests with the given IDs.
func (r *pgQueries) GetQuestsByIDs(ctx context.Context, questIDs []string) ([]*domain.Quest, error) {
	if len(questIDs) == 0 {
		return []*domain.Quest{}, nil
	}

	query := `
		SELECT ` + questColumns + `
		FROM quests
		WHERE id = ANY($1)
		ORDER BY id ASC
	`

	rows, err := r.q.QueryContext(ctx, query, pq.Array(questIDs))
	if err != nil {
		return nil, errors.ErrDatabaseError("get quests by IDs", err)
	}
	defer func() { _ = rows.Close() }()

	return scanQuestRows(rows)
}

// GetCompletions retrieves the completions of a quest.
func (r *pgQueries) GetCompletions(ctx context.Context, questID, userID string) ([]domain.QuestCompletion, error) {
	query := `
		SELECT ` + completionColumns + `
		FROM quest_completions
		WHERE quest_id = $1 AND ($2::text = '' OR user_id = $2)
		ORDER BY completed_at ASC
	`

	rows, err := r.q.QueryContext(ctx, query, questID, userID)
	if err != nil {
		return nil, errors.ErrDatabaseError("get completions", err)
	}
	defer func() { _ = rows.Close() }()

	return scanCompletionRows(rows)
}

// GetCompletion retrieves a completion by ID.
func (r *pgQueries) GetCompletion(ctx context.Context, completionID string) (*domain.QuestCompletion, error) {
	query := `SELECT ` + completionColumns + ` FROM quest_completions WHERE id = $1`

	rows, err := r.q.QueryContext(ctx, query, completionID)
	if err != nil {
		return nil, errors.ErrDatabaseError("get completion", err)
	}
	defer func() { _ = rows.Close() }()

	completions, err := scanCompletionRows(rows)
	if err != nil {
		return nil, err
	}
	if len(completions) == 0 {
		return nil, nil
	}
	return &completions[0], nil
}

// GetUserCompletions retrieves all completions of a user in a scope.
func (r *pgQueries) GetUserCompletions(ctx context.Context, userID string, scope domain.Scope) ([]domain.QuestCompletion, error) {
	query := `
		SELECT ` + completionColumns + `
		FROM quest_completions
		WHERE user_id = $1 AND guild_id = $2
		ORDER BY completed_at ASC
	`

	rows, err := r.q.QueryContext(ctx, query, userID, scope.GuildID)
	if err != nil {
		return nil, errors.ErrDatabaseError("get user completions", err)
	}
	defer func() { _ = rows.Close() }()

	return scanCompletionRows(rows)
}

// InsertCompletion checks the guard and inserts under a transaction-scoped
// advisory lock. Must run inside a transaction.
func (r *pgQueries) InsertCompletion(ctx context.Context, in CompletionInsert) error {
	c := in.Completion

	if _, err := r.q.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, in.LockKey()); err != nil {
		return errors.ErrDatabaseError("lock completion slot", err)
	}

	if c.ClaimKey != "" {
		var claimed bool
		err := r.q.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM quest_completions
				WHERE claim_key = $1 AND user_id <> $2 AND status <> 'rejected'
			)
		`, c.ClaimKey, c.UserID).Scan(&claimed)
		if err != nil {
			return errors.ErrDatabaseError("check exclusive claim", err)
		}
		if claimed {
			return errors.ErrQuestAlreadyClaimed(c.QuestID)
		}
	}

	if in.Limit > 0 {
		var live int
		err := r.q.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM quest_completions
			WHERE quest_id = $1 AND user_id = $2 AND guild_id = $3
			AND status <> 'rejected'
			AND ($4::boolean OR (completed_at >= $5 AND completed_at < $6))
		`, c.QuestID, c.UserID, c.GuildID, in.Lifetime, in.WindowStart, in.WindowEnd).Scan(&live)
		if err != nil {
			return errors.ErrDatabaseError("count window completions", err)
		}
		if live >= in.Limit {
			return errors.ErrQuestNotAvailable(c.QuestID, "exhausted")
		}
	}

	query := `
		INSERT INTO quest_completions (` + completionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.q.ExecContext(ctx, query,
		c.ID,
		c.QuestID,
		c.UserID,
		c.GuildID,
		c.CompletedAt,
		c.Status,
		c.ClaimKey,
		c.ReviewedAt,
	)
	if err != nil {
		return errors.ErrDatabaseError("insert completion", err)
	}

	return nil
}

// UpdateCompletionStatus sets the status and review time of a completion.
func (r *pgQueries) UpdateCompletionStatus(ctx context.Context, completionID string, status domain.CompletionStatus, reviewedAt time.Time) error {
	query := `
		UPDATE quest_completions
		SET status = $2, reviewed_at = $3
		WHERE id = $1
	`

	result, err := r.q.ExecContext(ctx, query, completionID, status, reviewedAt)
	if err != nil {
		return errors.ErrDatabaseError("update completion status", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.ErrDatabaseError("check rows affected", err)
	}

	if rowsAffected == 0 {
		return errors.ErrCompletionNotFound(completionID)
	}

	return nil
}

// GetBalance retrieves a balance row, or a zero balance when none exists.
func (r *pgQueries) GetBalance(ctx context.Context, userID string, scope domain.Scope, rewardTypeID string) (domain.Balance, error) {
	query := `
		SELECT amount, earned, updated_at
		FROM balances
		WHERE user_id = $1 AND scope_key = $2 AND reward_type_id = $3
	`

	b := domain.Balance{UserID: userID, Scope: scope, RewardTypeID: rewardTypeID}
	err := r.q.QueryRowContext(ctx, query, userID, scope.Key(), rewardTypeID).Scan(&b.Amount, &b.Earned, &b.UpdatedAt)

	if err == sql.ErrNoRows {
		return b, nil
	}

	if err != nil {
		return domain.Balance{}, errors.ErrDatabaseError("get balance", err)
	}

	return b, nil
}

// GetBalances retrieves every balance row of a user in a scope.
func (r *pgQueries) GetBalances(ctx context.Context, userID string, scope domain.Scope) ([]domain.Balance, error) {
	query := `
		SELECT reward_type_id, amount, earned, updated_at
		FROM balances
		WHERE user_id = $1 AND scope_key = $2
		ORDER BY reward_type_id ASC
	`

	rows, err := r.q.QueryContext(ctx, query, userID, scope.Key())
	if err != nil {
		return nil, errors.ErrDatabaseError("get balances", err)
	}
	defer func() { _ = rows.Close() }()

	var results []domain.Balance
	for rows.Next() {
		b := domain.Balance{UserID: userID, Scope: scope}
		if err := rows.Scan(&b.RewardTypeID, &b.Amount, &b.Earned, &b.UpdatedAt); err != nil {
			return nil, errors.ErrDatabaseError("scan balance row", err)
		}
		results = append(results, b)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.ErrDatabaseError("iterate balance rows", err)
	}

	return results, nil
}

// lockBalance ensures the row exists and locks it with SELECT ... FOR UPDATE.
func (r *pgQueries) lockBalance(ctx context.Context, userID string, scope domain.Scope, rewardTypeID string) (domain.Balance, error) {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO balances (user_id, scope_key, reward_type_id, amount, earned, updated_at)
		VALUES ($1, $2, $3, 0, 0, NOW())
		ON CONFLICT (user_id, scope_key, reward_type_id) DO NOTHING
	`, userID, scope.Key(), rewardTypeID)
	if err != nil {
		return domain.Balance{}, errors.ErrDatabaseError("ensure balance row", err)
	}

	query := `
		SELECT amount, earned, updated_at
		FROM balances
		WHERE user_id = $1 AND scope_key = $2 AND reward_type_id = $3
		FOR UPDATE
	`

	b := domain.Balance{UserID: userID, Scope: scope, RewardTypeID: rewardTypeID}
	err = r.q.QueryRowContext(ctx, query, userID, scope.Key(), rewardTypeID).Scan(&b.Amount, &b.Earned, &b.UpdatedAt)
	if err != nil {
		return domain.Balance{}, errors.ErrDatabaseError("get balance for update", err)
	}

	return b, nil
}

// ApplyDeltas locks every affected row in key order, checks all results, then
// writes. Must run inside a transaction.
func (r *pgQueries) ApplyDeltas(ctx context.Context, deltas []BalanceDelta) error {
	type change struct {
		userID   string
		scope    domain.Scope
		rewardID string
		amount   decimal.Decimal
		earned   decimal.Decimal
	}

	changes := make(map[balanceKey]*change, len(deltas))
	keys := make([]balanceKey, 0, len(deltas))
	for _, d := range deltas {
		key := balanceKey{d.UserID, d.Scope.Key(), d.RewardTypeID}
		ch, ok := changes[key]
		if !ok {
			ch = &change{userID: d.UserID, scope: d.Scope, rewardID: d.RewardTypeID}
			changes[key] = ch
			keys = append(keys, key)
		}
		ch.amount = ch.amount.Add(d.Delta)
		if d.Earned {
			ch.earned = ch.earned.Add(d.Delta)
		}
	}

	// Fixed lock order so concurrent transactions cannot deadlock.
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.userID != b.userID {
			return a.userID < b.userID
		}
		if a.scope != b.scope {
			return a.scope < b.scope
		}
		return a.rewardID < b.rewardID
	})

	next := make(map[balanceKey]domain.Balance, len(keys))
	for _, key := range keys {
		ch := changes[key]
		current, err := r.lockBalance(ctx, ch.userID, ch.scope, ch.rewardID)
		if err != nil {
			return err
		}

		b := current
		b.Amount = current.Amount.Add(ch.amount)
		b.Earned = decimal.Max(current.Earned.Add(ch.earned), decimal.Zero)
		if b.Amount.IsNegative() {
			return errors.ErrInsufficientBalance(ch.rewardID, ch.amount.Neg().String(), current.Amount.String())
		}
		next[key] = b
	}

	for _, key := range keys {
		b := next[key]
		_, err := r.q.ExecContext(ctx, `
			UPDATE balances
			SET amount = $4, earned = $5, updated_at = NOW()
			WHERE user_id = $1 AND scope_key = $2 AND reward_type_id = $3
		`, b.UserID, key.scope, b.RewardTypeID, b.Amount, b.Earned)
		if err != nil {
			return errors.ErrDatabaseError("update balance", err)
		}
	}

	return nil
}

// GetTrophies retrieves all trophy definitions in declaration order.
func (r *pgQueries) GetTrophies(ctx context.Context) ([]domain.Trophy, error) {
	query := `
		SELECT id, name, description, is_manual, requirements
		FROM trophies
		ORDER BY position ASC
	`

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.ErrDatabaseError("get trophies", err)
	}
	defer func() { _ = rows.Close() }()

	var results []domain.Trophy
	for rows.Next() {
		var t domain.Trophy
		var requirements []byte
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.IsManual, &requirements); err != nil {
			return nil, errors.ErrDatabaseError("scan trophy row", err)
		}
		if err := json.Unmarshal(requirements, &t.Requirements); err != nil {
			return nil, errors.ErrDatabaseError("decode trophy requirements", err)
		}
		results = append(results, t)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.ErrDatabaseError("iterate trophy rows", err)
	}

	return results, nil
}

// GetUserTrophies retrieves the trophies a user holds in a scope.
func (r *pgQueries) GetUserTrophies(ctx context.Context, userID string, scope domain.Scope) ([]domain.UserTrophy, error) {
	query := `
		SELECT id, trophy_id, awarded_at
		FROM user_trophies
		WHERE user_id = $1 AND scope_key = $2
		ORDER BY awarded_at ASC
	`

	rows, err := r.q.QueryContext(ctx, query, userID, scope.Key())
	if err != nil {
		return nil, errors.ErrDatabaseError("get user trophies", err)
	}
	defer func() { _ = rows.Close() }()

	var results []domain.UserTrophy
	for rows.Next() {
		ut := domain.UserTrophy{UserID: userID, Scope: scope}
		if err := rows.Scan(&ut.ID, &ut.TrophyID, &ut.AwardedAt); err != nil {
			return nil, errors.ErrDatabaseError("scan user trophy row", err)
		}
		results = append(results, ut)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.ErrDatabaseError("iterate user trophy rows", err)
	}

	return results, nil
}

// InsertUserTrophy records an award once per (user, trophy, scope).
func (r *pgQueries) InsertUserTrophy(ctx context.Context, ut domain.UserTrophy) (bool, error) {
	query := `
		INSERT INTO user_trophies (id, user_id, trophy_id, scope_key, awarded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, trophy_id, scope_key) DO NOTHING
	`

	result, err := r.q.ExecContext(ctx, query, ut.ID, ut.UserID, ut.TrophyID, ut.Scope.Key(), ut.AwardedAt)
	if err != nil {
		return false, errors.ErrDatabaseError("insert user trophy", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, errors.ErrDatabaseError("check rows affected", err)
	}

	return rowsAffected == 1, nil
}

// scanQuestRows is a helper to scan multiple quest rows.
func scanQuestRows(rows *sql.Rows) ([]*domain.Quest, error) {
	var results []*domain.Quest

	for rows.Next() {
		var (
			q                           domain.Quest
			weekly, monthly             pq.Int64Array
			assigned, tags              pq.StringArray
			rewards, claims, dismissals []byte
			startDate                   sql.NullTime
			claimPolicy                 string
		)
		err := rows.Scan(
			&q.ID,
			&q.Name,
			&q.Type,
			&q.AvailabilityType,
			&q.AvailabilityCount,
			&weekly,
			&monthly,
			&startDate,
			&assigned,
			&q.RequiresApproval,
			&q.IsOptional,
			&q.IsActive,
			&rewards,
			&claimPolicy,
			&claims,
			&dismissals,
			&q.GroupID,
			&tags,
			&q.CreatedAt,
		)
		if err != nil {
			return nil, errors.ErrDatabaseError("scan quest row", err)
		}

		for _, d := range weekly {
			q.WeeklyRecurrenceDays = append(q.WeeklyRecurrenceDays, time.Weekday(d))
		}
		for _, d := range monthly {
			q.MonthlyRecurrenceDays = append(q.MonthlyRecurrenceDays, int(d))
		}
		if startDate.Valid {
			sd := startDate.Time
			q.StartDate = &sd
		}
		q.AssignedUserIDs = []string(assigned)
		q.Tags = []string(tags)
		q.ClaimPolicy = domain.ClaimPolicy(claimPolicy)

		if err := json.Unmarshal(rewards, &q.Rewards); err != nil {
			return nil, errors.ErrDatabaseError("decode quest rewards", err)
		}
		if err := json.Unmarshal(claims, &q.Claims); err != nil {
			return nil, errors.ErrDatabaseError("decode quest claims", err)
		}
		if err := json.Unmarshal(dismissals, &q.Dismissals); err != nil {
			return nil, errors.ErrDatabaseError("decode quest dismissals", err)
		}

		results = append(results, &q)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.ErrDatabaseError("iterate quest rows", err)
	}

	return results, nil
}

// scanCompletionRows is a helper to scan multiple completion rows.
func scanCompletionRows(rows *sql.Rows) ([]domain.QuestCompletion, error) {
	var results []domain.QuestCompletion

	for rows.Next() {
		var c domain.QuestCompletion
		var reviewedAt sql.NullTime
		err := rows.Scan(
			&c.ID,
			&c.QuestID,
			&c.UserID,
			&c.GuildID,
			&c.CompletedAt,
			&c.Status,
			&c.ClaimKey,
			&reviewedAt,
		)
		if err != nil {
			return nil, errors.ErrDatabaseError("scan completion row", err)
		}
		if reviewedAt.Valid {
			at := reviewedAt.Time
			c.ReviewedAt = &at
		}
		results = append(results, c)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.ErrDatabaseError("iterate completion rows", err)
	}

	return results, nil
}

// nonNil turns a nil slice into an empty one so it encodes as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

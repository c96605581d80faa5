package db

import (
	"context"
	"database/sql"
	"fmt"
)

// schema creates every table the Postgres store reads and writes.
// Statements are idempotent so Migrate can run on every start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS quests (
		id VARCHAR(100) PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		quest_type VARCHAR(20) NOT NULL,
		availability_type VARCHAR(20) NOT NULL,
		availability_count INT NOT NULL DEFAULT 1,
		weekly_recurrence_days INT[] NOT NULL DEFAULT '{}',
		monthly_recurrence_days INT[] NOT NULL DEFAULT '{}',
		start_date TIMESTAMPTZ NULL,
		assigned_user_ids TEXT[] NOT NULL DEFAULT '{}',
		requires_approval BOOLEAN NOT NULL DEFAULT false,
		is_optional BOOLEAN NOT NULL DEFAULT false,
		is_active BOOLEAN NOT NULL DEFAULT true,
		rewards JSONB NOT NULL DEFAULT '[]',
		claim_policy VARCHAR(20) NOT NULL DEFAULT '',
		claims JSONB NOT NULL DEFAULT '[]',
		dismissals JSONB NOT NULL DEFAULT '[]',
		group_id VARCHAR(100) NOT NULL DEFAULT '',
		tags TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT check_quest_type CHECK (quest_type IN ('duty', 'venture')),
		CONSTRAINT check_availability_type CHECK (availability_type IN ('daily', 'weekly', 'monthly', 'frequency', 'unlimited'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_quests_assigned_user_ids ON quests USING GIN (assigned_user_ids)`,

	`CREATE TABLE IF NOT EXISTS quest_completions (
		id VARCHAR(64) PRIMARY KEY,
		quest_id VARCHAR(100) NOT NULL,
		user_id VARCHAR(100) NOT NULL,
		guild_id VARCHAR(100) NOT NULL DEFAULT '',
		completed_at TIMESTAMPTZ NOT NULL,
		status VARCHAR(20) NOT NULL,
		claim_key TEXT NOT NULL DEFAULT '',
		reviewed_at TIMESTAMPTZ NULL,
		CONSTRAINT check_completion_status CHECK (status IN ('pending', 'approved', 'rejected'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_quest_completions_quest_user ON quest_completions(quest_id, user_id, completed_at)`,
	`CREATE INDEX IF NOT EXISTS idx_quest_completions_user_guild ON quest_completions(user_id, guild_id, completed_at)`,
	`CREATE INDEX IF NOT EXISTS idx_quest_completions_claim_key ON quest_completions(claim_key) WHERE claim_key <> ''`,

	`CREATE TABLE IF NOT EXISTS balances (
		user_id VARCHAR(100) NOT NULL,
		scope_key VARCHAR(120) NOT NULL,
		reward_type_id VARCHAR(100) NOT NULL,
		amount NUMERIC NOT NULL DEFAULT 0,
		earned NUMERIC NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, scope_key, reward_type_id),
		CONSTRAINT check_amount_non_negative CHECK (amount >= 0),
		CONSTRAINT check_earned_non_negative CHECK (earned >= 0)
	)`,

	`CREATE TABLE IF NOT EXISTS trophies (
		id VARCHAR(100) PRIMARY KEY,
		position BIGSERIAL NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		is_manual BOOLEAN NOT NULL DEFAULT false,
		requirements JSONB NOT NULL DEFAULT '[]'
	)`,

	`CREATE TABLE IF NOT EXISTS user_trophies (
		id VARCHAR(64) PRIMARY KEY,
		user_id VARCHAR(100) NOT NULL,
		trophy_id VARCHAR(100) NOT NULL,
		scope_key VARCHAR(120) NOT NULL,
		awarded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT uq_user_trophy_scope UNIQUE (user_id, trophy_id, scope_key)
	)`,
}

// Tables lists the tables created by Migrate, in creation order.
var Tables = []string{"quests", "quest_completions", "balances", "trophies", "user_trophies"}

// Migrate creates the schema if it does not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}

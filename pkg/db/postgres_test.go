package db

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dbEnvKeys = []string{
	"DB_HOST", "DB_PORT", "DB_NAME", "DB_USER", "DB_PASSWORD", "DB_SSLMODE",
	"DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "DB_CONN_MAX_LIFETIME", "DB_CONN_MAX_IDLE_TIME",
}

// clearDBEnv blanks every DB_* variable for the duration of the test.
// getEnv treats an empty value as unset.
func clearDBEnv(t *testing.T) {
	t.Helper()
	for _, key := range dbEnvKeys {
		t.Setenv(key, "")
	}
}

func TestNewConfigFromEnv(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		check func(t *testing.T, cfg *Config)
	}{
		{
			name: "defaults point at a local quest_engine database",
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "host=localhost port=5432 dbname=quest_engine user=postgres password= sslmode=disable", cfg.DSN())
				assert.Equal(t, 25, cfg.MaxOpenConns)
				assert.Equal(t, 5, cfg.MaxIdleConns)
				assert.Equal(t, 5*time.Minute, cfg.ConnMaxLifetime)
				assert.Equal(t, 5*time.Minute, cfg.ConnMaxIdleTime)
			},
		},
		{
			name: "household deployment overrides",
			env: map[string]string{
				"DB_HOST":              "hearth-db",
				"DB_PORT":              "6432",
				"DB_NAME":              "hearth",
				"DB_MAX_OPEN_CONNS":    "8",
				"DB_CONN_MAX_LIFETIME": "60",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "hearth-db", cfg.Host)
				assert.Equal(t, 6432, cfg.Port)
				assert.Equal(t, "hearth", cfg.Database)
				assert.Equal(t, 8, cfg.MaxOpenConns)
				assert.Equal(t, time.Minute, cfg.ConnMaxLifetime)
				assert.Equal(t, 5*time.Minute, cfg.ConnMaxIdleTime)
			},
		},
		{
			name: "malformed numbers keep the defaults",
			env:  map[string]string{"DB_PORT": "five-four-three-two", "DB_MAX_IDLE_CONNS": "1.5"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 5432, cfg.Port)
				assert.Equal(t, 5, cfg.MaxIdleConns)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearDBEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			tt.check(t, NewConfigFromEnv())
		})
	}
}

func TestConfig_DSN(t *testing.T) {
	cfg := &Config{
		Host:     "db.internal",
		Port:     6543,
		Database: "quests",
		User:     "engine",
		Password: "secret",
		SSLMode:  "require",
	}

	assert.Equal(t, "host=db.internal port=6543 dbname=quests user=engine password=secret sslmode=require", cfg.DSN())
}

func TestLoadEnvFile(t *testing.T) {
	t.Run("file fills gaps and the environment wins", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test.env")
		require.NoError(t, os.WriteFile(path, []byte("DB_NAME=from_file\nDB_USER=file_user\n"), 0o600))

		// t.Setenv restores the previous values; os.Unsetenv gives godotenv a truly unset key.
		t.Setenv("DB_NAME", "")
		require.NoError(t, os.Unsetenv("DB_NAME"))
		t.Setenv("DB_USER", "env_user")

		require.NoError(t, LoadEnvFile(path))

		cfg := NewConfigFromEnv()
		assert.Equal(t, "from_file", cfg.Database)
		assert.Equal(t, "env_user", cfg.User)
	})

	t.Run("later files do not override earlier ones", func(t *testing.T) {
		dir := t.TempDir()
		first := filepath.Join(dir, "first.env")
		second := filepath.Join(dir, "second.env")
		require.NoError(t, os.WriteFile(first, []byte("DB_SSLMODE=require\n"), 0o600))
		require.NoError(t, os.WriteFile(second, []byte("DB_SSLMODE=disable\nDB_PORT=7000\n"), 0o600))

		t.Setenv("DB_SSLMODE", "")
		require.NoError(t, os.Unsetenv("DB_SSLMODE"))
		t.Setenv("DB_PORT", "")
		require.NoError(t, os.Unsetenv("DB_PORT"))

		require.NoError(t, LoadEnvFile(first, second))

		cfg := NewConfigFromEnv()
		assert.Equal(t, "require", cfg.SSLMode)
		assert.Equal(t, 7000, cfg.Port)
	})

	t.Run("missing file is skipped", func(t *testing.T) {
		assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "absent.env")))
	})

	t.Run("malformed file fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.env")
		require.NoError(t, os.WriteFile(path, []byte("DB_NAME='unterminated\n"), 0o600))

		err := LoadEnvFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load env file")
	})
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := &Config{
		Host:     "127.0.0.1",
		Port:     1,
		Database: "quest_engine",
		User:     "postgres",
		SSLMode:  "disable",
	}

	db, err := Connect(cfg)
	require.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "failed to ping database")
}

func TestHealth_WithoutConnection(t *testing.T) {
	err := Health(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no connection")

	// sql.Open is lazy; closing it makes every ping fail without a server.
	db, err := sql.Open("postgres", (&Config{Host: "localhost", Port: 5432, SSLMode: "disable"}).DSN())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	err = Health(db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database unhealthy")
}

// connectOrSkip opens the database named by DB_* or skips the test.
func connectOrSkip(t *testing.T) *sql.DB {
	t.Helper()
	if os.Getenv("DB_HOST") == "" {
		t.Skip("Skipping integration test: DB_HOST not set")
	}

	cfg := NewConfigFromEnv()
	cfg.MaxOpenConns = 4
	db, err := Connect(cfg)
	if err != nil {
		t.Skipf("Skipping integration test: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	assert.Equal(t, 4, db.Stats().MaxOpenConnections)
	require.NoError(t, Health(db))
	return db
}

func TestMigrate_Idempotent(t *testing.T) {
	db := connectOrSkip(t)
	ctx := context.Background()

	require.NoError(t, Migrate(ctx, db))
	require.NoError(t, Migrate(ctx, db))

	for _, table := range Tables {
		var exists bool
		err := db.QueryRowContext(ctx, `SELECT to_regclass($1) IS NOT NULL`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "table %s", table)
	}
}

func TestMigrate_Constraints(t *testing.T) {
	db := connectOrSkip(t)
	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db))

	purge := func() {
		_, _ = db.ExecContext(ctx, `DELETE FROM balances WHERE user_id = 'schema-check'`)
		_, _ = db.ExecContext(ctx, `DELETE FROM user_trophies WHERE user_id = 'schema-check'`)
		_, _ = db.ExecContext(ctx, `DELETE FROM quest_completions WHERE user_id = 'schema-check'`)
	}
	purge()
	t.Cleanup(purge)

	tests := []struct {
		name  string
		setup string
		stmt  string
	}{
		{
			name: "balances cannot go negative",
			stmt: `INSERT INTO balances (user_id, scope_key, reward_type_id, amount) VALUES ('schema-check', 'personal', 'gold', -1)`,
		},
		{
			name: "completion status is restricted",
			stmt: `INSERT INTO quest_completions (id, quest_id, user_id, completed_at, status)
				VALUES ('schema-check-1', 'dishes', 'schema-check', NOW(), 'skipped')`,
		},
		{
			name:  "one award per user trophy and scope",
			setup: `INSERT INTO user_trophies (id, user_id, trophy_id, scope_key) VALUES ('schema-check-a', 'schema-check', 'squire', 'personal')`,
			stmt:  `INSERT INTO user_trophies (id, user_id, trophy_id, scope_key) VALUES ('schema-check-b', 'schema-check', 'squire', 'personal')`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != "" {
				_, err := db.ExecContext(ctx, tt.setup)
				require.NoError(t, err)
			}
			_, err := db.ExecContext(ctx, tt.stmt)
			assert.Error(t, err)
		})
	}
}

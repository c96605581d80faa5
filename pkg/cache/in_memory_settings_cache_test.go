package cache

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hearthquest/quest-engine-common/pkg/config"
)

const sharedSettingsPath = "../config/testdata/settings.json"

func loadTestSettings(t *testing.T, logger *slog.Logger) *config.Settings {
	t.Helper()

	settings, err := config.NewSettingsLoader(sharedSettingsPath, logger).LoadSettings()
	if err != nil {
		t.Fatalf("failed to load test settings: %v", err)
	}
	return settings
}

func TestNewInMemorySettingsCache(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	settings := loadTestSettings(t, logger)

	cache, err := NewInMemorySettingsCache(settings, sharedSettingsPath, logger)
	if err != nil {
		t.Fatalf("NewInMemorySettingsCache() unexpected error = %v", err)
	}

	snap := cache.Snapshot()
	if snap == nil {
		t.Fatal("Snapshot() returned nil")
	}

	if snap.Generation != 1 {
		t.Errorf("expected generation 1, got %d", snap.Generation)
	}

	if snap.Ladder.Len() != 4 {
		t.Errorf("expected 4 ranks in ladder, got %d", snap.Ladder.Len())
	}

	if _, ok := snap.Settings.RewardType("gems"); !ok {
		t.Error("expected gems in registry")
	}
}

func TestInMemorySettingsCache_Reload(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	t.Run("successful reload", func(t *testing.T) {
		data, err := os.ReadFile(sharedSettingsPath)
		if err != nil {
			t.Fatalf("failed to read settings fixture: %v", err)
		}
		tmpFile := filepath.Join(t.TempDir(), "settings.json")
		if err := os.WriteFile(tmpFile, data, 0o600); err != nil {
			t.Fatalf("failed to write temp settings: %v", err)
		}

		cache, err := NewInMemorySettingsCache(loadTestSettings(t, logger), tmpFile, logger)
		if err != nil {
			t.Fatalf("NewInMemorySettingsCache() unexpected error = %v", err)
		}
		before := cache.Snapshot()

		// Rewrite with one extra rank
		updated := `{
			"version": "v2",
			"valuation": {"anchorRewardId": "gold", "exchangeRates": {"xp": "100"}},
			"rewardTypes": [{"id": "gold", "category": "currency"}, {"id": "xp", "category": "xp"}],
			"ranks": [{"id": "novice", "xpThreshold": 0}, {"id": "legend", "xpThreshold": 9000}],
			"rankRewardId": "xp"
		}`
		if err := os.WriteFile(tmpFile, []byte(updated), 0o600); err != nil {
			t.Fatalf("failed to rewrite settings: %v", err)
		}

		if err := cache.Reload(); err != nil {
			t.Fatalf("Reload() unexpected error = %v", err)
		}

		after := cache.Snapshot()
		if after.Settings.Version != "v2" {
			t.Errorf("expected version v2, got %q", after.Settings.Version)
		}
		if after.Generation != before.Generation+1 {
			t.Errorf("expected generation %d, got %d", before.Generation+1, after.Generation)
		}
		if _, ok := after.Ladder.IndexOf("legend"); !ok {
			t.Error("legend should exist after reload")
		}

		// The old snapshot is untouched
		if _, ok := before.Ladder.IndexOf("legend"); ok {
			t.Error("previous snapshot must not change")
		}
	})

	t.Run("failed reload - file not found", func(t *testing.T) {
		cache, err := NewInMemorySettingsCache(loadTestSettings(t, logger), "/nonexistent/settings.json", logger)
		if err != nil {
			t.Fatalf("NewInMemorySettingsCache() unexpected error = %v", err)
		}

		if err := cache.Reload(); err == nil {
			t.Error("Reload() expected error for non-existent file, got nil")
		}

		if cache.Snapshot().Generation != 1 {
			t.Error("snapshot should be unchanged after failed reload")
		}
	})

	t.Run("failed reload - no path", func(t *testing.T) {
		cache, err := NewInMemorySettingsCache(loadTestSettings(t, logger), "", logger)
		if err != nil {
			t.Fatalf("NewInMemorySettingsCache() unexpected error = %v", err)
		}

		if err := cache.Reload(); err == nil {
			t.Error("Reload() expected error without settings path, got nil")
		}
	})
}

func TestInMemorySettingsCache_Replace(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	cache, err := NewInMemorySettingsCache(loadTestSettings(t, logger), "", logger)
	if err != nil {
		t.Fatalf("NewInMemorySettingsCache() unexpected error = %v", err)
	}

	invalid := loadTestSettings(t, logger)
	invalid.Ranks = nil
	if err := cache.Replace(invalid); err == nil {
		t.Error("Replace() expected validation error, got nil")
	}

	valid := loadTestSettings(t, logger)
	valid.Version = "from-db"
	if err := cache.Replace(valid); err != nil {
		t.Fatalf("Replace() unexpected error = %v", err)
	}
	if cache.Snapshot().Settings.Version != "from-db" {
		t.Errorf("expected replaced version, got %q", cache.Snapshot().Settings.Version)
	}
}

func TestInMemorySettingsCache_ThreadSafety(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	cache, err := NewInMemorySettingsCache(loadTestSettings(t, logger), sharedSettingsPath, logger)
	if err != nil {
		t.Fatalf("NewInMemorySettingsCache() unexpected error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)

		go func() {
			defer wg.Done()
			snap := cache.Snapshot()
			_, _ = snap.Settings.RewardType("gold")
		}()

		go func() {
			defer wg.Done()
			_ = cache.Reload()
		}()
	}

	wg.Wait()

	if cache.Snapshot().Generation < 2 {
		t.Error("expected at least one successful reload")
	}
}

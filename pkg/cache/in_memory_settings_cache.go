package cache

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/hearthquest/quest-engine-common/pkg/config"
	"github.com/hearthquest/quest-engine-common/pkg/rank"
)

// InMemorySettingsCache keeps the current settings snapshot in memory.
// The snapshot is built at startup from a prepared Settings value and replaced
// wholesale on Reload.
type InMemorySettingsCache struct {
	current      *Snapshot
	settingsPath string // Path to settings file (for reload), empty when built in code
	mu           sync.RWMutex
	logger       *slog.Logger
}

// NewInMemorySettingsCache creates a new cache from prepared settings.
//
// Parameters:
//   - settings: Settings that passed config.Prepare (or came from the loader)
//   - settingsPath: Path to the settings file used by Reload; may be empty
//   - logger: Structured logger for operational logging
//
// Returns an error if the rank ladder cannot be built.
func NewInMemorySettingsCache(settings *config.Settings, settingsPath string, logger *slog.Logger) (*InMemorySettingsCache, error) {
	c := &InMemorySettingsCache{
		settingsPath: settingsPath,
		logger:       logger,
	}

	if err := c.build(settings); err != nil {
		return nil, err
	}

	return c, nil
}

// build constructs a new snapshot and swaps it in.
func (c *InMemorySettingsCache) build(settings *config.Settings) error {
	ladder, err := rank.NewLadder(settings.Ranks)
	if err != nil {
		return fmt.Errorf("failed to build rank ladder: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var generation uint64 = 1
	if c.current != nil {
		generation = c.current.Generation + 1
	}

	c.current = &Snapshot{
		Settings:   settings,
		Ladder:     ladder,
		Generation: generation,
	}

	c.logger.Info("Settings cache built successfully",
		"version", settings.Version,
		"generation", generation,
		"reward_types", len(settings.RewardTypes),
		"ranks", ladder.Len(),
	)

	return nil
}

// Snapshot returns the current settings version.
func (c *InMemorySettingsCache) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.current
}

// Reload reloads the cache from the settings file.
//
// Returns:
//   - error: If no settings path is configured, the file cannot be read or validation fails
func (c *InMemorySettingsCache) Reload() error {
	if c.settingsPath == "" {
		return fmt.Errorf("settings cache has no settings path to reload from")
	}

	loader := config.NewSettingsLoader(c.settingsPath, c.logger)
	settings, err := loader.LoadSettings()
	if err != nil {
		c.logger.Warn("Settings reload failed, keeping previous snapshot", "error", err)
		return err
	}

	if err := c.build(settings); err != nil {
		return err
	}

	c.logger.Info("Settings cache reloaded successfully")

	return nil
}

// Replace swaps in settings built by the surrounding app (e.g. fetched from a database).
func (c *InMemorySettingsCache) Replace(settings *config.Settings) error {
	if err := config.Prepare(settings); err != nil {
		return fmt.Errorf("settings validation failed: %w", err)
	}
	return c.build(settings)
}

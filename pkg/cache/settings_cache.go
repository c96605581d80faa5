package cache

import (
	"github.com/hearthquest/quest-engine-common/pkg/config"
	"github.com/hearthquest/quest-engine-common/pkg/rank"
)

// Snapshot is one immutable version of the engine settings.
// Engine operations take a single snapshot per call so a concurrent reload never
// mixes two versions inside one computation.
type Snapshot struct {
	Settings   *config.Settings
	Ladder     *rank.Ladder
	Generation uint64 // increments on every successful reload
}

// SettingsCache is the Settings Source the engine reads from.
// It serves the valuation config, the rank ladder and the reward type registry.
// All lookups are read-only and thread-safe.
type SettingsCache interface {
	// Snapshot returns the current settings version.
	// Time complexity: O(1)
	Snapshot() *Snapshot

	// Reload reloads the settings from their source.
	// On failure the previous snapshot stays in place.
	Reload() error
}

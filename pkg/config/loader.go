package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/hearthquest/quest-engine-common/pkg/domain"
)

// SettingsLoader loads and validates engine settings from a JSON file.
// It performs file reading, JSON parsing, normalisation and comprehensive validation.
type SettingsLoader struct {
	settingsPath string
	logger       *slog.Logger
}

// NewSettingsLoader creates a new SettingsLoader instance.
//
// Parameters:
//   - settingsPath: Path to the settings.json file
//   - logger: Structured logger for operational logging
func NewSettingsLoader(settingsPath string, logger *slog.Logger) *SettingsLoader {
	return &SettingsLoader{
		settingsPath: settingsPath,
		logger:       logger,
	}
}

// LoadSettings loads the settings file and returns prepared Settings.
// This method performs three steps:
// 1. Read the settings file from disk
// 2. Parse JSON into Settings
// 3. Normalise IDs and validate all business rules
//
// This is a "fail fast" operation: an unknown category or a missing fee rejects the
// whole file instead of silently defaulting.
func (l *SettingsLoader) LoadSettings() (*Settings, error) {
	data, err := os.ReadFile(l.settingsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	settings, err := ParseSettings(data)
	if err != nil {
		return nil, err
	}

	l.logger.Info("Settings loaded successfully",
		"version", settings.Version,
		"reward_types", len(settings.RewardTypes),
		"ranks", len(settings.Ranks),
		"exchange_rates", len(settings.Valuation.ExchangeRates),
		"settings_path", l.settingsPath,
	)

	return settings, nil
}

// ParseSettings parses, normalises and prepares settings from raw JSON.
func ParseSettings(data []byte) (*Settings, error) {
	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings JSON: %w", err)
	}

	normalise(&settings)

	if err := Prepare(&settings); err != nil {
		return nil, fmt.Errorf("settings validation failed: %w", err)
	}

	return &settings, nil
}

// normalise trims identifiers and lowercases categories so hand-edited files
// with "Currency" or " gold " still validate.
func normalise(s *Settings) {
	for i := range s.RewardTypes {
		s.RewardTypes[i].ID = strings.TrimSpace(s.RewardTypes[i].ID)
		s.RewardTypes[i].Category = domain.RewardCategory(strings.ToLower(strings.TrimSpace(string(s.RewardTypes[i].Category))))
	}
	for i := range s.Ranks {
		s.Ranks[i].ID = strings.TrimSpace(s.Ranks[i].ID)
	}
	s.Valuation.AnchorRewardID = strings.TrimSpace(s.Valuation.AnchorRewardID)
	s.RankRewardID = strings.TrimSpace(s.RankRewardID)
}

package config

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/hearthquest/quest-engine-common/pkg/domain"
)

// maxPrecision bounds RewardTypeDefinition.Precision.
const maxPrecision = 8

// Validator validates engine settings.
// It ensures all business rules are met before the settings are used.
type Validator struct{}

// NewValidator creates a new Validator instance.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate performs comprehensive validation of the settings.
// It checks for:
// - A non-empty reward type registry with unique IDs and known categories
// - An exchange fee for every category in use, between 0 and 100
// - A registered anchor that does not appear in the rate table
// - Positive rates for registered reward types only
// - A rank ladder with a threshold-0 floor and unique rank IDs
// - A registered XP reward type as ranking metric
//
// Returns an error describing the first validation failure encountered.
func (v *Validator) Validate(s *Settings) error {
	if len(s.RewardTypes) == 0 {
		return errors.New("settings must define at least one reward type")
	}

	fees := feeTable(s.Valuation)
	registry := make(map[string]domain.RewardTypeDefinition, len(s.RewardTypes))
	for _, rt := range s.RewardTypes {
		if err := v.validateRewardType(rt); err != nil {
			return fmt.Errorf("invalid reward type '%s': %w", rt.ID, err)
		}
		if _, dup := registry[rt.ID]; dup {
			return fmt.Errorf("duplicate reward type ID: %s", rt.ID)
		}
		if _, ok := fees[rt.Category]; !ok {
			return fmt.Errorf("reward type '%s' has category '%s' with no exchange fee", rt.ID, rt.Category)
		}
		registry[rt.ID] = rt
	}

	if err := v.validateValuation(s.Valuation, registry); err != nil {
		return fmt.Errorf("invalid valuation: %w", err)
	}

	if err := v.validateRanks(s.Ranks); err != nil {
		return fmt.Errorf("invalid ranks: %w", err)
	}

	if s.RankRewardID == "" {
		return errors.New("rankRewardId cannot be empty")
	}
	rankReward, ok := registry[s.RankRewardID]
	if !ok {
		return fmt.Errorf("rankRewardId '%s' is not a registered reward type", s.RankRewardID)
	}
	if rankReward.Category != domain.RewardCategoryXP {
		return fmt.Errorf("rankRewardId '%s' must be an XP reward type (category: '%s')", s.RankRewardID, rankReward.Category)
	}

	return nil
}

// validateRewardType validates a single registry entry.
func (v *Validator) validateRewardType(rt domain.RewardTypeDefinition) error {
	if rt.ID == "" {
		return errors.New("reward type ID cannot be empty")
	}
	if !rt.Category.IsValid() {
		return fmt.Errorf("invalid category '%s' (must be 'currency' or 'xp')", rt.Category)
	}
	if rt.Precision < 0 || rt.Precision > maxPrecision {
		return fmt.Errorf("precision must be between 0 and %d", maxPrecision)
	}
	return nil
}

// validateValuation validates anchor, rates and fees.
func (v *Validator) validateValuation(val RewardValuationConfig, registry map[string]domain.RewardTypeDefinition) error {
	if val.AnchorRewardID == "" {
		return errors.New("anchorRewardId cannot be empty")
	}
	if _, ok := registry[val.AnchorRewardID]; !ok {
		return fmt.Errorf("anchor '%s' is not a registered reward type", val.AnchorRewardID)
	}
	if _, ok := val.ExchangeRates[val.AnchorRewardID]; ok {
		return fmt.Errorf("anchor '%s' must not appear in exchangeRates", val.AnchorRewardID)
	}

	for id, rate := range val.ExchangeRates {
		if _, ok := registry[id]; !ok {
			return fmt.Errorf("exchange rate for unknown reward type '%s'", id)
		}
		if !rate.IsPositive() {
			return fmt.Errorf("exchange rate for '%s' must be positive", id)
		}
	}

	hundred := decimal.NewFromInt(100)
	for category, fee := range feeTable(val) {
		if fee.IsNegative() || fee.GreaterThanOrEqual(hundred) {
			return fmt.Errorf("%s exchange fee must be in [0, 100), got %s", category, fee)
		}
	}

	return nil
}

// validateRanks validates the rank ladder.
func (v *Validator) validateRanks(ranks []domain.RankDefinition) error {
	if len(ranks) == 0 {
		return errors.New("at least one rank is required")
	}

	ids := make(map[string]bool, len(ranks))
	hasFloor := false
	for _, r := range ranks {
		if r.ID == "" {
			return errors.New("rank ID cannot be empty")
		}
		if ids[r.ID] {
			return fmt.Errorf("duplicate rank ID: %s", r.ID)
		}
		ids[r.ID] = true

		if r.XPThreshold < 0 {
			return fmt.Errorf("rank '%s' has negative xpThreshold", r.ID)
		}
		if r.XPThreshold == 0 {
			hasFloor = true
		}
	}

	if !hasFloor {
		return errors.New("a rank with xpThreshold 0 is required as the floor")
	}

	return nil
}

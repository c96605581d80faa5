package config

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/hearthquest/quest-engine-common/pkg/domain"
)

// RewardValuationConfig holds the anchor currency and the exchange fee settings.
type RewardValuationConfig struct {
	// AnchorRewardID is the reference reward type all rates are expressed against.
	AnchorRewardID string `json:"anchorRewardId"`

	// ExchangeRates maps a non-anchor reward type to the units of it equal to 1 anchor unit (pre-fee).
	ExchangeRates map[string]decimal.Decimal `json:"exchangeRates"`

	CurrencyExchangeFeePercent decimal.Decimal `json:"currencyExchangeFeePercent"`
	XPExchangeFeePercent       decimal.Decimal `json:"xpExchangeFeePercent"`
}

// Settings is the read-only reference data every engine call works against:
// valuation config, rank ladder and reward type registry.
// The surrounding app owns reload and versioning; the engine never mutates Settings.
type Settings struct {
	Version     string                        `json:"version"`
	Valuation   RewardValuationConfig         `json:"valuation"`
	RewardTypes []domain.RewardTypeDefinition `json:"rewardTypes"`
	Ranks       []domain.RankDefinition       `json:"ranks"`

	// RankRewardID is the XP reward type whose lifetime total drives rank progression.
	RankRewardID string `json:"rankRewardId"`

	rewardTypesByID map[string]domain.RewardTypeDefinition
	feeByCategory   map[domain.RewardCategory]decimal.Decimal
}

// Prepare validates s and builds its lookup tables.
// Settings built in code must be prepared before use; SettingsLoader does it for files.
func Prepare(s *Settings) error {
	if err := NewValidator().Validate(s); err != nil {
		return err
	}

	s.rewardTypesByID = make(map[string]domain.RewardTypeDefinition, len(s.RewardTypes))
	for _, rt := range s.RewardTypes {
		s.rewardTypesByID[rt.ID] = rt
	}
	s.feeByCategory = feeTable(s.Valuation)

	return nil
}

// feeTable maps every reward category to its exchange fee percent.
func feeTable(v RewardValuationConfig) map[domain.RewardCategory]decimal.Decimal {
	return map[domain.RewardCategory]decimal.Decimal{
		domain.RewardCategoryCurrency: v.CurrencyExchangeFeePercent,
		domain.RewardCategoryXP:       v.XPExchangeFeePercent,
	}
}

// RewardType looks up a registered reward type.
func (s *Settings) RewardType(id string) (domain.RewardTypeDefinition, bool) {
	rt, ok := s.rewardTypesByID[id]
	return rt, ok
}

// FeePercent returns the exchange fee charged when spending a reward of the given category.
func (s *Settings) FeePercent(category domain.RewardCategory) (decimal.Decimal, error) {
	fee, ok := s.feeByCategory[category]
	if !ok {
		return decimal.Zero, fmt.Errorf("no exchange fee configured for category %q", category)
	}
	return fee, nil
}

// Rate returns the units of rewardID equal to one anchor unit (pre-fee).
// The anchor itself has rate 1. ok is false when no rate is configured.
func (s *Settings) Rate(rewardID string) (decimal.Decimal, bool) {
	if rewardID == s.Valuation.AnchorRewardID {
		return decimal.NewFromInt(1), true
	}
	rate, ok := s.Valuation.ExchangeRates[rewardID]
	return rate, ok
}

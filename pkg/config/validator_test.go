package config

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/hearthquest/quest-engine-common/pkg/domain"
)

func validSettings() *Settings {
	return &Settings{
		Version: "test",
		Valuation: RewardValuationConfig{
			AnchorRewardID: "gold",
			ExchangeRates: map[string]decimal.Decimal{
				"gems": decimal.NewFromInt(10),
				"xp":   decimal.NewFromInt(100),
			},
			CurrencyExchangeFeePercent: decimal.NewFromInt(5),
			XPExchangeFeePercent:       decimal.NewFromInt(10),
		},
		RewardTypes: []domain.RewardTypeDefinition{
			{ID: "gold", Name: "Gold", Category: domain.RewardCategoryCurrency, Precision: 2},
			{ID: "gems", Name: "Gems", Category: domain.RewardCategoryCurrency},
			{ID: "xp", Name: "XP", Category: domain.RewardCategoryXP},
		},
		Ranks: []domain.RankDefinition{
			{ID: "novice", XPThreshold: 0},
			{ID: "squire", XPThreshold: 100},
		},
		RankRewardID: "xp",
	}
}

func TestValidator_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Settings)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid settings",
			mutate:  func(s *Settings) {},
			wantErr: false,
		},
		{
			name:    "no reward types",
			mutate:  func(s *Settings) { s.RewardTypes = nil },
			wantErr: true,
			errMsg:  "at least one reward type",
		},
		{
			name:    "empty reward type ID",
			mutate:  func(s *Settings) { s.RewardTypes[1].ID = "" },
			wantErr: true,
			errMsg:  "reward type ID cannot be empty",
		},
		{
			name: "duplicate reward type ID",
			mutate: func(s *Settings) {
				s.RewardTypes = append(s.RewardTypes, domain.RewardTypeDefinition{ID: "gems", Category: domain.RewardCategoryCurrency})
			},
			wantErr: true,
			errMsg:  "duplicate reward type ID: gems",
		},
		{
			name:    "unknown category",
			mutate:  func(s *Settings) { s.RewardTypes[1].Category = "token" },
			wantErr: true,
			errMsg:  "invalid category 'token'",
		},
		{
			name:    "precision out of range",
			mutate:  func(s *Settings) { s.RewardTypes[0].Precision = 12 },
			wantErr: true,
			errMsg:  "precision must be between 0 and 8",
		},
		{
			name:    "missing anchor",
			mutate:  func(s *Settings) { s.Valuation.AnchorRewardID = "" },
			wantErr: true,
			errMsg:  "anchorRewardId cannot be empty",
		},
		{
			name:    "unregistered anchor",
			mutate:  func(s *Settings) { s.Valuation.AnchorRewardID = "silver" },
			wantErr: true,
			errMsg:  "anchor 'silver' is not a registered reward type",
		},
		{
			name:    "anchor has a rate",
			mutate:  func(s *Settings) { s.Valuation.ExchangeRates["gold"] = decimal.NewFromInt(1) },
			wantErr: true,
			errMsg:  "must not appear in exchangeRates",
		},
		{
			name:    "rate for unknown reward type",
			mutate:  func(s *Settings) { s.Valuation.ExchangeRates["tokens"] = decimal.NewFromInt(3) },
			wantErr: true,
			errMsg:  "exchange rate for unknown reward type 'tokens'",
		},
		{
			name:    "zero rate",
			mutate:  func(s *Settings) { s.Valuation.ExchangeRates["gems"] = decimal.Zero },
			wantErr: true,
			errMsg:  "exchange rate for 'gems' must be positive",
		},
		{
			name:    "negative fee",
			mutate:  func(s *Settings) { s.Valuation.CurrencyExchangeFeePercent = decimal.NewFromInt(-1) },
			wantErr: true,
			errMsg:  "currency exchange fee must be in [0, 100)",
		},
		{
			name:    "fee of 100 percent",
			mutate:  func(s *Settings) { s.Valuation.XPExchangeFeePercent = decimal.NewFromInt(100) },
			wantErr: true,
			errMsg:  "xp exchange fee must be in [0, 100)",
		},
		{
			name:    "no ranks",
			mutate:  func(s *Settings) { s.Ranks = nil },
			wantErr: true,
			errMsg:  "at least one rank is required",
		},
		{
			name:    "no floor rank",
			mutate:  func(s *Settings) { s.Ranks[0].XPThreshold = 10 },
			wantErr: true,
			errMsg:  "xpThreshold 0 is required",
		},
		{
			name:    "duplicate rank",
			mutate:  func(s *Settings) { s.Ranks[1].ID = "novice" },
			wantErr: true,
			errMsg:  "duplicate rank ID: novice",
		},
		{
			name:    "negative threshold",
			mutate:  func(s *Settings) { s.Ranks[1].XPThreshold = -5 },
			wantErr: true,
			errMsg:  "negative xpThreshold",
		},
		{
			name:    "rank reward missing",
			mutate:  func(s *Settings) { s.RankRewardID = "" },
			wantErr: true,
			errMsg:  "rankRewardId cannot be empty",
		},
		{
			name:    "rank reward not XP",
			mutate:  func(s *Settings) { s.RankRewardID = "gems" },
			wantErr: true,
			errMsg:  "must be an XP reward type",
		},
	}

	validator := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)

			err := validator.Validate(s)

			if tt.wantErr {
				if err == nil {
					t.Fatal("Validate() expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Validate() error = %v, want containing %q", err, tt.errMsg)
				}
				return
			}

			if err != nil {
				t.Errorf("Validate() unexpected error = %v", err)
			}
		})
	}
}

func TestPrepare_BuildsLookups(t *testing.T) {
	s := validSettings()
	if err := Prepare(s); err != nil {
		t.Fatalf("Prepare() unexpected error = %v", err)
	}

	fee, err := s.FeePercent(domain.RewardCategoryXP)
	if err != nil || !fee.Equal(decimal.NewFromInt(10)) {
		t.Errorf("FeePercent(xp) = %s, %v", fee, err)
	}

	if _, err := s.FeePercent("token"); err == nil {
		t.Error("FeePercent(unknown) expected error")
	}

	rate, ok := s.Rate("gold")
	if !ok || !rate.Equal(decimal.NewFromInt(1)) {
		t.Errorf("anchor rate = %s (ok=%v), want 1", rate, ok)
	}

	if _, ok := s.Rate("silver"); ok {
		t.Error("expected no rate for unregistered reward type")
	}
}

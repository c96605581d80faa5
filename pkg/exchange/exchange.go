// Package exchange converts between reward types through the anchor currency.
//
// Every rate is expressed as units of a reward type per one anchor unit, before
// fees. The fee is always charged on the reward being spent, in percent of the
// pre-fee amount, and looked up by the spent reward's category.
package exchange

import (
	"github.com/shopspring/decimal"

	"github.com/hearthquest/quest-engine-common/pkg/config"
	"github.com/hearthquest/quest-engine-common/pkg/domain"
	"github.com/hearthquest/quest-engine-common/pkg/errors"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// Quote is the cost of receiving DesiredToAmount of ToRewardID by spending FromRewardID.
type Quote struct {
	FromRewardID    string
	ToRewardID      string
	DesiredToAmount decimal.Decimal

	ToAnchorUnits  decimal.Decimal
	BaseFromAmount decimal.Decimal
	FeePercent     decimal.Decimal
	Fee            decimal.Decimal

	// RequiredFromAmount is the unrounded cost; SettledFromAmount is rounded up to
	// the smallest unit of the spent reward and is what execution debits.
	RequiredFromAmount decimal.Decimal
	SettledFromAmount  decimal.Decimal

	FromBalance decimal.Decimal

	// MaxAffordableToAmount is the most of ToRewardID FromBalance can buy, unrounded.
	// MaxAffordableSettled is the same amount rounded down to the received reward's
	// smallest unit.
	MaxAffordableToAmount decimal.Decimal
	MaxAffordableSettled  decimal.Decimal
}

// Affordable reports whether the settled cost fits in the quoted balance.
func (q *Quote) Affordable() bool {
	return q.SettledFromAmount.LessThanOrEqual(q.FromBalance)
}

// pair is a resolved exchange pair.
type pair struct {
	from, to         domain.RewardTypeDefinition
	fromRate, toRate decimal.Decimal
	feePercent       decimal.Decimal
}

func resolve(settings *config.Settings, fromID, toID string) (*pair, error) {
	if fromID == toID {
		return nil, errors.ErrUnsupportedExchangePair(fromID, toID)
	}

	from, ok := settings.RewardType(fromID)
	if !ok {
		return nil, errors.ErrUnsupportedExchangePair(fromID, toID)
	}
	to, ok := settings.RewardType(toID)
	if !ok {
		return nil, errors.ErrUnsupportedExchangePair(fromID, toID)
	}

	fromRate, ok := settings.Rate(fromID)
	if !ok {
		return nil, errors.ErrUnsupportedExchangePair(fromID, toID)
	}
	toRate, ok := settings.Rate(toID)
	if !ok {
		return nil, errors.ErrUnsupportedExchangePair(fromID, toID)
	}

	fee, err := settings.FeePercent(from.Category)
	if err != nil {
		return nil, errors.ErrConfigInvalid(err.Error())
	}

	return &pair{from: from, to: to, fromRate: fromRate, toRate: toRate, feePercent: fee}, nil
}

// NewQuote prices an exchange.
//
// Parameters:
//   - settings: Prepared settings snapshot
//   - fromID: Reward type being spent
//   - toID: Reward type being received
//   - desired: Amount of toID wanted, positive and whole in toID's smallest unit
//   - fromBalance: Current balance of fromID; negative values are treated as zero
//
// Returns UNSUPPORTED_EXCHANGE_PAIR when either side has no rate or both are the same,
// and INVALID_INPUT for a desired amount that cannot be received.
func NewQuote(settings *config.Settings, fromID, toID string, desired, fromBalance decimal.Decimal) (*Quote, error) {
	p, err := resolve(settings, fromID, toID)
	if err != nil {
		return nil, err
	}

	if !desired.IsPositive() {
		return nil, errors.ErrInvalidInput("desiredToAmount", "must be positive")
	}
	if !desired.Equal(desired.Truncate(p.to.Precision)) {
		return nil, errors.ErrInvalidInput("desiredToAmount", "finer than the smallest unit of "+toID)
	}
	if fromBalance.IsNegative() {
		fromBalance = decimal.Zero
	}

	// Multiply before dividing: Div rounds to 16 places, and a residue left
	// there would be rounded up to a whole unit by RoundCeil.
	toAnchor := desired.Div(p.toRate)
	base := desired.Mul(p.fromRate).Div(p.toRate)
	fee := base.Mul(p.feePercent).Div(hundred)
	required := base.Add(fee)

	// balance * rate(to) * 100 / (rate(from) * (100 + fee%))
	maxTo := fromBalance.Mul(p.toRate).Mul(hundred).
		Div(p.fromRate.Mul(hundred.Add(p.feePercent)))

	return &Quote{
		FromRewardID:          fromID,
		ToRewardID:            toID,
		DesiredToAmount:       desired,
		ToAnchorUnits:         toAnchor,
		BaseFromAmount:        base,
		FeePercent:            p.feePercent,
		Fee:                   fee,
		RequiredFromAmount:    required,
		SettledFromAmount:     required.RoundCeil(p.from.Precision),
		FromBalance:           fromBalance,
		MaxAffordableToAmount: maxTo,
		MaxAffordableSettled:  maxTo.RoundFloor(p.to.Precision),
	}, nil
}

// AnchorValue is amount of rewardID expressed in anchor units, before fees.
func AnchorValue(settings *config.Settings, rewardID string, amount decimal.Decimal) (decimal.Decimal, error) {
	rate, ok := settings.Rate(rewardID)
	if !ok {
		return decimal.Zero, errors.ErrUnsupportedExchangePair(rewardID, settings.Valuation.AnchorRewardID)
	}
	return amount.Div(rate), nil
}

// RateView holds the display rates of one reward type against the anchor.
// UnitsPerAnchor and CostToBuyAnchor differ by the fee and must not be shown as one
// number for both directions.
type RateView struct {
	RewardTypeID   string
	AnchorRewardID string

	// UnitsPerAnchor is how many units equal one anchor unit, before fees.
	UnitsPerAnchor decimal.Decimal

	// CostToBuyAnchor is how many units it costs to buy one anchor unit, fee included.
	CostToBuyAnchor decimal.Decimal

	// AnchorCostPerUnit is how many anchor units it costs to buy one unit, fee included.
	AnchorCostPerUnit decimal.Decimal
}

// Rates returns the display rates of rewardID against the anchor.
func Rates(settings *config.Settings, rewardID string) (*RateView, error) {
	anchorID := settings.Valuation.AnchorRewardID

	rt, ok := settings.RewardType(rewardID)
	if !ok {
		return nil, errors.ErrUnsupportedExchangePair(rewardID, anchorID)
	}
	rate, ok := settings.Rate(rewardID)
	if !ok {
		return nil, errors.ErrUnsupportedExchangePair(rewardID, anchorID)
	}
	anchor, ok := settings.RewardType(anchorID)
	if !ok {
		return nil, errors.ErrConfigInvalid("anchor reward type '" + anchorID + "' is not registered")
	}

	ownFee, err := settings.FeePercent(rt.Category)
	if err != nil {
		return nil, errors.ErrConfigInvalid(err.Error())
	}
	anchorFee, err := settings.FeePercent(anchor.Category)
	if err != nil {
		return nil, errors.ErrConfigInvalid(err.Error())
	}

	return &RateView{
		RewardTypeID:      rewardID,
		AnchorRewardID:    anchorID,
		UnitsPerAnchor:    rate,
		CostToBuyAnchor:   rate.Mul(one.Add(ownFee.Div(hundred))),
		AnchorCostPerUnit: one.Add(anchorFee.Div(hundred)).Div(rate),
	}, nil
}

package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func optionLeg(action LegAction, optionType OptionType, strike, premium float64) *StrategyLeg {
	leg := NewStrategyLeg(InstrumentTypeOption, "TEST", "TEST", action, decimal.NewFromInt(1))
	leg.StrikePrice = decimal.NewFromFloat(strike)
	leg.OptionType = optionType
	leg.ExpiryDate = time.Now().AddDate(0, 0, 30)
	leg.MarketPrice = decimal.NewFromFloat(premium)
	return leg
}

func TestResolveStrike(t *testing.T) {
	atm := decimal.NewFromFloat(102.3)
	interval := decimal.NewFromInt(5)

	tests := []struct {
		name     string
		template LegTemplate
		want     int64
	}{
		{"atm rounds to nearest interval", LegTemplate{OptionType: OptionTypeCall, StrikePolicy: StrikePolicyATM}, 100},
		{"otm call offsets up", LegTemplate{OptionType: OptionTypeCall, StrikePolicy: StrikePolicyOTM, StrikeOffset: 2}, 110},
		{"otm put offsets down", LegTemplate{OptionType: OptionTypePut, StrikePolicy: StrikePolicyOTM, StrikeOffset: 2}, 90},
		{"itm call offsets down", LegTemplate{OptionType: OptionTypeCall, StrikePolicy: StrikePolicyITM, StrikeOffset: 2}, 90},
		{"itm put offsets up", LegTemplate{OptionType: OptionTypePut, StrikePolicy: StrikePolicyITM, StrikeOffset: 2}, 110},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveStrike(tt.template, atm, interval)
			assert.True(t, got.Equal(decimal.NewFromInt(tt.want)), "got %s want %d", got, tt.want)
		})
	}
}

func TestBuildFromTemplateUnknownType(t *testing.T) {
	catalog := NewStrategyCatalog()
	_, err := catalog.BuildFromTemplate("GAMMA_SCALP", "BTC", decimal.NewFromInt(100), decimal.NewFromInt(5))
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestBuildFromTemplateBullCallSpread(t *testing.T) {
	catalog := NewStrategyCatalog()
	strategy, err := catalog.BuildFromTemplate(StrategyTypeBullCallSpread, "BTC", decimal.NewFromInt(100), decimal.NewFromInt(5))
	require.NoError(t, err)

	require.Len(t, strategy.Legs, 2)
	assert.Equal(t, LegActionBuy, strategy.Legs[0].Action)
	assert.True(t, strategy.Legs[0].StrikePrice.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, LegActionSell, strategy.Legs[1].Action)
	assert.True(t, strategy.Legs[1].StrikePrice.Equal(decimal.NewFromInt(110)))
	assert.Equal(t, StrategyStatusDraft, strategy.Status)
	assert.Equal(t, OrderTypeMarket, strategy.Legs[0].OrderType)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, DefaultExpiryDays), strategy.Legs[0].ExpiryDate, time.Minute)
}

func TestRecomputeBullCallSpreadProfile(t *testing.T) {
	strategy := NewStrategy("bcs", StrategyTypeBullCallSpread, "TEST")
	strategy = strategy.
		AddLeg(optionLeg(LegActionBuy, OptionTypeCall, 100, 5)).
		AddLeg(optionLeg(LegActionSell, OptionTypeCall, 110, 2))

	// 买入付 5，卖出收 2
	assert.True(t, strategy.NetPremium.Equal(decimal.NewFromInt(-3)), "net premium %s", strategy.NetPremium)

	assert.False(t, strategy.MaxProfitUnlimited)
	assert.False(t, strategy.MaxLossUnlimited)
	assert.True(t, strategy.MaxProfit.Equal(decimal.NewFromInt(7)), "max profit %s", strategy.MaxProfit)
	assert.True(t, strategy.MaxLoss.Equal(decimal.NewFromInt(3)), "max loss %s", strategy.MaxLoss)

	require.Len(t, strategy.BreakevenPoints, 1)
	assert.True(t, strategy.BreakevenPoints[0].Equal(decimal.NewFromInt(103)), "breakeven %s", strategy.BreakevenPoints[0])

	// 保证金为最大亏损的 1.2 倍
	assert.True(t, strategy.MarginRequired.Equal(decimal.NewFromFloat(3.6)), "margin %s", strategy.MarginRequired)
}

func TestRecomputeStraddleUnlimitedUpside(t *testing.T) {
	strategy := NewStrategy("straddle", StrategyTypeStraddle, "TEST")
	strategy = strategy.
		AddLeg(optionLeg(LegActionBuy, OptionTypeCall, 100, 4)).
		AddLeg(optionLeg(LegActionBuy, OptionTypePut, 100, 3))

	assert.True(t, strategy.MaxProfitUnlimited)
	assert.False(t, strategy.MaxLossUnlimited)
	assert.True(t, strategy.MaxLoss.Equal(decimal.NewFromInt(7)), "max loss %s", strategy.MaxLoss)

	require.Len(t, strategy.BreakevenPoints, 2)
	assert.True(t, strategy.BreakevenPoints[0].Equal(decimal.NewFromInt(93)))
	assert.True(t, strategy.BreakevenPoints[1].Equal(decimal.NewFromInt(107)))
}

func TestRecomputeIronCondorProfile(t *testing.T) {
	strategy := NewStrategy("ic", StrategyTypeIronCondor, "TEST")
	strategy = strategy.
		AddLeg(optionLeg(LegActionBuy, OptionTypePut, 90, 1.5)).
		AddLeg(optionLeg(LegActionSell, OptionTypePut, 95, 3)).
		AddLeg(optionLeg(LegActionSell, OptionTypeCall, 105, 3)).
		AddLeg(optionLeg(LegActionBuy, OptionTypeCall, 110, 1.5))

	// 净收入 3+3-1.5-1.5 = +3
	assert.True(t, strategy.NetPremium.Equal(decimal.NewFromInt(3)), "net premium %s", strategy.NetPremium)

	assert.False(t, strategy.MaxProfitUnlimited)
	assert.False(t, strategy.MaxLossUnlimited)
	assert.True(t, strategy.MaxProfit.Equal(decimal.NewFromInt(3)), "max profit %s", strategy.MaxProfit)
	assert.True(t, strategy.MaxLoss.Equal(decimal.NewFromInt(2)), "max loss %s", strategy.MaxLoss)

	require.Len(t, strategy.BreakevenPoints, 2)
	assert.True(t, strategy.BreakevenPoints[0].Equal(decimal.NewFromInt(92)), "lower breakeven %s", strategy.BreakevenPoints[0])
	assert.True(t, strategy.BreakevenPoints[1].Equal(decimal.NewFromInt(108)), "upper breakeven %s", strategy.BreakevenPoints[1])
}

func TestRecomputeShortCallUnlimitedLoss(t *testing.T) {
	strategy := NewStrategy("naked call", StrategyTypeCustom, "TEST")
	strategy = strategy.AddLeg(optionLeg(LegActionSell, OptionTypeCall, 100, 4))

	assert.True(t, strategy.MaxLossUnlimited)
	assert.False(t, strategy.MaxProfitUnlimited)
	assert.True(t, strategy.MaxProfit.Equal(decimal.NewFromInt(4)), "max profit %s", strategy.MaxProfit)
	assert.True(t, strategy.MarginRequired.IsZero())
}

func TestGreeksAggregationIsLinear(t *testing.T) {
	leg := optionLeg(LegActionBuy, OptionTypeCall, 100, 5)
	leg.Greeks = &Greeks{Delta: decimal.NewFromFloat(0.5), Theta: decimal.NewFromFloat(-0.1)}

	single := NewStrategy("s1", StrategyTypeCustom, "TEST").AddLeg(leg)

	doubled := leg.clone()
	doubled.Quantity = decimal.NewFromInt(2)
	double := NewStrategy("s2", StrategyTypeCustom, "TEST").AddLeg(doubled)

	assert.True(t, double.NetGreeks.Delta.Equal(single.NetGreeks.Delta.Mul(decimal.NewFromInt(2))))
	assert.True(t, double.NetGreeks.Theta.Equal(single.NetGreeks.Theta.Mul(decimal.NewFromInt(2))))

	// 卖出腿符号取反
	sold := leg.clone()
	sold.Action = LegActionSell
	short := NewStrategy("s3", StrategyTypeCustom, "TEST").AddLeg(sold)
	assert.True(t, short.NetGreeks.Delta.Equal(single.NetGreeks.Delta.Neg()))
}

func TestMutatorsReturnNewStrategy(t *testing.T) {
	original := NewStrategy("orig", StrategyTypeCustom, "TEST")
	withLeg := original.AddLeg(optionLeg(LegActionBuy, OptionTypeCall, 100, 5))

	assert.Empty(t, original.Legs)
	require.Len(t, withLeg.Legs, 1)

	updated := withLeg.Legs[0].clone()
	updated.MarketPrice = decimal.NewFromInt(6)
	mutated, err := withLeg.UpdateLeg(withLeg.Legs[0].ID, updated)
	require.NoError(t, err)
	assert.True(t, withLeg.Legs[0].MarketPrice.Equal(decimal.NewFromInt(5)))
	assert.True(t, mutated.Legs[0].MarketPrice.Equal(decimal.NewFromInt(6)))

	removed, err := mutated.RemoveLeg(mutated.Legs[0].ID)
	require.NoError(t, err)
	assert.Empty(t, removed.Legs)
	assert.True(t, removed.NetPremium.IsZero())

	_, err = mutated.RemoveLeg("LEG-missing")
	assert.ErrorIs(t, err, ErrLegNotFound)
}

func TestEmptyStrategyCannotLeaveDraft(t *testing.T) {
	strategy := NewStrategy("empty", StrategyTypeCustom, "TEST")
	assert.ErrorIs(t, strategy.MarkValidated(), ErrEmptyStrategy)
	assert.Equal(t, StrategyStatusDraft, strategy.Status)

	withLeg := strategy.AddLeg(optionLeg(LegActionBuy, OptionTypeCall, 100, 5))
	require.NoError(t, withLeg.MarkValidated())
	assert.Equal(t, StrategyStatusValidated, withLeg.Status)
	require.NoError(t, withLeg.MarkExecuted())
	assert.ErrorIs(t, withLeg.MarkExecuted(), ErrInvalidTransition)
}

func TestValidatorStructuralErrors(t *testing.T) {
	validator := NewStrategyValidator()

	empty := NewStrategy("empty", StrategyTypeCustom, "")
	result := validator.Validate(empty)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Errors, "underlying is required")
	assert.Contains(t, result.Errors, "strategy must have at least one leg")

	strategy := NewStrategy("bad", StrategyTypeCustom, "TEST")
	badLeg := NewStrategyLeg(InstrumentTypeOption, "TEST", "TEST", LegActionBuy, decimal.Zero)
	strategy = strategy.AddLeg(badLeg)
	result = validator.Validate(strategy)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Errors, "leg 1: quantity must be positive")
	assert.Contains(t, result.Errors, "leg 1: option leg requires strike price, option type and expiry date")
}

func TestValidatorRiskAssessment(t *testing.T) {
	validator := NewStrategyValidator()

	strategy := NewStrategy("bcs", StrategyTypeBullCallSpread, "TEST")
	strategy = strategy.
		AddLeg(optionLeg(LegActionBuy, OptionTypeCall, 100, 5)).
		AddLeg(optionLeg(LegActionSell, OptionTypeCall, 110, 2))

	result := validator.Validate(strategy)
	require.True(t, result.IsValid)
	require.NotNil(t, result.RiskAssessment)
	assert.Equal(t, RiskLevelLow, result.RiskAssessment.RiskLevel)
	assert.True(t, result.RiskAssessment.MarginRequirement.Equal(decimal.NewFromFloat(3.6)))

	naked := NewStrategy("naked", StrategyTypeCustom, "TEST")
	naked = naked.AddLeg(optionLeg(LegActionSell, OptionTypeCall, 100, 4))
	result = validator.Validate(naked)
	assert.Equal(t, RiskLevelCritical, result.RiskAssessment.RiskLevel)
	assert.Contains(t, result.Warnings, "strategy carries unlimited downside risk")
}

func TestValidateNeverMutates(t *testing.T) {
	strategy := NewStrategy("bcs", StrategyTypeBullCallSpread, "TEST")
	strategy = strategy.
		AddLeg(optionLeg(LegActionBuy, OptionTypeCall, 100, 5)).
		AddLeg(optionLeg(LegActionSell, OptionTypeCall, 110, 2))

	before := strategy.NetPremium
	status := strategy.Status
	NewStrategyValidator().Validate(strategy)
	assert.True(t, strategy.NetPremium.Equal(before))
	assert.Equal(t, status, strategy.Status)
}

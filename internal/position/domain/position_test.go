package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	executiondomain "github.com/wyfcoding/strategytrading/internal/execution/domain"
	strategydomain "github.com/wyfcoding/strategytrading/internal/strategy/domain"
)

func testStrategy() *strategydomain.Strategy {
	return &strategydomain.Strategy{
		ID:         "STRAT-1",
		Name:       "bull call spread",
		Type:       strategydomain.StrategyTypeBullCallSpread,
		Underlying: "AAPL",
		MaxProfit:  decimal.NewFromInt(7),
		MaxLoss:    decimal.NewFromInt(3),
	}
}

func filledLegResult(legID string, action strategydomain.LegAction, quantity, avgPrice float64) *executiondomain.LegExecutionResult {
	leg := &strategydomain.StrategyLeg{
		ID:             legID,
		InstrumentType: strategydomain.InstrumentTypeOption,
		Symbol:         "AAPL-20261218-100C",
		Underlying:     "AAPL",
		Action:         action,
		Quantity:       decimal.NewFromFloat(quantity),
		StrikePrice:    decimal.NewFromInt(100),
		OptionType:     strategydomain.OptionTypeCall,
		ExpiryDate:     time.Now().AddDate(0, 0, 30),
		OrderType:      strategydomain.OrderTypeMarket,
	}
	lr := executiondomain.NewLegExecutionResult(leg)
	if quantity > 0 {
		lr.VenueID = "V1"
		lr.BrokerOrderID = "ORD-" + legID
		if err := lr.ApplyFill(decimal.NewFromFloat(quantity), decimal.NewFromFloat(avgPrice)); err != nil {
			panic(err)
		}
	}
	return lr
}

func completedResult(status executiondomain.ExecutionStatus, legs ...*executiondomain.LegExecutionResult) *executiondomain.MultiLegExecutionResult {
	result := executiondomain.NewMultiLegExecutionResult("STRAT-1", len(legs))
	result.LegResults = legs
	result.Recalculate(false, false)
	result.Status = status
	return result
}

func TestNewPositionFromPendingExecutionFails(t *testing.T) {
	result := executiondomain.NewMultiLegExecutionResult("STRAT-1", 2)

	position, err := NewPositionFromExecution(testStrategy(), result)

	assert.Nil(t, position)
	assert.ErrorIs(t, err, ErrIncompleteExecution)
}

func TestNewPositionFromPartialExecutionKeepsFilledLegsOnly(t *testing.T) {
	filled := filledLegResult("LEG-1", strategydomain.LegActionBuy, 10, 5)
	unfilled := filledLegResult("LEG-2", strategydomain.LegActionSell, 0, 0)
	result := completedResult(executiondomain.ExecutionStatusPartial, filled, unfilled)

	position, err := NewPositionFromExecution(testStrategy(), result)

	require.NoError(t, err)
	assert.Equal(t, PositionStatusActive, position.Status)
	require.Len(t, position.Legs, 1)
	assert.Equal(t, "LEG-1", position.Legs[0].LegID)
	assert.True(t, position.Legs[0].EntryPrice.Equal(decimal.NewFromInt(5)))
	assert.True(t, position.Legs[0].CurrentPrice.Equal(decimal.NewFromInt(5)))
	assert.True(t, position.UnrealizedPnL.IsZero())
}

func TestNewPositionRequiresAtLeastOneFilledLeg(t *testing.T) {
	unfilled := filledLegResult("LEG-1", strategydomain.LegActionBuy, 0, 0)
	result := completedResult(executiondomain.ExecutionStatusPartial, unfilled)

	position, err := NewPositionFromExecution(testStrategy(), result)

	assert.Nil(t, position)
	assert.ErrorIs(t, err, ErrNoFilledLegs)
}

func TestApplyValuationComputesSignedLegPnL(t *testing.T) {
	buy := filledLegResult("LEG-1", strategydomain.LegActionBuy, 10, 5)
	sell := filledLegResult("LEG-2", strategydomain.LegActionSell, 10, 2)
	result := completedResult(executiondomain.ExecutionStatusCompleted, buy, sell)

	position, err := NewPositionFromExecution(testStrategy(), result)
	require.NoError(t, err)

	position.ApplyValuation(map[string]LegValuation{
		"LEG-1": {CurrentPrice: decimal.NewFromInt(8)},
		"LEG-2": {CurrentPrice: decimal.NewFromInt(3)},
	})

	// 买入腿 (8-5)*10 = +30，卖出腿 (3-2)*10*(-1) = -10
	assert.True(t, position.Legs[0].PnL.Equal(decimal.NewFromInt(30)), "buy leg pnl: %s", position.Legs[0].PnL)
	assert.True(t, position.Legs[1].PnL.Equal(decimal.NewFromInt(-10)), "sell leg pnl: %s", position.Legs[1].PnL)
	assert.True(t, position.UnrealizedPnL.Equal(decimal.NewFromInt(20)))
	// 多头按正、空头按负计入现值
	assert.True(t, position.CurrentValue.Equal(decimal.NewFromInt(50)), "current value: %s", position.CurrentValue)
	assert.True(t, position.TotalPnL.Equal(position.UnrealizedPnL.Add(position.RealizedPnL)))
}

func TestApplyValuationAggregatesNetGreeksWithSign(t *testing.T) {
	buy := filledLegResult("LEG-1", strategydomain.LegActionBuy, 2, 5)
	sell := filledLegResult("LEG-2", strategydomain.LegActionSell, 1, 2)
	result := completedResult(executiondomain.ExecutionStatusCompleted, buy, sell)

	position, err := NewPositionFromExecution(testStrategy(), result)
	require.NoError(t, err)

	position.ApplyValuation(map[string]LegValuation{
		"LEG-1": {
			CurrentPrice: decimal.NewFromInt(5),
			Greeks:       &strategydomain.Greeks{Delta: decimal.NewFromFloat(0.5), Theta: decimal.NewFromFloat(-0.1)},
		},
		"LEG-2": {
			CurrentPrice: decimal.NewFromInt(2),
			Greeks:       &strategydomain.Greeks{Delta: decimal.NewFromFloat(0.3), Theta: decimal.NewFromFloat(-0.2)},
		},
	})

	// delta = 0.5*2 - 0.3*1 = 0.7；theta = -0.1*2 + 0.2*1 = 0
	assert.True(t, position.NetGreeks.Delta.Equal(decimal.NewFromFloat(0.7)), "net delta: %s", position.NetGreeks.Delta)
	assert.True(t, position.NetGreeks.Theta.IsZero(), "net theta: %s", position.NetGreeks.Theta)
	assert.True(t, position.Metrics.NetDeltaExposure.Equal(decimal.NewFromFloat(0.7)))
}

func TestCloseRealizesPnLAndIsTerminal(t *testing.T) {
	buy := filledLegResult("LEG-1", strategydomain.LegActionBuy, 10, 5)
	result := completedResult(executiondomain.ExecutionStatusCompleted, buy)

	position, err := NewPositionFromExecution(testStrategy(), result)
	require.NoError(t, err)

	position.ApplyValuation(map[string]LegValuation{
		"LEG-1": {CurrentPrice: decimal.NewFromInt(8)},
	})
	require.True(t, position.UnrealizedPnL.Equal(decimal.NewFromInt(30)))

	require.NoError(t, position.Close())
	assert.Equal(t, PositionStatusClosed, position.Status)
	assert.True(t, position.UnrealizedPnL.IsZero())
	assert.True(t, position.RealizedPnL.Equal(decimal.NewFromInt(30)))
	assert.True(t, position.TotalPnL.Equal(decimal.NewFromInt(30)))
	assert.NotNil(t, position.ClosedAt)

	assert.ErrorIs(t, position.Close(), ErrPositionClosed)

	// 平仓后重估不再改变盈亏
	position.ApplyValuation(map[string]LegValuation{
		"LEG-1": {CurrentPrice: decimal.NewFromInt(100)},
	})
	assert.True(t, position.UnrealizedPnL.IsZero())
	assert.True(t, position.RealizedPnL.Equal(decimal.NewFromInt(30)))
}

func TestRefreshMarksExpiredOptionPosition(t *testing.T) {
	lr := filledLegResult("LEG-1", strategydomain.LegActionBuy, 1, 5)
	lr.Leg.ExpiryDate = time.Now().AddDate(0, 0, -1)
	result := completedResult(executiondomain.ExecutionStatusCompleted, lr)

	position, err := NewPositionFromExecution(testStrategy(), result)
	require.NoError(t, err)

	position.ApplyValuation(map[string]LegValuation{
		"LEG-1": {CurrentPrice: decimal.NewFromInt(5)},
	})

	assert.Equal(t, PositionStatusExpired, position.Status)
	assert.Equal(t, 0, position.DaysToExpiry)
}

func TestExcursionMetricsAreMonotone(t *testing.T) {
	buy := filledLegResult("LEG-1", strategydomain.LegActionBuy, 10, 5)
	result := completedResult(executiondomain.ExecutionStatusCompleted, buy)

	position, err := NewPositionFromExecution(testStrategy(), result)
	require.NoError(t, err)

	apply := func(price int64) {
		position.ApplyValuation(map[string]LegValuation{
			"LEG-1": {CurrentPrice: decimal.NewFromInt(price)},
		})
	}

	apply(9) // +40
	assert.True(t, position.Metrics.MaxFavorableExcursion.Equal(decimal.NewFromInt(40)))

	apply(3) // -20
	assert.True(t, position.Metrics.MaxFavorableExcursion.Equal(decimal.NewFromInt(40)), "MFE must not shrink")
	assert.True(t, position.Metrics.MaxAdverseExcursion.Equal(decimal.NewFromInt(-20)))

	apply(6) // +10
	assert.True(t, position.Metrics.MaxFavorableExcursion.Equal(decimal.NewFromInt(40)))
	assert.True(t, position.Metrics.MaxAdverseExcursion.Equal(decimal.NewFromInt(-20)), "MAE must not shrink")
}

func TestROIUsesAbsoluteNetPremiumAsBasis(t *testing.T) {
	// 净权利金为收入（卖方），基数取绝对值
	buy := filledLegResult("LEG-1", strategydomain.LegActionSell, 10, 5)
	result := completedResult(executiondomain.ExecutionStatusCompleted, buy)
	require.True(t, result.NetPremium.Equal(decimal.NewFromInt(50)))

	position, err := NewPositionFromExecution(testStrategy(), result)
	require.NoError(t, err)

	position.ApplyValuation(map[string]LegValuation{
		"LEG-1": {CurrentPrice: decimal.NewFromInt(4)}, // (4-5)*10*(-1) = +10
	})

	assert.True(t, position.UnrealizedPnL.Equal(decimal.NewFromInt(10)))
	// ROI = 10/50*100 = 20%
	assert.True(t, position.Metrics.ROI.Equal(decimal.NewFromInt(20)), "roi: %s", position.Metrics.ROI)
	assert.Equal(t, 1, position.Metrics.DaysHeld)
}

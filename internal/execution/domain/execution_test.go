package domain

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	strategydomain "github.com/wyfcoding/strategytrading/internal/strategy/domain"
)

func testLeg(action strategydomain.LegAction, quantity int64) *strategydomain.StrategyLeg {
	leg := strategydomain.NewStrategyLeg(strategydomain.InstrumentTypeOption, "TEST-C", "TEST", action, decimal.NewFromInt(quantity))
	leg.StrikePrice = decimal.NewFromInt(100)
	leg.OptionType = strategydomain.OptionTypeCall
	leg.ExpiryDate = time.Now().AddDate(0, 0, 30)
	leg.MarketPrice = decimal.NewFromInt(5)
	return leg
}

func TestApplyFillAveragePrice(t *testing.T) {
	lr := NewLegExecutionResult(testLeg(strategydomain.LegActionBuy, 10))

	require.NoError(t, lr.ApplyFill(decimal.NewFromInt(6), decimal.NewFromInt(5)))
	assert.Equal(t, LegStatusPartial, lr.GetStatus())
	assert.True(t, lr.AvgFillPrice.Equal(decimal.NewFromInt(5)))

	require.NoError(t, lr.ApplyFill(decimal.NewFromInt(4), decimal.NewFromInt(6)))
	assert.Equal(t, LegStatusFilled, lr.GetStatus())
	// (6*5 + 4*6) / 10 = 5.4
	assert.True(t, lr.AvgFillPrice.Equal(decimal.NewFromFloat(5.4)), "avg %s", lr.AvgFillPrice)
	assert.True(t, lr.FillValue.Equal(decimal.NewFromInt(54)))
	assert.Len(t, lr.Fills, 2)
}

func TestApplyFillNeverExceedsRequested(t *testing.T) {
	lr := NewLegExecutionResult(testLeg(strategydomain.LegActionBuy, 10))

	require.NoError(t, lr.ApplyFill(decimal.NewFromInt(8), decimal.NewFromInt(5)))
	require.NoError(t, lr.ApplyFill(decimal.NewFromInt(7), decimal.NewFromInt(5)))

	assert.True(t, lr.FilledQuantity.Equal(lr.RequestedQuantity))
	assert.Equal(t, LegStatusFilled, lr.GetStatus())

	// 已 FILLED 的腿拒绝追加成交
	assert.ErrorIs(t, lr.ApplyFill(decimal.NewFromInt(1), decimal.NewFromInt(5)), ErrExecutionTerminal)
}

func TestApplyFillRejectsNonPositiveQuantity(t *testing.T) {
	lr := NewLegExecutionResult(testLeg(strategydomain.LegActionBuy, 10))
	assert.ErrorIs(t, lr.ApplyFill(decimal.Zero, decimal.NewFromInt(5)), ErrInvalidFill)
	assert.ErrorIs(t, lr.ApplyFill(decimal.NewFromInt(-1), decimal.NewFromInt(5)), ErrInvalidFill)
}

func TestApplyFillConcurrentNoLostUpdates(t *testing.T) {
	lr := NewLegExecutionResult(testLeg(strategydomain.LegActionBuy, 100))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = lr.ApplyFill(decimal.NewFromInt(1), decimal.NewFromInt(5))
		}()
	}
	wg.Wait()

	assert.True(t, lr.FilledQuantity.Equal(decimal.NewFromInt(100)))
	assert.True(t, lr.AvgFillPrice.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, LegStatusFilled, lr.GetStatus())
}

func TestCancelOnlyAffectsOpenLegs(t *testing.T) {
	open := NewLegExecutionResult(testLeg(strategydomain.LegActionBuy, 10))
	assert.True(t, open.Cancel())
	assert.False(t, open.Cancel())
	assert.Equal(t, LegStatusCancelled, open.GetStatus())

	filled := NewLegExecutionResult(testLeg(strategydomain.LegActionBuy, 1))
	require.NoError(t, filled.ApplyFill(decimal.NewFromInt(1), decimal.NewFromInt(5)))
	assert.False(t, filled.Cancel())
	assert.Equal(t, LegStatusFilled, filled.GetStatus())
}

func TestSignedFillValue(t *testing.T) {
	buy := NewLegExecutionResult(testLeg(strategydomain.LegActionBuy, 1))
	require.NoError(t, buy.ApplyFill(decimal.NewFromInt(1), decimal.NewFromInt(5)))
	assert.True(t, buy.SignedFillValue().Equal(decimal.NewFromInt(-5)))

	sell := NewLegExecutionResult(testLeg(strategydomain.LegActionSell, 1))
	require.NoError(t, sell.ApplyFill(decimal.NewFromInt(1), decimal.NewFromInt(2)))
	assert.True(t, sell.SignedFillValue().Equal(decimal.NewFromInt(2)))
}

func TestDeriveOverallStatus(t *testing.T) {
	tests := []struct {
		name      string
		legs      []LegStatus
		cancelled bool
		failed    bool
		want      ExecutionStatus
	}{
		{"no legs", nil, false, false, ExecutionStatusPending},
		{"all pending", []LegStatus{LegStatusPending, LegStatusPending}, false, false, ExecutionStatusPending},
		{"all filled", []LegStatus{LegStatusFilled, LegStatusFilled}, false, false, ExecutionStatusCompleted},
		{"one partial", []LegStatus{LegStatusFilled, LegStatusPartial}, false, false, ExecutionStatusPartial},
		{"one rejected one filled", []LegStatus{LegStatusFilled, LegStatusRejected}, false, false, ExecutionStatusPartial},
		{"all rejected", []LegStatus{LegStatusRejected, LegStatusRejected}, false, false, ExecutionStatusPending},
		{"failed flag wins over filled", []LegStatus{LegStatusFilled, LegStatusFilled}, false, true, ExecutionStatusFailed},
		{"cancelled wins over failed", []LegStatus{LegStatusFilled}, true, true, ExecutionStatusCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveOverallStatus(tt.legs, tt.cancelled, tt.failed)
			assert.Equal(t, tt.want, got)
			// 同一输入重复推导结果一致
			assert.Equal(t, got, DeriveOverallStatus(tt.legs, tt.cancelled, tt.failed))
		})
	}
}

func TestRecalculateFilledLegsInvariant(t *testing.T) {
	result := NewMultiLegExecutionResult("STRAT-1", 3)
	legs := []*LegExecutionResult{
		NewLegExecutionResult(testLeg(strategydomain.LegActionBuy, 1)),
		NewLegExecutionResult(testLeg(strategydomain.LegActionSell, 1)),
		NewLegExecutionResult(testLeg(strategydomain.LegActionBuy, 2)),
	}
	result.LegResults = legs

	require.NoError(t, legs[0].ApplyFill(decimal.NewFromInt(1), decimal.NewFromInt(5)))
	require.NoError(t, legs[1].ApplyFill(decimal.NewFromInt(1), decimal.NewFromInt(2)))
	require.NoError(t, legs[2].ApplyFill(decimal.NewFromInt(1), decimal.NewFromInt(3)))

	result.Recalculate(false, false)
	assert.Equal(t, 2, result.FilledLegs)
	assert.Equal(t, ExecutionStatusPartial, result.Status)
	// -5 + 2 - 3
	assert.True(t, result.NetPremium.Equal(decimal.NewFromInt(-6)), "net premium %s", result.NetPremium)
}

func TestSelectBestVenue(t *testing.T) {
	assert.Nil(t, SelectBestVenue(nil))

	a := &ExecutionVenue{ID: "A", ExecutionProbability: decimal.NewFromFloat(0.8), Spread: decimal.NewFromFloat(0.5)}
	b := &ExecutionVenue{ID: "B", ExecutionProbability: decimal.NewFromFloat(0.9), Spread: decimal.NewFromFloat(0.9)}
	c := &ExecutionVenue{ID: "C", ExecutionProbability: decimal.NewFromFloat(0.9), Spread: decimal.NewFromFloat(0.2)}

	// 概率最高者胜出
	assert.Equal(t, "B", SelectBestVenue([]*ExecutionVenue{a, b}).ID)
	// 概率相同取价差最小
	assert.Equal(t, "C", SelectBestVenue([]*ExecutionVenue{a, b, c}).ID)
}

func TestFilterByPriceTolerance(t *testing.T) {
	leg := testLeg(strategydomain.LegActionBuy, 1)
	leg.MarketPrice = decimal.NewFromInt(100)

	near := &ExecutionVenue{ID: "near", AskPrice: decimal.NewFromInt(104)}
	far := &ExecutionVenue{ID: "far", AskPrice: decimal.NewFromInt(110)}

	filtered := FilterByPriceTolerance([]*ExecutionVenue{near, far}, leg, decimal.NewFromFloat(0.05))
	require.Len(t, filtered, 1)
	assert.Equal(t, "near", filtered[0].ID)

	// 容忍度为零时不过滤
	assert.Len(t, FilterByPriceTolerance([]*ExecutionVenue{near, far}, leg, decimal.Zero), 2)
}

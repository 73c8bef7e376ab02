package infrastructure

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/strategytrading/internal/execution/domain"
)

type recordedFill struct {
	executionID string
	legID       string
	quantity    decimal.Decimal
	price       decimal.Decimal
}

type fakeFillApplier struct {
	fills []recordedFill
	known bool
}

func (f *fakeFillApplier) HandlePartialFill(executionID, legID string, quantity, price decimal.Decimal) (*domain.MultiLegExecutionResult, bool) {
	f.fills = append(f.fills, recordedFill{executionID: executionID, legID: legID, quantity: quantity, price: price})
	if !f.known {
		return nil, false
	}
	result := domain.NewMultiLegExecutionResult("STRAT-1", 1)
	return result, true
}

func notificationPayload(t *testing.T, n domain.FillNotification) []byte {
	t.Helper()
	payload, err := json.Marshal(n)
	require.NoError(t, err)
	return payload
}

func TestFillConsumerAppliesNotification(t *testing.T) {
	applier := &fakeFillApplier{known: true}
	consumer := &FillNotificationConsumer{applier: applier}

	payload := notificationPayload(t, domain.FillNotification{
		ExecutionID: "EXEC-1",
		LegID:       "LEG-1",
		Quantity:    decimal.NewFromInt(5),
		Price:       decimal.NewFromFloat(3.25),
		OccurredAt:  time.Now(),
	})

	err := consumer.handle(context.Background(), []byte("EXEC-1"), payload)
	require.NoError(t, err)

	require.Len(t, applier.fills, 1)
	assert.Equal(t, "EXEC-1", applier.fills[0].executionID)
	assert.Equal(t, "LEG-1", applier.fills[0].legID)
	assert.True(t, applier.fills[0].quantity.Equal(decimal.NewFromInt(5)))
	assert.True(t, applier.fills[0].price.Equal(decimal.NewFromFloat(3.25)))
}

func TestFillConsumerDropsUnknownExecution(t *testing.T) {
	applier := &fakeFillApplier{known: false}
	consumer := &FillNotificationConsumer{applier: applier}

	payload := notificationPayload(t, domain.FillNotification{
		ExecutionID: "EXEC-MISSING",
		LegID:       "LEG-1",
		Quantity:    decimal.NewFromInt(1),
		Price:       decimal.NewFromInt(2),
	})

	// 未知执行的回报丢弃并提交位点，不能让消费循环报错重试
	err := consumer.handle(context.Background(), nil, payload)
	require.NoError(t, err)
	assert.Len(t, applier.fills, 1)
}

func TestFillConsumerRejectsMalformedPayload(t *testing.T) {
	applier := &fakeFillApplier{known: true}
	consumer := &FillNotificationConsumer{applier: applier}

	err := consumer.handle(context.Background(), nil, []byte("{not json"))
	assert.Error(t, err)
	assert.Empty(t, applier.fills)
}

func TestFillConsumerRejectsMissingIDs(t *testing.T) {
	applier := &fakeFillApplier{known: true}
	consumer := &FillNotificationConsumer{applier: applier}

	payload := notificationPayload(t, domain.FillNotification{
		Quantity: decimal.NewFromInt(1),
		Price:    decimal.NewFromInt(2),
	})

	err := consumer.handle(context.Background(), nil, payload)
	assert.Error(t, err)
	assert.Empty(t, applier.fills)
}

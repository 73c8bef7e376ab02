package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/strategytrading/internal/execution/domain"
	"github.com/wyfcoding/strategytrading/pkg/config"
	"github.com/wyfcoding/strategytrading/pkg/logger"
	"github.com/wyfcoding/strategytrading/pkg/mq"
)

// FillApplier 把异步成交回报落到执行结果上
type FillApplier interface {
	HandlePartialFill(executionID, legID string, quantity, price decimal.Decimal) (*domain.MultiLegExecutionResult, bool)
}

// FillNotificationConsumer 消费场所成交回报主题，驱动 FillApplier。
// 未知或已终态执行的回报丢弃，不中断消费循环。
type FillNotificationConsumer struct {
	consumer *mq.Consumer
	applier  FillApplier
}

// NewFillNotificationConsumer 创建成交回报消费者
func NewFillNotificationConsumer(cfg config.KafkaConfig, applier FillApplier) *FillNotificationConsumer {
	return &FillNotificationConsumer{
		consumer: mq.NewConsumer(cfg, domain.TopicFillNotifications),
		applier:  applier,
	}
}

// Start 消费直到 ctx 取消
func (c *FillNotificationConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx, c.handle)
}

// Close 关闭底层消费者
func (c *FillNotificationConsumer) Close() error {
	return c.consumer.Close()
}

func (c *FillNotificationConsumer) handle(ctx context.Context, _, value []byte) error {
	var notification domain.FillNotification
	if err := json.Unmarshal(value, &notification); err != nil {
		return fmt.Errorf("failed to decode fill notification: %w", err)
	}
	if notification.ExecutionID == "" || notification.LegID == "" {
		return fmt.Errorf("fill notification missing execution or leg id")
	}

	result, ok := c.applier.HandlePartialFill(
		notification.ExecutionID, notification.LegID,
		notification.Quantity, notification.Price,
	)
	if !ok {
		// 迟到或未知回报按丢弃处理
		logger.Warn(ctx, "dropping fill notification",
			"execution_id", notification.ExecutionID,
			"leg_id", notification.LegID,
		)
		return nil
	}

	logger.Info(ctx, "fill notification applied",
		"execution_id", notification.ExecutionID,
		"leg_id", notification.LegID,
		"status", result.Status,
	)
	return nil
}

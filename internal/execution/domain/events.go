package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// 事件主题
const (
	TopicExecutionEvents   = "strategy.execution.events"
	TopicFillNotifications = "strategy.execution.fills"
)

// 事件类型
const (
	EventTypeExecutionStarted   = "EXECUTION_STARTED"
	EventTypeExecutionCompleted = "EXECUTION_COMPLETED"
	EventTypeExecutionFailed    = "EXECUTION_FAILED"
	EventTypeExecutionCancelled = "EXECUTION_CANCELLED"
	EventTypeLegFilled          = "LEG_FILLED"
	EventTypeLegRejected        = "LEG_REJECTED"
)

// ExecutionEvent 执行生命周期事件
type ExecutionEvent struct {
	EventID     string          `json:"event_id"`
	EventType   string          `json:"event_type"`
	ExecutionID string          `json:"execution_id"`
	StrategyID  string          `json:"strategy_id"`
	Status      ExecutionStatus `json:"status"`
	LegID       string          `json:"leg_id,omitempty"`
	FilledLegs  int             `json:"filled_legs"`
	TotalLegs   int             `json:"total_legs"`
	NetPremium  decimal.Decimal `json:"net_premium"`
	Message     string          `json:"message,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// EventPublisher 事件发布边界接口
type EventPublisher interface {
	PublishExecutionEvent(event *ExecutionEvent) error
}

// FillNotification 场所回报的异步成交通知
type FillNotification struct {
	ExecutionID string          `json:"execution_id"`
	LegID       string          `json:"leg_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

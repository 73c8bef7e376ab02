package domain

import "context"

// PositionRepository 持仓持久化接口
type PositionRepository interface {
	Save(ctx context.Context, position *StrategyPosition) error
	FindByID(ctx context.Context, id string) (*StrategyPosition, error)
	FindByStatus(ctx context.Context, status PositionStatus) ([]*StrategyPosition, error)
	FindAll(ctx context.Context, limit, offset int) ([]*StrategyPosition, error)
}

// 事件主题
const TopicPositionEvents = "strategy.position.events"

// 事件类型
const (
	EventTypePositionOpened    = "POSITION_OPENED"
	EventTypePositionRefreshed = "POSITION_REFRESHED"
	EventTypePositionClosed    = "POSITION_CLOSED"
	EventTypePositionExpired   = "POSITION_EXPIRED"
)

// PositionEvent 持仓生命周期事件
type PositionEvent struct {
	EventID    string         `json:"event_id"`
	EventType  string         `json:"event_type"`
	PositionID string         `json:"position_id"`
	StrategyID string         `json:"strategy_id"`
	Status     PositionStatus `json:"status"`
	OccurredAt string         `json:"occurred_at"`
}

// PositionEventPublisher 持仓事件发布边界接口
type PositionEventPublisher interface {
	PublishPositionEvent(event *PositionEvent) error
}

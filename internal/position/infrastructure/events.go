// Package infrastructure 提供持仓上下文的外部设施适配器。
package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wyfcoding/strategytrading/internal/position/domain"
	"github.com/wyfcoding/strategytrading/pkg/mq"
)

// KafkaEventPublisher 把持仓生命周期事件发布到 Kafka
type KafkaEventPublisher struct {
	producer *mq.Producer
}

func NewKafkaEventPublisher(producer *mq.Producer) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer}
}

// PublishPositionEvent 实现 domain.PositionEventPublisher
func (p *KafkaEventPublisher) PublishPositionEvent(event *domain.PositionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal position event: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.producer.SendMessage(ctx, domain.TopicPositionEvents, event.PositionID, payload)
}

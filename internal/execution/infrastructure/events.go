// Package infrastructure 提供执行上下文的外部设施适配器。
package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wyfcoding/strategytrading/internal/execution/domain"
	"github.com/wyfcoding/strategytrading/pkg/mq"
)

// KafkaEventPublisher 把执行事件发布到 Kafka
type KafkaEventPublisher struct {
	producer *mq.Producer
}

func NewKafkaEventPublisher(producer *mq.Producer) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer}
}

// PublishExecutionEvent 实现 domain.EventPublisher
func (p *KafkaEventPublisher) PublishExecutionEvent(event *domain.ExecutionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal execution event: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.producer.SendMessage(ctx, domain.TopicExecutionEvents, event.ExecutionID, payload)
}

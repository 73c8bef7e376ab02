// Package mq 提供 Kafka 消息生产与消费封装
package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/wyfcoding/strategytrading/pkg/config"
	"github.com/wyfcoding/strategytrading/pkg/logger"
)

// Producer Kafka 消息生产者
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 创建生产者
func NewProducer(cfg config.KafkaConfig) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		MaxAttempts:  cfg.MaxRetries,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &Producer{writer: writer}
}

// SendMessage 发送消息到指定主题
func (p *Producer) SendMessage(ctx context.Context, topic string, key string, value []byte) error {
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to topic %s: %w", topic, err)
	}
	return nil
}

// Close 关闭生产者
func (p *Producer) Close() error {
	return p.writer.Close()
}

// MessageHandler 消息处理函数
type MessageHandler func(ctx context.Context, key, value []byte) error

// Consumer Kafka 消息消费者
type Consumer struct {
	reader *kafka.Reader
}

// NewConsumer 创建消费者
func NewConsumer(cfg config.KafkaConfig, topic string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
	})
	return &Consumer{reader: reader}
}

// Start 循环消费，直到 ctx 取消
func (c *Consumer) Start(ctx context.Context, handler MessageHandler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to fetch message: %w", err)
		}
		if err := handler(ctx, msg.Key, msg.Value); err != nil {
			logger.Error(ctx, "message handler failed", "topic", msg.Topic, "error", err)
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			logger.Error(ctx, "failed to commit message", "topic", msg.Topic, "error", err)
		}
	}
}

// Close 关闭消费者
func (c *Consumer) Close() error {
	return c.reader.Close()
}

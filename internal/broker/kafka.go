package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"pos-ledger/internal/util"
)

// HeaderEventType carries the event type so consumers can skip events they
// do not handle without decoding the payload
const HeaderEventType = "event-type"

// Producer writes JSON events to one topic
type Producer struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewProducer creates a producer for topic. Messages are partitioned by key,
// so a purchase's events stay in commit order.
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
	}
	return &Producer{writer: writer, logger: util.Named("kafka-producer")}
}

// PublishEvent encodes event and writes it under key
func (p *Producer) PublishEvent(ctx context.Context, key, eventType string, event interface{}) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Headers: []kafka.Header{{Key: HeaderEventType, Value: []byte(eventType)}},
		Time:    time.Now().UTC(),
	})
	if err != nil {
		util.BrokerMessagesTotal.WithLabelValues(p.writer.Topic, "publish_failed").Inc()
		return fmt.Errorf("failed to write %s event to %s: %w", eventType, p.writer.Topic, err)
	}

	util.BrokerMessagesTotal.WithLabelValues(p.writer.Topic, "published").Inc()
	p.logger.Debug("Published event",
		zap.String("topic", p.writer.Topic),
		zap.String("key", key),
		zap.String("event_type", eventType))
	return nil
}

// Close flushes pending writes and closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer reads one topic as part of a consumer group
type Consumer struct {
	reader *kafka.Reader
	topic  string
	logger *zap.Logger
}

// NewConsumer creates a group consumer starting at the oldest uncommitted offset
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       1 << 20,
		MaxWait:        time.Second,
		CommitInterval: time.Second,
		StartOffset:    kafka.FirstOffset,
	})
	return &Consumer{reader: reader, topic: topic, logger: util.Named("kafka-consumer")}
}

// Close closes the consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// MessageHandler processes one fetched message
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// StartConsuming fetches messages until ctx is done. Every message is
// committed after handler returns, so a failing message is not redelivered.
func (c *Consumer) StartConsuming(ctx context.Context, handler MessageHandler) error {
	c.logger.Info("Starting Kafka consumer", zap.String("topic", c.topic))

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Consumer stopped", zap.String("topic", c.topic))
				return ctx.Err()
			}
			c.logger.Warn("Error fetching message", zap.String("topic", c.topic), zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		c.process(ctx, msg, handler)
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message, handler MessageHandler) {
	result := "handled"
	if err := handler(ctx, msg); err != nil {
		result = "handler_failed"
		c.logger.Error("Error handling message",
			zap.String("topic", c.topic),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
	}
	util.BrokerMessagesTotal.WithLabelValues(c.topic, result).Inc()

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Warn("Error committing message",
			zap.String("topic", c.topic),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
	}
}

// eventType returns the event type header of msg, if any
func eventType(msg kafka.Message) string {
	for _, h := range msg.Headers {
		if h.Key == HeaderEventType {
			return string(h.Value)
		}
	}
	return ""
}

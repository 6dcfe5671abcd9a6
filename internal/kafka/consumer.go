package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/trogers1052/stocks-daily/internal/models"
	"go.uber.org/zap"
)

// HistoryInvalidator drops cached history for a symbol
type HistoryInvalidator interface {
	Invalidate(ctx context.Context, symbol string) error
}

// Consumer handles HISTORY_INVALIDATED events so that every instance drops
// stale cached history when an upstream correction is announced.
type Consumer struct {
	reader      *kafka.Reader
	invalidator HistoryInvalidator
	logger      *zap.Logger
}

// NewConsumer creates a new Kafka consumer for stock events
func NewConsumer(brokers []string, topic, groupID string, invalidator HistoryInvalidator, logger *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.LastOffset,
		CommitInterval: time.Second,
	})

	return &Consumer{
		reader:      reader,
		invalidator: invalidator,
		logger:      logger,
	}
}

// Start begins consuming messages from Kafka
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("starting kafka consumer", zap.String("topic", c.reader.Config().Topic))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("kafka consumer shutting down")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil // Context cancelled, normal shutdown
				}
				c.logger.Warn("error reading message", zap.Error(err))
				continue
			}

			if err := c.processMessage(ctx, msg); err != nil {
				c.logger.Warn("error processing message",
					zap.Int("partition", msg.Partition),
					zap.Int64("offset", msg.Offset),
					zap.Error(err))
			}
		}
	}
}

// processMessage handles a single Kafka message
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var event models.StockEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal stock event: %w", err)
	}

	if event.EventType != models.EventHistoryInvalidated {
		return nil
	}

	symbol := strings.ToUpper(strings.TrimSpace(event.Symbol))
	if symbol == "" {
		return fmt.Errorf("invalidation event without symbol")
	}

	if err := c.invalidator.Invalidate(ctx, symbol); err != nil {
		return fmt.Errorf("failed to invalidate history for %s: %w", symbol, err)
	}

	c.logger.Info("invalidated cached history", zap.String("symbol", symbol))
	return nil
}

// Close closes the Kafka consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}

package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/trogers1052/stocks-daily/internal/models"
)

// Producer handles publishing events to Kafka
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
	}
}

// PublishHistoryLoaded publishes a history loaded event
func (p *Producer) PublishHistoryLoaded(ctx context.Context, h *models.PriceHistory) error {
	event := models.StockEvent{
		EventType: models.EventHistoryLoaded,
		Symbol:    h.Symbol,
		History: &models.HistoryInfo{
			Start:  h.Start,
			End:    h.End,
			Rows:   h.Len(),
			Source: h.Source,
		},
		Timestamp: time.Now(),
	}
	return p.publish(ctx, h.Symbol, event)
}

// PublishHistoryInvalidated asks every instance to drop its cached history for symbol
func (p *Producer) PublishHistoryInvalidated(ctx context.Context, symbol string) error {
	event := models.StockEvent{
		EventType: models.EventHistoryInvalidated,
		Symbol:    symbol,
		Timestamp: time.Now(),
	}
	return p.publish(ctx, symbol, event)
}

// PublishForecastCompleted publishes a forecast completed event
func (p *Producer) PublishForecastCompleted(ctx context.Context, run *models.ForecastRun) error {
	event := models.StockEvent{
		EventType: models.EventForecastCompleted,
		Symbol:    run.Symbol,
		Forecast:  run,
		Timestamp: time.Now(),
	}
	return p.publish(ctx, run.Symbol, event)
}

// PublishCurrencyConverted publishes a currency converted event
func (p *Producer) PublishCurrencyConverted(ctx context.Context, c *models.Conversion) error {
	event := models.StockEvent{
		EventType:  models.EventCurrencyConverted,
		Conversion: c,
		Timestamp:  time.Now(),
	}
	return p.publish(ctx, c.Pair, event)
}

func (p *Producer) publish(ctx context.Context, key string, event models.StockEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

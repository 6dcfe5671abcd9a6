package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/stocks-daily/internal/models"
	"go.uber.org/zap"
)

// MockInvalidator records invalidated symbols
type MockInvalidator struct {
	Symbols []string
	Err     error
}

func (m *MockInvalidator) Invalidate(_ context.Context, symbol string) error {
	if m.Err != nil {
		return m.Err
	}
	m.Symbols = append(m.Symbols, symbol)
	return nil
}

func newTestConsumer(inv HistoryInvalidator) *Consumer {
	return &Consumer{invalidator: inv, logger: zap.NewNop()}
}

func eventMessage(t *testing.T, event models.StockEvent) kafka.Message {
	t.Helper()
	data, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Key: []byte(event.Symbol), Value: data}
}

func TestProcessMessage_Invalidates(t *testing.T) {
	inv := &MockInvalidator{}
	c := newTestConsumer(inv)

	msg := eventMessage(t, models.StockEvent{
		EventType: models.EventHistoryInvalidated,
		Symbol:    " aapl ",
		Timestamp: time.Now(),
	})

	require.NoError(t, c.processMessage(context.Background(), msg))
	assert.Equal(t, []string{"AAPL"}, inv.Symbols)
}

func TestProcessMessage_IgnoresOtherEvents(t *testing.T) {
	inv := &MockInvalidator{}
	c := newTestConsumer(inv)

	for _, eventType := range []string{models.EventHistoryLoaded, models.EventForecastCompleted, models.EventCurrencyConverted} {
		msg := eventMessage(t, models.StockEvent{EventType: eventType, Symbol: "AAPL"})
		require.NoError(t, c.processMessage(context.Background(), msg))
	}
	assert.Empty(t, inv.Symbols)
}

func TestProcessMessage_Errors(t *testing.T) {
	t.Run("invalid json", func(t *testing.T) {
		c := newTestConsumer(&MockInvalidator{})
		err := c.processMessage(context.Background(), kafka.Message{Value: []byte("{not json")})
		assert.Error(t, err)
	})

	t.Run("missing symbol", func(t *testing.T) {
		c := newTestConsumer(&MockInvalidator{})
		msg := eventMessage(t, models.StockEvent{EventType: models.EventHistoryInvalidated})
		assert.Error(t, c.processMessage(context.Background(), msg))
	})

	t.Run("invalidator failure is wrapped", func(t *testing.T) {
		boom := errors.New("cache offline")
		c := newTestConsumer(&MockInvalidator{Err: boom})
		msg := eventMessage(t, models.StockEvent{EventType: models.EventHistoryInvalidated, Symbol: "MSFT"})

		err := c.processMessage(context.Background(), msg)
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
	})
}

func TestEventEnvelope(t *testing.T) {
	run := &models.ForecastRun{Symbol: "GOOG", Years: 2, HorizonDays: 730}
	data, err := json.Marshal(models.StockEvent{EventType: models.EventForecastCompleted, Symbol: "GOOG", Forecast: run})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "FORECAST_COMPLETED", decoded["event_type"])
	assert.NotContains(t, decoded, "conversion")
	assert.Equal(t, float64(730), decoded["forecast"].(map[string]any)["horizon_days"])
}

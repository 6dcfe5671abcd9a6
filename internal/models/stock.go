package models

import "time"

// Event types published on the stock events topic
const (
	EventHistoryLoaded      = "HISTORY_LOADED"
	EventHistoryInvalidated = "HISTORY_INVALIDATED"
	EventForecastCompleted  = "FORECAST_COMPLETED"
	EventCurrencyConverted  = "CURRENCY_CONVERTED"
)

// StockEvent represents a Kafka event for stock and conversion activity
type StockEvent struct {
	EventType  string       `json:"event_type"`
	Symbol     string       `json:"symbol,omitempty"`
	History    *HistoryInfo `json:"history,omitempty"`
	Forecast   *ForecastRun `json:"forecast,omitempty"`
	Conversion *Conversion  `json:"conversion,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
}

// HistoryInfo describes a loaded history without carrying its rows
type HistoryInfo struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Rows   int       `json:"rows"`
	Source string    `json:"source"`
}

// Ticker is a selectable stock symbol
type Ticker struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

var tickerNames = map[string]string{
	"FB":   "Meta Platforms",
	"AMZN": "Amazon",
	"AAPL": "Apple",
	"MSFT": "Microsoft",
	"GOOG": "Alphabet",
}

// NewTicker builds a Ticker, filling in the company name for known symbols
func NewTicker(symbol string) Ticker {
	return Ticker{Symbol: symbol, Name: tickerNames[symbol]}
}

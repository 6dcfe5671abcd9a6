package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceDataDaily represents daily OHLCV price data for a stock
type PriceDataDaily struct {
	ID        int             `json:"id,omitempty"`
	Symbol    string          `json:"symbol"`
	Date      time.Time       `json:"date"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	AdjClose  decimal.Decimal `json:"adj_close"`
	Volume    int64           `json:"volume"`
	CreatedAt time.Time       `json:"created_at,omitempty"`
}

// PriceHistory is the daily history of one symbol over [Start, End]
type PriceHistory struct {
	Symbol    string           `json:"symbol"`
	Start     time.Time        `json:"start"`
	End       time.Time        `json:"end"`
	Rows      []PriceDataDaily `json:"rows"`
	FetchedAt time.Time        `json:"fetched_at"`
	Source    string           `json:"source"`
	Stale     bool             `json:"stale,omitempty"`
}

// Len returns the number of trading days in the history
func (h *PriceHistory) Len() int {
	if h == nil {
		return 0
	}
	return len(h.Rows)
}

// Last returns the most recent row, or nil when the history is empty
func (h *PriceHistory) Last() *PriceDataDaily {
	if h.Len() == 0 {
		return nil
	}
	return &h.Rows[len(h.Rows)-1]
}

// Tail returns up to n of the most recent rows
func (h *PriceHistory) Tail(n int) []PriceDataDaily {
	if h.Len() == 0 || n <= 0 {
		return []PriceDataDaily{}
	}
	if n > len(h.Rows) {
		n = len(h.Rows)
	}
	out := make([]PriceDataDaily, n)
	copy(out, h.Rows[len(h.Rows)-n:])
	return out
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CurrencyList is the set of currency codes supported by the conversion provider
type CurrencyList struct {
	Codes     []string  `json:"codes"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Contains reports whether code is in the list
func (l *CurrencyList) Contains(code string) bool {
	if l == nil {
		return false
	}
	for _, c := range l.Codes {
		if c == code {
			return true
		}
	}
	return false
}

// Conversion is the result of converting Amount from one currency to another
type Conversion struct {
	From        string          `json:"from"`
	To          string          `json:"to"`
	Pair        string          `json:"pair"`
	Amount      decimal.Decimal `json:"amount"`
	Rate        decimal.Decimal `json:"rate"`
	Converted   decimal.Decimal `json:"converted"`
	Summary     string          `json:"summary"`
	ConvertedAt time.Time       `json:"converted_at"`
}

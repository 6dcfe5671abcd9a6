package models

import "time"

// ForecastState is the lifecycle of the forecast panel in a session
type ForecastState string

const (
	ForecastIdle    ForecastState = "idle"
	ForecastRunning ForecastState = "running"
	ForecastReady   ForecastState = "ready"
	ForecastFailed  ForecastState = "failed"
)

// ConverterState is the lifecycle of the currency converter panel in a session
type ConverterState string

const (
	ConverterIdle       ConverterState = "idle"
	ConverterFetching   ConverterState = "fetching"
	ConverterDisplaying ConverterState = "displaying"
	ConverterFailed     ConverterState = "failed"
)

// Session is the explicit per-client page state
type Session struct {
	ID     string `json:"id"`
	Ticker string `json:"ticker"`
	Years  int    `json:"years"`

	ForecastState ForecastState `json:"forecast_state"`
	Forecast      *Forecast     `json:"forecast,omitempty"`
	ForecastError string        `json:"forecast_error,omitempty"`

	Currencies     []string       `json:"currencies"`
	CurrencyError  string         `json:"currency_error,omitempty"`
	ConverterState ConverterState `json:"converter_state"`
	Conversion     *Conversion    `json:"conversion,omitempty"`
	ConvertError   string         `json:"convert_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

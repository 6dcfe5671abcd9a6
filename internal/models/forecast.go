package models

import "time"

// ForecastPoint is one calendar day of model output
type ForecastPoint struct {
	Date      time.Time `json:"ds"`
	Yhat      float64   `json:"yhat"`
	YhatLower float64   `json:"yhat_lower"`
	YhatUpper float64   `json:"yhat_upper"`
	Trend     float64   `json:"trend"`
	Weekly    float64   `json:"weekly"`
	Yearly    float64   `json:"yearly"`
	Daily     float64   `json:"daily"`
	Actual    *float64  `json:"y,omitempty"`
}

// ComponentSeries is one decomposed component sampled over its natural axis
// (dates for trend, weekdays for weekly, day of year for yearly, hours for daily).
type ComponentSeries struct {
	Name string    `json:"name"`
	X    []string  `json:"x"`
	Y    []float64 `json:"y"`
}

// Forecast holds a fitted forecast over history plus the requested horizon
type Forecast struct {
	Symbol        string            `json:"symbol"`
	Years         int               `json:"years"`
	HorizonDays   int               `json:"horizon_days"`
	HistoryStart  time.Time         `json:"history_start"`
	HistoryEnd    time.Time         `json:"history_end"`
	IntervalWidth float64           `json:"interval_width"`
	Points        []ForecastPoint   `json:"points"`
	Components    []ComponentSeries `json:"components"`
	GeneratedAt   time.Time         `json:"generated_at"`
}

// Last returns the final forecast point, or nil when empty
func (f *Forecast) Last() *ForecastPoint {
	if f == nil || len(f.Points) == 0 {
		return nil
	}
	return &f.Points[len(f.Points)-1]
}

// ForecastRun is the persisted summary of a forecast
type ForecastRun struct {
	ID          int       `json:"id"`
	Symbol      string    `json:"symbol"`
	Years       int       `json:"years"`
	HorizonDays int       `json:"horizon_days"`
	Points      int       `json:"points"`
	LastDate    time.Time `json:"last_date"`
	LastYhat    float64   `json:"last_yhat"`
	LastLower   float64   `json:"last_lower"`
	LastUpper   float64   `json:"last_upper"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewForecastRun summarises a forecast for persistence
func NewForecastRun(f *Forecast) *ForecastRun {
	run := &ForecastRun{
		Symbol:      f.Symbol,
		Years:       f.Years,
		HorizonDays: f.HorizonDays,
		Points:      len(f.Points),
	}
	if last := f.Last(); last != nil {
		run.LastDate = last.Date
		run.LastYhat = last.Yhat
		run.LastLower = last.YhatLower
		run.LastUpper = last.YhatUpper
	}
	return run
}

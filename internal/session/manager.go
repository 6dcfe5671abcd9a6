// Package session holds the explicit per-client page state: the selected
// ticker and horizon, the forecast panel and the currency converter panel.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/stocks-daily/internal/currency"
	"github.com/trogers1052/stocks-daily/internal/forecast"
	"github.com/trogers1052/stocks-daily/internal/history"
	"github.com/trogers1052/stocks-daily/internal/models"
	"github.com/trogers1052/stocks-daily/internal/recorder"
	"go.uber.org/zap"
)

var (
	ErrNotFound        = errors.New("session not found")
	ErrForecastRunning = errors.New("forecast already running")
)

// HistoryLoader provides memoized price histories
type HistoryLoader interface {
	Load(ctx context.Context, symbol string) (*models.PriceHistory, error)
	Supports(symbol string) bool
	Tickers() []string
}

// Forecaster fits and extends a forecast
type Forecaster interface {
	Forecast(ctx context.Context, rows []models.PriceDataDaily, horizonDays int) (*models.Forecast, error)
}

// Converter provides currency codes and conversions
type Converter interface {
	ListCurrencies(ctx context.Context) (*models.CurrencyList, error)
	Convert(ctx context.Context, from, to string, amount decimal.Decimal) (*models.Conversion, error)
}

// RunStore persists forecast summaries
type RunStore interface {
	CreateForecastRun(ctx context.Context, run *models.ForecastRun) error
}

// Publisher announces completed forecasts and conversions
type Publisher interface {
	PublishForecastCompleted(ctx context.Context, run *models.ForecastRun) error
	PublishCurrencyConverted(ctx context.Context, c *models.Conversion) error
}

// Manager drives session state transitions
type Manager struct {
	store     *Store
	loader    HistoryLoader
	engine    Forecaster
	converter Converter
	bounds    forecast.Bounds
	runs      RunStore
	publisher Publisher
	recorder  recorder.Recorder
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Manager
type Option func(*Manager)

// WithRunStore persists a summary of every forecast
func WithRunStore(r RunStore) Option {
	return func(m *Manager) { m.runs = r }
}

// WithPublisher enables forecast and conversion events
func WithPublisher(p Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// WithRecorder records every conversion
func WithRecorder(r recorder.Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// WithBounds overrides the selectable horizon
func WithBounds(b forecast.Bounds) Option {
	return func(m *Manager) { m.bounds = b }
}

// WithClock overrides the clock for the manager and its store
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
		m.store.now = now
	}
}

// NewManager creates a session manager
func NewManager(store *Store, loader HistoryLoader, engine Forecaster, converter Converter, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		loader:    loader,
		engine:    engine,
		converter: converter,
		bounds:    forecast.DefaultBounds,
		recorder:  recorder.NewNoopRecorder(),
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the underlying session store
func (m *Manager) Store() *Store { return m.store }

// Bounds returns the selectable horizon bounds
func (m *Manager) Bounds() forecast.Bounds { return m.bounds }

// Create starts a session on the first ticker and the shortest horizon. A
// failure to load the currency list is kept on the session, not returned.
func (m *Manager) Create(ctx context.Context) (*models.Session, error) {
	tickers := m.loader.Tickers()
	if len(tickers) == 0 {
		return nil, fmt.Errorf("no tickers configured")
	}

	now := m.now()
	s := models.Session{
		ID:             uuid.NewString(),
		Ticker:         tickers[0],
		Years:          m.bounds.MinYears,
		ForecastState:  models.ForecastIdle,
		ConverterState: models.ConverterIdle,
		Currencies:     []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	list, err := m.converter.ListCurrencies(ctx)
	if err != nil {
		m.logger.Warn("failed to load currency list", zap.String("session_id", s.ID), zap.Error(err))
		s.CurrencyError = err.Error()
	} else {
		s.Currencies = append(s.Currencies, list.Codes...)
	}

	m.store.put(s)
	m.logger.Info("session created", zap.String("session_id", s.ID))
	return &s, nil
}

// Get returns a snapshot of the session
func (m *Manager) Get(id string) (*models.Session, error) {
	s, ok := m.store.get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

// resetResults clears everything derived from the ticker and horizon
func resetResults(e *entry) {
	e.gen++
	e.convGen++
	e.s.ForecastState = models.ForecastIdle
	e.s.Forecast = nil
	e.s.ForecastError = ""
	e.s.ConverterState = models.ConverterIdle
	e.s.Conversion = nil
	e.s.ConvertError = ""
}

// SelectTicker changes the ticker and clears previous results
func (m *Manager) SelectTicker(id, symbol string) (*models.Session, error) {
	if !m.loader.Supports(symbol) {
		return nil, fmt.Errorf("%w: %s", history.ErrUnknownTicker, symbol)
	}
	s, err := m.store.update(id, func(e *entry) error {
		e.s.Ticker = symbol
		resetResults(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SetHorizon changes the horizon in years and clears previous results
func (m *Manager) SetHorizon(id string, years int) (*models.Session, error) {
	if _, err := m.bounds.Days(years); err != nil {
		return nil, err
	}
	s, err := m.store.update(id, func(e *entry) error {
		e.s.Years = years
		resetResults(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Predict runs the forecast for the session's ticker and horizon. The session
// reports running while it executes. If the ticker or horizon changes before the
// forecast completes its result is discarded.
func (m *Manager) Predict(ctx context.Context, id string) (*models.Session, error) {
	var symbol string
	var years int
	var gen uint64
	_, err := m.store.update(id, func(e *entry) error {
		if e.s.ForecastState == models.ForecastRunning {
			return ErrForecastRunning
		}
		e.s.ForecastState = models.ForecastRunning
		e.s.Forecast = nil
		e.s.ForecastError = ""
		symbol, years, gen = e.s.Ticker, e.s.Years, e.gen
		return nil
	})
	if err != nil {
		return nil, err
	}

	f, runErr := m.RunForecast(ctx, symbol, years)

	s, err := m.store.update(id, func(e *entry) error {
		if e.gen != gen {
			return nil
		}
		if runErr != nil {
			e.s.ForecastState = models.ForecastFailed
			e.s.ForecastError = runErr.Error()
			return nil
		}
		e.s.ForecastState = models.ForecastReady
		e.s.Forecast = f
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &s, runErr
}

// RunForecast loads the history of symbol and forecasts it over years. Each
// successful forecast is persisted and published when those are configured.
func (m *Manager) RunForecast(ctx context.Context, symbol string, years int) (*models.Forecast, error) {
	days, err := m.bounds.Days(years)
	if err != nil {
		return nil, err
	}
	h, err := m.loader.Load(ctx, symbol)
	if err != nil {
		return nil, err
	}
	f, err := m.engine.Forecast(ctx, h.Rows, days)
	if err != nil {
		m.logger.Warn("forecast failed", zap.String("symbol", symbol), zap.Int("years", years), zap.Error(err))
		return nil, err
	}
	f.Symbol = symbol
	f.Years = years

	run := models.NewForecastRun(f)
	if m.runs != nil {
		if err := m.runs.CreateForecastRun(ctx, run); err != nil {
			m.logger.Warn("failed to persist forecast run", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	if m.publisher != nil {
		if err := m.publisher.PublishForecastCompleted(ctx, run); err != nil {
			m.logger.Warn("failed to publish forecast completed event", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	return f, nil
}

// Convert converts amount for the session and keeps the result on it. When a
// newer conversion starts before this one completes, this result is discarded.
func (m *Manager) Convert(ctx context.Context, id string, amount decimal.Decimal, from, to string) (*models.Session, error) {
	var currencies []string
	var gen uint64
	_, err := m.store.update(id, func(e *entry) error {
		e.convGen++
		gen = e.convGen
		e.s.ConverterState = models.ConverterFetching
		e.s.Conversion = nil
		e.s.ConvertError = ""
		currencies = e.s.Currencies
		return nil
	})
	if err != nil {
		return nil, err
	}

	var conv *models.Conversion
	convErr := checkListed(currencies, from, to)
	if convErr == nil {
		conv, convErr = m.ConvertAmount(ctx, from, to, amount)
	}

	s, err := m.store.update(id, func(e *entry) error {
		if e.convGen != gen {
			return nil
		}
		if convErr != nil {
			e.s.ConverterState = models.ConverterFailed
			e.s.ConvertError = convErr.Error()
			return nil
		}
		e.s.ConverterState = models.ConverterDisplaying
		e.s.Conversion = conv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &s, convErr
}

func checkListed(codes []string, from, to string) error {
	if len(codes) == 0 {
		return nil
	}
	list := models.CurrencyList{Codes: codes}
	for _, c := range []string{from, to} {
		if c = strings.ToUpper(strings.TrimSpace(c)); !list.Contains(c) {
			return fmt.Errorf("%w: %q is not a listed currency", currency.ErrInvalidCurrency, c)
		}
	}
	return nil
}

// ConvertAmount converts amount and records and publishes the result
func (m *Manager) ConvertAmount(ctx context.Context, from, to string, amount decimal.Decimal) (*models.Conversion, error) {
	conv, err := m.converter.Convert(ctx, from, to, amount)
	if err != nil {
		m.logger.Warn("conversion failed", zap.String("from", from), zap.String("to", to), zap.Error(err))
		return nil, err
	}
	if err := m.recorder.RecordConversion(ctx, conv); err != nil {
		m.logger.Warn("failed to record conversion", zap.String("pair", conv.Pair), zap.Error(err))
	}
	if m.publisher != nil {
		if err := m.publisher.PublishCurrencyConverted(ctx, conv); err != nil {
			m.logger.Warn("failed to publish currency converted event", zap.String("pair", conv.Pair), zap.Error(err))
		}
	}
	return conv, nil
}

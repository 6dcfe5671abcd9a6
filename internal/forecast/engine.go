package forecast

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/trogers1052/stocks-daily/internal/models"
	"go.uber.org/zap"
)

// Engine fits a fresh model per request
type Engine struct {
	cfg    ModelConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewEngine creates an engine with the given model configuration
func NewEngine(cfg ModelConfig, logger *zap.Logger) *Engine {
	return &Engine{cfg: cfg, logger: logger, now: time.Now}
}

// Forecast fits the closing prices of rows and predicts every calendar day from
// the first observed date through the last observed date plus horizonDays.
// Historical points carry the observed close as Actual.
func (e *Engine) Forecast(ctx context.Context, rows []models.PriceDataDaily, horizonDays int) (*models.Forecast, error) {
	if horizonDays < 0 {
		return nil, fmt.Errorf("%w: %d days", ErrInvalidHorizon, horizonDays)
	}

	ds := make([]time.Time, 0, len(rows))
	ys := make([]float64, 0, len(rows))
	actual := make(map[time.Time]float64, len(rows))
	for _, r := range rows {
		y := r.Close.InexactFloat64()
		if math.IsNaN(y) || math.IsInf(y, 0) {
			continue
		}
		d := r.Date.UTC().Truncate(day)
		if n := len(ds); n > 0 && !d.After(ds[n-1]) {
			return nil, fmt.Errorf("forecast: dates must be strictly increasing at %s", d.Format("2006-01-02"))
		}
		ds = append(ds, d)
		ys = append(ys, y)
		actual[d] = y
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	m := NewModel(e.cfg)
	if err := m.Fit(ds, ys); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	first, last := ds[0], ds[len(ds)-1]
	end := last.AddDate(0, 0, horizonDays)
	points := make([]models.ForecastPoint, 0, int(end.Sub(first)/day)+1)
	for d := first; !d.After(end); d = d.AddDate(0, 0, 1) {
		p := m.predict(d)
		fp := models.ForecastPoint{
			Date:      d,
			Yhat:      p.yhat,
			YhatLower: p.lower,
			YhatUpper: p.upper,
			Trend:     p.trend,
			Weekly:    p.season["weekly"],
			Yearly:    p.season["yearly"],
			Daily:     p.season["daily"],
		}
		if y, ok := actual[d]; ok {
			fp.Actual = &y
		}
		points = append(points, fp)
	}

	f := &models.Forecast{
		Symbol:        rows[0].Symbol,
		Years:         horizonDays / DaysPerYear,
		HorizonDays:   horizonDays,
		HistoryStart:  first,
		HistoryEnd:    last,
		IntervalWidth: e.cfg.IntervalWidth,
		Points:        points,
		Components:    m.components(points),
		GeneratedAt:   e.now(),
	}

	e.logger.Info("forecast fitted",
		zap.String("symbol", f.Symbol),
		zap.Int("rows", len(ds)),
		zap.Int("horizon_days", horizonDays),
		zap.Strings("seasonalities", m.Seasonalities()),
		zap.Duration("elapsed", time.Since(start)))
	return f, nil
}

// reference dates for sampling seasonal curves
var (
	weekStart = time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC) // a Sunday
	yearStart = time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)
)

// components samples the trend over the forecast dates and each active
// seasonality over one period.
func (m *Model) components(points []models.ForecastPoint) []models.ComponentSeries {
	trend := models.ComponentSeries{
		Name: "trend",
		X:    make([]string, len(points)),
		Y:    make([]float64, len(points)),
	}
	for i, p := range points {
		trend.X[i] = p.Date.Format("2006-01-02")
		trend.Y[i] = p.Trend
	}
	out := []models.ComponentSeries{trend}

	for _, s := range m.seasons {
		c := models.ComponentSeries{Name: s.name}
		switch s.name {
		case "weekly":
			for i := 0; i < 7; i++ {
				t := weekStart.AddDate(0, 0, i)
				c.X = append(c.X, t.Weekday().String())
				c.Y = append(c.Y, m.seasonal(s.name, t))
			}
		case "yearly":
			for t := yearStart; t.Year() == yearStart.Year(); t = t.AddDate(0, 0, 1) {
				c.X = append(c.X, t.Format("January 2"))
				c.Y = append(c.Y, m.seasonal(s.name, t))
			}
		case "daily":
			for h := 0; h < 24; h++ {
				t := yearStart.Add(time.Duration(h) * time.Hour)
				c.X = append(c.X, t.Format("15:04"))
				c.Y = append(c.Y, m.seasonal(s.name, t))
			}
		}
		out = append(out, c)
	}
	return out
}

// Predict evaluates a fitted model at t, returning yhat and its interval
func (m *Model) Predict(t time.Time) (yhat, lower, upper float64, err error) {
	if !m.fitted {
		return 0, 0, 0, errNotFitted
	}
	p := m.predict(t)
	return p.yhat, p.lower, p.upper, nil
}

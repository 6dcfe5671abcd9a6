package forecast

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

const day = 24 * time.Hour

// ModelConfig holds the model hyperparameters
type ModelConfig struct {
	DailySeasonality bool
	// Weekly and yearly seasonality are enabled automatically once history
	// spans at least MinWeeklySpan / MinYearlySpan.
	MinWeeklySpan time.Duration
	MinYearlySpan time.Duration

	NChangepoints    int
	ChangepointRange float64

	ChangepointPenalty float64
	SeasonalityPenalty float64
	IntervalWidth      float64
}

// DefaultModelConfig mirrors the conventional additive-model defaults with
// daily seasonality switched on.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		DailySeasonality:   true,
		MinWeeklySpan:      14 * day,
		MinYearlySpan:      730 * day,
		NChangepoints:      25,
		ChangepointRange:   0.8,
		ChangepointPenalty: 0.05,
		SeasonalityPenalty: 0.01,
		IntervalWidth:      0.8,
	}
}

type seasonality struct {
	name   string
	period float64 // days
	order  int
}

// Model is an additive piecewise-linear trend plus Fourier seasonality model.
// Time is scaled to [0, 1] over the history and y by its maximum magnitude.
type Model struct {
	cfg ModelConfig

	t0      time.Time
	span    float64 // history span in days
	yScale  float64
	cps     []float64 // changepoints in scaled time
	seasons []seasonality

	beta         []float64
	sigma        float64 // residual standard deviation, scaled
	meanAbsDelta float64
	z            float64
	fitted       bool
}

// NewModel creates an unfitted model
func NewModel(cfg ModelConfig) *Model {
	return &Model{cfg: cfg}
}

// Component values of a single prediction, in original units
type prediction struct {
	trend  float64
	season map[string]float64
	yhat   float64
	lower  float64
	upper  float64
}

func (m *Model) scaledTime(t time.Time) float64 {
	return t.Sub(m.t0).Hours() / 24 / m.span
}

func epochDays(t time.Time) float64 {
	return float64(t.Unix()) / 86400
}

func (m *Model) nColumns() int {
	p := 2 + len(m.cps)
	for _, s := range m.seasons {
		p += 2 * s.order
	}
	return p
}

// features fills row with the design-matrix row for time t
func (m *Model) features(t time.Time, row []float64) {
	ts := m.scaledTime(t)
	row[0] = 1
	row[1] = ts
	j := 2
	for _, c := range m.cps {
		row[j] = math.Max(0, ts-c)
		j++
	}
	x := epochDays(t)
	for _, s := range m.seasons {
		for k := 1; k <= s.order; k++ {
			arg := 2 * math.Pi * float64(k) * x / s.period
			row[j] = math.Sin(arg)
			row[j+1] = math.Cos(arg)
			j += 2
		}
	}
}

func (m *Model) penalties() []float64 {
	pen := make([]float64, m.nColumns())
	pen[0], pen[1] = 1e-6, 1e-6
	j := 2
	for range m.cps {
		pen[j] = m.cfg.ChangepointPenalty
		j++
	}
	for ; j < len(pen); j++ {
		pen[j] = m.cfg.SeasonalityPenalty
	}
	return pen
}

// Fit estimates the model from ds (strictly increasing) and y
func (m *Model) Fit(ds []time.Time, y []float64) error {
	if len(ds) != len(y) {
		return fmt.Errorf("fit: %d dates but %d values", len(ds), len(y))
	}
	n := len(ds)
	if n < 2 {
		return fmt.Errorf("%w: need at least 2 rows, got %d", ErrInsufficientData, n)
	}

	m.t0 = ds[0]
	spanDur := ds[n-1].Sub(ds[0])
	m.span = spanDur.Hours() / 24
	if m.span <= 0 {
		return fmt.Errorf("%w: history spans zero time", ErrInsufficientData)
	}

	m.yScale = 0
	for _, v := range y {
		m.yScale = math.Max(m.yScale, math.Abs(v))
	}
	if m.yScale == 0 {
		m.yScale = 1
	}

	m.placeChangepoints(ds)
	m.seasons = m.seasons[:0]
	if spanDur >= m.cfg.MinYearlySpan {
		m.seasons = append(m.seasons, seasonality{name: "yearly", period: 365.25, order: 10})
	}
	if spanDur >= m.cfg.MinWeeklySpan {
		m.seasons = append(m.seasons, seasonality{name: "weekly", period: 7, order: 3})
	}
	if m.cfg.DailySeasonality {
		m.seasons = append(m.seasons, seasonality{name: "daily", period: 1, order: 4})
	}

	p := m.nColumns()
	X := mat.NewDense(n, p, nil)
	row := make([]float64, p)
	ys := make([]float64, n)
	for i, t := range ds {
		m.features(t, row)
		X.SetRow(i, row)
		ys[i] = y[i] / m.yScale
	}
	yv := mat.NewVecDense(n, ys)

	var xtx mat.Dense
	xtx.Mul(X.T(), X)
	for j, pen := range m.penalties() {
		xtx.Set(j, j, xtx.At(j, j)+pen)
	}
	var xty mat.VecDense
	xty.MulVec(X.T(), yv)

	var beta mat.VecDense
	if err := beta.SolveVec(&xtx, &xty); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return fmt.Errorf("fit: solve normal equations: %w", err)
		}
	}
	m.beta = make([]float64, p)
	for j := range m.beta {
		m.beta[j] = beta.AtVec(j)
	}
	for _, b := range m.beta {
		if math.IsNaN(b) || math.IsInf(b, 0) {
			return fmt.Errorf("fit: solution is not finite")
		}
	}

	var fittedV mat.VecDense
	fittedV.MulVec(X, &beta)
	resid := make([]float64, n)
	for i := range resid {
		resid[i] = ys[i] - fittedV.AtVec(i)
	}
	m.sigma = 0
	if n > 2 {
		m.sigma = stat.StdDev(resid, nil)
	}

	m.meanAbsDelta = 0
	for j := range m.cps {
		m.meanAbsDelta += math.Abs(m.beta[2+j])
	}
	if len(m.cps) > 0 {
		m.meanAbsDelta /= float64(len(m.cps))
	}

	width := m.cfg.IntervalWidth
	if width <= 0 || width >= 1 {
		width = 0.8
	}
	m.z = distuv.UnitNormal.Quantile((1 + width) / 2)
	m.fitted = true
	return nil
}

// placeChangepoints spreads changepoints evenly over the first
// ChangepointRange of the history rows.
func (m *Model) placeChangepoints(ds []time.Time) {
	m.cps = m.cps[:0]
	histSize := int(math.Floor(float64(len(ds)) * m.cfg.ChangepointRange))
	nCP := m.cfg.NChangepoints
	if histSize-1 < nCP {
		nCP = histSize - 1
	}
	if nCP <= 0 {
		return
	}
	for i := 1; i <= nCP; i++ {
		idx := int(math.Round(float64(i) * float64(histSize-1) / float64(nCP)))
		m.cps = append(m.cps, m.scaledTime(ds[idx]))
	}
}

// predict evaluates the model at t
func (m *Model) predict(t time.Time) prediction {
	row := make([]float64, m.nColumns())
	m.features(t, row)

	trend := m.beta[0]*row[0] + m.beta[1]*row[1]
	j := 2
	for range m.cps {
		trend += m.beta[j] * row[j]
		j++
	}

	season := make(map[string]float64, len(m.seasons))
	total := trend
	for _, s := range m.seasons {
		var v float64
		for k := 0; k < 2*s.order; k++ {
			v += m.beta[j] * row[j]
			j++
		}
		season[s.name] = v * m.yScale
		total += v
	}

	sd := m.sigma
	if ts := m.scaledTime(t); ts > 1 && len(m.cps) > 0 {
		// future changepoints arrive at len(cps) per unit of scaled time with
		// Laplace(0, meanAbsDelta) rate changes
		dt := ts - 1
		trendVar := 2 * float64(len(m.cps)) * m.meanAbsDelta * m.meanAbsDelta * dt * dt * dt / 3
		sd = math.Sqrt(sd*sd + trendVar)
	}

	return prediction{
		trend:  trend * m.yScale,
		season: season,
		yhat:   total * m.yScale,
		lower:  (total - m.z*sd) * m.yScale,
		upper:  (total + m.z*sd) * m.yScale,
	}
}

// seasonal evaluates a single seasonal component at t, in original units
func (m *Model) seasonal(name string, t time.Time) float64 {
	return m.predict(t).season[name]
}

// Seasonalities returns the names of the active seasonal components
func (m *Model) Seasonalities() []string {
	names := make([]string, len(m.seasons))
	for i, s := range m.seasons {
		names[i] = s.name
	}
	return names
}

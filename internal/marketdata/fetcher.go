package marketdata

import (
	"context"
	"hash/fnv"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/stocks-daily/internal/models"
)

// Fetcher defines the interface for fetching daily market history.
// start and end are inclusive calendar dates.
type Fetcher interface {
	FetchDailyHistory(ctx context.Context, symbol string, start, end time.Time) ([]models.PriceDataDaily, error)
	Name() string
}

// Day truncates t to its calendar date at 00:00 UTC
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// normalize sorts rows by date, drops duplicate dates (last one wins) and rows
// outside [start, end].
func normalize(rows []models.PriceDataDaily, start, end time.Time) []models.PriceDataDaily {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	out := make([]models.PriceDataDaily, 0, len(rows))
	for _, r := range rows {
		if r.Date.Before(start) || r.Date.After(end) {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Date.Equal(r.Date) {
			out[n-1] = r
			continue
		}
		out = append(out, r)
	}
	return out
}

// MockFetcher returns deterministic synthetic weekday bars for development and testing.
type MockFetcher struct {
	BasePrice float64
	// Rows, when set, is returned as-is (filtered to the requested range).
	Rows []models.PriceDataDaily
	Err  error
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchDailyHistory(_ context.Context, symbol string, start, end time.Time) ([]models.PriceDataDaily, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	start, end = Day(start), Day(end)
	if m.Rows != nil {
		rows := make([]models.PriceDataDaily, len(m.Rows))
		copy(rows, m.Rows)
		return normalize(rows, start, end), nil
	}
	return generateMockBars(symbol, m.basePrice(symbol), start, end), nil
}

func (m *MockFetcher) basePrice(symbol string) float64 {
	if m.BasePrice > 0 {
		return m.BasePrice
	}
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return 50 + float64(h.Sum32()%200)
}

func generateMockBars(symbol string, basePrice float64, start, end time.Time) []models.PriceDataDaily {
	var bars []models.PriceDataDaily
	i := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		p := basePrice*(1+float64(i)*0.0004) + 2*math.Sin(float64(i)/20)
		bars = append(bars, models.PriceDataDaily{
			Symbol:   symbol,
			Date:     d,
			Open:     decimal.NewFromFloat(p * 0.999).Round(4),
			High:     decimal.NewFromFloat(p * 1.005).Round(4),
			Low:      decimal.NewFromFloat(p * 0.995).Round(4),
			Close:    decimal.NewFromFloat(p).Round(4),
			AdjClose: decimal.NewFromFloat(p).Round(4),
			Volume:   1000000 + int64(i%7)*10000,
		})
		i++
	}
	return bars
}

package display

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/stocks-daily/internal/models"
)

// DefaultTail is the number of rows shown in tables
const DefaultTail = 5

const dateFormat = "2006-01-02"

var ErrNoData = errors.New("no data to display")

// RawView is the raw-data section for one ticker
type RawView struct {
	Symbol      string                  `json:"symbol"`
	Rows        []models.PriceDataDaily `json:"rows"`
	Total       int                     `json:"total"`
	LatestDate  string                  `json:"latest_date"`
	LatestOpen  decimal.Decimal         `json:"latest_open"`
	LatestClose decimal.Decimal         `json:"latest_close"`
	Stale       bool                    `json:"stale"`
	Figure      Figure                  `json:"figure"`
}

// RawData builds the table tail, latest open and close, and the open/close time
// series figure with a range slider.
func RawData(h *models.PriceHistory, tail int) (*RawView, error) {
	if h == nil || h.Len() == 0 {
		return nil, ErrNoData
	}
	if tail <= 0 {
		tail = DefaultTail
	}

	x := make([]string, len(h.Rows))
	opens := make([]float64, len(h.Rows))
	closes := make([]float64, len(h.Rows))
	for i, r := range h.Rows {
		x[i] = r.Date.Format(dateFormat)
		opens[i] = r.Open.InexactFloat64()
		closes[i] = r.Close.InexactFloat64()
	}

	last := h.Last()
	return &RawView{
		Symbol:      h.Symbol,
		Rows:        h.Tail(tail),
		Total:       h.Len(),
		LatestDate:  last.Date.Format(dateFormat),
		LatestOpen:  last.Open,
		LatestClose: last.Close,
		Stale:       h.Stale,
		Figure: Figure{
			Data: []Trace{
				{Name: "stock_open", Type: "scatter", Mode: "lines", X: x, Y: opens},
				{Name: "stock_close", Type: "scatter", Mode: "lines", X: x, Y: closes},
			},
			Layout: Layout{
				Title: "Time Series data with Rangeslider",
				XAxis: Axis{Title: "Date", RangeSlider: &RangeSlider{Visible: true}},
				YAxis: Axis{Title: "Price in $"},
			},
		},
	}, nil
}

// ForecastRow is one row of the forecast table
type ForecastRow struct {
	Date      string  `json:"ds"`
	Yhat      float64 `json:"yhat"`
	YhatLower float64 `json:"yhat_lower"`
	YhatUpper float64 `json:"yhat_upper"`
}

// ForecastView is the forecast section: table, title and both figures
type ForecastView struct {
	Symbol     string        `json:"symbol"`
	Title      string        `json:"title"`
	Rows       []ForecastRow `json:"rows"`
	Figure     Figure        `json:"figure"`
	Components Figure        `json:"components"`
}

// ForecastTitle is the heading above the forecast figure
func ForecastTitle(years int) string {
	if years == 1 {
		return "Result of the Forecast upto 1 year"
	}
	return fmt.Sprintf("Result of the Forecast upto %d years", years)
}

// Forecast builds the forecast table tail and figures
func Forecast(f *models.Forecast, tail int) (*ForecastView, error) {
	if f == nil || len(f.Points) == 0 {
		return nil, ErrNoData
	}
	if tail <= 0 {
		tail = DefaultTail
	}
	from := len(f.Points) - tail
	if from < 0 {
		from = 0
	}

	rows := make([]ForecastRow, 0, len(f.Points)-from)
	for _, p := range f.Points[from:] {
		rows = append(rows, ForecastRow{
			Date:      p.Date.Format(dateFormat),
			Yhat:      p.Yhat,
			YhatLower: p.YhatLower,
			YhatUpper: p.YhatUpper,
		})
	}

	return &ForecastView{
		Symbol:     f.Symbol,
		Title:      ForecastTitle(f.Years),
		Rows:       rows,
		Figure:     forecastFigure(f),
		Components: componentsFigure(f),
	}, nil
}

func forecastFigure(f *models.Forecast) Figure {
	n := len(f.Points)
	x := make([]string, n)
	yhat := make([]float64, n)
	lower := make([]float64, n)
	upper := make([]float64, n)
	var actualX []string
	var actualY []float64
	for i, p := range f.Points {
		x[i] = p.Date.Format(dateFormat)
		yhat[i] = p.Yhat
		lower[i] = p.YhatLower
		upper[i] = p.YhatUpper
		if p.Actual != nil {
			actualX = append(actualX, x[i])
			actualY = append(actualY, *p.Actual)
		}
	}

	band := "rgba(0, 114, 178, 0.2)"
	return Figure{
		Data: []Trace{
			{Name: "Actual", Type: "scatter", Mode: "markers", X: actualX, Y: actualY,
				Marker: &Marker{Color: "black", Size: 4}},
			{Name: "yhat_lower", Type: "scatter", Mode: "lines", X: x, Y: lower,
				Line: &Line{Color: band, Width: 0}, ShowLegend: boolPtr(false)},
			{Name: "yhat_upper", Type: "scatter", Mode: "lines", X: x, Y: upper, Fill: "tonexty",
				Line: &Line{Color: band, Width: 0}, ShowLegend: boolPtr(false)},
			{Name: "Predicted", Type: "scatter", Mode: "lines", X: x, Y: yhat,
				Line: &Line{Color: "#0072B2", Width: 2}},
		},
		Layout: Layout{
			Title: ForecastTitle(f.Years),
			XAxis: Axis{Title: "ds", RangeSlider: &RangeSlider{Visible: true}},
			YAxis: Axis{Title: "y"},
		},
	}
}

// componentsFigure stacks one panel per component
func componentsFigure(f *models.Forecast) Figure {
	fig := Figure{
		Layout: Layout{
			Title:  "Forecast components",
			Height: 250 * len(f.Components),
			Grid:   &Grid{Rows: len(f.Components), Columns: 1, Pattern: "independent"},
		},
	}
	for i, c := range f.Components {
		suffix := ""
		if i > 0 {
			suffix = strconv.Itoa(i + 1)
		}
		fig.Data = append(fig.Data, Trace{
			Name:  c.Name,
			Type:  "scatter",
			Mode:  "lines",
			X:     c.X,
			Y:     c.Y,
			Line:  &Line{Color: "#0072B2", Width: 2},
			XAxis: "x" + suffix,
			YAxis: "y" + suffix,
		})
	}
	return fig
}

// Package display builds the JSON view models rendered by the page: tables
// and chart figures in a plotly-compatible shape.
package display

// Figure is a chart: a set of traces and a layout
type Figure struct {
	Data   []Trace `json:"data"`
	Layout Layout  `json:"layout"`
}

// Trace is one plotted series
type Trace struct {
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Mode       string    `json:"mode,omitempty"`
	X          []string  `json:"x"`
	Y          []float64 `json:"y"`
	Fill       string    `json:"fill,omitempty"`
	Line       *Line     `json:"line,omitempty"`
	Marker     *Marker   `json:"marker,omitempty"`
	ShowLegend *bool     `json:"showlegend,omitempty"`
	XAxis      string    `json:"xaxis,omitempty"`
	YAxis      string    `json:"yaxis,omitempty"`
}

type Line struct {
	Color string  `json:"color,omitempty"`
	Width float64 `json:"width,omitempty"`
}

type Marker struct {
	Color string  `json:"color,omitempty"`
	Size  float64 `json:"size,omitempty"`
}

// Layout holds titles and axes
type Layout struct {
	Title  string `json:"title,omitempty"`
	XAxis  Axis   `json:"xaxis"`
	YAxis  Axis   `json:"yaxis"`
	Height int    `json:"height,omitempty"`
	// Grid lays out one subplot per row for multi-panel figures
	Grid *Grid `json:"grid,omitempty"`
}

type Axis struct {
	Title       string       `json:"title,omitempty"`
	RangeSlider *RangeSlider `json:"rangeslider,omitempty"`
}

type RangeSlider struct {
	Visible bool `json:"visible"`
}

type Grid struct {
	Rows    int    `json:"rows"`
	Columns int    `json:"columns"`
	Pattern string `json:"pattern"`
}

func boolPtr(b bool) *bool { return &b }

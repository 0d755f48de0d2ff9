// Package chart defines the renderable chart description produced by the
// binding layer and consumed by the browser, the PNG exporter and the gRPC
// service. A Spec is derived data; it is never persisted.
package chart

// Kind is the chart type of a panel.
type Kind string

const (
	Candlestick Kind = "candlestick"
	Line        Kind = "line"
	Bar         Kind = "bar"
	Pie         Kind = "pie"
)

// Kinds lists every chart kind in dashboard order.
var Kinds = []Kind{Candlestick, Line, Bar, Pie}

// ParseKind returns the Kind named s and whether it is valid.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// SupportsRangeSlider reports whether the kind has a time x-axis that can
// carry a range slider.
func (k Kind) SupportsRangeSlider() bool {
	return k == Candlestick || k == Line
}

// Trace is one data series. Which fields are populated depends on Type:
// candlestick uses X and the OHLC slices, scatter and bar use X and Y, pie
// uses Labels and Values.
type Trace struct {
	Type   string    `json:"type"`
	Name   string    `json:"name,omitempty"`
	Mode   string    `json:"mode,omitempty"`
	X      []string  `json:"x,omitempty"`
	Y      []float64 `json:"y,omitempty"`
	Open   []float64 `json:"open,omitempty"`
	High   []float64 `json:"high,omitempty"`
	Low    []float64 `json:"low,omitempty"`
	Close  []float64 `json:"close,omitempty"`
	Labels []string  `json:"labels,omitempty"`
	Values []float64 `json:"values,omitempty"`
	Text   []string  `json:"text,omitempty"`
}

// Points returns the number of data points in the trace.
func (t Trace) Points() int {
	if t.Type == "pie" {
		return len(t.Values)
	}
	return len(t.X)
}

// Layout carries presentation-only settings.
type Layout struct {
	Title       string `json:"title,omitempty"`
	XTitle      string `json:"xaxis_title,omitempty"`
	YTitle      string `json:"yaxis_title,omitempty"`
	RangeSlider bool   `json:"rangeslider"`
	Height      int    `json:"height,omitempty"`
}

// Spec is the complete description of one rendered chart.
type Spec struct {
	Kind   Kind    `json:"kind"`
	Traces []Trace `json:"traces"`
	Layout Layout  `json:"layout"`
	// Empty marks a valid selection that matched no data.
	Empty bool `json:"empty,omitempty"`
	// Error holds a panel-local failure message; Traces is empty when set.
	Error string `json:"error,omitempty"`
}

// GraphHeight is the fixed pixel height of every dashboard graph.
const GraphHeight = 390

// Placeholder returns the figure a panel shows before its first evaluation:
// an empty trace of the panel's kind.
func Placeholder(kind Kind) Spec {
	return Spec{
		Kind:   kind,
		Traces: []Trace{{Type: traceType(kind)}},
		Layout: Layout{Height: GraphHeight},
		Empty:  true,
	}
}

// EmptySpec returns a valid chart with no data points.
func EmptySpec(kind Kind, title string) Spec {
	return Spec{
		Kind:   kind,
		Traces: []Trace{},
		Layout: Layout{Title: title, Height: GraphHeight},
		Empty:  true,
	}
}

// ErrorSpec returns the error placeholder shown in place of a failed chart.
func ErrorSpec(kind Kind, msg string) Spec {
	return Spec{
		Kind:   kind,
		Traces: []Trace{},
		Layout: Layout{Height: GraphHeight},
		Error:  msg,
	}
}

// Decorate returns a copy of s with the range slider set. Trace data is
// shared, not copied; callers must treat Spec values as immutable.
func Decorate(s Spec, rangeSlider bool) Spec {
	s.Layout.RangeSlider = rangeSlider && s.Kind.SupportsRangeSlider()
	return s
}

// Points returns the total number of data points across all traces.
func (s Spec) Points() int {
	n := 0
	for _, t := range s.Traces {
		n += t.Points()
	}
	return n
}

func traceType(kind Kind) string {
	switch kind {
	case Candlestick:
		return "candlestick"
	case Line:
		return "scatter"
	case Bar:
		return "bar"
	case Pie:
		return "pie"
	}
	return ""
}

// TraceType returns the trace type string used for kind.
func TraceType(kind Kind) string { return traceType(kind) }

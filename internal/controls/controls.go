// Package controls is the registry of every addressable element of the
// dashboard. The string values are the element ids rendered into the page
// and used on the wire, so they must stay stable.
package controls

import "stockdash/internal/chart"

// ID identifies one control.
type ID string

const (
	Ticker             ID = "ticker"
	ToggleRangeSlider  ID = "toggle-rangeslider"
	LoadingGraph1      ID = "loading_graph1"
	Graph1             ID = "graph1"
	MultiTickers       ID = "multi_tickers"
	ToggleRangeSlider2 ID = "toggle-rangeslider2"
	LoadingGraph2      ID = "loading_graph2"
	LineChart          ID = "line_chart"
	BarTicker          ID = "bar_ticker"
	BarDatePicker      ID = "bar_date_picker"
	BarGraph           ID = "bar_graph"
	PieTickers         ID = "pie_tickers"
	PieDatePicker      ID = "pie_date_picker_single"
	PieChart           ID = "pie_chart"
	Open               ID = "open"
	Close              ID = "close"
	Modal              ID = "modal"
)

// Kind is the widget type of a control.
type Kind string

const (
	KindDropdown      Kind = "dropdown"
	KindMultiDropdown Kind = "multi_dropdown"
	KindChecklist     Kind = "checklist"
	KindDateRange     Kind = "date_range"
	KindDateSingle    Kind = "date_single"
	KindGraph         Kind = "graph"
	KindLoading       Kind = "loading"
	KindButton        Kind = "button"
	KindModal         Kind = "modal"
)

// Role says whether the control is a user input or a rendered output.
type Role string

const (
	Input  Role = "input"
	Output Role = "output"
)

// Control describes one registry entry.
type Control struct {
	ID    ID         `json:"id"`
	Kind  Kind       `json:"kind"`
	Role  Role       `json:"role"`
	Panel chart.Kind `json:"panel,omitempty"`
	// Decoration is true for inputs that only change chart presentation and
	// never require new data.
	Decoration bool `json:"decoration,omitempty"`
}

var registry = []Control{
	{ID: Ticker, Kind: KindDropdown, Role: Input, Panel: chart.Candlestick},
	{ID: ToggleRangeSlider, Kind: KindChecklist, Role: Input, Panel: chart.Candlestick, Decoration: true},
	{ID: LoadingGraph1, Kind: KindLoading, Role: Output, Panel: chart.Candlestick},
	{ID: Graph1, Kind: KindGraph, Role: Output, Panel: chart.Candlestick},

	{ID: MultiTickers, Kind: KindMultiDropdown, Role: Input, Panel: chart.Line},
	{ID: ToggleRangeSlider2, Kind: KindChecklist, Role: Input, Panel: chart.Line, Decoration: true},
	{ID: LoadingGraph2, Kind: KindLoading, Role: Output, Panel: chart.Line},
	{ID: LineChart, Kind: KindGraph, Role: Output, Panel: chart.Line},

	{ID: BarTicker, Kind: KindDropdown, Role: Input, Panel: chart.Bar},
	{ID: BarDatePicker, Kind: KindDateRange, Role: Input, Panel: chart.Bar},
	{ID: BarGraph, Kind: KindGraph, Role: Output, Panel: chart.Bar},

	{ID: PieTickers, Kind: KindMultiDropdown, Role: Input, Panel: chart.Pie},
	{ID: PieDatePicker, Kind: KindDateSingle, Role: Input, Panel: chart.Pie},
	{ID: PieChart, Kind: KindGraph, Role: Output, Panel: chart.Pie},

	{ID: Open, Kind: KindButton, Role: Input},
	{ID: Close, Kind: KindButton, Role: Input},
	{ID: Modal, Kind: KindModal, Role: Output},
}

var byID = func() map[ID]Control {
	m := make(map[ID]Control, len(registry))
	for _, c := range registry {
		m[c.ID] = c
	}
	return m
}()

// Lookup returns the control registered under id.
func Lookup(id ID) (Control, bool) {
	c, ok := byID[id]
	return c, ok
}

// All returns every registered control in page order.
func All() []Control {
	out := make([]Control, len(registry))
	copy(out, registry)
	return out
}

// Inputs returns the input controls bound to a panel.
func Inputs(panel chart.Kind) []Control {
	var out []Control
	for _, c := range registry {
		if c.Panel == panel && c.Role == Input {
			out = append(out, c)
		}
	}
	return out
}

// GraphFor returns the graph output id of a panel.
func GraphFor(panel chart.Kind) ID {
	switch panel {
	case chart.Candlestick:
		return Graph1
	case chart.Line:
		return LineChart
	case chart.Bar:
		return BarGraph
	case chart.Pie:
		return PieChart
	}
	return ""
}

// LoadingFor returns the loading wrapper id of a panel, or "" when the panel
// has none in the page layout.
func LoadingFor(panel chart.Kind) ID {
	switch panel {
	case chart.Candlestick:
		return LoadingGraph1
	case chart.Line:
		return LoadingGraph2
	}
	return ""
}

// Package layout builds the dashboard's component tree: navbar with the
// About modal, two rows of two panels, and the footer. The tree is plain
// data; it is served as JSON and rendered to HTML by Render.
package layout

import (
	"fmt"
	"slices"

	"stockdash/internal/catalog"
	"stockdash/internal/chart"
	"stockdash/internal/controls"
	"stockdash/internal/panel"
)

// Node types.
const (
	TypeNavbar     = "navbar"
	TypeRow        = "row"
	TypeCol        = "col"
	TypeDiv        = "div"
	TypeText       = "p"
	TypeIcon       = "icon"
	TypeLink       = "a"
	TypeButton     = "button"
	TypeModal      = "modal"
	TypeDropdown   = "dropdown"
	TypeChecklist  = "checklist"
	TypeDateRange  = "date_range"
	TypeDateSingle = "date_single"
	TypeGraph      = "graph"
	TypeLoading    = "loading"
)

// Node is one element of the component tree.
type Node struct {
	Type     string            `json:"type"`
	ID       string            `json:"id,omitempty"`
	Class    string            `json:"class,omitempty"`
	Style    map[string]string `json:"style,omitempty"`
	Props    map[string]any    `json:"props,omitempty"`
	Text     string            `json:"text,omitempty"`
	Children []*Node           `json:"children,omitempty"`
}

// Walk calls fn for n and every descendant, depth first.
func (n *Node) Walk(fn func(*Node)) {
	if n == nil {
		return
	}
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Find returns the node with the given id, or nil.
func (n *Node) Find(id controls.ID) *Node {
	var found *Node
	n.Walk(func(x *Node) {
		if found == nil && x.ID == string(id) {
			found = x
		}
	})
	return found
}

// Options configures the tree.
type Options struct {
	Brand         string
	Title         string
	Panel         panel.Options
	LoadingPanels []chart.Kind
}

const (
	// DataSourceURL is linked from the About modal.
	DataSourceURL = "https://www1.nseindia.com/products/content/equities/equities/eq_security.htm"
	modalHeader   = "Stock Dashboard | NSE Data"
	footerText    = "(The dashboard is optimised for desktop or laptop!)"
)

var aboutParagraphs = []string{
	"This is rapid app development: not intended for 'production', more for prototyping. " +
		"Think of it as a completely free Tableau, with the power of data science " +
		"& machine learning directly accessible.",
	"The dashboard is optimised for desktop or laptop.",
	"To save any plot locally, use the export link under each chart.",
	"All plots are interactive -hover over charts, lines & points for tooltips " +
		"(dynamic annotations), zoom using your mouse (drag to select area to zoom into), " +
		"and double click to zoom out & reset.",
}

// Page is the root of the rendered tree.
type Page struct {
	Title  string  `json:"title"`
	Navbar *Node   `json:"navbar"`
	Rows   []*Node `json:"rows"`
	Footer *Node   `json:"footer"`
}

// Walk visits every node of the page.
func (p *Page) Walk(fn func(*Node)) {
	p.Navbar.Walk(fn)
	for _, r := range p.Rows {
		r.Walk(fn)
	}
	p.Footer.Walk(fn)
}

// Find returns the node with the given id anywhere in the page, or nil.
func (p *Page) Find(id controls.ID) *Node {
	var found *Node
	p.Walk(func(x *Node) {
		if found == nil && x.ID == string(id) {
			found = x
		}
	})
	return found
}

// Build returns the dashboard tree. Selector defaults and graph
// placeholders come from freshly built panels, so the page always matches
// what a new session starts with.
func Build(cat *catalog.Catalog, opts Options) (*Page, error) {
	loading := func(k chart.Kind) bool { return slices.Contains(opts.LoadingPanels, k) }
	states := make(map[chart.Kind]panel.State, len(chart.Kinds))
	for _, kind := range chart.Kinds {
		po := opts.Panel
		po.ShowLoading = loading(kind)
		p, err := panel.New(kind, cat, po)
		if err != nil {
			return nil, fmt.Errorf("layout: %w", err)
		}
		states[kind] = p.State()
	}

	title := opts.Title
	if title == "" {
		title = opts.Brand
	}
	return &Page{
		Title:  title,
		Navbar: navbar(opts.Brand),
		Rows: []*Node{
			row(
				column("520px", "card-body col-md-6 my-sm-3 col-sm-12 shadow",
					header(
						labelled("Select a stock symbol", dropdown(controls.Ticker, states[chart.Candlestick], false)),
						checklist(controls.ToggleRangeSlider, states[chart.Candlestick]),
					),
					graph(controls.Graph1, states[chart.Candlestick], loading(chart.Candlestick)),
				),
				column("520px", "card-body col-md-5 my-sm-3 col-sm-12 shadow",
					header(
						labelled("Select stock symbol", dropdown(controls.MultiTickers, states[chart.Line], true)),
						checklist(controls.ToggleRangeSlider2, states[chart.Line]),
					),
					graph(controls.LineChart, states[chart.Line], loading(chart.Line)),
				),
			),
			row(
				column("536px", "card-body col-md-6 col-sm-12 shadow",
					header(
						labelled("Select stock symbol",
							dropdown(controls.BarTicker, states[chart.Bar], false),
							dateRange(controls.BarDatePicker, states[chart.Bar]),
						),
					),
					graph(controls.BarGraph, states[chart.Bar], loading(chart.Bar)),
				),
				column("536px", "card-body col-md-5 col-sm-12 shadow",
					header(
						labelled("Select stock symbol", dropdown(controls.PieTickers, states[chart.Pie], true)),
						dateSingle(controls.PieDatePicker, states[chart.Pie]),
					),
					graph(controls.PieChart, states[chart.Pie], loading(chart.Pie)),
				),
			),
		},
		Footer: &Node{
			Type:     TypeDiv,
			Class:    "bg-dark shadow text-white text-center mt-5 p-3",
			Children: []*Node{{Type: TypeText, Class: "mt-2", Text: footerText}},
		},
	}, nil
}

// ---------------------------------------------------------------------------
// Shell
// ---------------------------------------------------------------------------

func navbar(brand string) *Node {
	return &Node{
		Type:  TypeNavbar,
		Class: "shadow text-white",
		Props: map[string]any{"brand": brand, "brand_href": "/", "color": "dark", "dark": true},
		Children: []*Node{
			{Type: TypeButton, ID: string(controls.Open), Class: "btn btn-info", Text: "About the Dashboard",
				Props: map[string]any{"n_clicks": 0}},
			modal(),
		},
	}
}

func modal() *Node {
	body := []*Node{{
		Type:  TypeLink,
		Class: "btn btn-outline-info shadow mb-3 mr-2",
		Props: map[string]any{"href": DataSourceURL},
		Children: []*Node{
			{Type: TypeIcon, Class: "fa fa-bar-chart mx-1"},
			{Type: TypeDiv, Text: "Data Source (nse)"},
		},
	}}
	for _, p := range aboutParagraphs {
		body = append(body, &Node{Type: TypeText, Text: p})
	}
	return &Node{
		Type:  TypeModal,
		ID:    string(controls.Modal),
		Props: map[string]any{"is_open": false, "size": "lg", "header": modalHeader},
		Children: []*Node{
			{Type: TypeDiv, Class: "modal-body", Children: body},
			{Type: TypeDiv, Class: "modal-footer", Children: []*Node{
				{Type: TypeButton, ID: string(controls.Close), Class: "ml-auto", Text: "Close",
					Props: map[string]any{"n_clicks": 0}},
			}},
		},
	}
}

// ---------------------------------------------------------------------------
// Panels
// ---------------------------------------------------------------------------

func row(cols ...*Node) *Node {
	return &Node{Type: TypeRow, Class: "text-center m-4 justify-content-around", Children: cols}
}

func column(minHeight, class string, children ...*Node) *Node {
	return &Node{
		Type:     TypeCol,
		Class:    class,
		Style:    map[string]string{"minHeight": minHeight},
		Children: children,
	}
}

func header(children ...*Node) *Node {
	return &Node{Type: TypeDiv, Class: "bg-dark text-white", Children: children}
}

func labelled(label string, inputs ...*Node) *Node {
	children := []*Node{{
		Type:     TypeText,
		Class:    "d-inline mr-2",
		Children: []*Node{{Type: TypeIcon, Class: "fa fa-line-chart mr-1"}},
		Text:     label,
	}}
	children = append(children, inputs...)
	return &Node{Type: TypeDiv, Class: "d-inline col-md-6", Children: children}
}

func dropdown(id controls.ID, st panel.State, multi bool) *Node {
	return &Node{
		Type:  TypeDropdown,
		ID:    string(id),
		Class: "text-dark",
		Props: map[string]any{
			"options": st.Options,
			"value":   st.Inputs[string(id)],
			"multi":   multi,
		},
	}
}

func checklist(id controls.ID, st panel.State) *Node {
	return &Node{
		Type: TypeDiv, Class: "d-inline col-md-6",
		Children: []*Node{{
			Type:  TypeChecklist,
			ID:    string(id),
			Class: "d-inline",
			Props: map[string]any{
				"options": []catalog.Option{{Label: "Include Rangeslider", Value: "slider"}},
				"value":   st.Inputs[string(id)],
			},
		}},
	}
}

func dateRange(id controls.ID, st panel.State) *Node {
	v, _ := st.Inputs[string(id)].(map[string]string)
	props := map[string]any{"start_date": v["start_date"], "end_date": v["end_date"]}
	addBounds(props, st)
	return &Node{
		Type: TypeDiv, Class: "d-inline col-md-6",
		Children: []*Node{{Type: TypeDateRange, ID: string(id), Class: "d-inline", Props: props}},
	}
}

func dateSingle(id controls.ID, st panel.State) *Node {
	props := map[string]any{"date": st.Inputs[string(id)]}
	addBounds(props, st)
	return &Node{
		Type: TypeDiv, Class: "d-inline col-md-6",
		Children: []*Node{{Type: TypeDateSingle, ID: string(id), Class: "d-inline", Props: props}},
	}
}

func addBounds(props map[string]any, st panel.State) {
	if st.Bounds != nil {
		props["min_date_allowed"] = st.Bounds.Min
		props["max_date_allowed"] = st.Bounds.Max
	}
}

// graph returns the graph node, wrapped in its loading container when the
// panel shows a loading indicator.
func graph(id controls.ID, st panel.State, withLoading bool) *Node {
	g := &Node{
		Type:  TypeGraph,
		ID:    string(id),
		Style: map[string]string{"height": fmt.Sprintf("%dpx", chart.GraphHeight)},
		Props: map[string]any{"figure": st.Spec, "panel": string(st.Kind)},
	}
	lid := controls.LoadingFor(st.Kind)
	if !withLoading || lid == "" {
		return g
	}
	return &Node{
		Type:     TypeLoading,
		ID:       string(lid),
		Props:    map[string]any{"type": "default"},
		Children: []*Node{g},
	}
}

// Package panel pairs a chart kind with the selectors that drive it. A Panel
// is owned by a single goroutine (the session loop); evaluations run on
// their own goroutines and report back through a channel, and a result is
// applied only if no newer evaluation was started in the meantime.
package panel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stockdash/internal/binding"
	"stockdash/internal/catalog"
	"stockdash/internal/chart"
	"stockdash/internal/controls"
	"stockdash/internal/domain"
	"stockdash/internal/selector"
)

// ErrNotBound is returned when a change targets a control that does not
// belong to the panel.
var ErrNotBound = errors.New("control not bound to panel")

// Options configures panel defaults.
type Options struct {
	RangeDays    int  // default date-range length for the bar panel
	LineDefaults int  // preselected symbols in the line panel
	PieDefaults  int  // preselected symbols in the pie panel
	ShowLoading  bool // expose a loading flag while evaluating
}

// DefaultOptions mirrors the stock dashboard layout.
func DefaultOptions() Options {
	return Options{RangeDays: 3, LineDefaults: 2, PieDefaults: 3}
}

// Effect tells the caller what a change requires.
type Effect int

const (
	// EffectNone means the value did not change.
	EffectNone Effect = iota
	// EffectRedecorate means only presentation changed; no data is needed.
	EffectRedecorate
	// EffectEvaluate means the chart must be recomputed.
	EffectEvaluate
)

func (e Effect) String() string {
	switch e {
	case EffectRedecorate:
		return "redecorate"
	case EffectEvaluate:
		return "evaluate"
	}
	return "none"
}

// Change is a new value for one input control. Only the field matching the
// control's kind is read. For date ranges a zero Start or End keeps the
// current value.
type Change struct {
	Control controls.ID
	Symbol  string
	Symbols []string
	Flags   []string
	Start   time.Time
	End     time.Time
	Date    time.Time
}

// EvalFunc computes the chart spec of a panel kind from its inputs.
type EvalFunc func(ctx context.Context, kind chart.Kind, in binding.Inputs) (chart.Spec, error)

// Result is the outcome of one evaluation, tagged with its sequence number.
type Result struct {
	Kind chart.Kind
	Seq  uint64
	Spec chart.Spec
	Err  error
}

// Panel is one (selectors, chart) unit.
type Panel struct {
	kind        chart.Kind
	showLoading bool

	symbol  *selector.SymbolDropdown
	symbols *selector.MultiSymbolDropdown
	slider  *selector.Checklist
	dates   *selector.DateRangePicker
	date    *selector.DatePicker

	spec    chart.Spec
	seq     uint64
	pending bool
	cancel  context.CancelFunc
}

// New returns a panel of the given kind with default selector values.
func New(kind chart.Kind, cat *catalog.Catalog, opts Options) (*Panel, error) {
	p := &Panel{kind: kind, showLoading: opts.ShowLoading}
	switch kind {
	case chart.Candlestick:
		p.symbol = selector.NewSymbolDropdown(cat)
		p.slider = selector.NewRangeSliderChecklist()
		p.spec = chart.Placeholder(kind)
	case chart.Line:
		p.symbols = selector.NewMultiSymbolDropdown(cat, opts.LineDefaults)
		p.slider = selector.NewRangeSliderChecklist()
		p.spec = chart.Placeholder(kind)
	case chart.Bar:
		p.symbol = selector.NewSymbolDropdown(cat)
		p.dates = selector.NewDateRangePicker(cat, opts.RangeDays)
		p.spec = chart.EmptySpec(kind, "")
	case chart.Pie:
		p.symbols = selector.NewMultiSymbolDropdown(cat, opts.PieDefaults)
		p.date = selector.NewDatePicker(cat)
		p.spec = chart.EmptySpec(kind, "")
	default:
		return nil, fmt.Errorf("%w: %q", binding.ErrUnknownKind, kind)
	}
	return p, nil
}

// Kind returns the panel's chart kind.
func (p *Panel) Kind() chart.Kind { return p.kind }

// Spec returns the currently rendered chart.
func (p *Panel) Spec() chart.Spec { return p.spec }

// Seq returns the sequence number of the latest evaluation started.
func (p *Panel) Seq() uint64 { return p.seq }

// Pending reports whether an evaluation is in flight.
func (p *Panel) Pending() bool { return p.pending }

// Loading reports whether the panel shows its loading indicator.
func (p *Panel) Loading() bool { return p.showLoading && p.pending }

// Inputs returns the current selector values.
func (p *Panel) Inputs() binding.Inputs {
	var in binding.Inputs
	if p.symbol != nil {
		in.Symbol = p.symbol.Value()
	}
	if p.symbols != nil {
		in.Symbols = p.symbols.Values()
	}
	if p.slider != nil {
		in.RangeSlider = p.slider.Has(selector.SliderFlag)
	}
	if p.dates != nil {
		in.Range = p.dates.Range()
	}
	if p.date != nil {
		in.Date = p.date.Date()
	}
	return in
}

// Apply validates and applies a change. It returns the effect of the change
// and a non-empty warning when the value was adjusted (a clamped range).
// A rejected change leaves the panel untouched.
func (p *Panel) Apply(c Change) (Effect, string, error) {
	ctrl, ok := controls.Lookup(c.Control)
	if !ok || ctrl.Panel != p.kind || ctrl.Role != controls.Input {
		return EffectNone, "", fmt.Errorf("%w: %s on %s panel", ErrNotBound, c.Control, p.kind)
	}

	var (
		changed bool
		warning string
		err     error
	)
	switch ctrl.Kind {
	case controls.KindDropdown:
		changed, err = p.symbol.Set(c.Symbol)
	case controls.KindMultiDropdown:
		changed, err = p.symbols.Set(c.Symbols)
	case controls.KindChecklist:
		changed, err = p.slider.Set(c.Flags)
	case controls.KindDateRange:
		changed, warning, err = p.applyRange(c.Start, c.End)
	case controls.KindDateSingle:
		changed, err = p.date.Set(c.Date)
	default:
		err = fmt.Errorf("%w: %s", ErrNotBound, c.Control)
	}
	if err != nil || !changed {
		return EffectNone, warning, err
	}
	if ctrl.Decoration {
		return EffectRedecorate, warning, nil
	}
	return EffectEvaluate, warning, nil
}

// applyRange routes a date-range change. A change carrying both ends
// replaces the range and an inverted pair is rejected. A change carrying one
// end moves it and clamps the other end with a warning.
func (p *Panel) applyRange(start, end time.Time) (bool, string, error) {
	switch {
	case !start.IsZero() && !end.IsZero():
		changed, err := p.dates.Set(start, end)
		return changed, "", err
	case !start.IsZero():
		changed, clamped, err := p.dates.SetStart(start)
		if clamped {
			return changed, fmt.Sprintf("end date moved to %s to follow start date", domain.Day(start).Format(domain.DateLayout)), err
		}
		return changed, "", err
	case !end.IsZero():
		changed, clamped, err := p.dates.SetEnd(end)
		if clamped {
			return changed, fmt.Sprintf("start date moved to %s to precede end date", domain.Day(end).Format(domain.DateLayout)), err
		}
		return changed, "", err
	}
	return false, "", nil
}

// Redecorate reapplies presentation settings to the current chart without
// touching its data.
func (p *Panel) Redecorate() chart.Spec {
	p.spec = chart.Decorate(p.spec, p.sliderOn())
	return p.spec
}

// Start begins a new evaluation, cancelling any older one still in flight.
// The result is delivered on out; pass it to Complete. timeout bounds the
// evaluation when positive.
func (p *Panel) Start(parent context.Context, eval EvalFunc, timeout time.Duration, out chan<- Result) uint64 {
	if p.cancel != nil {
		p.cancel()
	}
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, timeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	p.seq++
	p.pending = true
	p.cancel = cancel

	seq, kind, in := p.seq, p.kind, p.Inputs()
	go func() {
		defer cancel()
		spec, err := eval(ctx, kind, in)
		select {
		case out <- Result{Kind: kind, Seq: seq, Spec: spec, Err: err}:
		case <-parent.Done():
		}
	}()
	return seq
}

// Complete applies an evaluation result. It returns false and leaves the
// panel unchanged when the result is stale (a newer evaluation was started)
// or was cancelled.
func (p *Panel) Complete(r Result) bool {
	if r.Kind != p.kind || r.Seq != p.seq {
		return false
	}
	if errors.Is(r.Err, context.Canceled) {
		return false
	}
	p.pending = false
	p.cancel = nil
	if r.Err != nil {
		p.spec = chart.ErrorSpec(p.kind, binding.Describe(r.Err))
		return true
	}
	p.spec = chart.Decorate(r.Spec, p.sliderOn())
	return true
}

// Stop cancels any in-flight evaluation.
func (p *Panel) Stop() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.pending = false
}

// Evaluate runs one evaluation synchronously and applies it. It is used by
// stateless callers that do not run a session loop.
func (p *Panel) Evaluate(ctx context.Context, eval EvalFunc) (chart.Spec, error) {
	p.seq++
	spec, err := eval(ctx, p.kind, p.Inputs())
	if err != nil {
		p.spec = chart.ErrorSpec(p.kind, binding.Describe(err))
		return p.spec, err
	}
	p.spec = chart.Decorate(spec, p.sliderOn())
	return p.spec, nil
}

func (p *Panel) sliderOn() bool {
	return p.slider != nil && p.slider.Has(selector.SliderFlag)
}

// ---------------------------------------------------------------------------
// Serializable state
// ---------------------------------------------------------------------------

// State is the wire view of a panel.
type State struct {
	Kind    chart.Kind       `json:"kind"`
	Graph   controls.ID      `json:"graph"`
	Loading bool             `json:"loading"`
	Seq     uint64           `json:"seq"`
	Inputs  map[string]any   `json:"inputs"`
	Bounds  *Bounds          `json:"bounds,omitempty"`
	Options []catalog.Option `json:"options"`
	Spec    chart.Spec       `json:"figure"`
}

// Bounds are the min and max selectable dates.
type Bounds struct {
	Min string `json:"min_date_allowed"`
	Max string `json:"max_date_allowed"`
}

// State returns the panel's wire view.
func (p *Panel) State() State {
	s := State{
		Kind:    p.kind,
		Graph:   controls.GraphFor(p.kind),
		Loading: p.Loading(),
		Seq:     p.seq,
		Inputs:  make(map[string]any),
		Spec:    p.spec,
	}
	for _, c := range controls.Inputs(p.kind) {
		switch c.Kind {
		case controls.KindDropdown:
			s.Inputs[string(c.ID)] = p.symbol.Value()
			s.Options = p.symbol.Options()
		case controls.KindMultiDropdown:
			s.Inputs[string(c.ID)] = p.symbols.Values()
			s.Options = p.symbols.Options()
		case controls.KindChecklist:
			s.Inputs[string(c.ID)] = p.slider.Values()
		case controls.KindDateRange:
			r := p.dates.Range()
			s.Inputs[string(c.ID)] = map[string]string{
				"start_date": r.Start.Format(domain.DateLayout),
				"end_date":   r.End.Format(domain.DateLayout),
			}
			lo, hi := p.dates.Bounds()
			s.Bounds = &Bounds{Min: lo.Format(domain.DateLayout), Max: hi.Format(domain.DateLayout)}
		case controls.KindDateSingle:
			s.Inputs[string(c.ID)] = p.date.Date().Format(domain.DateLayout)
			lo, hi := p.date.Bounds()
			s.Bounds = &Bounds{Min: lo.Format(domain.DateLayout), Max: hi.Format(domain.DateLayout)}
		}
	}
	if s.Options == nil {
		s.Options = []catalog.Option{}
	}
	return s
}

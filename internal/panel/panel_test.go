package panel

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"stockdash/internal/binding"
	"stockdash/internal/catalog"
	"stockdash/internal/chart"
	"stockdash/internal/controls"
	"stockdash/internal/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New(domain.MarketNSE, []string{"INFY", "TCS", "WIPRO", "HCLTECH"}, day(2024, 1, 1), day(2024, 3, 28))
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	return c
}

// echoEval returns a one-point spec whose trace name is the selected symbol.
func echoEval(_ context.Context, kind chart.Kind, in binding.Inputs) (chart.Spec, error) {
	return chart.Spec{Kind: kind, Traces: []chart.Trace{{Type: chart.TraceType(kind), Name: in.Symbol, X: []string{"2024-03-28"}, Y: []float64{1}}}}, nil
}

func TestDefaults(t *testing.T) {
	cat := testCatalog(t)
	opts := DefaultOptions()

	candle, _ := New(chart.Candlestick, cat, opts)
	if in := candle.Inputs(); in.Symbol != "INFY" || !in.RangeSlider {
		t.Errorf("candlestick defaults = %+v", in)
	}
	line, _ := New(chart.Line, cat, opts)
	if in := line.Inputs(); len(in.Symbols) != 2 || in.Symbols[1] != "TCS" || !in.RangeSlider {
		t.Errorf("line defaults = %+v", in)
	}
	bar, _ := New(chart.Bar, cat, opts)
	if in := bar.Inputs(); !in.Range.Start.Equal(day(2024, 3, 25)) || !in.Range.End.Equal(day(2024, 3, 28)) {
		t.Errorf("bar defaults = %+v", in)
	}
	pie, _ := New(chart.Pie, cat, opts)
	if in := pie.Inputs(); len(in.Symbols) != 3 || !in.Date.Equal(day(2024, 3, 28)) {
		t.Errorf("pie defaults = %+v", in)
	}

	if _, err := New("gauge", cat, opts); err == nil {
		t.Error("New(gauge) should fail")
	}
}

func TestApplyEffects(t *testing.T) {
	cat := testCatalog(t)
	p, _ := New(chart.Candlestick, cat, DefaultOptions())

	eff, _, err := p.Apply(Change{Control: controls.Ticker, Symbol: "TCS"})
	if err != nil || eff != EffectEvaluate {
		t.Errorf("ticker change = %v, %v; want evaluate", eff, err)
	}
	eff, _, _ = p.Apply(Change{Control: controls.Ticker, Symbol: "TCS"})
	if eff != EffectNone {
		t.Errorf("same ticker = %v, want none", eff)
	}
	eff, _, err = p.Apply(Change{Control: controls.ToggleRangeSlider, Flags: nil})
	if err != nil || eff != EffectRedecorate {
		t.Errorf("slider toggle = %v, %v; want redecorate", eff, err)
	}

	if _, _, err := p.Apply(Change{Control: controls.Ticker, Symbol: "IBM"}); err == nil {
		t.Error("unknown symbol accepted")
	}
	if p.Inputs().Symbol != "TCS" {
		t.Errorf("rejected change altered symbol to %q", p.Inputs().Symbol)
	}
	if _, _, err := p.Apply(Change{Control: controls.BarTicker, Symbol: "INFY"}); !errors.Is(err, ErrNotBound) {
		t.Errorf("foreign control err = %v, want ErrNotBound", err)
	}
	if _, _, err := p.Apply(Change{Control: controls.Graph1}); !errors.Is(err, ErrNotBound) {
		t.Errorf("output control err = %v, want ErrNotBound", err)
	}
}

func TestApplyDateRange(t *testing.T) {
	cat := testCatalog(t)
	p, _ := New(chart.Bar, cat, DefaultOptions())

	// A full pair replaces the range without a warning.
	eff, warn, err := p.Apply(Change{Control: controls.BarDatePicker, Start: day(2024, 3, 28), End: day(2024, 3, 28)})
	if err != nil || eff != EffectEvaluate {
		t.Fatalf("start move = %v, %v", eff, err)
	}
	if warn != "" {
		t.Errorf("no clamp expected, got warning %q", warn)
	}

	// An inverted pair is rejected even when one end matches the current range.
	p, _ = New(chart.Bar, cat, DefaultOptions())
	cur := p.Inputs().Range
	if _, _, err := p.Apply(Change{Control: controls.BarDatePicker, Start: cur.Start, End: day(2024, 3, 20)}); !errors.Is(err, domain.ErrInvertedRange) {
		t.Errorf("inverted with same start err = %v", err)
	}
	if _, _, err := p.Apply(Change{Control: controls.BarDatePicker, Start: day(2024, 3, 28), End: cur.End.AddDate(0, 0, -1)}); !errors.Is(err, domain.ErrInvertedRange) {
		t.Errorf("inverted with new start err = %v", err)
	}
	if r := p.Inputs().Range; !r.Start.Equal(cur.Start) || !r.End.Equal(cur.End) {
		t.Errorf("rejected change moved range to %s", r)
	}

	// Moving only the end before the start clamps the start with a warning.
	eff, warn, err = p.Apply(Change{Control: controls.BarDatePicker, End: day(2024, 3, 20)})
	if err != nil || eff != EffectEvaluate || !strings.Contains(warn, "start date") {
		t.Errorf("end clamp = %v, %q, %v", eff, warn, err)
	}
	if r := p.Inputs().Range; !r.Start.Equal(day(2024, 3, 20)) || !r.End.Equal(day(2024, 3, 20)) {
		t.Errorf("end clamped range = %s", r)
	}

	_, _, _ = p.Apply(Change{Control: controls.BarDatePicker, Start: day(2024, 3, 1), End: day(2024, 3, 10)})
	eff, warn, err = p.Apply(Change{Control: controls.BarDatePicker, Start: day(2024, 3, 15)})
	if err != nil || eff != EffectEvaluate || !strings.Contains(warn, "end date") {
		t.Errorf("clamp = %v, %q, %v", eff, warn, err)
	}
	if r := p.Inputs().Range; !r.End.Equal(day(2024, 3, 15)) {
		t.Errorf("clamped range = %s", r)
	}

	// Replacing both ends with an inverted pair is rejected.
	if _, _, err := p.Apply(Change{Control: controls.BarDatePicker, Start: day(2024, 3, 20), End: day(2024, 3, 2)}); !errors.Is(err, domain.ErrInvertedRange) {
		t.Errorf("inverted err = %v", err)
	}
}

func TestStaleResultDiscarded(t *testing.T) {
	cat := testCatalog(t)
	p, _ := New(chart.Candlestick, cat, Options{ShowLoading: true})
	ctx := context.Background()

	// slow only returns once its context is cancelled by the next Start, and
	// then still reports a result for the old selection.
	slow := func(ctx context.Context, kind chart.Kind, in binding.Inputs) (chart.Spec, error) {
		<-ctx.Done()
		return echoEval(context.Background(), kind, in)
	}
	out := make(chan Result, 4)

	first := p.Start(ctx, slow, 0, out)
	if !p.Loading() {
		t.Error("candlestick panel should show loading while pending")
	}

	_, _, _ = p.Apply(Change{Control: controls.Ticker, Symbol: "WIPRO"})
	second := p.Start(ctx, echoEval, 0, out)
	if second <= first {
		t.Fatalf("seq did not advance: %d then %d", first, second)
	}

	applied := 0
	for i := 0; i < 2; i++ {
		r := <-out
		if p.Complete(r) {
			applied++
			if r.Seq != second {
				t.Errorf("applied result seq %d, want %d", r.Seq, second)
			}
		}
	}
	if applied != 1 {
		t.Errorf("applied %d results, want 1", applied)
	}
	if got := p.Spec().Traces[0].Name; got != "WIPRO" {
		t.Errorf("rendered symbol = %q, want WIPRO", got)
	}
	if p.Loading() {
		t.Error("loading flag still set after completion")
	}
}

func TestLoadingAsymmetry(t *testing.T) {
	cat := testCatalog(t)
	p, _ := New(chart.Bar, cat, Options{RangeDays: 3, ShowLoading: false})
	out := make(chan Result, 1)
	block := make(chan struct{})
	defer close(block)

	p.Start(context.Background(), func(ctx context.Context, kind chart.Kind, in binding.Inputs) (chart.Spec, error) {
		<-block
		return chart.Spec{}, nil
	}, 0, out)
	if !p.Pending() {
		t.Error("bar panel should be pending")
	}
	if p.Loading() {
		t.Error("bar panel without ShowLoading must not report loading")
	}
}

func TestErrorPlaceholder(t *testing.T) {
	cat := testCatalog(t)
	p, _ := New(chart.Bar, cat, DefaultOptions())
	out := make(chan Result, 1)

	failing := func(context.Context, chart.Kind, binding.Inputs) (chart.Spec, error) {
		return chart.Spec{}, binding.ErrStoreUnavailable
	}
	p.Start(context.Background(), failing, time.Second, out)
	if !p.Complete(<-out) {
		t.Fatal("result not applied")
	}
	if p.Spec().Error == "" {
		t.Error("expected error placeholder")
	}
}

func TestRedecorateKeepsData(t *testing.T) {
	cat := testCatalog(t)
	p, _ := New(chart.Line, cat, DefaultOptions())
	if _, err := p.Evaluate(context.Background(), echoEval); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	before := p.Spec()
	if !before.Layout.RangeSlider {
		t.Fatal("slider should be on by default")
	}

	eff, _, _ := p.Apply(Change{Control: controls.ToggleRangeSlider2, Flags: []string{}})
	if eff != EffectRedecorate {
		t.Fatalf("effect = %v, want redecorate", eff)
	}
	after := p.Redecorate()
	if after.Layout.RangeSlider {
		t.Error("slider still on after toggle")
	}
	if after.Points() != before.Points() {
		t.Errorf("data changed: %d -> %d points", before.Points(), after.Points())
	}
}

func TestState(t *testing.T) {
	cat := testCatalog(t)
	p, _ := New(chart.Pie, cat, DefaultOptions())
	s := p.State()
	if s.Graph != controls.PieChart {
		t.Errorf("Graph = %s", s.Graph)
	}
	if s.Inputs[string(controls.PieDatePicker)] != "2024-03-28" {
		t.Errorf("date input = %v", s.Inputs[string(controls.PieDatePicker)])
	}
	if s.Bounds == nil || s.Bounds.Min != "2024-01-01" {
		t.Errorf("Bounds = %+v", s.Bounds)
	}
	if len(s.Options) != 4 {
		t.Errorf("Options len = %d, want 4", len(s.Options))
	}
}

// Package binding maps selector values to chart specs. Each panel kind has
// one Evaluator; evaluators read the bar store through a shared series cache
// and are otherwise pure, so two evaluations with equal inputs against the
// same store contents yield equal specs.
package binding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"stockdash/internal/catalog"
	"stockdash/internal/chart"
	"stockdash/internal/domain"
	"stockdash/internal/store"
)

// ErrStoreUnavailable marks a failure to read the bar store. The affected
// panel shows an error placeholder; other panels are unaffected.
var ErrStoreUnavailable = errors.New("data store unavailable")

// ErrUnknownKind is returned for a chart kind with no evaluator.
var ErrUnknownKind = errors.New("unknown chart kind")

// Inputs is the selector state a panel passes to its evaluator. Only the
// fields relevant to the panel kind are read.
type Inputs struct {
	Symbol      string           `json:"symbol,omitempty"`
	Symbols     []string         `json:"symbols,omitempty"`
	Range       domain.DateRange `json:"range"`
	Date        time.Time        `json:"date"`
	RangeSlider bool             `json:"rangeslider"`
}

// Evaluator computes the chart spec of one panel kind.
type Evaluator interface {
	Kind() chart.Kind
	Evaluate(ctx context.Context, in Inputs) (chart.Spec, error)
}

// Binder owns the evaluators and the series cache they share.
type Binder struct {
	bars   store.BarStore
	cat    *catalog.Catalog
	cache  *cache.Cache
	log    *slog.Logger
	evals  map[chart.Kind]Evaluator
	market domain.Market
}

// NewBinder returns a Binder reading from bars. Fetched series are cached for
// ttl; a zero ttl disables expiry.
func NewBinder(bars store.BarStore, cat *catalog.Catalog, ttl time.Duration) *Binder {
	exp := ttl
	if exp <= 0 {
		exp = cache.NoExpiration
	}
	b := &Binder{
		bars:   bars,
		cat:    cat,
		cache:  cache.New(exp, 2*ttl+time.Minute),
		log:    slog.Default().With("component", "binding"),
		market: cat.Market(),
	}
	b.evals = map[chart.Kind]Evaluator{
		chart.Candlestick: candlestickEvaluator{b},
		chart.Line:        lineEvaluator{b},
		chart.Bar:         barEvaluator{b},
		chart.Pie:         pieEvaluator{b},
	}
	return b
}

// Evaluator returns the evaluator for kind.
func (b *Binder) Evaluator(kind chart.Kind) (Evaluator, error) {
	e, ok := b.evals[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return e, nil
}

// Evaluate runs the evaluator for kind and applies decoration.
func (b *Binder) Evaluate(ctx context.Context, kind chart.Kind, in Inputs) (chart.Spec, error) {
	e, err := b.Evaluator(kind)
	if err != nil {
		return chart.Spec{}, err
	}
	start := time.Now()
	spec, err := e.Evaluate(ctx, in)
	if err != nil {
		b.log.Warn("evaluation failed", "panel", kind, "error", err)
		return chart.Spec{}, err
	}
	b.log.Debug("evaluated", "panel", kind, "points", spec.Points(), "duration_ms", time.Since(start).Milliseconds())
	return chart.Decorate(spec, in.RangeSlider), nil
}

// Invalidate drops every cached series. Called after ingest writes new bars.
func (b *Binder) Invalidate() {
	b.cache.Flush()
}

// ---------------------------------------------------------------------------
// Series access
// ---------------------------------------------------------------------------

// series returns the bars of sym within [start, end] (whole days), from the
// cache when possible.
func (b *Binder) series(ctx context.Context, sym string, start, end time.Time) ([]domain.Bar, error) {
	r := domain.DateRange{Start: domain.Day(start), End: domain.Day(end)}
	key := sym + "|" + r.String()
	if v, ok := b.cache.Get(key); ok {
		return v.([]domain.Bar), nil
	}

	bars, err := b.bars.ReadBars(ctx, sym, b.market, r.Start, r.EndOfDay())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, sym, err)
	}
	b.cache.SetDefault(key, bars)
	return bars, nil
}

// seriesMany fetches several symbols concurrently, preserving input order.
func (b *Binder) seriesMany(ctx context.Context, syms []string, start, end time.Time) ([][]domain.Bar, error) {
	out := make([][]domain.Bar, len(syms))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, sym := range syms {
		g.Go(func() error {
			bars, err := b.series(gctx, sym, start, end)
			if err != nil {
				return err
			}
			out[i] = bars
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func dates(bars []domain.Bar) []string {
	out := make([]string, len(bars))
	for i, bar := range bars {
		out[i] = bar.Timestamp.UTC().Format(domain.DateLayout)
	}
	return out
}

// ---------------------------------------------------------------------------
// Evaluators
// ---------------------------------------------------------------------------

type candlestickEvaluator struct{ b *Binder }

func (candlestickEvaluator) Kind() chart.Kind { return chart.Candlestick }

// Evaluate draws the full stored history of one symbol as OHLC candles.
func (e candlestickEvaluator) Evaluate(ctx context.Context, in Inputs) (chart.Spec, error) {
	bars, err := e.b.series(ctx, in.Symbol, e.b.cat.MinDate(), e.b.cat.MaxDate())
	if err != nil {
		return chart.Spec{}, err
	}
	if len(bars) == 0 {
		return chart.EmptySpec(chart.Candlestick, in.Symbol), nil
	}

	tr := chart.Trace{
		Type:  "candlestick",
		Name:  in.Symbol,
		X:     dates(bars),
		Open:  make([]float64, len(bars)),
		High:  make([]float64, len(bars)),
		Low:   make([]float64, len(bars)),
		Close: make([]float64, len(bars)),
	}
	for i, bar := range bars {
		tr.Open[i], tr.High[i], tr.Low[i], tr.Close[i] = bar.Open, bar.High, bar.Low, bar.Close
	}
	return chart.Spec{
		Kind:   chart.Candlestick,
		Traces: []chart.Trace{tr},
		Layout: chart.Layout{Title: in.Symbol, XTitle: "Date", YTitle: "Price", Height: chart.GraphHeight},
	}, nil
}

type lineEvaluator struct{ b *Binder }

func (lineEvaluator) Kind() chart.Kind { return chart.Line }

// Evaluate draws one closing-price line per selected symbol.
func (e lineEvaluator) Evaluate(ctx context.Context, in Inputs) (chart.Spec, error) {
	title := "Close price"
	if len(in.Symbols) == 0 {
		return chart.EmptySpec(chart.Line, title), nil
	}
	all, err := e.b.seriesMany(ctx, in.Symbols, e.b.cat.MinDate(), e.b.cat.MaxDate())
	if err != nil {
		return chart.Spec{}, err
	}

	spec := chart.Spec{
		Kind:   chart.Line,
		Layout: chart.Layout{Title: title, XTitle: "Date", YTitle: "Close", Height: chart.GraphHeight},
	}
	for i, bars := range all {
		if len(bars) == 0 {
			continue
		}
		tr := chart.Trace{Type: "scatter", Mode: "lines", Name: in.Symbols[i], X: dates(bars), Y: make([]float64, len(bars))}
		for j, bar := range bars {
			tr.Y[j] = bar.Close
		}
		spec.Traces = append(spec.Traces, tr)
	}
	if len(spec.Traces) == 0 {
		return chart.EmptySpec(chart.Line, title), nil
	}
	return spec, nil
}

type barEvaluator struct{ b *Binder }

func (barEvaluator) Kind() chart.Kind { return chart.Bar }

// Evaluate draws the daily traded volume of one symbol over the range.
func (e barEvaluator) Evaluate(ctx context.Context, in Inputs) (chart.Spec, error) {
	title := in.Symbol + " volume " + in.Range.String()
	bars, err := e.b.series(ctx, in.Symbol, in.Range.Start, in.Range.End)
	if err != nil {
		return chart.Spec{}, err
	}
	if len(bars) == 0 {
		return chart.EmptySpec(chart.Bar, title), nil
	}

	tr := chart.Trace{Type: "bar", Name: in.Symbol, X: dates(bars), Y: make([]float64, len(bars)), Text: make([]string, len(bars))}
	for i, bar := range bars {
		tr.Y[i] = float64(bar.Volume)
		tr.Text[i] = fmt.Sprintf("Volume %s, close %s", formatVolume(bar.Volume), formatPrice(bar.Close))
	}
	return chart.Spec{
		Kind:   chart.Bar,
		Traces: []chart.Trace{tr},
		Layout: chart.Layout{Title: title, XTitle: "Date", YTitle: "Volume", Height: chart.GraphHeight},
	}, nil
}

type pieEvaluator struct{ b *Binder }

func (pieEvaluator) Kind() chart.Kind { return chart.Pie }

// Evaluate splits the traded value (close x volume) on one day across the
// selected symbols. Symbols without a bar on that day are left out.
func (e pieEvaluator) Evaluate(ctx context.Context, in Inputs) (chart.Spec, error) {
	day := domain.Day(in.Date)
	title := "Traded value on " + day.Format(domain.DateLayout)
	if len(in.Symbols) == 0 {
		return chart.EmptySpec(chart.Pie, title), nil
	}
	all, err := e.b.seriesMany(ctx, in.Symbols, day, day)
	if err != nil {
		return chart.Spec{}, err
	}

	indian := e.b.market == domain.MarketNSE
	tr := chart.Trace{Type: "pie"}
	for i, bars := range all {
		if len(bars) == 0 {
			continue
		}
		bar := bars[len(bars)-1]
		tr.Labels = append(tr.Labels, in.Symbols[i])
		tr.Values = append(tr.Values, bar.Turnover())
		tr.Text = append(tr.Text, formatTurnover(bar.Turnover(), indian))
	}
	if len(tr.Values) == 0 {
		return chart.EmptySpec(chart.Pie, title), nil
	}
	return chart.Spec{
		Kind:   chart.Pie,
		Traces: []chart.Trace{tr},
		Layout: chart.Layout{Title: title, Height: chart.GraphHeight},
	}, nil
}

// IsStoreError reports whether err came from the bar store.
func IsStoreError(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// Describe returns a short user-facing message for an evaluation error.
func Describe(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "Timed out loading chart data"
	case IsStoreError(err):
		return "Chart data is unavailable right now"
	}
	return strings.TrimSpace("Could not draw chart: " + err.Error())
}

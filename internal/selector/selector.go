// Package selector implements the dashboard's input widgets as plain state
// holders. Every setter validates against the catalog before changing
// anything and reports whether the value actually changed, so callers only
// re-evaluate a chart on a real change.
package selector

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"stockdash/internal/catalog"
	"stockdash/internal/domain"
)

// Validation errors. A rejected Set leaves the widget unchanged.
var (
	ErrUnknownSymbol   = errors.New("symbol not in catalog")
	ErrDuplicateSymbol = errors.New("symbol already selected")
	ErrOutOfBounds     = errors.New("date outside available range")
	ErrInvertedRange   = domain.ErrInvertedRange
	ErrUnknownOption   = errors.New("unknown checklist option")
)

// ---------------------------------------------------------------------------
// Single-symbol dropdown
// ---------------------------------------------------------------------------

// SymbolDropdown holds one catalog symbol.
type SymbolDropdown struct {
	cat   *catalog.Catalog
	value string
}

// NewSymbolDropdown returns a dropdown defaulting to the first catalog symbol.
func NewSymbolDropdown(cat *catalog.Catalog) *SymbolDropdown {
	return &SymbolDropdown{cat: cat, value: cat.First(1)[0]}
}

// Value returns the selected symbol.
func (d *SymbolDropdown) Value() string { return d.value }

// Options returns the selectable entries.
func (d *SymbolDropdown) Options() []catalog.Option { return d.cat.Options() }

// Set selects sym.
func (d *SymbolDropdown) Set(sym string) (bool, error) {
	if !d.cat.Contains(sym) {
		return false, fmt.Errorf("%w: %q", ErrUnknownSymbol, sym)
	}
	if sym == d.value {
		return false, nil
	}
	d.value = sym
	return true, nil
}

// ---------------------------------------------------------------------------
// Multi-symbol dropdown
// ---------------------------------------------------------------------------

// MultiSymbolDropdown holds an ordered, duplicate-free list of catalog
// symbols. There is no maximum; the default count is only a starting point.
type MultiSymbolDropdown struct {
	cat    *catalog.Catalog
	values []string
}

// NewMultiSymbolDropdown returns a dropdown preselecting the first k symbols.
func NewMultiSymbolDropdown(cat *catalog.Catalog, k int) *MultiSymbolDropdown {
	return &MultiSymbolDropdown{cat: cat, values: cat.First(k)}
}

// Values returns a copy of the selection in insertion order.
func (d *MultiSymbolDropdown) Values() []string {
	return slices.Clone(d.values)
}

// Options returns the selectable entries.
func (d *MultiSymbolDropdown) Options() []catalog.Option { return d.cat.Options() }

// Set replaces the whole selection. An empty selection is allowed.
func (d *MultiSymbolDropdown) Set(syms []string) (bool, error) {
	if err := d.validate(syms); err != nil {
		return false, err
	}
	if slices.Equal(syms, d.values) {
		return false, nil
	}
	d.values = slices.Clone(syms)
	return true, nil
}

// Add appends sym to the selection.
func (d *MultiSymbolDropdown) Add(sym string) (bool, error) {
	if !d.cat.Contains(sym) {
		return false, fmt.Errorf("%w: %q", ErrUnknownSymbol, sym)
	}
	if slices.Contains(d.values, sym) {
		return false, fmt.Errorf("%w: %q", ErrDuplicateSymbol, sym)
	}
	d.values = append(d.values, sym)
	return true, nil
}

// Remove drops sym from the selection and reports whether it was present.
func (d *MultiSymbolDropdown) Remove(sym string) bool {
	i := slices.Index(d.values, sym)
	if i < 0 {
		return false
	}
	d.values = slices.Delete(d.values, i, i+1)
	return true
}

func (d *MultiSymbolDropdown) validate(syms []string) error {
	seen := make(map[string]bool, len(syms))
	for _, s := range syms {
		if !d.cat.Contains(s) {
			return fmt.Errorf("%w: %q", ErrUnknownSymbol, s)
		}
		if seen[s] {
			return fmt.Errorf("%w: %q", ErrDuplicateSymbol, s)
		}
		seen[s] = true
	}
	return nil
}

// ---------------------------------------------------------------------------
// Checklist
// ---------------------------------------------------------------------------

// SliderFlag is the checklist value that enables a chart's range slider.
const SliderFlag = "slider"

// Checklist holds a set of flags drawn from a fixed option list.
type Checklist struct {
	options []catalog.Option
	flags   []string
}

// NewRangeSliderChecklist returns the "Include Rangeslider" checklist with
// the slider flag set.
func NewRangeSliderChecklist() *Checklist {
	return &Checklist{
		options: []catalog.Option{{Label: "Include Rangeslider", Value: SliderFlag}},
		flags:   []string{SliderFlag},
	}
}

// Options returns the checklist entries.
func (c *Checklist) Options() []catalog.Option { return slices.Clone(c.options) }

// Values returns the set flags.
func (c *Checklist) Values() []string { return slices.Clone(c.flags) }

// Has reports whether flag is set.
func (c *Checklist) Has(flag string) bool { return slices.Contains(c.flags, flag) }

// Set replaces the flag set. Order and repeats in flags are ignored.
func (c *Checklist) Set(flags []string) (bool, error) {
	next := make([]string, 0, len(flags))
	for _, f := range flags {
		if !c.known(f) {
			return false, fmt.Errorf("%w: %q", ErrUnknownOption, f)
		}
		if !slices.Contains(next, f) {
			next = append(next, f)
		}
	}
	slices.Sort(next)
	if slices.Equal(next, c.flags) {
		return false, nil
	}
	c.flags = next
	return true, nil
}

func (c *Checklist) known(v string) bool {
	for _, o := range c.options {
		if o.Value == v {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Date pickers
// ---------------------------------------------------------------------------

// DateRangePicker holds a day range inside the catalog bounds.
type DateRangePicker struct {
	cat *catalog.Catalog
	r   domain.DateRange
}

// NewDateRangePicker returns a picker covering the last days of history:
// [MaxDate - days, MaxDate], with the start clamped to MinDate.
func NewDateRangePicker(cat *catalog.Catalog, days int) *DateRangePicker {
	end := cat.MaxDate()
	start := end.AddDate(0, 0, -days)
	if start.Before(cat.MinDate()) {
		start = cat.MinDate()
	}
	return &DateRangePicker{cat: cat, r: domain.DateRange{Start: start, End: end}}
}

// Range returns the selected range.
func (p *DateRangePicker) Range() domain.DateRange { return p.r }

// Bounds returns the selectable min and max dates.
func (p *DateRangePicker) Bounds() (time.Time, time.Time) { return p.cat.MinDate(), p.cat.MaxDate() }

// Set replaces both ends. A start after end is rejected.
func (p *DateRangePicker) Set(start, end time.Time) (bool, error) {
	if err := p.check(start); err != nil {
		return false, err
	}
	if err := p.check(end); err != nil {
		return false, err
	}
	r, err := domain.NewDateRange(start, end)
	if err != nil {
		return false, err
	}
	if r.Equal(p.r) {
		return false, nil
	}
	p.r = r
	return true, nil
}

// SetStart moves the start. If it passes the current end, the end is
// clamped to the new start and clamped is true.
func (p *DateRangePicker) SetStart(start time.Time) (changed, clamped bool, err error) {
	if err := p.check(start); err != nil {
		return false, false, err
	}
	next := domain.DateRange{Start: domain.Day(start), End: p.r.End}
	if next.Start.After(next.End) {
		next.End = next.Start
		clamped = true
	}
	if next.Equal(p.r) {
		return false, false, nil
	}
	p.r = next
	return true, clamped, nil
}

// SetEnd moves the end. If it falls before the current start, the start is
// clamped to the new end and clamped is true.
func (p *DateRangePicker) SetEnd(end time.Time) (changed, clamped bool, err error) {
	if err := p.check(end); err != nil {
		return false, false, err
	}
	next := domain.DateRange{Start: p.r.Start, End: domain.Day(end)}
	if next.End.Before(next.Start) {
		next.Start = next.End
		clamped = true
	}
	if next.Equal(p.r) {
		return false, false, nil
	}
	p.r = next
	return true, clamped, nil
}

func (p *DateRangePicker) check(t time.Time) error {
	if !p.cat.InBounds(t) {
		return fmt.Errorf("%w: %s not in %s..%s", ErrOutOfBounds, t.Format(domain.DateLayout),
			p.cat.MinDate().Format(domain.DateLayout), p.cat.MaxDate().Format(domain.DateLayout))
	}
	return nil
}

// DatePicker holds a single day inside the catalog bounds.
type DatePicker struct {
	cat *catalog.Catalog
	d   time.Time
}

// NewDatePicker returns a picker defaulting to the latest day with data.
func NewDatePicker(cat *catalog.Catalog) *DatePicker {
	return &DatePicker{cat: cat, d: cat.MaxDate()}
}

// Date returns the selected day.
func (p *DatePicker) Date() time.Time { return p.d }

// Bounds returns the selectable min and max dates.
func (p *DatePicker) Bounds() (time.Time, time.Time) { return p.cat.MinDate(), p.cat.MaxDate() }

// Set selects day d.
func (p *DatePicker) Set(d time.Time) (bool, error) {
	if !p.cat.InBounds(d) {
		return false, fmt.Errorf("%w: %s", ErrOutOfBounds, d.Format(domain.DateLayout))
	}
	d = domain.Day(d)
	if d.Equal(p.d) {
		return false, nil
	}
	p.d = d
	return true, nil
}

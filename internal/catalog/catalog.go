// Package catalog holds the immutable set of symbols the dashboard offers and
// the date bounds of the stored history. A Catalog is built once at startup
// and shared by pointer; nothing mutates it afterwards.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"stockdash/internal/domain"
	"stockdash/internal/store"
)

// ErrEmpty is returned when no symbol with stored data is available.
var ErrEmpty = errors.New("catalog: no symbols with data")

// Option is one dropdown entry. Label and value are both the ticker.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Catalog is an ordered, duplicate-free symbol list with the inclusive date
// bounds across all of them.
type Catalog struct {
	market  domain.Market
	symbols []string
	index   map[string]int
	info    map[string]domain.SymbolInfo
	minDate time.Time
	maxDate time.Time
}

// New builds a Catalog from an explicit symbol order and date bounds. It is
// the constructor used by tests and by Build.
func New(market domain.Market, symbols []string, minDate, maxDate time.Time) (*Catalog, error) {
	if len(symbols) == 0 {
		return nil, ErrEmpty
	}
	minDate, maxDate = domain.Day(minDate), domain.Day(maxDate)
	if minDate.After(maxDate) {
		return nil, fmt.Errorf("catalog: min date %s after max date %s",
			minDate.Format(domain.DateLayout), maxDate.Format(domain.DateLayout))
	}

	c := &Catalog{
		market:  market,
		symbols: make([]string, 0, len(symbols)),
		index:   make(map[string]int, len(symbols)),
		info:    make(map[string]domain.SymbolInfo),
		minDate: minDate,
		maxDate: maxDate,
	}
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := c.index[s]; dup {
			return nil, fmt.Errorf("catalog: duplicate symbol %q", s)
		}
		c.index[s] = len(c.symbols)
		c.symbols = append(c.symbols, s)
	}
	if len(c.symbols) == 0 {
		return nil, ErrEmpty
	}
	return c, nil
}

// Build loads the catalog from the bar store. When symbols is empty every
// symbol in the store is used in sorted order; otherwise the given order is
// kept and symbols without data are dropped with a warning. Metadata is read
// from meta when it is non-nil.
func Build(ctx context.Context, bars store.BarStore, meta store.SymbolStore, market domain.Market, symbols []string) (*Catalog, error) {
	log := slog.Default().With("component", "catalog")

	if len(symbols) == 0 {
		var err error
		symbols, err = bars.ListSymbols(ctx, market)
		if err != nil {
			return nil, fmt.Errorf("listing symbols: %w", err)
		}
	}

	var (
		kept           []string
		minDate, maxDt time.Time
	)
	for _, sym := range symbols {
		first, last, err := bars.DateBounds(ctx, sym, market)
		if errors.Is(err, store.ErrNoData) {
			log.Warn("symbol has no data, skipping", "symbol", sym)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("date bounds for %s: %w", sym, err)
		}
		kept = append(kept, sym)
		if minDate.IsZero() || first.Before(minDate) {
			minDate = first
		}
		if last.After(maxDt) {
			maxDt = last
		}
	}
	if len(kept) == 0 {
		return nil, ErrEmpty
	}

	c, err := New(market, kept, minDate, maxDt)
	if err != nil {
		return nil, err
	}

	if meta != nil {
		infos, err := meta.ListSymbolInfo(ctx, market)
		if err != nil {
			log.Warn("symbol metadata unavailable", "error", err)
		}
		for _, info := range infos {
			if c.Contains(info.Symbol) {
				c.info[info.Symbol] = info
			}
		}
	}

	log.Info("catalog built",
		"market", market,
		"symbols", len(c.symbols),
		"min_date", c.minDate.Format(domain.DateLayout),
		"max_date", c.maxDate.Format(domain.DateLayout),
	)
	return c, nil
}

// Market returns the market all catalog symbols belong to.
func (c *Catalog) Market() domain.Market { return c.market }

// Symbols returns a copy of the ordered symbol list.
func (c *Catalog) Symbols() []string {
	out := make([]string, len(c.symbols))
	copy(out, c.symbols)
	return out
}

// Len returns the number of symbols.
func (c *Catalog) Len() int { return len(c.symbols) }

// First returns up to n symbols from the front of the catalog.
func (c *Catalog) First(n int) []string {
	if n > len(c.symbols) {
		n = len(c.symbols)
	}
	if n < 0 {
		n = 0
	}
	out := make([]string, n)
	copy(out, c.symbols[:n])
	return out
}

// Contains reports whether sym is in the catalog.
func (c *Catalog) Contains(sym string) bool {
	_, ok := c.index[sym]
	return ok
}

// MinDate returns the earliest day with data.
func (c *Catalog) MinDate() time.Time { return c.minDate }

// MaxDate returns the latest day with data.
func (c *Catalog) MaxDate() time.Time { return c.maxDate }

// InBounds reports whether t's day lies within [MinDate, MaxDate].
func (c *Catalog) InBounds(t time.Time) bool {
	d := domain.Day(t)
	return !d.Before(c.minDate) && !d.After(c.maxDate)
}

// Options returns dropdown entries in catalog order.
func (c *Catalog) Options() []Option {
	out := make([]Option, len(c.symbols))
	for i, s := range c.symbols {
		out[i] = Option{Label: s, Value: s}
	}
	return out
}

// Info returns metadata for sym, if any was loaded.
func (c *Catalog) Info(sym string) (domain.SymbolInfo, bool) {
	info, ok := c.info[sym]
	return info, ok
}

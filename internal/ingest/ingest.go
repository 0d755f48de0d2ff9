// Package ingest loads daily bar history into the bar store. Two sources are
// supported: directories of CSV exports and the Alpaca market-data API.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"stockdash/internal/domain"
	"stockdash/internal/store"
)

// Gatherer is the interface for all data loading processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run performs one ingest pass and returns when it is done or ctx is
	// cancelled.
	Run(ctx context.Context) error
}

// Stats counts the work done by one Run.
type Stats struct {
	Symbols atomic.Int64
	Bars    atomic.Int64
	Empty   atomic.Int64
	Failed  atomic.Int64
}

func (s *Stats) reset() {
	s.Symbols.Store(0)
	s.Bars.Store(0)
	s.Empty.Store(0)
	s.Failed.Store(0)
}

// Snapshot returns a plain copy of the counters, suitable for logging.
func (s *Stats) Snapshot() map[string]int64 {
	return map[string]int64{
		"symbols": s.Symbols.Load(),
		"bars":    s.Bars.Load(),
		"empty":   s.Empty.Load(),
		"failed":  s.Failed.Load(),
	}
}

// refreshSymbol recomputes the first and last stored day of symbol and
// upserts it into the metadata store. Name and sector are taken from meta
// when set, otherwise preserved from the existing record.
func refreshSymbol(ctx context.Context, bars store.BarStore, syms store.SymbolStore, market domain.Market, symbol string, meta domain.SymbolInfo) error {
	if syms == nil {
		return nil
	}
	first, last, err := bars.DateBounds(ctx, symbol, market)
	if errors.Is(err, store.ErrNoData) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("date bounds %s: %w", symbol, err)
	}

	info, err := syms.GetSymbol(ctx, market, symbol)
	if err != nil && !errors.Is(err, store.ErrNoData) {
		return fmt.Errorf("get symbol %s: %w", symbol, err)
	}
	info.Symbol = symbol
	info.Market = market
	if meta.Name != "" {
		info.Name = meta.Name
	}
	if meta.Sector != "" {
		info.Sector = meta.Sector
	}
	info.FirstDate = domain.Day(first)
	info.LastDate = domain.Day(last)
	return syms.UpsertSymbol(ctx, info)
}

// RunAll runs each gatherer in turn, logging and collecting failures so one
// broken source does not stop the rest.
func RunAll(ctx context.Context, log *slog.Logger, gatherers ...Gatherer) error {
	var errs []error
	for _, g := range gatherers {
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Info("ingest starting", "gatherer", g.Name())
		if err := g.Run(ctx); err != nil {
			log.Error("ingest failed", "gatherer", g.Name(), "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", g.Name(), err))
			continue
		}
		log.Info("ingest done", "gatherer", g.Name())
	}
	return errors.Join(errs...)
}

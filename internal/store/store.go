// Package store defines storage interfaces for the daily bar history that
// backs every chart, and for symbol metadata shown alongside it.
package store

import (
	"context"
	"errors"
	"time"

	"stockdash/internal/domain"
)

// ErrNoData is returned when a symbol has no stored bars at all.
var ErrNoData = errors.New("store: no data")

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars for the given market, merging with
	// bars already stored for the same (symbol, day).
	WriteBars(ctx context.Context, market domain.Market, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within [start, end],
	// sorted by timestamp.
	ReadBars(ctx context.Context, symbol string, market domain.Market, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market domain.Market) ([]string, error)

	// DateBounds returns the first and last bar timestamps stored for symbol.
	// It returns ErrNoData when the symbol has no bars.
	DateBounds(ctx context.Context, symbol string, market domain.Market) (first, last time.Time, err error)
}

// SymbolStore persists and retrieves symbol metadata.
type SymbolStore interface {
	// UpsertSymbol inserts or replaces metadata for a symbol.
	UpsertSymbol(ctx context.Context, info domain.SymbolInfo) error

	// GetSymbol retrieves metadata for a symbol. It returns ErrNoData when the
	// symbol is unknown.
	GetSymbol(ctx context.Context, market domain.Market, symbol string) (domain.SymbolInfo, error)

	// ListSymbolInfo returns metadata for every symbol of a market, ordered by
	// symbol.
	ListSymbolInfo(ctx context.Context, market domain.Market) ([]domain.SymbolInfo, error)
}

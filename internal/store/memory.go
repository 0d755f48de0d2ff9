package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"stockdash/internal/domain"
)

// Compile-time interface check.
var _ BarStore = (*MemStore)(nil)

// MemStore is an in-memory BarStore. Setting Err makes every read fail with
// that error, which lets callers exercise store outages.
type MemStore struct {
	mu   sync.RWMutex
	bars map[domain.Market]map[string][]domain.Bar
	Err  error
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{bars: make(map[domain.Market]map[string][]domain.Bar)}
}

// WriteBars stores bars, replacing any bar with the same symbol and timestamp.
func (m *MemStore) WriteBars(_ context.Context, market domain.Market, bars []domain.Bar) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bySym := m.bars[market]
	if bySym == nil {
		bySym = make(map[string][]domain.Bar)
		m.bars[market] = bySym
	}
	for _, b := range bars {
		sym := strings.ToUpper(b.Symbol)
		b.Symbol = sym
		list := bySym[sym]
		replaced := false
		for i := range list {
			if list[i].Timestamp.Equal(b.Timestamp) {
				list[i] = b
				replaced = true
				break
			}
		}
		if !replaced {
			list = append(list, b)
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Timestamp.Before(list[j].Timestamp) })
		bySym[sym] = list
	}
	return nil
}

// ReadBars returns the stored bars for symbol within [start, end].
func (m *MemStore) ReadBars(ctx context.Context, symbol string, market domain.Market, start, end time.Time) ([]domain.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}

	var out []domain.Bar
	for _, b := range m.bars[market][strings.ToUpper(symbol)] {
		if !b.Timestamp.Before(start) && !b.Timestamp.After(end) {
			out = append(out, b)
		}
	}
	return out, nil
}

// ListSymbols returns the stored symbols of a market in sorted order.
func (m *MemStore) ListSymbols(_ context.Context, market domain.Market) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}

	symbols := make([]string, 0, len(m.bars[market]))
	for sym := range m.bars[market] {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols, nil
}

// DateBounds returns the first and last bar timestamps for symbol.
func (m *MemStore) DateBounds(_ context.Context, symbol string, market domain.Market) (time.Time, time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return time.Time{}, time.Time{}, m.Err
	}

	list := m.bars[market][strings.ToUpper(symbol)]
	if len(list) == 0 {
		return time.Time{}, time.Time{}, ErrNoData
	}
	return list[0].Timestamp, list[len(list)-1].Timestamp, nil
}

// SetErr sets the error returned by subsequent reads.
func (m *MemStore) SetErr(err error) {
	m.mu.Lock()
	m.Err = err
	m.mu.Unlock()
}

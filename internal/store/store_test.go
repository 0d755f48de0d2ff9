package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"stockdash/internal/domain"
)

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")

	bp := ps.barPath("infy", domain.MarketNSE, 2024)
	want := filepath.Join("/data", "nse", "daily", "INFY", "2024.parquet")
	if bp != want {
		t.Errorf("barPath mismatch:\n  got  %s\n  want %s", bp, want)
	}
}

func TestParquetStoreWriteReadBars(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	bars := []domain.Bar{
		{
			Symbol:    "INFY",
			Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			Open:      1500.0, High: 1520.5, Low: 1490.0, Close: 1515.5,
			Volume: 5000000, TradeCount: 120000, VWAP: 1510.25,
		},
		{
			Symbol:    "INFY",
			Timestamp: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
			Open:      1515.5, High: 1530.0, Low: 1505.0, Close: 1526.0,
			Volume: 4500000, TradeCount: 110000, VWAP: 1520.75,
		},
	}

	if err := ps.WriteBars(ctx, domain.MarketNSE, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	got, err := ps.ReadBars(ctx, "INFY", domain.MarketNSE, start, end)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars, want 2", len(got))
	}
	if got[0].Close != 1515.5 {
		t.Errorf("first bar Close = %v, want 1515.5", got[0].Close)
	}
	if got[1].Close != 1526.0 {
		t.Errorf("second bar Close = %v, want 1526.0", got[1].Close)
	}

	// Window that excludes the first bar.
	got, err = ps.ReadBars(ctx, "INFY", domain.MarketNSE, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), end)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("ReadBars narrowed returned %d bars, want 1", len(got))
	}
}

func TestParquetStoreReadMissingYear(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	got, err := ps.ReadBars(context.Background(), "TCS", domain.MarketNSE,
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ReadBars on empty store: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ReadBars on empty store returned %d bars", len(got))
	}
}

func TestParquetStoreMergeBars(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	bars1 := []domain.Bar{
		{
			Symbol:    "WIPRO",
			Timestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			Open:      480.0, High: 485.0, Low: 479.0, Close: 483.0, Volume: 3000000,
		},
	}
	if err := ps.WriteBars(ctx, domain.MarketNSE, bars1); err != nil {
		t.Fatalf("WriteBars (first): %v", err)
	}

	// Second write adds a day and corrects the first one.
	bars2 := []domain.Bar{
		{
			Symbol:    "WIPRO",
			Timestamp: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
			Open:      483.0, High: 490.0, Low: 482.0, Close: 488.0, Volume: 3500000,
		},
		{
			Symbol:    "WIPRO",
			Timestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			Open:      480.0, High: 485.0, Low: 479.0, Close: 484.0, Volume: 3000000,
		},
	}
	if err := ps.WriteBars(ctx, domain.MarketNSE, bars2); err != nil {
		t.Fatalf("WriteBars (second): %v", err)
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	got, err := ps.ReadBars(ctx, "WIPRO", domain.MarketNSE, start, end)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars after merge, want 2", len(got))
	}
	if got[0].Close != 484.0 {
		t.Errorf("merged bar Close = %v, want 484.0", got[0].Close)
	}
}

func TestParquetStoreListSymbolsAndBounds(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	bars := []domain.Bar{
		{Symbol: "TCS", Timestamp: time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC), Close: 3790.0, Volume: 1000},
		{Symbol: "INFY", Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 1515.5, Volume: 2000},
		{Symbol: "TCS", Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 3800.0, Volume: 1100},
		{Symbol: "TCS", Timestamp: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), Close: 3810.0, Volume: 1200},
	}
	if err := ps.WriteBars(ctx, domain.MarketNSE, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	symbols, err := ps.ListSymbols(ctx, domain.MarketNSE)
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "INFY" || symbols[1] != "TCS" {
		t.Errorf("ListSymbols = %v, want [INFY TCS]", symbols)
	}

	first, last, err := ps.DateBounds(ctx, "TCS", domain.MarketNSE)
	if err != nil {
		t.Fatalf("DateBounds: %v", err)
	}
	if !first.Equal(time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("first = %v, want 2023-12-29", first)
	}
	if !last.Equal(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("last = %v, want 2024-01-05", last)
	}

	if _, _, err := ps.DateBounds(ctx, "HCLTECH", domain.MarketNSE); !errors.Is(err, ErrNoData) {
		t.Errorf("DateBounds unknown symbol err = %v, want ErrNoData", err)
	}
}

func TestMemStore(t *testing.T) {
	ms := NewMemStore()
	ctx := context.Background()
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	if err := ms.WriteBars(ctx, domain.MarketNSE, []domain.Bar{
		{Symbol: "infy", Timestamp: day.AddDate(0, 0, 1), Close: 2},
		{Symbol: "INFY", Timestamp: day, Close: 1},
		{Symbol: "INFY", Timestamp: day, Close: 1.5},
	}); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	got, err := ms.ReadBars(ctx, "INFY", domain.MarketNSE, day, day.AddDate(0, 0, 5))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 || got[0].Close != 1.5 || got[1].Close != 2 {
		t.Errorf("ReadBars = %+v", got)
	}

	boom := errors.New("disk gone")
	ms.SetErr(boom)
	if _, err := ms.ReadBars(ctx, "INFY", domain.MarketNSE, day, day); !errors.Is(err, boom) {
		t.Errorf("ReadBars err = %v, want %v", err, boom)
	}
}

func TestSQLiteStoreSymbols(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore(%q) returned error: %v", dbPath, err)
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			t.Errorf("Close() returned error: %v", cerr)
		}
	}()
	ctx := context.Background()

	info := domain.SymbolInfo{
		Symbol:    "TCS",
		Name:      "Tata Consultancy Services",
		Sector:    "IT",
		Market:    domain.MarketNSE,
		FirstDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		LastDate:  time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
	}
	if err := s.UpsertSymbol(ctx, info); err != nil {
		t.Fatalf("UpsertSymbol: %v", err)
	}
	info.Name = "TCS Ltd"
	if err := s.UpsertSymbol(ctx, info); err != nil {
		t.Fatalf("UpsertSymbol (update): %v", err)
	}
	if err := s.UpsertSymbol(ctx, domain.SymbolInfo{Symbol: "INFY", Market: domain.MarketNSE}); err != nil {
		t.Fatalf("UpsertSymbol: %v", err)
	}

	got, err := s.GetSymbol(ctx, domain.MarketNSE, "TCS")
	if err != nil {
		t.Fatalf("GetSymbol: %v", err)
	}
	if got.Name != "TCS Ltd" {
		t.Errorf("Name = %q, want %q", got.Name, "TCS Ltd")
	}
	if !got.LastDate.Equal(info.LastDate) {
		t.Errorf("LastDate = %v, want %v", got.LastDate, info.LastDate)
	}

	list, err := s.ListSymbolInfo(ctx, domain.MarketNSE)
	if err != nil {
		t.Fatalf("ListSymbolInfo: %v", err)
	}
	if len(list) != 2 || list[0].Symbol != "INFY" {
		t.Errorf("ListSymbolInfo = %+v", list)
	}

	if _, err := s.GetSymbol(ctx, domain.MarketNSE, "NOPE"); !errors.Is(err, ErrNoData) {
		t.Errorf("GetSymbol unknown err = %v, want ErrNoData", err)
	}
}

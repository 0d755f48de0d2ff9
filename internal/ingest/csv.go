package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"stockdash/internal/domain"
	"stockdash/internal/store"
)

var _ Gatherer = (*CSVImporter)(nil)

// MetaFile is the optional per-directory file describing symbols. It uses the
// exchange index-constituent layout: Company Name, Industry, Symbol.
const MetaFile = "symbols.csv"

// ErrBadCSV is returned for files whose header lacks a required column.
var ErrBadCSV = errors.New("ingest: malformed csv")

// dateLayouts are tried in order when parsing the date column.
var dateLayouts = []string{
	"2006-01-02",
	"02-Jan-2006",
	"02-01-2006",
	"02/01/2006",
	"2006/01/02",
	"02 Jan 2006",
}

// columnAliases maps normalised header names onto bar fields.
var columnAliases = map[string]string{
	"date":                  "date",
	"timestamp":             "date",
	"symbol":                "symbol",
	"open":                  "open",
	"high":                  "high",
	"low":                   "low",
	"close":                 "close",
	"close price":           "close",
	"volume":                "volume",
	"shares traded":         "volume",
	"total traded quantity": "volume",
	"vwap":                  "vwap",
	"average price":         "vwap",
	"no of trades":          "trades",
	"no. of trades":         "trades",
	"trades":                "trades",
}

// CSVImporter loads every *.csv file of a directory into the bar store. A file
// named SYMBOL.csv holds the history of SYMBOL unless it carries its own
// Symbol column.
type CSVImporter struct {
	dir     string
	market  domain.Market
	bars    store.BarStore
	symbols store.SymbolStore
	stats   Stats
	log     *slog.Logger
}

// NewCSVImporter creates an importer reading from dir. symbols may be nil, in
// which case no metadata is maintained.
func NewCSVImporter(dir string, market domain.Market, bars store.BarStore, symbols store.SymbolStore, log *slog.Logger) *CSVImporter {
	if log == nil {
		log = slog.Default()
	}
	return &CSVImporter{
		dir:     dir,
		market:  market,
		bars:    bars,
		symbols: symbols,
		log:     log.With("gatherer", "csv"),
	}
}

// Name returns the gatherer identifier.
func (c *CSVImporter) Name() string { return "csv" }

// Stats returns the counters of the last Run.
func (c *CSVImporter) Stats() *Stats { return &c.stats }

// Run imports every CSV file found in the directory. A file that fails to
// parse is logged and skipped.
func (c *CSVImporter) Run(ctx context.Context) error {
	c.stats.reset()
	files, err := filepath.Glob(filepath.Join(c.dir, "*.csv"))
	if err != nil {
		return fmt.Errorf("listing %s: %w", c.dir, err)
	}
	sort.Strings(files)

	meta := map[string]domain.SymbolInfo{}
	var data []string
	for _, f := range files {
		if strings.EqualFold(filepath.Base(f), MetaFile) {
			m, err := LoadSymbolMeta(f)
			if err != nil {
				return err
			}
			meta = m
			continue
		}
		data = append(data, f)
	}
	if len(data) == 0 {
		c.log.Warn("no csv files", "dir", c.dir)
		return nil
	}

	start := time.Now()
	for _, f := range data {
		if err := ctx.Err(); err != nil {
			return err
		}
		syms, n, err := c.ImportFile(ctx, f)
		if err != nil {
			c.stats.Failed.Add(1)
			c.log.Error("import failed", "file", filepath.Base(f), "err", err)
			continue
		}
		if n == 0 {
			c.stats.Empty.Add(1)
		}
		c.stats.Bars.Add(int64(n))
		for _, sym := range syms {
			c.stats.Symbols.Add(1)
			if err := refreshSymbol(ctx, c.bars, c.symbols, c.market, sym, meta[sym]); err != nil {
				c.log.Error("symbol metadata", "symbol", sym, "err", err)
			}
		}
	}

	c.log.Info("complete",
		"files", len(data),
		"bars", c.stats.Bars.Load(),
		"failed", c.stats.Failed.Load(),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

// ImportFile parses one CSV file and writes its bars. It returns the symbols
// written and the bar count.
func (c *CSVImporter) ImportFile(ctx context.Context, path string) ([]string, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	fallback := strings.ToUpper(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	bars, err := ParseBars(f, fallback)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if len(bars) == 0 {
		return nil, 0, nil
	}
	if err := c.bars.WriteBars(ctx, c.market, bars); err != nil {
		return nil, 0, fmt.Errorf("writing bars: %w", err)
	}

	seen := map[string]bool{}
	var syms []string
	for _, b := range bars {
		if !seen[b.Symbol] {
			seen[b.Symbol] = true
			syms = append(syms, b.Symbol)
		}
	}
	sort.Strings(syms)
	return syms, len(bars), nil
}

// ParseBars reads daily bars from CSV. Header names are matched case
// insensitively after trimming, so exchange exports with padded headers such
// as "OPEN " are accepted. Rows with a series other than EQ are skipped.
func ParseBars(r io.Reader, symbol string) ([]domain.Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	cols := map[string]int{}
	series := -1
	for i, h := range header {
		name := normaliseHeader(h)
		if name == "series" {
			series = i
			continue
		}
		if field, ok := columnAliases[name]; ok {
			if _, dup := cols[field]; !dup {
				cols[field] = i
			}
		}
	}
	for _, req := range []string{"date", "open", "high", "low", "close"} {
		if _, ok := cols[req]; !ok {
			return nil, fmt.Errorf("%w: missing %q column", ErrBadCSV, req)
		}
	}
	if _, ok := cols["symbol"]; !ok && symbol == "" {
		return nil, fmt.Errorf("%w: no symbol column and no file symbol", ErrBadCSV)
	}

	var bars []domain.Bar
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if series >= 0 && series < len(row) {
			if s := strings.TrimSpace(row[series]); s != "" && !strings.EqualFold(s, "EQ") {
				continue
			}
		}
		b, err := parseRow(row, cols, symbol)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, b)
	}
	sort.SliceStable(bars, func(i, j int) bool {
		if bars[i].Symbol != bars[j].Symbol {
			return bars[i].Symbol < bars[j].Symbol
		}
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})
	return bars, nil
}

func parseRow(row []string, cols map[string]int, symbol string) (domain.Bar, error) {
	get := func(field string) string {
		i, ok := cols[field]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var b domain.Bar
	b.Symbol = symbol
	if s := get("symbol"); s != "" {
		b.Symbol = strings.ToUpper(s)
	}
	ts, err := parseDate(get("date"))
	if err != nil {
		return b, err
	}
	b.Timestamp = ts

	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"open", &b.Open},
		{"high", &b.High},
		{"low", &b.Low},
		{"close", &b.Close},
	} {
		v, err := parseNumber(get(f.name))
		if err != nil {
			return b, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = v
	}
	if s := get("vwap"); s != "" {
		if v, err := parseNumber(s); err == nil {
			b.VWAP = v
		}
	}
	if s := get("volume"); s != "" {
		v, err := parseNumber(s)
		if err != nil {
			return b, fmt.Errorf("volume: %w", err)
		}
		b.Volume = int64(v)
	}
	if s := get("trades"); s != "" {
		if v, err := parseNumber(s); err == nil {
			b.TradeCount = int64(v)
		}
	}
	if b.High < b.Low {
		return b, fmt.Errorf("high %.2f below low %.2f", b.High, b.Low)
	}
	return b, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// parseNumber accepts thousands separators ("1,234.50") and a dash for zero.
func parseNumber(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" || s == "-" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func normaliseHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.Join(strings.Fields(strings.ToLower(h)), " ")
}

// LoadSymbolMeta reads the symbol metadata file. Required columns are Symbol;
// Company Name and Industry are optional.
func LoadSymbolMeta(path string) (map[string]domain.SymbolInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(records) < 2 {
		return map[string]domain.SymbolInfo{}, nil
	}

	symCol, nameCol, sectorCol := -1, -1, -1
	for i, h := range records[0] {
		switch normaliseHeader(h) {
		case "symbol":
			symCol = i
		case "company name", "name":
			nameCol = i
		case "industry", "sector":
			sectorCol = i
		}
	}
	if symCol < 0 {
		return nil, fmt.Errorf("%w: %s has no symbol column", ErrBadCSV, filepath.Base(path))
	}

	out := make(map[string]domain.SymbolInfo, len(records)-1)
	for _, row := range records[1:] {
		if symCol >= len(row) {
			continue
		}
		sym := strings.ToUpper(strings.TrimSpace(row[symCol]))
		if sym == "" {
			continue
		}
		info := domain.SymbolInfo{Symbol: sym}
		if nameCol >= 0 && nameCol < len(row) {
			info.Name = strings.TrimSpace(row[nameCol])
		}
		if sectorCol >= 0 && sectorCol < len(row) {
			info.Sector = strings.TrimSpace(row[sectorCol])
		}
		out[sym] = info
	}
	return out, nil
}

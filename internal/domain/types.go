// Package domain defines the core value types shared by the dashboard: daily
// bars, symbol metadata, and day-granularity date ranges.
package domain

import (
	"errors"
	"time"
)

// Market identifies the exchange a symbol trades on. It is also the first
// path segment of the on-disk bar layout.
type Market string

const (
	MarketNSE Market = "nse"
	MarketUS  Market = "us"
)

// DateLayout is the wire and display format for dates.
const DateLayout = "2006-01-02"

// Bar is one daily OHLCV record for a symbol.
type Bar struct {
	Symbol     string    `json:"symbol"`
	Timestamp  time.Time `json:"timestamp"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     int64     `json:"volume"`
	TradeCount int64     `json:"trade_count"`
	VWAP       float64   `json:"vwap"`
}

// Turnover is the traded value of the bar (close price times volume).
func (b Bar) Turnover() float64 {
	return b.Close * float64(b.Volume)
}

// SymbolInfo is descriptive metadata for a tradable symbol.
type SymbolInfo struct {
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name,omitempty"`
	Sector    string    `json:"sector,omitempty"`
	Market    Market    `json:"market"`
	FirstDate time.Time `json:"first_date"`
	LastDate  time.Time `json:"last_date"`
}

// ---------------------------------------------------------------------------
// Dates
// ---------------------------------------------------------------------------

// ErrInvertedRange is returned when a range has its start after its end.
var ErrInvertedRange = errors.New("date range start is after end")

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string into a UTC day.
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDateRange returns a day-truncated range, or ErrInvertedRange if start
// falls after end.
func NewDateRange(start, end time.Time) (DateRange, error) {
	r := DateRange{Start: Day(start), End: Day(end)}
	if r.Start.After(r.End) {
		return DateRange{}, ErrInvertedRange
	}
	return r, nil
}

// Contains reports whether t falls on a day inside the range.
func (r DateRange) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(r.Start) && !d.After(r.End)
}

// EndOfDay returns the last instant of the range's final day, for use as an
// inclusive upper bound when reading timestamped bars.
func (r DateRange) EndOfDay() time.Time {
	return r.End.Add(24*time.Hour - time.Nanosecond)
}

// Equal reports whether two ranges cover the same days.
func (r DateRange) Equal(o DateRange) bool {
	return r.Start.Equal(o.Start) && r.End.Equal(o.End)
}

func (r DateRange) String() string {
	return r.Start.Format(DateLayout) + ".." + r.End.Format(DateLayout)
}

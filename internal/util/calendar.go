package util

import (
	"time"

	"stockdash/internal/domain"
)

// TradingCalendar provides weekday-based trading-day arithmetic for a market.
// Exchange holidays are not modelled; a holiday simply has no stored bar.
type TradingCalendar struct {
	market domain.Market
	loc    *time.Location
	close  time.Duration // session close, offset from local midnight
}

// NewTradingCalendar creates a TradingCalendar for the given market.
func NewTradingCalendar(market domain.Market) *TradingCalendar {
	tc := &TradingCalendar{market: market, loc: time.UTC}
	switch market {
	case domain.MarketNSE:
		tc.loc = time.FixedZone("IST", 5*3600+1800)
		tc.close = 15*time.Hour + 30*time.Minute
	case domain.MarketUS:
		if loc, err := time.LoadLocation("America/New_York"); err == nil {
			tc.loc = loc
		}
		tc.close = 16 * time.Hour
	}
	return tc
}

// IsTradingDay reports whether t falls on a weekday in the market's zone.
func (tc *TradingCalendar) IsTradingDay(t time.Time) bool {
	switch t.In(tc.loc).Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}

// PrevTradingDay returns the last trading day strictly before t's day, as a
// UTC day.
func (tc *TradingCalendar) PrevTradingDay(t time.Time) time.Time {
	local := t.In(tc.loc)
	d := time.Date(local.Year(), local.Month(), local.Day(), 12, 0, 0, 0, tc.loc).AddDate(0, 0, -1)
	for !tc.IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return domain.Day(time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC))
}

// LatestFinishedDay returns the most recent trading day whose session has
// closed at time now, as a UTC day.
func (tc *TradingCalendar) LatestFinishedDay(now time.Time) time.Time {
	local := now.In(tc.loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, tc.loc)
	if tc.IsTradingDay(local) && local.Sub(midnight) >= tc.close {
		return domain.Day(time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC))
	}
	return tc.PrevTradingDay(now)
}

package util

import "time"

// TradingCalendar produces exchange-local trading-day keys. The day key is
// what the risk engine uses as its counter-reset boundary.
type TradingCalendar struct {
	loc *time.Location
}

// NewTradingCalendar creates a calendar for the given IANA timezone, e.g.
// "America/New_York". An empty or unknown name falls back to UTC.
func NewTradingCalendar(timezone string) *TradingCalendar {
	loc, err := time.LoadLocation(timezone)
	if err != nil || timezone == "" {
		loc = time.UTC
	}
	return &TradingCalendar{loc: loc}
}

// DayKey returns the exchange-local calendar date for t, formatted
// YYYY-MM-DD. Two instants share a day key iff they fall on the same
// exchange-local date.
func (tc *TradingCalendar) DayKey(t time.Time) string {
	return t.In(tc.loc).Format("2006-01-02")
}

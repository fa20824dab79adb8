package repository

import "time"

// DayRollover is the UTC time of day at which a new trading day starts (12:00 EST).
const DayRollover = 17 * time.Hour

// TradingDay buckets ts into a YYYY-MM-DD trading day. Timestamps before the
// rollover belong to the previous calendar day.
func TradingDay(ts time.Time) string {
	return ts.UTC().Add(-DayRollover).Format(time.DateOnly)
}

func TradingDayNow() string {
	return TradingDay(time.Now())
}

package monitor

import "time"

var timeframes = map[string]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
	"1d":  24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// TimeframeWindow maps a timeframe token to its look-back window.
// Unknown tokens fall back to one day.
func TimeframeWindow(tf string) time.Duration {
	if d, ok := timeframes[tf]; ok {
		return d
	}
	return 24 * time.Hour
}

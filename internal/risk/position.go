package risk

import (
	"math"

	"github.com/kjannette/trahn-gridcore/internal/models"
)

// CalculateMaxPositionSize returns the largest safe amount per grid level for
// the given balance. The figure shrinks as grid count and range width grow.
func (e *Evaluator) CalculateMaxPositionSize(cfg models.StrategyConfig, balance float64) float64 {
	if balance <= 0 || math.IsNaN(balance) || math.IsInf(balance, 0) {
		return 0
	}
	l := e.Limits()

	ratio := cfg.MaxPositionRatio
	if ratio <= 0 || ratio > l.MaxPositionRatio {
		ratio = l.MaxPositionRatio
	}
	capped := math.Min(balance*ratio, l.MaxAbsolutePosition)

	count := max(cfg.GridCount, 1)
	if cfg.LowerPrice <= 0 || cfg.UpperPrice <= cfg.LowerPrice {
		return capped / float64(count)
	}

	width := (cfg.UpperPrice - cfg.LowerPrice) / cfg.LowerPrice
	return capped / float64(count) / (1 + width)
}

package strategy

import (
	"fmt"
	"math"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kjannette/trahn-gridcore/internal/models"
)

// GridCountWarnThreshold is the grid count above which validation warns.
const GridCountWarnThreshold = 100

// KnownNetworks lists the networks a strategy may settle on.
var KnownNetworks = map[string]bool{
	"ethereum": true,
	"arbitrum": true,
	"optimism": true,
	"base":     true,
	"polygon":  true,
	"bsc":      true,
}

type ValidationResult struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (r ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// ValidateConfig checks a strategy configuration. Errors block creation, warnings do not.
// It has no side effects, so repeated calls on the same config return the same result.
func ValidateConfig(cfg models.StrategyConfig) ValidationResult {
	var r ValidationResult

	if strings.TrimSpace(cfg.WalletAddress) == "" {
		r.Errors = append(r.Errors, "wallet address is required")
	} else if !common.IsHexAddress(cfg.WalletAddress) {
		r.Errors = append(r.Errors, "wallet address is not a valid hex address")
	}

	if strings.TrimSpace(cfg.Pair) == "" {
		r.Errors = append(r.Errors, "trading pair is required")
	} else if _, _, err := models.SplitPair(cfg.Pair); err != nil {
		r.Errors = append(r.Errors, err.Error())
	}

	if strings.TrimSpace(cfg.Network) == "" {
		r.Errors = append(r.Errors, "network is required")
	} else if !KnownNetworks[strings.ToLower(cfg.Network)] {
		r.Errors = append(r.Errors, fmt.Sprintf("unsupported network %q", cfg.Network))
	}

	switch cfg.GridType {
	case "", models.GridArithmetic, models.GridGeometric:
	default:
		r.Errors = append(r.Errors, fmt.Sprintf("grid type must be arithmetic or geometric, got %q", cfg.GridType))
	}

	if !positive(cfg.UpperPrice) {
		r.Errors = append(r.Errors, "upper price must be positive")
	}
	if !positive(cfg.LowerPrice) {
		r.Errors = append(r.Errors, "lower price must be positive")
	}
	if positive(cfg.UpperPrice) && positive(cfg.LowerPrice) && cfg.UpperPrice <= cfg.LowerPrice {
		r.Errors = append(r.Errors, "upper price must be greater than lower price")
	}

	if cfg.GridCount < 2 {
		r.Errors = append(r.Errors, "grid count must be at least 2")
	} else if cfg.GridCount > GridCountWarnThreshold {
		r.Warnings = append(r.Warnings,
			fmt.Sprintf("grid count %d is above %d and may be slow to manage", cfg.GridCount, GridCountWarnThreshold))
	}

	if !positive(cfg.BaseAmount) {
		r.Errors = append(r.Errors, "base amount must be positive")
	}

	if !positive(cfg.MaxPositionRatio) || cfg.MaxPositionRatio > 1 {
		r.Errors = append(r.Errors, "max position ratio must be in (0, 1]")
	}

	if cfg.StopLoss != nil {
		sl := *cfg.StopLoss
		if !positive(sl) {
			r.Errors = append(r.Errors, "stop-loss must be positive")
		} else if positive(cfg.LowerPrice) && sl >= cfg.LowerPrice {
			r.Errors = append(r.Errors, "stop-loss must be below the lower price")
		}
	}

	return r
}

// positive reports whether v is a finite number above zero.
func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

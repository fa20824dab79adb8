package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/kjannette/trahn-gridcore/internal/models"
)

type GridLevel struct {
	Index    int              `json:"index"`
	Price    float64          `json:"price"`
	Side     models.OrderSide `json:"side"`
	Quantity float64          `json:"quantity"`
	Filled   bool             `json:"filled"`
	FilledAt *time.Time       `json:"filledAt,omitempty"`
	OrderID  string           `json:"orderId,omitempty"`
	// CostBasis is the execution price of the buy that armed this sell level.
	CostBasis float64 `json:"costBasis,omitempty"`
}

type GridStats struct {
	Levels       int      `json:"levels"`
	LowestPrice  *float64 `json:"lowestPrice"`
	HighestPrice *float64 `json:"highestPrice"`
	FilledLevels int      `json:"filledLevels"`
	PendingBuys  int      `json:"pendingBuys"`
	PendingSells int      `json:"pendingSells"`
	FilledBuys   int      `json:"filledBuys"`
	FilledSells  int      `json:"filledSells"`
}

type GridParams struct {
	Lower float64
	Upper float64
	Count int
	Type  models.GridType
}

// CalculateGridLevels partitions [Lower, Upper] into Count intervals and returns the
// Count+1 boundaries in ascending order. The first and last boundaries are exactly
// Lower and Upper.
func CalculateGridLevels(p GridParams) ([]float64, error) {
	if p.Lower <= 0 {
		return nil, fmt.Errorf("lower price must be positive")
	}
	if p.Upper <= p.Lower {
		return nil, fmt.Errorf("upper price (%.8f) must be above lower price (%.8f)", p.Upper, p.Lower)
	}
	if p.Count < 2 {
		return nil, fmt.Errorf("grid count must be at least 2")
	}

	levels := make([]float64, p.Count+1)
	switch p.Type {
	case models.GridGeometric:
		ratio := math.Pow(p.Upper/p.Lower, 1/float64(p.Count))
		for i := range levels {
			levels[i] = p.Lower * math.Pow(ratio, float64(i))
		}
	case models.GridArithmetic, "":
		step := (p.Upper - p.Lower) / float64(p.Count)
		for i := range levels {
			levels[i] = p.Lower + step*float64(i)
		}
	default:
		return nil, fmt.Errorf("unknown grid type %q", p.Type)
	}

	// pin the ends so rounding never moves the band
	levels[0] = p.Lower
	levels[p.Count] = p.Upper
	return levels, nil
}

// ArmLevels tags every interior boundary as a buy (below currentPrice) or a sell
// (above currentPrice). A boundary equal to the current price is left out. The order
// notional per level is amount, so quantity shrinks as price rises.
func ArmLevels(boundaries []float64, currentPrice, amount float64) []GridLevel {
	if len(boundaries) < 3 {
		return nil
	}
	var grid []GridLevel
	for i := 1; i < len(boundaries)-1; i++ {
		price := boundaries[i]
		var side models.OrderSide
		switch {
		case price < currentPrice:
			side = models.SideBuy
		case price > currentPrice:
			side = models.SideSell
		default:
			continue
		}
		lvl := GridLevel{
			Index:    len(grid),
			Price:    price,
			Side:     side,
			Quantity: amount / price,
		}
		if side == models.SideSell {
			lvl.CostBasis = boundaries[i-1]
		}
		grid = append(grid, lvl)
	}
	return grid
}

// FindTriggeredLevel returns the first unfilled level the current price has crossed:
// a buy at or above the price, or a sell at or below it.
func FindTriggeredLevel(currentPrice float64, grid []GridLevel) *GridLevel {
	for i := range grid {
		if grid[i].Filled {
			continue
		}
		if grid[i].Side == models.SideBuy && currentPrice <= grid[i].Price {
			return &grid[i]
		}
		if grid[i].Side == models.SideSell && currentPrice >= grid[i].Price {
			return &grid[i]
		}
	}
	return nil
}

func GetOppositeLevelIndex(filled *GridLevel, gridLength int) *int {
	var idx int
	if filled.Side == models.SideBuy {
		idx = filled.Index + 1
	} else {
		idx = filled.Index - 1
	}
	if idx >= 0 && idx < gridLength {
		return &idx
	}
	return nil
}

// RearmOpposite turns the neighbour of a filled level into the closing order: a buy
// fill arms a sell one level up, a sell fill arms a buy one level down. It returns the
// re-armed level, or nil at the edge of the grid.
func RearmOpposite(grid []GridLevel, filled *GridLevel, execPrice float64) *GridLevel {
	idx := GetOppositeLevelIndex(filled, len(grid))
	if idx == nil {
		return nil
	}
	adj := &grid[*idx]
	adj.Filled = false
	adj.FilledAt = nil
	adj.OrderID = ""
	if filled.Side == models.SideBuy {
		adj.Side = models.SideSell
		adj.CostBasis = execPrice
	} else {
		adj.Side = models.SideBuy
		adj.CostBasis = 0
	}
	return adj
}

func GetGridStats(grid []GridLevel) GridStats {
	if len(grid) == 0 {
		return GridStats{}
	}

	s := GridStats{Levels: len(grid)}
	lo := grid[0].Price
	hi := grid[len(grid)-1].Price
	s.LowestPrice = &lo
	s.HighestPrice = &hi

	for _, l := range grid {
		switch {
		case l.Side == models.SideBuy && l.Filled:
			s.FilledBuys++
			s.FilledLevels++
		case l.Side == models.SideBuy:
			s.PendingBuys++
		case l.Side == models.SideSell && l.Filled:
			s.FilledSells++
			s.FilledLevels++
		default:
			s.PendingSells++
		}
	}
	return s
}

func IsPriceOutsideGrid(currentPrice float64, grid []GridLevel) bool {
	if len(grid) == 0 {
		return true
	}
	lo := grid[0].Price
	hi := grid[0].Price
	for _, l := range grid[1:] {
		lo = math.Min(lo, l.Price)
		hi = math.Max(hi, l.Price)
	}
	return currentPrice < lo || currentPrice > hi
}

package models

import "time"

type StrategyStatus string

const (
	StatusStopped StrategyStatus = "stopped"
	StatusActive  StrategyStatus = "active"
	StatusPaused  StrategyStatus = "paused"
)

type GridType string

const (
	GridArithmetic GridType = "arithmetic"
	GridGeometric  GridType = "geometric"
)

// StrategyConfig is the user-supplied part of a strategy, used for creation,
// validation and risk scoring.
type StrategyConfig struct {
	WalletAddress    string   `json:"walletAddress"`
	Pair             string   `json:"pair"`
	Network          string   `json:"network"`
	GridType         GridType `json:"gridType"`
	UpperPrice       float64  `json:"upperPrice"`
	LowerPrice       float64  `json:"lowerPrice"`
	GridCount        int      `json:"gridCount"`
	BaseAmount       float64  `json:"baseAmount"`
	StopLoss         *float64 `json:"stopLoss,omitempty"`
	MaxPositionRatio float64  `json:"maxPositionRatio"`
}

type GridStrategy struct {
	ID               string         `json:"id"`
	WalletAddress    string         `json:"walletAddress"`
	Pair             string         `json:"pair"`
	Network          string         `json:"network"`
	GridType         GridType       `json:"gridType"`
	UpperPrice       float64        `json:"upperPrice"`
	LowerPrice       float64        `json:"lowerPrice"`
	GridCount        int            `json:"gridCount"`
	BaseAmount       float64        `json:"baseAmount"`
	StopLoss         *float64       `json:"stopLoss,omitempty"`
	MaxPositionRatio float64        `json:"maxPositionRatio"`
	Status           StrategyStatus `json:"status"`
	TotalProfit      float64        `json:"totalProfit"`
	ExecutedOrders   int            `json:"executedOrders"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// Config returns the configuration part of a persisted strategy.
func (s *GridStrategy) Config() StrategyConfig {
	return StrategyConfig{
		WalletAddress:    s.WalletAddress,
		Pair:             s.Pair,
		Network:          s.Network,
		GridType:         s.GridType,
		UpperPrice:       s.UpperPrice,
		LowerPrice:       s.LowerPrice,
		GridCount:        s.GridCount,
		BaseAmount:       s.BaseAmount,
		StopLoss:         s.StopLoss,
		MaxPositionRatio: s.MaxPositionRatio,
	}
}

// StrategyStatusView is the read model returned by the lifecycle manager's status query.
type StrategyStatusView struct {
	ID             string         `json:"id"`
	Pair           string         `json:"pair"`
	Status         StrategyStatus `json:"status"`
	TotalProfit    float64        `json:"totalProfit"`
	ExecutedOrders int            `json:"executedOrders"`
	PendingOrders  int            `json:"pendingOrders"`
	FilledOrders   int            `json:"filledOrders"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

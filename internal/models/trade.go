package models

import "time"

type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
)

type GridOrder struct {
	ID         string      `json:"id"`
	StrategyID string      `json:"strategyId"`
	GridLevel  int         `json:"gridLevel"`
	Price      float64     `json:"price"`
	Amount     float64     `json:"amount"`
	Side       OrderSide   `json:"side"`
	Status     OrderStatus `json:"status"`
	TxHash     *string     `json:"txHash,omitempty"`
	GasUsed    *uint64     `json:"gasUsed,omitempty"`
	GasPrice   *float64    `json:"gasPrice,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
	FilledAt   *time.Time  `json:"filledAt,omitempty"`
}

// IsTerminal reports whether the order can no longer change.
func (o *GridOrder) IsTerminal() bool {
	return o.Status == OrderFilled || o.Status == OrderCancelled
}

type Trade struct {
	ID         string    `json:"id"`
	StrategyID string    `json:"strategyId"`
	OrderID    string    `json:"orderId"`
	Side       OrderSide `json:"side"`
	Price      float64   `json:"price"`
	Amount     float64   `json:"amount"`
	Fee        float64   `json:"fee"`
	Profit     float64   `json:"profit"`
	TxHash     *string   `json:"txHash,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	TradingDay string    `json:"tradingDay"`
}

type OrderCounts struct {
	Pending   int `json:"pending"`
	Filled    int `json:"filled"`
	Cancelled int `json:"cancelled"`
}

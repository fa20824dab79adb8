package models

import "time"

type PriceSample struct {
	Pair      string    `json:"pair"`
	Price     float64   `json:"price"`
	Volume24h float64   `json:"volume24h"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source,omitempty"`
}

type AlertCondition string

const (
	AlertAbove AlertCondition = "above"
	AlertBelow AlertCondition = "below"
)

// PriceAlert is a one-shot price watch. Once Active is false it never fires again.
type PriceAlert struct {
	ID          string         `json:"id"`
	Pair        string         `json:"pair"`
	Condition   AlertCondition `json:"condition"`
	TargetPrice float64        `json:"targetPrice"`
	Action      string         `json:"action,omitempty"`
	Active      bool           `json:"active"`
	CreatedAt   time.Time      `json:"createdAt"`
	TriggeredAt *time.Time     `json:"triggeredAt,omitempty"`
}

// Met reports whether price satisfies the alert condition. Equality never fires.
func (a *PriceAlert) Met(price float64) bool {
	switch a.Condition {
	case AlertAbove:
		return price > a.TargetPrice
	case AlertBelow:
		return price < a.TargetPrice
	}
	return false
}

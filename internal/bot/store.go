package bot

import (
	"context"

	"github.com/kjannette/trahn-gridcore/internal/models"
)

// StrategyStore is the persistence the lifecycle manager and runner need.
// Load returns an error wrapping models.ErrNotFound for unknown ids.
type StrategyStore interface {
	Load(ctx context.Context, id string) (*models.GridStrategy, error)
	Save(ctx context.Context, s *models.GridStrategy) error
	SetStatus(ctx context.Context, id string, status models.StrategyStatus) error
	IncrementProfitAndOrders(ctx context.Context, id string, profit float64, orders int) error
	DeleteCascade(ctx context.Context, id string) error
	FindActive(ctx context.Context) ([]models.GridStrategy, error)
	FindByWallet(ctx context.Context, wallet string) ([]models.GridStrategy, error)
}

type OrderStore interface {
	Create(ctx context.Context, o *models.GridOrder) error
	MarkFilled(ctx context.Context, id string, txHash string, gasUsed uint64, gasPrice float64) error
	Cancel(ctx context.Context, id string) error
	CancelPending(ctx context.Context, strategyID string) (int, error)
	CountByStatus(ctx context.Context, strategyID string) (models.OrderCounts, error)
}

type TradeStore interface {
	Append(ctx context.Context, t *models.Trade) error
}

// RiskGate scores a proposed configuration.
type RiskGate interface {
	ValidateStrategy(cfg models.StrategyConfig) *models.RiskAssessment
}

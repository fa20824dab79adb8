package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjannette/trahn-gridcore/internal/models"
)

type OrderRepo struct {
	pool *pgxpool.Pool
}

func NewOrderRepo(pool *pgxpool.Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

func (r *OrderRepo) Create(ctx context.Context, o *models.GridOrder) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO grid_orders
		 (id, strategy_id, grid_level, price, amount, side, status, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		o.ID, o.StrategyID, o.GridLevel, o.Price, o.Amount, o.Side, o.Status, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (r *OrderRepo) MarkFilled(ctx context.Context, id, txHash string, gasUsed uint64, gasPrice float64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE grid_orders
		 SET status = $2, tx_hash = $3, gas_used = $4, gas_price = $5,
		     filled_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND status = $6`,
		id, models.OrderFilled, txHash, int64(gasUsed), gasPrice, models.OrderPending,
	)
	if err != nil {
		return fmt.Errorf("mark order %s filled: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pending order %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// Cancel is a no-op for orders that are already filled or cancelled.
func (r *OrderRepo) Cancel(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE grid_orders SET status = $2, updated_at = NOW() WHERE id = $1 AND status = $3`,
		id, models.OrderCancelled, models.OrderPending)
	if err != nil {
		return fmt.Errorf("cancel order %s: %w", id, err)
	}
	return nil
}

func (r *OrderRepo) CancelPending(ctx context.Context, strategyID string) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE grid_orders SET status = $2, updated_at = NOW() WHERE strategy_id = $1 AND status = $3`,
		strategyID, models.OrderCancelled, models.OrderPending)
	if err != nil {
		return 0, fmt.Errorf("cancel pending orders for %s: %w", strategyID, err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *OrderRepo) CountByStatus(ctx context.Context, strategyID string) (models.OrderCounts, error) {
	var c models.OrderCounts
	err := r.pool.QueryRow(ctx,
		`SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'filled'),
			COUNT(*) FILTER (WHERE status = 'cancelled')
		 FROM grid_orders WHERE strategy_id = $1`, strategyID,
	).Scan(&c.Pending, &c.Filled, &c.Cancelled)
	if err != nil {
		return c, fmt.Errorf("count orders for %s: %w", strategyID, err)
	}
	return c, nil
}

// ListByStrategy returns orders newest first.
func (r *OrderRepo) ListByStrategy(ctx context.Context, strategyID string, limit int) ([]models.GridOrder, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, strategy_id, grid_level, price, amount, side, status, tx_hash, gas_used,
		        gas_price, created_at, updated_at, filled_at
		 FROM grid_orders WHERE strategy_id = $1 ORDER BY created_at DESC LIMIT $2`,
		strategyID, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders for %s: %w", strategyID, err)
	}
	defer rows.Close()

	out := []models.GridOrder{}
	for rows.Next() {
		var o models.GridOrder
		var gasUsed *int64
		if err := rows.Scan(&o.ID, &o.StrategyID, &o.GridLevel, &o.Price, &o.Amount, &o.Side,
			&o.Status, &o.TxHash, &gasUsed, &o.GasPrice, &o.CreatedAt, &o.UpdatedAt, &o.FilledAt); err != nil {
			return nil, err
		}
		if gasUsed != nil {
			g := uint64(*gasUsed)
			o.GasUsed = &g
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

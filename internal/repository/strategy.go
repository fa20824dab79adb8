package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjannette/trahn-gridcore/internal/models"
)

const strategyColumns = `id, wallet_address, pair, network, grid_type, upper_price, lower_price,
	grid_count, base_amount, stop_loss, max_position_ratio, status, total_profit,
	executed_orders, created_at, updated_at`

type StrategyRepo struct {
	pool *pgxpool.Pool
}

func NewStrategyRepo(pool *pgxpool.Pool) *StrategyRepo {
	return &StrategyRepo{pool: pool}
}

func (r *StrategyRepo) Load(ctx context.Context, id string) (*models.GridStrategy, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+strategyColumns+` FROM grid_strategies WHERE id = $1`, id)
	s, err := scanStrategy(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("strategy %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load strategy %s: %w", id, err)
	}
	return s, nil
}

// Save inserts a strategy or overwrites its configuration and status.
func (r *StrategyRepo) Save(ctx context.Context, s *models.GridStrategy) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO grid_strategies (`+strategyColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		 ON CONFLICT (id) DO UPDATE SET
		   wallet_address = EXCLUDED.wallet_address,
		   pair = EXCLUDED.pair,
		   network = EXCLUDED.network,
		   grid_type = EXCLUDED.grid_type,
		   upper_price = EXCLUDED.upper_price,
		   lower_price = EXCLUDED.lower_price,
		   grid_count = EXCLUDED.grid_count,
		   base_amount = EXCLUDED.base_amount,
		   stop_loss = EXCLUDED.stop_loss,
		   max_position_ratio = EXCLUDED.max_position_ratio,
		   status = EXCLUDED.status,
		   updated_at = EXCLUDED.updated_at`,
		s.ID, s.WalletAddress, s.Pair, s.Network, s.GridType, s.UpperPrice, s.LowerPrice,
		s.GridCount, s.BaseAmount, s.StopLoss, s.MaxPositionRatio, s.Status, s.TotalProfit,
		s.ExecutedOrders, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save strategy %s: %w", s.ID, err)
	}
	return nil
}

func (r *StrategyRepo) SetStatus(ctx context.Context, id string, status models.StrategyStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE grid_strategies SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("set status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("strategy %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// IncrementProfitAndOrders adds to the running totals in a single statement so
// concurrent fills never lose an update.
func (r *StrategyRepo) IncrementProfitAndOrders(ctx context.Context, id string, profit float64, orders int) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE grid_strategies
		 SET total_profit = total_profit + $2,
		     executed_orders = executed_orders + $3,
		     updated_at = NOW()
		 WHERE id = $1`, id, profit, orders)
	if err != nil {
		return fmt.Errorf("increment totals %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("strategy %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// DeleteCascade removes the strategy with its orders and trades in one transaction.
func (r *StrategyRepo) DeleteCascade(ctx context.Context, id string) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM trades WHERE strategy_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM grid_orders WHERE strategy_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM grid_strategies WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return models.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete strategy %s: %w", id, err)
	}
	return nil
}

func (r *StrategyRepo) FindActive(ctx context.Context) ([]models.GridStrategy, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+strategyColumns+` FROM grid_strategies WHERE status = $1 ORDER BY created_at ASC`,
		models.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("find active strategies: %w", err)
	}
	defer rows.Close()
	return collectStrategies(rows)
}

// FindByWallet matches the wallet address case-insensitively.
func (r *StrategyRepo) FindByWallet(ctx context.Context, wallet string) ([]models.GridStrategy, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+strategyColumns+` FROM grid_strategies
		 WHERE lower(wallet_address) = lower($1) ORDER BY created_at DESC`, wallet)
	if err != nil {
		return nil, fmt.Errorf("find strategies by wallet: %w", err)
	}
	defer rows.Close()
	return collectStrategies(rows)
}

func scanStrategy(row scannable) (*models.GridStrategy, error) {
	var s models.GridStrategy
	err := row.Scan(
		&s.ID, &s.WalletAddress, &s.Pair, &s.Network, &s.GridType, &s.UpperPrice, &s.LowerPrice,
		&s.GridCount, &s.BaseAmount, &s.StopLoss, &s.MaxPositionRatio, &s.Status, &s.TotalProfit,
		&s.ExecutedOrders, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func collectStrategies(rows rowsIter) ([]models.GridStrategy, error) {
	out := []models.GridStrategy{}
	for rows.Next() {
		s, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

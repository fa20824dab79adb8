package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjannette/trahn-gridcore/internal/models"
)

type TradeRepo struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewTradeRepo(pool *pgxpool.Pool) *TradeRepo {
	return &TradeRepo{pool: pool, now: time.Now}
}

// Append records a trade. A zero timestamp is stamped with the current time and an
// empty trading day is derived from the timestamp.
func (r *TradeRepo) Append(ctx context.Context, t *models.Trade) error {
	if t.Timestamp.IsZero() {
		t.Timestamp = r.now()
	}
	if t.TradingDay == "" {
		t.TradingDay = TradingDay(t.Timestamp)
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO trades
		 (id, strategy_id, order_id, side, price, amount, fee, profit, tx_hash, timestamp, trading_day)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11::date)`,
		t.ID, t.StrategyID, t.OrderID, t.Side, t.Price, t.Amount, t.Fee, t.Profit, t.TxHash,
		t.Timestamp, t.TradingDay,
	)
	if err != nil {
		return fmt.Errorf("append trade: %w", err)
	}
	return nil
}

// ListByStrategy returns the most recent trades for a strategy.
func (r *TradeRepo) ListByStrategy(ctx context.Context, strategyID string, limit int) ([]models.Trade, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, strategy_id, order_id, side, price, amount, fee, profit, tx_hash, timestamp, trading_day
		 FROM trades WHERE strategy_id = $1 ORDER BY timestamp DESC LIMIT $2`,
		strategyID, limit)
	if err != nil {
		return nil, fmt.Errorf("list trades for %s: %w", strategyID, err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

// CountToday counts trades across every strategy for the current trading day.
func (r *TradeRepo) CountToday(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM trades WHERE trading_day = $1::date`,
		TradingDay(r.now()),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count today's trades: %w", err)
	}
	return count, nil
}

func collectTrades(rows rowsIter) ([]models.Trade, error) {
	out := []models.Trade{}
	for rows.Next() {
		var t models.Trade
		var td time.Time
		if err := rows.Scan(
			&t.ID, &t.StrategyID, &t.OrderID, &t.Side, &t.Price, &t.Amount, &t.Fee, &t.Profit,
			&t.TxHash, &t.Timestamp, &td,
		); err != nil {
			return nil, err
		}
		t.TradingDay = td.Format("2006-01-02")
		out = append(out, t)
	}
	return out, rows.Err()
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjannette/trahn-gridcore/internal/models"
)

type PriceRepo struct {
	pool *pgxpool.Pool
}

func NewPriceRepo(pool *pgxpool.Pool) *PriceRepo {
	return &PriceRepo{pool: pool}
}

func (r *PriceRepo) Append(ctx context.Context, s *models.PriceSample) error {
	ts := s.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO price_history (pair, price, volume_24h, source, timestamp, trading_day)
		 VALUES ($1, $2, $3, $4, $5, $6::date)`,
		s.Pair, s.Price, s.Volume24h, s.Source, ts, TradingDay(ts),
	)
	if err != nil {
		return fmt.Errorf("append price %s: %w", s.Pair, err)
	}
	return nil
}

// QueryHistory returns at most limit samples for pair at or after since, oldest first.
// The newest samples win when more than limit match.
func (r *PriceRepo) QueryHistory(ctx context.Context, pair string, since time.Time, limit int) ([]models.PriceSample, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT pair, price, volume_24h, source, timestamp FROM (
		   SELECT pair, price, volume_24h, source, timestamp
		   FROM price_history
		   WHERE pair = $1 AND timestamp >= $2
		   ORDER BY timestamp DESC
		   LIMIT $3
		 ) recent ORDER BY timestamp ASC`,
		pair, since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query price history %s: %w", pair, err)
	}
	defer rows.Close()
	return collectPrices(rows)
}

type scannable interface {
	Scan(dest ...any) error
}

type rowsIter interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func collectPrices(rows rowsIter) ([]models.PriceSample, error) {
	out := []models.PriceSample{}
	for rows.Next() {
		var p models.PriceSample
		if err := rows.Scan(&p.Pair, &p.Price, &p.Volume24h, &p.Source, &p.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

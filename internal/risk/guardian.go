package risk

import (
	"context"
	"fmt"
	"sync"
)

// DailyTradeCounter abstracts the trade-counting dependency so Guardian
// can be tested without a real database.
type DailyTradeCounter interface {
	CountToday(ctx context.Context) (int, error)
}

// GuardLimits are the pre-trade and portfolio thresholds.
// A zero value for any field means that check is disabled.
type GuardLimits struct {
	MaxDailyTrades    int
	MaxTradeUSD       float64
	StopLossPercent   float64
	TakeProfitPercent float64
}

// Guardian gates individual trades. The daily count spans every strategy, so
// concurrent ticks from different pairs reserve slots under one lock.
type Guardian struct {
	limits  GuardLimits
	counter DailyTradeCounter
	day     func() string

	mu       sync.Mutex
	loadedOn string
	count    int
}

func NewGuardian(limits GuardLimits, counter DailyTradeCounter, day func() string) *Guardian {
	return &Guardian{limits: limits, counter: counter, day: day}
}

func (g *Guardian) Limits() GuardLimits { return g.limits }

// PreTradeCheck validates per-trade constraints and reserves a slot in the
// daily budget. Callers must ReleaseTrade when the reserved trade does not execute.
func (g *Guardian) PreTradeCheck(ctx context.Context, tradeUSDValue float64) error {
	if g.limits.MaxTradeUSD > 0 && tradeUSDValue > g.limits.MaxTradeUSD {
		tradesBlockedTotal.WithLabelValues("trade_size").Inc()
		return fmt.Errorf("trade blocked: size $%.2f exceeds max $%.2f",
			tradeUSDValue, g.limits.MaxTradeUSD)
	}

	if g.limits.MaxDailyTrades <= 0 || g.counter == nil {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	today := g.today()
	if g.loadedOn != today {
		count, err := g.counter.CountToday(ctx)
		if err != nil {
			tradesBlockedTotal.WithLabelValues("counter_error").Inc()
			return fmt.Errorf("trade blocked: unable to verify daily trade count: %w", err)
		}
		g.loadedOn = today
		g.count = count
	}
	if g.count >= g.limits.MaxDailyTrades {
		tradesBlockedTotal.WithLabelValues("daily_limit").Inc()
		return fmt.Errorf("trade blocked: daily limit of %d trades reached (%d executed today)",
			g.limits.MaxDailyTrades, g.count)
	}
	g.count++
	return nil
}

// ReleaseTrade returns a slot reserved by PreTradeCheck.
func (g *Guardian) ReleaseTrade() {
	if g.limits.MaxDailyTrades <= 0 || g.counter == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.count > 0 {
		g.count--
	}
}

// TradesToday returns the reserved count for the current trading day.
func (g *Guardian) TradesToday() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.loadedOn != g.today() {
		return 0
	}
	return g.count
}

func (g *Guardian) today() string {
	if g.day == nil {
		return ""
	}
	return g.day()
}

// PortfolioCheck evaluates portfolio-level circuit breakers.
// pnlPercent is the P&L as a percentage (e.g. -8.5 means down 8.5%).
func (g *Guardian) PortfolioCheck(pnlPercent float64) error {
	if g.limits.StopLossPercent > 0 && pnlPercent <= -g.limits.StopLossPercent {
		return fmt.Errorf("STOP-LOSS triggered: portfolio down %.2f%% (threshold: -%.2f%%)",
			pnlPercent, g.limits.StopLossPercent)
	}

	if g.limits.TakeProfitPercent > 0 && pnlPercent >= g.limits.TakeProfitPercent {
		return fmt.Errorf("TAKE-PROFIT triggered: portfolio up %.2f%% (threshold: +%.2f%%)",
			pnlPercent, g.limits.TakeProfitPercent)
	}

	return nil
}

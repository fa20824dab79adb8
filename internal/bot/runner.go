package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kjannette/trahn-gridcore/internal/logger"
	"github.com/kjannette/trahn-gridcore/internal/models"
	"github.com/kjannette/trahn-gridcore/internal/monitor"
	"github.com/kjannette/trahn-gridcore/internal/repository"
	"github.com/kjannette/trahn-gridcore/internal/risk"
	"github.com/kjannette/trahn-gridcore/internal/strategy"
)

// PriceSource is the part of the monitoring engine the runner drives.
type PriceSource interface {
	GetCurrentPrice(ctx context.Context, pair string) (*models.PriceSample, error)
	SubscribeToPrice(pair string, fn monitor.PriceHandler) (string, error)
	UnsubscribeFromPrice(ctx context.Context, id string) bool
}

type RiskControl interface {
	EvaluateStopLoss(price float64, s *models.GridStrategy) bool
	CheckPositionLimits(ctx context.Context, id string, amount float64) (bool, error)
	EmergencyStop(ctx context.Context, id string) error
	SetEmergencyHandler(h risk.EmergencyHandler)
}

type TradeGate interface {
	PreTradeCheck(ctx context.Context, tradeUSDValue float64) error
	ReleaseTrade()
	PortfolioCheck(pnlPercent float64) error
}

type Notifier interface {
	Send(msg string)
}

// WalletSet reports whether a signing key is held for a wallet.
type WalletSet interface {
	Has(address string) bool
}

var ErrUnknownWallet = errors.New("no signing key for wallet")

type RunnerDeps struct {
	Prices     PriceSource
	Risk       RiskControl
	Guard      TradeGate
	Exchange   Exchange
	Strategies StrategyStore
	Orders     OrderStore
	Trades     TradeStore
	Manager    *Manager
	Notify     Notifier
	// Wallets, when set, must hold the strategy's wallet before it is armed.
	Wallets WalletSet
}

type armedStrategy struct {
	mu       sync.Mutex
	strategy models.GridStrategy
	grid     []strategy.GridLevel
	subID    string
	// outside is set while the last sample sat beyond the armed levels.
	outside bool
}

// Runner arms active strategies and turns price samples into risk checks and fills.
// It registers itself as the manager's transition listener and as the
// evaluator's emergency stop handler.
type Runner struct {
	RunnerDeps
	now        func() time.Time
	tradingDay func(time.Time) string

	mu    sync.Mutex
	armed map[string]*armedStrategy
}

func NewRunner(deps RunnerDeps) *Runner {
	r := &Runner{
		RunnerDeps: deps,
		now:        time.Now,
		tradingDay: repository.TradingDay,
		armed:      make(map[string]*armedStrategy),
	}
	deps.Manager.AddListener(r)
	deps.Risk.SetEmergencyHandler(r.emergencyStop)
	return r
}

func (r *Runner) log() *logrus.Entry {
	return logger.Component("runner")
}

func (r *Runner) send(msg string) {
	if r.Notify != nil {
		r.Notify.Send(msg)
	}
}

// OnTransition arms a strategy when it becomes active and disarms it otherwise.
func (r *Runner) OnTransition(ctx context.Context, s *models.GridStrategy, _, to models.StrategyStatus) error {
	if to == models.StatusActive {
		return r.arm(ctx, s)
	}
	r.disarm(ctx, s.ID)
	return nil
}

// Resume re-arms strategies that were active before a restart.
func (r *Runner) Resume(ctx context.Context) error {
	active, err := r.Strategies.FindActive(ctx)
	if err != nil {
		return fmt.Errorf("resume strategies: %w", err)
	}
	var errs []error
	for i := range active {
		if err := r.arm(ctx, &active[i]); err != nil {
			errs = append(errs, fmt.Errorf("resume %s: %w", active[i].ID, err))
		}
	}
	r.log().WithField("count", len(active)-len(errs)).Info("resumed active strategies")
	return errors.Join(errs...)
}

// Shutdown disarms every strategy without changing its stored status.
func (r *Runner) Shutdown(ctx context.Context) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.armed))
	for id := range r.armed {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		r.disarm(ctx, id)
	}
}

func (r *Runner) IsArmed(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.armed[id]
	return ok
}

// Grid returns a copy of a strategy's armed levels.
func (r *Runner) Grid(id string) ([]strategy.GridLevel, bool) {
	r.mu.Lock()
	a, ok := r.armed[id]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]strategy.GridLevel(nil), a.grid...), true
}

func (r *Runner) arm(ctx context.Context, s *models.GridStrategy) error {
	if r.IsArmed(s.ID) {
		return nil
	}
	log := r.log().WithFields(logrus.Fields{"strategy": s.ID, "pair": s.Pair})

	if r.Wallets != nil && !r.Wallets.Has(s.WalletAddress) {
		return fmt.Errorf("arm %s: %w", s.ID, ErrUnknownWallet)
	}

	sample, err := r.Prices.GetCurrentPrice(ctx, s.Pair)
	if err != nil {
		return fmt.Errorf("arm %s: %w", s.ID, err)
	}
	boundaries, err := strategy.CalculateGridLevels(strategy.GridParams{
		Lower: s.LowerPrice,
		Upper: s.UpperPrice,
		Count: s.GridCount,
		Type:  s.GridType,
	})
	if err != nil {
		return fmt.Errorf("arm %s: %w", s.ID, err)
	}
	grid := strategy.ArmLevels(boundaries, sample.Price, s.BaseAmount)
	if len(grid) == 0 {
		return fmt.Errorf("arm %s: no grid levels to arm at price %.8f", s.ID, sample.Price)
	}
	for i := range grid {
		id, err := r.createOrder(ctx, s.ID, &grid[i])
		if err != nil {
			r.cancelPending(ctx, s.ID)
			return fmt.Errorf("arm %s: %w", s.ID, err)
		}
		grid[i].OrderID = id
	}

	// samples arriving before the strategy is registered below are ignored by onPrice
	id := s.ID
	subID, err := r.Prices.SubscribeToPrice(s.Pair, func(ctx context.Context, sample models.PriceSample) error {
		return r.onPrice(ctx, id, sample)
	})
	if err != nil {
		r.cancelPending(ctx, s.ID)
		return fmt.Errorf("arm %s: %w", s.ID, err)
	}
	r.mu.Lock()
	r.armed[s.ID] = &armedStrategy{strategy: *s, grid: grid, subID: subID}
	r.mu.Unlock()
	armedStrategies.Inc()

	stats := strategy.GetGridStats(grid)
	log.WithFields(logrus.Fields{
		"levels": stats.Levels,
		"buys":   stats.PendingBuys,
		"sells":  stats.PendingSells,
		"price":  sample.Price,
	}).Info("grid armed")
	r.send(fmt.Sprintf("Grid armed for %s: %d levels from $%.2f to $%.2f at $%.2f",
		s.Pair, stats.Levels, *stats.LowestPrice, *stats.HighestPrice, sample.Price))
	return nil
}

func (r *Runner) disarm(ctx context.Context, id string) {
	r.mu.Lock()
	a, ok := r.armed[id]
	delete(r.armed, id)
	r.mu.Unlock()
	if !ok {
		return
	}
	// wait out a tick that is still trading on this strategy
	a.mu.Lock()
	a.mu.Unlock()

	r.Prices.UnsubscribeFromPrice(ctx, a.subID)
	r.cancelPending(ctx, id)
	armedStrategies.Dec()
	r.log().WithField("strategy", id).Info("grid disarmed")
}

func (r *Runner) cancelPending(ctx context.Context, id string) {
	n, err := r.Orders.CancelPending(context.WithoutCancel(ctx), id)
	if err != nil {
		r.log().WithError(err).WithField("strategy", id).Error("failed to cancel pending orders")
		return
	}
	if n > 0 {
		r.log().WithFields(logrus.Fields{"strategy": id, "cancelled": n}).Info("pending orders cancelled")
	}
}

func (r *Runner) createOrder(ctx context.Context, strategyID string, lvl *strategy.GridLevel) (string, error) {
	now := r.now()
	o := &models.GridOrder{
		ID:         uuid.NewString(),
		StrategyID: strategyID,
		GridLevel:  lvl.Index,
		Price:      lvl.Price,
		Amount:     lvl.Quantity,
		Side:       lvl.Side,
		Status:     models.OrderPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := r.Orders.Create(ctx, o); err != nil {
		return "", fmt.Errorf("create order at level %d: %w", lvl.Index, err)
	}
	return o.ID, nil
}

// onPrice runs inside the engine's tick for the strategy's pair.
func (r *Runner) onPrice(ctx context.Context, id string, sample models.PriceSample) error {
	r.mu.Lock()
	a, ok := r.armed[id]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	stop, err := r.step(ctx, a, sample)
	if !stop {
		return err
	}
	// a.mu is released here: stopping disarms, and disarm waits on it
	return r.Risk.EmergencyStop(ctx, id)
}

// stillArmed reports whether a is the registration currently armed for its
// strategy. Callers hold a.mu.
func (r *Runner) stillArmed(a *armedStrategy) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.armed[a.strategy.ID] == a
}

// step applies one sample to an armed strategy and reports whether the
// strategy must be stopped.
func (r *Runner) step(ctx context.Context, a *armedStrategy, sample models.PriceSample) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !r.stillArmed(a) {
		return false, nil
	}
	s := a.strategy
	id := s.ID

	if r.Risk.EvaluateStopLoss(sample.Price, &s) {
		r.log().WithFields(logrus.Fields{"strategy": id, "price": sample.Price, "stopLoss": *s.StopLoss}).
			Warn("stop-loss breached")
		r.send(fmt.Sprintf("STOP-LOSS: %s at $%.2f breached $%.2f, stopping strategy", s.Pair, sample.Price, *s.StopLoss))
		return true, nil
	}

	if err := r.Guard.PortfolioCheck(realizedPnLPercent(&s)); err != nil {
		r.log().WithError(err).WithField("strategy", id).Warn("circuit breaker tripped")
		r.send(fmt.Sprintf("CIRCUIT BREAKER: %v, stopping %s", err, s.Pair))
		return true, nil
	}

	if outside := strategy.IsPriceOutsideGrid(sample.Price, a.grid); outside != a.outside {
		a.outside = outside
		if outside {
			r.log().WithFields(logrus.Fields{"strategy": id, "price": sample.Price}).Warn("price left grid range")
			r.send(fmt.Sprintf("GRID RANGE: %s at $%.2f is outside the armed levels", s.Pair, sample.Price))
		} else {
			r.send(fmt.Sprintf("GRID RANGE: %s back inside the armed levels at $%.2f", s.Pair, sample.Price))
		}
	}

	level := strategy.FindTriggeredLevel(sample.Price, a.grid)
	if level == nil {
		return false, nil
	}
	return false, r.execute(ctx, a, level, sample.Price)
}

func realizedPnLPercent(s *models.GridStrategy) float64 {
	exposure := s.BaseAmount * float64(s.GridCount)
	if exposure <= 0 {
		return 0
	}
	return s.TotalProfit / exposure * 100
}

func (r *Runner) execute(ctx context.Context, a *armedStrategy, level *strategy.GridLevel, price float64) error {
	s := &a.strategy
	log := r.log().WithFields(logrus.Fields{
		"strategy":  s.ID,
		"gridLevel": level.Index,
		"side":      level.Side,
		"price":     price,
	})
	notional := level.Quantity * price

	ok, err := r.Risk.CheckPositionLimits(ctx, s.ID, notional)
	if err != nil {
		return fmt.Errorf("execute level %d: %w", level.Index, err)
	}
	if !ok {
		log.WithField("notional", notional).Warn("trade exceeds position ceiling")
		return fmt.Errorf("execute level %d: notional %.2f exceeds position ceiling", level.Index, notional)
	}
	if err := r.Guard.PreTradeCheck(ctx, notional); err != nil {
		r.send(fmt.Sprintf("[RISK] %v", err))
		return err
	}

	if !r.stillArmed(a) {
		r.Guard.ReleaseTrade()
		log.Info("strategy disarmed before order placement, skipping")
		return nil
	}
	fill, err := r.Exchange.PlaceOrder(ctx, OrderRequest{
		StrategyID: s.ID,
		Wallet:     s.WalletAddress,
		Pair:       s.Pair,
		Side:       level.Side,
		Price:      price,
		Amount:     level.Quantity,
	})
	if err != nil {
		r.Guard.ReleaseTrade()
		tradeFailuresTotal.Inc()
		return fmt.Errorf("execute level %d: %w", level.Index, err)
	}

	if level.OrderID != "" {
		if err := r.Orders.MarkFilled(ctx, level.OrderID, fill.TxHash, fill.GasUsed, fill.GasPrice); err != nil {
			log.WithError(err).Error("failed to mark order filled")
		}
	}

	profit := -fill.Fee
	if level.Side == models.SideSell && level.CostBasis > 0 {
		profit += (fill.ExecutedPrice - level.CostBasis) * fill.Amount
	}

	now := r.now()
	txHash := fill.TxHash
	trade := &models.Trade{
		ID:         uuid.NewString(),
		StrategyID: s.ID,
		OrderID:    level.OrderID,
		Side:       level.Side,
		Price:      fill.ExecutedPrice,
		Amount:     fill.Amount,
		Fee:        fill.Fee,
		Profit:     profit,
		TxHash:     &txHash,
		Timestamp:  now,
		TradingDay: r.tradingDay(now),
	}
	if err := r.Trades.Append(ctx, trade); err != nil {
		return fmt.Errorf("record trade for level %d: %w", level.Index, err)
	}
	if err := r.Strategies.IncrementProfitAndOrders(ctx, s.ID, profit, 1); err != nil {
		return fmt.Errorf("update strategy totals: %w", err)
	}
	s.TotalProfit += profit
	s.ExecutedOrders++

	level.Filled = true
	level.FilledAt = &now
	tradesTotal.WithLabelValues(string(level.Side)).Inc()
	log.WithFields(logrus.Fields{"executed": fill.ExecutedPrice, "profit": profit}).Info("grid level filled")
	r.send(fmt.Sprintf("Filled %s %.6f %s at $%.2f (level %d, profit $%.2f)",
		level.Side, fill.Amount, s.Pair, fill.ExecutedPrice, level.Index, profit))

	r.rearm(ctx, a, level, fill)
	return nil
}

// rearm replaces the neighbour of a filled level with its closing order.
func (r *Runner) rearm(ctx context.Context, a *armedStrategy, filled *strategy.GridLevel, fill *Fill) {
	idx := strategy.GetOppositeLevelIndex(filled, len(a.grid))
	if idx == nil {
		return
	}
	prev := a.grid[*idx]

	adj := strategy.RearmOpposite(a.grid, filled, fill.ExecutedPrice)
	if adj.Side == models.SideSell {
		adj.Quantity = fill.Amount
	} else {
		adj.Quantity = a.strategy.BaseAmount / adj.Price
	}

	if prev.OrderID != "" && !prev.Filled {
		if err := r.Orders.Cancel(ctx, prev.OrderID); err != nil {
			r.log().WithError(err).WithField("order", prev.OrderID).Warn("failed to cancel replaced order")
		}
	}
	id, err := r.createOrder(ctx, a.strategy.ID, adj)
	if err != nil {
		r.log().WithError(err).WithField("strategy", a.strategy.ID).Error("failed to record re-armed order")
		return
	}
	adj.OrderID = id
}

// emergencyStop stops one strategy, or every active one when id is "".
func (r *Runner) emergencyStop(ctx context.Context, id string) error {
	if id != "" {
		_, err := r.Manager.Stop(ctx, id)
		if err == nil {
			r.send(fmt.Sprintf("EMERGENCY STOP: strategy %s stopped", id))
		}
		return err
	}

	active, err := r.Manager.ListActive(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, s := range active {
		if _, err := r.Manager.Stop(ctx, s.ID); err != nil {
			errs = append(errs, err)
		}
	}
	r.send(fmt.Sprintf("EMERGENCY STOP: %d of %d active strategies stopped", len(active)-len(errs), len(active)))
	return errors.Join(errs...)
}

// HandleEvent pauses strategies whose pair stopped being monitored after repeated feed failures.
func (r *Runner) HandleEvent(ctx context.Context, ev monitor.Event) {
	if ev.Type != monitor.EventMonitoringHalted {
		return
	}
	r.mu.Lock()
	var ids []string
	for id, a := range r.armed {
		if a.strategy.Pair == ev.Pair {
			ids = append(ids, id)
		}
	}
	r.mu.Unlock()

	// the halted task's ctx is already cancelled
	ctx = context.WithoutCancel(ctx)
	for _, id := range ids {
		if _, err := r.Manager.Pause(ctx, id); err != nil {
			r.log().WithError(err).WithField("strategy", id).Error("failed to pause strategy after monitoring halt")
			continue
		}
		r.send(fmt.Sprintf("Price feed for %s halted, strategy %s paused", ev.Pair, id))
	}
}

package bot

import (
	"context"
	"fmt"
	"maps"
	"math/rand"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/kjannette/trahn-gridcore/internal/logger"
	"github.com/kjannette/trahn-gridcore/internal/models"
)

type PaperConfig struct {
	// InitialBalances seeds every wallet on first use, keyed by asset symbol.
	InitialBalances map[string]float64
	SlippagePercent float64
	GasCostUSD      float64
	GasUsed         uint64
	GasPriceGwei    float64
}

// PaperExchange fills every order immediately against a simulated ledger.
type PaperExchange struct {
	cfg  PaperConfig
	rand func() float64

	mu       sync.Mutex
	balances map[string]map[string]decimal.Decimal
	orders   map[string]*Fill
	gasSpent decimal.Decimal
}

func NewPaperExchange(cfg PaperConfig) *PaperExchange {
	return &PaperExchange{
		cfg:      cfg,
		rand:     rand.Float64,
		balances: make(map[string]map[string]decimal.Decimal),
		orders:   make(map[string]*Fill),
	}
}

func (p *PaperExchange) log() *logrus.Entry {
	return logger.Component("paper")
}

func (p *PaperExchange) walletLocked(wallet string) map[string]decimal.Decimal {
	key := strings.ToLower(wallet)
	w, ok := p.balances[key]
	if !ok {
		w = make(map[string]decimal.Decimal, len(p.cfg.InitialBalances))
		for asset, amt := range p.cfg.InitialBalances {
			w[strings.ToUpper(asset)] = decimal.NewFromFloat(amt)
		}
		p.balances[key] = w
	}
	return w
}

func (p *PaperExchange) PlaceOrder(_ context.Context, req OrderRequest) (*Fill, error) {
	base, quote, err := models.SplitPair(req.Pair)
	if err != nil {
		return nil, err
	}
	if req.Amount <= 0 || req.Price <= 0 {
		return nil, fmt.Errorf("place order: amount and price must be positive")
	}

	slip := decimal.NewFromFloat(p.rand() * p.cfg.SlippagePercent / 100)
	qty := decimal.NewFromFloat(req.Amount)
	price := decimal.NewFromFloat(req.Price)
	fee := decimal.NewFromFloat(p.cfg.GasCostUSD)

	p.mu.Lock()
	defer p.mu.Unlock()
	w := p.walletLocked(req.Wallet)

	var execPrice decimal.Decimal
	switch req.Side {
	case models.SideBuy:
		execPrice = price.Mul(decimal.NewFromInt(1).Add(slip))
		cost := qty.Mul(execPrice).Add(fee)
		if w[quote].LessThan(cost) {
			return nil, fmt.Errorf("%w: have %s %s, need %s", ErrInsufficientFunds,
				w[quote].StringFixed(2), quote, cost.StringFixed(2))
		}
		w[quote] = w[quote].Sub(cost)
		w[base] = w[base].Add(qty)
	case models.SideSell:
		execPrice = price.Mul(decimal.NewFromInt(1).Sub(slip))
		if w[base].LessThan(qty) {
			return nil, fmt.Errorf("%w: have %s %s, need %s", ErrInsufficientFunds,
				w[base].StringFixed(8), base, qty.StringFixed(8))
		}
		proceeds := qty.Mul(execPrice).Sub(fee)
		w[base] = w[base].Sub(qty)
		w[quote] = w[quote].Add(proceeds)
	default:
		return nil, fmt.Errorf("place order: unknown side %q", req.Side)
	}
	p.gasSpent = p.gasSpent.Add(fee)

	id := uuid.NewString()
	fill := &Fill{
		OrderID:       id,
		Status:        models.OrderFilled,
		ExecutedPrice: execPrice.InexactFloat64(),
		Amount:        req.Amount,
		Fee:           fee.InexactFloat64(),
		TxHash:        "0xpaper" + strings.ReplaceAll(id, "-", ""),
		GasUsed:       p.cfg.GasUsed,
		GasPrice:      p.cfg.GasPriceGwei,
	}
	p.orders[id] = fill

	p.log().WithFields(logrus.Fields{
		"strategy": req.StrategyID,
		"side":     req.Side,
		"pair":     req.Pair,
		"amount":   req.Amount,
		"price":    fill.ExecutedPrice,
		"slippage": slip.Mul(decimal.NewFromInt(100)).StringFixed(3),
	}).Info("paper order filled")

	out := *fill
	return &out, nil
}

// CancelOrder always fails for known orders since paper orders fill on placement.
func (p *PaperExchange) CancelOrder(_ context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return fmt.Errorf("cancel %s: %w", orderID, ErrUnknownOrder)
	}
	if o.Status != models.OrderPending {
		return fmt.Errorf("cancel %s: %w", orderID, ErrOrderNotCancellable)
	}
	o.Status = models.OrderCancelled
	return nil
}

func (p *PaperExchange) GetOrderStatus(_ context.Context, orderID string) (*Fill, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order status %s: %w", orderID, ErrUnknownOrder)
	}
	out := *o
	return &out, nil
}

// Balances returns a copy of the wallet's ledger.
func (p *PaperExchange) Balances(wallet string) map[string]decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return maps.Clone(p.walletLocked(wallet))
}

func (p *PaperExchange) GasSpent() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gasSpent
}

package bot

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/kjannette/trahn-gridcore/internal/models"
	"github.com/kjannette/trahn-gridcore/internal/monitor"
)

type memStrategies struct {
	mu   sync.Mutex
	byID map[string]models.GridStrategy
	// statusErr fails SetStatus when set
	statusErr error
}

func newMemStrategies() *memStrategies {
	return &memStrategies{byID: make(map[string]models.GridStrategy)}
}

func (m *memStrategies) Load(_ context.Context, id string) (*models.GridStrategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("strategy %s: %w", id, models.ErrNotFound)
	}
	return &s, nil
}

func (m *memStrategies) Save(_ context.Context, s *models.GridStrategy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[s.ID] = *s
	return nil
}

func (m *memStrategies) SetStatus(_ context.Context, id string, status models.StrategyStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statusErr != nil {
		return m.statusErr
	}
	s, ok := m.byID[id]
	if !ok {
		return models.ErrNotFound
	}
	s.Status = status
	m.byID[id] = s
	return nil
}

func (m *memStrategies) IncrementProfitAndOrders(_ context.Context, id string, profit float64, orders int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return models.ErrNotFound
	}
	s.TotalProfit += profit
	s.ExecutedOrders += orders
	m.byID[id] = s
	return nil
}

func (m *memStrategies) DeleteCascade(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
	return nil
}

func (m *memStrategies) find(match func(models.GridStrategy) bool) []models.GridStrategy {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.GridStrategy
	for _, s := range m.byID {
		if match(s) {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b models.GridStrategy) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

func (m *memStrategies) FindActive(_ context.Context) ([]models.GridStrategy, error) {
	return m.find(func(s models.GridStrategy) bool { return s.Status == models.StatusActive }), nil
}

func (m *memStrategies) FindByWallet(_ context.Context, wallet string) ([]models.GridStrategy, error) {
	return m.find(func(s models.GridStrategy) bool { return s.WalletAddress == wallet }), nil
}

func (m *memStrategies) status(id string) models.StrategyStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id].Status
}

type memOrders struct {
	mu     sync.Mutex
	orders map[string]*models.GridOrder
}

func newMemOrders() *memOrders {
	return &memOrders{orders: make(map[string]*models.GridOrder)}
}

func (m *memOrders) Create(_ context.Context, o *models.GridOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *o
	m.orders[o.ID] = &c
	return nil
}

func (m *memOrders) MarkFilled(_ context.Context, id, txHash string, gasUsed uint64, gasPrice float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return models.ErrNotFound
	}
	o.Status = models.OrderFilled
	o.TxHash = &txHash
	o.GasUsed = &gasUsed
	o.GasPrice = &gasPrice
	return nil
}

func (m *memOrders) Cancel(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok && o.Status == models.OrderPending {
		o.Status = models.OrderCancelled
	}
	return nil
}

func (m *memOrders) CancelPending(_ context.Context, strategyID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.orders {
		if o.StrategyID == strategyID && o.Status == models.OrderPending {
			o.Status = models.OrderCancelled
			n++
		}
	}
	return n, nil
}

func (m *memOrders) CountByStatus(_ context.Context, strategyID string) (models.OrderCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var c models.OrderCounts
	for _, o := range m.orders {
		if o.StrategyID != strategyID {
			continue
		}
		switch o.Status {
		case models.OrderPending:
			c.Pending++
		case models.OrderFilled:
			c.Filled++
		case models.OrderCancelled:
			c.Cancelled++
		}
	}
	return c, nil
}

type memTrades struct {
	mu     sync.Mutex
	trades []models.Trade
}

func (m *memTrades) Append(_ context.Context, t *models.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, *t)
	return nil
}

func (m *memTrades) CountToday(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.trades), nil
}

func (m *memTrades) all() []models.Trade {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.trades)
}

// fakePrices delivers samples only when the test calls emit.
type fakePrices struct {
	mu      sync.Mutex
	current float64
	err     error
	subs    map[string]subscriber
	nextID  int
}

type subscriber struct {
	pair string
	fn   monitor.PriceHandler
}

func newFakePrices(current float64) *fakePrices {
	return &fakePrices{current: current, subs: make(map[string]subscriber)}
}

func (f *fakePrices) GetCurrentPrice(_ context.Context, pair string) (*models.PriceSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &models.PriceSample{Pair: pair, Price: f.current}, nil
}

func (f *fakePrices) SubscribeToPrice(pair string, fn monitor.PriceHandler) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("sub-%d", f.nextID)
	f.subs[id] = subscriber{pair: models.NormalizePair(pair), fn: fn}
	return id, nil
}

func (f *fakePrices) UnsubscribeFromPrice(_ context.Context, id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.subs[id]
	delete(f.subs, id)
	return ok
}

func (f *fakePrices) subscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakePrices) emit(pair string, price float64) []error {
	f.mu.Lock()
	var fns []monitor.PriceHandler
	for _, s := range f.subs {
		if s.pair == pair {
			fns = append(fns, s.fn)
		}
	}
	f.mu.Unlock()

	var errs []error
	for _, fn := range fns {
		if err := fn(context.Background(), models.PriceSample{Pair: pair, Price: price}); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) Send(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

type failingListener struct{ err error }

func (l failingListener) OnTransition(context.Context, *models.GridStrategy, models.StrategyStatus, models.StrategyStatus) error {
	return l.err
}

package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kjannette/trahn-gridcore/internal/logger"
	"github.com/kjannette/trahn-gridcore/internal/models"
	"github.com/kjannette/trahn-gridcore/internal/strategy"
)

// TransitionListener is told about every status change after it is stored.
// An error while activating reverts the strategy to its previous status.
type TransitionListener interface {
	OnTransition(ctx context.Context, s *models.GridStrategy, from, to models.StrategyStatus) error
}

type TransitionResult struct {
	Strategy *models.GridStrategy `json:"strategy"`
	Changed  bool                 `json:"changed"`
	Warning  string               `json:"warning,omitempty"`
}

type CreateResult struct {
	Strategy   *models.GridStrategy   `json:"strategy"`
	Warnings   []string               `json:"warnings"`
	Assessment *models.RiskAssessment `json:"assessment"`
}

// Manager owns strategy status. Operations on the same strategy are serialized.
type Manager struct {
	store  StrategyStore
	orders OrderStore
	risk   RiskGate
	now    func() time.Time

	mu        sync.Mutex
	locks     map[string]chan struct{}
	listeners []TransitionListener
}

func NewManager(store StrategyStore, orders OrderStore, risk RiskGate) *Manager {
	return &Manager{
		store:  store,
		orders: orders,
		risk:   risk,
		now:    time.Now,
		locks:  make(map[string]chan struct{}),
	}
}

func (m *Manager) log() *logrus.Entry {
	return logger.Component("lifecycle")
}

func (m *Manager) AddListener(l TransitionListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// lock serializes operations on one strategy. It gives up when ctx is done, so a
// price tick blocked here cannot hold up a stop that is waiting for that tick.
func (m *Manager) lock(ctx context.Context, id string) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = make(chan struct{}, 1)
		m.locks[id] = l
	}
	m.mu.Unlock()
	select {
	case l <- struct{}{}:
		return func() { <-l }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func normalizeConfig(cfg models.StrategyConfig) models.StrategyConfig {
	cfg.Pair = models.NormalizePair(strings.TrimSpace(cfg.Pair))
	cfg.Network = strings.ToLower(strings.TrimSpace(cfg.Network))
	cfg.WalletAddress = strings.TrimSpace(cfg.WalletAddress)
	if cfg.GridType == "" {
		cfg.GridType = models.GridArithmetic
	}
	return cfg
}

// ValidateConfig checks a configuration without touching storage.
func (m *Manager) ValidateConfig(cfg models.StrategyConfig) strategy.ValidationResult {
	return strategy.ValidateConfig(normalizeConfig(cfg))
}

// Create validates cfg, runs the risk gate and stores a new stopped strategy.
func (m *Manager) Create(ctx context.Context, cfg models.StrategyConfig) (*CreateResult, error) {
	cfg = normalizeConfig(cfg)

	v := strategy.ValidateConfig(cfg)
	if !v.Valid() {
		return nil, &ValidationError{Errors: v.Errors, Warnings: v.Warnings}
	}

	assessment := m.risk.ValidateStrategy(cfg)
	if !assessment.IsApproved {
		m.log().WithFields(logrus.Fields{
			"pair":      cfg.Pair,
			"riskLevel": assessment.RiskLevel,
		}).Warn("strategy rejected by risk assessment")
		return nil, &RiskRejectedError{Assessment: assessment}
	}

	now := m.now()
	s := &models.GridStrategy{
		ID:               uuid.NewString(),
		WalletAddress:    cfg.WalletAddress,
		Pair:             cfg.Pair,
		Network:          cfg.Network,
		GridType:         cfg.GridType,
		UpperPrice:       cfg.UpperPrice,
		LowerPrice:       cfg.LowerPrice,
		GridCount:        cfg.GridCount,
		BaseAmount:       cfg.BaseAmount,
		StopLoss:         cfg.StopLoss,
		MaxPositionRatio: cfg.MaxPositionRatio,
		Status:           models.StatusStopped,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := m.store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("create strategy: %w", err)
	}

	m.log().WithFields(logrus.Fields{
		"strategy":  s.ID,
		"pair":      s.Pair,
		"network":   s.Network,
		"riskLevel": assessment.RiskLevel,
	}).Info("strategy created")

	warnings := v.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return &CreateResult{Strategy: s, Warnings: warnings, Assessment: assessment}, nil
}

func (m *Manager) Start(ctx context.Context, id string) (*TransitionResult, error) {
	return m.transition(ctx, "start", id, models.StatusActive)
}

func (m *Manager) Pause(ctx context.Context, id string) (*TransitionResult, error) {
	return m.transition(ctx, "pause", id, models.StatusPaused)
}

func (m *Manager) Stop(ctx context.Context, id string) (*TransitionResult, error) {
	return m.transition(ctx, "stop", id, models.StatusStopped)
}

func (m *Manager) transition(ctx context.Context, op, id string, to models.StrategyStatus) (*TransitionResult, error) {
	unlock, err := m.lock(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s strategy %s: %w", op, id, err)
	}
	defer unlock()

	s, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s strategy %s: %w", op, id, err)
	}
	from := s.Status
	log := m.log().WithFields(logrus.Fields{"strategy": id, "op": op, "from": from})

	// start on active and stop on stopped are idempotent; pause is not
	if from == to && to != models.StatusPaused {
		warning := fmt.Sprintf("strategy %s is already %s", id, to)
		log.Warn("transition is a no-op")
		return &TransitionResult{Strategy: s, Warning: warning}, nil
	}
	if !CanTransition(from, to) {
		return nil, &StateError{Op: op, StrategyID: id, From: from}
	}

	if err := m.store.SetStatus(ctx, id, to); err != nil {
		return nil, fmt.Errorf("%s strategy %s: %w", op, id, err)
	}
	s.Status = to
	s.UpdatedAt = m.now()

	if err := m.notify(ctx, s, from, to); err != nil {
		if to != models.StatusActive {
			log.WithError(err).Warn("transition listener failed")
		} else {
			if rerr := m.store.SetStatus(ctx, id, from); rerr != nil {
				log.WithError(rerr).Error("failed to revert status after activation error")
			}
			s.Status = from
			return nil, fmt.Errorf("%s strategy %s: %w", op, id, err)
		}
	}

	transitionsTotal.WithLabelValues(string(to)).Inc()
	log.WithField("to", to).Info("strategy status changed")
	return &TransitionResult{Strategy: s, Changed: true}, nil
}

func (m *Manager) notify(ctx context.Context, s *models.GridStrategy, from, to models.StrategyStatus) error {
	m.mu.Lock()
	listeners := append([]TransitionListener(nil), m.listeners...)
	m.mu.Unlock()

	for _, l := range listeners {
		if err := l.OnTransition(ctx, s, from, to); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a stopped strategy with its orders and trades.
func (m *Manager) Delete(ctx context.Context, id string) error {
	unlock, err := m.lock(ctx, id)
	if err != nil {
		return fmt.Errorf("delete strategy %s: %w", id, err)
	}
	defer unlock()

	s, err := m.store.Load(ctx, id)
	if err != nil {
		return fmt.Errorf("delete strategy %s: %w", id, err)
	}
	if !CanDelete(s.Status) {
		return &StateError{Op: "delete", StrategyID: id, From: s.Status}
	}
	if err := m.store.DeleteCascade(ctx, id); err != nil {
		return fmt.Errorf("delete strategy %s: %w", id, err)
	}

	m.mu.Lock()
	delete(m.locks, id)
	m.mu.Unlock()

	m.log().WithField("strategy", id).Info("strategy deleted")
	return nil
}

func (m *Manager) Get(ctx context.Context, id string) (*models.GridStrategy, error) {
	s, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get strategy %s: %w", id, err)
	}
	return s, nil
}

// GetStrategyStatus joins the stored status with live order counts.
func (m *Manager) GetStrategyStatus(ctx context.Context, id string) (*models.StrategyStatusView, error) {
	s, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("strategy status %s: %w", id, err)
	}
	counts, err := m.orders.CountByStatus(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("strategy status %s: order counts: %w", id, err)
	}
	return &models.StrategyStatusView{
		ID:             s.ID,
		Pair:           s.Pair,
		Status:         s.Status,
		TotalProfit:    s.TotalProfit,
		ExecutedOrders: s.ExecutedOrders,
		PendingOrders:  counts.Pending,
		FilledOrders:   counts.Filled,
		UpdatedAt:      s.UpdatedAt,
	}, nil
}

func (m *Manager) ListByWallet(ctx context.Context, wallet string) ([]models.GridStrategy, error) {
	out, err := m.store.FindByWallet(ctx, strings.TrimSpace(wallet))
	if err != nil {
		return nil, fmt.Errorf("list strategies by wallet: %w", err)
	}
	return out, nil
}

func (m *Manager) ListActive(ctx context.Context) ([]models.GridStrategy, error) {
	out, err := m.store.FindActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active strategies: %w", err)
	}
	return out, nil
}

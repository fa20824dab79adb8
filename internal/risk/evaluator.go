package risk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kjannette/trahn-gridcore/internal/logger"
	"github.com/kjannette/trahn-gridcore/internal/models"
)

var ErrNoEmergencyHandler = errors.New("emergency stop handler not configured")

// StrategyLoader abstracts persistence so the evaluator can re-score live strategies.
type StrategyLoader interface {
	Load(ctx context.Context, id string) (*models.GridStrategy, error)
}

// EmergencyHandler stops one strategy, or every active strategy when id is "".
type EmergencyHandler func(ctx context.Context, id string) error

type Evaluator struct {
	store StrategyLoader

	mu        sync.RWMutex
	limits    Limits
	emergency EmergencyHandler
}

func NewEvaluator(limits Limits, store StrategyLoader) (*Evaluator, error) {
	if err := limits.validate(); err != nil {
		return nil, err
	}
	return &Evaluator{limits: limits.clone(), store: store}, nil
}

func (e *Evaluator) log() *logrus.Entry {
	return logger.Component("risk")
}

// Limits returns a copy of the current limits.
func (e *Evaluator) Limits() Limits {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.limits.clone()
}

// UpdateLimits applies a partial update. Invalid updates leave the limits unchanged.
func (e *Evaluator) UpdateLimits(u LimitsUpdate) (Limits, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := u.apply(e.limits)
	if err := next.validate(); err != nil {
		return e.limits.clone(), err
	}
	e.limits = next
	e.log().WithFields(logrus.Fields{
		"maxAbsolutePosition": next.MaxAbsolutePosition,
		"maxPositionRatio":    next.MaxPositionRatio,
	}).Info("risk limits updated")
	return next.clone(), nil
}

// SetNetworkGasCost records a fresh gas cost estimate (USD per transaction).
func (e *Evaluator) SetNetworkGasCost(network string, usd float64) {
	if usd < 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.limits.NetworkGasCostUSD == nil {
		e.limits.NetworkGasCostUSD = make(map[string]float64)
	}
	e.limits.NetworkGasCostUSD[strings.ToLower(network)] = usd
}

func (e *Evaluator) SetEmergencyHandler(h EmergencyHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emergency = h
}

// ValidateStrategy runs every check against cfg and returns the aggregated assessment.
func (e *Evaluator) ValidateStrategy(cfg models.StrategyConfig) *models.RiskAssessment {
	a := assess(cfg, e.Limits())
	assessmentsTotal.WithLabelValues(string(a.RiskLevel)).Inc()
	return a
}

// AssessCurrentRisk re-scores a persisted strategy, including its realized results.
func (e *Evaluator) AssessCurrentRisk(ctx context.Context, strategyID string) (models.RiskLevel, error) {
	s, err := e.store.Load(ctx, strategyID)
	if err != nil {
		return "", fmt.Errorf("assess strategy %s: %w", strategyID, err)
	}
	limits := e.Limits()
	a := assess(s.Config(), limits)
	if issue := drawdownIssue(s, limits); issue != nil {
		a.Issues = append(a.Issues, *issue)
		a.RiskLevel = levelFor(a.Issues)
		a.IsApproved = !a.HasCritical()
	}
	assessmentsTotal.WithLabelValues(string(a.RiskLevel)).Inc()
	return a.RiskLevel, nil
}

// CheckPositionLimits reports whether amount is within the absolute position ceiling.
func (e *Evaluator) CheckPositionLimits(ctx context.Context, strategyID string, amount float64) (bool, error) {
	if _, err := e.store.Load(ctx, strategyID); err != nil {
		return false, fmt.Errorf("position limits for %s: %w", strategyID, err)
	}
	return amount <= e.Limits().MaxAbsolutePosition, nil
}

// EvaluateStopLoss reports whether price has reached the strategy's stop-loss floor.
func (e *Evaluator) EvaluateStopLoss(price float64, s *models.GridStrategy) bool {
	if s == nil || s.StopLoss == nil {
		return false
	}
	return price <= *s.StopLoss
}

// EmergencyStop invokes the registered handler. An empty id means every active strategy.
func (e *Evaluator) EmergencyStop(ctx context.Context, strategyID string) error {
	e.mu.RLock()
	h := e.emergency
	e.mu.RUnlock()

	if h == nil {
		return fmt.Errorf("emergency stop %q: %w", strategyID, ErrNoEmergencyHandler)
	}

	target := strategyID
	if target == "" {
		target = "all"
	}
	e.log().WithField("strategy", target).Warn("emergency stop requested")
	emergencyStopsTotal.Inc()

	if err := h(ctx, strategyID); err != nil {
		return fmt.Errorf("emergency stop %s: %w", target, err)
	}
	return nil
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kjannette/trahn-gridcore/internal/logger"
	"github.com/kjannette/trahn-gridcore/internal/models"
)

type StrategyLister interface {
	ListActive(ctx context.Context) ([]models.GridStrategy, error)
}

type RiskAssessor interface {
	AssessCurrentRisk(ctx context.Context, strategyID string) (models.RiskLevel, error)
	EmergencyStop(ctx context.Context, strategyID string) error
	SetNetworkGasCost(network string, usd float64)
}

// GasEstimator prices one transaction on its network in USD.
type GasEstimator interface {
	Network() string
	EstimateCostUSD(ctx context.Context, nativeUSD float64) (float64, error)
}

type PriceFeed interface {
	FetchPrice(ctx context.Context, pair string) (*models.PriceSample, error)
}

type RiskSchedulerConfig struct {
	Interval time.Duration
	Timeout  time.Duration
	// HaltLevel is the current-risk level at which a strategy is emergency-stopped.
	HaltLevel models.RiskLevel
	// NativePair prices the gas token, e.g. "ETH/USD". Gas refresh is skipped when empty.
	NativePair string
}

type Report struct {
	Assessed   int                         `json:"assessed"`
	Levels     map[string]models.RiskLevel `json:"levels"`
	Stopped    []string                    `json:"stopped"`
	GasCostUSD float64                     `json:"gasCostUsd,omitempty"`
}

// RiskScheduler periodically refreshes gas costs and re-scores every active strategy.
type RiskScheduler struct {
	strategies StrategyLister
	risk       RiskAssessor
	gas        GasEstimator
	prices     PriceFeed
	cfg        RiskSchedulerConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
	last    *Report
}

// NewRiskScheduler builds a scheduler. gas and prices may be nil to skip gas refresh.
func NewRiskScheduler(strategies StrategyLister, risk RiskAssessor, gas GasEstimator, prices PriceFeed, cfg RiskSchedulerConfig) *RiskScheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if !cfg.HaltLevel.Valid() {
		cfg.HaltLevel = models.RiskVeryHigh
	}
	return &RiskScheduler{
		strategies: strategies,
		risk:       risk,
		gas:        gas,
		prices:     prices,
		cfg:        cfg,
	}
}

func (s *RiskScheduler) log() *logrus.Entry {
	return logger.Component("risk-scheduler")
}

func (s *RiskScheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log().Warn("already running")
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	stopCh, done := s.stopCh, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		s.tick()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()

	s.log().WithFields(logrus.Fields{
		"interval":  s.cfg.Interval.String(),
		"haltLevel": s.cfg.HaltLevel,
	}).Info("started")
}

// Stop ends the loop and waits for an in-flight pass to finish.
func (s *RiskScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	done := s.done
	s.running = false
	s.mu.Unlock()

	<-done
	s.log().Info("stopped")
}

func (s *RiskScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastReport returns the result of the most recent pass, or nil before the first.
func (s *RiskScheduler) LastReport() *Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *RiskScheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()
	if _, err := s.RunNow(ctx); err != nil {
		s.log().WithError(err).Error("risk pass failed")
	}
}

// RunNow performs one pass outside the normal schedule. Per-strategy failures are
// collected and do not stop the pass.
func (s *RiskScheduler) RunNow(ctx context.Context) (*Report, error) {
	rep := &Report{Levels: map[string]models.RiskLevel{}, Stopped: []string{}}
	var errs []error

	if cost, err := s.refreshGas(ctx); err != nil {
		s.log().WithError(err).Warn("gas refresh failed, keeping previous estimate")
	} else {
		rep.GasCostUSD = cost
	}

	active, err := s.strategies.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active strategies: %w", err)
	}

	for _, st := range active {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		level, err := s.risk.AssessCurrentRisk(ctx, st.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("assess %s: %w", st.ID, err))
			continue
		}
		rep.Assessed++
		rep.Levels[st.ID] = level
		if !level.AtLeast(s.cfg.HaltLevel) {
			continue
		}

		s.log().WithFields(logrus.Fields{"strategy": st.ID, "pair": st.Pair, "riskLevel": level}).
			Warn("risk level at halt threshold, stopping strategy")
		if err := s.risk.EmergencyStop(ctx, st.ID); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", st.ID, err))
			continue
		}
		rep.Stopped = append(rep.Stopped, st.ID)
	}

	s.mu.Lock()
	s.last = rep
	s.mu.Unlock()

	s.log().WithFields(logrus.Fields{
		"assessed": rep.Assessed,
		"stopped":  len(rep.Stopped),
	}).Info("risk pass complete")
	return rep, errors.Join(errs...)
}

func (s *RiskScheduler) refreshGas(ctx context.Context) (float64, error) {
	if s.gas == nil || s.prices == nil || s.cfg.NativePair == "" {
		return 0, nil
	}
	sample, err := s.prices.FetchPrice(ctx, s.cfg.NativePair)
	if err != nil {
		return 0, fmt.Errorf("native price: %w", err)
	}
	cost, err := s.gas.EstimateCostUSD(ctx, sample.Price)
	if err != nil {
		return 0, err
	}
	s.risk.SetNetworkGasCost(s.gas.Network(), cost)
	s.log().WithFields(logrus.Fields{
		"network": s.gas.Network(),
		"usd":     fmt.Sprintf("%.4f", cost),
	}).Debug("gas cost refreshed")
	return cost, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kjannette/trahn-gridcore/internal/api"
	"github.com/kjannette/trahn-gridcore/internal/bot"
	"github.com/kjannette/trahn-gridcore/internal/config"
	"github.com/kjannette/trahn-gridcore/internal/db"
	"github.com/kjannette/trahn-gridcore/internal/ethereum"
	"github.com/kjannette/trahn-gridcore/internal/external"
	"github.com/kjannette/trahn-gridcore/internal/logger"
	"github.com/kjannette/trahn-gridcore/internal/models"
	"github.com/kjannette/trahn-gridcore/internal/monitor"
	"github.com/kjannette/trahn-gridcore/internal/notifications"
	"github.com/kjannette/trahn-gridcore/internal/repository"
	"github.com/kjannette/trahn-gridcore/internal/risk"
	"github.com/kjannette/trahn-gridcore/internal/scheduler"
)

const banner = `
╔══════════════════════════════════════╗
║        Grid Trading Core v0.3        ║
║                                      ║
╚══════════════════════════════════════╝
`

func main() {
	fmt.Print(banner)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	logger.Init(&logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	log := logger.Component("main")

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	cfg.Print()

	// Graceful shutdown context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := db.Connect(ctx, cfg.DSN(), db.DefaultPoolConfig())
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer func() {
		pool.Close()
		log.Info("database pool closed")
	}()
	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, pool); err != nil {
			log.WithError(err).Fatal("schema migration failed")
		}
	}

	// Repos
	strategyRepo := repository.NewStrategyRepo(pool)
	orderRepo := repository.NewOrderRepo(pool)
	tradeRepo := repository.NewTradeRepo(pool)
	priceRepo := repository.NewPriceRepo(pool)

	// Notifications
	notify := notifications.NewSender(cfg.WebhookURL, cfg.BotName)

	// Price feed and monitoring engine
	feedOpts := []external.CoinGeckoOption{external.WithAPIKey(cfg.CoinGeckoAPIKey)}
	if cfg.CoinGeckoURL != "" {
		feedOpts = append(feedOpts, external.WithBaseURL(cfg.CoinGeckoURL))
	}
	feed := external.NewCoinGeckoClient(feedOpts...)

	engine := monitor.NewEngine(feed, priceRepo, monitor.Options{
		PollInterval:      cfg.PollInterval,
		CacheTTL:          cfg.CacheTTL,
		MaxBackoff:        cfg.MaxBackoff,
		HaltAfterFailures: cfg.HaltAfterFailures,
		HistoryLimit:      cfg.HistoryLimit,
	})

	// Risk
	limits := risk.DefaultLimits()
	limits.MaxAbsolutePosition = cfg.MaxAbsolutePosition
	limits.MaxPositionRatio = cfg.MaxPositionRatio
	limits.ModerateRangePercent = cfg.ModerateRangePercent
	limits.WideRangePercent = cfg.WideRangePercent
	limits.MinGridSpacingPercent = cfg.MinGridSpacingPercent
	limits.HighGridCount = cfg.HighGridCount
	limits.ExtremeGridCount = cfg.ExtremeGridCount
	limits.MinStopLossBufferPercent = cfg.MinStopLossBufferPercent
	limits.GasCostWarnPercent = cfg.GasCostWarnPercent
	limits.GasCostHighPercent = cfg.GasCostHighPercent
	limits.DrawdownWarnPercent = cfg.DrawdownWarnPercent

	evaluator, err := risk.NewEvaluator(limits, strategyRepo)
	if err != nil {
		log.WithError(err).Fatal("invalid risk limits")
	}
	guardian := risk.NewGuardian(risk.GuardLimits{
		MaxDailyTrades:    cfg.MaxDailyTrades,
		MaxTradeUSD:       cfg.MaxTradeUSD,
		StopLossPercent:   cfg.StopLossPercent,
		TakeProfitPercent: cfg.TakeProfitPercent,
	}, tradeRepo, repository.TradingDayNow)

	// Wallet keys
	var wallets bot.WalletSet
	if cfg.KeystoreDir != "" {
		ks, err := ethereum.OpenKeystore(cfg.KeystoreDir)
		if err != nil {
			log.WithError(err).Fatal("keystore unavailable")
		}
		if cfg.KeystorePassword != "" {
			for _, addr := range ks.Addresses() {
				if _, err := ks.DecryptKey(addr, cfg.KeystorePassword); err != nil {
					log.WithError(err).Fatal("keystore account cannot be unlocked")
				}
			}
		}
		log.WithField("accounts", len(ks.Addresses())).Info("keystore loaded")
		wallets = ks
	}

	// Lifecycle and control loop
	manager := bot.NewManager(strategyRepo, orderRepo, evaluator)
	exchange := bot.NewPaperExchange(bot.PaperConfig{
		InitialBalances: cfg.PaperInitialBalances,
		SlippagePercent: cfg.PaperSlippagePercent,
		GasCostUSD:      cfg.PaperGasCostUSD,
		GasUsed:         cfg.PaperGasUsed,
		GasPriceGwei:    cfg.PaperGasPriceGwei,
	})
	runner := bot.NewRunner(bot.RunnerDeps{
		Prices:     engine,
		Risk:       evaluator,
		Guard:      guardian,
		Exchange:   exchange,
		Strategies: strategyRepo,
		Orders:     orderRepo,
		Trades:     tradeRepo,
		Manager:    manager,
		Notify:     notify,
		Wallets:    wallets,
	})
	engine.AddEventHandler(runner.HandleEvent)
	engine.AddEventHandler(func(_ context.Context, ev monitor.Event) {
		if ev.Type == monitor.EventMonitoringHalted {
			notify.Send(fmt.Sprintf("Price monitoring for %s halted after %d failed fetches", ev.Pair, ev.Failures))
		}
	})

	if err := runner.Resume(ctx); err != nil {
		log.WithError(err).Warn("some active strategies could not be re-armed")
	}
	if len(cfg.MonitorPairs) > 0 {
		if err := engine.StartMonitoring(cfg.MonitorPairs...); err != nil {
			log.WithError(err).Warn("some configured pairs could not be monitored")
		}
	}

	// Gas oracle feeds live network costs into the evaluator
	var gas scheduler.GasEstimator
	if cfg.EthereumAPIEndpoint != "" {
		oracle, err := ethereum.DialGasOracle(cfg.EthereumAPIEndpoint, cfg.GasNetwork, uint64(cfg.GasLimit), cfg.GasMultiplier)
		if err != nil {
			log.WithError(err).Warn("gas oracle unavailable, using static gas estimates")
		} else {
			defer oracle.Close()
			gas = oracle
		}
	}
	nativePair := cfg.NativePair
	if nativePair == "" {
		if sym := ethereum.NativeAsset(cfg.GasNetwork); sym != "" {
			nativePair = sym + "/USD"
		}
	}

	riskSched := scheduler.NewRiskScheduler(manager, evaluator, gas, feed, scheduler.RiskSchedulerConfig{
		Interval:   cfg.RiskCheckInterval,
		HaltLevel:  models.RiskLevel(cfg.HaltRiskLevel),
		NativePair: nativePair,
	})
	riskSched.Start()

	// API server
	srv := api.NewServer(api.Deps{
		Strategies: manager,
		Grids:      runner,
		Risk:       evaluator,
		Prices:     engine,
		Trades:     tradeRepo,
		Orders:     orderRepo,
		DB:         pool,
		AlertActions: map[string]monitor.AlertAction{
			"webhook": notifications.NewAlertAction(notify),
		},
	}, api.Config{
		Port:       cfg.APIPort,
		APIKey:     cfg.APIKey,
		CORSOrigin: cfg.CORSAllowOrigin,
	})
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("API server error")
		}
	}()

	log.Info("all services started")

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("API shutdown error")
	}

	riskSched.Stop()
	runner.Shutdown(shutdownCtx)
	engine.StopMonitoring(shutdownCtx)
	log.Info("shutdown complete")
}

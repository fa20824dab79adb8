package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kjannette/trahn-gridcore/internal/logger"
)

type Config struct {
	// Secrets (from .env)
	CoinGeckoAPIKey     string
	EthereumAPIEndpoint string
	KeystoreDir         string
	KeystorePassword    string
	WebhookURL          string
	BotName             string
	APIKey              string
	CORSAllowOrigin     string

	// Database
	DatabaseURL string
	DBHost      string
	DBPort      int
	DBName      string
	DBUser      string
	DBPassword  string
	// MigrateOnStart applies the embedded schema at startup.
	MigrateOnStart bool

	// API
	APIPort int

	// Logging
	LogLevel  string
	LogFormat string

	// Price monitoring
	CoinGeckoURL      string
	MonitorPairs      []string
	PollInterval      time.Duration
	CacheTTL          time.Duration
	MaxBackoff        time.Duration
	HaltAfterFailures int
	HistoryLimit      int

	// Risk limits
	MaxAbsolutePosition      float64
	MaxPositionRatio         float64
	ModerateRangePercent     float64
	WideRangePercent         float64
	MinGridSpacingPercent    float64
	HighGridCount            int
	ExtremeGridCount         int
	MinStopLossBufferPercent float64
	GasCostWarnPercent       float64
	GasCostHighPercent       float64
	DrawdownWarnPercent      float64

	// Pre-trade guardian
	MaxDailyTrades    int
	MaxTradeUSD       float64
	StopLossPercent   float64
	TakeProfitPercent float64

	// Paper Trading
	PaperInitialBalances map[string]float64
	PaperSlippagePercent float64
	PaperGasCostUSD      float64
	PaperGasUsed         uint64
	PaperGasPriceGwei    float64

	// Ethereum gas oracle
	GasNetwork    string
	GasLimit      int
	GasMultiplier float64
	NativePair    string

	// Risk scheduler
	RiskCheckInterval time.Duration
	HaltRiskLevel     string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	balances, err := parseBalances(envStr("PAPER_INITIAL_BALANCES", "USDC=10000,USDT=10000,ETH=5,BTC=0.25"))
	if err != nil {
		return nil, fmt.Errorf("PAPER_INITIAL_BALANCES: %w", err)
	}

	cfg := &Config{
		// Secrets
		CoinGeckoAPIKey:     envStr("COINGECKO_API_KEY", ""),
		EthereumAPIEndpoint: envStr("ETHEREUM_API_ENDPOINT", ""),
		KeystoreDir:         envStr("KEYSTORE_DIR", ""),
		KeystorePassword:    envStr("KEYSTORE_PASSWORD", ""),
		WebhookURL:          envStr("WEBHOOK_URL", ""),
		BotName:             envStr("BOT_NAME", "GridCore"),
		APIKey:              envStr("API_KEY", ""),
		CORSAllowOrigin:     envStr("CORS_ALLOW_ORIGIN", "*"),

		// Database
		DatabaseURL: envStr("DATABASE_URL", ""),
		DBHost:      envStr("DB_HOST", "localhost"),
		DBPort:      envInt("DB_PORT", 5432),
		DBName:      envStr("DB_NAME", "grid_core"),
		DBUser:      envStr("DB_USER", ""),
		DBPassword:  envStr("DB_PASSWORD", ""),

		MigrateOnStart: envBool("DB_MIGRATE", true),

		APIPort: envInt("API_PORT", 3001),

		LogLevel:  envStr("LOG_LEVEL", "info"),
		LogFormat: envStr("LOG_FORMAT", "text"),

		// Monitoring
		CoinGeckoURL:      envStr("COINGECKO_URL", ""),
		MonitorPairs:      envList("MONITOR_PAIRS"),
		PollInterval:      envDuration("PRICE_POLL_INTERVAL", 5*time.Second),
		CacheTTL:          envDuration("PRICE_CACHE_TTL", 10*time.Second),
		MaxBackoff:        envDuration("PRICE_MAX_BACKOFF", 2*time.Minute),
		HaltAfterFailures: envInt("PRICE_HALT_AFTER_FAILURES", 20),
		HistoryLimit:      envInt("PRICE_HISTORY_LIMIT", 100),

		// Risk limits
		MaxAbsolutePosition:      envFloat("RISK_MAX_ABSOLUTE_POSITION", 10000),
		MaxPositionRatio:         envFloat("RISK_MAX_POSITION_RATIO", 0.8),
		ModerateRangePercent:     envFloat("RISK_MODERATE_RANGE_PERCENT", 50),
		WideRangePercent:         envFloat("RISK_WIDE_RANGE_PERCENT", 100),
		MinGridSpacingPercent:    envFloat("RISK_MIN_GRID_SPACING_PERCENT", 0.1),
		HighGridCount:            envInt("RISK_HIGH_GRID_COUNT", 50),
		ExtremeGridCount:         envInt("RISK_EXTREME_GRID_COUNT", 100),
		MinStopLossBufferPercent: envFloat("RISK_MIN_STOP_LOSS_BUFFER_PERCENT", 2),
		GasCostWarnPercent:       envFloat("RISK_GAS_COST_WARN_PERCENT", 2),
		GasCostHighPercent:       envFloat("RISK_GAS_COST_HIGH_PERCENT", 10),
		DrawdownWarnPercent:      envFloat("RISK_DRAWDOWN_WARN_PERCENT", 10),

		// Guardian
		MaxDailyTrades:    envInt("MAX_DAILY_TRADES", 50),
		MaxTradeUSD:       envFloat("MAX_TRADE_USD", 10000),
		StopLossPercent:   envFloat("STOP_LOSS_PERCENT", 0),
		TakeProfitPercent: envFloat("TAKE_PROFIT_PERCENT", 0),

		// Paper Trading
		PaperInitialBalances: balances,
		PaperSlippagePercent: envFloat("PAPER_SLIPPAGE_PERCENT", 0.5),
		PaperGasCostUSD:      envFloat("PAPER_GAS_COST_USD", 0.3),
		PaperGasUsed:         uint64(envInt("PAPER_GAS_USED", 150000)),
		PaperGasPriceGwei:    envFloat("PAPER_GAS_PRICE_GWEI", 0.1),

		// Ethereum
		GasNetwork:    strings.ToLower(envStr("GAS_NETWORK", "ethereum")),
		GasLimit:      envInt("GAS_LIMIT", 250000),
		GasMultiplier: envFloat("GAS_MULTIPLIER", 1.2),
		NativePair:    envStr("NATIVE_PRICE_PAIR", "ETH/USD"),

		// Scheduler
		RiskCheckInterval: envDuration("RISK_CHECK_INTERVAL", 5*time.Minute),
		HaltRiskLevel:     envStr("HALT_RISK_LEVEL", "very_high"),
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string
	log := logger.Component("config")

	if c.DatabaseURL == "" && c.DBUser == "" {
		errs = append(errs, "DATABASE_URL or DB_USER is required")
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Sprintf("API_PORT %d is out of range", c.APIPort))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, "PRICE_POLL_INTERVAL must be positive")
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, "PRICE_CACHE_TTL must be positive")
	}
	if c.MaxPositionRatio <= 0 || c.MaxPositionRatio > 1 {
		errs = append(errs, "RISK_MAX_POSITION_RATIO must be in (0, 1]")
	}
	if c.MaxAbsolutePosition <= 0 {
		errs = append(errs, "RISK_MAX_ABSOLUTE_POSITION must be positive")
	}
	if c.HighGridCount > c.ExtremeGridCount {
		errs = append(errs, "RISK_HIGH_GRID_COUNT must not exceed RISK_EXTREME_GRID_COUNT")
	}

	if c.StopLossPercent == 0 && c.TakeProfitPercent == 0 {
		log.Warn("STOP_LOSS_PERCENT and TAKE_PROFIT_PERCENT are both 0, no portfolio circuit breakers active")
	}
	if c.MaxDailyTrades == 0 && c.MaxTradeUSD == 0 {
		log.Warn("MAX_DAILY_TRADES and MAX_TRADE_USD are both 0, no per-trade limits active")
	}
	if c.APIKey == "" {
		log.Warn("API_KEY not set, REST API has no authentication")
	}
	if c.EthereumAPIEndpoint == "" {
		log.Warn("ETHEREUM_API_ENDPOINT not set, gas costs use static estimates")
	}
	if c.HaltAfterFailures <= 0 {
		log.Warn("PRICE_HALT_AFTER_FAILURES <= 0, failing pairs are polled with backoff forever")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

// Print writes the effective configuration. Secrets are reported only as set or unset.
func (c *Config) Print() {
	fmt.Println("=== Grid Core Configuration ===")
	fmt.Println("  PAPER TRADING MODE - orders fill against a simulated ledger")
	fmt.Println("--------------------------------------")
	fmt.Printf("API Port: %d (auth %s)\n", c.APIPort, boolLabel(c.APIKey != "", "enabled", "disabled"))
	fmt.Printf("Log: %s/%s\n", c.LogLevel, c.LogFormat)
	fmt.Println("--------------------------------------")
	fmt.Println("Price Monitoring:")
	fmt.Printf("  Poll Interval: %s\n", c.PollInterval)
	fmt.Printf("  Cache TTL: %s\n", c.CacheTTL)
	fmt.Printf("  Max Backoff: %s, halt after %d failures\n", c.MaxBackoff, c.HaltAfterFailures)
	if len(c.MonitorPairs) > 0 {
		fmt.Printf("  Pairs: %s\n", strings.Join(c.MonitorPairs, ", "))
	}
	fmt.Printf("  CoinGecko API key: %s\n", boolLabel(c.CoinGeckoAPIKey != "", "configured", "not set"))
	fmt.Println("--------------------------------------")
	fmt.Println("Risk Limits:")
	fmt.Printf("  Max Absolute Position: $%.0f\n", c.MaxAbsolutePosition)
	fmt.Printf("  Max Position Ratio: %.2f\n", c.MaxPositionRatio)
	fmt.Printf("  Grid Count Thresholds: %d / %d\n", c.HighGridCount, c.ExtremeGridCount)
	fmt.Printf("  Max Daily Trades: %d\n", c.MaxDailyTrades)
	fmt.Printf("  Max Trade: $%.0f\n", c.MaxTradeUSD)
	fmt.Printf("  Halt Risk Level: %s (checked every %s)\n", c.HaltRiskLevel, c.RiskCheckInterval)
	fmt.Println("--------------------------------------")
	fmt.Printf("Gas Oracle: %s (%s)\n", boolLabel(c.EthereumAPIEndpoint != "", "RPC", "static"), c.GasNetwork)
	fmt.Printf("Keystore: %s\n", boolLabel(c.KeystoreDir != "", "configured", "not set"))
	fmt.Printf("Webhook: %s\n", boolLabel(c.WebhookURL != "", "configured", "not set"))
	fmt.Println("======================================")
}

func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// --- helpers ---

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(v)
		return v == "true" || v == "1" || v == "yes"
	}
	return fallback
}

// envDuration accepts Go durations ("30s") or a bare number of seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func envList(key string) []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(key), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseBalances reads "USDC=1000,ETH=1" into a symbol-keyed map.
func parseBalances(s string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		sym, amt, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("expected SYMBOL=amount, got %q", part)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(amt), 64)
		if err != nil || f < 0 {
			return nil, fmt.Errorf("invalid amount for %s: %q", sym, amt)
		}
		out[strings.ToUpper(strings.TrimSpace(sym))] = f
	}
	return out, nil
}

func boolLabel(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}

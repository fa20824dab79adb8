package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/kjannette/trahn-gridcore/internal/bot"
	"github.com/kjannette/trahn-gridcore/internal/logger"
	"github.com/kjannette/trahn-gridcore/internal/models"
	"github.com/kjannette/trahn-gridcore/internal/monitor"
	"github.com/kjannette/trahn-gridcore/internal/risk"
	"github.com/kjannette/trahn-gridcore/internal/strategy"
)

const (
	maxQueryLimit = 1000
	maxBodyBytes  = 1 << 20
)

type StrategyService interface {
	ValidateConfig(cfg models.StrategyConfig) strategy.ValidationResult
	Create(ctx context.Context, cfg models.StrategyConfig) (*bot.CreateResult, error)
	Start(ctx context.Context, id string) (*bot.TransitionResult, error)
	Pause(ctx context.Context, id string) (*bot.TransitionResult, error)
	Stop(ctx context.Context, id string) (*bot.TransitionResult, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*models.GridStrategy, error)
	GetStrategyStatus(ctx context.Context, id string) (*models.StrategyStatusView, error)
	ListByWallet(ctx context.Context, wallet string) ([]models.GridStrategy, error)
}

// GridView exposes the armed levels of running strategies.
type GridView interface {
	Grid(id string) ([]strategy.GridLevel, bool)
}

type RiskService interface {
	ValidateStrategy(cfg models.StrategyConfig) *models.RiskAssessment
	AssessCurrentRisk(ctx context.Context, id string) (models.RiskLevel, error)
	CalculateMaxPositionSize(cfg models.StrategyConfig, balance float64) float64
	Limits() risk.Limits
	UpdateLimits(u risk.LimitsUpdate) (risk.Limits, error)
	EmergencyStop(ctx context.Context, id string) error
}

type PriceService interface {
	GetCurrentPrice(ctx context.Context, pair string) (*models.PriceSample, error)
	GetPriceHistory(ctx context.Context, pair, timeframe string, limit int) ([]models.PriceSample, error)
	StartMonitoring(pairs ...string) error
	StopMonitoring(ctx context.Context, pairs ...string)
	WatchedPairs() []string
	AddPriceAlert(pair string, cond models.AlertCondition, target float64, action monitor.AlertAction) (string, error)
	RemovePriceAlert(ctx context.Context, id string) bool
	Alerts(pair string) []models.PriceAlert
}

type TradeLister interface {
	ListByStrategy(ctx context.Context, strategyID string, limit int) ([]models.Trade, error)
}

type OrderLister interface {
	ListByStrategy(ctx context.Context, strategyID string, limit int) ([]models.GridOrder, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Strategies StrategyService
	Grids      GridView
	Risk       RiskService
	Prices     PriceService
	Trades     TradeLister
	Orders     OrderLister
	DB         Pinger
	// AlertActions are selectable by name when creating an alert.
	AlertActions map[string]monitor.AlertAction
}

type Config struct {
	Port       int
	APIKey     string
	CORSOrigin string
}

type Server struct {
	Deps
	httpServer *http.Server
	apiKey     string
	started    time.Time
}

func NewServer(deps Deps, cfg Config) *Server {
	s := &Server{Deps: deps, apiKey: cfg.APIKey, started: time.Now()}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.authMiddleware(corsMiddleware(s.routes(), cfg.CORSOrigin)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Strategy routes
	mux.HandleFunc("POST /v1/strategies", s.handleCreateStrategy)
	mux.HandleFunc("POST /v1/strategies/validate", s.handleValidateStrategy)
	mux.HandleFunc("GET /v1/strategies", s.handleListStrategies)
	mux.HandleFunc("GET /v1/strategies/{id}", s.handleGetStrategy)
	mux.HandleFunc("DELETE /v1/strategies/{id}", s.handleDeleteStrategy)
	mux.HandleFunc("GET /v1/strategies/{id}/status", s.handleStrategyStatus)
	mux.HandleFunc("GET /v1/strategies/{id}/grid", s.handleStrategyGrid)
	mux.HandleFunc("GET /v1/strategies/{id}/risk", s.handleStrategyRisk)
	mux.HandleFunc("GET /v1/strategies/{id}/trades", s.handleStrategyTrades)
	mux.HandleFunc("GET /v1/strategies/{id}/orders", s.handleStrategyOrders)
	mux.HandleFunc("POST /v1/strategies/{id}/start", s.handleTransition("start"))
	mux.HandleFunc("POST /v1/strategies/{id}/pause", s.handleTransition("pause"))
	mux.HandleFunc("POST /v1/strategies/{id}/stop", s.handleTransition("stop"))

	// Risk routes
	mux.HandleFunc("GET /v1/risk/limits", s.handleGetLimits)
	mux.HandleFunc("PATCH /v1/risk/limits", s.handleUpdateLimits)
	mux.HandleFunc("POST /v1/risk/max-position", s.handleMaxPosition)
	mux.HandleFunc("POST /v1/risk/emergency-stop", s.handleEmergencyStop)

	// Price routes
	mux.HandleFunc("GET /v1/prices/current", s.handleCurrentPrice)
	mux.HandleFunc("GET /v1/prices/history", s.handlePriceHistory)
	mux.HandleFunc("GET /v1/monitor/pairs", s.handleWatchedPairs)
	mux.HandleFunc("POST /v1/monitor/pairs", s.handleStartMonitoring)
	mux.HandleFunc("DELETE /v1/monitor/pairs", s.handleStopMonitoring)

	// Alert routes
	mux.HandleFunc("GET /v1/alerts", s.handleListAlerts)
	mux.HandleFunc("POST /v1/alerts", s.handleAddAlert)
	mux.HandleFunc("DELETE /v1/alerts/{id}", s.handleRemoveAlert)

	// No auth required
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

func (s *Server) log() *logrus.Entry {
	return logger.Component("api")
}

// Handler returns the full middleware chain, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	s.log().WithFields(logrus.Fields{
		"addr": s.httpServer.Addr,
		"auth": s.apiKey != "",
	}).Info("REST API server started")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// --- middleware ---

func isPublic(path string) bool {
	return path == "/health" || path == "/metrics"
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" || isPublic(r.URL.Path) || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, http.StatusUnauthorized, "missing Authorization header")
			return
		}

		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler, allowOrigin string) http.Handler {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- request helpers ---

func parseLimit(r *http.Request, defaultLimit int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultLimit
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultLimit
	}
	if n > maxQueryLimit {
		return maxQueryLimit
	}
	return n
}

// decodeBody reads a JSON body into v, rejecting unknown fields. An empty body
// leaves v untouched when allowEmpty is set.
func decodeBody(r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if err == io.EOF && allowEmpty {
			return nil
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjannette/trahn-gridcore/internal/bot"
	"github.com/kjannette/trahn-gridcore/internal/models"
	"github.com/kjannette/trahn-gridcore/internal/monitor"
	"github.com/kjannette/trahn-gridcore/internal/risk"
	"github.com/kjannette/trahn-gridcore/internal/strategy"
)

type fakeStrategies struct {
	byID map[string]*models.GridStrategy
}

func (f *fakeStrategies) Load(_ context.Context, id string) (*models.GridStrategy, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, fmt.Errorf("strategy %s: %w", id, models.ErrNotFound)
	}
	c := *s
	return &c, nil
}

func (f *fakeStrategies) ValidateConfig(cfg models.StrategyConfig) strategy.ValidationResult {
	return strategy.ValidateConfig(cfg)
}

func (f *fakeStrategies) Create(_ context.Context, cfg models.StrategyConfig) (*bot.CreateResult, error) {
	v := strategy.ValidateConfig(cfg)
	if !v.Valid() {
		return nil, &bot.ValidationError{Errors: v.Errors, Warnings: v.Warnings}
	}
	if cfg.BaseAmount > 10000 {
		return nil, &bot.RiskRejectedError{Assessment: &models.RiskAssessment{
			RiskLevel: models.RiskVeryHigh,
			Issues:    []models.RiskIssue{{Category: models.CategoryPositionSize, Severity: models.SeverityCritical, Message: "too big"}},
		}}
	}
	s := &models.GridStrategy{ID: "s-new", Pair: cfg.Pair, Status: models.StatusStopped}
	f.byID[s.ID] = s
	return &bot.CreateResult{Strategy: s, Warnings: []string{}}, nil
}

func (f *fakeStrategies) move(id string, from []models.StrategyStatus, to models.StrategyStatus, op string) (*bot.TransitionResult, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if s.Status == to {
		return &bot.TransitionResult{Strategy: s, Warning: "already " + string(to)}, nil
	}
	for _, st := range from {
		if s.Status == st {
			s.Status = to
			return &bot.TransitionResult{Strategy: s, Changed: true}, nil
		}
	}
	return nil, &bot.StateError{Op: op, StrategyID: id, From: s.Status}
}

func (f *fakeStrategies) Start(_ context.Context, id string) (*bot.TransitionResult, error) {
	return f.move(id, []models.StrategyStatus{models.StatusStopped, models.StatusPaused}, models.StatusActive, "start")
}

func (f *fakeStrategies) Pause(_ context.Context, id string) (*bot.TransitionResult, error) {
	return f.move(id, []models.StrategyStatus{models.StatusActive}, models.StatusPaused, "pause")
}

func (f *fakeStrategies) Stop(_ context.Context, id string) (*bot.TransitionResult, error) {
	return f.move(id, []models.StrategyStatus{models.StatusActive, models.StatusPaused}, models.StatusStopped, "stop")
}

func (f *fakeStrategies) Delete(_ context.Context, id string) error {
	s, ok := f.byID[id]
	if !ok {
		return models.ErrNotFound
	}
	if s.Status != models.StatusStopped {
		return &bot.StateError{Op: "delete", StrategyID: id, From: s.Status}
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeStrategies) Get(ctx context.Context, id string) (*models.GridStrategy, error) {
	return f.Load(ctx, id)
}

func (f *fakeStrategies) GetStrategyStatus(_ context.Context, id string) (*models.StrategyStatusView, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &models.StrategyStatusView{ID: s.ID, Status: s.Status, PendingOrders: 3}, nil
}

func (f *fakeStrategies) ListByWallet(context.Context, string) ([]models.GridStrategy, error) {
	return nil, nil
}

type fakePriceService struct {
	sample  models.PriceSample
	err     error
	watched []string
	alerts  map[string]models.PriceAlert
}

func (f *fakePriceService) GetCurrentPrice(_ context.Context, pair string) (*models.PriceSample, error) {
	if f.err != nil {
		return nil, f.err
	}
	s := f.sample
	s.Pair = pair
	return &s, nil
}

func (f *fakePriceService) GetPriceHistory(context.Context, string, string, int) ([]models.PriceSample, error) {
	return []models.PriceSample{f.sample}, nil
}

func (f *fakePriceService) StartMonitoring(pairs ...string) error {
	for _, p := range pairs {
		if _, _, err := models.SplitPair(p); err != nil {
			return fmt.Errorf("%w: %v", monitor.ErrInvalidPair, err)
		}
	}
	f.watched = append(f.watched, pairs...)
	return nil
}

func (f *fakePriceService) StopMonitoring(_ context.Context, pairs ...string) {
	if len(pairs) == 0 {
		f.watched = nil
	}
}

func (f *fakePriceService) WatchedPairs() []string {
	if f.watched == nil {
		return []string{}
	}
	return f.watched
}

func (f *fakePriceService) AddPriceAlert(pair string, cond models.AlertCondition, target float64, action monitor.AlertAction) (string, error) {
	if cond != models.AlertAbove && cond != models.AlertBelow {
		return "", monitor.ErrInvalidAlert
	}
	id := fmt.Sprintf("a-%d", len(f.alerts)+1)
	name := ""
	if action != nil {
		name = action.Name()
	}
	f.alerts[id] = models.PriceAlert{ID: id, Pair: pair, Condition: cond, TargetPrice: target, Action: name, Active: true}
	return id, nil
}

func (f *fakePriceService) RemovePriceAlert(_ context.Context, id string) bool {
	_, ok := f.alerts[id]
	delete(f.alerts, id)
	return ok
}

func (f *fakePriceService) Alerts(string) []models.PriceAlert {
	out := []models.PriceAlert{}
	for _, a := range f.alerts {
		out = append(out, a)
	}
	return out
}

type routeFixture struct {
	strategies *fakeStrategies
	prices     *fakePriceService
	eval       *risk.Evaluator
	handler    http.Handler
}

func newRouteFixture(t *testing.T) *routeFixture {
	t.Helper()
	strategies := &fakeStrategies{byID: map[string]*models.GridStrategy{
		"s1": {ID: "s1", Pair: "ETH/USDC", Network: "arbitrum", UpperPrice: 2000, LowerPrice: 1500,
			GridCount: 5, BaseAmount: 100, MaxPositionRatio: 0.5, Status: models.StatusStopped},
	}}
	eval, err := risk.NewEvaluator(risk.DefaultLimits(), strategies)
	require.NoError(t, err)
	prices := &fakePriceService{
		sample: models.PriceSample{Price: 1850, Timestamp: time.UnixMilli(1700000000000)},
		alerts: map[string]models.PriceAlert{},
	}
	srv := NewServer(Deps{
		Strategies: strategies,
		Risk:       eval,
		Prices:     prices,
		AlertActions: map[string]monitor.AlertAction{
			"callback": monitor.AlertFunc(func(context.Context, models.PriceAlert, models.PriceSample) error { return nil }),
		},
	}, Config{Port: 0})
	return &routeFixture{strategies: strategies, prices: prices, eval: eval, handler: srv.Handler()}
}

func (f *routeFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

const validStrategyBody = `{"walletAddress":"0x71C7656EC7ab88b098defB751B7401B5f6d8976F","pair":"ETH/USDC",
"network":"arbitrum","upperPrice":2000,"lowerPrice":1500,"gridCount":5,"baseAmount":100,"maxPositionRatio":0.5}`

func TestCreateStrategy(t *testing.T) {
	f := newRouteFixture(t)
	rr := f.do(t, http.MethodPost, "/v1/strategies", validStrategyBody)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var res bot.CreateResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, models.StatusStopped, res.Strategy.Status)
}

func TestCreateStrategy_ValidationErrors(t *testing.T) {
	f := newRouteFixture(t)
	rr := f.do(t, http.MethodPost, "/v1/strategies", `{"pair":"ETH/USDC","gridCount":1}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	var res validationResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.NotEmpty(t, res.Errors)
}

func TestCreateStrategy_RiskRejected(t *testing.T) {
	f := newRouteFixture(t)
	body := strings.Replace(validStrategyBody, `"baseAmount":100`, `"baseAmount":50000`, 1)
	rr := f.do(t, http.MethodPost, "/v1/strategies", body)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	var res riskRejectedResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.False(t, res.Assessment.IsApproved)
}

func TestCreateStrategy_UnknownFieldRejected(t *testing.T) {
	f := newRouteFixture(t)
	rr := f.do(t, http.MethodPost, "/v1/strategies", `{"bogus":1}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestValidateStrategyEndpoint(t *testing.T) {
	f := newRouteFixture(t)
	rr := f.do(t, http.MethodPost, "/v1/strategies/validate", validStrategyBody)
	require.Equal(t, http.StatusOK, rr.Code)

	var res struct {
		Valid      bool                   `json:"valid"`
		Errors     []string               `json:"errors"`
		Assessment *models.RiskAssessment `json:"assessment"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
	assert.True(t, res.Assessment.IsApproved)
}

func TestTransitions(t *testing.T) {
	f := newRouteFixture(t)

	rr := f.do(t, http.MethodPost, "/v1/strategies/s1/pause", "")
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = f.do(t, http.MethodPost, "/v1/strategies/s1/start", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, http.MethodDelete, "/v1/strategies/s1", "")
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = f.do(t, http.MethodPost, "/v1/strategies/s1/stop", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, http.MethodDelete, "/v1/strategies/s1", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = f.do(t, http.MethodGet, "/v1/strategies/s1", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStrategyStatusAndGrid(t *testing.T) {
	f := newRouteFixture(t)

	rr := f.do(t, http.MethodGet, "/v1/strategies/s1/status", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var v models.StrategyStatusView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
	assert.Equal(t, 3, v.PendingOrders)

	rr = f.do(t, http.MethodGet, "/v1/strategies/s1/grid", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"armed":false`)
}

func TestStrategyRisk(t *testing.T) {
	f := newRouteFixture(t)
	rr := f.do(t, http.MethodGet, "/v1/strategies/s1/risk", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"riskLevel"`)

	rr = f.do(t, http.MethodGet, "/v1/strategies/nope/risk", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListStrategies_RequiresWallet(t *testing.T) {
	f := newRouteFixture(t)
	rr := f.do(t, http.MethodGet, "/v1/strategies", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodGet, "/v1/strategies?wallet=0xabc", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestRiskLimits(t *testing.T) {
	f := newRouteFixture(t)

	rr := f.do(t, http.MethodPatch, "/v1/risk/limits", `{"maxPositionRatio":1.5}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, 0.8, f.eval.Limits().MaxPositionRatio)

	rr = f.do(t, http.MethodPatch, "/v1/risk/limits", `{"maxPositionRatio":0.6}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 0.6, f.eval.Limits().MaxPositionRatio)

	rr = f.do(t, http.MethodGet, "/v1/risk/limits", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var l risk.Limits
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &l))
	assert.Equal(t, 0.6, l.MaxPositionRatio)
}

func TestMaxPosition(t *testing.T) {
	f := newRouteFixture(t)
	rr := f.do(t, http.MethodPost, "/v1/risk/max-position",
		`{"config":{"upperPrice":2000,"lowerPrice":1000,"gridCount":10,"maxPositionRatio":0.5},"availableBalance":1000}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var res map[string]float64
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	// 1000 * 0.5 / 10 / (1 + 1)
	assert.InDelta(t, 25, res["maxPositionSize"], 1e-9)

	rr = f.do(t, http.MethodPost, "/v1/risk/max-position", `{"availableBalance":0}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestEmergencyStop(t *testing.T) {
	f := newRouteFixture(t)

	rr := f.do(t, http.MethodPost, "/v1/risk/emergency-stop", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var got []string
	f.eval.SetEmergencyHandler(func(_ context.Context, id string) error {
		got = append(got, id)
		return nil
	})
	rr = f.do(t, http.MethodPost, "/v1/risk/emergency-stop", `{"strategyId":"s1"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = f.do(t, http.MethodPost, "/v1/risk/emergency-stop", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"s1", ""}, got)

	f.eval.SetEmergencyHandler(func(context.Context, string) error { return errors.New("exchange down") })
	rr = f.do(t, http.MethodPost, "/v1/risk/emergency-stop", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "exchange down")
}

func TestPriceRoutes(t *testing.T) {
	f := newRouteFixture(t)

	rr := f.do(t, http.MethodGet, "/v1/prices/current", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodGet, "/v1/prices/current?pair=ETH/USDT", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var s models.PriceSample
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &s))
	assert.Equal(t, 1850.0, s.Price)

	rr = f.do(t, http.MethodGet, "/v1/prices/history?pair=ETH/USDT&timeframe=1h", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[{"t":1700000000000,"p":1850}]`, rr.Body.String())

	f.prices.err = fmt.Errorf("wrap: %w", monitor.ErrInvalidPair)
	rr = f.do(t, http.MethodGet, "/v1/prices/current?pair=bad", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMonitorPairs(t *testing.T) {
	f := newRouteFixture(t)

	rr := f.do(t, http.MethodPost, "/v1/monitor/pairs", `{"pairs":["ETH/USDT","BTC/USDT"]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `["ETH/USDT","BTC/USDT"]`, rr.Body.String())

	rr = f.do(t, http.MethodPost, "/v1/monitor/pairs", `{"pairs":["ETHUSDT"]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodDelete, "/v1/monitor/pairs", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestAlertRoutes(t *testing.T) {
	f := newRouteFixture(t)

	rr := f.do(t, http.MethodPost, "/v1/alerts", `{"pair":"ETH/USDT","condition":"above","targetPrice":1800,"action":"sms"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodPost, "/v1/alerts", `{"pair":"ETH/USDT","condition":"sideways","targetPrice":1800}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodPost, "/v1/alerts", `{"pair":"ETH/USDT","condition":"above","targetPrice":1800,"action":"callback"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	var created map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, "callback", f.prices.alerts[created["id"]].Action)

	rr = f.do(t, http.MethodDelete, "/v1/alerts/"+created["id"], "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = f.do(t, http.MethodDelete, "/v1/alerts/"+created["id"], "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHealth(t *testing.T) {
	f := newRouteFixture(t)
	rr := f.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var h healthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &h))
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "not configured", h.Services.Database)
}

package api

import (
	"net/http"
	"strings"

	"github.com/kjannette/trahn-gridcore/internal/models"
)

type gridResponse struct {
	StrategyID string `json:"strategyId"`
	Armed      bool   `json:"armed"`
	Levels     any    `json:"levels"`
}

type riskLevelResponse struct {
	StrategyID string           `json:"strategyId"`
	RiskLevel  models.RiskLevel `json:"riskLevel"`
}

func (s *Server) handleCreateStrategy(w http.ResponseWriter, r *http.Request) {
	var cfg models.StrategyConfig
	if err := decodeBody(r, &cfg, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.Strategies.Create(r.Context(), cfg)
	if err != nil {
		s.writeDomainError(w, "create strategy", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// handleValidateStrategy runs config validation and the risk assessment without storing anything.
func (s *Server) handleValidateStrategy(w http.ResponseWriter, r *http.Request) {
	var cfg models.StrategyConfig
	if err := decodeBody(r, &cfg, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v := s.Strategies.ValidateConfig(cfg)
	if v.Errors == nil {
		v.Errors = []string{}
	}
	if v.Warnings == nil {
		v.Warnings = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":      v.Valid(),
		"errors":     v.Errors,
		"warnings":   v.Warnings,
		"assessment": s.Risk.ValidateStrategy(cfg),
	})
}

func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	wallet := strings.TrimSpace(r.URL.Query().Get("wallet"))
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "wallet query parameter is required")
		return
	}
	out, err := s.Strategies.ListByWallet(r.Context(), wallet)
	if err != nil {
		s.writeDomainError(w, "list strategies", err)
		return
	}
	if out == nil {
		out = []models.GridStrategy{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	st, err := s.Strategies.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, "fetch strategy", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleDeleteStrategy(w http.ResponseWriter, r *http.Request) {
	if err := s.Strategies.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeDomainError(w, "delete strategy", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStrategyStatus(w http.ResponseWriter, r *http.Request) {
	v, err := s.Strategies.GetStrategyStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, "fetch strategy status", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleStrategyGrid(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.Strategies.Get(r.Context(), id); err != nil {
		s.writeDomainError(w, "fetch grid", err)
		return
	}
	resp := gridResponse{StrategyID: id, Levels: []any{}}
	if s.Grids != nil {
		if levels, ok := s.Grids.Grid(id); ok {
			resp.Armed = true
			resp.Levels = levels
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStrategyRisk(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	level, err := s.Risk.AssessCurrentRisk(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, "assess strategy risk", err)
		return
	}
	writeJSON(w, http.StatusOK, riskLevelResponse{StrategyID: id, RiskLevel: level})
}

func (s *Server) handleStrategyTrades(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.Trades == nil {
		writeJSON(w, http.StatusOK, []models.Trade{})
		return
	}
	trades, err := s.Trades.ListByStrategy(r.Context(), id, parseLimit(r, 100))
	if err != nil {
		s.writeDomainError(w, "fetch trades", err)
		return
	}
	if trades == nil {
		trades = []models.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleStrategyOrders(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.Orders == nil {
		writeJSON(w, http.StatusOK, []models.GridOrder{})
		return
	}
	orders, err := s.Orders.ListByStrategy(r.Context(), id, parseLimit(r, 100))
	if err != nil {
		s.writeDomainError(w, "fetch orders", err)
		return
	}
	if orders == nil {
		orders = []models.GridOrder{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleTransition(op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		ctx := r.Context()

		var (
			res any
			err error
		)
		switch op {
		case "start":
			res, err = s.Strategies.Start(ctx, id)
		case "pause":
			res, err = s.Strategies.Pause(ctx, id)
		case "stop":
			res, err = s.Strategies.Stop(ctx, id)
		default:
			writeError(w, http.StatusNotFound, "unknown operation")
			return
		}
		if err != nil {
			s.writeDomainError(w, op+" strategy", err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

package api

import (
	"net/http"
	"strings"

	"github.com/kjannette/trahn-gridcore/internal/models"
	"github.com/kjannette/trahn-gridcore/internal/monitor"
)

type priceJSON struct {
	T      int64   `json:"t"`
	P      float64 `json:"p"`
	Volume float64 `json:"volume24h,omitempty"`
}

type pairsRequest struct {
	Pairs []string `json:"pairs"`
}

type addAlertRequest struct {
	Pair        string                `json:"pair"`
	Condition   models.AlertCondition `json:"condition"`
	TargetPrice float64               `json:"targetPrice"`
	// Action names a configured alert action; empty only emits the alert event.
	Action string `json:"action,omitempty"`
}

func requirePair(w http.ResponseWriter, r *http.Request) (string, bool) {
	pair := strings.TrimSpace(r.URL.Query().Get("pair"))
	if pair == "" {
		writeError(w, http.StatusBadRequest, "pair query parameter is required")
		return "", false
	}
	return pair, true
}

func (s *Server) handleCurrentPrice(w http.ResponseWriter, r *http.Request) {
	pair, ok := requirePair(w, r)
	if !ok {
		return
	}
	sample, err := s.Prices.GetCurrentPrice(r.Context(), pair)
	if err != nil {
		s.writeDomainError(w, "fetch current price", err)
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

func (s *Server) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	pair, ok := requirePair(w, r)
	if !ok {
		return
	}
	timeframe := r.URL.Query().Get("timeframe")
	samples, err := s.Prices.GetPriceHistory(r.Context(), pair, timeframe, parseLimit(r, 100))
	if err != nil {
		s.writeDomainError(w, "fetch price history", err)
		return
	}

	out := make([]priceJSON, len(samples))
	for i, p := range samples {
		out[i] = priceJSON{T: p.Timestamp.UnixMilli(), P: p.Price, Volume: p.Volume24h}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleWatchedPairs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Prices.WatchedPairs())
}

func (s *Server) handleStartMonitoring(w http.ResponseWriter, r *http.Request) {
	var req pairsRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Pairs) == 0 {
		writeError(w, http.StatusBadRequest, "at least one pair is required")
		return
	}
	if err := s.Prices.StartMonitoring(req.Pairs...); err != nil {
		s.writeDomainError(w, "start monitoring", err)
		return
	}
	writeJSON(w, http.StatusOK, s.Prices.WatchedPairs())
}

// handleStopMonitoring stops the pairs in the body, or every pair when the body is empty.
func (s *Server) handleStopMonitoring(w http.ResponseWriter, r *http.Request) {
	var req pairsRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.Prices.StopMonitoring(r.Context(), req.Pairs...)
	writeJSON(w, http.StatusOK, s.Prices.WatchedPairs())
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Prices.Alerts(r.URL.Query().Get("pair")))
}

func (s *Server) handleAddAlert(w http.ResponseWriter, r *http.Request) {
	var req addAlertRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var action monitor.AlertAction
	if req.Action != "" {
		a, ok := s.AlertActions[req.Action]
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown alert action "+req.Action)
			return
		}
		action = a
	}

	id, err := s.Prices.AddPriceAlert(req.Pair, req.Condition, req.TargetPrice, action)
	if err != nil {
		s.writeDomainError(w, "add price alert", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleRemoveAlert(w http.ResponseWriter, r *http.Request) {
	if !s.Prices.RemovePriceAlert(r.Context(), r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

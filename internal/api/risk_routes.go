package api

import (
	"net/http"

	"github.com/kjannette/trahn-gridcore/internal/models"
	"github.com/kjannette/trahn-gridcore/internal/risk"
)

type maxPositionRequest struct {
	Config           models.StrategyConfig `json:"config"`
	AvailableBalance float64               `json:"availableBalance"`
}

type emergencyStopRequest struct {
	// StrategyID is optional; empty stops every active strategy.
	StrategyID string `json:"strategyId"`
}

func (s *Server) handleGetLimits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Risk.Limits())
}

func (s *Server) handleUpdateLimits(w http.ResponseWriter, r *http.Request) {
	var u risk.LimitsUpdate
	if err := decodeBody(r, &u, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limits, err := s.Risk.UpdateLimits(u)
	if err != nil {
		s.writeDomainError(w, "update risk limits", err)
		return
	}
	writeJSON(w, http.StatusOK, limits)
}

func (s *Server) handleMaxPosition(w http.ResponseWriter, r *http.Request) {
	var req maxPositionRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.AvailableBalance <= 0 {
		writeError(w, http.StatusBadRequest, "availableBalance must be positive")
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{
		"maxPositionSize": s.Risk.CalculateMaxPositionSize(req.Config, req.AvailableBalance),
	})
}

func (s *Server) handleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	var req emergencyStopRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.Risk.EmergencyStop(r.Context(), req.StrategyID); err != nil {
		s.writeDomainError(w, "emergency stop", err)
		return
	}
	target := req.StrategyID
	if target == "" {
		target = "all"
	}
	writeJSON(w, http.StatusOK, map[string]string{"stopped": target})
}

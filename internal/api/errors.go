package api

import (
	"errors"
	"net/http"

	"github.com/kjannette/trahn-gridcore/internal/bot"
	"github.com/kjannette/trahn-gridcore/internal/external"
	"github.com/kjannette/trahn-gridcore/internal/models"
	"github.com/kjannette/trahn-gridcore/internal/monitor"
	"github.com/kjannette/trahn-gridcore/internal/risk"
)

type validationResponse struct {
	Error    string   `json:"error"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

type riskRejectedResponse struct {
	Error      string                 `json:"error"`
	Assessment *models.RiskAssessment `json:"assessment"`
}

// writeDomainError maps service errors to HTTP responses. Unknown errors are
// logged and reported as 500 without their detail.
func (s *Server) writeDomainError(w http.ResponseWriter, op string, err error) {
	var verr *bot.ValidationError
	var rerr *bot.RiskRejectedError

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, validationResponse{
			Error: "strategy configuration is invalid", Errors: verr.Errors, Warnings: verr.Warnings,
		})
	case errors.As(err, &rerr):
		writeJSON(w, http.StatusUnprocessableEntity, riskRejectedResponse{
			Error: "strategy rejected by risk assessment", Assessment: rerr.Assessment,
		})
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, bot.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, monitor.ErrInvalidPair),
		errors.Is(err, monitor.ErrInvalidAlert),
		errors.Is(err, risk.ErrInvalidLimits),
		errors.Is(err, external.ErrUnsupportedPair):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, monitor.ErrNoHistory), errors.Is(err, risk.ErrNoEmergencyHandler):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.log().WithError(err).WithField("op", op).Error("request failed")
		writeError(w, http.StatusInternalServerError, "failed to "+op)
	}
}

package bot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kjannette/trahn-gridcore/internal/models"
)

var (
	ErrValidation        = errors.New("invalid strategy configuration")
	ErrRiskRejected      = errors.New("strategy rejected by risk assessment")
	ErrInvalidTransition = errors.New("invalid state transition")
)

// ValidationError carries every configuration problem found, not just the first.
type ValidationError struct {
	Errors   []string
	Warnings []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s", ErrValidation, strings.Join(e.Errors, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// RiskRejectedError carries the full assessment that blocked an action.
type RiskRejectedError struct {
	Assessment *models.RiskAssessment
}

func (e *RiskRejectedError) Error() string {
	var msgs []string
	for _, i := range e.Assessment.Issues {
		if i.Severity == models.SeverityCritical {
			msgs = append(msgs, i.Message)
		}
	}
	return fmt.Sprintf("%v (%s): %s", ErrRiskRejected, e.Assessment.RiskLevel, strings.Join(msgs, "; "))
}

func (e *RiskRejectedError) Unwrap() error { return ErrRiskRejected }

// StateError reports an operation that is not allowed from the strategy's current status.
type StateError struct {
	Op         string
	StrategyID string
	From       models.StrategyStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s strategy %s: not allowed while %s", e.Op, e.StrategyID, e.From)
}

func (e *StateError) Unwrap() error { return ErrInvalidTransition }

package bot

import (
	"slices"

	"github.com/kjannette/trahn-gridcore/internal/models"
)

// ValidTransitions lists the states each state may move to.
var ValidTransitions = map[models.StrategyStatus][]models.StrategyStatus{
	models.StatusStopped: {models.StatusActive},
	models.StatusActive:  {models.StatusPaused, models.StatusStopped},
	models.StatusPaused:  {models.StatusActive, models.StatusStopped},
}

func CanTransition(from, to models.StrategyStatus) bool {
	return slices.Contains(ValidTransitions[from], to)
}

// CanDelete reports whether a strategy in status s may be removed.
func CanDelete(s models.StrategyStatus) bool {
	return s == models.StatusStopped
}

package monitor

import (
	"context"
	"time"

	"github.com/kjannette/trahn-gridcore/internal/models"
)

type EventType string

const (
	EventPriceUpdate      EventType = "price_update"
	EventFetchError       EventType = "fetch_error"
	EventAlertTriggered   EventType = "alert_triggered"
	EventMonitoringHalted EventType = "monitoring_halted"
)

// Event is delivered to every handler registered with AddEventHandler.
type Event struct {
	Type     EventType
	Pair     string
	Sample   *models.PriceSample
	Alert    *models.PriceAlert
	Err      error
	Failures int
	Time     time.Time
}

// EventHandler runs inside the emitting pair's goroutine. ctx must be passed on
// to any StopMonitoring, UnsubscribeFromPrice or RemovePriceAlert it calls.
type EventHandler func(ctx context.Context, ev Event)

// PriceHandler receives every sample for the pair it subscribed to.
type PriceHandler func(ctx context.Context, sample models.PriceSample) error

// AlertAction is run once when its alert fires.
type AlertAction interface {
	Name() string
	Fire(ctx context.Context, alert models.PriceAlert, sample models.PriceSample) error
}

// AlertFunc adapts a function to AlertAction.
type AlertFunc func(ctx context.Context, alert models.PriceAlert, sample models.PriceSample) error

func (f AlertFunc) Name() string { return "callback" }

func (f AlertFunc) Fire(ctx context.Context, alert models.PriceAlert, sample models.PriceSample) error {
	return f(ctx, alert, sample)
}

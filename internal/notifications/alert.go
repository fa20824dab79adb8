package notifications

import (
	"context"
	"fmt"

	"github.com/kjannette/trahn-gridcore/internal/models"
)

// AlertAction posts a message to the webhook when a price alert fires.
type AlertAction struct {
	sender *Sender
}

func NewAlertAction(s *Sender) *AlertAction {
	return &AlertAction{sender: s}
}

func (a *AlertAction) Name() string { return "webhook" }

func (a *AlertAction) Fire(ctx context.Context, alert models.PriceAlert, sample models.PriceSample) error {
	return a.sender.Post(ctx, FormatAlert(alert, sample))
}

func FormatAlert(alert models.PriceAlert, sample models.PriceSample) string {
	return fmt.Sprintf("PRICE ALERT: %s is %s $%.2f (now $%.2f)",
		alert.Pair, alert.Condition, alert.TargetPrice, sample.Price)
}

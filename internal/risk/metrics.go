package risk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	assessmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gridcore",
		Subsystem: "risk",
		Name:      "assessments_total",
		Help:      "Risk assessments performed, by resulting level",
	}, []string{"level"})

	emergencyStopsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gridcore",
		Subsystem: "risk",
		Name:      "emergency_stops_total",
		Help:      "Emergency stops requested",
	})

	tradesBlockedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gridcore",
		Subsystem: "risk",
		Name:      "trades_blocked_total",
		Help:      "Trades rejected by the pre-trade guardian, by reason",
	}, []string{"reason"})
)

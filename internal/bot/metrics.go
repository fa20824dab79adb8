package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gridcore",
		Subsystem: "lifecycle",
		Name:      "transitions_total",
		Help:      "Strategy status changes, by target status",
	}, []string{"to"})

	tradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gridcore",
		Subsystem: "runner",
		Name:      "trades_total",
		Help:      "Grid fills executed, by side",
	}, []string{"side"})

	tradeFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gridcore",
		Subsystem: "runner",
		Name:      "trade_failures_total",
		Help:      "Triggered levels whose order could not be executed",
	})

	armedStrategies = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gridcore",
		Subsystem: "runner",
		Name:      "armed_strategies",
		Help:      "Strategies with an armed grid",
	})
)

package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gridcore",
		Subsystem: "monitor",
		Name:      "ticks_total",
		Help:      "Polling ticks that produced a sample",
	}, []string{"pair"})

	fetchFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gridcore",
		Subsystem: "monitor",
		Name:      "fetch_failures_total",
		Help:      "Price feed fetch failures",
	}, []string{"pair"})

	persistFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gridcore",
		Subsystem: "monitor",
		Name:      "persist_failures_total",
		Help:      "Price samples that could not be written to history",
	})

	alertsFiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gridcore",
		Subsystem: "monitor",
		Name:      "alerts_fired_total",
		Help:      "One-shot alerts that fired",
	}, []string{"pair", "condition"})

	callbackFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gridcore",
		Subsystem: "monitor",
		Name:      "callback_failures_total",
		Help:      "Subscriber, alert and event callbacks that returned an error or panicked",
	}, []string{"kind"})

	watchedPairs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gridcore",
		Subsystem: "monitor",
		Name:      "watched_pairs",
		Help:      "Pairs with an active polling task",
	})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gridcore",
		Subsystem: "monitor",
		Name:      "fetch_duration_seconds",
		Help:      "Price feed fetch latency",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
	})
)

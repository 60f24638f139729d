package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Cycle metrics served at /metrics by the monitoring HTTP server.
var (
	mtxCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optflow_cycles_total",
			Help: "Orchestration cycles by outcome",
		},
		[]string{"outcome"}, // completed|skipped
	)

	mtxOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optflow_plays_opened_total",
			Help: "Entry orders submitted",
		},
		[]string{"strategy"},
	)

	mtxClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optflow_plays_closed_total",
			Help: "Exit orders submitted, split by close reason",
		},
		[]string{"strategy", "reason"},
	)

	mtxErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optflow_strategy_errors_total",
			Help: "Strategies excluded from a cycle by an evaluation failure",
		},
		[]string{"strategy"},
	)

	mtxExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "optflow_plays_expired_total",
			Help: "Plays expired past their contract expiration",
		},
	)

	mtxCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "optflow_cycle_duration_seconds",
			Help:    "Wall time of one full cycle",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)
)

func init() {
	prometheus.MustRegister(mtxCycles, mtxOpened, mtxClosed, mtxErrors, mtxExpired, mtxCycleDuration)
}

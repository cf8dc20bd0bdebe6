// Package observability exposes Prometheus metrics for the backtest
// engine and run orchestrator: counters for runs/trades/warnings, a
// histogram for run duration, and gauges for in-flight concurrency.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backtest_runs_total",
			Help: "Backtest runs that reached a terminal status, labeled by that status (completed|failed|cancelled).",
		},
		[]string{"status"},
	)

	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "backtest_run_duration_seconds",
			Help:    "Wall-clock duration of one engine run from start to terminal status.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 16),
		},
	)

	BarsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "backtest_bars_processed_total",
			Help: "Total bars processed across all runs.",
		},
	)

	TradesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "backtest_trades_total",
			Help: "Total trades opened across all runs.",
		},
	)

	ExitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backtest_exits_total",
			Help: "Leg exits split by exit type (sl|tp1|be|reverse).",
		},
		[]string{"exit_type"},
	)

	WarningsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "backtest_warnings_total",
			Help: "Total warnings emitted by the engine across all runs.",
		},
	)

	RunsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "backtest_runs_in_flight",
			Help: "Number of runs currently RUNNING in the batch runner.",
		},
	)
)

func init() {
	prometheus.MustRegister(RunsTotal, RunDuration, BarsProcessed, TradesTotal, ExitsTotal, WarningsTotal, RunsInFlight)
}

// ObserveRunCompletion records a run's terminal status, duration, trade
// count, and warning count in one call.
func ObserveRunCompletion(status string, durationSeconds float64, tradesCount, warningsCount int) {
	RunsTotal.WithLabelValues(status).Inc()
	RunDuration.Observe(durationSeconds)
	TradesTotal.Add(float64(tradesCount))
	WarningsTotal.Add(float64(warningsCount))
}

// ObserveExit increments the per-exit-type counter. exitType should match
// types.ExitType's string form (sl, tp1, be, reverse).
func ObserveExit(exitType string) {
	ExitsTotal.WithLabelValues(exitType).Inc()
}

// RegisterHandler mounts the Prometheus text-exposition handler at
// /metrics on the provided mux.
func RegisterHandler(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())
}

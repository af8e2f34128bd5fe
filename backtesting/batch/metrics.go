package batch

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors updated by the Runner:
//   - backtest_runs_total{status}       runs by outcome (ok|liquidated|error)
//   - backtest_run_duration_seconds     wall time of one engine run
//   - backtest_candles_processed_total  candles consumed across runs
//   - backtest_final_cash{job}          final cash of the latest run of a job
//   - backtest_inflight_runs            runs currently executing
type Metrics struct {
	Runs             *prometheus.CounterVec
	RunDuration      prometheus.Histogram
	CandlesProcessed prometheus.Counter
	FinalCash        *prometheus.GaugeVec
	Inflight         prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backtest_runs_total",
				Help: "Backtest runs by outcome",
			},
			[]string{"status"},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "backtest_run_duration_seconds",
				Help:    "Wall time of a single backtest run",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
			},
		),
		CandlesProcessed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "backtest_candles_processed_total",
				Help: "Candles consumed by finished runs",
			},
		),
		FinalCash: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "backtest_final_cash",
				Help: "Final cash (realized + marked open position) of the latest run per job",
			},
			[]string{"job"},
		),
		Inflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "backtest_inflight_runs",
				Help: "Backtest runs currently executing",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.Runs, m.RunDuration, m.CandlesProcessed, m.FinalCash, m.Inflight)
	}
	return m
}

package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dizzycode.xyz/dca-backtest/backtesting/engine"
	"dizzycode.xyz/dca-backtest/internal/domain/value_objects"
	"dizzycode.xyz/dca-backtest/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Run statuses used as metric labels.
const (
	StatusOK         = "ok"
	StatusLiquidated = "liquidated"
	StatusError      = "error"
)

// Job is one named parameter set.
type Job struct {
	Name   string
	Config engine.StrategyConfig
}

// Result is the outcome of one Job. Err is set instead of Report when the
// engine rejected the job.
type Result struct {
	RunID    string
	Job      string
	Report   engine.Report
	Err      error
	Duration time.Duration
}

// Runner executes independent backtests concurrently. Each job gets its own
// engine and state; candles are shared read-only.
type Runner struct {
	concurrency int
	logger      *logger.Logger
	metrics     *Metrics
	newID       func() string
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithConcurrency caps the number of runs executing at once.
func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithLogger sets the runner logger.
func WithLogger(l *logger.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics sets the collectors updated per run.
func WithMetrics(m *Metrics) RunnerOption {
	return func(r *Runner) {
		r.metrics = m
	}
}

// NewRunner creates a Runner. The default concurrency is 4.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		concurrency: 4,
		logger:      logger.NewNopLogger(),
		metrics:     NewMetrics(nil),
		newID:       func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes jobs over candles and returns one Result per job, in job
// order. Invalid configurations and data are reported per Result; the
// returned error is non-nil only when ctx is cancelled, in which case jobs
// that had not started are missing from the results.
func (r *Runner) Run(ctx context.Context, candles []value_objects.Candle, jobs []Job) ([]Result, error) {
	results := make([]Result, len(jobs))
	started := make([]bool, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, job := range jobs {
		if gctx.Err() != nil {
			break
		}
		started[i] = true
		i, job := i, job
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = r.runOne(job, candles)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return compact(results, started), fmt.Errorf("batch cancelled: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return compact(results, started), fmt.Errorf("batch cancelled: %w", err)
	}
	return results, nil
}

func (r *Runner) runOne(job Job, candles []value_objects.Candle) Result {
	runID := r.newID()
	log := r.logger.With(zap.String("runId", runID), zap.String("job", job.Name))

	r.metrics.Inflight.Inc()
	defer r.metrics.Inflight.Dec()

	start := time.Now()
	result := Result{RunID: runID, Job: job.Name}

	e, err := engine.NewBacktestEngine(job.Config, engine.WithLogger(log))
	if err == nil {
		result.Report, err = e.Run(candles)
	}
	result.Duration = time.Since(start)
	r.metrics.RunDuration.Observe(result.Duration.Seconds())

	if err != nil {
		result.Err = err
		r.metrics.Runs.WithLabelValues(StatusError).Inc()
		log.Error("Backtest failed", err)
		return result
	}

	r.metrics.CandlesProcessed.Add(float64(len(candles)))
	r.metrics.FinalCash.WithLabelValues(job.Name).Set(result.Report.FinalCash)
	if result.Report.Liquidated {
		r.metrics.Runs.WithLabelValues(StatusLiquidated).Inc()
	} else {
		r.metrics.Runs.WithLabelValues(StatusOK).Inc()
	}
	return result
}

// compact drops the zero results of jobs that never started.
func compact(results []Result, started []bool) []Result {
	out := make([]Result, 0, len(results))
	for i, res := range results {
		if started[i] && res.RunID != "" {
			out = append(out, res)
		}
	}
	return out
}

// Errors joins the errors of all failed results.
func Errors(results []Result) error {
	var errs []error
	for _, res := range results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Job, res.Err))
		}
	}
	return errors.Join(errs...)
}

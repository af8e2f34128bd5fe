package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dizzycode.xyz/dca-backtest/backtesting/batch"
	"dizzycode.xyz/dca-backtest/backtesting/engine"
	"dizzycode.xyz/dca-backtest/backtesting/loader"
	"dizzycode.xyz/dca-backtest/pkg/logger"

	"go.uber.org/zap"
)

// RunRecord is a finished run as handed to result sinks.
type RunRecord struct {
	RunID     string        `json:"runId"`
	Job       string        `json:"job"`
	InstID    string        `json:"instId,omitempty"`
	Bar       string        `json:"bar,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	Report    engine.Report `json:"report"`
}

// ReportSink consumes finished runs (port implemented by infrastructure).
type ReportSink interface {
	Publish(ctx context.Context, record RunRecord) error
}

// RunRequest describes one batch of backtests over one market.
type RunRequest struct {
	Source loader.Source
	InstID string
	Bar    string
	Jobs   []batch.Job
}

// RunOutcome pairs every job with its record or error, in job order.
type RunOutcome struct {
	Records []RunRecord
	Results []batch.Result
	Candles int
}

// BacktestService loads candles, runs the jobs and forwards results to the
// configured sinks.
type BacktestService struct {
	runner *batch.Runner
	sinks  []ReportSink
	logger *logger.Logger
	now    func() time.Time
}

// NewBacktestService creates a BacktestService.
func NewBacktestService(runner *batch.Runner, log *logger.Logger, sinks ...ReportSink) *BacktestService {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &BacktestService{
		runner: runner,
		sinks:  sinks,
		logger: log,
		now:    time.Now,
	}
}

// Run executes req. Job failures are reported in the outcome; sink
// failures are logged and joined into the returned error without
// discarding the outcome.
func (s *BacktestService) Run(ctx context.Context, req RunRequest) (RunOutcome, error) {
	// 1. load candles
	candles, err := req.Source.Load(ctx)
	if err != nil {
		return RunOutcome{}, fmt.Errorf("failed to load candles: %w", err)
	}
	if err := engine.ValidateCandles(candles); err != nil {
		return RunOutcome{}, err
	}

	s.logger.Info("Starting backtest batch",
		zap.String("instId", req.InstID),
		zap.String("bar", req.Bar),
		zap.Int("candles", len(candles)),
		zap.Int("jobs", len(req.Jobs)),
	)

	// 2. run
	results, err := s.runner.Run(ctx, candles, req.Jobs)
	if err != nil {
		return RunOutcome{}, err
	}

	outcome := RunOutcome{Results: results, Candles: len(candles)}
	createdAt := s.now().UTC()

	// 3. publish successful runs
	var sinkErrs []error
	for _, res := range results {
		if res.Err != nil {
			continue
		}
		record := RunRecord{
			RunID:     res.RunID,
			Job:       res.Job,
			InstID:    req.InstID,
			Bar:       req.Bar,
			CreatedAt: createdAt,
			Report:    res.Report,
		}
		outcome.Records = append(outcome.Records, record)

		for _, sink := range s.sinks {
			if err := sink.Publish(ctx, record); err != nil {
				s.logger.Error("Failed to publish report", err,
					zap.String("runId", record.RunID),
					zap.String("sink", fmt.Sprintf("%T", sink)),
				)
				sinkErrs = append(sinkErrs, err)
			}
		}
	}

	return outcome, errors.Join(sinkErrs...)
}

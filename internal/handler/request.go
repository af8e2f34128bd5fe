package handler

import (
	"encoding/json"
	"fmt"
	"time"

	"dizzycode.xyz/dca-backtest/backtesting/batch"
	"dizzycode.xyz/dca-backtest/backtesting/engine"
	"dizzycode.xyz/dca-backtest/backtesting/simulator"
	"dizzycode.xyz/dca-backtest/internal/domain/value_objects"
)

// CandleDTO is the wire form of one bar.
type CandleDTO struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
}

// BacktestRequest is the body of POST /api/v1/backtests and the first
// message of a stream. Config fields that are absent keep the server
// defaults. Without inline candles the server loads InstID/Bar from its
// configured source.
type BacktestRequest struct {
	InstID      string          `json:"instId"`
	Bar         string          `json:"bar"`
	Config      json.RawMessage `json:"config,omitempty"`
	TakeProfits []float64       `json:"takeProfits,omitempty"`
	Candles     []CandleDTO     `json:"candles,omitempty"`
}

// strategyConfig overlays the request config on defaults.
func (r BacktestRequest) strategyConfig(defaults engine.StrategyConfig) (engine.StrategyConfig, error) {
	cfg := defaults
	if len(r.Config) > 0 {
		if err := json.Unmarshal(r.Config, &cfg); err != nil {
			return engine.StrategyConfig{}, fmt.Errorf("invalid config: %w", err)
		}
	}
	if d, err := value_objects.ParseDirection(string(cfg.Direction)); err == nil {
		cfg.Direction = d
	}
	if k, err := simulator.ParseExitPolicyKind(string(cfg.ExitPolicy)); err == nil {
		cfg.ExitPolicy = k
	}
	return cfg, nil
}

// jobs builds one job, or one per take-profit value, and validates each.
func (r BacktestRequest) jobs(defaults engine.StrategyConfig) ([]batch.Job, error) {
	cfg, err := r.strategyConfig(defaults)
	if err != nil {
		return nil, err
	}

	jobs := []batch.Job{{Name: "default", Config: cfg}}
	if len(r.TakeProfits) > 0 {
		jobs = batch.TakeProfitSweep(cfg, r.TakeProfits)
	}
	for _, job := range jobs {
		if err := job.Config.Validate(); err != nil {
			return nil, fmt.Errorf("job %s: %w", job.Name, err)
		}
	}
	return jobs, nil
}

func (r BacktestRequest) candles() ([]value_objects.Candle, error) {
	out := make([]value_objects.Candle, 0, len(r.Candles))
	for i, dto := range r.Candles {
		c, err := value_objects.NewCandle(dto.Open, dto.High, dto.Low, dto.Close, dto.Timestamp.UTC())
		if err != nil {
			return nil, &engine.DataError{Index: i, Time: dto.Timestamp, Reason: err.Error()}
		}
		out = append(out, c)
	}
	return out, nil
}

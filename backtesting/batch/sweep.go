package batch

import (
	"fmt"
	"strconv"
	"strings"

	"dizzycode.xyz/dca-backtest/backtesting/engine"
)

// TakeProfitSweep builds one job per take-profit value on top of base.
func TakeProfitSweep(base engine.StrategyConfig, takeProfits []float64) []Job {
	jobs := make([]Job, 0, len(takeProfits))
	for _, tp := range takeProfits {
		cfg := base
		cfg.TakeProfitPercent = tp
		jobs = append(jobs, Job{
			Name:   fmt.Sprintf("tp=%s%%", strconv.FormatFloat(tp, 'f', -1, 64)),
			Config: cfg,
		})
	}
	return jobs
}

// ParseFloatList parses a comma separated list such as "0.5,1,1.5".
func ParseFloatList(s string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", part, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Best returns the successful result with the highest final cash.
func Best(results []Result) (Result, bool) {
	var best Result
	found := false
	for _, res := range results {
		if res.Err != nil {
			continue
		}
		if !found || res.Report.FinalCash > best.Report.FinalCash {
			best = res
			found = true
		}
	}
	return best, found
}

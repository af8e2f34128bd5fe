package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"
	"time"

	"dizzycode.xyz/dca-backtest/backtesting/simulator"
	"dizzycode.xyz/dca-backtest/internal/domain/value_objects"
	"dizzycode.xyz/dca-backtest/pkg/logger"
	"dizzycode.xyz/dca-backtest/pkg/logger/strategies"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// bars builds daily candles from (open, high, low, close) quadruples.
func bars(ohlc ...[4]float64) []value_objects.Candle {
	out := make([]value_objects.Candle, len(ohlc))
	for i, b := range ohlc {
		out[i] = value_objects.MustCandle(b[0], b[1], b[2], b[3], day0.AddDate(0, 0, i))
	}
	return out
}

func scenarioConfig() StrategyConfig {
	return StrategyConfig{
		Direction:           value_objects.Long,
		InitialOrderSize:    100,
		SafetyOrderSize:     100,
		VolumeMultiplier:    1,
		SafetyOrdersCount:   1,
		PriceStepPercent:    5,
		PriceStepMultiplier: 1,
		TakeProfitPercent:   2,
		InitialCash:         1000,
		ExitPolicy:          simulator.FIFOPartial,
	}
}

func scenarioBars() []value_objects.Candle {
	return bars(
		[4]float64{100, 100, 100, 100},
		[4]float64{100, 101, 95, 99},
		[4]float64{96, 108, 96, 107},
	)
}

func run(t *testing.T, cfg StrategyConfig, candles []value_objects.Candle, opts ...Option) Report {
	t.Helper()
	e, err := NewBacktestEngine(cfg, opts...)
	require.NoError(t, err)
	report, err := e.Run(candles)
	require.NoError(t, err)
	return report
}

func assertCashConserved(t *testing.T, r Report) {
	t.Helper()
	want := r.InitialCash - r.Totals.Debits + r.Totals.Credits + r.Totals.OpenValue
	assert.InDelta(t, want, r.FinalCash, 1e-6, "cash conservation")
}

func TestBacktestEngine_ConcreteScenario(t *testing.T) {
	report := run(t, scenarioConfig(), scenarioBars())

	for _, trade := range report.Trades {
		t.Logf("%s %-6s price=%.4f base=%.6f cash=%.2f pnl=%.4f",
			trade.Time.Format("2006-01-02"), trade.Action, trade.Price, trade.BaseSize, trade.Cash, trade.PnL)
	}

	require.Len(t, report.Trades, 3)
	assert.Equal(t, ActionOpen, report.Trades[0].Action)
	assert.InDelta(t, 900.0, report.Trades[0].Cash, 1e-9)
	assert.Equal(t, ActionSafety, report.Trades[1].Action)
	assert.Equal(t, 95.0, report.Trades[1].Price)
	assert.InDelta(t, 1.0526315789, report.Trades[1].BaseSize, 1e-9)
	assert.InDelta(t, 800.0, report.Trades[1].Cash, 1e-9)
	assert.Equal(t, ActionClose, report.Trades[2].Action)
	assert.Equal(t, 102.0, report.Trades[2].Price)

	assert.InDelta(t, 902.0, report.Cash, 1e-9)
	require.Len(t, report.CompletedCycles, 1)
	assert.InDelta(t, 2.0, report.CompletedCycles[0].PnL, 1e-9)
	assert.Equal(t, day0.AddDate(0, 0, 2), report.CompletedCycles[0].Timestamp)

	assert.InDelta(t, 1014.6316, report.FinalCash, 1e-4)
	assert.False(t, report.Liquidated)

	summary := report.OpenPositionSummary
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.Count)
	assert.InDelta(t, 112.6316, summary.Value, 1e-4)
	assert.InDelta(t, 95.0, summary.AvgPrice, 1e-9)
	assert.InDelta(t, 96.9, summary.NextTakeProfitPrice, 1e-9)
	assert.Zero(t, summary.NextSafetyPrice, "safety orders exhausted for this cycle")

	assertCashConserved(t, report)
}

func TestBacktestEngine_ReportJSONShape(t *testing.T) {
	report := run(t, scenarioConfig(), scenarioBars())

	raw, err := json.Marshal(report)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	for _, key := range []string{"finalCash", "completedCycles", "openPositionSummary", "liquidated"} {
		assert.Contains(t, decoded, key)
	}
	assert.NotContains(t, decoded, "liquidation")

	summary := decoded["openPositionSummary"].(map[string]any)
	for _, key := range []string{"count", "value", "avgPrice", "nextTakeProfitPrice"} {
		assert.Contains(t, summary, key)
	}
}

func TestBacktestEngine_IdempotentReplay(t *testing.T) {
	cfg := scenarioConfig()
	cfg.SafetyOrdersCount = 5
	cfg.VolumeMultiplier = 1.5
	cfg.CommissionRate = 0.0005
	candles := randomWalk(500, 7)

	e, err := NewBacktestEngine(cfg)
	require.NoError(t, err)

	first, err := e.Run(candles)
	require.NoError(t, err)
	second, err := e.Run(candles)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(a, b), "reports differ between runs")
}

func TestBacktestEngine_SameBarReentry(t *testing.T) {
	cfg := scenarioConfig()
	cfg.SafetyOrdersCount = 0

	report := run(t, cfg, bars(
		[4]float64{100, 100, 100, 100},
		[4]float64{101, 103, 100, 102},
	))

	require.Len(t, report.Trades, 3)
	assert.Equal(t, []string{ActionOpen, ActionClose, ActionOpen},
		[]string{report.Trades[0].Action, report.Trades[1].Action, report.Trades[2].Action})
	assert.Equal(t, 101.0, report.Trades[2].Price)
	assert.Equal(t, 2, report.Trades[2].CycleID)
	assert.InDelta(t, 902.0, report.Cash, 1e-9)
	assert.InDelta(t, 902+100.0/101*102, report.FinalCash, 1e-9)
	assertCashConserved(t, report)
}

func TestBacktestEngine_ExitSkipsSafetyOrderOnSameBar(t *testing.T) {
	cfg := scenarioConfig()
	cfg.SafetyOrdersCount = 3

	report := run(t, cfg, bars(
		[4]float64{100, 100, 100, 100},
		[4]float64{100, 100, 95, 96}, // safety @95
		[4]float64{96, 102, 90, 91},  // lot0 TP @102; the 90.25 trigger is ignored
		[4]float64{91, 92, 90, 90.5}, // now the safety order fills
	))

	actions := make([]string, 0, len(report.Trades))
	for _, trade := range report.Trades {
		actions = append(actions, trade.Action)
	}
	assert.Equal(t, []string{ActionOpen, ActionSafety, ActionClose, ActionSafety}, actions)
	assert.InDelta(t, 90.25, report.Trades[3].Price, 1e-9)
	assert.Equal(t, 2, report.Trades[3].Level)
}

func TestBacktestEngine_SafetyBudgetSurvivesPartialExits(t *testing.T) {
	cfg := scenarioConfig()

	report := run(t, cfg, bars(
		[4]float64{100, 100, 100, 100},
		[4]float64{100, 100, 95, 96}, // safety @95
		[4]float64{96, 102, 93, 94},  // lot0 TP @102, lot1 stays open
		[4]float64{94, 95, 85, 86},   // 90.25 breached, budget already spent
	))

	actions := make([]string, 0, len(report.Trades))
	for _, trade := range report.Trades {
		actions = append(actions, trade.Action)
	}
	assert.Equal(t, []string{ActionOpen, ActionSafety, ActionClose}, actions)

	summary := report.OpenPositionSummary
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.Count)
	assert.InDelta(t, 95.0, summary.AvgPrice, 1e-9)
	assert.Zero(t, summary.NextSafetyPrice)
	assertCashConserved(t, report)
}

func TestBacktestEngine_HugeSafetyOrdersCount(t *testing.T) {
	for _, count := range []int{math.MaxInt, 1 << 40} {
		cfg := scenarioConfig()
		cfg.SafetyOrdersCount = count

		var report Report
		require.NotPanics(t, func() { report = run(t, cfg, scenarioBars()) })

		assert.Equal(t, count, report.Config.SafetyOrdersCount)
		assert.NotEmpty(t, report.Trades)
		assert.LessOrEqual(t, report.Metrics.MaxLedgerDepth, len(report.Trades))
		assertCashConserved(t, report)
	}
}

func TestBacktestEngine_SafetyOrderSizeOverflowIsSkipped(t *testing.T) {
	cfg := scenarioConfig()
	cfg.SafetyOrdersCount = 5
	cfg.VolumeMultiplier = 1e300

	var report Report
	require.NotPanics(t, func() {
		report = run(t, cfg, bars(
			[4]float64{100, 100, 100, 100},
			[4]float64{100, 100, 95, 95}, // safety @95, size 100
			[4]float64{95, 95, 90, 90},   // safety @90.25, size 1e302
			[4]float64{90, 90, 85, 85},   // next size overflows to +Inf
		))
	})

	require.Len(t, report.Trades, 3)
	assert.Equal(t, ActionSafety, report.Trades[2].Action)
	require.NotNil(t, report.OpenPositionSummary)
	assert.Equal(t, 3, report.OpenPositionSummary.Count)
}

func TestBacktestEngine_FullClose(t *testing.T) {
	cfg := scenarioConfig()
	cfg.ExitPolicy = simulator.FullClose

	report := run(t, cfg, bars(
		[4]float64{100, 100, 100, 100},
		[4]float64{100, 101, 95, 99},
		[4]float64{99, 100, 98, 99.5},
	))

	require.Len(t, report.CompletedCycles, 1)
	cycle := report.CompletedCycles[0]
	assert.Equal(t, simulator.FullClose, cycle.Policy)
	assert.Len(t, cycle.Lots, 2)
	assert.InDelta(t, 4.0, cycle.PnL, 1e-6)

	// whole ledger closed, then a new cycle opened at the same bar's open
	require.NotNil(t, report.OpenPositionSummary)
	assert.Equal(t, 1, report.OpenPositionSummary.Count)
	assert.InDelta(t, 99.0, report.OpenPositionSummary.AvgPrice, 1e-9)
	assert.InDelta(t, 94.05, report.OpenPositionSummary.NextSafetyPrice, 1e-9)
	assert.InDelta(t, 904.0, report.Cash, 1e-6)
	assertCashConserved(t, report)
}

func TestBacktestEngine_Short(t *testing.T) {
	cfg := scenarioConfig()
	cfg.Direction = value_objects.Short

	report := run(t, cfg, bars(
		[4]float64{100, 100, 100, 100},
		[4]float64{100, 105, 99, 104},
		[4]float64{104, 104, 97, 98},
	))

	require.Len(t, report.Trades, 3)
	assert.Equal(t, 105.0, report.Trades[1].Price)
	assert.Equal(t, 98.0, report.Trades[2].Price)

	require.Len(t, report.CompletedCycles, 1)
	assert.InDelta(t, 2.0, report.CompletedCycles[0].PnL, 1e-9)
	assert.InDelta(t, 902.0, report.Cash, 1e-9)

	// the remaining lot adds base × last close: 100/105 × 98
	assert.InDelta(t, 100.0/105*98, report.Totals.OpenValue, 1e-9)
	assert.InDelta(t, 902+100.0/105*98, report.FinalCash, 1e-9)

	summary := report.OpenPositionSummary
	require.NotNil(t, summary)
	assert.InDelta(t, report.Totals.OpenValue, summary.Value, 1e-9)
	// 100 + (105 - 98) × 100/105
	assert.InDelta(t, 100+7*100.0/105, summary.MarkedValue, 1e-9)
	assert.InDelta(t, 7*100.0/105, summary.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 102.9, summary.NextTakeProfitPrice, 1e-9)
	assertCashConserved(t, report)
}

func TestBacktestEngine_ShortFinalCashIsBaseTimesClose(t *testing.T) {
	cfg := scenarioConfig()
	cfg.Direction = value_objects.Short
	cfg.SafetyOrdersCount = 0

	report := run(t, cfg, bars(
		[4]float64{100, 100, 100, 100},
		[4]float64{110, 120, 110, 120},
	))

	require.Len(t, report.Trades, 1)
	assert.InDelta(t, 900.0, report.Cash, 1e-9)
	assert.InDelta(t, 120.0, report.Totals.OpenValue, 1e-9)
	assert.InDelta(t, 1020.0, report.FinalCash, 1e-9)

	summary := report.OpenPositionSummary
	require.NotNil(t, summary)
	assert.InDelta(t, 120.0, summary.Value, 1e-9)
	assert.InDelta(t, 80.0, summary.MarkedValue, 1e-9)
	assert.InDelta(t, -20.0, summary.UnrealizedPnL, 1e-9)
	assertCashConserved(t, report)
}

func TestBacktestEngine_LongMarkedValueEqualsValue(t *testing.T) {
	report := run(t, scenarioConfig(), scenarioBars())

	summary := report.OpenPositionSummary
	require.NotNil(t, summary)
	assert.Equal(t, summary.Value, summary.MarkedValue)
}

func TestBacktestEngine_Commission(t *testing.T) {
	cfg := scenarioConfig()
	cfg.CommissionRate = 0.001

	report := run(t, cfg, scenarioBars())

	assert.InDelta(t, 1000-100.1-100.1+(102-0.102), report.Cash, 1e-9)
	require.Len(t, report.CompletedCycles, 1)
	assert.InDelta(t, 2.0, report.CompletedCycles[0].PnL, 1e-9)
	assert.InDelta(t, 2-0.1-0.102, report.CompletedCycles[0].NetPnL, 1e-9)
	assert.InDelta(t, 0.302, report.Totals.Fees, 1e-9)
	assert.InDelta(t, 0.302, report.Metrics.TotalFeesPaid, 1e-9)
	assertCashConserved(t, report)
}

func TestBacktestEngine_LiquidationIsTerminal(t *testing.T) {
	cfg := scenarioConfig()
	cfg.SafetyOrdersCount = 0
	cfg.TakeProfitPercent = 10
	cfg.IsFutures = true
	cfg.Leverage = 10

	mem := strategies.NewMemory()
	log := logger.NewLogger("test", []strategies.Strategy{mem})

	report := run(t, cfg, bars(
		[4]float64{100, 100, 100, 100},
		[4]float64{95, 96, 91, 92},     // 91 > 90.1
		[4]float64{92, 111, 90, 91},    // liquidation checked before the 110 take-profit
		[4]float64{91, 120, 91, 115},   // no-op
		[4]float64{115, 130, 115, 125}, // no-op
	), WithLogger(log))

	assert.True(t, report.Liquidated)
	require.NotNil(t, report.Liquidation)
	assert.InDelta(t, 90.1, report.Liquidation.Price, 1e-9)
	assert.InDelta(t, -9.9, report.Liquidation.PnL, 1e-9)
	assert.InDelta(t, 990.1, report.Liquidation.Equity, 1e-9)
	assert.Equal(t, day0.AddDate(0, 0, 2), report.Liquidation.Timestamp)

	require.Len(t, report.Trades, 2)
	assert.Equal(t, ActionLiquidation, report.Trades[1].Action)
	assert.Empty(t, report.CompletedCycles)
	assert.Nil(t, report.OpenPositionSummary)
	assert.InDelta(t, 990.1, report.FinalCash, 1e-9)
	assertCashConserved(t, report)

	assert.Contains(t, mem.Messages(), "Position liquidated")
}

func TestBacktestEngine_ShortLiquidation(t *testing.T) {
	cfg := scenarioConfig()
	cfg.Direction = value_objects.Short
	cfg.SafetyOrdersCount = 0
	cfg.IsFutures = true
	cfg.Leverage = 5
	cfg.MarginBuffer = 0.5

	report := run(t, cfg, bars(
		[4]float64{100, 100, 100, 100},
		[4]float64{105, 110, 104, 109},
	))

	require.True(t, report.Liquidated)
	assert.InDelta(t, 110.0, report.Liquidation.Price, 1e-9)
	assert.InDelta(t, -10.0, report.Liquidation.PnL, 1e-9)
}

func TestBacktestEngine_ObserverSeesEveryTrade(t *testing.T) {
	var seen []TradeLog
	report := run(t, scenarioConfig(), scenarioBars(), WithObserver(func(tl TradeLog) {
		seen = append(seen, tl)
	}))
	assert.Equal(t, report.Trades, seen)
}

// ===== properties over pseudo-random markets =====

func randomWalk(n int, seed int64) []value_objects.Candle {
	rng := rand.New(rand.NewSource(seed))
	out := make([]value_objects.Candle, n)
	price := 100.0
	for i := range out {
		open := price
		close := open * (1 + (rng.Float64()-0.5)*0.08)
		high := max(open, close) * (1 + rng.Float64()*0.03)
		low := min(open, close) * (1 - rng.Float64()*0.03)
		out[i] = value_objects.MustCandle(open, high, low, close, day0.Add(time.Duration(i)*time.Hour))
		price = close
	}
	return out
}

func propertyConfigs() map[string]StrategyConfig {
	base := scenarioConfig()
	base.SafetyOrdersCount = 4
	base.PriceStepPercent = 1.5
	base.PriceStepMultiplier = 1.2
	base.VolumeMultiplier = 1.4
	base.TakeProfitPercent = 1
	base.CommissionRate = 0.0005

	fullClose := base
	fullClose.ExitPolicy = simulator.FullClose

	short := base
	short.Direction = value_objects.Short

	futures := base
	futures.IsFutures = true
	futures.Leverage = 3

	return map[string]StrategyConfig{
		"long fifo":       base,
		"long full close": fullClose,
		"short fifo":      short,
		"futures 3x":      futures,
	}
}

func TestBacktestEngine_Properties(t *testing.T) {
	for name, cfg := range propertyConfigs() {
		for seed := int64(1); seed <= 5; seed++ {
			candles := randomWalk(400, seed)
			report := run(t, cfg, candles)

			t.Run(name, func(t *testing.T) {
				assertCashConserved(t, report)
				assert.LessOrEqual(t, report.Metrics.MaxLedgerDepth, cfg.SafetyOrdersCount+1, "bounded depth")
				assertFIFO(t, cfg, report)
				assertTerminalLiquidation(t, report)
			})
		}
	}
}

// assertFIFO replays the trade log: every FIFO exit must close the oldest
// open lot.
func assertFIFO(t *testing.T, cfg StrategyConfig, r Report) {
	t.Helper()
	if cfg.ExitPolicy != simulator.FIFOPartial {
		return
	}
	var open []int
	for _, trade := range r.Trades {
		switch trade.Action {
		case ActionOpen, ActionSafety:
			open = append(open, trade.Level)
		case ActionClose:
			require.NotEmpty(t, open)
			assert.Equal(t, open[0], trade.Level, "trade %d closed a lot that was not the oldest", trade.TradeID)
			open = open[1:]
		case ActionLiquidation:
			open = nil
		}
	}
}

func assertTerminalLiquidation(t *testing.T, r Report) {
	t.Helper()
	if !r.Liquidated {
		return
	}
	last := r.Trades[len(r.Trades)-1]
	assert.Equal(t, ActionLiquidation, last.Action, "no trades after liquidation")
	assert.Equal(t, r.Liquidation.Equity, r.FinalCash)
}

// ===== errors =====

func TestNewBacktestEngine_ConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*StrategyConfig)
		field  string
	}{
		{name: "negative safety count", mutate: func(c *StrategyConfig) { c.SafetyOrdersCount = -1 }, field: "safetyOrdersCount"},
		{name: "zero initial order", mutate: func(c *StrategyConfig) { c.InitialOrderSize = 0 }, field: "initialOrderSize"},
		{name: "negative safety size", mutate: func(c *StrategyConfig) { c.SafetyOrderSize = -5 }, field: "safetyOrderSize"},
		{name: "zero step", mutate: func(c *StrategyConfig) { c.PriceStepPercent = 0 }, field: "priceStepPercent"},
		{name: "zero take profit", mutate: func(c *StrategyConfig) { c.TakeProfitPercent = 0 }, field: "takeProfitPercent"},
		{name: "zero cash", mutate: func(c *StrategyConfig) { c.InitialCash = 0 }, field: "initialCash"},
		{name: "volume multiplier below one", mutate: func(c *StrategyConfig) { c.VolumeMultiplier = 0.5 }, field: "volumeMultiplier"},
		{name: "step multiplier below one", mutate: func(c *StrategyConfig) { c.PriceStepMultiplier = 0.9 }, field: "priceStepMultiplier"},
		{name: "futures without leverage", mutate: func(c *StrategyConfig) { c.IsFutures = true; c.Leverage = 0.5 }, field: "leverage"},
		{name: "unknown direction", mutate: func(c *StrategyConfig) { c.Direction = "Sideways" }, field: "direction"},
		{name: "unknown exit policy", mutate: func(c *StrategyConfig) { c.ExitPolicy = "TRAILING" }, field: "exitPolicy"},
		{name: "negative commission", mutate: func(c *StrategyConfig) { c.CommissionRate = -0.1 }, field: "commissionRate"},
		{name: "buffer above one", mutate: func(c *StrategyConfig) { c.MarginBuffer = 1.5 }, field: "marginBuffer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := scenarioConfig()
			tt.mutate(&cfg)

			_, err := NewBacktestEngine(cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)

			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestStrategyConfig_ValidateJoinsErrors(t *testing.T) {
	cfg := scenarioConfig()
	cfg.InitialCash = 0
	cfg.TakeProfitPercent = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initialCash")
	assert.Contains(t, err.Error(), "takeProfitPercent")

	assert.NoError(t, DefaultStrategyConfig().Validate())
	assert.NoError(t, scenarioConfig().Validate(), "leverage is ignored for spot")
}

func TestBacktestEngine_DataErrors(t *testing.T) {
	e, err := NewBacktestEngine(scenarioConfig())
	require.NoError(t, err)

	tests := []struct {
		name    string
		candles []value_objects.Candle
		reason  string
	}{
		{name: "empty", candles: nil, reason: "empty"},
		{
			name: "repeated timestamp",
			candles: []value_objects.Candle{
				value_objects.MustCandle(1, 1, 1, 1, day0),
				value_objects.MustCandle(1, 1, 1, 1, day0),
			},
			reason: "does not increase",
		},
		{
			name: "out of order",
			candles: []value_objects.Candle{
				value_objects.MustCandle(1, 1, 1, 1, day0.Add(time.Hour)),
				value_objects.MustCandle(1, 1, 1, 1, day0),
			},
			reason: "does not increase",
		},
		{name: "zero value candle", candles: []value_objects.Candle{{}}, reason: "must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Run(tt.candles)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidData)

			var dataErr *DataError
			require.True(t, errors.As(err, &dataErr))
			assert.Contains(t, dataErr.Error(), tt.reason)
		})
	}
}

func TestWriteTradeLogCSV(t *testing.T) {
	report := run(t, scenarioConfig(), scenarioBars())

	var buf bytes.Buffer
	require.NoError(t, WriteTradeLogCSV(&buf, report.Trades))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "TradeID,CycleID,Time,Action"))
	assert.Contains(t, lines[2], "SAFETY")
	assert.Contains(t, lines[3], "2024-01-03 00:00:00,CLOSE,102.00000000")
}

package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsCalculator_Calculate(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mc := NewMetricsCalculator(1000)

	// ===== fills =====
	mc.RecordFill(0.05, false, 1)
	mc.RecordFill(0.05, true, 2)
	mc.RecordFill(0.05, true, 3)

	// ===== exits: one win, one loss =====
	mc.RecordClose(ClosedTrade{
		OpenTime:  start,
		CloseTime: start.Add(2 * time.Hour),
		GrossPnL:  2,
		NetPnL:    1.9,
	}, 0.05)
	mc.RecordClose(ClosedTrade{
		OpenTime:  start,
		CloseTime: start.Add(4 * time.Hour),
		GrossPnL:  -1,
		NetPnL:    -1.1,
	}, 0.05)

	result := mc.Calculate(1010, -0.9)
	t.Logf("result: %+v", result)

	assert.Equal(t, 1000.0, result.InitialBalance)
	assert.Equal(t, 3, result.TotalOpenedTrades)
	assert.Equal(t, 2, result.SafetyOrders)
	assert.Equal(t, 3, result.MaxLedgerDepth)
	assert.Equal(t, 2, result.TotalClosedTrades)
	assert.InDelta(t, 1.0, result.TotalProfitGross, 1e-12)
	assert.InDelta(t, 0.15, result.TotalFeesOpen, 1e-12)
	assert.InDelta(t, 0.10, result.TotalFeesClose, 1e-12)
	assert.InDelta(t, 0.25, result.TotalFeesPaid, 1e-12)
	assert.InDelta(t, 10.0, result.NetProfit, 1e-12)
	assert.InDelta(t, 1.0, result.TotalReturn, 1e-12)
	assert.InDelta(t, 50.0, result.WinRate, 1e-12)
	assert.InDelta(t, 1.9/2.0, result.ProfitFactor, 1e-12)
	assert.Equal(t, 3*time.Hour, result.AvgHoldDuration)
	assert.Equal(t, 1, result.WinningTrades)
	assert.Equal(t, 1, result.LosingTrades)
}

func TestMetricsCalculator_ProfitFactorCap(t *testing.T) {
	mc := NewMetricsCalculator(100)
	mc.RecordClose(ClosedTrade{NetPnL: 5, GrossPnL: 5}, 0)

	result := mc.Calculate(105, 0)
	assert.Equal(t, 999.99, result.ProfitFactor)

	empty := NewMetricsCalculator(100).Calculate(100, 0)
	assert.Equal(t, 0.0, empty.ProfitFactor)
	assert.Equal(t, 0.0, empty.WinRate)
	assert.Equal(t, time.Duration(0), empty.AvgHoldDuration)
}

func TestMetricsCalculator_MaxDrawdown(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mc := NewMetricsCalculator(1000)

	for i, equity := range []float64{1000, 1100, 990, 1050, 880, 1200} {
		mc.RecordEquity(start.Add(time.Duration(i)*time.Hour), equity)
	}

	result := mc.Calculate(1200, 0)
	// peak 1100 -> trough 880
	assert.InDelta(t, 20.0, result.MaxDrawdown, 1e-9)
	assert.Len(t, mc.GetEquitySnapshots(), 6)
}

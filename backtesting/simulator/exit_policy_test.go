package simulator

import (
	"testing"
	"time"

	"dizzycode.xyz/dca-backtest/internal/domain/value_objects"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func candle(o, h, l, c float64) value_objects.Candle {
	return value_objects.MustCandle(o, h, l, c, t0)
}

func longLedger(t *testing.T) *OrderLedger {
	t.Helper()
	ledger := NewOrderLedger(3)
	require.NoError(t, ledger.Push(Lot{Price: 100, BaseSize: 1, QuoteSize: 100, Level: 0}))
	require.NoError(t, ledger.Push(Lot{Price: 95, BaseSize: 100.0 / 95, QuoteSize: 100, Level: 1}))
	return ledger
}

func TestParseExitPolicyKind(t *testing.T) {
	kind, err := ParseExitPolicyKind("fifo_partial")
	require.NoError(t, err)
	assert.Equal(t, FIFOPartial, kind)

	kind, err = ParseExitPolicyKind("FULL_CLOSE")
	require.NoError(t, err)
	assert.Equal(t, FullClose, kind)

	_, err = ParseExitPolicyKind("trailing")
	assert.Error(t, err)

	_, err = NewExitPolicy("trailing", value_objects.Long, 1)
	assert.Error(t, err)
}

func TestFIFOPartial_ClosesOnlyOldestLot(t *testing.T) {
	policy, err := NewExitPolicy(FIFOPartial, value_objects.Long, 2)
	require.NoError(t, err)
	ledger := longLedger(t)

	target, ok := policy.TargetPrice(ledger)
	require.True(t, ok)
	assert.Equal(t, 102.0, target)

	// high 108 crosses both lots' targets but only the oldest closes.
	exit, err := policy.Apply(ledger, candle(96, 108, 96, 107))
	require.NoError(t, err)
	require.NotNil(t, exit)

	assert.Equal(t, ReasonTakeProfit, exit.Reason)
	assert.Equal(t, 102.0, exit.Price)
	require.Len(t, exit.Lots, 1)
	assert.Equal(t, 0, exit.Lots[0].Level)
	assert.InDelta(t, 2.0, exit.PnL, 1e-9)
	assert.InDelta(t, 102.0, exit.Proceeds, 1e-9)
	assert.InDelta(t, 2.0, exit.PnLPercent, 1e-9)

	assert.Equal(t, 1, ledger.Len())
	remaining, _ := ledger.Oldest()
	assert.Equal(t, 95.0, remaining.Price)
}

func TestFIFOPartial_NoExitBelowTarget(t *testing.T) {
	policy, err := NewExitPolicy(FIFOPartial, value_objects.Long, 2)
	require.NoError(t, err)
	ledger := longLedger(t)

	exit, err := policy.Apply(ledger, candle(100, 101.99, 95, 99))
	require.NoError(t, err)
	assert.Nil(t, exit)
	assert.Equal(t, 2, ledger.Len())
}

func TestFullClose_ClosesWholeLedgerAtAverageTarget(t *testing.T) {
	policy, err := NewExitPolicy(FullClose, value_objects.Long, 2)
	require.NoError(t, err)
	ledger := longLedger(t)

	avg := ledger.TotalQuote() / ledger.TotalBase()
	target, ok := policy.TargetPrice(ledger)
	require.True(t, ok)
	assert.InDelta(t, avg*1.02, target, 1e-9)
	t.Logf("avg=%.6f target=%.6f", avg, target)

	exit, err := policy.Apply(ledger, candle(98, 100, 97, 99.5))
	require.NoError(t, err)
	require.NotNil(t, exit)

	assert.True(t, ledger.IsEmpty())
	assert.Len(t, exit.Lots, 2)
	assert.InDelta(t, 200.0, exit.QuoteSize, 1e-9)
	// aggregate pnl at target equals tp% of the total notional
	assert.InDelta(t, 4.0, exit.PnL, 1e-6)
	assert.InDelta(t, exit.QuoteSize+exit.PnL, exit.Proceeds, 1e-12)
}

func TestExitPolicy_ShortUsesLowAndInvertsPnL(t *testing.T) {
	policy, err := NewExitPolicy(FIFOPartial, value_objects.Short, 2)
	require.NoError(t, err)

	ledger := NewOrderLedger(2)
	require.NoError(t, ledger.Push(Lot{Price: 100, BaseSize: 1, QuoteSize: 100, Level: 0}))

	target, _ := policy.TargetPrice(ledger)
	assert.Equal(t, 98.0, target)

	// high far above target does not matter for a short take-profit
	exit, err := policy.Apply(ledger, candle(100, 120, 99, 101))
	require.NoError(t, err)
	assert.Nil(t, exit)

	exit, err = policy.Apply(ledger, candle(100, 100, 97, 99))
	require.NoError(t, err)
	require.NotNil(t, exit)
	assert.InDelta(t, 2.0, exit.PnL, 1e-9)
	assert.InDelta(t, 102.0, exit.Proceeds, 1e-9)
}

func TestCloseAll_EmptyLedger(t *testing.T) {
	_, err := CloseAll(NewOrderLedger(1), value_objects.Long, ReasonTakeProfit, 100, t0)
	assert.ErrorIs(t, err, ErrEmptyLedger)
}

package metrics

import (
	"time"
)

// BacktestResult holds the performance figures of one run.
type BacktestResult struct {
	InitialBalance float64 `json:"initialBalance"`
	FinalEquity    float64 `json:"finalEquity"` // realized cash + marked open position

	// Positions
	TotalOpenedTrades int `json:"totalOpenedTrades"` // initial + safety fills
	SafetyOrders      int `json:"safetyOrders"`
	TotalClosedTrades int `json:"totalClosedTrades"` // exit events, liquidation included
	MaxLedgerDepth    int `json:"maxLedgerDepth"`

	// Trading
	TotalProfitGross float64       `json:"totalProfitGross"` // realized PnL before commission
	TotalFeesOpen    float64       `json:"totalFeesOpen"`
	TotalFeesClose   float64       `json:"totalFeesClose"`
	TotalFeesPaid    float64       `json:"totalFeesPaid"`
	UnrealizedPnL    float64       `json:"unrealizedPnl"`
	NetProfit        float64       `json:"netProfit"`
	TotalReturn      float64       `json:"totalReturn"` // %
	ProfitFactor     float64       `json:"profitFactor"`
	WinRate          float64       `json:"winRate"` // %
	AvgHoldDuration  time.Duration `json:"avgHoldDuration"`
	MaxDrawdown      float64       `json:"maxDrawdown"` // %

	WinningTrades int     `json:"winningTrades"`
	LosingTrades  int     `json:"losingTrades"`
	TotalProfit   float64 `json:"totalProfit"` // Σ winning net PnL
	TotalLoss     float64 `json:"totalLoss"`   // Σ |losing net PnL|
}

// EquitySnapshot is the marked equity at the close of one bar.
type EquitySnapshot struct {
	Time   time.Time
	Equity float64
}

// ClosedTrade is one exit event as seen by the calculator.
type ClosedTrade struct {
	OpenTime  time.Time // open time of the oldest closed lot
	CloseTime time.Time
	GrossPnL  float64
	NetPnL    float64 // after open and close commission
}

// MetricsCalculator accumulates fills, exits and equity snapshots during a
// run and derives the summary figures at the end.
type MetricsCalculator struct {
	initialBalance  float64
	equitySnapshots []EquitySnapshot
	closedTrades    []ClosedTrade

	openedTrades  int
	safetyOrders  int
	maxDepth      int
	feesOpen      float64
	feesClose     float64
	grossRealized float64
}

// NewMetricsCalculator creates a calculator for a run starting at initialBalance.
func NewMetricsCalculator(initialBalance float64) *MetricsCalculator {
	return &MetricsCalculator{
		initialBalance:  initialBalance,
		equitySnapshots: make([]EquitySnapshot, 0),
		closedTrades:    make([]ClosedTrade, 0),
	}
}

// RecordEquity appends an equity snapshot (used for max drawdown).
func (mc *MetricsCalculator) RecordEquity(timestamp time.Time, equity float64) {
	mc.equitySnapshots = append(mc.equitySnapshots, EquitySnapshot{
		Time:   timestamp,
		Equity: equity,
	})
}

// RecordFill registers a filled order. depth is the ledger length after the fill.
func (mc *MetricsCalculator) RecordFill(fee float64, safety bool, depth int) {
	mc.openedTrades++
	if safety {
		mc.safetyOrders++
	}
	if depth > mc.maxDepth {
		mc.maxDepth = depth
	}
	mc.feesOpen += fee
}

// RecordClose registers an exit event.
func (mc *MetricsCalculator) RecordClose(trade ClosedTrade, closeFee float64) {
	mc.closedTrades = append(mc.closedTrades, trade)
	mc.grossRealized += trade.GrossPnL
	mc.feesClose += closeFee
}

// Calculate derives the result.
//
// Parameters:
//   - finalEquity: realized cash plus the open position marked to the last close
//   - unrealizedPnL: PnL of the open position at the last close
func (mc *MetricsCalculator) Calculate(finalEquity, unrealizedPnL float64) BacktestResult {
	totalTrades := len(mc.closedTrades)
	totalFeesPaid := mc.feesOpen + mc.feesClose

	// 1. Net profit is measured on equity so it always agrees with final cash.
	netProfit := finalEquity - mc.initialBalance

	totalReturn := 0.0
	if mc.initialBalance > 0 {
		totalReturn = (netProfit / mc.initialBalance) * 100
	}

	// 2. Win rate and profit factor, unrealized PnL included in the factor
	winningTrades := 0
	losingTrades := 0
	totalProfit := 0.0
	totalLoss := 0.0
	var totalHold time.Duration

	for _, closed := range mc.closedTrades {
		if closed.NetPnL > 0 {
			winningTrades++
			totalProfit += closed.NetPnL
		} else if closed.NetPnL < 0 {
			losingTrades++
			totalLoss += -closed.NetPnL
		}
		totalHold += closed.CloseTime.Sub(closed.OpenTime)
	}

	winRate := 0.0
	if totalTrades > 0 {
		winRate = (float64(winningTrades) / float64(totalTrades)) * 100
	}

	profitWithUnrealized := totalProfit
	lossWithUnrealized := totalLoss
	if unrealizedPnL > 0 {
		profitWithUnrealized += unrealizedPnL
	} else if unrealizedPnL < 0 {
		lossWithUnrealized += -unrealizedPnL
	}

	profitFactor := 0.0
	if lossWithUnrealized > 0 {
		profitFactor = profitWithUnrealized / lossWithUnrealized
	} else if profitWithUnrealized > 0 {
		profitFactor = 999.99 // no losses at all
	}

	var avgHold time.Duration
	if totalTrades > 0 {
		avgHold = totalHold / time.Duration(totalTrades)
	}

	return BacktestResult{
		InitialBalance: mc.initialBalance,
		FinalEquity:    finalEquity,

		TotalOpenedTrades: mc.openedTrades,
		SafetyOrders:      mc.safetyOrders,
		TotalClosedTrades: totalTrades,
		MaxLedgerDepth:    mc.maxDepth,

		TotalProfitGross: mc.grossRealized,
		TotalFeesOpen:    mc.feesOpen,
		TotalFeesClose:   mc.feesClose,
		TotalFeesPaid:    totalFeesPaid,
		UnrealizedPnL:    unrealizedPnL,
		NetProfit:        netProfit,
		TotalReturn:      totalReturn,
		ProfitFactor:     profitFactor,
		WinRate:          winRate,
		AvgHoldDuration:  avgHold,
		MaxDrawdown:      mc.calculateMaxDrawdown(),

		WinningTrades: winningTrades,
		LosingTrades:  losingTrades,
		TotalProfit:   totalProfit,
		TotalLoss:     totalLoss,
	}
}

// calculateMaxDrawdown returns the largest peak-to-trough fall of equity, in %.
func (mc *MetricsCalculator) calculateMaxDrawdown() float64 {
	if len(mc.equitySnapshots) == 0 {
		return 0.0
	}

	maxDrawdown := 0.0
	peak := mc.equitySnapshots[0].Equity

	for _, snapshot := range mc.equitySnapshots {
		if snapshot.Equity > peak {
			peak = snapshot.Equity
		}

		if peak > 0 {
			drawdown := ((peak - snapshot.Equity) / peak) * 100
			if drawdown > maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}

	return maxDrawdown
}

// GetEquitySnapshots returns the recorded equity curve.
func (mc *MetricsCalculator) GetEquitySnapshots() []EquitySnapshot {
	return mc.equitySnapshots
}

package engine

import (
	"time"

	"dizzycode.xyz/dca-backtest/backtesting/metrics"
	"dizzycode.xyz/dca-backtest/backtesting/simulator"
)

// Report is the outcome of one run. It contains no wall-clock or random
// data, so two runs over the same input marshal to identical JSON.
type Report struct {
	Config              StrategyConfig         `json:"config"`
	InitialCash         float64                `json:"initialCash"`
	FinalCash           float64                `json:"finalCash"` // realized cash + open position marked to the last close
	Cash                float64                `json:"cash"`      // realized cash only
	CompletedCycles     []CompletedCycle       `json:"completedCycles"`
	OpenPositionSummary *OpenPositionSummary   `json:"openPositionSummary"`
	Liquidated          bool                   `json:"liquidated"`
	Liquidation         *LiquidationSummary    `json:"liquidation,omitempty"`
	Totals              Totals                 `json:"totals"`
	Metrics             metrics.BacktestResult `json:"metrics"`
	Trades              []TradeLog             `json:"trades,omitempty"`
	FirstCandle         time.Time              `json:"firstCandle"`
	LastCandle          time.Time              `json:"lastCandle"`
	Candles             int                    `json:"candles"`
}

// CompletedCycle is one take-profit exit.
type CompletedCycle struct {
	Timestamp time.Time                `json:"timestamp"`
	PnL       float64                  `json:"pnl"`    // before commission
	NetPnL    float64                  `json:"netPnl"` // after opening and closing commission
	ExitPrice float64                  `json:"exitPrice"`
	Fee       float64                  `json:"fee"` // closing commission
	Policy    simulator.ExitPolicyKind `json:"policy"`
	Lots      []simulator.Lot          `json:"lots"`
}

// OpenPositionSummary describes lots still open after the last candle.
type OpenPositionSummary struct {
	Count               int     `json:"count"`
	Value               float64 `json:"value"`       // base × last close, the part of FinalCash
	MarkedValue         float64 `json:"markedValue"` // direction aware, equals Value for Long
	AvgPrice            float64 `json:"avgPrice"`
	NextTakeProfitPrice float64 `json:"nextTakeProfitPrice"`
	NextSafetyPrice     float64 `json:"nextSafetyPrice,omitempty"` // 0 when no safety order is left
	BaseSize            float64 `json:"baseSize"`
	QuoteSize           float64 `json:"quoteSize"`
	UnrealizedPnL       float64 `json:"unrealizedPnl"`
	LiquidationPrice    float64 `json:"liquidationPrice,omitempty"`
}

// LiquidationSummary records the terminal forced close of a futures run.
type LiquidationSummary struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	PnL       float64   `json:"pnl"`
	Equity    float64   `json:"equity"` // cash right after the forced close
	Lots      int       `json:"lots"`
}

// Totals are the cash flow aggregates. They satisfy
// FinalCash = InitialCash - Debits + Credits + OpenValue.
type Totals struct {
	Debits    float64 `json:"debits"`
	Credits   float64 `json:"credits"`
	Fees      float64 `json:"fees"`
	OpenValue float64 `json:"openValue"`
}

// assembleReport reads the final state. It never mutates it.
func (e *BacktestEngine) assembleReport(state *EngineState, calc *metrics.MetricsCalculator, lastClose float64, first, last time.Time, n int) Report {
	openValue := e.markToMarket(state.Ledger, lastClose)

	report := Report{
		Config:          e.config,
		InitialCash:     e.config.InitialCash,
		FinalCash:       state.Cash + openValue,
		Cash:            state.Cash,
		CompletedCycles: state.Cycles,
		Liquidated:      state.Liquidated,
		Liquidation:     state.Liquidation,
		Totals: Totals{
			Debits:    state.TotalDebits,
			Credits:   state.TotalCredits,
			Fees:      state.TotalFees,
			OpenValue: openValue,
		},
		Trades:      state.Trades,
		FirstCandle: first,
		LastCandle:  last,
		Candles:     n,
	}

	unrealized := 0.0
	if !state.Ledger.IsEmpty() {
		marked := e.markedValue(state.Ledger, lastClose)
		unrealized = marked - state.Ledger.TotalQuote()
		report.OpenPositionSummary = e.summarizeOpenPosition(state, openValue, marked, unrealized)
	}
	report.Metrics = calc.Calculate(report.FinalCash, unrealized)

	return report
}

func (e *BacktestEngine) summarizeOpenPosition(state *EngineState, value, marked, unrealized float64) *OpenPositionSummary {
	ledger := state.Ledger
	summary := &OpenPositionSummary{
		Count:         ledger.Len(),
		Value:         value,
		MarkedValue:   marked,
		AvgPrice:      e.pnl.AveragePrice(ledger.TotalQuote(), ledger.TotalBase()),
		BaseSize:      ledger.TotalBase(),
		QuoteSize:     ledger.TotalQuote(),
		UnrealizedPnL: unrealized,
	}
	summary.NextTakeProfitPrice, _ = e.exitPolicy.TargetPrice(ledger)

	if state.SafetyOrdersPlaced < e.config.SafetyOrdersCount {
		if last, ok := ledger.Last(); ok {
			summary.NextSafetyPrice = e.progression.TriggerPrice(e.config.Direction, last)
		}
	}
	if e.liquidation != nil {
		summary.LiquidationPrice = e.liquidation.Price(summary.AvgPrice)
	}
	return summary
}

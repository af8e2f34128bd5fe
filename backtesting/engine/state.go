package engine

import (
	"dizzycode.xyz/dca-backtest/backtesting/simulator"
)

// EngineState is the mutable state of one run. It is created by Run and
// owned by it exclusively.
type EngineState struct {
	Cash               float64
	Ledger             *simulator.OrderLedger
	SafetyOrdersPlaced int // in the current cycle
	Liquidated         bool
	Liquidation        *LiquidationSummary
	Cycles             []CompletedCycle
	Trades             []TradeLog

	TotalDebits  float64 // order notional + opening commission
	TotalCredits float64 // exit proceeds - closing commission
	TotalFees    float64

	cycleID int
}

func newEngineState(cfg StrategyConfig) *EngineState {
	return &EngineState{
		Cash:   cfg.InitialCash,
		Ledger: simulator.NewOrderLedger(simulator.DepthForSafetyOrders(cfg.SafetyOrdersCount)),
		Cycles: make([]CompletedCycle, 0),
		Trades: make([]TradeLog, 0),
	}
}

func (s *EngineState) debit(amount, fee float64) {
	s.Cash -= amount + fee
	s.TotalDebits += amount + fee
	s.TotalFees += fee
}

func (s *EngineState) credit(proceeds, fee float64) {
	s.Cash += proceeds - fee
	s.TotalCredits += proceeds - fee
	s.TotalFees += fee
}

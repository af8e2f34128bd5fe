package engine

import (
	"fmt"
	"math"

	"dizzycode.xyz/dca-backtest/backtesting/loader"
	"dizzycode.xyz/dca-backtest/backtesting/metrics"
	"dizzycode.xyz/dca-backtest/backtesting/simulator"
	"dizzycode.xyz/dca-backtest/internal/domain/value_objects"
	"dizzycode.xyz/dca-backtest/pkg/logger"

	"go.uber.org/zap"
)

// BacktestEngine replays a martingale DCA strategy over a candle sequence.
// An engine holds only immutable configuration; every Run starts from a
// fresh EngineState, so one engine may be reused but not shared between
// goroutines that change its options.
type BacktestEngine struct {
	config      StrategyConfig
	progression simulator.Progression
	exitPolicy  simulator.ExitPolicy
	liquidation *simulator.LiquidationModel // nil for spot
	pnl         *simulator.PnLCalculator
	logger      *logger.Logger
	observer    func(TradeLog)
}

// Option configures a BacktestEngine.
type Option func(*BacktestEngine)

// WithLogger sets the logger used for fills and exits.
func WithLogger(l *logger.Logger) Option {
	return func(e *BacktestEngine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithObserver registers a callback invoked synchronously for every trade.
func WithObserver(fn func(TradeLog)) Option {
	return func(e *BacktestEngine) {
		e.observer = fn
	}
}

// NewBacktestEngine validates cfg and creates an engine.
func NewBacktestEngine(cfg StrategyConfig, opts ...Option) (*BacktestEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	exitPolicy, err := simulator.NewExitPolicy(cfg.ExitPolicy, cfg.Direction, cfg.TakeProfitPercent)
	if err != nil {
		return nil, fmt.Errorf("failed to create exit policy: %w", err)
	}

	e := &BacktestEngine{
		config: cfg,
		progression: simulator.NewProgression(
			cfg.PriceStepPercent,
			cfg.PriceStepMultiplier,
			cfg.SafetyOrderSize,
			cfg.VolumeMultiplier,
		),
		exitPolicy: exitPolicy,
		pnl:        simulator.NewPnLCalculator(),
		logger:     logger.NewNopLogger(),
	}
	if cfg.IsFutures {
		model := simulator.NewLiquidationModel(cfg.Direction, cfg.Leverage, cfg.marginBuffer())
		e.liquidation = &model
	}

	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the validated configuration.
func (e *BacktestEngine) Config() StrategyConfig {
	return e.config
}

// Run executes the backtest.
//
// Per candle, in order:
//  1. liquidated runs ignore the candle
//  2. futures: liquidation check against the adverse extreme
//  3. flat: open a cycle at the candle's open
//  4. in position: one exit check; an emptied ledger re-opens at the open
//  5. no exit: at most one safety order at its trigger price
//
// After the last candle the open lots are marked to its close.
func (e *BacktestEngine) Run(candles []value_objects.Candle) (Report, error) {
	if err := ValidateCandles(candles); err != nil {
		return Report{}, err
	}

	state := newEngineState(e.config)
	calc := metrics.NewMetricsCalculator(e.config.InitialCash)

	for i := range candles {
		if err := e.step(state, calc, candles[i]); err != nil {
			return Report{}, fmt.Errorf("candle %d: %w", i, err)
		}
		calc.RecordEquity(candles[i].Timestamp(), state.Cash+e.markedValue(state.Ledger, candles[i].Close().Value()))
	}

	last := candles[len(candles)-1]
	report := e.assembleReport(state, calc, last.Close().Value(), candles[0].Timestamp(), last.Timestamp(), len(candles))

	e.logger.Info("Backtest finished",
		zap.Float64("finalCash", report.FinalCash),
		zap.Int("cycles", len(report.CompletedCycles)),
		zap.Bool("liquidated", report.Liquidated),
	)
	return report, nil
}

// RunFromFile loads candles with loader.LoadFromFile and runs the backtest.
func (e *BacktestEngine) RunFromFile(filepath string) (Report, error) {
	candles, err := loader.LoadFromFile(filepath)
	if err != nil {
		return Report{}, fmt.Errorf("failed to load candles: %w", err)
	}
	return e.Run(candles)
}

func (e *BacktestEngine) step(state *EngineState, calc *metrics.MetricsCalculator, candle value_objects.Candle) error {
	// ========== 1. terminal ==========
	if state.Liquidated {
		return nil
	}

	// ========== 2. liquidation ==========
	if e.liquidation != nil && !state.Ledger.IsEmpty() {
		exit, err := e.liquidation.Liquidate(state.Ledger, candle)
		if err != nil {
			return err
		}
		if exit != nil {
			e.liquidate(state, calc, exit)
			return nil
		}
	}

	// ========== 3. flat: open a new cycle ==========
	if state.Ledger.IsEmpty() {
		return e.openCycle(state, calc, candle)
	}

	// ========== 4. exit ==========
	exit, err := e.exitPolicy.Apply(state.Ledger, candle)
	if err != nil {
		return err
	}
	if exit != nil {
		e.settleExit(state, calc, exit)
		if state.Ledger.IsEmpty() {
			return e.openCycle(state, calc, candle)
		}
		return nil
	}

	// ========== 5. safety order ==========
	if state.SafetyOrdersPlaced < e.config.SafetyOrdersCount {
		return e.placeSafetyOrder(state, calc, candle)
	}
	return nil
}

func (e *BacktestEngine) openCycle(state *EngineState, calc *metrics.MetricsCalculator, candle value_objects.Candle) error {
	price := candle.Open().Value()
	size := e.config.InitialOrderSize
	fee := e.pnl.Fee(size, e.config.CommissionRate)

	lot := simulator.Lot{
		Price:     price,
		BaseSize:  e.pnl.BaseSize(size, price),
		QuoteSize: size,
		Level:     0,
		OpenTime:  candle.Timestamp(),
		Fee:       fee,
	}
	if err := state.Ledger.Push(lot); err != nil {
		return fmt.Errorf("failed to open cycle: %w", err)
	}

	state.cycleID++
	state.SafetyOrdersPlaced = 0
	state.debit(size, fee)
	calc.RecordFill(fee, false, state.Ledger.Len())

	e.record(state, TradeLog{
		Time:      lot.OpenTime,
		Action:    ActionOpen,
		Price:     price,
		BaseSize:  lot.BaseSize,
		QuoteSize: size,
		Level:     0,
		Fee:       fee,
		Reason:    e.fundingReason(state, "initial order"),
	})
	e.logger.Debug("Cycle opened",
		zap.Int("cycle", state.cycleID),
		zap.Float64("price", price),
		zap.Float64("cash", state.Cash),
	)
	return nil
}

func (e *BacktestEngine) placeSafetyOrder(state *EngineState, calc *metrics.MetricsCalculator, candle value_objects.Candle) error {
	last, ok := state.Ledger.Last()
	if !ok {
		return nil
	}

	trigger := e.progression.TriggerPrice(e.config.Direction, last)
	if !e.config.Direction.Breached(e.config.Direction.AdverseExtreme(candle), trigger) {
		return nil
	}

	size := e.progression.SizeAt(last.Level)
	if math.IsInf(size, 0) || math.IsNaN(size) {
		return nil
	}
	fee := e.pnl.Fee(size, e.config.CommissionRate)
	lot := simulator.Lot{
		Price:     trigger,
		BaseSize:  e.pnl.BaseSize(size, trigger),
		QuoteSize: size,
		Level:     last.Level + 1,
		OpenTime:  candle.Timestamp(),
		Fee:       fee,
	}
	if err := state.Ledger.Push(lot); err != nil {
		return fmt.Errorf("failed to place safety order: %w", err)
	}

	state.SafetyOrdersPlaced++
	state.debit(size, fee)
	calc.RecordFill(fee, true, state.Ledger.Len())

	e.record(state, TradeLog{
		Time:      lot.OpenTime,
		Action:    ActionSafety,
		Price:     trigger,
		BaseSize:  lot.BaseSize,
		QuoteSize: size,
		Level:     lot.Level,
		Fee:       fee,
		Reason:    e.fundingReason(state, fmt.Sprintf("safety order %d/%d", state.SafetyOrdersPlaced, e.config.SafetyOrdersCount)),
	})
	e.logger.Debug("Safety order filled",
		zap.Int("level", lot.Level),
		zap.Float64("price", trigger),
		zap.Float64("size", size),
	)
	return nil
}

func (e *BacktestEngine) settleExit(state *EngineState, calc *metrics.MetricsCalculator, exit *simulator.Exit) {
	fee := e.pnl.Fee(exit.Proceeds, e.config.CommissionRate)
	state.credit(exit.Proceeds, fee)

	openFees := 0.0
	for _, lot := range exit.Lots {
		openFees += lot.Fee
	}
	netPnL := exit.PnL - openFees - fee

	state.Cycles = append(state.Cycles, CompletedCycle{
		Timestamp: exit.Time,
		PnL:       exit.PnL,
		NetPnL:    netPnL,
		ExitPrice: exit.Price,
		Fee:       fee,
		Policy:    e.exitPolicy.Kind(),
		Lots:      exit.Lots,
	})
	calc.RecordClose(metrics.ClosedTrade{
		OpenTime:  exit.Lots[0].OpenTime,
		CloseTime: exit.Time,
		GrossPnL:  exit.PnL,
		NetPnL:    netPnL,
	}, fee)

	e.record(state, TradeLog{
		Time:       exit.Time,
		Action:     ActionClose,
		Price:      exit.Price,
		BaseSize:   exit.BaseSize,
		QuoteSize:  exit.QuoteSize,
		Level:      exit.Lots[len(exit.Lots)-1].Level,
		PnLPercent: exit.PnLPercent,
		PnL:        exit.PnL,
		Fee:        fee,
		Reason:     fmt.Sprintf("take profit (%s, %d lots)", e.exitPolicy.Kind(), len(exit.Lots)),
	})
	e.logger.Debug("Take profit",
		zap.Float64("price", exit.Price),
		zap.Float64("pnl", exit.PnL),
		zap.Int("lots", len(exit.Lots)),
	)
}

func (e *BacktestEngine) liquidate(state *EngineState, calc *metrics.MetricsCalculator, exit *simulator.Exit) {
	fee := e.pnl.Fee(exit.Proceeds, e.config.CommissionRate)
	state.credit(exit.Proceeds, fee)
	state.Liquidated = true

	openFees := 0.0
	for _, lot := range exit.Lots {
		openFees += lot.Fee
	}
	calc.RecordClose(metrics.ClosedTrade{
		OpenTime:  exit.Lots[0].OpenTime,
		CloseTime: exit.Time,
		GrossPnL:  exit.PnL,
		NetPnL:    exit.PnL - openFees - fee,
	}, fee)

	state.Liquidation = &LiquidationSummary{
		Timestamp: exit.Time,
		Price:     exit.Price,
		PnL:       exit.PnL,
		Equity:    state.Cash,
		Lots:      len(exit.Lots),
	}

	e.record(state, TradeLog{
		Time:       exit.Time,
		Action:     ActionLiquidation,
		Price:      exit.Price,
		BaseSize:   exit.BaseSize,
		QuoteSize:  exit.QuoteSize,
		Level:      exit.Lots[len(exit.Lots)-1].Level,
		PnLPercent: exit.PnLPercent,
		PnL:        exit.PnL,
		Fee:        fee,
		Reason:     fmt.Sprintf("liquidated at %.8f (%gx)", exit.Price, e.config.Leverage),
	})
	e.logger.Warn("Position liquidated",
		zap.Time("time", exit.Time),
		zap.Float64("price", exit.Price),
		zap.Float64("pnl", exit.PnL),
		zap.Float64("equity", state.Cash),
	)
}

// markToMarket is what the open lots add to the final cash: base × price
// in either direction.
func (e *BacktestEngine) markToMarket(ledger *simulator.OrderLedger, price float64) float64 {
	return ledger.TotalBase() * price
}

// markedValue values the open lots by direction. Long lots are worth
// base × price; short lots return their notional plus the price drop.
func (e *BacktestEngine) markedValue(ledger *simulator.OrderLedger, price float64) float64 {
	if e.config.Direction == value_objects.Long {
		return ledger.TotalBase() * price
	}
	value := 0.0
	for _, lot := range ledger.Lots() {
		value += e.pnl.LotValue(lot, price, e.config.Direction)
	}
	return value
}

func (e *BacktestEngine) record(state *EngineState, log TradeLog) {
	log.TradeID = len(state.Trades) + 1
	log.CycleID = state.cycleID
	log.Cash = state.Cash
	state.Trades = append(state.Trades, log)
	if e.observer != nil {
		e.observer(log)
	}
}

// fundingReason flags fills that drove cash below zero. Fills are never
// refused for lack of cash.
func (e *BacktestEngine) fundingReason(state *EngineState, reason string) string {
	if state.Cash < 0 {
		return reason + " (insufficient cash)"
	}
	return reason
}

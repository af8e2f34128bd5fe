package simulator

import (
	"dizzycode.xyz/dca-backtest/internal/domain/value_objects"
)

// DefaultMarginBuffer is the share of the initial margin that may be lost
// before a leveraged position is force closed. It approximates exchange
// maintenance margin and can be overridden per run.
const DefaultMarginBuffer = 0.99

// LiquidationModel computes the forced-close price of a leveraged position.
type LiquidationModel struct {
	Direction    value_objects.Direction
	Leverage     float64
	MarginBuffer float64

	pnl *PnLCalculator
}

// NewLiquidationModel creates a LiquidationModel. A non-positive buffer
// falls back to DefaultMarginBuffer.
func NewLiquidationModel(direction value_objects.Direction, leverage, marginBuffer float64) LiquidationModel {
	if marginBuffer <= 0 {
		marginBuffer = DefaultMarginBuffer
	}
	return LiquidationModel{
		Direction:    direction,
		Leverage:     leverage,
		MarginBuffer: marginBuffer,
		pnl:          NewPnLCalculator(),
	}
}

// Price returns avg × (1 ∓ buffer/leverage): below the average for Long,
// above it for Short.
func (m LiquidationModel) Price(avgPrice float64) float64 {
	return m.calculator().ShiftPrice(avgPrice, m.MarginBuffer/m.Leverage, -m.Direction.Sign())
}

// Check reports whether the candle's adverse extreme breaches the
// liquidation price of the open ledger.
func (m LiquidationModel) Check(ledger *OrderLedger, candle value_objects.Candle) (price float64, triggered bool) {
	if ledger.IsEmpty() {
		return 0, false
	}
	pc := m.calculator()
	price = m.Price(pc.AveragePrice(ledger.TotalQuote(), ledger.TotalBase()))
	return price, m.Direction.Breached(m.Direction.AdverseExtreme(candle), price)
}

// Liquidate force closes the ledger at the liquidation price.
func (m LiquidationModel) Liquidate(ledger *OrderLedger, candle value_objects.Candle) (*Exit, error) {
	price, triggered := m.Check(ledger, candle)
	if !triggered {
		return nil, nil
	}
	return CloseAll(ledger, m.Direction, ReasonLiquidation, price, candle.Timestamp())
}

func (m LiquidationModel) calculator() *PnLCalculator {
	if m.pnl == nil {
		return NewPnLCalculator()
	}
	return m.pnl
}

package simulator

import (
	"dizzycode.xyz/dca-backtest/internal/domain/value_objects"

	"github.com/shopspring/decimal"
)

// PnLCalculator is the single place where price/PnL arithmetic happens.
// It works in decimal internally so that prices such as 100 × (1 − 0.05)
// land exactly on 95 and bar extremes compare the way a human expects.
type PnLCalculator struct{}

// NewPnLCalculator creates a PnLCalculator.
func NewPnLCalculator() *PnLCalculator {
	return &PnLCalculator{}
}

var hundred = decimal.NewFromInt(100)

// CalculatePnL returns the directional PnL of closing coins bought (or sold,
// for Short) at basePrice at closePrice.
//
//	amount  = (closePrice - basePrice) × coins × sign
//	percent = (closePrice - basePrice) / basePrice × 100 × sign
func (pc *PnLCalculator) CalculatePnL(
	closePrice, basePrice, coins float64,
	direction value_objects.Direction,
) (pnlAmount, pnlPercent float64) {
	closeD := decimal.NewFromFloat(closePrice)
	baseD := decimal.NewFromFloat(basePrice)
	sign := decimal.NewFromFloat(direction.Sign())

	change := closeD.Sub(baseD).Mul(sign)
	amount := change.Mul(decimal.NewFromFloat(coins))

	percent := decimal.Zero
	if !baseD.IsZero() {
		percent = change.Div(baseD).Mul(hundred)
	}

	return amount.InexactFloat64(), percent.InexactFloat64()
}

// ShiftPrice returns price × (1 + sign × fraction).
func (pc *PnLCalculator) ShiftPrice(price, fraction, sign float64) float64 {
	factor := decimal.NewFromInt(1).Add(decimal.NewFromFloat(fraction).Mul(decimal.NewFromFloat(sign)))
	return decimal.NewFromFloat(price).Mul(factor).InexactFloat64()
}

// BaseSize converts a quote notional into base units at price.
func (pc *PnLCalculator) BaseSize(quote, price float64) float64 {
	return decimal.NewFromFloat(quote).Div(decimal.NewFromFloat(price)).InexactFloat64()
}

// AveragePrice is the volume weighted entry price totalQuote / totalBase.
func (pc *PnLCalculator) AveragePrice(totalQuote, totalBase float64) float64 {
	if totalBase == 0 {
		return 0
	}
	return decimal.NewFromFloat(totalQuote).Div(decimal.NewFromFloat(totalBase)).InexactFloat64()
}

// Fee returns notional × rate.
func (pc *PnLCalculator) Fee(notional, rate float64) float64 {
	if rate == 0 {
		return 0
	}
	return decimal.NewFromFloat(notional).Mul(decimal.NewFromFloat(rate)).InexactFloat64()
}

// LotValue marks a lot to price: the quote it would return if closed now.
func (pc *PnLCalculator) LotValue(lot Lot, price float64, direction value_objects.Direction) float64 {
	pnl, _ := pc.CalculatePnL(price, lot.Price, lot.BaseSize, direction)
	return decimal.NewFromFloat(lot.QuoteSize).Add(decimal.NewFromFloat(pnl)).InexactFloat64()
}

package simulator

import (
	"math"

	"dizzycode.xyz/dca-backtest/internal/domain/value_objects"
)

// Progression computes the geometric price-step and order-size ladder of the
// safety orders.
//
// level is always the level of the most recently placed lot, not the number
// of open lots. The two drift apart as soon as FIFO exits remove old lots.
type Progression struct {
	StepPercent      float64 // distance of the first safety order, in percent
	StepMultiplier   float64 // growth of the distance per level
	SafetyOrderSize  float64 // notional of the first safety order
	VolumeMultiplier float64 // growth of the notional per level

	pnl *PnLCalculator
}

// NewProgression creates a Progression.
func NewProgression(stepPercent, stepMultiplier, safetyOrderSize, volumeMultiplier float64) Progression {
	return Progression{
		StepPercent:      stepPercent,
		StepMultiplier:   stepMultiplier,
		SafetyOrderSize:  safetyOrderSize,
		VolumeMultiplier: volumeMultiplier,
		pnl:              NewPnLCalculator(),
	}
}

// StepAt returns the price distance, as a fraction, of the order that follows
// a lot at level: StepPercent/100 × StepMultiplier^level.
func (p Progression) StepAt(level int) float64 {
	return p.StepPercent / 100 * math.Pow(p.StepMultiplier, float64(level))
}

// SizeAt returns the notional of the order that follows a lot at level:
// SafetyOrderSize × VolumeMultiplier^level.
func (p Progression) SizeAt(level int) float64 {
	return p.SafetyOrderSize * math.Pow(p.VolumeMultiplier, float64(level))
}

// TriggerPrice is the price at which the next safety order fills, measured
// against the last lot: below it for Long, above it for Short.
func (p Progression) TriggerPrice(direction value_objects.Direction, last Lot) float64 {
	return p.calculator().ShiftPrice(last.Price, p.StepAt(last.Level), -direction.Sign())
}

func (p Progression) calculator() *PnLCalculator {
	if p.pnl == nil {
		return NewPnLCalculator()
	}
	return p.pnl
}

package engine

import (
	"errors"
	"math"

	"dizzycode.xyz/dca-backtest/backtesting/simulator"
	"dizzycode.xyz/dca-backtest/internal/domain/value_objects"
)

// StrategyConfig holds the parameters of one martingale DCA run.
// Percent fields are in percent units: 5 means 5%.
type StrategyConfig struct {
	Direction           value_objects.Direction  `json:"direction"`
	InitialOrderSize    float64                  `json:"initialOrderSize"`    // quote notional of the first order
	SafetyOrderSize     float64                  `json:"safetyOrderSize"`     // quote notional of the first safety order
	VolumeMultiplier    float64                  `json:"volumeMultiplier"`    // >= 1
	SafetyOrdersCount   int                      `json:"safetyOrdersCount"`   // max safety orders per cycle
	PriceStepPercent    float64                  `json:"priceStepPercent"`    // distance of the first safety order
	PriceStepMultiplier float64                  `json:"priceStepMultiplier"` // >= 1
	TakeProfitPercent   float64                  `json:"takeProfitPercent"`
	InitialCash         float64                  `json:"initialCash"`
	ExitPolicy          simulator.ExitPolicyKind `json:"exitPolicy"`
	IsFutures           bool                     `json:"isFutures"`
	Leverage            float64                  `json:"leverage"`       // >= 1 when IsFutures
	CommissionRate      float64                  `json:"commissionRate"` // fraction of notional, 0.0005 = 0.05%
	MarginBuffer        float64                  `json:"marginBuffer,omitempty"`
}

// DefaultStrategyConfig returns a long FIFO configuration with the usual
// defaults of the parameter panel.
func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		Direction:           value_objects.Long,
		InitialOrderSize:    100,
		SafetyOrderSize:     100,
		VolumeMultiplier:    1,
		SafetyOrdersCount:   20,
		PriceStepPercent:    2,
		PriceStepMultiplier: 1.1,
		TakeProfitPercent:   1,
		InitialCash:         10000,
		ExitPolicy:          simulator.FIFOPartial,
		Leverage:            1,
		MarginBuffer:        simulator.DefaultMarginBuffer,
	}
}

// Validate reports every invalid field, joined.
func (c StrategyConfig) Validate() error {
	var errs []error
	fail := func(field, reason string) {
		errs = append(errs, &ConfigError{Field: field, Reason: reason})
	}
	positive := func(field string, v float64) {
		if !(v > 0) || math.IsInf(v, 0) {
			fail(field, "must be positive")
		}
	}
	atLeastOne := func(field string, v float64) {
		if !(v >= 1) || math.IsInf(v, 0) {
			fail(field, "must be >= 1")
		}
	}

	if !c.Direction.IsValid() {
		fail("direction", "must be Long or Short")
	}
	if _, err := simulator.ParseExitPolicyKind(string(c.ExitPolicy)); err != nil {
		fail("exitPolicy", "must be FIFO_PARTIAL or FULL_CLOSE")
	}

	positive("initialOrderSize", c.InitialOrderSize)
	positive("safetyOrderSize", c.SafetyOrderSize)
	positive("priceStepPercent", c.PriceStepPercent)
	positive("takeProfitPercent", c.TakeProfitPercent)
	positive("initialCash", c.InitialCash)
	atLeastOne("volumeMultiplier", c.VolumeMultiplier)
	atLeastOne("priceStepMultiplier", c.PriceStepMultiplier)

	if c.SafetyOrdersCount < 0 {
		fail("safetyOrdersCount", "must not be negative")
	}
	if c.IsFutures {
		atLeastOne("leverage", c.Leverage)
	}
	if !(c.CommissionRate >= 0) || c.CommissionRate >= 1 {
		fail("commissionRate", "must be in [0, 1)")
	}
	if c.MarginBuffer != 0 && !(c.MarginBuffer > 0 && c.MarginBuffer <= 1) {
		fail("marginBuffer", "must be in (0, 1]")
	}

	return errors.Join(errs...)
}

func (c StrategyConfig) marginBuffer() float64 {
	if c.MarginBuffer == 0 {
		return simulator.DefaultMarginBuffer
	}
	return c.MarginBuffer
}

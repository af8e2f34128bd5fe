package value_objects

import (
	"fmt"
	"strings"
)

// Direction is the side a strategy trades.
type Direction string

const (
	Long  Direction = "Long"
	Short Direction = "Short"
)

// ParseDirection accepts "long"/"short" in any case.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long":
		return Long, nil
	case "short":
		return Short, nil
	default:
		return "", fmt.Errorf("unknown direction %q", s)
	}
}

// IsValid reports whether d is Long or Short.
func (d Direction) IsValid() bool {
	return d == Long || d == Short
}

// Sign is +1 for Long and -1 for Short.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// FavorableExtreme is the bar extreme that moves in the position's favor:
// high for Long, low for Short.
func (d Direction) FavorableExtreme(c Candle) float64 {
	if d == Short {
		return c.Low().Value()
	}
	return c.High().Value()
}

// AdverseExtreme is the bar extreme that moves against the position:
// low for Long, high for Short.
func (d Direction) AdverseExtreme(c Candle) float64 {
	if d == Short {
		return c.High().Value()
	}
	return c.Low().Value()
}

// Reached reports whether price has moved to target in the favorable sense.
func (d Direction) Reached(price, target float64) bool {
	if d == Short {
		return price <= target
	}
	return price >= target
}

// Breached reports whether price has moved to target in the adverse sense.
func (d Direction) Breached(price, target float64) bool {
	if d == Short {
		return price >= target
	}
	return price <= target
}

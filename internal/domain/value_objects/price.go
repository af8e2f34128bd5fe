package value_objects

import (
	"errors"
	"fmt"
	"math"
)

// ErrNonPositivePrice is returned for zero, negative or non-finite prices.
var ErrNonPositivePrice = errors.New("price must be positive")

// Price is an immutable positive price.
type Price struct {
	value float64
}

// NewPrice creates a Price.
func NewPrice(value float64) (Price, error) {
	if value <= 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return Price{}, fmt.Errorf("%w: %v", ErrNonPositivePrice, value)
	}
	return Price{value: value}, nil
}

// Value returns the raw price.
func (p Price) Value() float64 {
	return p.value
}

// IsAboveOrEqual reports whether p >= other.
func (p Price) IsAboveOrEqual(other Price) bool {
	return p.value >= other.value
}

// IsBelowOrEqual reports whether p <= other.
func (p Price) IsBelowOrEqual(other Price) bool {
	return p.value <= other.value
}

// String formats the price with two decimals.
func (p Price) String() string {
	return fmt.Sprintf("%.2f", p.value)
}

package value_objects

import (
	"errors"
	"fmt"
	"time"
)

// ErrCandleRange is returned when a candle's OHLC values are inconsistent.
var ErrCandleRange = errors.New("candle range violated")

// Candle is one OHLC bar.
type Candle struct {
	open      Price
	high      Price
	low       Price
	close     Price
	timestamp time.Time
}

// NewCandle creates a Candle. All prices must be positive and open/close
// must lie inside [low, high].
func NewCandle(open, high, low, close float64, timestamp time.Time) (Candle, error) {
	openPrice, err := NewPrice(open)
	if err != nil {
		return Candle{}, fmt.Errorf("invalid open price: %w", err)
	}

	highPrice, err := NewPrice(high)
	if err != nil {
		return Candle{}, fmt.Errorf("invalid high price: %w", err)
	}

	lowPrice, err := NewPrice(low)
	if err != nil {
		return Candle{}, fmt.Errorf("invalid low price: %w", err)
	}

	closePrice, err := NewPrice(close)
	if err != nil {
		return Candle{}, fmt.Errorf("invalid close price: %w", err)
	}

	if !highPrice.IsAboveOrEqual(lowPrice) {
		return Candle{}, fmt.Errorf("%w: high %.8f < low %.8f", ErrCandleRange, high, low)
	}
	for _, p := range []Price{openPrice, closePrice} {
		if !p.IsAboveOrEqual(lowPrice) || !p.IsBelowOrEqual(highPrice) {
			return Candle{}, fmt.Errorf("%w: %.8f outside [%.8f, %.8f]", ErrCandleRange, p.Value(), low, high)
		}
	}

	return Candle{
		open:      openPrice,
		high:      highPrice,
		low:       lowPrice,
		close:     closePrice,
		timestamp: timestamp,
	}, nil
}

// MustCandle is NewCandle for fixtures; it panics on invalid input.
func MustCandle(open, high, low, close float64, timestamp time.Time) Candle {
	c, err := NewCandle(open, high, low, close, timestamp)
	if err != nil {
		panic(err)
	}
	return c
}

// Getters
func (c Candle) Open() Price          { return c.open }
func (c Candle) High() Price          { return c.high }
func (c Candle) Low() Price           { return c.low }
func (c Candle) Close() Price         { return c.close }
func (c Candle) Timestamp() time.Time { return c.timestamp }

// IsZero reports whether c is the zero Candle (never produced by NewCandle).
func (c Candle) IsZero() bool {
	return c.open.value == 0
}

// Validate re-checks the invariants of a Candle that may not have been
// built through NewCandle (e.g. the zero value).
func (c Candle) Validate() error {
	_, err := NewCandle(c.open.value, c.high.value, c.low.value, c.close.value, c.timestamp)
	return err
}

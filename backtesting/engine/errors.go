package engine

import (
	"errors"
	"fmt"
	"time"

	"dizzycode.xyz/dca-backtest/internal/domain/value_objects"
)

var (
	// ErrInvalidConfig is wrapped by every ConfigError.
	ErrInvalidConfig = errors.New("invalid strategy config")
	// ErrInvalidData is wrapped by every DataError.
	ErrInvalidData = errors.New("invalid candle data")
)

// ConfigError reports a strategy parameter that cannot be simulated.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidConfig, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// DataError reports a candle sequence the engine refuses to consume.
type DataError struct {
	Index  int // -1 when the sequence as a whole is at fault
	Time   time.Time
	Reason string
}

func (e *DataError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %s", ErrInvalidData, e.Reason)
	}
	return fmt.Sprintf("%s: candle %d (%s): %s",
		ErrInvalidData, e.Index, e.Time.UTC().Format(time.RFC3339), e.Reason)
}

func (e *DataError) Unwrap() error { return ErrInvalidData }

// ValidateCandles checks that candles is non-empty, strictly ordered in time
// and that every candle has positive prices within its own range.
func ValidateCandles(candles []value_objects.Candle) error {
	if len(candles) == 0 {
		return &DataError{Index: -1, Reason: "empty candle sequence"}
	}

	for i, c := range candles {
		if err := c.Validate(); err != nil {
			return &DataError{Index: i, Time: c.Timestamp(), Reason: err.Error()}
		}
		if i > 0 && !c.Timestamp().After(candles[i-1].Timestamp()) {
			return &DataError{Index: i, Time: c.Timestamp(), Reason: "timestamp does not increase"}
		}
	}
	return nil
}

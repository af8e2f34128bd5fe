package loader

import (
	"context"

	"dizzycode.xyz/dca-backtest/internal/domain/value_objects"
)

// Source supplies a candle sequence ordered from oldest to newest.
type Source interface {
	Load(ctx context.Context) ([]value_objects.Candle, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]value_objects.Candle, error)

// Load calls f.
func (f SourceFunc) Load(ctx context.Context) ([]value_objects.Candle, error) {
	return f(ctx)
}

// Static is a Source over candles already in memory.
type Static []value_objects.Candle

// Load returns a copy of the candles.
func (s Static) Load(ctx context.Context) ([]value_objects.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]value_objects.Candle, len(s))
	copy(out, s)
	return out, nil
}

// OldestFirst reverses candles in place when they are ordered newest first,
// as exchange APIs and LPUSH-built lists return them.
func OldestFirst(candles []value_objects.Candle) []value_objects.Candle {
	if len(candles) < 2 || !candles[0].Timestamp().After(candles[len(candles)-1].Timestamp()) {
		return candles
	}
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles
}

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"dizzycode.xyz/dca-backtest/backtesting/loader"
	"dizzycode.xyz/dca-backtest/internal/domain/value_objects"
	"dizzycode.xyz/dca-backtest/pkg/logger"

	"go.uber.org/zap"
)

// Key written by the market data service: a list built with LPUSH + LTRIM,
// so index 0 is the newest candle.
const KeyPatternCandleHistory = "candle.history.%s.%s" // bar, instId

// CandleData is the JSON layout of one cached candle.
type CandleData struct {
	InstID  string `json:"instId"`
	Bar     string `json:"bar"`
	Open    string `json:"open"`
	High    string `json:"high"`
	Low     string `json:"low"`
	Close   string `json:"close"`
	Confirm string `json:"confirm"` // "1" once the bar is closed
	Ts      string `json:"ts"`      // Timestamp in milliseconds
}

// CandleHistoryReader reads the candle history cached in Redis and serves it
// as a loader.Source.
type CandleHistoryReader struct {
	client *RedisClient
	logger *logger.Logger
	instID string
	bar    string
	limit  int
}

var _ loader.Source = (*CandleHistoryReader)(nil)

// NewCandleHistoryReader creates a reader for one instrument and bar size.
// limit caps the number of candles read, 0 reads the whole list.
func NewCandleHistoryReader(client *RedisClient, instID, bar string, limit int, log *logger.Logger) *CandleHistoryReader {
	return &CandleHistoryReader{
		client: client,
		logger: log,
		instID: instID,
		bar:    bar,
		limit:  limit,
	}
}

// Load returns confirmed candles oldest first.
func (r *CandleHistoryReader) Load(ctx context.Context) ([]value_objects.Candle, error) {
	key := fmt.Sprintf(KeyPatternCandleHistory, r.bar, r.instID)

	stop := int64(-1)
	if r.limit > 0 {
		stop = int64(r.limit) - 1
	}
	values, err := r.client.Client().LRange(ctx, key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get candles from Redis (key: %s): %w", key, err)
	}

	candles, err := ParseCandleHistory(values)
	if err != nil {
		return nil, fmt.Errorf("key %s: %w", key, err)
	}

	r.logger.Debug("Retrieved candle history from Redis",
		zap.String("key", key),
		zap.Int("entries", len(values)),
		zap.Int("candles", len(candles)),
	)
	return candles, nil
}

// ParseCandleHistory decodes LRANGE output (newest first) into confirmed
// candles ordered oldest first. Unconfirmed bars are skipped and a repeated
// timestamp keeps the newest entry.
func ParseCandleHistory(values []string) ([]value_objects.Candle, error) {
	candles := make([]value_objects.Candle, 0, len(values))
	seen := make(map[int64]struct{}, len(values))

	for i := len(values) - 1; i >= 0; i-- {
		var data CandleData
		if err := json.Unmarshal([]byte(values[i]), &data); err != nil {
			return nil, fmt.Errorf("failed to parse candle at index %d: %w", i, err)
		}
		if data.Confirm == "0" {
			continue
		}

		candle, err := parseCandleData(data)
		if err != nil {
			return nil, fmt.Errorf("failed to convert candle at index %d: %w", i, err)
		}

		ts := candle.Timestamp().UnixMilli()
		if _, dup := seen[ts]; dup {
			// iterating oldest to newest: replace the earlier copy
			for j := len(candles) - 1; j >= 0; j-- {
				if candles[j].Timestamp().UnixMilli() == ts {
					candles[j] = candle
					break
				}
			}
			continue
		}
		seen[ts] = struct{}{}
		candles = append(candles, candle)
	}

	return loader.OldestFirst(candles), nil
}

func parseCandleData(data CandleData) (value_objects.Candle, error) {
	prices := [4]string{data.Open, data.High, data.Low, data.Close}
	var values [4]float64
	for i, raw := range prices {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return value_objects.Candle{}, fmt.Errorf("invalid price %q: %w", raw, err)
		}
		values[i] = v
	}

	// OKX uses milliseconds
	tsMs, err := strconv.ParseInt(data.Ts, 10, 64)
	if err != nil {
		return value_objects.Candle{}, fmt.Errorf("invalid timestamp: %w", err)
	}

	candle, err := value_objects.NewCandle(values[0], values[1], values[2], values[3], time.UnixMilli(tsMs).UTC())
	if err != nil {
		return value_objects.Candle{}, fmt.Errorf("failed to create candle: %w", err)
	}
	return candle, nil
}

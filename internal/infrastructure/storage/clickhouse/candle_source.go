package clickhouse

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"dizzycode.xyz/dca-backtest/backtesting/loader"
	"dizzycode.xyz/dca-backtest/internal/domain/value_objects"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// CandleSource reads one instrument's bars from a candles table.
type CandleSource struct {
	conn   *Conn
	table  string
	instID string
	bar    string
	limit  int
}

// Compile-time interface check.
var _ loader.Source = (*CandleSource)(nil)

// NewCandleSource creates a CandleSource. limit <= 0 reads every bar.
func NewCandleSource(conn *Conn, table, instID, bar string, limit int) (*CandleSource, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &CandleSource{conn: conn, table: table, instID: instID, bar: bar, limit: limit}, nil
}

// EnsureSchema creates the candles table when missing.
func (s *CandleSource) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			inst_id String,
			bar     LowCardinality(String),
			ts      DateTime64(3, 'UTC'),
			open    Float64,
			high    Float64,
			low     Float64,
			close   Float64
		) ENGINE = ReplacingMergeTree
		ORDER BY (inst_id, bar, ts)
	`, s.table)
	if err := s.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Load returns the most recent bars, oldest first. FINAL collapses rows
// that ReplacingMergeTree has not merged yet.
func (s *CandleSource) Load(ctx context.Context) ([]value_objects.Candle, error) {
	query := fmt.Sprintf(`
		SELECT ts, open, high, low, close
		FROM %s FINAL
		WHERE inst_id = ? AND bar = ?
		ORDER BY ts DESC
	`, s.table)
	args := []any{s.instID, s.bar}
	if s.limit > 0 {
		query += " LIMIT ?"
		args = append(args, s.limit)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	var candles []value_objects.Candle
	for rows.Next() {
		var (
			ts         time.Time
			o, h, l, c float64
		)
		if err := rows.Scan(&ts, &o, &h, &l, &c); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		candle, err := value_objects.NewCandle(o, h, l, c, ts.UTC())
		if err != nil {
			return nil, fmt.Errorf("candle at %s: %w", ts.UTC().Format(time.RFC3339), err)
		}
		candles = append(candles, candle)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle rows: %w", err)
	}

	return loader.OldestFirst(candles), nil
}

// InsertBulk appends candles in one batch. Re-inserted timestamps replace
// the previous row on merge.
func (s *CandleSource) InsertBulk(ctx context.Context, candles []value_objects.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf(
		"INSERT INTO %s (inst_id, bar, ts, open, high, low, close)", s.table))
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, c := range candles {
		err = batch.Append(
			s.instID, s.bar, c.Timestamp().UTC(),
			c.Open().Value(), c.High().Value(), c.Low().Value(), c.Close().Value(),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

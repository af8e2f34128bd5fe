package loader

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dizzycode.xyz/dca-backtest/internal/domain/value_objects"
)

// Format is the on-disk layout of a candle file.
type Format string

const (
	FormatOKX Format = "okx" // OKX REST response: {"code","msg","data":[[ts,o,h,l,c,...]]}
	FormatCSV Format = "csv" // timestamp,open,high,low,close[,...] with optional header
)

// OKXResponse is the OKX candles API response.
type OKXResponse struct {
	Code string     `json:"code"`
	Msg  string     `json:"msg"`
	Data [][]string `json:"data"` // [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm]
}

// CandleLoader reads a candle file.
type CandleLoader struct {
	filepath string
	format   Format
}

// NewCandleLoader creates a loader. The format is taken from the file
// extension: .csv is CSV, anything else is OKX JSON.
func NewCandleLoader(path string) *CandleLoader {
	format := FormatOKX
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		format = FormatCSV
	}
	return &CandleLoader{filepath: path, format: format}
}

// NewCandleLoaderWithFormat creates a loader with an explicit format.
func NewCandleLoaderWithFormat(path string, format Format) *CandleLoader {
	return &CandleLoader{filepath: path, format: format}
}

// Load reads the file and returns its candles oldest first.
func (l *CandleLoader) Load(ctx context.Context) ([]value_objects.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(l.filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	defer file.Close()

	switch l.format {
	case FormatCSV:
		return ParseCSV(file)
	case FormatOKX:
		return ParseOKX(file)
	default:
		return nil, fmt.Errorf("unknown candle format %q", l.format)
	}
}

// ParseOKX decodes an OKX candles response.
func ParseOKX(r io.Reader) ([]value_objects.Candle, error) {
	var response OKXResponse
	if err := json.NewDecoder(r).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	if response.Code != "0" {
		return nil, fmt.Errorf("OKX error: %s", response.Msg)
	}
	if len(response.Data) == 0 {
		return nil, errors.New("no data in file")
	}

	candles := make([]value_objects.Candle, 0, len(response.Data))
	for i, row := range response.Data {
		if len(row) < 5 {
			return nil, fmt.Errorf("invalid candle at index %d: insufficient fields", i)
		}

		candle, err := parseRow(row[:5])
		if err != nil {
			return nil, fmt.Errorf("failed to parse candle at index %d: %w", i, err)
		}
		candles = append(candles, candle)
	}

	return OldestFirst(candles), nil
}

// ParseCSV decodes timestamp,open,high,low,close records. A first record
// whose timestamp does not parse is treated as a header.
func ParseCSV(r io.Reader) ([]value_objects.Candle, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}

	candles := make([]value_objects.Candle, 0, len(records))
	for i, record := range records {
		if len(record) < 5 {
			return nil, fmt.Errorf("invalid candle at line %d: insufficient fields", i+1)
		}
		if i == 0 {
			if _, err := parseTimestamp(record[0]); err != nil {
				continue
			}
		}

		candle, err := parseRow(record[:5])
		if err != nil {
			return nil, fmt.Errorf("failed to parse candle at line %d: %w", i+1, err)
		}
		candles = append(candles, candle)
	}

	if len(candles) == 0 {
		return nil, errors.New("no data in file")
	}
	return OldestFirst(candles), nil
}

func parseRow(row []string) (value_objects.Candle, error) {
	timestamp, err := parseTimestamp(row[0])
	if err != nil {
		return value_objects.Candle{}, fmt.Errorf("invalid timestamp: %w", err)
	}

	var prices [4]float64
	names := [4]string{"open", "high", "low", "close"}
	for i := range prices {
		prices[i], err = strconv.ParseFloat(strings.TrimSpace(row[i+1]), 64)
		if err != nil {
			return value_objects.Candle{}, fmt.Errorf("invalid %s price: %w", names[i], err)
		}
	}

	candle, err := value_objects.NewCandle(prices[0], prices[1], prices[2], prices[3], timestamp)
	if err != nil {
		return value_objects.Candle{}, fmt.Errorf("failed to create candle: %w", err)
	}
	return candle, nil
}

// parseTimestamp accepts unix milliseconds, RFC 3339 or a plain date.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// LoadFromFile loads a candle file, picking the format from its extension.
func LoadFromFile(path string) ([]value_objects.Candle, error) {
	return NewCandleLoader(path).Load(context.Background())
}

// LoadFromJSON loads an OKX JSON candle file.
func LoadFromJSON(path string) ([]value_objects.Candle, error) {
	return NewCandleLoaderWithFormat(path, FormatOKX).Load(context.Background())
}

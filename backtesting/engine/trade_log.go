package engine

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// Trade actions.
const (
	ActionOpen        = "OPEN"
	ActionSafety      = "SAFETY"
	ActionClose       = "CLOSE"
	ActionLiquidation = "LIQUIDATION"
)

// TradeLog is one ledger event.
type TradeLog struct {
	TradeID    int       `json:"tradeId"`
	CycleID    int       `json:"cycleId"` // links fills and exits of one cycle
	Time       time.Time `json:"time"`
	Action     string    `json:"action"`
	Price      float64   `json:"price"`
	BaseSize   float64   `json:"baseSize"`
	QuoteSize  float64   `json:"quoteSize"`
	Level      int       `json:"level"`      // level of the filled lot, or of the newest closed lot
	Cash       float64   `json:"cash"`       // cash after the event
	PnLPercent float64   `json:"pnlPercent"` // exits only
	PnL        float64   `json:"pnl"`        // exits only, before commission
	Fee        float64   `json:"fee"`
	Reason     string    `json:"reason"`
}

var tradeLogHeader = []string{
	"TradeID", "CycleID", "Time", "Action", "Price", "BaseSize", "QuoteSize",
	"Level", "Cash", "PnL%", "PnL", "Fee", "Reason",
}

// WriteTradeLogCSV writes trades as CSV to w.
func WriteTradeLogCSV(w io.Writer, trades []TradeLog) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tradeLogHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	f := func(v float64, prec int) string { return strconv.FormatFloat(v, 'f', prec, 64) }
	for _, log := range trades {
		record := []string{
			strconv.Itoa(log.TradeID),
			strconv.Itoa(log.CycleID),
			log.Time.UTC().Format("2006-01-02 15:04:05"),
			log.Action,
			f(log.Price, 8),
			f(log.BaseSize, 8),
			f(log.QuoteSize, 2),
			strconv.Itoa(log.Level),
			f(log.Cash, 2),
			f(log.PnLPercent, 4),
			f(log.PnL, 4),
			f(log.Fee, 8),
			log.Reason,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write trade %d: %w", log.TradeID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ExportTradeLogCSV writes the trade log of report to a CSV file.
func ExportTradeLogCSV(filepath string, trades []TradeLog) error {
	file, err := os.Create(filepath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	if err := WriteTradeLogCSV(file, trades); err != nil {
		return err
	}
	return file.Close()
}

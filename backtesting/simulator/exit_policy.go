package simulator

import (
	"fmt"
	"strings"
	"time"

	"dizzycode.xyz/dca-backtest/internal/domain/value_objects"
)

// ExitPolicyKind selects how exposure is taken off.
type ExitPolicyKind string

const (
	// FIFOPartial closes only the oldest lot when its own target is hit.
	FIFOPartial ExitPolicyKind = "FIFO_PARTIAL"
	// FullClose closes the whole ledger when the average-price target is hit.
	FullClose ExitPolicyKind = "FULL_CLOSE"
)

// ParseExitPolicyKind accepts the canonical names in any case.
func ParseExitPolicyKind(s string) (ExitPolicyKind, error) {
	switch ExitPolicyKind(strings.ToUpper(strings.TrimSpace(s))) {
	case FIFOPartial:
		return FIFOPartial, nil
	case FullClose:
		return FullClose, nil
	default:
		return "", fmt.Errorf("unknown exit policy %q", s)
	}
}

// ExitReason tags why lots were closed.
type ExitReason string

const (
	ReasonTakeProfit  ExitReason = "TAKE_PROFIT"
	ReasonLiquidation ExitReason = "LIQUIDATION"
)

// Exit is the state transition produced by closing one or more lots.
// The ledger has already been updated when an Exit is returned.
type Exit struct {
	Reason     ExitReason
	Price      float64 // price every closed lot was filled at
	Time       time.Time
	Lots       []Lot   // closed lots, oldest first
	BaseSize   float64 // Σ base of the closed lots
	QuoteSize  float64 // Σ quote of the closed lots
	PnL        float64 // realized PnL before commission
	PnLPercent float64 // PnL relative to QuoteSize, in percent
	Proceeds   float64 // QuoteSize + PnL, the gross cash credit
}

// ExitPolicy decides, once per bar, whether exposure is closed.
type ExitPolicy interface {
	Kind() ExitPolicyKind
	// TargetPrice is the price at which the next take-profit triggers.
	// ok is false when the ledger is empty.
	TargetPrice(ledger *OrderLedger) (price float64, ok bool)
	// Apply closes lots if the candle's favorable extreme reaches the target.
	// It returns nil when nothing was closed.
	Apply(ledger *OrderLedger, candle value_objects.Candle) (*Exit, error)
}

// NewExitPolicy returns the policy variant selected by kind.
func NewExitPolicy(kind ExitPolicyKind, direction value_objects.Direction, takeProfitPercent float64) (ExitPolicy, error) {
	base := exitBase{
		direction:  direction,
		takeProfit: takeProfitPercent / 100,
		pnl:        NewPnLCalculator(),
	}
	switch kind {
	case FIFOPartial:
		return &fifoPartial{exitBase: base}, nil
	case FullClose:
		return &fullClose{exitBase: base}, nil
	default:
		return nil, fmt.Errorf("unknown exit policy %q", kind)
	}
}

type exitBase struct {
	direction  value_objects.Direction
	takeProfit float64
	pnl        *PnLCalculator
}

func (b exitBase) target(entry float64) float64 {
	return b.pnl.ShiftPrice(entry, b.takeProfit, b.direction.Sign())
}

func (b exitBase) reached(candle value_objects.Candle, target float64) bool {
	return b.direction.Reached(b.direction.FavorableExtreme(candle), target)
}

type fifoPartial struct {
	exitBase
}

func (p *fifoPartial) Kind() ExitPolicyKind { return FIFOPartial }

func (p *fifoPartial) TargetPrice(ledger *OrderLedger) (float64, bool) {
	oldest, ok := ledger.Oldest()
	if !ok {
		return 0, false
	}
	return p.target(oldest.Price), true
}

func (p *fifoPartial) Apply(ledger *OrderLedger, candle value_objects.Candle) (*Exit, error) {
	target, ok := p.TargetPrice(ledger)
	if !ok || !p.reached(candle, target) {
		return nil, nil
	}

	oldest, err := ledger.PopOldest()
	if err != nil {
		return nil, err
	}
	return settle(p.pnl, p.direction, ReasonTakeProfit, target, candle.Timestamp(), []Lot{oldest}), nil
}

type fullClose struct {
	exitBase
}

func (p *fullClose) Kind() ExitPolicyKind { return FullClose }

func (p *fullClose) TargetPrice(ledger *OrderLedger) (float64, bool) {
	if ledger.IsEmpty() {
		return 0, false
	}
	avg := p.pnl.AveragePrice(ledger.TotalQuote(), ledger.TotalBase())
	return p.target(avg), true
}

func (p *fullClose) Apply(ledger *OrderLedger, candle value_objects.Candle) (*Exit, error) {
	target, ok := p.TargetPrice(ledger)
	if !ok || !p.reached(candle, target) {
		return nil, nil
	}
	return CloseAll(ledger, p.direction, ReasonTakeProfit, target, candle.Timestamp())
}

// CloseAll clears the ledger at price and returns the aggregate transition.
func CloseAll(
	ledger *OrderLedger,
	direction value_objects.Direction,
	reason ExitReason,
	price float64,
	at time.Time,
) (*Exit, error) {
	if ledger.IsEmpty() {
		return nil, ErrEmptyLedger
	}
	return settle(NewPnLCalculator(), direction, reason, price, at, ledger.Clear()), nil
}

func settle(
	pc *PnLCalculator,
	direction value_objects.Direction,
	reason ExitReason,
	price float64,
	at time.Time,
	lots []Lot,
) *Exit {
	exit := &Exit{
		Reason: reason,
		Price:  price,
		Time:   at,
		Lots:   lots,
	}
	for _, lot := range lots {
		pnl, _ := pc.CalculatePnL(price, lot.Price, lot.BaseSize, direction)
		exit.BaseSize += lot.BaseSize
		exit.QuoteSize += lot.QuoteSize
		exit.PnL += pnl
	}
	exit.Proceeds = exit.QuoteSize + exit.PnL
	if exit.QuoteSize > 0 {
		exit.PnLPercent = exit.PnL / exit.QuoteSize * 100
	}
	return exit
}

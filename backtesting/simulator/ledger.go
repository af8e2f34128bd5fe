package simulator

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrLedgerFull is returned when a push would exceed the configured depth.
	ErrLedgerFull = errors.New("order ledger is full")
	// ErrLevelOrder is returned when a lot's level does not exceed the last lot's.
	ErrLevelOrder = errors.New("lot level must increase")
	// ErrEmptyLedger is returned when removing from an empty ledger.
	ErrEmptyLedger = errors.New("order ledger is empty")
)

// Lot is one filled order. Lots are never modified after they are created.
type Lot struct {
	Price     float64   `json:"price"`     // fill price
	BaseSize  float64   `json:"baseSize"`  // quantity of the traded asset
	QuoteSize float64   `json:"quoteSize"` // notional paid
	Level     int       `json:"level"`     // 0 = initial order, 1..N = safety orders
	OpenTime  time.Time `json:"openTime"`
	Fee       float64   `json:"fee"` // commission paid on the fill
}

// OrderLedger holds the open lots of the active cycle, oldest first.
//
// Invariants: Len() <= maxDepth, and levels strictly increase from the
// oldest lot to the newest.
type OrderLedger struct {
	lots     []Lot
	maxDepth int
}

// initialCapacity bounds the preallocation; maxDepth only caps Push.
const initialCapacity = 16

// NewOrderLedger creates an empty ledger holding at most maxDepth lots.
func NewOrderLedger(maxDepth int) *OrderLedger {
	return &OrderLedger{
		lots:     make([]Lot, 0, capacityFor(maxDepth)),
		maxDepth: maxDepth,
	}
}

// DepthForSafetyOrders returns safetyOrders + 1, saturating at math.MaxInt.
func DepthForSafetyOrders(safetyOrders int) int {
	if safetyOrders >= math.MaxInt {
		return math.MaxInt
	}
	return safetyOrders + 1
}

func capacityFor(maxDepth int) int {
	return max(0, min(maxDepth, initialCapacity))
}

// Push appends a newly filled lot.
func (l *OrderLedger) Push(lot Lot) error {
	if len(l.lots) >= l.maxDepth {
		return fmt.Errorf("%w: depth %d", ErrLedgerFull, l.maxDepth)
	}
	if last, ok := l.Last(); ok && lot.Level <= last.Level {
		return fmt.Errorf("%w: %d after %d", ErrLevelOrder, lot.Level, last.Level)
	}
	l.lots = append(l.lots, lot)
	return nil
}

// PopOldest removes and returns the oldest lot.
func (l *OrderLedger) PopOldest() (Lot, error) {
	if len(l.lots) == 0 {
		return Lot{}, ErrEmptyLedger
	}
	oldest := l.lots[0]
	l.lots[0] = Lot{}
	l.lots = l.lots[1:]
	return oldest, nil
}

// Clear removes every lot and returns them oldest first.
func (l *OrderLedger) Clear() []Lot {
	closed := l.Lots()
	l.lots = make([]Lot, 0, capacityFor(l.maxDepth))
	return closed
}

// Oldest returns the first filled lot still open.
func (l *OrderLedger) Oldest() (Lot, bool) {
	if len(l.lots) == 0 {
		return Lot{}, false
	}
	return l.lots[0], true
}

// Last returns the most recently filled lot.
func (l *OrderLedger) Last() (Lot, bool) {
	if len(l.lots) == 0 {
		return Lot{}, false
	}
	return l.lots[len(l.lots)-1], true
}

// Len returns the number of open lots.
func (l *OrderLedger) Len() int { return len(l.lots) }

// IsEmpty reports whether no lot is open.
func (l *OrderLedger) IsEmpty() bool { return len(l.lots) == 0 }

// MaxDepth returns the configured capacity.
func (l *OrderLedger) MaxDepth() int { return l.maxDepth }

// Lots returns a copy of the open lots, oldest first.
func (l *OrderLedger) Lots() []Lot {
	out := make([]Lot, len(l.lots))
	copy(out, l.lots)
	return out
}

// TotalBase sums BaseSize over open lots.
func (l *OrderLedger) TotalBase() float64 {
	total := 0.0
	for _, lot := range l.lots {
		total += lot.BaseSize
	}
	return total
}

// TotalQuote sums QuoteSize over open lots.
func (l *OrderLedger) TotalQuote() float64 {
	total := 0.0
	for _, lot := range l.lots {
		total += lot.QuoteSize
	}
	return total
}

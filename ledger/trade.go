// Package ledger applies profit-and-loss arithmetic to a trade over its
// life: at open, on every price update and at close. Functions take and
// return Trade values; nothing here keeps state between calls.
package ledger

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/evdnx/gosignal/types"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusOpen    Status = "OPEN"
	StatusClosed  Status = "CLOSED"
)

// DefaultCloseReason is recorded when a close carries no reason.
const DefaultCloseReason = "manual"

var (
	// ErrTradeClosed rejects any change to a trade that already closed.
	ErrTradeClosed = errors.New("ledger: trade is closed")
	// ErrTradePending rejects price arithmetic on a trade that never opened.
	ErrTradePending = errors.New("ledger: trade is pending")
	// ErrTradeOpen rejects opening a trade twice.
	ErrTradeOpen = errors.New("ledger: trade is already open")
	// ErrInvalidTrade flags trades that can't carry meaningful P&L.
	ErrInvalidTrade = errors.New("ledger: invalid trade")
)

// Trade is one position from entry to exit. Optional prices are nil until
// known. After ApplyClose the exit fields never change again.
type Trade struct {
	ID            string
	Symbol        string
	Ticket        string // executor reference, if any
	Direction     types.Side
	Status        Status
	EntryPrice    float64
	CurrentPrice  *float64
	ExitPrice     *float64
	StopLoss      float64
	TakeProfit    float64
	Volume        float64
	PnL           float64
	PnLPercentage float64
	OpenedAt      time.Time
	ClosedAt      *time.Time
	CloseReason   string
}

// Params describe a trade about to be opened.
type Params struct {
	Symbol     string
	Ticket     string
	Direction  types.Side
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	Volume     float64
}

// PnL returns the direction-adjusted profit of volume units moved from
// entry to price.
func PnL(direction types.Side, entry, price, volume float64) float64 {
	if direction == types.Sell {
		return (entry - price) * volume
	}
	return (price - entry) * volume
}

// PnLPercentage expresses pnl relative to the entry notional. A zero
// notional yields 0.
func PnLPercentage(pnl, entry, volume float64) float64 {
	notional := entry * volume
	if notional == 0 {
		return 0
	}
	return pnl / notional * 100
}

// NewPending builds a PENDING trade with a fresh ID.
func NewPending(p Params) (Trade, error) {
	if !p.Direction.Valid() {
		return Trade{}, fmt.Errorf("%w: direction %q", ErrInvalidTrade, p.Direction)
	}
	if !validPrice(p.Volume) {
		return Trade{}, fmt.Errorf("%w: volume %v", ErrInvalidTrade, p.Volume)
	}
	return Trade{
		ID:         uuid.NewString(),
		Symbol:     p.Symbol,
		Ticket:     p.Ticket,
		Direction:  p.Direction,
		Status:     StatusPending,
		EntryPrice: p.EntryPrice,
		StopLoss:   p.StopLoss,
		TakeProfit: p.TakeProfit,
		Volume:     p.Volume,
	}, nil
}

// Open builds a trade and opens it at p.EntryPrice.
func Open(p Params, at time.Time) (Trade, error) {
	t, err := NewPending(p)
	if err != nil {
		return Trade{}, err
	}
	return ApplyOpen(t, p.EntryPrice, at)
}

// ApplyOpen moves a PENDING trade to OPEN at entry (the fill price) with
// zero P&L. A non-positive entry keeps the trade's own EntryPrice.
func ApplyOpen(t Trade, entry float64, at time.Time) (Trade, error) {
	switch t.Status {
	case StatusClosed:
		return t, ErrTradeClosed
	case StatusOpen:
		return t, ErrTradeOpen
	}
	if validPrice(entry) {
		t.EntryPrice = entry
	}
	if !validPrice(t.EntryPrice) {
		return t, fmt.Errorf("%w: entry price %v", ErrInvalidTrade, t.EntryPrice)
	}
	t.Status = StatusOpen
	t.CurrentPrice = nil
	t.PnL = 0
	t.PnLPercentage = 0
	t.OpenedAt = at
	return t, nil
}

// ApplyUpdate marks an OPEN trade to price. A non-finite or non-positive
// price is rejected and the trade is returned unchanged.
func ApplyUpdate(t Trade, price float64) (Trade, error) {
	if err := requireOpen(t); err != nil {
		return t, err
	}
	if !validPrice(price) {
		return t, fmt.Errorf("%w: price %v", ErrInvalidTrade, price)
	}
	t.CurrentPrice = &price
	t.PnL = PnL(t.Direction, t.EntryPrice, price, t.Volume)
	return t, nil
}

// Revise replaces the protective levels of a trade that has not closed.
// A nil argument leaves that level unchanged.
func Revise(t Trade, stopLoss, takeProfit *float64) (Trade, error) {
	if t.Status == StatusClosed {
		return t, ErrTradeClosed
	}
	if (stopLoss != nil && !validLevel(*stopLoss)) || (takeProfit != nil && !validLevel(*takeProfit)) {
		return t, fmt.Errorf("%w: non-finite level", ErrInvalidTrade)
	}
	if stopLoss != nil {
		t.StopLoss = *stopLoss
	}
	if takeProfit != nil {
		t.TakeProfit = *takeProfit
	}
	return t, nil
}

// ApplyClose realizes P&L at price and moves the trade to CLOSED. The
// price must be finite and positive. Closing is one-way: a second call
// returns ErrTradeClosed and leaves the trade untouched.
func ApplyClose(t Trade, price float64, reason string, at time.Time) (Trade, error) {
	if err := requireOpen(t); err != nil {
		return t, err
	}
	if !validPrice(price) {
		return t, fmt.Errorf("%w: exit price %v", ErrInvalidTrade, price)
	}
	if reason == "" {
		reason = DefaultCloseReason
	}
	pnl := PnL(t.Direction, t.EntryPrice, price, t.Volume)
	t.Status = StatusClosed
	t.ExitPrice = &price
	t.CurrentPrice = &price
	t.PnL = pnl
	t.PnLPercentage = PnLPercentage(pnl, t.EntryPrice, t.Volume)
	t.ClosedAt = &at
	t.CloseReason = reason
	return t, nil
}

// validPrice reports whether v is finite and positive.
func validPrice(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// validLevel accepts 0 (level off) or any finite positive price.
func validLevel(v float64) bool {
	return v == 0 || validPrice(v)
}

func requireOpen(t Trade) error {
	switch t.Status {
	case StatusOpen:
		return nil
	case StatusClosed:
		return ErrTradeClosed
	case StatusPending:
		return ErrTradePending
	}
	return fmt.Errorf("%w: status %q", ErrInvalidTrade, t.Status)
}

// IsOpen reports whether the trade is live.
func (t Trade) IsOpen() bool { return t.Status == StatusOpen }

// StopHit reports whether price breaches the stop-loss. A zero stop is off.
func (t Trade) StopHit(price float64) bool {
	if t.StopLoss <= 0 {
		return false
	}
	if t.Direction == types.Sell {
		return price >= t.StopLoss
	}
	return price <= t.StopLoss
}

// TargetHit reports whether price reaches the take-profit. A zero target is off.
func (t Trade) TargetHit(price float64) bool {
	if t.TakeProfit <= 0 {
		return false
	}
	if t.Direction == types.Sell {
		return price <= t.TakeProfit
	}
	return price >= t.TakeProfit
}

// Duration is the time the trade spent open, measured to now for live trades.
func (t Trade) Duration(now time.Time) time.Duration {
	if t.OpenedAt.IsZero() {
		return 0
	}
	if t.ClosedAt != nil {
		return t.ClosedAt.Sub(t.OpenedAt)
	}
	return now.Sub(t.OpenedAt)
}

package executor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evdnx/gosignal/ledger"
	"github.com/evdnx/gosignal/logger"
	"github.com/evdnx/gosignal/metrics"
	"github.com/evdnx/gosignal/types"
)

var (
	ErrUnknownTicket      = errors.New("executor: unknown ticket")
	ErrInsufficientMargin = errors.New("executor: insufficient free margin")
	ErrInvalidOrder       = errors.New("executor: invalid order")
)

// Executor is the order sink the engine trades through.
type Executor interface {
	Open(ctx context.Context, o types.Order) (types.Fill, error)
	// Close flattens the position behind ticket at price.
	Close(ctx context.Context, ticket string, price float64) (types.Fill, error)
	Balance() float64
}

// AccountInfo is a snapshot of the trading account.
type AccountInfo struct {
	Balance     float64
	Equity      float64
	FreeMargin  float64
	MarginUsed  float64
	MarginLevel float64 // percent; 0 with no open positions
}

type position struct {
	order  types.Order
	entry  float64
	margin float64
}

// PaperExecutor fills every order at its requested price, no slippage.
// Margin is notional / leverage and P&L is realized into the balance on
// close.
type PaperExecutor struct {
	mu        sync.RWMutex
	balance   float64
	leverage  float64
	positions map[string]position
	log       logger.Logger
	now       func() time.Time
}

func NewPaperExecutor(startBalance, leverage float64, log logger.Logger) *PaperExecutor {
	if leverage < 1 {
		leverage = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	metrics.BalanceGauge.Set(startBalance)
	return &PaperExecutor{
		balance:   startBalance,
		leverage:  leverage,
		positions: make(map[string]position),
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (p *PaperExecutor) Open(ctx context.Context, o types.Order) (types.Fill, error) {
	if err := ctx.Err(); err != nil {
		return types.Fill{}, err
	}
	if !o.Side.Valid() || o.Volume <= 0 || o.Price <= 0 || math.IsNaN(o.Volume) || math.IsNaN(o.Price) {
		return types.Fill{}, fmt.Errorf("%w: %s %v @ %v", ErrInvalidOrder, o.Side, o.Volume, o.Price)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	margin := o.Volume * o.Price / p.leverage
	if free := p.balance - p.marginUsedLocked(); margin > free {
		p.log.Warn("order_rejected",
			logger.String("symbol", o.Symbol),
			logger.Float64("margin", margin),
			logger.Float64("free_margin", free),
		)
		return types.Fill{}, fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientMargin, margin, free)
	}

	ticket := uuid.NewString()
	p.positions[ticket] = position{order: o, entry: o.Price, margin: margin}
	fill := types.Fill{
		Ticket: ticket,
		Symbol: o.Symbol,
		Side:   o.Side,
		Volume: o.Volume,
		Price:  o.Price,
		Time:   p.now(),
	}
	p.log.Info("order_filled",
		logger.String("ticket", ticket),
		logger.String("symbol", o.Symbol),
		logger.String("side", string(o.Side)),
		logger.Float64("volume", o.Volume),
		logger.Float64("price", o.Price),
		logger.String("comment", o.Comment),
	)
	return fill, nil
}

func (p *PaperExecutor) Close(ctx context.Context, ticket string, price float64) (types.Fill, error) {
	if err := ctx.Err(); err != nil {
		return types.Fill{}, err
	}
	if price <= 0 || math.IsNaN(price) {
		return types.Fill{}, fmt.Errorf("%w: close price %v", ErrInvalidOrder, price)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[ticket]
	if !ok {
		return types.Fill{}, fmt.Errorf("%w: %s", ErrUnknownTicket, ticket)
	}
	delete(p.positions, ticket)

	pnl := ledger.PnL(pos.order.Side, pos.entry, price, pos.order.Volume)
	p.balance += pnl
	metrics.BalanceGauge.Set(p.balance)

	p.log.Info("position_closed",
		logger.String("ticket", ticket),
		logger.String("symbol", pos.order.Symbol),
		logger.Float64("price", price),
		logger.Float64("pnl", pnl),
		logger.Float64("balance", p.balance),
	)
	return types.Fill{
		Ticket: ticket,
		Symbol: pos.order.Symbol,
		Side:   pos.order.Side.Opposite(),
		Volume: pos.order.Volume,
		Price:  price,
		Time:   p.now(),
	}, nil
}

func (p *PaperExecutor) Balance() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.balance
}

// Positions returns the open orders by ticket, priced at entry.
func (p *PaperExecutor) Positions() map[string]types.Order {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]types.Order, len(p.positions))
	for t, pos := range p.positions {
		o := pos.order
		o.Price = pos.entry
		out[t] = o
	}
	return out
}

// Account marks open positions to marks (by symbol). Positions without a
// mark are valued at entry.
func (p *PaperExecutor) Account(marks map[string]float64) AccountInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()

	info := AccountInfo{Balance: p.balance, MarginUsed: p.marginUsedLocked()}
	unrealized := 0.0
	for _, pos := range p.positions {
		px, ok := marks[pos.order.Symbol]
		if !ok || px <= 0 {
			px = pos.entry
		}
		unrealized += ledger.PnL(pos.order.Side, pos.entry, px, pos.order.Volume)
	}
	info.Equity = p.balance + unrealized
	info.FreeMargin = info.Equity - info.MarginUsed
	if info.MarginUsed > 0 {
		info.MarginLevel = info.Equity / info.MarginUsed * 100
	}
	return info
}

func (p *PaperExecutor) marginUsedLocked() float64 {
	used := 0.0
	for _, pos := range p.positions {
		used += pos.margin
	}
	return used
}

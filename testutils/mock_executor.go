package testutils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/evdnx/gosignal/ledger"
	"github.com/evdnx/gosignal/types"
)

// MockExecutor implements the executor interface in-memory. Orders fill at
// their requested price and closes realize P&L into the balance.
type MockExecutor struct {
	mu       sync.RWMutex
	balance  float64
	open     map[string]types.Order
	orders   []types.Order // captured for assertions
	closes   []types.Fill
	seq      int
	OpenErr  error // returned by Open when set
	CloseErr error // returned by Close when set
}

// NewMockExecutor creates a fresh executor with the supplied starting balance.
func NewMockExecutor(startBalance float64) *MockExecutor {
	return &MockExecutor{
		balance: startBalance,
		open:    make(map[string]types.Order),
	}
}

func (m *MockExecutor) Open(ctx context.Context, o types.Order) (types.Fill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OpenErr != nil {
		return types.Fill{}, m.OpenErr
	}
	m.seq++
	ticket := fmt.Sprintf("T%d", m.seq)
	m.open[ticket] = o
	m.orders = append(m.orders, o)
	return types.Fill{
		Ticket: ticket,
		Symbol: o.Symbol,
		Side:   o.Side,
		Volume: o.Volume,
		Price:  o.Price,
		Time:   time.Now().UTC(),
	}, nil
}

func (m *MockExecutor) Close(ctx context.Context, ticket string, price float64) (types.Fill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CloseErr != nil {
		return types.Fill{}, m.CloseErr
	}
	o, ok := m.open[ticket]
	if !ok {
		return types.Fill{}, fmt.Errorf("mock executor: unknown ticket %s", ticket)
	}
	delete(m.open, ticket)
	m.balance += ledger.PnL(o.Side, o.Price, price, o.Volume)
	fill := types.Fill{
		Ticket: ticket,
		Symbol: o.Symbol,
		Side:   o.Side.Opposite(),
		Volume: o.Volume,
		Price:  price,
		Time:   time.Now().UTC(),
	}
	m.closes = append(m.closes, fill)
	return fill, nil
}

// Balance returns the current cash balance.
func (m *MockExecutor) Balance() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balance
}

// Orders returns a copy of all opened orders (useful for assertions).
func (m *MockExecutor) Orders() []types.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Order, len(m.orders))
	copy(out, m.orders)
	return out
}

// Closes returns a copy of every close fill.
func (m *MockExecutor) Closes() []types.Fill {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Fill, len(m.closes))
	copy(out, m.closes)
	return out
}

// OpenTickets is the number of positions still open.
func (m *MockExecutor) OpenTickets() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.open)
}

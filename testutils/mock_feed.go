package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/evdnx/gosignal/types"
)

// MockFeed serves whatever bars and quote a test sets on it.
type MockFeed struct {
	mu         sync.Mutex
	bars       []types.PriceBar
	tick       types.Tick
	CandlesErr error
	TickErr    error
	calls      int
}

func NewMockFeed(bars []types.PriceBar, tick types.Tick) *MockFeed {
	return &MockFeed{bars: bars, tick: tick}
}

func (f *MockFeed) SetBars(bars []types.PriceBar) {
	f.mu.Lock()
	f.bars = bars
	f.mu.Unlock()
}

// SetQuote replaces the quote returned by Tick.
func (f *MockFeed) SetQuote(bid, ask float64) {
	f.mu.Lock()
	f.tick.Bid, f.tick.Ask = bid, ask
	f.mu.Unlock()
}

func (f *MockFeed) Candles(ctx context.Context, symbol string, timeframe time.Duration, count int) ([]types.PriceBar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.CandlesErr != nil {
		return nil, f.CandlesErr
	}
	bars := f.bars
	if count > 0 && len(bars) > count {
		bars = bars[len(bars)-count:]
	}
	return append([]types.PriceBar(nil), bars...), nil
}

func (f *MockFeed) Tick(ctx context.Context, symbol string) (types.Tick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.TickErr != nil {
		return types.Tick{}, f.TickErr
	}
	tk := f.tick
	tk.Symbol = symbol
	return tk, nil
}

// Calls counts Candles requests.
func (f *MockFeed) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

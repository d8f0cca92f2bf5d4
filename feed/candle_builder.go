package feed

import (
	"time"

	"github.com/evdnx/gosignal/types"
)

// CandleBuilder folds quotes into fixed-timeframe bars using the mid price.
// Volume counts ticks. Not safe for concurrent use; WSFeed guards it.
type CandleBuilder struct {
	tf      time.Duration
	max     int
	closed  []types.PriceBar
	current *types.PriceBar
}

// NewCandleBuilder keeps at most max completed bars.
func NewCandleBuilder(timeframe time.Duration, max int) *CandleBuilder {
	if timeframe <= 0 {
		timeframe = time.Minute
	}
	if max <= 0 {
		max = 500
	}
	return &CandleBuilder{tf: timeframe, max: max}
}

// Add folds tk into the forming bar. It returns the bar that tk completed,
// if any. Ticks older than the forming bar are dropped.
func (b *CandleBuilder) Add(tk types.Tick) (completed *types.PriceBar) {
	px := tk.Mid()
	start := tk.Time.Truncate(b.tf)

	if b.current != nil && start.Before(b.current.Time) {
		return nil
	}
	if b.current != nil && start.After(b.current.Time) {
		done := *b.current
		b.closed = append(b.closed, done)
		if len(b.closed) > b.max {
			b.closed = b.closed[len(b.closed)-b.max:]
		}
		b.current = nil
		completed = &done
	}
	if b.current == nil {
		b.current = &types.PriceBar{Open: px, High: px, Low: px, Close: px, Time: start}
	}
	c := b.current
	if px > c.High {
		c.High = px
	}
	if px < c.Low {
		c.Low = px
	}
	c.Close = px
	c.Volume++
	return completed
}

// Bars returns up to count bars, oldest first, with the forming bar last.
func (b *CandleBuilder) Bars(count int) []types.PriceBar {
	all := b.closed
	if b.current != nil {
		all = append(all[:len(all):len(all)], *b.current)
	}
	return lastN(all, count)
}

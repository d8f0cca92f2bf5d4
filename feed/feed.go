// Package feed supplies market data to the engine: OHLC candles and the
// latest bid/ask quote for a symbol.
package feed

import (
	"context"
	"errors"
	"time"

	"github.com/evdnx/gosignal/types"
)

// ErrNoData is returned while a feed has nothing for the requested symbol.
var ErrNoData = errors.New("feed: no data")

// Feed is the market-data side of a broker connection.
type Feed interface {
	// Candles returns up to count bars of the given timeframe, oldest first.
	Candles(ctx context.Context, symbol string, timeframe time.Duration, count int) ([]types.PriceBar, error)
	// Tick returns the latest quote.
	Tick(ctx context.Context, symbol string) (types.Tick, error)
}

func lastN(bars []types.PriceBar, n int) []types.PriceBar {
	if n > 0 && len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	out := make([]types.PriceBar, len(bars))
	copy(out, bars)
	return out
}

// Completed drops a trailing bar that is still forming at at, i.e. whose
// timeframe window has not ended yet. Bars are assumed oldest first.
func Completed(bars []types.PriceBar, timeframe time.Duration, at time.Time) []types.PriceBar {
	n := len(bars)
	if n == 0 || timeframe <= 0 {
		return bars
	}
	if last := bars[n-1]; last.Time.Add(timeframe).After(at) {
		return bars[:n-1]
	}
	return bars
}

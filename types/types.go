package types

import "time"

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Valid reports whether s is one of the two tradable directions.
func (s Side) Valid() bool { return s == Buy || s == Sell }

// Opposite returns the side that flattens a position opened on s.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// PriceBar is a single OHLCV candle. Sequences are ordered oldest -> newest.
type PriceBar struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	Time   time.Time
}

// Tick is a top-of-book quote.
type Tick struct {
	Symbol string
	Bid    float64
	Ask    float64
	Time   time.Time
}

// Mid returns the midpoint of bid and ask.
func (t Tick) Mid() float64 { return (t.Bid + t.Ask) / 2 }

// PriceFor returns the price a market order on side would fill at.
func (t Tick) PriceFor(side Side) float64 {
	if side == Buy {
		return t.Ask
	}
	return t.Bid
}

type Order struct {
	Symbol     string
	Side       Side
	Volume     float64
	Price      float64 // expected fill; 0 = take from the quote
	StopLoss   float64
	TakeProfit float64
	// meta
	Comment string
}

// Fill is the executor's acknowledgement of an opened or closed order.
type Fill struct {
	Ticket string
	Symbol string
	Side   Side
	Volume float64
	Price  float64
	Time   time.Time
}

package feed

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/evdnx/gosignal/types"
)

// SimConfig tunes the simulated broker.
type SimConfig struct {
	Base   float64 // first open, default 2050
	Step   float64 // per-bar drift, default 0.1
	Spread float64 // ask - bid, default 0.25
	// Volatility > 0 switches to a seeded random walk that advances one bar
	// per Tick call. Zero keeps the fixed reference series and quote.
	Volatility float64
	Seed       int64
	Start      time.Time // time of bar 0, default 24h before construction
}

// Simulated is an in-process stand-in for a broker connection.
//
// In reference mode bar i is open Base+Step*i, high +0.5, low -0.5,
// close +0.2, volume 1000+10i, and the quote is fixed at Base+0.50 /
// Base+0.75.
type Simulated struct {
	mu   sync.Mutex
	cfg  SimConfig
	rng  *rand.Rand
	tf   time.Duration
	bars []types.PriceBar
}

func NewSimulated(cfg SimConfig) *Simulated {
	if cfg.Base == 0 {
		cfg.Base = 2050
	}
	if cfg.Step == 0 {
		cfg.Step = 0.1
	}
	if cfg.Spread == 0 {
		cfg.Spread = 0.25
	}
	if cfg.Start.IsZero() {
		cfg.Start = time.Now().UTC().Add(-24 * time.Hour).Truncate(time.Minute)
	}
	return &Simulated{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}
}

func (s *Simulated) Candles(ctx context.Context, symbol string, timeframe time.Duration, count int) ([]types.PriceBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tf == 0 {
		s.tf = timeframe
	}
	for len(s.bars) < count {
		s.bars = append(s.bars, s.nextBar())
	}
	return lastN(s.bars, count), nil
}

func (s *Simulated) Tick(ctx context.Context, symbol string) (types.Tick, error) {
	if err := ctx.Err(); err != nil {
		return types.Tick{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Volatility <= 0 {
		bid := s.cfg.Base + 0.5
		return types.Tick{Symbol: symbol, Bid: bid, Ask: bid + s.cfg.Spread, Time: time.Now().UTC()}, nil
	}
	bar := s.nextBar()
	s.bars = append(s.bars, bar)
	return types.Tick{Symbol: symbol, Bid: bar.Close, Ask: bar.Close + s.cfg.Spread, Time: bar.Time}, nil
}

func (s *Simulated) nextBar() types.PriceBar {
	i := len(s.bars)
	tf := s.tf
	if tf == 0 {
		tf = time.Minute
	}
	at := s.cfg.Start.Add(time.Duration(i) * tf)
	vol := 1000 + 10*float64(i)

	if s.cfg.Volatility <= 0 || i == 0 {
		o := s.cfg.Base + s.cfg.Step*float64(i)
		return types.PriceBar{Open: o, High: o + 0.5, Low: o - 0.5, Close: o + 0.2, Volume: vol, Time: at}
	}
	prev := s.bars[i-1].Close
	c := prev + s.rng.NormFloat64()*s.cfg.Volatility
	wick := math.Abs(s.rng.NormFloat64()) * s.cfg.Volatility / 2
	return types.PriceBar{
		Open:   prev,
		High:   math.Max(prev, c) + wick,
		Low:    math.Min(prev, c) - wick,
		Close:  c,
		Volume: vol,
		Time:   at,
	}
}

package risk

import "math"

// priceBuffer keeps a rolling window of recent closes and measures their
// average absolute bar-to-bar move, the fallback volatility when the
// indicator suite has nothing usable yet.
type priceBuffer struct {
	max int
	buf []float64
}

func newPriceBuffer(max int) *priceBuffer {
	if max <= 0 {
		max = 16
	}
	return &priceBuffer{max: max}
}

func (p *priceBuffer) Add(v float64) {
	p.buf = append(p.buf, v)
	if len(p.buf) > p.max {
		p.buf = p.buf[len(p.buf)-p.max:]
	}
}

func (p *priceBuffer) Len() int {
	return len(p.buf)
}

func (p *priceBuffer) Last() float64 {
	if len(p.buf) == 0 {
		return 0
	}
	return p.buf[len(p.buf)-1]
}

// Volatility is the mean absolute change over the last (up to) 8 moves.
func (p *priceBuffer) Volatility() float64 {
	n := len(p.buf)
	if n < 2 {
		return 0
	}
	lookback := 8
	if lookback >= n {
		lookback = n - 1
	}
	start := n - lookback - 1
	diffSum := 0.0
	count := 0
	for i := start + 1; i < n; i++ {
		diffSum += math.Abs(p.buf[i] - p.buf[i-1])
		count++
	}
	if count == 0 {
		return 0
	}
	return diffSum / float64(count)
}

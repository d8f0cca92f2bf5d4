// Package indicator holds the pure price-series math used by the signal
// scorer. Every function accepts closes ordered oldest -> newest and never
// fails: short history degrades to a neutral value instead of an error.
package indicator

import "github.com/evdnx/gosignal/types"

// Default look-back periods.
const (
	RSIPeriod  = 14
	MACDFast   = 12
	MACDSlow   = 26
	MACDSignal = 9
	SMAShort   = 20
	SMALong    = 50
)

// NeutralRSI is returned when there is not enough history for RSI.
const NeutralRSI = 50.0

// MACDResult is the latest MACD reading.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

type MovingAverages struct {
	SMA20 float64
	SMA50 float64
	EMA12 float64
}

// Set bundles every reading the scorer looks at.
type Set struct {
	RSI            float64
	MACD           MACDResult
	MovingAverages MovingAverages
}

// Closes extracts the close of every bar, preserving order.
func Closes(bars []types.PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// EMA returns the exponential moving average of prices with smoothing
// k = 2/(period+1).
//
// The recursion is seeded with the newest price and walks back toward the
// oldest one. The result therefore differs from the textbook oldest-first
// EMA; EMA, MACD and everything scored from them share this convention.
// Fewer than period prices are fine: all available prices are used.
func EMA(prices []float64, period int) float64 {
	n := len(prices)
	if n == 0 {
		return 0
	}
	if period < 1 {
		period = 1
	}
	k := 2 / float64(period+1)
	ema := prices[n-1]
	for i := n - 2; i >= 0; i-- {
		ema = prices[i]*k + ema*(1-k)
	}
	return ema
}

// SMA is the arithmetic mean of the last window prices, or of all prices
// when fewer are available.
func SMA(prices []float64, window int) float64 {
	n := len(prices)
	if n == 0 {
		return 0
	}
	if window > 0 && window < n {
		prices = prices[n-window:]
	}
	sum := 0.0
	for _, p := range prices {
		sum += p
	}
	return sum / float64(len(prices))
}

// RSI computes the relative strength index over the most recent period
// closes. With fewer than period closes it returns NeutralRSI.
// A window with no losing moves uses rs = 1.
func RSI(prices []float64, period int) float64 {
	if period < 1 {
		period = 1
	}
	if len(prices) < period {
		return NeutralRSI
	}
	window := prices[len(prices)-period:]
	var gains, losses float64
	for i := 1; i < len(window); i++ {
		d := window[i] - window[i-1]
		if d >= 0 {
			gains += d
		} else {
			losses -= d
		}
	}
	up := gains / float64(period)
	down := losses / float64(period)

	rs := 1.0
	if down != 0 {
		rs = up / down
	}
	return 100 - 100/(1+rs)
}

// MACD returns EMA12 - EMA26 with a signal line taken as the 9-period EMA of
// the single latest MACD value, so Signal == MACD and Histogram == 0. Use
// MACDWithHistory for a smoothed signal line. Fewer than 26 closes yield
// a zero result.
func MACD(prices []float64) MACDResult {
	if len(prices) < MACDSlow {
		return MACDResult{}
	}
	macd := macdLine(prices)
	signal := EMA([]float64{macd}, MACDSignal)
	return MACDResult{
		MACD:      macd,
		Signal:    signal,
		Histogram: macd - signal,
	}
}

// MACDWithHistory smooths the signal line over the MACD values of the last
// MACDSignal bars instead of the latest value alone. With exactly 26 closes
// it matches MACD.
func MACDWithHistory(prices []float64) MACDResult {
	n := len(prices)
	if n < MACDSlow {
		return MACDResult{}
	}
	start := n - MACDSignal + 1
	if start < MACDSlow {
		start = MACDSlow
	}
	history := make([]float64, 0, n-start+1)
	for end := start; end <= n; end++ {
		history = append(history, macdLine(prices[:end]))
	}
	macd := history[len(history)-1]
	signal := EMA(history, MACDSignal)
	return MACDResult{
		MACD:      macd,
		Signal:    signal,
		Histogram: macd - signal,
	}
}

func macdLine(prices []float64) float64 {
	return EMA(prices, MACDFast) - EMA(prices, MACDSlow)
}

// ComputeMovingAverages returns SMA20, SMA50 and EMA12.
func ComputeMovingAverages(prices []float64) MovingAverages {
	return MovingAverages{
		SMA20: SMA(prices, SMAShort),
		SMA50: SMA(prices, SMALong),
		EMA12: EMA(prices, MACDFast),
	}
}

// Compute runs the full pipeline. smoothSignal selects MACDWithHistory
// over the single-sample MACD signal line.
func Compute(prices []float64, rsiPeriod int, smoothSignal bool) Set {
	macd := MACD(prices)
	if smoothSignal {
		macd = MACDWithHistory(prices)
	}
	return Set{
		RSI:            RSI(prices, rsiPeriod),
		MACD:           macd,
		MovingAverages: ComputeMovingAverages(prices),
	}
}

package testutils

import (
	"time"

	"github.com/evdnx/gosignal/types"
)

// BarStart is the time of the first bar built by BarsFromCloses and RampBars.
var BarStart = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

// BarsFromCloses builds 5-minute bars around closes: open is the previous
// close, high/low sit 0.5 either side of the close and volume is 1000.
func BarsFromCloses(closes ...float64) []types.PriceBar {
	bars := make([]types.PriceBar, len(closes))
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		bars[i] = types.PriceBar{
			Open:   open,
			High:   max(open, c) + 0.5,
			Low:    min(open, c) - 0.5,
			Close:  c,
			Volume: 1000,
			Time:   BarStart.Add(time.Duration(i) * 5 * time.Minute),
		}
	}
	return bars
}

// RampBars returns n bars whose closes move linearly from start by step.
func RampBars(n int, start, step float64) []types.PriceBar {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = start + step*float64(i)
	}
	return BarsFromCloses(closes...)
}

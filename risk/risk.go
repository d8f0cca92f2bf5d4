package risk

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/evdnx/gosignal/config"
)

// CalcVolume sizes a position so that a stop-loss hit costs riskPercent of
// balance. riskPercent is a whole-number percentage (2.0 = 2 %) and
// stopLossPips is scaled by cfg.PipValue.
//
// A zero stop distance returns cfg.MinVolume instead of dividing by zero,
// and so does any result that would round to a non-positive volume.
// entryPrice is accepted for callers that size by notional; the pip model
// does not use it.
func CalcVolume(balance, riskPercent, entryPrice, stopLossPips float64, cfg config.EngineConfig) float64 {
	_ = entryPrice
	// Dollar risk per trade
	riskAmt := balance * (riskPercent / 100)
	// Stop‑loss distance in price
	slAmt := math.Abs(stopLossPips) * cfg.PipValue
	if slAmt == 0 || math.IsNaN(slAmt) {
		return cfg.MinVolume
	}
	raw := riskAmt / slAmt
	if math.IsNaN(raw) || math.IsInf(raw, 0) || raw <= 0 {
		return cfg.MinVolume
	}
	vol := decimal.NewFromFloat(raw).Round(int32(cfg.VolumePrecision)).InexactFloat64()
	if vol <= 0 {
		return cfg.MinVolume
	}
	return vol
}

// RiskAmount is the account-currency loss a stop-out at stopLossPips would
// cost for volume units.
func RiskAmount(volume, stopLossPips float64, cfg config.EngineConfig) float64 {
	return volume * math.Abs(stopLossPips) * cfg.PipValue
}

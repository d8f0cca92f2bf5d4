// Package signal fuses indicator readings into a single BUY/SELL/HOLD
// decision with a heuristic confidence score.
package signal

import (
	"github.com/evdnx/gosignal/config"
	"github.com/evdnx/gosignal/indicator"
	"github.com/evdnx/gosignal/types"
)

type Type string

const (
	Buy  Type = "BUY"
	Sell Type = "SELL"
	Hold Type = "HOLD"
)

// Side maps a directional signal onto an order side. ok is false for HOLD.
func (t Type) Side() (side types.Side, ok bool) {
	switch t {
	case Buy:
		return types.Buy, true
	case Sell:
		return types.Sell, true
	}
	return "", false
}

const (
	ReasonInsufficientData = "insufficient data"
	ReasonScored           = "scored"
)

// MaxConfidence caps the additive score.
const MaxConfidence = 100

// Decision is the outcome of one scoring run. It is a value; nothing in
// this package mutates it after Generate returns.
type Decision struct {
	Type         Type
	Confidence   int
	Indicators   indicator.Set
	CurrentPrice float64
	IsValid      bool
	Reason       string
	// Votes lists which rule groups voted and how, in evaluation order.
	Votes []Vote
}

// Vote records a single rule group's opinion.
type Vote struct {
	Rule string
	Type Type
}

// Levels are the prices a directional decision implies for a new trade.
type Levels struct {
	Entry      float64
	StopLoss   float64
	TakeProfit float64
}

// Levels converts pip distances into absolute stop-loss and take-profit
// prices around entry. ok is false for HOLD. A zero distance leaves the
// corresponding level unset.
func (d Decision) Levels(entry, stopLossPips, takeProfitPips, pipValue float64) (Levels, bool) {
	side, ok := d.Type.Side()
	if !ok {
		return Levels{}, false
	}
	sign := 1.0
	if side == types.Sell {
		sign = -1
	}
	lv := Levels{Entry: entry}
	if stopLossPips > 0 {
		lv.StopLoss = entry - sign*stopLossPips*pipValue
	}
	if takeProfitPips > 0 {
		lv.TakeProfit = entry + sign*takeProfitPips*pipValue
	}
	return lv, true
}

// Scorer evaluates bar windows against a fixed configuration. It holds no
// mutable state, so one Scorer may be shared between goroutines.
type Scorer struct {
	cfg config.EngineConfig
}

// NewScorer validates cfg and returns a scorer bound to it.
func NewScorer(cfg config.EngineConfig) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{cfg: cfg}, nil
}

// Generate scores bars (oldest -> newest) against currentPrice.
//
// Each rule group may cast one vote and add its weight to the base
// confidence. Weights are kept even when the vote loses the tally; ties,
// including no votes at all, resolve to HOLD.
func (s *Scorer) Generate(bars []types.PriceBar, currentPrice float64) Decision {
	if len(bars) < s.cfg.MinBars {
		return Decision{
			Type:         Hold,
			Confidence:   0,
			CurrentPrice: currentPrice,
			IsValid:      false,
			Reason:       ReasonInsufficientData,
		}
	}

	closes := indicator.Closes(bars)
	ind := indicator.Compute(closes, s.cfg.RSIPeriod, s.cfg.SmoothMACDSignal)

	confidence := s.cfg.BaseConfidence
	var votes []Vote
	cast := func(rule string, t Type, weight int) {
		votes = append(votes, Vote{Rule: rule, Type: t})
		confidence += weight
	}

	switch rsi := ind.RSI; {
	case rsi < s.cfg.RSIOversold:
		cast("rsi", Buy, s.cfg.RSIWeight)
	case rsi > s.cfg.RSIOverbought:
		cast("rsi", Sell, s.cfg.RSIWeight)
	}

	switch m := ind.MACD; {
	case m.Histogram > 0 && m.MACD > m.Signal:
		cast("macd", Buy, s.cfg.MACDWeight)
	case m.Histogram < 0 && m.MACD < m.Signal:
		cast("macd", Sell, s.cfg.MACDWeight)
	}

	switch ma := ind.MovingAverages; {
	case currentPrice > ma.SMA20 && ma.SMA20 > ma.SMA50:
		cast("moving_average", Buy, s.cfg.MAWeight)
	case currentPrice < ma.SMA20 && ma.SMA20 < ma.SMA50:
		cast("moving_average", Sell, s.cfg.MAWeight)
	}

	if confidence > MaxConfidence {
		confidence = MaxConfidence
	}
	if confidence < 0 {
		confidence = 0
	}

	return Decision{
		Type:         tally(votes),
		Confidence:   confidence,
		Indicators:   ind,
		CurrentPrice: currentPrice,
		IsValid:      confidence >= s.cfg.ConfidenceThreshold,
		Reason:       ReasonScored,
		Votes:        votes,
	}
}

func tally(votes []Vote) Type {
	var buys, sells int
	for _, v := range votes {
		switch v.Type {
		case Buy:
			buys++
		case Sell:
			sells++
		}
	}
	switch {
	case buys > sells:
		return Buy
	case sells > buys:
		return Sell
	default:
		return Hold
	}
}

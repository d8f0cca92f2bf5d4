package signal

import (
	"reflect"
	"testing"

	"github.com/evdnx/gosignal/config"
	"github.com/evdnx/gosignal/indicator"
	"github.com/evdnx/gosignal/testutils"
	"github.com/evdnx/gosignal/types"
)

func newScorer(t *testing.T, mutate func(*config.EngineConfig)) *Scorer {
	t.Helper()
	cfg := config.DefaultEngineConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewScorer(cfg)
	if err != nil {
		t.Fatalf("NewScorer failed: %v", err)
	}
	return s
}

// pullbackInUptrend: a steady rally followed by 14 falling closes. RSI over
// the last 14 closes is 0 (oversold -> BUY) while SMA20 stays above SMA50.
func pullbackInUptrend() []types.PriceBar {
	closes := make([]float64, 0, 60)
	for i := 0; i < 46; i++ {
		closes = append(closes, 2000+2*float64(i))
	}
	p := closes[len(closes)-1]
	for i := 0; i < 14; i++ {
		p -= 0.5
		closes = append(closes, p)
	}
	return testutils.BarsFromCloses(closes...)
}

// choppyBounceInDowntrend: a steady decline followed by a +3/-1 zig-zag.
// RSI over the zig-zag is ~72 (overbought -> SELL) while SMA20 < SMA50.
func choppyBounceInDowntrend() []types.PriceBar {
	closes := make([]float64, 0, 60)
	for i := 0; i < 46; i++ {
		closes = append(closes, 2200-2*float64(i))
	}
	p := closes[len(closes)-1]
	for k := 0; k < 14; k++ {
		if k%2 == 0 {
			p += 3
		} else {
			p--
		}
		closes = append(closes, p)
	}
	return testutils.BarsFromCloses(closes...)
}

func TestGenerateInsufficientData(t *testing.T) {
	s := newScorer(t, func(c *config.EngineConfig) { c.ConfidenceThreshold = 0 })
	for _, n := range []int{0, 1, 25, 49} {
		bars := testutils.RampBars(n, 2000, 5)
		d := s.Generate(bars, 99999)
		if d.Type != Hold || d.Confidence != 0 || d.IsValid {
			t.Fatalf("n=%d: expected {HOLD 0 invalid}, got %+v", n, d)
		}
		if d.Reason != ReasonInsufficientData {
			t.Fatalf("n=%d: unexpected reason %q", n, d.Reason)
		}
		if d.Indicators != (indicator.Set{}) || len(d.Votes) != 0 {
			t.Fatalf("n=%d: expected empty indicators, got %+v", n, d.Indicators)
		}
	}
}

func TestGenerateFlatMarketHolds(t *testing.T) {
	s := newScorer(t, nil)
	d := s.Generate(testutils.RampBars(60, 2000, 0), 2000)
	if d.Type != Hold || d.Confidence != 50 || d.IsValid || len(d.Votes) != 0 {
		t.Fatalf("expected HOLD at base confidence with no votes, got %+v", d)
	}
}

func TestGenerateTrendOnlyBuy(t *testing.T) {
	s := newScorer(t, nil)
	bars := testutils.RampBars(60, 2000, 1)
	d := s.Generate(bars, bars[len(bars)-1].Close+1)
	// A window with no losses pins RSI at 50, so only the MA rule votes.
	if d.Indicators.RSI != 50 {
		t.Fatalf("expected neutral rsi, got %v", d.Indicators.RSI)
	}
	if d.Type != Buy || d.Confidence != 55 || d.IsValid {
		t.Fatalf("expected BUY 55 invalid, got %+v", d)
	}
}

func TestGenerateBuy(t *testing.T) {
	s := newScorer(t, nil)
	d := s.Generate(pullbackInUptrend(), 2100)
	if d.Indicators.RSI >= 30 {
		t.Fatalf("fixture should be oversold, rsi=%v", d.Indicators.RSI)
	}
	if d.Type != Buy || d.Confidence != 65 {
		t.Fatalf("expected BUY 65, got %+v", d)
	}
	want := []Vote{{"rsi", Buy}, {"moving_average", Buy}}
	if !reflect.DeepEqual(d.Votes, want) {
		t.Fatalf("unexpected votes: %+v", d.Votes)
	}
	if d.IsValid {
		t.Fatal("65 is below the default threshold of 70")
	}
}

func TestGenerateSell(t *testing.T) {
	s := newScorer(t, nil)
	d := s.Generate(choppyBounceInDowntrend(), 2000)
	if d.Indicators.RSI <= 70 {
		t.Fatalf("fixture should be overbought, rsi=%v", d.Indicators.RSI)
	}
	if d.Type != Sell || d.Confidence != 65 {
		t.Fatalf("expected SELL 65, got %+v", d)
	}
}

func TestGenerateTieHolds(t *testing.T) {
	s := newScorer(t, nil)
	// Falling closes: RSI 0 votes BUY, price < SMA20 < SMA50 votes SELL.
	bars := testutils.RampBars(60, 2100, -1)
	d := s.Generate(bars, bars[len(bars)-1].Close-1)
	if len(d.Votes) != 2 {
		t.Fatalf("expected two opposing votes, got %+v", d.Votes)
	}
	if d.Type != Hold {
		t.Fatalf("expected HOLD on a 1-1 tie, got %v", d.Type)
	}
	// Outvoted increments are not reverted.
	if d.Confidence != 65 {
		t.Fatalf("expected confidence 65, got %d", d.Confidence)
	}
}

func TestGenerateThreshold(t *testing.T) {
	s := newScorer(t, func(c *config.EngineConfig) { c.ConfidenceThreshold = 65 })
	d := s.Generate(pullbackInUptrend(), 2100)
	if !d.IsValid {
		t.Fatalf("confidence %d should meet threshold 65", d.Confidence)
	}
	s = newScorer(t, func(c *config.EngineConfig) { c.ConfidenceThreshold = 66 })
	if d := s.Generate(pullbackInUptrend(), 2100); d.IsValid {
		t.Fatalf("confidence %d should miss threshold 66", d.Confidence)
	}
}

func TestGenerateConfidenceIsCapped(t *testing.T) {
	s := newScorer(t, func(c *config.EngineConfig) {
		c.BaseConfidence = 95
		c.RSIWeight = 30
		c.MAWeight = 30
	})
	d := s.Generate(pullbackInUptrend(), 2100)
	if d.Confidence != MaxConfidence {
		t.Fatalf("expected clamp to %d, got %d", MaxConfidence, d.Confidence)
	}
	if !d.IsValid {
		t.Fatal("capped confidence should be valid")
	}
}

func TestGenerateConfidenceGrowsWithAgreement(t *testing.T) {
	s := newScorer(t, nil)
	rally := testutils.RampBars(60, 2000, 1)
	one := s.Generate(rally, rally[len(rally)-1].Close+1)
	two := s.Generate(pullbackInUptrend(), 2100)
	if one.Type != Buy || two.Type != Buy {
		t.Fatalf("fixtures should both be BUY: %v %v", one.Type, two.Type)
	}
	if len(two.Votes) <= len(one.Votes) || two.Confidence < one.Confidence {
		t.Fatalf("more agreeing votes must not lower confidence: %d (%d votes) vs %d (%d votes)",
			one.Confidence, len(one.Votes), two.Confidence, len(two.Votes))
	}
}

// With the default single-sample signal line the histogram is always 0,
// so the MACD rule never votes. The smoothed variant can vote, and any vote
// it casts must agree with the histogram sign.
func TestGenerateMACDRule(t *testing.T) {
	plain := newScorer(t, nil).Generate(choppyBounceInDowntrend(), 2000)
	for _, v := range plain.Votes {
		if v.Rule == "macd" {
			t.Fatalf("single-sample MACD should never vote: %+v", plain.Votes)
		}
	}

	smooth := newScorer(t, func(c *config.EngineConfig) { c.SmoothMACDSignal = true })
	d := smooth.Generate(choppyBounceInDowntrend(), 2000)
	m := d.Indicators.MACD
	var macdVote *Vote
	for i := range d.Votes {
		if d.Votes[i].Rule == "macd" {
			macdVote = &d.Votes[i]
		}
	}
	switch {
	case m.Histogram > 0 && m.MACD > m.Signal:
		if macdVote == nil || macdVote.Type != Buy {
			t.Fatalf("expected a BUY macd vote for %+v", m)
		}
	case m.Histogram < 0 && m.MACD < m.Signal:
		if macdVote == nil || macdVote.Type != Sell {
			t.Fatalf("expected a SELL macd vote for %+v", m)
		}
	default:
		if macdVote != nil {
			t.Fatalf("unexpected macd vote for %+v", m)
		}
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	s := newScorer(t, nil)
	bars := choppyBounceInDowntrend()
	a := s.Generate(bars, 2000)
	b := s.Generate(bars, 2000)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("identical input produced different output:\n%+v\n%+v", a, b)
	}
}

func TestDecisionLevels(t *testing.T) {
	buy := Decision{Type: Buy}
	lv, ok := buy.Levels(2000, 1000, 2000, 0.01)
	if !ok || lv.Entry != 2000 || lv.StopLoss != 1990 || lv.TakeProfit != 2020 {
		t.Fatalf("unexpected BUY levels: %+v", lv)
	}
	sell := Decision{Type: Sell}
	lv, ok = sell.Levels(2000, 1000, 0, 0.01)
	if !ok || lv.StopLoss != 2010 || lv.TakeProfit != 0 {
		t.Fatalf("unexpected SELL levels: %+v", lv)
	}
	if _, ok := (Decision{Type: Hold}).Levels(2000, 10, 10, 0.01); ok {
		t.Fatal("HOLD has no levels")
	}
}

func TestTypeSide(t *testing.T) {
	if s, ok := Buy.Side(); !ok || s != types.Buy {
		t.Fatalf("BUY -> %v %v", s, ok)
	}
	if s, ok := Sell.Side(); !ok || s != types.Sell {
		t.Fatalf("SELL -> %v %v", s, ok)
	}
	if _, ok := Hold.Side(); ok {
		t.Fatal("HOLD has no side")
	}
}

func TestNewScorerRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	cfg.PipValue = 0
	if _, err := NewScorer(cfg); err == nil {
		t.Fatal("expected validation error")
	}
}

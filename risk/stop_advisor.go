package risk

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/evdnx/goti"

	"github.com/evdnx/gosignal/types"
)

// StopAdvisorConfig tunes the volatility-derived stop distance.
type StopAdvisorConfig struct {
	PipValue   float64 // price per pip; must be > 0
	Multiplier float64 // stop = volatility * Multiplier, default 1.5
	MinPips    float64 // lower clamp, 0 = none
	MaxPips    float64 // upper clamp, 0 = none
	EMAPeriod  int     // ATSO smoothing period, default 5
}

// StopAdvisor suggests a stop-loss distance in pips from recent volatility.
// It feeds bars into a goti indicator suite and reads the ATSO magnitude,
// falling back to the mean bar-to-bar move when ATSO is missing or
// implausible. Safe for concurrent use.
type StopAdvisor struct {
	mu       sync.Mutex
	cfg      StopAdvisorConfig
	suite    *goti.IndicatorSuite
	prices   *priceBuffer
	lastTime time.Time
}

func NewStopAdvisor(cfg StopAdvisorConfig) (*StopAdvisor, error) {
	if cfg.PipValue <= 0 {
		return nil, errors.New("stop advisor: PipValue must be positive")
	}
	if cfg.MaxPips > 0 && cfg.MinPips > cfg.MaxPips {
		return nil, errors.New("stop advisor: MinPips above MaxPips")
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 1.5
	}
	if cfg.EMAPeriod <= 0 {
		cfg.EMAPeriod = 5
	}
	ic := goti.DefaultConfig()
	ic.ATSEMAperiod = cfg.EMAPeriod
	suite, err := goti.NewIndicatorSuiteWithConfig(ic)
	if err != nil {
		return nil, err
	}
	return &StopAdvisor{
		cfg:    cfg,
		suite:  suite,
		prices: newPriceBuffer(64),
	}, nil
}

// Observe feeds bars that are newer than the last one seen. Windows that
// overlap earlier calls are therefore safe to pass repeatedly.
func (a *StopAdvisor) Observe(bars []types.PriceBar) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, b := range bars {
		if !b.Time.IsZero() && !b.Time.After(a.lastTime) {
			continue
		}
		if err := a.suite.Add(b.High, b.Low, b.Close, b.Volume); err != nil {
			return err
		}
		a.prices.Add(b.Close)
		if !b.Time.IsZero() {
			a.lastTime = b.Time
		}
	}
	return nil
}

// Pips returns the suggested stop distance for an entry at price.
func (a *StopAdvisor) Pips(price float64) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	raw := 0.0
	if vals := a.suite.GetATSO().GetATSOValues(); len(vals) > 0 {
		raw = math.Abs(vals[len(vals)-1])
	}
	vol := sanitizeVolatility(raw, price, a.prices.Volatility())
	pips := math.Round(vol * a.cfg.Multiplier / a.cfg.PipValue)
	if a.cfg.MinPips > 0 && pips < a.cfg.MinPips {
		pips = a.cfg.MinPips
	}
	if a.cfg.MaxPips > 0 && pips > a.cfg.MaxPips {
		pips = a.cfg.MaxPips
	}
	return pips
}

// sanitizeVolatility rejects readings that are non-finite, non-positive or
// larger than 10 % of price, substituting the swing volatility and finally
// 2 % of price.
func sanitizeVolatility(raw, price, swing float64) float64 {
	if price <= 0 {
		price = 1
	}
	if math.IsNaN(raw) || math.IsInf(raw, 0) || raw <= 0 || raw > price*0.1 {
		fallback := swing
		if fallback <= 0 {
			fallback = price * 0.02
		}
		return math.Max(fallback, 0.0001)
	}
	return raw
}

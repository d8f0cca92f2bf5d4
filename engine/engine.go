// Package engine drives the signal loop: it pulls candles and a quote from
// a feed, manages open trades against their protective levels, scores the
// market and opens sized trades through an executor.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/evdnx/gosignal/config"
	"github.com/evdnx/gosignal/executor"
	"github.com/evdnx/gosignal/feed"
	"github.com/evdnx/gosignal/ledger"
	"github.com/evdnx/gosignal/logger"
	"github.com/evdnx/gosignal/metrics"
	"github.com/evdnx/gosignal/risk"
	"github.com/evdnx/gosignal/signal"
	"github.com/evdnx/gosignal/types"
)

// Close reasons recorded on trades the engine closes.
const (
	ReasonStopLoss   = "stop_loss"
	ReasonTakeProfit = "take_profit"
)

type Option func(*Engine)

// WithClock replaces time.Now for trade timestamps and the daily window.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine bundles the collaborators of one symbol's trading loop. Step and
// the accessors are safe to call from different goroutines.
type Engine struct {
	cfg    config.Config
	feed   feed.Feed
	exec   executor.Executor
	scorer *signal.Scorer
	stops  *risk.StopAdvisor
	log    logger.Logger
	now    func() time.Time

	mu     sync.Mutex
	trades []ledger.Trade
	last   signal.Decision
}

func New(cfg config.Config, f feed.Feed, ex executor.Executor, log logger.Logger, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	scorer, err := signal.NewScorer(cfg.Engine)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	e := &Engine{
		cfg:    cfg,
		feed:   f,
		exec:   ex,
		scorer: scorer,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
	if cfg.Risk.AutoStop {
		e.stops, err = risk.NewStopAdvisor(risk.StopAdvisorConfig{PipValue: cfg.Engine.PipValue})
		if err != nil {
			return nil, fmt.Errorf("stop advisor: %w", err)
		}
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Run calls Step every Market.PollInterval until ctx is done. Step errors
// are logged and the loop carries on.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.Market.PollInterval)
	defer ticker.Stop()
	e.log.Info("engine_started",
		logger.String("symbol", e.cfg.Market.Symbol),
		logger.Dur("timeframe", e.cfg.Market.Timeframe),
		logger.Dur("poll_interval", e.cfg.Market.PollInterval),
	)
	for {
		if _, err := e.Step(ctx); err != nil && ctx.Err() == nil {
			e.log.Error("step_failed", logger.Err(err))
		}
		select {
		case <-ctx.Done():
			e.log.Info("engine_stopped", logger.String("symbol", e.cfg.Market.Symbol))
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Step runs one iteration and returns the decision it scored. Trades hit
// by their stop or target are closed before scoring.
func (e *Engine) Step(ctx context.Context) (signal.Decision, error) {
	start := time.Now()
	sym := e.cfg.Market.Symbol
	bars, err := e.feed.Candles(ctx, sym, e.cfg.Market.Timeframe, e.cfg.Market.CandleCount)
	if err != nil {
		metrics.FeedErrors.WithLabelValues("candles").Inc()
		return signal.Decision{}, fmt.Errorf("fetch candles: %w", err)
	}
	tick, err := e.feed.Tick(ctx, sym)
	if err != nil {
		metrics.FeedErrors.WithLabelValues("tick").Inc()
		return signal.Decision{}, fmt.Errorf("fetch tick: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	err = e.manageOpen(ctx, tick)

	if e.stops != nil {
		at := tick.Time
		if at.IsZero() {
			at = e.now()
		}
		closed := feed.Completed(bars, e.cfg.Market.Timeframe, at)
		if oerr := e.stops.Observe(closed); oerr != nil {
			e.log.Warn("stop_advisor_observe_failed", logger.Err(oerr))
		}
	}

	d := e.scorer.Generate(bars, tick.Mid())
	e.last = d
	e.record(d, bars, start)

	side, directional := d.Type.Side()
	if !d.IsValid || !directional {
		return d, err
	}
	return d, multierr.Append(err, e.open(ctx, d, side, tick))
}

func (e *Engine) record(d signal.Decision, bars []types.PriceBar, start time.Time) {
	sym := e.cfg.Market.Symbol
	var barTime time.Time
	if len(bars) > 0 {
		barTime = bars[len(bars)-1].Time
	}
	metrics.SignalsGenerated.WithLabelValues(sym, string(d.Type)).Inc()
	metrics.SignalConfidence.WithLabelValues(sym).Set(float64(d.Confidence))
	if d.IsValid {
		metrics.ValidSignals.WithLabelValues(sym, string(d.Type)).Inc()
	}
	e.log.Debug("signal_generated",
		logger.String("symbol", sym),
		logger.String("type", string(d.Type)),
		logger.Int("confidence", d.Confidence),
		logger.Bool("valid", d.IsValid),
		logger.Float64("rsi", d.Indicators.RSI),
		logger.Float64("macd_histogram", d.Indicators.MACD.Histogram),
		logger.String("reason", d.Reason),
		logger.Time("bar_time", barTime),
		logger.Since("took", start),
	)
}

// manageOpen marks every open trade to the price that would close it and
// closes those whose stop or target was reached.
func (e *Engine) manageOpen(ctx context.Context, tick types.Tick) error {
	var errs error
	for i := range e.trades {
		t := e.trades[i]
		if !t.IsOpen() {
			continue
		}
		mark := tick.PriceFor(t.Direction.Opposite())
		t, err := ledger.ApplyUpdate(t, mark)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		e.trades[i] = t

		switch {
		case t.StopHit(mark):
			errs = multierr.Append(errs, e.closeAt(ctx, i, mark, ReasonStopLoss))
		case t.TargetHit(mark):
			errs = multierr.Append(errs, e.closeAt(ctx, i, mark, ReasonTakeProfit))
		}
	}
	return errs
}

func (e *Engine) open(ctx context.Context, d signal.Decision, side types.Side, tick types.Tick) error {
	sym := e.cfg.Market.Symbol
	if n := e.openCount(); n >= e.cfg.Risk.MaxOpenTrades {
		e.log.Debug("max_open_trades_reached", logger.String("symbol", sym), logger.Int("open", n))
		return nil
	}
	if loss, limit := e.dailyLoss(), e.dailyLossLimit(); loss >= limit {
		e.log.Warn("daily_loss_limit_reached",
			logger.String("symbol", sym),
			logger.Float64("loss", loss),
			logger.Float64("limit", limit),
		)
		return nil
	}

	entry := tick.PriceFor(side)
	slPips := e.cfg.Risk.StopLossPips
	if e.stops != nil {
		if p := e.stops.Pips(entry); p > 0 {
			slPips = p
		}
	}
	volume := risk.CalcVolume(e.exec.Balance(), e.cfg.Risk.RiskPerTrade, entry, slPips, e.cfg.Engine)
	lv, _ := d.Levels(entry, slPips, e.cfg.Risk.TakeProfitPips, e.cfg.Engine.PipValue)

	pending, err := ledger.NewPending(ledger.Params{
		Symbol:     sym,
		Direction:  side,
		EntryPrice: entry,
		StopLoss:   lv.StopLoss,
		TakeProfit: lv.TakeProfit,
		Volume:     volume,
	})
	if err != nil {
		return err
	}
	fill, err := e.exec.Open(ctx, types.Order{
		Symbol:     sym,
		Side:       side,
		Volume:     volume,
		Price:      entry,
		StopLoss:   lv.StopLoss,
		TakeProfit: lv.TakeProfit,
		Comment:    fmt.Sprintf("signal %s %d", d.Type, d.Confidence),
	})
	if err != nil {
		e.log.Error("order_submit_failed",
			logger.String("symbol", sym),
			logger.String("side", string(side)),
			logger.Float64("volume", volume),
			logger.Err(err),
		)
		return fmt.Errorf("open %s: %w", side, err)
	}

	pending.Ticket = fill.Ticket
	t, err := ledger.ApplyOpen(pending, fill.Price, e.now())
	if err != nil {
		return err
	}
	e.trades = append(e.trades, t)

	metrics.TradesOpened.WithLabelValues(sym, string(side)).Inc()
	metrics.TradesOpen.WithLabelValues(sym).Set(float64(e.openCount()))
	e.log.Info("trade_opened",
		logger.String("id", t.ID),
		logger.String("ticket", t.Ticket),
		logger.String("symbol", sym),
		logger.String("side", string(side)),
		logger.Float64("volume", volume),
		logger.Float64("entry", t.EntryPrice),
		logger.Float64("stop_loss", t.StopLoss),
		logger.Float64("take_profit", t.TakeProfit),
		logger.Float64("risk_amount", risk.RiskAmount(volume, slPips, e.cfg.Engine)),
		logger.Int("confidence", d.Confidence),
	)
	return nil
}

// closeAt flattens trade i through the executor and records the close.
func (e *Engine) closeAt(ctx context.Context, i int, price float64, reason string) error {
	t := e.trades[i]
	fill, err := e.exec.Close(ctx, t.Ticket, price)
	if err != nil {
		e.log.Error("close_failed",
			logger.String("id", t.ID),
			logger.String("ticket", t.Ticket),
			logger.String("reason", reason),
			logger.Err(err),
		)
		return fmt.Errorf("close %s: %w", t.ID, err)
	}
	t, err = ledger.ApplyClose(t, fill.Price, reason, e.now())
	if err != nil {
		return err
	}
	e.trades[i] = t

	sym := e.cfg.Market.Symbol
	metrics.TradesClosed.WithLabelValues(sym, reason).Inc()
	metrics.TradesOpen.WithLabelValues(sym).Set(float64(e.openCount()))
	metrics.RealizedPnL.Set(e.realized(time.Time{}))
	metrics.BalanceGauge.Set(e.exec.Balance())
	e.log.Info("trade_closed",
		logger.String("id", t.ID),
		logger.String("symbol", sym),
		logger.String("reason", reason),
		logger.Float64("exit", fill.Price),
		logger.Float64("pnl", t.PnL),
		logger.Float64("pnl_pct", t.PnLPercentage),
	)
	return nil
}

// CloseAll closes every open trade at the current quote.
func (e *Engine) CloseAll(ctx context.Context, reason string) error {
	tick, err := e.feed.Tick(ctx, e.cfg.Market.Symbol)
	if err != nil {
		return fmt.Errorf("fetch tick: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	var errs error
	for i, t := range e.trades {
		if t.IsOpen() {
			errs = multierr.Append(errs, e.closeAt(ctx, i, tick.PriceFor(t.Direction.Opposite()), reason))
		}
	}
	return errs
}

func (e *Engine) openCount() int {
	n := 0
	for _, t := range e.trades {
		if t.IsOpen() {
			n++
		}
	}
	return n
}

// realized sums the P&L of trades closed at or after since.
func (e *Engine) realized(since time.Time) float64 {
	sum := 0.0
	for _, t := range e.trades {
		if t.Status == ledger.StatusClosed && t.ClosedAt != nil && !t.ClosedAt.Before(since) {
			sum += t.PnL
		}
	}
	return sum
}

// dailyLoss is the realized loss since UTC midnight, positive when losing.
func (e *Engine) dailyLoss() float64 {
	return -e.realized(e.now().Truncate(24 * time.Hour))
}

func (e *Engine) dailyLossLimit() float64 {
	return e.cfg.Account.StartingBalance * e.cfg.Risk.MaxDailyLoss / 100
}

// Trades returns a copy of every trade the engine has opened.
func (e *Engine) Trades() []ledger.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ledger.Trade(nil), e.trades...)
}

// OpenTrades returns the trades still open.
func (e *Engine) OpenTrades() []ledger.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []ledger.Trade
	for _, t := range e.trades {
		if t.IsOpen() {
			out = append(out, t)
		}
	}
	return out
}

// LastDecision is the most recent decision scored by Step.
func (e *Engine) LastDecision() signal.Decision {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

func (e *Engine) History(since time.Time) ledger.History {
	return ledger.Summarize(e.Trades(), since)
}

func (e *Engine) Analytics() ledger.Analytics {
	return ledger.Analyze(e.Trades())
}

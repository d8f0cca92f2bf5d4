package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/evdnx/gosignal/logger"
	"github.com/evdnx/gosignal/metrics"
	"github.com/evdnx/gosignal/types"
)

// quoteMessage is the wire format of a streamed quote.
type quoteMessage struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Time   int64   `json:"ts"` // unix millis
}

type subscribeMessage struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

// WSFeed streams quotes over a websocket and builds candles from them.
// Run owns the connection; Candles and Tick read the latest state.
type WSFeed struct {
	URL       string
	Symbols   []string
	Timeframe time.Duration
	MaxBars   int

	log logger.Logger

	mu       sync.RWMutex
	ticks    map[string]types.Tick
	builders map[string]*CandleBuilder
}

func NewWSFeed(url string, symbols []string, timeframe time.Duration, log logger.Logger) *WSFeed {
	if log == nil {
		log = logger.Nop()
	}
	upper := make([]string, len(symbols))
	for i, s := range symbols {
		upper[i] = strings.ToUpper(s)
	}
	return &WSFeed{
		URL:       url,
		Symbols:   upper,
		Timeframe: timeframe,
		MaxBars:   500,
		log:       log,
		ticks:     make(map[string]types.Tick),
		builders:  make(map[string]*CandleBuilder),
	}
}

// Run keeps the stream connected until ctx is cancelled, reconnecting with
// exponential backoff.
func (f *WSFeed) Run(ctx context.Context) error {
	if len(f.Symbols) == 0 {
		return fmt.Errorf("websocket feed requires at least one symbol")
	}
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := f.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			metrics.FeedErrors.WithLabelValues("stream").Inc()
			f.log.Warn("feed_disconnected", logger.Err(err), logger.Dur("retry_in", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
			continue
		}
		return nil
	}
}

func (f *WSFeed) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteJSON(subscribeMessage{Action: "subscribe", Symbols: f.Symbols}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	f.log.Info("feed_connected", logger.String("url", f.URL), logger.String("symbols", strings.Join(f.Symbols, ",")))

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(5 * time.Second)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					f.log.Warn("feed_ping_failed", logger.Err(err))
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()
	// Unblock ReadMessage on cancellation.
	go func() {
		<-pingCtx.Done()
		_ = conn.SetReadDeadline(time.Now())
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))

		var msg quoteMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			metrics.FeedErrors.WithLabelValues("decode").Inc()
			f.log.Warn("feed_decode_failed", logger.Err(err))
			continue
		}
		if msg.Symbol == "" || msg.Bid <= 0 || msg.Ask < msg.Bid {
			metrics.FeedErrors.WithLabelValues("invalid_quote").Inc()
			continue
		}
		f.Ingest(types.Tick{
			Symbol: strings.ToUpper(msg.Symbol),
			Bid:    msg.Bid,
			Ask:    msg.Ask,
			Time:   time.UnixMilli(msg.Time).UTC(),
		})
	}
}

// Ingest records a quote as if it arrived on the stream.
func (f *WSFeed) Ingest(tk types.Tick) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks[tk.Symbol] = tk
	b, ok := f.builders[tk.Symbol]
	if !ok {
		b = NewCandleBuilder(f.Timeframe, f.MaxBars)
		f.builders[tk.Symbol] = b
	}
	b.Add(tk)
	metrics.TicksTotal.WithLabelValues(tk.Symbol).Inc()
}

func (f *WSFeed) Candles(ctx context.Context, symbol string, timeframe time.Duration, count int) ([]types.PriceBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if timeframe != f.Timeframe {
		return nil, fmt.Errorf("feed: timeframe %v not built (have %v)", timeframe, f.Timeframe)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	b, ok := f.builders[strings.ToUpper(symbol)]
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrNoData, symbol)
	}
	return b.Bars(count), nil
}

func (f *WSFeed) Tick(ctx context.Context, symbol string) (types.Tick, error) {
	if err := ctx.Err(); err != nil {
		return types.Tick{}, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	tk, ok := f.ticks[strings.ToUpper(symbol)]
	if !ok {
		return types.Tick{}, fmt.Errorf("%w for %s", ErrNoData, symbol)
	}
	return tk, nil
}

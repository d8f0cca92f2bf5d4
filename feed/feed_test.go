package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/evdnx/gosignal/testutils"
	"github.com/evdnx/gosignal/types"
)

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func TestSimulatedReferenceSeries(t *testing.T) {
	sim := NewSimulated(SimConfig{Start: t0})
	ctx := context.Background()

	bars, err := sim.Candles(ctx, "XAUUSD", 5*time.Minute, 100)
	if err != nil {
		t.Fatalf("candles: %v", err)
	}
	if len(bars) != 100 {
		t.Fatalf("expected 100 bars, got %d", len(bars))
	}
	b := bars[10]
	if !near(b.Open, 2051) || !near(b.High, 2051.5) || !near(b.Low, 2050.5) || !near(b.Close, 2051.2) || b.Volume != 1100 {
		t.Fatalf("unexpected bar 10: %+v", b)
	}
	if !bars[10].Time.Equal(t0.Add(50 * time.Minute)) {
		t.Fatalf("unexpected bar time %v", bars[10].Time)
	}

	tk, err := sim.Tick(ctx, "XAUUSD")
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if tk.Bid != 2050.5 || tk.Ask != 2050.75 || tk.Symbol != "XAUUSD" {
		t.Fatalf("unexpected tick: %+v", tk)
	}

	again, _ := sim.Candles(ctx, "XAUUSD", 5*time.Minute, 100)
	if again[99] != bars[99] {
		t.Fatal("reference series must be stable between calls")
	}
}

func TestSimulatedRandomWalkIsSeeded(t *testing.T) {
	ctx := context.Background()
	run := func() []types.PriceBar {
		sim := NewSimulated(SimConfig{Volatility: 2, Seed: 42, Start: t0})
		if _, err := sim.Candles(ctx, "XAUUSD", time.Minute, 60); err != nil {
			t.Fatalf("candles: %v", err)
		}
		for i := 0; i < 5; i++ {
			if _, err := sim.Tick(ctx, "XAUUSD"); err != nil {
				t.Fatalf("tick: %v", err)
			}
		}
		bars, _ := sim.Candles(ctx, "XAUUSD", time.Minute, 60)
		return bars
	}
	a, b := run(), run()
	if len(a) != 60 {
		t.Fatalf("expected 60 bars, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("bar %d differs between seeded runs", i)
		}
		if a[i].High < a[i].Low {
			t.Fatalf("bar %d has high below low: %+v", i, a[i])
		}
	}
	if !a[59].Time.Equal(t0.Add(64 * time.Minute)) {
		t.Fatalf("ticks should advance the series, last bar at %v", a[59].Time)
	}
}

func TestSimulatedHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sim := NewSimulated(SimConfig{})
	if _, err := sim.Candles(ctx, "XAUUSD", time.Minute, 10); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := sim.Tick(ctx, "XAUUSD"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func quote(bid float64, at time.Time) types.Tick {
	return types.Tick{Symbol: "XAUUSD", Bid: bid, Ask: bid + 1, Time: at}
}

func TestCandleBuilder(t *testing.T) {
	b := NewCandleBuilder(time.Minute, 2)

	if done := b.Add(quote(100, t0.Add(5*time.Second))); done != nil {
		t.Fatal("first tick cannot complete a bar")
	}
	b.Add(quote(104, t0.Add(20*time.Second)))
	b.Add(quote(98, t0.Add(40*time.Second)))
	b.Add(quote(101, t0.Add(59*time.Second)))

	done := b.Add(quote(110, t0.Add(61*time.Second)))
	if done == nil {
		t.Fatal("a tick in the next minute should complete the bar")
	}
	want := types.PriceBar{Open: 100.5, High: 104.5, Low: 98.5, Close: 101.5, Volume: 4, Time: t0}
	if *done != want {
		t.Fatalf("unexpected bar:\n got %+v\nwant %+v", *done, want)
	}

	// stale tick from the finished minute is ignored
	b.Add(quote(1, t0.Add(30*time.Second)))
	bars := b.Bars(10)
	if len(bars) != 2 || bars[1].Close != 110.5 || bars[1].Low != 110.5 {
		t.Fatalf("unexpected bars: %+v", bars)
	}

	b.Add(quote(111, t0.Add(2*time.Minute)))
	b.Add(quote(112, t0.Add(3*time.Minute)))
	if got := b.Bars(10); len(got) != 3 || !got[0].Time.Equal(t0.Add(time.Minute)) {
		t.Fatalf("history should be capped at 2 closed bars + forming: %+v", got)
	}
	if got := b.Bars(1); len(got) != 1 || !got[0].Time.Equal(t0.Add(3*time.Minute)) {
		t.Fatalf("Bars(1) should return the forming bar: %+v", got)
	}
}

func TestWSFeedStreamsQuotes(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan subscribeMessage, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var sub subscribeMessage
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subscribed <- sub
		_ = conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		for i, bid := range []float64{2050, 2051, 2049} {
			msg := quoteMessage{Symbol: "xauusd", Bid: bid, Ask: bid + 0.25, Time: t0.Add(time.Duration(i) * 20 * time.Second).UnixMilli()}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
		// hold the connection open until the client goes away
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	log := testutils.NewMockLogger()
	f := NewWSFeed("ws"+strings.TrimPrefix(srv.URL, "http"), []string{"xauusd"}, time.Minute, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	select {
	case sub := <-subscribed:
		if sub.Action != "subscribe" || len(sub.Symbols) != 1 || sub.Symbols[0] != "XAUUSD" {
			t.Fatalf("unexpected subscription: %+v", sub)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("feed never subscribed")
	}

	deadline := time.Now().Add(5 * time.Second)
	var tk types.Tick
	for time.Now().Before(deadline) {
		var err error
		tk, err = f.Tick(context.Background(), "XAUUSD")
		if err == nil && tk.Bid == 2049 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if tk.Bid != 2049 || tk.Ask != 2049.25 {
		t.Fatalf("latest quote not received: %+v", tk)
	}

	bars, err := f.Candles(context.Background(), "XAUUSD", time.Minute, 10)
	if err != nil {
		t.Fatalf("candles: %v", err)
	}
	if len(bars) != 1 || bars[0].Volume != 3 || bars[0].High != 2051.125 {
		t.Fatalf("unexpected candles: %+v", bars)
	}
	if _, err := f.Candles(context.Background(), "XAUUSD", 5*time.Minute, 10); err == nil {
		t.Fatal("expected error for an unbuilt timeframe")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestWSFeedNoData(t *testing.T) {
	f := NewWSFeed("ws://unused", []string{"XAUUSD"}, time.Minute, nil)
	if _, err := f.Tick(context.Background(), "XAUUSD"); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	if _, err := f.Candles(context.Background(), "XAUUSD", time.Minute, 5); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	f.Ingest(quote(2000, t0))
	if tk, err := f.Tick(context.Background(), "xauusd"); err != nil || tk.Bid != 2000 {
		t.Fatalf("ingested quote not visible: %+v %v", tk, err)
	}
}

func TestWSFeedRequiresSymbols(t *testing.T) {
	f := NewWSFeed("ws://unused", nil, time.Minute, nil)
	if err := f.Run(context.Background()); err == nil {
		t.Fatal("expected error without symbols")
	}
}

func near(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}

func TestCompletedDropsFormingBar(t *testing.T) {
	b := NewCandleBuilder(time.Minute, 10)
	b.Add(quote(100, t0.Add(10*time.Second)))
	b.Add(quote(101, t0.Add(70*time.Second)))
	last := t0.Add(75 * time.Second)

	bars := b.Bars(10)
	if len(bars) != 2 {
		t.Fatalf("expected closed + forming bar, got %d", len(bars))
	}
	done := Completed(bars, time.Minute, last)
	if len(done) != 1 || !done[0].Time.Equal(t0) {
		t.Fatalf("forming bar should be dropped: %+v", done)
	}
	// once its minute has elapsed the bar counts as complete
	if got := Completed(bars, time.Minute, t0.Add(2*time.Minute)); len(got) != 2 {
		t.Fatalf("finished bar should be kept, got %d", len(got))
	}
	if got := Completed(nil, time.Minute, last); len(got) != 0 {
		t.Fatalf("expected empty result, got %+v", got)
	}
}

package ledger

import (
	"math"
	"testing"
	"time"

	"github.com/evdnx/gosignal/types"
)

func closedTrade(t *testing.T, side types.Side, entry, exit, volume float64, openedAt time.Time, held time.Duration) Trade {
	t.Helper()
	tr, err := Open(Params{Direction: side, EntryPrice: entry, Volume: volume}, openedAt)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	tr, err = ApplyClose(tr, exit, "", openedAt.Add(held))
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	return tr
}

func TestSummarizeEmpty(t *testing.T) {
	h := Summarize(nil, time.Time{})
	if h.TotalTrades != 0 || h.WinRate != 0 || h.AverageProfit != 0 || h.MaxProfit != 0 || h.MaxLoss != 0 {
		t.Fatalf("expected zero summary, got %+v", h)
	}
	if h.Trades == nil || len(h.Trades) != 0 {
		t.Fatalf("expected empty, non-nil trade list")
	}
}

func TestSummarize(t *testing.T) {
	open := mustOpen(t, types.Buy, 2000, 1) // ignored: still open
	trades := []Trade{
		closedTrade(t, types.Buy, 2000, 2050, 1, t0, time.Hour),               // +50
		closedTrade(t, types.Sell, 2000, 2010, 1, t0.Add(2*time.Hour), time.Hour), // -10
		closedTrade(t, types.Buy, 2000, 2000, 1, t0.Add(4*time.Hour), time.Hour),  // 0 counts as a loss
		open,
	}
	h := Summarize(trades, time.Time{})
	if h.TotalTrades != 3 || h.WinningTrades != 1 || h.LosingTrades != 2 {
		t.Fatalf("unexpected counts: %+v", h)
	}
	if h.WinRate != 33.33 || h.AverageProfit != 13.33 || h.MaxProfit != 50 || h.MaxLoss != -10 {
		t.Fatalf("unexpected figures: %+v", h)
	}
	if len(h.Trades) != 3 || !h.Trades[0].ClosedAt.After(*h.Trades[2].ClosedAt) {
		t.Fatalf("trades should be newest first: %+v", h.Trades)
	}
}

func TestSummarizeWindow(t *testing.T) {
	trades := []Trade{
		closedTrade(t, types.Buy, 2000, 2050, 1, t0, time.Hour),
		closedTrade(t, types.Buy, 2000, 2020, 1, t0.Add(48*time.Hour), time.Hour),
	}
	h := Summarize(trades, t0.Add(24*time.Hour))
	if h.TotalTrades != 1 || h.MaxProfit != 20 {
		t.Fatalf("only the recent trade should count: %+v", h)
	}
}

func TestAnalyze(t *testing.T) {
	trades := []Trade{
		closedTrade(t, types.Buy, 2000, 2030, 1, t0, 2*time.Hour),                // +30
		closedTrade(t, types.Buy, 2000, 2010, 1, t0.Add(3*time.Hour), time.Hour),  // +10
		closedTrade(t, types.Sell, 2000, 2020, 1, t0.Add(5*time.Hour), time.Hour), // -20
		closedTrade(t, types.Sell, 2000, 2005, 1, t0.Add(7*time.Hour), 2*time.Hour), // -5
		closedTrade(t, types.Sell, 2000, 2001, 1, t0.Add(10*time.Hour), 2*time.Hour), // -1
		closedTrade(t, types.Buy, 2000, 2040, 1, t0.Add(13*time.Hour), 4*time.Hour),  // +40
	}
	a := Analyze(trades)
	if a.TotalProfit != 54 || a.GrossProfit != 80 || a.GrossLoss != 26 {
		t.Fatalf("unexpected totals: %+v", a)
	}
	if a.ProfitFactor != 3.08 {
		t.Fatalf("expected profit factor 3.08, got %v", a.ProfitFactor)
	}
	if a.MaxConsecutiveWins != 2 || a.MaxConsecutiveLosses != 3 {
		t.Fatalf("unexpected streaks: %+v", a)
	}
	if a.WinRate != 50 || a.AverageDurationHours != 2 {
		t.Fatalf("unexpected rate/duration: %+v", a)
	}
}

func TestAnalyzeWithoutLosses(t *testing.T) {
	a := Analyze([]Trade{closedTrade(t, types.Buy, 2000, 2010, 1, t0, time.Hour)})
	if a.ProfitFactor != 0 || a.GrossLoss != 0 || a.MaxConsecutiveWins != 1 {
		t.Fatalf("unexpected analytics: %+v", a)
	}
	if (Analyze(nil) != Analytics{}) {
		t.Fatal("expected zero analytics for no trades")
	}
}

func TestSummariesSkipNonFinitePnL(t *testing.T) {
	good := closedTrade(t, types.Buy, 2000, 2010, 1, t0, time.Hour)
	corrupt := good
	corrupt.PnL = math.NaN()
	h := Summarize([]Trade{good, corrupt}, time.Time{})
	if h.TotalTrades != 1 || h.MaxProfit != 10 {
		t.Fatalf("non-finite trade should be skipped: %+v", h)
	}
	if a := Analyze([]Trade{corrupt}); a != (Analytics{}) {
		t.Fatalf("expected zero analytics, got %+v", a)
	}
}

package ledger

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// History summarizes closed trades over a window.
type History struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64 // percent
	AverageProfit float64
	MaxProfit     float64
	MaxLoss       float64
	Trades        []Trade // newest close first
}

// Analytics are performance figures over closed trades.
type Analytics struct {
	TotalProfit          float64
	GrossProfit          float64
	GrossLoss            float64
	ProfitFactor         float64 // 0 when there are no losses
	WinRate              float64
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AverageDurationHours float64
}

// closedSince returns the closed trades with ClosedAt >= since, newest
// first. A zero since keeps every closed trade. Trades carrying a
// non-finite P&L are skipped.
func closedSince(trades []Trade, since time.Time) []Trade {
	out := make([]Trade, 0, len(trades))
	for _, t := range trades {
		if t.Status != StatusClosed || t.ClosedAt == nil {
			continue
		}
		if math.IsNaN(t.PnL) || math.IsInf(t.PnL, 0) {
			continue
		}
		if !since.IsZero() && t.ClosedAt.Before(since) {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ClosedAt.After(*out[j].ClosedAt) })
	return out
}

// Summarize reports win/loss statistics for trades closed at or after
// since. Break-even trades count as losses. Money figures and the win rate
// are rounded to 2 decimal places.
func Summarize(trades []Trade, since time.Time) History {
	closed := closedSince(trades, since)
	h := History{Trades: closed}
	if len(closed) == 0 {
		h.Trades = []Trade{}
		return h
	}

	total := decimal.Zero
	maxProfit := closed[0].PnL
	maxLoss := closed[0].PnL
	for _, t := range closed {
		if t.PnL > 0 {
			h.WinningTrades++
		} else {
			h.LosingTrades++
		}
		total = total.Add(decimal.NewFromFloat(t.PnL))
		if t.PnL > maxProfit {
			maxProfit = t.PnL
		}
		if t.PnL < maxLoss {
			maxLoss = t.PnL
		}
	}
	n := decimal.NewFromInt(int64(len(closed)))
	h.TotalTrades = len(closed)
	h.WinRate = round2(decimal.NewFromInt(int64(h.WinningTrades)).Mul(decimal.NewFromInt(100)).Div(n))
	h.AverageProfit = round2(total.Div(n))
	h.MaxProfit = round2(decimal.NewFromFloat(maxProfit))
	h.MaxLoss = round2(decimal.NewFromFloat(maxLoss))
	return h
}

// Analyze computes performance analytics over every closed trade, walking
// them in close order for the streak counts.
func Analyze(trades []Trade) Analytics {
	closed := closedSince(trades, time.Time{})
	var a Analytics
	if len(closed) == 0 {
		return a
	}

	var (
		total, gross, loss decimal.Decimal
		wins, streakW      int
		streakL            int
		hours              float64
	)
	for i := len(closed) - 1; i >= 0; i-- { // oldest first
		t := closed[i]
		p := decimal.NewFromFloat(t.PnL)
		total = total.Add(p)
		if t.PnL > 0 {
			gross = gross.Add(p)
			wins++
			streakW++
			streakL = 0
		} else {
			loss = loss.Add(p.Abs())
			streakL++
			streakW = 0
		}
		if streakW > a.MaxConsecutiveWins {
			a.MaxConsecutiveWins = streakW
		}
		if streakL > a.MaxConsecutiveLosses {
			a.MaxConsecutiveLosses = streakL
		}
		hours += t.Duration(*t.ClosedAt).Hours()
	}

	a.TotalProfit = round2(total)
	a.GrossProfit = round2(gross)
	a.GrossLoss = round2(loss)
	if !loss.IsZero() {
		a.ProfitFactor = round2(gross.Div(loss))
	}
	a.WinRate = round2(decimal.NewFromInt(int64(wins * 100)).Div(decimal.NewFromInt(int64(len(closed)))))
	a.AverageDurationHours = round2(decimal.NewFromFloat(hours / float64(len(closed))))
	return a
}

func round2(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

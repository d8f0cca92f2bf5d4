package metrics

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SignalsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gosignal_signals_generated_total",
			Help: "Total number of signal decisions (by symbol and type).",
		},
		[]string{"symbol", "type"},
	)

	ValidSignals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gosignal_signals_valid_total",
			Help: "Signal decisions whose confidence met the threshold.",
		},
		[]string{"symbol", "type"},
	)

	SignalConfidence = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gosignal_signal_confidence",
			Help: "Confidence of the latest signal decision.",
		},
		[]string{"symbol"},
	)

	TradesOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gosignal_trades_opened_total",
			Help: "Trades opened (by symbol and side).",
		},
		[]string{"symbol", "side"},
	)

	TradesClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gosignal_trades_closed_total",
			Help: "Trades closed (by symbol and reason).",
		},
		[]string{"symbol", "reason"},
	)

	TradesOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gosignal_trades_open",
			Help: "Current number of open trades per symbol.",
		},
		[]string{"symbol"},
	)

	RealizedPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gosignal_realized_pnl",
			Help: "Realized profit and loss since start.",
		},
	)

	BalanceGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gosignal_balance",
			Help: "Current balance of the executor (paper or live).",
		},
	)

	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gosignal_ticks_total",
			Help: "Count of market ticks ingested.",
		},
		[]string{"symbol"},
	)

	FeedErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gosignal_feed_errors_total",
			Help: "Market data errors (by operation).",
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(
		SignalsGenerated, ValidSignals, SignalConfidence,
		TradesOpened, TradesClosed, TradesOpen,
		RealizedPnL, BalanceGauge,
		TicksTotal, FeedErrors,
	)
}

// Serve binds addr and exposes the default registry under /metrics in the
// background. Bind failures are returned; callers Close the server on
// shutdown. srv.Addr holds the bound address, which matters for ":0".
func Serve(addr string) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: ln.Addr().String(), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	return srv, nil
}

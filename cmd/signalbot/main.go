package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/evdnx/gosignal/config"
	"github.com/evdnx/gosignal/engine"
	"github.com/evdnx/gosignal/executor"
	"github.com/evdnx/gosignal/feed"
	"github.com/evdnx/gosignal/logger"
	"github.com/evdnx/gosignal/metrics"
)

func main() {
	path := flag.String("config", "configs/signalbot.yaml", "path to the YAML config; empty uses built-in defaults")
	flag.Parse()

	if err := run(*path); err != nil {
		fmt.Fprintln(os.Stderr, "signalbot:", err)
		os.Exit(1)
	}
}

func run(path string) error {
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.App.LogLevel, cfg.App.LogFormat)
	if err != nil {
		return err
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv, err := metrics.Serve(cfg.App.MetricsAddr)
	if err != nil {
		return err
	}
	defer srv.Close()
	log.Info("metrics_up", logger.String("addr", srv.Addr))

	var src feed.Feed
	switch cfg.Market.Feed {
	case config.FeedWebSocket:
		ws := feed.NewWSFeed(cfg.Market.WebSocketURL, []string{cfg.Market.Symbol}, cfg.Market.Timeframe, log)
		go func() {
			if err := ws.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("feed_stopped", logger.Err(err))
				cancel()
			}
		}()
		src = ws
	default:
		src = feed.NewSimulated(feed.SimConfig{Volatility: 0.8, Seed: time.Now().UnixNano()})
	}

	exec := executor.NewPaperExecutor(cfg.Account.StartingBalance, cfg.Account.Leverage, log)
	eng, err := engine.New(*cfg, src, exec, log)
	if err != nil {
		return err
	}

	log.Info("signalbot_started",
		logger.String("env", cfg.App.Env),
		logger.String("symbol", cfg.Market.Symbol),
		logger.String("feed", cfg.Market.Feed),
	)
	if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	shutdown, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := eng.CloseAll(shutdown, "shutdown"); err != nil {
		log.Warn("close_all_failed", logger.Err(err))
	}

	h := eng.History(time.Time{})
	acct := exec.Account(nil)
	log.Info("session_summary",
		logger.Int("trades", h.TotalTrades),
		logger.Float64("win_rate", h.WinRate),
		logger.Float64("average_profit", h.AverageProfit),
		logger.Float64("balance", acct.Balance),
		logger.Float64("equity", acct.Equity),
	)
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default()
	}
	return config.LoadWithEnv(path)
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Feed kinds understood by Market.Feed.
const (
	FeedSimulated = "simulated"
	FeedWebSocket = "websocket"
)

// App captures process-wide settings.
type App struct {
	Name        string `yaml:"name" default:"gosignal"`
	Env         string `yaml:"env" default:"development" validate:"oneof=development staging production"`
	LogLevel    string `yaml:"log_level" default:"info" validate:"oneof=debug info warn error"`
	LogFormat   string `yaml:"log_format" default:"json" validate:"oneof=json console"`
	MetricsAddr string `yaml:"metrics_addr" default:":9100"`
}

// Market selects the instrument and where its data comes from.
type Market struct {
	Symbol       string        `yaml:"symbol" default:"XAUUSD" validate:"required"`
	Timeframe    time.Duration `yaml:"timeframe" default:"5m" validate:"gt=0"`
	CandleCount  int           `yaml:"candle_count" default:"100" validate:"gte=1"`
	PollInterval time.Duration `yaml:"poll_interval" default:"1s" validate:"gt=0"`
	Feed         string        `yaml:"feed" default:"simulated" validate:"oneof=simulated websocket"`
	WebSocketURL string        `yaml:"websocket_url" validate:"required_if=Feed websocket"`
}

type Account struct {
	StartingBalance float64 `yaml:"starting_balance" default:"10000" validate:"gt=0"`
	Leverage        float64 `yaml:"leverage" default:"100" validate:"gte=1"`
}

// Risk holds per-trade and per-day guard rails. Percentages are whole
// numbers: 2.0 means 2 %.
type Risk struct {
	RiskPerTrade   float64 `yaml:"risk_per_trade" default:"2" validate:"gt=0,lte=100"`
	StopLossPips   float64 `yaml:"stop_loss_pips" default:"1000" validate:"gte=0"`
	TakeProfitPips float64 `yaml:"take_profit_pips" default:"2000" validate:"gte=0"`
	// AutoStop derives the stop distance from recent volatility instead of
	// StopLossPips.
	AutoStop      bool    `yaml:"auto_stop"`
	MaxDailyLoss  float64 `yaml:"max_daily_loss" default:"5" validate:"gt=0,lte=100"`
	MaxOpenTrades int     `yaml:"max_open_trades" default:"1" validate:"gte=1"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App     App          `yaml:"app"`
	Market  Market       `yaml:"market"`
	Account Account      `yaml:"account"`
	Risk    Risk         `yaml:"risk"`
	Engine  EngineConfig `yaml:"engine"`
}

// Default returns a fully defaulted configuration.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file, fills defaults and
// validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes over the defaults into a validated Config.
// Keys absent from the file keep their defaults; keys present, including
// zeros, win.
func Parse(b []byte) (*Config, error) {
	// Defaults go in first so that explicit zeros in the file survive.
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("TARGET_SYMBOL"); v != "" {
		c.Market.Symbol = strings.ToUpper(v)
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.App.LogLevel = strings.ToLower(v)
	}
	if v := getenv("RISK_PER_TRADE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RISK_PER_TRADE: %w", err)
		}
		c.Risk.RiskPerTrade = f
	}
	if v := getenv("MAX_DAILY_LOSS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("MAX_DAILY_LOSS: %w", err)
		}
		c.Risk.MaxDailyLoss = f
	}
	if v := getenv("SIGNAL_CONFIDENCE_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SIGNAL_CONFIDENCE_THRESHOLD: %w", err)
		}
		c.Engine.ConfidenceThreshold = n
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	// structErrors descends into Engine, so only its cross-field rule is left.
	return multierr.Append(structErrors(c), c.Engine.checkBands())
}

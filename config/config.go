package config

import (
	"errors"
	"fmt"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"go.uber.org/multierr"
)

var validate = validator.New()

// EngineConfig holds every tunable of the scorer and the sizer. It is passed
// explicitly so a backtest can vary parameters without touching globals.
//
// Zero-valued fields are filled from the `default` tags by ApplyDefaults.
type EngineConfig struct {
	// Scoring
	ConfidenceThreshold int     `yaml:"confidence_threshold" default:"70" validate:"gte=0,lte=100"`
	BaseConfidence      int     `yaml:"base_confidence" default:"50" validate:"gte=0,lte=100"`
	MinBars             int     `yaml:"min_bars" default:"50" validate:"gte=1"`
	RSIPeriod           int     `yaml:"rsi_period" default:"14" validate:"gte=2"`
	RSIOversold         float64 `yaml:"rsi_oversold" default:"30" validate:"gte=0,lte=100"`
	RSIOverbought       float64 `yaml:"rsi_overbought" default:"70" validate:"gte=0,lte=100"`
	RSIWeight           int     `yaml:"rsi_weight" default:"10" validate:"gte=0"`
	MACDWeight          int     `yaml:"macd_weight" default:"5" validate:"gte=0"`
	MAWeight            int     `yaml:"ma_weight" default:"5" validate:"gte=0"`
	// SmoothMACDSignal replaces the single-sample MACD signal line with one
	// smoothed over recent MACD values. Off by default.
	SmoothMACDSignal bool `yaml:"smooth_macd_signal"`

	// Sizing
	PipValue        float64 `yaml:"pip_value" default:"0.01" validate:"gt=0"`
	MinVolume       float64 `yaml:"min_volume" default:"0.01" validate:"gt=0"`
	VolumePrecision int     `yaml:"volume_precision" default:"2" validate:"gte=0,lte=8"`
}

// DefaultEngineConfig returns the reference parameters (XAUUSD pip value,
// threshold 70, base confidence 50).
func DefaultEngineConfig() EngineConfig {
	var c EngineConfig
	if err := c.ApplyDefaults(); err != nil {
		// tags are static; a failure here is a programming error
		panic(err)
	}
	return c
}

// ApplyDefaults fills zero-valued fields from their `default` tags. A zero
// is indistinguishable from unset here; files go through Parse, which
// keeps explicit zeros.
func (c *EngineConfig) ApplyDefaults() error {
	return defaults.Set(c)
}

// Validate checks field ranges and the cross-field constraints the tags
// can't express. All problems are reported at once.
func (c *EngineConfig) Validate() error {
	return multierr.Append(structErrors(c), c.checkBands())
}

func (c *EngineConfig) checkBands() error {
	// An inverted pair would let one reading vote both ways.
	if c.RSIOversold >= c.RSIOverbought {
		return fmt.Errorf("rsi_oversold (%v) must be below rsi_overbought (%v)",
			c.RSIOversold, c.RSIOverbought)
	}
	return nil
}

// structErrors runs the tag validator and flattens its result.
func structErrors(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	var errs error
	for _, fe := range ve {
		errs = multierr.Append(errs, fmt.Errorf("%s: failed %q (got %v)", fe.Namespace(), fieldRule(fe), fe.Value()))
	}
	return errs
}

func fieldRule(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

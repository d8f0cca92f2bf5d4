package logger

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is a structured logging key/value pair.
type Field = zap.Field

// Logger is the small logging surface the engine and its collaborators
// depend on. Tests substitute testutils.MockLogger.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field constructors re-exported so callers need not import zap.
var (
	String  = zap.String
	Float64 = zap.Float64
	Int     = zap.Int
	Bool    = zap.Bool
	Time    = zap.Time
	Dur     = zap.Duration
	Err     = zap.Error
)

// zapLogger implements Logger on top of a *zap.Logger.
type zapLogger struct {
	z *zap.Logger
}

func (l *zapLogger) Debug(msg string, fields ...Field) { l.z.Debug(msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...Field)  { l.z.Info(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.z.Error(msg, fields...) }

// New creates a production logger. format is "json" or "console"; level is
// one of debug, info, warn, error.
func New(level, format string) (Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	switch format {
	case "", "json":
		cfg.Encoding = "json"
	case "console":
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &zapLogger{z: z}, nil
}

// Wrap adapts an existing zap logger.
func Wrap(z *zap.Logger) Logger { return &zapLogger{z: z} }

// Nop discards everything.
func Nop() Logger { return &zapLogger{z: zap.NewNop()} }

// Since is a convenience for latency fields.
func Since(key string, start time.Time) Field { return zap.Duration(key, time.Since(start)) }

package strategies

import (
	"dizzycode.xyz/dca-backtest/pkg/logger/level"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Zap implements Strategy on top of uber/zap.
type Zap struct {
	logger *zap.Logger
}

// ZapOptions configures the Zap strategy.
type ZapOptions struct {
	// IsPretty selects the development console encoder instead of JSON.
	IsPretty bool
	Level    level.Level
}

// NewZap creates a Zap strategy.
func NewZap(opts ZapOptions) (*Zap, error) {
	var config zap.Config
	if opts.IsPretty {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
	}
	config.Level = zap.NewAtomicLevelAt(opts.Level.ToZapLevel())
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	// Skip: zap.go -> logger.log() -> logger.Info()
	zapLogger, err := config.Build(zap.AddCallerSkip(3))
	if err != nil {
		return nil, err
	}

	return &Zap{logger: zapLogger}, nil
}

// NewZapWithLogger wraps an existing zap logger, e.g. zaptest or zap.NewNop.
func NewZapWithLogger(l *zap.Logger) *Zap {
	return &Zap{logger: l}
}

// Log implements Strategy.
func (z *Zap) Log(entry Entry) error {
	fields := make([]zap.Field, len(entry.Fields)+1)
	fields[0] = zap.String("service", entry.ServiceName)
	copy(fields[1:], entry.Fields)

	switch entry.Level {
	case level.Debug:
		z.logger.Debug(entry.Message, fields...)
	case level.Warn:
		z.logger.Warn(entry.Message, fields...)
	case level.Error:
		z.logger.Error(entry.Message, fields...)
	default:
		z.logger.Info(entry.Message, fields...)
	}

	return nil
}

// Sync implements Strategy.
func (z *Zap) Sync() error {
	return z.logger.Sync()
}

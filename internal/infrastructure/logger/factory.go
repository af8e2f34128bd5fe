package logger

import (
	"dizzycode.xyz/dca-backtest/internal/infrastructure/config"
	"dizzycode.xyz/dca-backtest/pkg/logger"
	"dizzycode.xyz/dca-backtest/pkg/logger/level"
	"dizzycode.xyz/dca-backtest/pkg/logger/strategies"
)

// New creates a logger instance based on configuration
func New(serviceName string, cfg *config.Config) (*logger.Logger, error) {
	zapStrategy, err := strategies.NewZap(strategies.ZapOptions{
		IsPretty: cfg.IsDevelopment(),
		Level:    level.Parse(cfg.LogLevel),
	})
	if err != nil {
		return nil, err
	}
	return logger.NewLogger(serviceName, []strategies.Strategy{zapStrategy}), nil
}

// Must creates a logger and panics on error
func Must(serviceName string, cfg *config.Config) *logger.Logger {
	log, err := New(serviceName, cfg)
	if err != nil {
		panic(err)
	}
	return log
}

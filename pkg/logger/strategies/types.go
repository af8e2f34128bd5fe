package strategies

import (
	"time"

	"dizzycode.xyz/dca-backtest/pkg/logger/level"

	"go.uber.org/zap"
)

// Entry is a single log record handed to every strategy.
type Entry struct {
	Level       level.Level
	Message     string
	Fields      []zap.Field
	Time        time.Time
	ServiceName string
}

// Strategy is an output backend for the logger.
type Strategy interface {
	Log(entry Entry) error
	Sync() error
}

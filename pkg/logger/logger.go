// Package logger is a small structured logger that fans entries out to one
// or more output strategies (zap, console, memory, nop).
package logger

import (
	"time"

	"dizzycode.xyz/dca-backtest/pkg/logger/level"
	"dizzycode.xyz/dca-backtest/pkg/logger/strategies"

	"go.uber.org/zap"
)

// Logger dispatches entries to every configured strategy.
type Logger struct {
	strategies  []strategies.Strategy
	serviceName string
	baseFields  []zap.Field
	now         func() time.Time
}

// Option configures a Logger.
type Option func(*Logger)

// WithFields adds fields attached to every entry.
func WithFields(fields ...zap.Field) Option {
	return func(l *Logger) {
		l.baseFields = append(l.baseFields, fields...)
	}
}

// WithClock overrides the entry timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		l.now = now
	}
}

// NewLogger creates a logger. With no strategies it logs to the console.
func NewLogger(serviceName string, strats []strategies.Strategy, opts ...Option) *Logger {
	if len(strats) == 0 {
		strats = []strategies.Strategy{strategies.NewConsole()}
	}

	l := &Logger{
		strategies:  strats,
		serviceName: serviceName,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewNopLogger creates a logger that discards all output.
func NewNopLogger() *Logger {
	return NewLogger("nop", []strategies.Strategy{strategies.NewNop()})
}

func (l *Logger) log(lvl level.Level, message string, fields []zap.Field) {
	all := make([]zap.Field, 0, len(l.baseFields)+len(fields))
	all = append(all, l.baseFields...)
	all = append(all, fields...)

	entry := strategies.Entry{
		Level:       lvl,
		Message:     message,
		Fields:      all,
		Time:        l.now(),
		ServiceName: l.serviceName,
	}

	for _, s := range l.strategies {
		// a failing backend must not break the caller
		_ = s.Log(entry)
	}
}

// Debug logs at debug level.
func (l *Logger) Debug(message string, fields ...zap.Field) {
	l.log(level.Debug, message, fields)
}

// Info logs at info level.
func (l *Logger) Info(message string, fields ...zap.Field) {
	l.log(level.Info, message, fields)
}

// Warn logs at warn level.
func (l *Logger) Warn(message string, fields ...zap.Field) {
	l.log(level.Warn, message, fields)
}

// Error logs at error level, attaching err when non-nil.
func (l *Logger) Error(message string, err error, fields ...zap.Field) {
	all := make([]zap.Field, 0, len(fields)+1)
	if err != nil {
		all = append(all, zap.Error(err))
	}
	all = append(all, fields...)
	l.log(level.Error, message, all)
}

// With returns a child logger carrying additional fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	merged := make([]zap.Field, len(l.baseFields)+len(fields))
	copy(merged, l.baseFields)
	copy(merged[len(l.baseFields):], fields)

	return &Logger{
		strategies:  l.strategies,
		serviceName: l.serviceName,
		baseFields:  merged,
		now:         l.now,
	}
}

// Sync flushes every strategy and returns the last error seen.
func (l *Logger) Sync() error {
	var lastErr error
	for _, s := range l.strategies {
		if err := s.Sync(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

package level

import "go.uber.org/zap/zapcore"

// Level is the severity of a log entry.
type Level int8

const (
	// Debug entries trace individual fills and exits inside a run.
	Debug Level = iota - 1
	// Info is the default level.
	Info
	// Warn marks conditions worth a look, e.g. a liquidation.
	Warn
	// Error marks failed operations.
	Error
)

// String returns the lower-case name of the level.
func (l Level) String() string {
	switch l {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warn:
		return "warn"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// ToZapLevel converts Level to zapcore.Level.
func (l Level) ToZapLevel() zapcore.Level {
	switch l {
	case Debug:
		return zapcore.DebugLevel
	case Warn:
		return zapcore.WarnLevel
	case Error:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Enabled reports whether an entry at lvl passes a minimum of l.
func (l Level) Enabled(lvl Level) bool {
	return lvl >= l
}

// Parse converts a config string to Level. Unknown values fall back to Info.
func Parse(s string) Level {
	switch s {
	case "debug":
		return Debug
	case "info":
		return Info
	case "warn", "warning":
		return Warn
	case "error":
		return Error
	default:
		return Info
	}
}

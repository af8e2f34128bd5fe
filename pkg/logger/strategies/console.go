package strategies

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"dizzycode.xyz/dca-backtest/pkg/logger/level"

	"go.uber.org/zap/zapcore"
)

// Console writes human readable lines, suitable for the CLI and for tests.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	colored bool
	min     level.Level
}

// ConsoleOptions configures the Console strategy.
type ConsoleOptions struct {
	// Out defaults to os.Stdout.
	Out io.Writer
	// Colored enables ANSI colors on the level name.
	Colored bool
	// Level is the minimum level written.
	Level level.Level
}

// NewConsole creates a Console strategy. Without options it writes colored
// output at info level to stdout.
func NewConsole(opts ...ConsoleOptions) *Console {
	c := &Console{out: os.Stdout, colored: true, min: level.Info}
	if len(opts) > 0 {
		if opts[0].Out != nil {
			c.out = opts[0].Out
		}
		c.colored = opts[0].Colored
		c.min = opts[0].Level
	}
	return c
}

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
)

func (c *Console) levelString(lvl level.Level) string {
	if !c.colored {
		return lvl.String()
	}

	color := ""
	switch lvl {
	case level.Debug:
		color = colorGray
	case level.Info:
		color = colorBlue
	case level.Warn:
		color = colorYellow
	case level.Error:
		color = colorRed
	}
	return color + lvl.String() + colorReset
}

// Log implements Strategy.
func (c *Console) Log(entry Entry) error {
	if !c.min.Enabled(entry.Level) {
		return nil
	}

	line := fmt.Sprintf("%s %s: %s",
		entry.Time.Format(time.RFC3339),
		c.levelString(entry.Level),
		entry.Message,
	)

	if len(entry.Fields) > 0 {
		enc := zapcore.NewMapObjectEncoder()
		enc.AddString("service", entry.ServiceName)
		for _, f := range entry.Fields {
			f.AddTo(enc)
		}
		data, err := json.Marshal(enc.Fields)
		if err != nil {
			return fmt.Errorf("marshal log fields: %w", err)
		}
		line += " " + string(data)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.out, line)
	return err
}

// Sync implements Strategy.
func (c *Console) Sync() error {
	return nil
}

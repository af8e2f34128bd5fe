package logger

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"dizzycode.xyz/dca-backtest/pkg/logger/level"
	"dizzycode.xyz/dca-backtest/pkg/logger/strategies"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLogger_DispatchesToAllStrategies(t *testing.T) {
	first := strategies.NewMemory()
	second := strategies.NewMemory()
	log := NewLogger("test", []strategies.Strategy{first, second})

	log.Info("run started", zap.String("instId", "ETH-USDT"))

	require.Len(t, first.Entries(), 1)
	require.Len(t, second.Entries(), 1)
	assert.Equal(t, "run started", first.Entries()[0].Message)
	assert.Equal(t, level.Info, first.Entries()[0].Level)
	assert.Equal(t, "test", first.Entries()[0].ServiceName)
}

func TestLogger_WithKeepsParentFields(t *testing.T) {
	mem := strategies.NewMemory()
	parent := NewLogger("test", []strategies.Strategy{mem}, WithFields(zap.String("component", "engine")))
	child := parent.With(zap.Int("job", 3))

	child.Debug("fill")
	parent.Debug("parent")

	entries := mem.Entries()
	require.Len(t, entries, 2)
	assert.Len(t, entries[0].Fields, 2)
	assert.Len(t, entries[1].Fields, 1, "child fields must not leak into the parent")
}

func TestLogger_ErrorAttachesError(t *testing.T) {
	mem := strategies.NewMemory()
	log := NewLogger("test", []strategies.Strategy{mem})

	log.Error("publish failed", errors.New("boom"), zap.String("queue", "reports"))

	entries := mem.Entries()
	require.Len(t, entries, 1)
	require.Len(t, entries[0].Fields, 2)
	assert.Equal(t, "error", entries[0].Fields[0].Key)
}

func TestConsole_RespectsMinimumLevel(t *testing.T) {
	var buf bytes.Buffer
	console := strategies.NewConsole(strategies.ConsoleOptions{Out: &buf, Level: level.Warn})
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	log := NewLogger("cli", []strategies.Strategy{console}, WithClock(func() time.Time { return fixed }))

	log.Info("hidden")
	log.Warn("liquidated", zap.Float64("price", 50.5))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "2024-01-01T00:00:00Z warn: liquidated")
	assert.Contains(t, out, `"price":50.5`)
	assert.Contains(t, out, `"service":"cli"`)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want level.Level
	}{
		{"debug", level.Debug},
		{"warning", level.Warn},
		{"error", level.Error},
		{"verbose", level.Info},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, level.Parse(tt.in))
		})
	}
}

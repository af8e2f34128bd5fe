// Package remote runs a backtest on a server through its websocket stream.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"dizzycode.xyz/dca-backtest/backtesting/engine"
	"dizzycode.xyz/dca-backtest/internal/handler"
	"dizzycode.xyz/dca-backtest/pkg/logger"
	"dizzycode.xyz/dca-backtest/pkg/wsclient"
)

const streamPath = "/api/v1/backtests/stream"

var ErrNoReport = errors.New("stream closed before the report arrived")

// StreamURL turns a server base address (http, https, ws or wss) into the
// stream endpoint.
func StreamURL(base string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case !strings.HasPrefix(base, "ws://") && !strings.HasPrefix(base, "wss://"):
		base = "ws://" + base
	}
	if strings.HasSuffix(base, streamPath) {
		return base
	}
	return base + streamPath
}

// Run sends req to the stream endpoint at baseURL, calls onTrade for every
// trade frame and returns the final report.
func Run(ctx context.Context, baseURL string, req handler.BacktestRequest, onTrade func(engine.TradeLog), log *logger.Logger) (engine.Report, error) {
	client := wsclient.NewClient(wsclient.Config{URL: StreamURL(baseURL)}, log)

	// Written on the read goroutine; read only after Done is closed.
	var (
		report    *engine.Report
		remoteErr error
	)
	client.SetMessageHandler(func(_ int, data []byte) error {
		var msg handler.StreamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("decode stream frame: %w", err)
		}
		switch msg.Type {
		case handler.MessageTrade:
			if onTrade != nil && msg.Trade != nil {
				onTrade(*msg.Trade)
			}
		case handler.MessageReport:
			report = msg.Report
		case handler.MessageError:
			remoteErr = errors.New(msg.Error)
		}
		return nil
	})

	if err := client.Connect(ctx); err != nil {
		return engine.Report{}, fmt.Errorf("connect to %s: %w", StreamURL(baseURL), err)
	}
	defer client.Close()

	if err := client.SendJSON(req); err != nil {
		return engine.Report{}, fmt.Errorf("send request: %w", err)
	}

	select {
	case <-client.Done():
	case <-ctx.Done():
		return engine.Report{}, ctx.Err()
	}

	if remoteErr != nil {
		return engine.Report{}, fmt.Errorf("remote backtest: %w", remoteErr)
	}
	if report == nil {
		return engine.Report{}, ErrNoReport
	}
	return *report, nil
}

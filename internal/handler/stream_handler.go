package handler

import (
	"context"
	"net/http"
	"time"

	"dizzycode.xyz/dca-backtest/backtesting/engine"
	"dizzycode.xyz/dca-backtest/internal/domain/value_objects"
	"dizzycode.xyz/dca-backtest/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Stream message types.
const (
	MessageTrade  = "trade"
	MessageReport = "report"
	MessageError  = "error"
)

// StreamMessage is one frame sent to a stream client.
type StreamMessage struct {
	Type   string           `json:"type"`
	Trade  *engine.TradeLog `json:"trade,omitempty"`
	Report *engine.Report   `json:"report,omitempty"`
	Error  string           `json:"error,omitempty"`
}

const (
	streamWriteWait = 10 * time.Second
	streamReadWait  = 30 * time.Second
	loadTimeout     = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamHandler runs a single backtest over a websocket: the client sends
// one BacktestRequest, the server answers with a trade frame per ledger
// event and a final report frame, then closes.
type StreamHandler struct {
	defaults engine.StrategyConfig
	sources  SourceFactory
	logger   *logger.Logger
}

func NewStreamHandler(defaults engine.StrategyConfig, sources SourceFactory, log *logger.Logger) *StreamHandler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &StreamHandler{defaults: defaults, sources: sources, logger: log}
}

func (h *StreamHandler) Stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(streamReadWait))
	var req BacktestRequest
	if err := conn.ReadJSON(&req); err != nil {
		h.writeError(conn, "invalid request: "+err.Error())
		return
	}

	report, err := h.run(c.Request.Context(), conn, req)
	if err != nil {
		h.writeError(conn, err.Error())
		return
	}
	if err := h.write(conn, StreamMessage{Type: MessageReport, Report: &report}); err != nil {
		h.logger.Warn("Failed to send report frame", zap.Error(err))
		return
	}

	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
}

func (h *StreamHandler) run(ctx context.Context, conn *websocket.Conn, req BacktestRequest) (engine.Report, error) {
	cfg, err := req.strategyConfig(h.defaults)
	if err != nil {
		return engine.Report{}, err
	}

	candles, err := h.load(ctx, req)
	if err != nil {
		return engine.Report{}, err
	}

	// The observer runs synchronously inside Run; after the first failed
	// write the remaining frames are dropped and the error surfaces below.
	var writeErr error
	observer := func(t engine.TradeLog) {
		if writeErr != nil {
			return
		}
		writeErr = h.write(conn, StreamMessage{Type: MessageTrade, Trade: &t})
	}

	eng, err := engine.NewBacktestEngine(cfg, engine.WithLogger(h.logger), engine.WithObserver(observer))
	if err != nil {
		return engine.Report{}, err
	}
	report, err := eng.Run(candles)
	if err != nil {
		return engine.Report{}, err
	}
	if writeErr != nil {
		return engine.Report{}, writeErr
	}
	return report, nil
}

func (h *StreamHandler) load(ctx context.Context, req BacktestRequest) ([]value_objects.Candle, error) {
	if len(req.Candles) > 0 {
		return req.candles()
	}
	if h.sources == nil || req.InstID == "" || req.Bar == "" {
		return nil, &engine.DataError{Index: -1, Reason: "no candles given and no market to load"}
	}
	source, err := h.sources(req.InstID, req.Bar)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()
	return source.Load(ctx)
}

func (h *StreamHandler) write(conn *websocket.Conn, msg StreamMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteJSON(msg)
}

func (h *StreamHandler) writeError(conn *websocket.Conn, msg string) {
	if err := h.write(conn, StreamMessage{Type: MessageError, Error: msg}); err != nil {
		h.logger.Debug("Failed to send error frame", zap.Error(err))
	}
}

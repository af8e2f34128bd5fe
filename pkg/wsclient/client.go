package wsclient

import (
	"context"
	"sync"
	"time"

	"dizzycode.xyz/dca-backtest/pkg/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	DefaultPingInterval = 20 * time.Second
	DefaultPongWait     = 30 * time.Second
	DefaultWriteWait    = 10 * time.Second
)

// MessageHandler handles one received frame. It runs on the read goroutine.
type MessageHandler func(messageType int, data []byte) error

// Config holds the client settings. Zero durations take the defaults.
type Config struct {
	URL          string
	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
}

// Client is a websocket client with a read loop and keepalive pings.
type Client struct {
	config         Config
	conn           *websocket.Conn
	logger         *logger.Logger
	mu             sync.RWMutex
	messageHandler MessageHandler
	ctx            context.Context
	cancel         context.CancelFunc
	done           chan struct{}
	isConnected    bool
}

func NewClient(config Config, log *logger.Logger) *Client {
	if config.PingInterval == 0 {
		config.PingInterval = DefaultPingInterval
	}
	if config.PongWait == 0 {
		config.PongWait = DefaultPongWait
	}
	if config.WriteWait == 0 {
		config.WriteWait = DefaultWriteWait
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		config: config,
		logger: log,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// SetMessageHandler must be called before Connect to see every frame.
func (c *Client) SetMessageHandler(handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messageHandler = handler
}

// Connect dials the server and starts the read and ping loops.
func (c *Client) Connect(ctx context.Context) error {
	c.logger.Info("Connecting to WebSocket", zap.String("url", c.config.URL))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.config.URL, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.isConnected = true
	c.mu.Unlock()

	c.logger.Debug("Connected to WebSocket")

	go c.readPump(conn)
	go c.pingPump()

	return nil
}

// SendJSON writes v as one JSON text frame.
func (c *Client) SendJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isConnected || c.conn == nil {
		return ErrNotConnected
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
	return c.conn.WriteJSON(v)
}

func (c *Client) readPump(conn *websocket.Conn) {
	defer func() {
		c.mu.Lock()
		conn.Close()
		c.conn = nil
		c.isConnected = false
		c.mu.Unlock()
		close(c.done)
	}()

	_ = conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Error("WebSocket unexpected close", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.config.PongWait))

		c.mu.RLock()
		handler := c.messageHandler
		c.mu.RUnlock()

		if handler != nil {
			if err := handler(messageType, message); err != nil {
				c.logger.Error("Message handler error", err)
			}
		}
	}
}

func (c *Client) pingPump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.conn != nil && c.isConnected {
				_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
				if err := c.conn.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
					c.logger.Error("Failed to send ping", err)
					c.mu.Unlock()
					return
				}
			}
			c.mu.Unlock()
		}
	}
}

// Close sends a close frame and tears the connection down.
func (c *Client) Close() error {
	c.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
		c.conn = nil
	}

	c.isConnected = false
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

// Done is closed when the read loop has exited.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the read loop has exited.
func (c *Client) Wait() {
	<-c.done
}

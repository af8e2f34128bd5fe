package rabbitmq

import (
	"errors"
	"fmt"
	"net/url"
	"sync"

	"dizzycode.xyz/dca-backtest/pkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Connection manages RabbitMQ connection and channel
type Connection struct {
	config  Config
	logger  *logger.Logger
	conn    *amqp.Connection
	channel *amqp.Channel
	mu      sync.RWMutex
	closed  bool
}

// NewConnection creates a new RabbitMQ connection instance
func NewConnection(config Config, log *logger.Logger) *Connection {
	return &Connection{
		config: config,
		logger: log,
	}
}

// Connect establishes connection to RabbitMQ and creates a channel
func (c *Connection) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && c.channel != nil {
		return nil
	}

	c.logger.Info("Connecting to RabbitMQ", zap.String("url", maskURL(c.config.URL)))

	conn, err := amqp.Dial(c.config.URL)
	if err != nil {
		c.logger.Error("Failed to connect to RabbitMQ", err)
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		c.logger.Error("Failed to create channel", err)
		return fmt.Errorf("failed to create channel: %w", err)
	}

	c.conn = conn
	c.channel = channel
	c.closed = false

	c.setupConnectionHandlers(conn)

	c.logger.Info("RabbitMQ connected successfully")
	return nil
}

// setupConnectionHandlers logs unexpected connection loss
func (c *Connection) setupConnectionHandlers(conn *amqp.Connection) {
	notify := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		closeErr, ok := <-notify
		if ok && closeErr != nil {
			c.logger.Error("RabbitMQ connection error", closeErr)
		}
	}()
}

// GetChannel returns the active channel
func (c *Connection) GetChannel() (*amqp.Channel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.channel == nil {
		return nil, errors.New("channel not initialized. Call Connect() first")
	}
	return c.channel, nil
}

// GetLogger returns the logger instance
func (c *Connection) GetLogger() *logger.Logger {
	return c.logger
}

// IsConnected checks if the connection and channel are active
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.channel != nil && !c.closed
}

// Close closes the channel and connection
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	var errs []error

	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.logger.Error("Error closing channel", err)
			errs = append(errs, err)
		}
		c.channel = nil
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Error("Error closing connection", err)
			errs = append(errs, err)
		}
		c.conn = nil
	}

	c.closed = true
	c.logger.Info("RabbitMQ connection closed")

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("errors during close: %w", err)
	}
	return nil
}

// maskURL masks the password in the URL for logging
func maskURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url"
	}

	if parsed.User != nil {
		if _, hasPassword := parsed.User.Password(); hasPassword {
			parsed.User = url.UserPassword(parsed.User.Username(), "***")
		}
	}

	return parsed.String()
}
